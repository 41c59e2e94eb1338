package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"missionboard/internal/domain"
)

const taskColumns = `id,title,description,status,priority,assigned_to,project_id,parent_task_id,created_at,started_at,completed_at,estimated_hours,actual_hours,metadata`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.AssignedTo), nullableStringPtr(t.ProjectID), nullableStringPtr(t.ParentTaskID),
		t.CreatedAt, nullableStringPtr(t.StartedAt), nullableStringPtr(t.CompletedAt),
		nullableIntPtr(t.EstimatedHours), nullableIntPtr(t.ActualHours), nullableStringPtr(t.Metadata))
	return err
}

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, assignedTo, projectID, parentTaskID, startedAt, completedAt, metadata sql.NullString
	var estimated, actual sql.NullInt64
	err := scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority, &assignedTo, &projectID, &parentTaskID,
		&t.CreatedAt, &startedAt, &completedAt, &estimated, &actual, &metadata)
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if assignedTo.Valid {
		t.AssignedTo = &assignedTo.String
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	if parentTaskID.Valid {
		t.ParentTaskID = &parentTaskID.String
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if estimated.Valid {
		v := int(estimated.Int64)
		t.EstimatedHours = &v
	}
	if actual.Valid {
		v := int(actual.Int64)
		t.ActualHours = &v
	}
	if metadata.Valid {
		t.Metadata = &metadata.String
	}
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilters struct {
	Status     string
	AssignedTo string
}

// ListTasks returns tasks joined with the assignee's name, ordered by
// priority rank (critical, high, medium, everything else) then newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "t.status=?")
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "t.assigned_to=?")
		args = append(args, f.AssignedTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT t.id,t.title,t.description,t.status,t.priority,t.assigned_to,t.project_id,t.parent_task_id,t.created_at,t.started_at,t.completed_at,t.estimated_hours,t.actual_hours,t.metadata,a.name AS assigned_name
	FROM tasks t
	LEFT JOIN agents a ON t.assigned_to = a.id ` + where + `
	ORDER BY
		CASE t.priority
			WHEN 'critical' THEN 1
			WHEN 'high' THEN 2
			WHEN 'medium' THEN 3
			ELSE 4
		END,
		t.created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var description, assignedTo, projectID, parentTaskID, startedAt, completedAt, metadata, assignedName sql.NullString
		var estimated, actual sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority, &assignedTo, &projectID, &parentTaskID,
			&t.CreatedAt, &startedAt, &completedAt, &estimated, &actual, &metadata, &assignedName); err != nil {
			return nil, err
		}
		if description.Valid {
			t.Description = description.String
		}
		if assignedTo.Valid {
			t.AssignedTo = &assignedTo.String
		}
		if assignedName.Valid {
			t.AssignedName = &assignedName.String
		}
		if projectID.Valid {
			t.ProjectID = &projectID.String
		}
		if parentTaskID.Valid {
			t.ParentTaskID = &parentTaskID.String
		}
		if startedAt.Valid {
			t.StartedAt = &startedAt.String
		}
		if completedAt.Valid {
			t.CompletedAt = &completedAt.String
		}
		if estimated.Valid {
			v := int(estimated.Int64)
			t.EstimatedHours = &v
		}
		if actual.Valid {
			v := int(actual.Int64)
			t.ActualHours = &v
		}
		if metadata.Valid {
			t.Metadata = &metadata.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTasksByProject(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TaskUpdate is a partial update. AssignedTo is only applied when AssignSet is
// true, so "field not provided" and "field set to null" stay distinct.
type TaskUpdate struct {
	Status      *string
	AssignedTo  *string
	AssignSet   bool
	StartedAt   *string
	CompletedAt *string
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id string, u TaskUpdate) error {
	var (
		fields []string
		args   []any
	)
	if u.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *u.Status)
	}
	if u.StartedAt != nil {
		fields = append(fields, "started_at=?")
		args = append(args, *u.StartedAt)
	}
	if u.CompletedAt != nil {
		fields = append(fields, "completed_at=?")
		args = append(args, *u.CompletedAt)
	}
	if u.AssignSet {
		fields = append(fields, "assigned_to=?")
		args = append(args, nullableStringPtr(u.AssignedTo))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ", ")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetTaskStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"
	"strings"

	"missionboard/internal/domain"
)

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reports(id,agent_id,task_id,type,title,content,status,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		rep.ID, rep.AgentID, nullableStringPtr(rep.TaskID), rep.Type, rep.Title, rep.Content, rep.Status, rep.CreatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.Report, error) {
	var rep domain.Report
	var taskID sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,agent_id,task_id,type,title,content,status,created_at FROM reports WHERE id=?`, id).
		Scan(&rep.ID, &rep.AgentID, &taskID, &rep.Type, &rep.Title, &rep.Content, &rep.Status, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return rep, ErrNotFound
	}
	if err != nil {
		return rep, err
	}
	if taskID.Valid {
		rep.TaskID = &taskID.String
	}
	return rep, nil
}

type ReportFilters struct {
	Status  string
	AgentID string
	Limit   int
}

// ListReports returns reports newest first, joined with the agent name and the
// related task title.
func (r Repo) ListReports(ctx context.Context, f ReportFilters) ([]domain.Report, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "r.status=?")
		args = append(args, f.Status)
	}
	if f.AgentID != "" {
		clauses = append(clauses, "r.agent_id=?")
		args = append(args, f.AgentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT r.id,r.agent_id,r.task_id,r.type,r.title,r.content,r.status,r.created_at,a.name AS agent_name,t.title AS task_title
	FROM reports r
	LEFT JOIN agents a ON r.agent_id = a.id
	LEFT JOIN tasks t ON r.task_id = t.id ` + where + `
	ORDER BY r.created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Report
	for rows.Next() {
		var rep domain.Report
		var taskID, agentName, taskTitle sql.NullString
		if err := rows.Scan(&rep.ID, &rep.AgentID, &taskID, &rep.Type, &rep.Title, &rep.Content, &rep.Status, &rep.CreatedAt, &agentName, &taskTitle); err != nil {
			return nil, err
		}
		if taskID.Valid {
			rep.TaskID = &taskID.String
		}
		if agentName.Valid {
			rep.AgentName = &agentName.String
		}
		if taskTitle.Valid {
			rep.TaskTitle = &taskTitle.String
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

func (r Repo) SetReportStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reports SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

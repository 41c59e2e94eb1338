package repo

import (
	"context"
	"database/sql"

	"missionboard/internal/domain"
)

const agentColumns = `id,name,status,current_task,model,started_at,last_ping,session_key,metadata`

// ListAgents returns all agents, most recent ping first, annotated with the
// open task count and unread report count for each row.
func (r Repo) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.id,a.name,a.status,a.current_task,a.model,a.started_at,a.last_ping,a.session_key,a.metadata,
		(SELECT COUNT(*) FROM tasks WHERE assigned_to = a.id AND status != 'completed') AS active_tasks,
		(SELECT COUNT(*) FROM reports WHERE agent_id = a.id AND status = 'unread') AS unread_reports
	FROM agents a
	ORDER BY a.last_ping DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		var a domain.Agent
		var currentTask, model, sessionKey, metadata sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.Status, &currentTask, &model, &a.StartedAt, &a.LastPing, &sessionKey, &metadata, &a.ActiveTasks, &a.UnreadReports); err != nil {
			return nil, err
		}
		if currentTask.Valid {
			a.CurrentTask = &currentTask.String
		}
		if model.Valid {
			a.Model = model.String
		}
		if sessionKey.Valid {
			a.SessionKey = &sessionKey.String
		}
		if metadata.Valid {
			a.Metadata = &metadata.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	var a domain.Agent
	var currentTask, model, sessionKey, metadata sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &a.Status, &currentTask, &model, &a.StartedAt, &a.LastPing, &sessionKey, &metadata)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if currentTask.Valid {
		a.CurrentTask = &currentTask.String
	}
	if model.Valid {
		a.Model = model.String
	}
	if sessionKey.Valid {
		a.SessionKey = &sessionKey.String
	}
	if metadata.Valid {
		a.Metadata = &metadata.String
	}
	return a, nil
}

func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agents(`+agentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Status, nullableStringPtr(a.CurrentTask), nullable(a.Model),
		a.StartedAt, a.LastPing, nullableStringPtr(a.SessionKey), nullableStringPtr(a.Metadata))
	return err
}

func (r Repo) SetAgentStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE agents SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAgentSession records the remote session handle when a spawn succeeds.
func (r Repo) SetAgentSession(ctx context.Context, tx *sql.Tx, id, status, sessionKey string) error {
	res, err := tx.ExecContext(ctx, `UPDATE agents SET status=?, session_key=? WHERE id=?`, status, nullable(sessionKey), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnassignAgentTasks clears assignment on every non-completed task of the
// agent; completed tasks keep their assignee for the record.
func (r Repo) UnassignAgentTasks(ctx context.Context, tx *sql.Tx, agentID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET assigned_to=NULL WHERE assigned_to=? AND status != 'completed'`, agentID)
	return err
}

func (r Repo) TouchAgentPing(ctx context.Context, tx *sql.Tx, id, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE agents SET last_ping=? WHERE id=?`, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

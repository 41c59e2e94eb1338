package repo

import (
	"context"
	"database/sql"
	"strings"

	"missionboard/internal/domain"
)

type LogFilters struct {
	AgentID string
	Limit   int
}

func (r Repo) ListAgentLogs(ctx context.Context, f LogFilters) ([]domain.AgentLog, error) {
	var clauses []string
	var args []any
	if f.AgentID != "" {
		clauses = append(clauses, "agent_id=?")
		args = append(args, f.AgentID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id,agent_id,task_id,level,message,timestamp FROM agent_logs ` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AgentLog
	for rows.Next() {
		var l domain.AgentLog
		var agentID, taskID sql.NullString
		if err := rows.Scan(&l.ID, &agentID, &taskID, &l.Level, &l.Message, &l.Timestamp); err != nil {
			return nil, err
		}
		if agentID.Valid {
			l.AgentID = agentID.String
		}
		if taskID.Valid {
			l.TaskID = &taskID.String
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

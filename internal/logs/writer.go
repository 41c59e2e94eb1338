package logs

import (
	"context"
	"database/sql"
	"time"
)

// Writer appends agent_logs rows. Entries are written inside the transaction
// of the operation that produced them, so the trail never drifts from the
// state it describes.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, agentID, taskID, level, message string) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO agent_logs(agent_id,task_id,level,message,timestamp) VALUES (?,?,?,?,?)`,
		agentID, nullable(taskID), level, message, ts)
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

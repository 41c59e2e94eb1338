package repo

import (
	"context"
	"database/sql"

	"missionboard/internal/domain"
)

// ListProjects returns projects newest-updated first, annotated with the count
// of their not-yet-completed tasks.
func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id,p.name,p.description,p.status,p.github_repo,p.created_at,p.updated_at,p.target_completion,p.metadata,
		(SELECT COUNT(*) FROM tasks WHERE project_id = p.id AND status != 'completed') AS pending_tasks
	FROM projects p
	ORDER BY p.updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var description, githubRepo, targetCompletion, metadata sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &description, &p.Status, &githubRepo, &p.CreatedAt, &p.UpdatedAt, &targetCompletion, &metadata, &p.PendingTasks); err != nil {
			return nil, err
		}
		if description.Valid {
			p.Description = description.String
		}
		if githubRepo.Valid {
			p.GitHubRepo = &githubRepo.String
		}
		if targetCompletion.Valid {
			p.TargetCompletion = &targetCompletion.String
		}
		if metadata.Valid {
			p.Metadata = &metadata.String
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var description, githubRepo, targetCompletion, metadata sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,status,github_repo,created_at,updated_at,target_completion,metadata FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &description, &p.Status, &githubRepo, &p.CreatedAt, &p.UpdatedAt, &targetCompletion, &metadata)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if description.Valid {
		p.Description = description.String
	}
	if githubRepo.Valid {
		p.GitHubRepo = &githubRepo.String
	}
	if targetCompletion.Valid {
		p.TargetCompletion = &targetCompletion.String
	}
	if metadata.Valid {
		p.Metadata = &metadata.String
	}
	return p, nil
}

// UpsertProject inserts a project or, on id conflict, refreshes the synced
// fields and bumps updated_at. The repository sync commits rows one at a
// time, so this runs outside any transaction.
func (r Repo) UpsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,name,description,status,github_repo,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	description = excluded.description,
	github_repo = excluded.github_repo,
	updated_at = excluded.updated_at`,
		p.ID, p.Name, nullable(p.Description), p.Status, nullableStringPtr(p.GitHubRepo), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,status,github_repo,created_at,updated_at,target_completion,metadata) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Status, nullableStringPtr(p.GitHubRepo),
		p.CreatedAt, p.UpdatedAt, nullableStringPtr(p.TargetCompletion), nullableStringPtr(p.Metadata))
	return err
}

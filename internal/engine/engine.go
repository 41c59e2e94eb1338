package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"missionboard/internal/config"
	"missionboard/internal/domain"
	"missionboard/internal/github"
	"missionboard/internal/logs"
	"missionboard/internal/repo"
)

// Spawner starts remote working sessions for agents.
type Spawner interface {
	Configured() bool
	SpawnSession(ctx context.Context, name, task, agentID string) (string, error)
	ListSessions(ctx context.Context) ([]map[string]any, error)
	SendMessage(ctx context.Context, sessionKey, message string) error
}

// RepoLister lists the remote repositories consumed by the project sync.
type RepoLister interface {
	Configured() bool
	ListUserRepos(ctx context.Context) ([]github.Repository, error)
}

var (
	ErrGitHubNotConfigured  = errors.New("github token not configured")
	ErrGatewayNotConfigured = errors.New("spawn gateway not configured")
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Logs    logs.Writer
	Config  *config.Config
	Gateway Spawner
	GitHub  RepoLister
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Logs:   logs.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Agent ids keep the original "agent-<millis>-<suffix>" shape because the
// gateway uses them as session labels.
func (e Engine) newAgentID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("agent-%d-%s", e.now().UnixMilli(), suffix)
}

type AgentCreateOptions struct {
	Name  string
	Task  string
	Model string
}

// CreateAgent inserts an agent and, when an initial task is given, the task
// row and the status flip in the same transaction, so a failed create never
// leaves an orphaned half. With a configured gateway the agent is reserved as
// "pending" first, then committed to "working" or moved to "error" once the
// remote spawn resolves.
func (e Engine) CreateAgent(ctx context.Context, opts AgentCreateOptions) (domain.Agent, error) {
	if opts.Name == "" {
		return domain.Agent{}, domain.Invalid("name", "is required")
	}
	model := opts.Model
	if model == "" {
		model = "default"
	}
	now := e.timestamp()
	a := domain.Agent{
		ID:        e.newAgentID(),
		Name:      opts.Name,
		Status:    domain.AgentIdle,
		Model:     model,
		StartedAt: now,
		LastPing:  now,
	}
	if opts.Task != "" {
		a.CurrentTask = &opts.Task
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Agent{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAgent(ctx, tx, a); err != nil {
		return domain.Agent{}, fmt.Errorf("insert agent: %w", err)
	}
	spawnRemotely := opts.Task != "" && e.Gateway != nil && e.Gateway.Configured()
	if opts.Task != "" {
		t := domain.Task{
			ID:         "task-" + uuid.NewString(),
			Title:      opts.Task,
			Status:     domain.TaskInProgress,
			Priority:   domain.PriorityHigh,
			AssignedTo: &a.ID,
			CreatedAt:  now,
			StartedAt:  &now,
		}
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return domain.Agent{}, fmt.Errorf("insert initial task: %w", err)
		}
		status := domain.AgentWorking
		if spawnRemotely {
			status = domain.AgentPending
		}
		if err := e.Repo.SetAgentStatus(ctx, tx, a.ID, status); err != nil {
			return domain.Agent{}, err
		}
		a.Status = status
	}
	if err := tx.Commit(); err != nil {
		return domain.Agent{}, err
	}

	if spawnRemotely {
		return e.resolveSpawn(ctx, a, opts.Task)
	}
	return a, nil
}

// resolveSpawn finishes the two-phase create: commit the reservation to
// "working" with the session handle, or park the agent in "error" with the
// failure on its log trail.
func (e Engine) resolveSpawn(ctx context.Context, a domain.Agent, task string) (domain.Agent, error) {
	sessionKey, spawnErr := e.Gateway.SpawnSession(ctx, a.Name, task, a.ID)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if spawnErr != nil {
		log.Printf("spawn: remote session for %s failed: %v", a.ID, spawnErr)
		if err := e.Repo.SetAgentStatus(ctx, tx, a.ID, domain.AgentError); err != nil {
			return a, err
		}
		if err := e.Logs.Append(ctx, tx, a.ID, "", "error", "Remote spawn failed: "+spawnErr.Error()); err != nil {
			return a, err
		}
		if err := tx.Commit(); err != nil {
			return a, err
		}
		a.Status = domain.AgentError
		return a, nil
	}
	if err := e.Repo.SetAgentSession(ctx, tx, a.ID, domain.AgentWorking, sessionKey); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	a.Status = domain.AgentWorking
	if sessionKey != "" {
		a.SessionKey = &sessionKey
	}
	return a, nil
}

// TerminateAgent flips the agent to "terminated" and unassigns its open
// tasks. Completed tasks keep their assignee. The remote session, if any, is
// left running; the gateway exposes no cancel call.
func (e Engine) TerminateAgent(ctx context.Context, id string) error {
	if id == "" {
		return domain.Invalid("id", "is required")
	}
	if _, err := e.Repo.GetAgent(ctx, id); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetAgentStatus(ctx, tx, id, domain.AgentTerminated); err != nil {
		return err
	}
	if err := e.Repo.UnassignAgentTasks(ctx, tx, id); err != nil {
		return fmt.Errorf("unassign tasks: %w", err)
	}
	if err := e.Logs.Append(ctx, tx, id, "", "info", "Agent terminated"); err != nil {
		return err
	}
	return tx.Commit()
}

type TaskCreateOptions struct {
	Title       string
	Description string
	Priority    string
	AssignedTo  *string
	ProjectID   *string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.Title == "" {
		return domain.Task{}, domain.Invalid("title", "is required")
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if err := domain.ValidPriority(priority); err != nil {
		return domain.Task{}, err
	}
	if opts.AssignedTo != nil && *opts.AssignedTo != "" {
		if _, err := e.Repo.GetAgent(ctx, *opts.AssignedTo); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, domain.Invalid("assigned_to", "unknown agent")
			}
			return domain.Task{}, err
		}
	}
	if opts.ProjectID != nil && *opts.ProjectID != "" {
		if _, err := e.Repo.GetProject(ctx, *opts.ProjectID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, domain.Invalid("project_id", "unknown project")
			}
			return domain.Task{}, err
		}
	}
	t := domain.Task{
		ID:          "task-" + uuid.NewString(),
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.TaskBacklog,
		Priority:    priority,
		AssignedTo:  opts.AssignedTo,
		ProjectID:   opts.ProjectID,
		CreatedAt:   e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions is a partial update. Assign is applied only when
// AssignSet is true; a nil Assign with AssignSet clears the assignment.
type TaskUpdateOptions struct {
	ID        string
	Status    *string
	Assign    *string
	AssignSet bool
}

// UpdateTask applies a partial update. Moving to "in-progress" stamps the
// start timestamp, moving to "completed" stamps the completion timestamp;
// other statuses leave both untouched.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if opts.ID == "" {
		return domain.Task{}, domain.Invalid("id", "is required")
	}
	if _, err := e.Repo.GetTask(ctx, opts.ID); err != nil {
		return domain.Task{}, err
	}
	u := repo.TaskUpdate{Status: opts.Status, AssignedTo: opts.Assign, AssignSet: opts.AssignSet}
	if opts.Status != nil {
		if err := domain.ValidTaskStatus(*opts.Status); err != nil {
			return domain.Task{}, err
		}
		now := e.timestamp()
		switch *opts.Status {
		case domain.TaskInProgress:
			u.StartedAt = &now
		case domain.TaskCompleted:
			u.CompletedAt = &now
		}
	}
	if opts.AssignSet && opts.Assign != nil && *opts.Assign != "" {
		if _, err := e.Repo.GetAgent(ctx, *opts.Assign); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Task{}, domain.Invalid("assigned_to", "unknown agent")
			}
			return domain.Task{}, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, opts.ID, u); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, opts.ID)
}

type ReportCreateOptions struct {
	AgentID string
	TaskID  *string
	Type    string
	Title   string
	Content string
}

// CreateReport inserts the report, appends the audit log entry, bumps the
// agent's last ping, and — for a completion report tied to a task — moves
// that task to "review". All in one transaction.
func (e Engine) CreateReport(ctx context.Context, opts ReportCreateOptions) (domain.Report, error) {
	if opts.AgentID == "" || opts.Type == "" || opts.Title == "" {
		return domain.Report{}, domain.Invalid("", "missing required fields: agent_id, type, title")
	}
	if err := domain.ValidReportType(opts.Type); err != nil {
		return domain.Report{}, err
	}
	if _, err := e.Repo.GetAgent(ctx, opts.AgentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Report{}, domain.Invalid("agent_id", "unknown agent")
		}
		return domain.Report{}, err
	}
	if opts.TaskID != nil && *opts.TaskID != "" {
		if _, err := e.Repo.GetTask(ctx, *opts.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Report{}, domain.Invalid("task_id", "unknown task")
			}
			return domain.Report{}, err
		}
	}
	now := e.timestamp()
	rep := domain.Report{
		ID:        "report-" + uuid.NewString(),
		AgentID:   opts.AgentID,
		TaskID:    opts.TaskID,
		Type:      opts.Type,
		Title:     opts.Title,
		Content:   opts.Content,
		Status:    domain.ReportUnread,
		CreatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return domain.Report{}, fmt.Errorf("insert report: %w", err)
	}
	taskID := ""
	if rep.TaskID != nil {
		taskID = *rep.TaskID
	}
	if err := e.Logs.Append(ctx, tx, rep.AgentID, taskID, "info", "Submitted report: "+rep.Title); err != nil {
		return domain.Report{}, err
	}
	if err := e.Repo.TouchAgentPing(ctx, tx, rep.AgentID, now); err != nil {
		return domain.Report{}, err
	}
	if rep.Type == domain.ReportCompletion && rep.TaskID != nil && *rep.TaskID != "" {
		if err := e.Repo.SetTaskStatus(ctx, tx, *rep.TaskID, domain.TaskReview); err != nil {
			return domain.Report{}, fmt.Errorf("advance task to review: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

func (e Engine) MarkReportStatus(ctx context.Context, id, status string) error {
	if id == "" || status == "" {
		return domain.Invalid("", "missing id or status")
	}
	if err := domain.ValidReportStatus(status); err != nil {
		return err
	}
	return e.Repo.SetReportStatus(ctx, id, status)
}

// ListProjects returns projects with their full task lists embedded.
func (e Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	projects, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		tasks, err := e.Repo.ListTasksByProject(ctx, projects[i].ID)
		if err != nil {
			return nil, err
		}
		projects[i].Tasks = tasks
	}
	return projects, nil
}

// SyncProjects pulls the caller's repositories and upserts each as a project
// keyed "gh-<id>". Rows commit one at a time; a mid-run failure leaves the
// already-processed entries in place and reports the aggregate count.
func (e Engine) SyncProjects(ctx context.Context) (int, error) {
	if e.GitHub == nil || !e.GitHub.Configured() {
		return 0, ErrGitHubNotConfigured
	}
	repos, err := e.GitHub.ListUserRepos(ctx)
	if err != nil {
		return 0, fmt.Errorf("list repositories: %w", err)
	}
	now := e.timestamp()
	synced := 0
	for _, rp := range repos {
		full := rp.FullName
		p := domain.Project{
			ID:          fmt.Sprintf("gh-%d", rp.ID),
			Name:        rp.Name,
			Description: rp.Description,
			Status:      domain.ProjectActive,
			GitHubRepo:  &full,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.Repo.UpsertProject(ctx, p); err != nil {
			return synced, fmt.Errorf("upsert project %s: %w", p.ID, err)
		}
		synced++
	}
	return synced, nil
}

// ListSessions relays the gateway's session list.
func (e Engine) ListSessions(ctx context.Context) ([]map[string]any, error) {
	if e.Gateway == nil || !e.Gateway.Configured() {
		return nil, ErrGatewayNotConfigured
	}
	return e.Gateway.ListSessions(ctx)
}

// SendSessionMessage relays a message into a running gateway session.
func (e Engine) SendSessionMessage(ctx context.Context, sessionKey, message string) error {
	if e.Gateway == nil || !e.Gateway.Configured() {
		return ErrGatewayNotConfigured
	}
	if sessionKey == "" || message == "" {
		return domain.Invalid("", "missing session key or message")
	}
	return e.Gateway.SendMessage(ctx, sessionKey, message)
}

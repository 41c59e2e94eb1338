package domain

import "fmt"

type Agent struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status" enum:"idle,pending,working,error,terminated"`
	CurrentTask   *string `json:"current_task,omitempty"`
	Model         string  `json:"model,omitempty"`
	StartedAt     string  `json:"started_at" format:"date-time"`
	LastPing      string  `json:"last_ping" format:"date-time"`
	SessionKey    *string `json:"session_key,omitempty"`
	Metadata      *string `json:"metadata,omitempty"`
	ActiveTasks   int     `json:"active_tasks"`
	UnreadReports int     `json:"unread_reports"`
}

type Task struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Description    string  `json:"description,omitempty"`
	Status         string  `json:"status" enum:"backlog,in-progress,review,completed"`
	Priority       string  `json:"priority" enum:"critical,high,medium,low"`
	AssignedTo     *string `json:"assigned_to,omitempty"`
	AssignedName   *string `json:"assigned_name,omitempty"`
	ProjectID      *string `json:"project_id,omitempty"`
	ParentTaskID   *string `json:"parent_task_id,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	StartedAt      *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt    *string `json:"completed_at,omitempty" format:"date-time"`
	EstimatedHours *int    `json:"estimated_hours,omitempty"`
	ActualHours    *int    `json:"actual_hours,omitempty"`
	Metadata       *string `json:"metadata,omitempty"`
}

type Project struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description,omitempty"`
	Status           string  `json:"status" enum:"planning,active,completed,on-hold"`
	GitHubRepo       *string `json:"github_repo,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
	TargetCompletion *string `json:"target_completion,omitempty"`
	Metadata         *string `json:"metadata,omitempty"`
	PendingTasks     int     `json:"pending_tasks"`
	Tasks            []Task  `json:"tasks,omitempty"`
}

type Report struct {
	ID        string  `json:"id"`
	AgentID   string  `json:"agent_id"`
	AgentName *string `json:"agent_name,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	TaskTitle *string `json:"task_title,omitempty"`
	Type      string  `json:"type" enum:"progress,completion,question,error"`
	Title     string  `json:"title"`
	Content   string  `json:"content,omitempty"`
	Status    string  `json:"status" enum:"unread,read,archived"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type AgentLog struct {
	ID        int64   `json:"id"`
	AgentID   string  `json:"agent_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Level     string  `json:"level"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp" format:"date-time"`
}

// Agent statuses. "pending" marks an agent reserved locally while the remote
// spawn is still in flight.
const (
	AgentIdle       = "idle"
	AgentPending    = "pending"
	AgentWorking    = "working"
	AgentError      = "error"
	AgentTerminated = "terminated"
)

const (
	TaskBacklog    = "backlog"
	TaskInProgress = "in-progress"
	TaskReview     = "review"
	TaskCompleted  = "completed"
)

const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

const (
	ReportProgress   = "progress"
	ReportCompletion = "completion"
	ReportQuestion   = "question"
	ReportError      = "error"
)

const (
	ReportUnread   = "unread"
	ReportRead     = "read"
	ReportArchived = "archived"
)

const (
	ProjectPlanning  = "planning"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
	ProjectOnHold    = "on-hold"
)

// ValidationError marks a rejected write: a missing required field or a value
// outside the closed enumerations above.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Invalid(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

var agentStatuses = enumSet(AgentIdle, AgentPending, AgentWorking, AgentError, AgentTerminated)
var taskStatuses = enumSet(TaskBacklog, TaskInProgress, TaskReview, TaskCompleted)
var priorities = enumSet(PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow)
var reportTypes = enumSet(ReportProgress, ReportCompletion, ReportQuestion, ReportError)
var reportStatuses = enumSet(ReportUnread, ReportRead, ReportArchived)
var projectStatuses = enumSet(ProjectPlanning, ProjectActive, ProjectCompleted, ProjectOnHold)

func enumSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func validate(field, value string, set map[string]struct{}) error {
	if _, ok := set[value]; !ok {
		return Invalid(field, fmt.Sprintf("unknown value %q", value))
	}
	return nil
}

func ValidAgentStatus(s string) error   { return validate("status", s, agentStatuses) }
func ValidTaskStatus(s string) error    { return validate("status", s, taskStatuses) }
func ValidPriority(s string) error      { return validate("priority", s, priorities) }
func ValidReportType(s string) error    { return validate("type", s, reportTypes) }
func ValidReportStatus(s string) error  { return validate("status", s, reportStatuses) }
func ValidProjectStatus(s string) error { return validate("status", s, projectStatuses) }

// PriorityRank orders tasks for listing: critical first, then high, medium,
// everything else last.
func PriorityRank(p string) int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	default:
		return 4
	}
}

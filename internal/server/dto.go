package server

import (
	"missionboard/internal/domain"
)

// Request payloads

type CreateAgentRequest struct {
	Name  string `json:"name"`
	Task  string `json:"task,omitempty"`
	Model string `json:"model,omitempty"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Priority    string  `json:"priority,omitempty" enum:"critical,high,medium,low"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	ProjectID   *string `json:"project_id,omitempty"`
}

type UpdateTaskRequest struct {
	ID         string  `json:"id"`
	Status     *string `json:"status,omitempty" enum:"backlog,in-progress,review,completed"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

type CreateReportRequest struct {
	AgentID string  `json:"agent_id"`
	TaskID  *string `json:"task_id,omitempty"`
	Type    string  `json:"type" enum:"progress,completion,question,error"`
	Title   string  `json:"title"`
	Content string  `json:"content,omitempty"`
}

type UpdateReportRequest struct {
	ID     string `json:"id"`
	Status string `json:"status" enum:"unread,read,archived"`
}

type SendSessionMessageRequest struct {
	Message string `json:"message"`
}

// Response payloads

type AgentResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Status        string  `json:"status" enum:"idle,pending,working,error,terminated"`
	CurrentTask   *string `json:"current_task,omitempty"`
	Model         string  `json:"model,omitempty"`
	StartedAt     string  `json:"started_at" format:"date-time"`
	LastPing      string  `json:"last_ping" format:"date-time"`
	SessionKey    *string `json:"session_key,omitempty"`
	ActiveTasks   int     `json:"active_tasks"`
	UnreadReports int     `json:"unread_reports"`
}

type TaskResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Status       string  `json:"status" enum:"backlog,in-progress,review,completed"`
	Priority     string  `json:"priority" enum:"critical,high,medium,low"`
	AssignedTo   *string `json:"assigned_to,omitempty"`
	AssignedName *string `json:"assigned_name,omitempty"`
	ProjectID    *string `json:"project_id,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	StartedAt    *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt  *string `json:"completed_at,omitempty" format:"date-time"`
}

type ReportResponse struct {
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

type ProjectResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status" enum:"planning,active,completed,on-hold"`
	GitHubRepo   *string        `json:"github_repo,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
	PendingTasks int            `json:"pending_tasks"`
	Tasks        []TaskResponse `json:"tasks"`
}

type LogResponse struct {
	ID        int64   `json:"id"`
	AgentID   string  `json:"agent_id,omitempty"`
	TaskID    *string `json:"task_id,omitempty"`
	Level     string  `json:"level"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp" format:"date-time"`
}

// Conversion helpers

func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		ID:            a.ID,
		Name:          a.Name,
		Status:        a.Status,
		CurrentTask:   a.CurrentTask,
		Model:         a.Model,
		StartedAt:     a.StartedAt,
		LastPing:      a.LastPing,
		SessionKey:    a.SessionKey,
		ActiveTasks:   a.ActiveTasks,
		UnreadReports: a.UnreadReports,
	}
}

func mapAgents(in []domain.Agent) []AgentResponse {
	res := []AgentResponse{}
	for _, a := range in {
		res = append(res, agentResponse(a))
	}
	return res
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		AssignedTo:   t.AssignedTo,
		AssignedName: t.AssignedName,
		ProjectID:    t.ProjectID,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
	}
}

func mapTasks(in []domain.Task) []TaskResponse {
	res := []TaskResponse{}
	for _, t := range in {
		res = append(res, taskResponse(t))
	}
	return res
}

func reportResponse(r domain.Report) ReportResponse {
	return ReportResponse{
		ID:        r.ID,
		AgentID:   r.AgentID,
		AgentName: r.AgentName,
		TaskID:    r.TaskID,
		TaskTitle: r.TaskTitle,
		Type:      r.Type,
		Title:     r.Title,
		Content:   r.Content,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
}

func mapReports(in []domain.Report) []ReportResponse {
	res := []ReportResponse{}
	for _, r := range in {
		res = append(res, reportResponse(r))
	}
	return res
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Status:       p.Status,
		GitHubRepo:   p.GitHubRepo,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		PendingTasks: p.PendingTasks,
		Tasks:        mapTasks(p.Tasks),
	}
}

func mapProjects(in []domain.Project) []ProjectResponse {
	res := []ProjectResponse{}
	for _, p := range in {
		res = append(res, projectResponse(p))
	}
	return res
}

func logResponse(l domain.AgentLog) LogResponse {
	return LogResponse{
		ID:        l.ID,
		AgentID:   l.AgentID,
		TaskID:    l.TaskID,
		Level:     l.Level,
		Message:   l.Message,
		Timestamp: l.Timestamp,
	}
}

func mapLogs(in []domain.AgentLog) []LogResponse {
	res := []LogResponse{}
	for _, l := range in {
		res = append(res, logResponse(l))
	}
	return res
}

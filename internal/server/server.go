package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"missionboard/internal/domain"
	"missionboard/internal/engine"
	"missionboard/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	UI       http.Handler
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"title is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the dashboard API and, when a UI
// handler is given, the embedded web interface on everything else.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("MissionBoard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAgents(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerSync(group, cfg.Engine)
	registerLogs(group, cfg.Engine)
	registerSessions(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	if cfg.UI != nil {
		router.Handle("/*", cfg.UI)
	}
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve domain.ValidationError
	if errors.As(err, &ve) {
		var details map[string]any
		if ve.Field != "" {
			details = map[string]any{"field": ve.Field}
		}
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrGitHubNotConfigured) || errors.Is(err, engine.ErrGatewayNotConfigured) {
		return newAPIError(http.StatusServiceUnavailable, "not_configured", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "github api status"), strings.Contains(lowered, "gateway status"):
		return newAPIError(http.StatusBadGateway, "upstream_error", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "upstream_error"
	case http.StatusServiceUnavailable:
		return "not_configured"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func rawBodyMap(ctx context.Context) map[string]json.RawMessage {
	raw := bodyBytes(ctx)
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			spec, _ = json.Marshal(api.OpenAPI())
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>MissionBoard API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAgents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "List agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Agents []AgentResponse `json:"agents"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListAgents(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Agents []AgentResponse `json:"agents"`
			} `json:"body"`
		}{}
		out.Body.Agents = mapAgents(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-agent",
		Method:        http.MethodPost,
		Path:          "/agents",
		Summary:       "Spawn agent",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAgentRequest `json:"body"`
	}) (*struct {
		Body struct {
			Success bool          `json:"success"`
			Agent   AgentResponse `json:"agent"`
		} `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		a, err := e.CreateAgent(ctx, engine.AgentCreateOptions{
			Name:  input.Body.Name,
			Task:  input.Body.Task,
			Model: input.Body.Model,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool          `json:"success"`
				Agent   AgentResponse `json:"agent"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		out.Body.Agent = agentResponse(a)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "terminate-agent",
		Method:      http.MethodDelete,
		Path:        "/agents",
		Summary:     "Terminate agent",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `query:"id"`
	}) (*struct {
		Body struct {
			Success bool `json:"success"`
		} `json:"body"`
	}, error) {
		if input.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		if err := e.TerminateAgent(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool `json:"success"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		return out, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Agent  string `query:"agent"`
	}) (*struct {
		Body struct {
			Tasks []TaskResponse `json:"tasks"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, repo.TaskFilters{
			Status:     input.Status,
			AssignedTo: input.Agent,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Tasks []TaskResponse `json:"tasks"`
			} `json:"body"`
		}{}
		out.Body.Tasks = mapTasks(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body struct {
			Success bool         `json:"success"`
			Task    TaskResponse `json:"task"`
		} `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			AssignedTo:  input.Body.AssignedTo,
			ProjectID:   input.Body.ProjectID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool         `json:"success"`
				Task    TaskResponse `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		out.Body.Task = taskResponse(t)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body struct {
			Success bool         `json:"success"`
			Task    TaskResponse `json:"task"`
		} `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.TaskUpdateOptions{
			ID:     input.Body.ID,
			Status: input.Body.Status,
		}
		// "assigned_to": null clears the assignment; an absent key leaves it.
		if _, ok := rawBodyMap(ctx)["assigned_to"]; ok {
			opts.AssignSet = true
			opts.Assign = input.Body.AssignedTo
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool         `json:"success"`
				Task    TaskResponse `json:"task"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		out.Body.Task = taskResponse(t)
		return out, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Agent  string `query:"agent"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body struct {
			Reports []ReportResponse `json:"reports"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListReports(ctx, repo.ReportFilters{
			Status:  input.Status,
			AgentID: input.Agent,
			Limit:   input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Reports []ReportResponse `json:"reports"`
			} `json:"body"`
		}{}
		out.Body.Reports = mapReports(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Submit report",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateReportRequest `json:"body"`
	}) (*struct {
		Body struct {
			Success bool           `json:"success"`
			Report  ReportResponse `json:"report"`
		} `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		rep, err := e.CreateReport(ctx, engine.ReportCreateOptions{
			AgentID: input.Body.AgentID,
			TaskID:  input.Body.TaskID,
			Type:    input.Body.Type,
			Title:   input.Body.Title,
			Content: input.Body.Content,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool           `json:"success"`
				Report  ReportResponse `json:"report"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		out.Body.Report = reportResponse(rep)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-report",
		Method:      http.MethodPatch,
		Path:        "/reports",
		Summary:     "Update report status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body UpdateReportRequest `json:"body"`
	}) (*struct {
		Body struct {
			Success bool `json:"success"`
		} `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := e.MarkReportStatus(ctx, input.Body.ID, input.Body.Status); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool `json:"success"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		return out, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Projects []ProjectResponse `json:"projects"`
		} `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Projects []ProjectResponse `json:"projects"`
			} `json:"body"`
		}{}
		out.Body.Projects = mapProjects(items)
		return out, nil
	})
}

func registerSync(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-github",
		Method:      http.MethodPost,
		Path:        "/sync-github",
		Summary:     "Sync projects from GitHub",
		Errors: []int{
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Success bool `json:"success"`
			Synced  int  `json:"synced"`
		} `json:"body"`
	}, error) {
		n, err := e.SyncProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool `json:"success"`
				Synced  int  `json:"synced"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		out.Body.Synced = n
		return out, nil
	})
}

func registerLogs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "List agent logs",
	}, func(ctx context.Context, input *struct {
		Agent string `query:"agent"`
		Limit int    `query:"limit" default:"100"`
	}) (*struct {
		Body struct {
			Logs []LogResponse `json:"logs"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListAgentLogs(ctx, repo.LogFilters{
			AgentID: input.Agent,
			Limit:   input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Logs []LogResponse `json:"logs"`
			} `json:"body"`
		}{}
		out.Body.Logs = mapLogs(items)
		return out, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List gateway sessions",
		Errors: []int{
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Sessions []map[string]any `json:"sessions"`
		} `json:"body"`
	}, error) {
		items, err := e.ListSessions(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []map[string]any{}
		}
		out := &struct {
			Body struct {
				Sessions []map[string]any `json:"sessions"`
			} `json:"body"`
		}{}
		out.Body.Sessions = items
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-session-message",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_key}/send",
		Summary:     "Send a message into a session",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		SessionKey string                    `path:"session_key"`
		Body       SendSessionMessageRequest `json:"body"`
	}) (*struct {
		Body struct {
			Success bool `json:"success"`
		} `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := e.SendSessionMessage(ctx, input.SessionKey, input.Body.Message); err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Success bool `json:"success"`
			} `json:"body"`
		}{}
		out.Body.Success = true
		return out, nil
	})
}

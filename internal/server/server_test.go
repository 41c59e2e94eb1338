package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"missionboard/internal/config"
	"missionboard/internal/db"
	"missionboard/internal/engine"
	"missionboard/internal/github"
	"missionboard/internal/migrate"
	"missionboard/web"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, configure func(e *engine.Engine)) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(workspace)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	if configure != nil {
		configure(&e)
	}
	handler, err := New(Config{Engine: e, BasePath: "/api", UI: web.Handler()})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAgentLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/agents", map[string]any{
		"name": "Bot-1",
		"task": "Fix bug #42",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create agent status %d: %s", res.StatusCode, data)
	}
	var created struct {
		Success bool          `json:"success"`
		Agent   AgentResponse `json:"agent"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !created.Success || created.Agent.Status != "working" {
		t.Fatalf("agent = %+v, want success working", created)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks?status=in-progress", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, data)
	}
	var tasks struct {
		Tasks []TaskResponse `json:"tasks"`
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].Title != "Fix bug #42" {
		t.Fatalf("tasks = %+v, want the initial task", tasks.Tasks)
	}
	taskID := tasks.Tasks[0].ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/reports", map[string]any{
		"agent_id": created.Agent.ID,
		"task_id":  taskID,
		"type":     "completion",
		"title":    "Fixed bug #42",
		"content":  "patch applied",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create report status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks?status=review", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list review tasks status %d: %s", res.StatusCode, data)
	}
	_ = json.Unmarshal(data, &tasks)
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].ID != taskID {
		t.Fatalf("completion report should move task to review, got %+v", tasks.Tasks)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/agents?id="+created.Agent.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("terminate status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/agents", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list agents status %d: %s", res.StatusCode, data)
	}
	var agents struct {
		Agents []AgentResponse `json:"agents"`
	}
	_ = json.Unmarshal(data, &agents)
	if len(agents.Agents) != 1 || agents.Agents[0].Status != "terminated" {
		t.Fatalf("agents = %+v, want one terminated", agents.Agents)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks?status=review", nil)
	tasks.Tasks = nil
	_ = json.Unmarshal(data, &tasks)
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].AssignedTo != nil {
		t.Fatalf("open task should be unassigned after terminate, got %+v", tasks.Tasks)
	}
}

func TestTaskPriorityOrdering(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	for _, tc := range []struct{ title, priority string }{
		{"low job", "low"},
		{"critical job", "critical"},
		{"high job", "high"},
		{"medium job", "medium"},
	} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
			"title":    tc.title,
			"priority": tc.priority,
		})
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %s status %d: %s", tc.title, res.StatusCode, data)
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, data)
	}
	var tasks struct {
		Tasks []TaskResponse `json:"tasks"`
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var got []string
	for _, task := range tasks.Tasks {
		got = append(got, task.Priority)
	}
	want := []string{"critical", "high", "medium", "low"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestListFiltersByAgent(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/agents", map[string]any{
		"name": "Bot-1",
		"task": "Fix bug #42",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create agent status %d: %s", res.StatusCode, data)
	}
	var created struct {
		Agent AgentResponse `json:"agent"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title": "loose end",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks?agent="+created.Agent.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, data)
	}
	var tasks struct {
		Tasks []TaskResponse `json:"tasks"`
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].Title != "Fix bug #42" {
		t.Fatalf("agent filter returned %+v, want only the agent's task", tasks.Tasks)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/reports", map[string]any{
		"agent_id": created.Agent.ID,
		"type":     "progress",
		"title":    "Halfway",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create report status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/reports?agent="+created.Agent.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list reports status %d: %s", res.StatusCode, data)
	}
	var reports struct {
		Reports []ReportResponse `json:"reports"`
	}
	if err := json.Unmarshal(data, &reports); err != nil {
		t.Fatalf("unmarshal reports: %v", err)
	}
	if len(reports.Reports) != 1 || reports.Reports[0].AgentID != created.Agent.ID {
		t.Fatalf("reports = %+v, want the agent's report", reports.Reports)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/reports?agent=agent-nope", nil)
	_ = json.Unmarshal(data, &reports)
	if len(reports.Reports) != 0 {
		t.Fatalf("reports for unknown agent = %+v, want none", reports.Reports)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/logs?agent="+created.Agent.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list logs status %d: %s", res.StatusCode, data)
	}
	var logs struct {
		Logs []LogResponse `json:"logs"`
	}
	if err := json.Unmarshal(data, &logs); err != nil {
		t.Fatalf("unmarshal logs: %v", err)
	}
	if len(logs.Logs) == 0 {
		t.Fatal("expected the agent's log trail")
	}
	for _, l := range logs.Logs {
		if l.AgentID != created.Agent.ID {
			t.Fatalf("log %+v belongs to another agent", l)
		}
	}
}

func TestTaskOrderingWithinPriority(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := newTestServer(t, func(e *engine.Engine) {
		e.Now = func() time.Time { return current }
	})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":    "older",
		"priority": "medium",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create older status %d: %s", res.StatusCode, data)
	}
	current = current.Add(time.Minute)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"title":    "newer",
		"priority": "medium",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create newer status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/tasks", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, data)
	}
	var tasks struct {
		Tasks []TaskResponse `json:"tasks"`
	}
	if err := json.Unmarshal(data, &tasks); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(tasks.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks.Tasks))
	}
	if tasks.Tasks[0].Title != "newer" || tasks.Tasks[1].Title != "older" {
		t.Fatalf("order = [%s %s], want newest first within a priority", tasks.Tasks[0].Title, tasks.Tasks[1].Title)
	}
}

func TestValidationErrorsUseEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/tasks", map[string]any{
		"description": "no title",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400: %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "bad_request" {
		t.Fatalf("code = %q, want bad_request", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/agents?id=agent-nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404: %s", res.StatusCode, data)
	}
}

func TestSyncGitHubEndpoint(t *testing.T) {
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/repos" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"id": 1, "name": "alpha", "description": "first", "full_name": "me/alpha"},
			{"id": 2, "name": "beta", "description": "second", "full_name": "me/beta"}
		]`)
	}))
	defer fake.Close()

	srv := newTestServer(t, func(e *engine.Engine) {
		gh := github.New("test-token")
		gh.BaseURL = fake.URL
		e.GitHub = gh
	})
	client := srv.Client()

	for i := 0; i < 2; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/sync-github", nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("sync %d status %d: %s", i, res.StatusCode, data)
		}
		var out struct {
			Success bool `json:"success"`
			Synced  int  `json:"synced"`
		}
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !out.Success || out.Synced != 2 {
			t.Fatalf("sync %d = %+v, want 2 synced", i, out)
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/projects", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list projects status %d: %s", res.StatusCode, data)
	}
	var projects struct {
		Projects []ProjectResponse `json:"projects"`
	}
	if err := json.Unmarshal(data, &projects); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(projects.Projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects.Projects))
	}
	for _, p := range projects.Projects {
		if !strings.HasPrefix(p.ID, "gh-") || p.Status != "active" {
			t.Fatalf("project = %+v, want gh- prefixed active", p)
		}
	}
}

func TestSyncGitHubWithoutToken(t *testing.T) {
	srv := newTestServer(t, func(e *engine.Engine) {
		e.GitHub = github.New("")
	})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/sync-github", nil)
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503: %s", res.StatusCode, data)
	}
}

func TestHealthAndUI(t *testing.T) {
	srv := newTestServer(t, nil)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
	var health map[string]string
	if err := json.Unmarshal(data, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health["status"] != "ok" {
		t.Fatalf("health = %v", health)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ui status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "MissionBoard") {
		t.Fatal("expected dashboard markup at /")
	}
}

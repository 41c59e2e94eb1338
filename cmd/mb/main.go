package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missionboard/internal/config"
	"missionboard/internal/db"
	"missionboard/internal/engine"
	"missionboard/internal/gateway"
	"missionboard/internal/github"
	"missionboard/internal/migrate"
	"missionboard/internal/repo"
	"missionboard/internal/server"
	"missionboard/web"
)

var rootCmd = &cobra.Command{
	Use:   "mb",
	Short: "MissionBoard CLI",
	Long: `MissionBoard tracks AI agents and the work they do.
Core concepts:
- Workspace: your .missionboard directory holding the SQLite database.
- Agents: workers with a lifecycle (idle, pending, working, error, terminated).
  Spawning with an initial task can start a remote session through the gateway.
- Tasks: work items on a kanban flow backlog -> in-progress -> review -> completed,
  ordered by priority (critical, high, medium, low).
- Reports: agent write-ups (progress, completion, question, error); a completion
  report tied to a task moves that task to review.
- Projects: grouping for tasks, synced from GitHub repositories with 'mb project sync'.
- Logs: append-only trail of what each agent did, view with 'mb agent logs'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("MISSIONBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(serveCmd())
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{Use: "agent", Short: "Manage agents"}
	agent.AddCommand(agentListCmd())
	agent.AddCommand(agentSpawnCmd())
	agent.AddCommand(agentTerminateCmd())
	agent.AddCommand(agentLogsCmd())
	return agent
}

func agentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				agents, err := e.Repo.ListAgents(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Tasks", "Unread", "Last ping"})
				for _, a := range agents {
					tw.AppendRow(table.Row{a.ID, a.Name, a.Status, a.ActiveTasks, a.UnreadReports, a.LastPing})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func agentSpawnCmd() *cobra.Command {
	var opts engine.AgentCreateOptions
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAgent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "agent name")
	cmd.Flags().StringVar(&opts.Task, "task", "", "initial task title (optional)")
	cmd.Flags().StringVar(&opts.Model, "model", "", "model identifier")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func agentTerminateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate <id>",
		Short: "Terminate an agent and unassign its open tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.TerminateAgent(ctx, args[0])
			})
		},
	}
	return cmd
}

func agentLogsCmd() *cobra.Command {
	var agentID string
	var n int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show agent logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				logs, err := e.Repo.ListAgentLogs(ctx, repo.LogFilters{AgentID: agentID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				for _, l := range logs {
					fmt.Printf("[%s] %s %s: %s\n", l.Timestamp, l.Level, l.AgentID, l.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id filter")
	cmd.Flags().IntVar(&n, "n", 50, "number of entries")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskUpdateCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee"})
				for _, t := range tasks {
					assignee := ""
					if t.AssignedName != nil {
						assignee = *t.AssignedName
					} else if t.AssignedTo != nil {
						assignee = *t.AssignedTo
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assignee", "", "assignee filter")
	return cmd
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var assignee, project string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if assignee != "" {
				opts.AssignedTo = &assignee
			}
			if project != "" {
				opts.ProjectID = &project
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (critical, high, medium, low)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "agent id")
	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var status, assignee string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0]}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("assignee") {
				opts.AssignSet = true
				if assignee != "" {
					opts.Assign = &assignee
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (backlog, in-progress, review, completed)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "agent id (empty to unassign)")
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Manage reports"}
	report.AddCommand(reportListCmd())
	report.AddCommand(reportCreateCmd())
	report.AddCommand(reportMarkCmd())
	return report
}

func reportListCmd() *cobra.Command {
	var f repo.ReportFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reports, err := e.Repo.ListReports(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reports)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Agent", "Type", "Title", "Status", "Created"})
				for _, r := range reports {
					agent := r.AgentID
					if r.AgentName != nil {
						agent = *r.AgentName
					}
					tw.AppendRow(table.Row{r.ID, agent, r.Type, r.Title, r.Status, r.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter (unread, read, archived)")
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent id filter")
	cmd.Flags().IntVar(&f.Limit, "n", 50, "number of reports")
	return cmd
}

func reportCreateCmd() *cobra.Command {
	var opts engine.ReportCreateOptions
	var taskID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a report for an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID != "" {
				opts.TaskID = &taskID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.CreateReport(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(rep)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&opts.Type, "type", "progress", "type (progress, completion, question, error)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Content, "content", "", "content")
	cmd.Flags().StringVar(&taskID, "task", "", "related task id")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func reportMarkCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "mark <id>",
		Short: "Set report status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.MarkReportStatus(ctx, args[0], status)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "read", "status (unread, read, archived)")
	return cmd
}

func projectCmd() *cobra.Command {
	project := &cobra.Command{Use: "project", Short: "Manage projects"}
	project.AddCommand(projectListCmd())
	project.AddCommand(projectSyncCmd())
	return project
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projects, err := e.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(projects)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Open tasks", "Repo"})
				for _, p := range projects {
					repoName := ""
					if p.GitHubRepo != nil {
						repoName = *p.GitHubRepo
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.PendingTasks, repoName})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync projects from GitHub repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SyncProjects(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Synced %d repositories\n", n)
				return nil
			})
		},
	}
	return cmd
}

func sessionCmd() *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Inspect gateway sessions"}
	session.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List gateway sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sessions, err := e.ListSessions(ctx)
				if err != nil {
					return err
				}
				return printJSON(sessions)
			})
		},
	})
	var message string
	send := &cobra.Command{
		Use:   "send <session-key>",
		Short: "Send a message into a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.SendSessionMessage(ctx, args[0], message)
			})
		},
	}
	send.Flags().StringVar(&message, "message", "", "message text")
	_ = send.MarkFlagRequired("message")
	session.AddCommand(send)
	return session
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Listen = addr
			}
			if basePath != "" {
				cfg.BasePath = basePath
			}
			e := buildEngine(conn, cfg)
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: cfg.BasePath,
				UI:       web.Handler(),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Listen, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving MissionBoard on http://%s (API at %s, Swagger UI at /docs)\n", cfg.Listen, cfg.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides config)")
	return cmd
}

// --- helpers ---

func buildEngine(conn *sql.DB, cfg *config.Config) engine.Engine {
	e := engine.New(conn, cfg)
	githubToken := cfg.GitHub.Token
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		githubToken = v
	}
	gh := github.New(githubToken)
	if cfg.GitHub.APIBase != "" {
		gh.BaseURL = cfg.GitHub.APIBase
	}
	e.GitHub = gh
	gwURL := cfg.Gateway.URL
	if v := os.Getenv("MISSIONBOARD_GATEWAY_URL"); v != "" {
		gwURL = v
	}
	gwToken := cfg.Gateway.Token
	if v := os.Getenv("MISSIONBOARD_GATEWAY_TOKEN"); v != "" {
		gwToken = v
	}
	e.Gateway = gateway.New(gwURL, gwToken)
	return e
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, buildEngine(conn, cfg))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

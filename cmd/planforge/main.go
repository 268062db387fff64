package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"planforge/internal/app"
	"planforge/internal/config"
	"planforge/internal/domain"
	"planforge/internal/engine"
	"planforge/internal/logging"
	"planforge/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "planforge",
	Short: "Planforge CLI",
	Long: `Planforge drafts test plans for JIRA tickets with an LLM.
It caches fetched tickets, extracts section structure from uploaded PDF
templates, and keeps a history of generated plans in a local .planforge
workspace database.`,
}

func main() {
	cobra.OnInitialize(func() { config.Init(rootCmd) })
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, error)")
	_ = viper.BindPFlag(config.KeyWorkspace, rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(logCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = config.ListenAddr()
			}
			if !cmd.Flags().Changed("base-path") {
				basePath = config.BasePath()
			}
			log := logging.New(config.LogLevel())
			ac, err := app.Open(config.Workspace(), log)
			if err != nil {
				return err
			}
			defer ac.Close()
			handler, err := server.New(server.Config{Engine: ac.Engine, BasePath: basePath})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), ac.Engine, config.WebhookURLs(), log)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Planforge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3001", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

func ticketCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "ticket",
		Short: "Fetch and browse JIRA tickets",
	}
	t.AddCommand(ticketFetchCmd())
	t.AddCommand(ticketSearchCmd())
	t.AddCommand(ticketRecentCmd())
	t.AddCommand(ticketProjectsCmd())
	return t
}

func ticketFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <key>",
		Short: "Fetch a ticket and cache it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.FetchTicket(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func ticketSearchCmd() *cobra.Command {
	var query string
	var max int
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search tickets by free text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tickets, err := e.SearchTickets(ctx, query, max)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tickets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Summary", "Status"})
				for _, t := range tickets {
					tw.AppendRow(table.Row{t.Key, t.Summary, t.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "search text (empty lists newest)")
	cmd.Flags().IntVar(&max, "max-results", 10, "maximum results")
	return cmd
}

func ticketRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Recently fetched tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tickets, err := e.RecentTickets(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tickets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Summary", "Accessed"})
				for _, t := range tickets {
					tw.AppendRow(table.Row{t.TicketKey, t.Summary, t.AccessedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "number of tickets")
	return cmd
}

func ticketProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects visible to the configured user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				projects, err := e.TrackerProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(projects)
			})
		},
	}
	return cmd
}

func templateCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "template",
		Short: "Manage PDF test plan templates",
	}
	t.AddCommand(templateUploadCmd())
	t.AddCommand(templateListCmd())
	t.AddCommand(templateShowCmd())
	return t
}

func templateUploadCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a PDF template",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tpl, err := e.SaveTemplate(ctx, data, filePath)
				if err != nil {
					return err
				}
				return printJSONOrTable(tpl)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to PDF file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func templateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				templates, err := e.ListTemplates(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(templates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Uploaded"})
				for _, t := range templates {
					tw.AppendRow(table.Row{t.ID, t.Name, t.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func templateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a template with its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tpl, err := e.GetTemplate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(tpl)
			})
		},
	}
	return cmd
}

func planCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "plan",
		Short: "Generate and browse test plans",
	}
	p.AddCommand(planGenerateCmd())
	p.AddCommand(planHistoryCmd())
	return p
}

func planGenerateCmd() *cobra.Command {
	var templateID, provider, model string
	var quiet bool
	cmd := &cobra.Command{
		Use:   "generate <ticket-key>",
		Short: "Generate a test plan, streaming output to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req := engine.GeneratePlanRequest{
					TicketKey:  args[0],
					TemplateID: templateID,
					Provider:   provider,
					Model:      model,
				}
				if !quiet && !viper.GetBool("json") {
					req.OnChunk = func(delta string) { fmt.Print(delta) }
				}
				plan, err := e.GeneratePlan(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plan)
				}
				fmt.Printf("\n\nPlan %s (%s/%s, %d chunks, %dms)\n",
					plan.ID, plan.Provider, plan.ModelUsed, plan.TokensUsed, plan.GenerationTimeMs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&templateID, "template", "", "template id")
	cmd.Flags().StringVar(&provider, "provider", "", "llm provider (groq, ollama)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress streamed output")
	return cmd
}

func planHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Recently generated plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				plans, err := e.History(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(plans)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Ticket", "Provider", "Model", "Created"})
				for _, p := range plans {
					tw.AppendRow(table.Row{p.ID, p.TicketKey, p.Provider, p.ModelUsed, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of plans")
	return cmd
}

// settingsFile is the YAML import/export shape. Secrets exported here are
// masked; re-importing a masked value keeps the stored secret semantics of
// the API (the literal value is written as given).
type settingsFile struct {
	Jira domain.JiraSettings `yaml:"jira"`
	LLM  domain.LLMSettings  `yaml:"llm"`
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "settings",
		Short: "Inspect and manage stored settings",
	}
	s.AddCommand(settingsShowCmd())
	s.AddCommand(settingsExportCmd())
	s.AddCommand(settingsImportCmd())
	s.AddCommand(settingsTestJiraCmd())
	return s
}

func settingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show settings with masked secrets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				js, err := e.JiraSettings(ctx)
				if err != nil {
					return err
				}
				ls, err := e.LLMSettings(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(settingsFile{Jira: js, LLM: ls})
			})
		},
	}
	return cmd
}

func settingsExportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export settings to YAML (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				js, err := e.JiraSettings(ctx)
				if err != nil {
					return err
				}
				ls, err := e.LLMSettings(ctx)
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(settingsFile{Jira: js, LLM: ls})
				if err != nil {
					return err
				}
				if filePath == "" {
					fmt.Print(string(data))
					return nil
				}
				return os.WriteFile(filePath, data, 0o600)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "output path (stdout when empty)")
	return cmd
}

func settingsImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import settings from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var sf settingsFile
			if err := yaml.Unmarshal(data, &sf); err != nil {
				return fmt.Errorf("parse settings: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SaveJiraSettings(ctx, sf.Jira); err != nil {
					return err
				}
				if sf.LLM.Provider != "" {
					if err := e.SaveLLMSettings(ctx, sf.LLM); err != nil {
						return err
					}
				}
				fmt.Println("settings imported")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML settings")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func settingsTestJiraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-jira",
		Short: "Verify the stored JIRA credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				user, err := e.TestJira(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("connected as %s\n", user)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	ac, err := app.Open(config.Workspace(), logging.New(config.LogLevel()))
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac.Engine)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

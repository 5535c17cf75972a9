package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"curabot/internal/automation"
	"curabot/internal/billing"
	"curabot/internal/config"
	"curabot/internal/db"
	"curabot/internal/ingest"
	"curabot/internal/logger"
	"curabot/internal/migrate"
	"curabot/internal/repo"
	"curabot/internal/server"
	"curabot/internal/voice"
)

var rootCmd = &cobra.Command{
	Use:   "curabot",
	Short: "CuraBot backend",
	Long: `CuraBot manages medication reminders for elderly patients and tracks
web-automation projects reconciled live from an automation service's event
stream. The serve command exposes the HTTP API; the project and patient
commands inspect the local store.`,
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
	viper.SetEnvPrefix("CURABOT")
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
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(patientCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			jwtSecret := os.Getenv("CURABOT_JWT_SECRET")
			if jwtSecret == "" {
				return fmt.Errorf("CURABOT_JWT_SECRET is required for bearer auth")
			}
			log := logger.New()
			r := repo.Repo{DB: conn}
			ing := ingest.Service{Repo: r, Log: log}
			watchCtx, cancelWatchers := context.WithCancel(context.Background())
			defer cancelWatchers()
			srvCfg := server.Config{
				Repo:           r,
				Ingest:         ing,
				Automation:     automation.NewClient(cfg.Automation.BaseURL, cfg.Automation.APIKey),
				Voice:          voice.NewClient(cfg.Voice.BaseURL, cfg.Voice.APIKey, cfg.Voice.PhoneNumberID),
				Log:            log,
				BasePath:       basePath,
				ScreenshotsDir: cfg.Screenshots.Dir,
				WatchCtx:       watchCtx,
				Auth: server.AuthConfig{
					JWTSecret:     jwtSecret,
					ServiceAPIKey: cfg.Automation.APIKey,
				},
			}
			if cfg.Billing.SecretKey != "" {
				srvCfg.Billing = billing.New(cfg.Billing.SecretKey, cfg.Billing.WebhookSecret,
					cfg.Billing.SuccessURL, cfg.Billing.CancelURL, r, log)
				srvCfg.BillingEnabled = true
			}
			handler, err := server.New(srvCfg)
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				cancelWatchers()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Infof("serving CuraBot API on http://%s%s", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a caregiver's projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ForUser(userID).ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "URL", "Status", "Analyses", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.URL, p.Status, len(p.Analyses), p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func projectShowCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.ForUser(userID).GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func patientCmd() *cobra.Command {
	pat := &cobra.Command{Use: "patient", Short: "Inspect patients"}
	pat.AddCommand(patientListCmd())
	return pat
}

func patientListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a caregiver's patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ForUser(userID).ListPatients(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Phone", "Age", "Status", "Medications"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Phone, p.Age, p.Status, len(p.Medications)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// --- helpers ---

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

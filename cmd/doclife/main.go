package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"doclife/internal/app"
	"doclife/internal/db"
	"doclife/internal/domain"
	"doclife/internal/engine/auth"
	"doclife/internal/migrate"
	"doclife/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "doclife",
	Short: "doclife CLI",
	Long: `doclife runs the lifecycle of partnership documents: agreements, programme
documents, assurance engagements, monitoring visits and action points.
- Workspace: a directory holding doclife.yml (optional) and .doclife/doclife.db.
- Config: roles, the field permission matrix, court rules, per-status requirements,
  transition role overrides, notifications and webhooks. Without doclife.yml the
  built-in default is used ('doclife config default' prints it).
- Entities move between statuses only through named transitions; every write is
  checked field by field against the matrix and recorded in the activity log.
- Notifications are queued in the outbox and relayed to webhooks by 'doclife serve'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configureLogging()
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("DOCLIFE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user id")
	rootCmd.PersistentFlags().String("groups", "", "comma separated groups of the actor (default: from the users table)")
	rootCmd.PersistentFlags().Bool("allow-unknown-users", false, "let actors missing from the users table act with no groups")
	rootCmd.PersistentFlags().String("log-level", "info", "log level")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	for _, name := range []string{"workspace", "json", "actor", "groups", "allow-unknown-users", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(matrixCmd())
	rootCmd.AddCommand(transitionsCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(entityCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(outboxCmd())
}

func configureLogging() {
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	if viper.GetBool("log-json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and the webhook relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				authCfg := server.AuthConfig{
					JWTSecret: viper.GetString("jwt-secret"),
					DevLogin:  devLogin,
					Logger:    a.Logger.WithField("component", "auth"),
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("DOCLIFE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{App: a, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				relay := server.NewRelay(a.Repo, a.Config.Webhooks, a.Logger.WithField("component", "relay"))
				go relay.Run(ctx)

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Logger.WithFields(logrus.Fields{
					"addr":      addr,
					"base_path": basePath,
					"webhooks":  relay.Enabled(),
				}).Info("serving doclife API (OpenAPI at /openapi.json, Swagger UI at /docs)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login (development only)")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			v, err := migrate.Migrate(cmd.Context(), conn, logrus.WithField("component", "migrate"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"schema_version": v})
			}
			fmt.Printf("schema version %d\n", v)
			return nil
		},
	}
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Open(ctx, app.Options{
		Workspace:         viper.GetString("workspace"),
		AllowUnknownUsers: viper.GetBool("allow-unknown-users"),
		Logger:            logrus.NewEntry(logrus.StandardLogger()),
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// currentActor resolves --actor/--groups against the users table.
func currentActor(ctx context.Context, a *app.App) (domain.User, error) {
	id := viper.GetString("actor")
	if id == "" {
		return domain.User{}, fmt.Errorf("--actor (or DOCLIFE_ACTOR) is required")
	}
	return a.Auth.Resolve(ctx, domain.User{ID: id, Groups: auth.ParseGroups(viper.GetString("groups"))})
}

// readFields parses a JSON object from an inline string or a file ("-" is stdin).
func readFields(inline, file string) (map[string]json.RawMessage, error) {
	var data []byte
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --data or --file")
	case inline != "":
		data = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return map[string]json.RawMessage{}, nil
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("fields must be a JSON object: %w", err)
	}
	return out, nil
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

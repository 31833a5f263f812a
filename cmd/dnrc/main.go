package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haukened/dnrc/internal/dnr/common/log"
	"github.com/haukened/dnrc/internal/dnr/config"
	"github.com/haukened/dnrc/internal/dnr/domain"
	"github.com/haukened/dnrc/internal/dnr/gateways/metrics"
	"github.com/haukened/dnrc/internal/dnr/repos/filterlist/parsers"
	"github.com/haukened/dnrc/internal/dnr/services/controller"
)

const appName = "dnrc"

var (
	version   = "0.1.0-dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// cli carries the configuration loaded before any subcommand runs.
type cli struct {
	configPath string
	cfg        *config.AppConfig
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Compile filter lists into declarative network rules and manage the overlay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.LoadFile(c.configPath)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
				return fmt.Errorf("logging configuration error: %w", err)
			}
			c.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("DNRC_CONFIG"), "YAML config file (environment variables override it)")

	root.AddCommand(c.newCompileCmd())
	root.AddCommand(c.newToggleCmd("enable", "Install the overlay rule and the bulk rule set", domain.ToggleOn))
	root.AddCommand(c.newToggleCmd("disable", "Remove every installed rule", domain.ToggleOff))
	root.AddCommand(c.newRefreshCmd())
	root.AddCommand(c.newStatusCmd())
	root.AddCommand(c.newCheckCmd())
	root.AddCommand(c.newRunCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func (c *cli) newCompileCmd() *cobra.Command {
	var out string
	var withOverlay bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Fetch and compile the configured sources into a static rule file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sources, fetchErr := newFetcher(c.cfg).Fetch(ctx, c.cfg.Sources)
			if err := ctx.Err(); err != nil {
				return err
			}
			if fetchErr != nil {
				if len(sources) == 0 && len(c.cfg.Sources) > 0 {
					return fetchErr
				}
				log.Warn(map[string]any{"error": fetchErr}, "Some sources could not be fetched")
			}

			sets := parsers.ParseAll(sources, log.Component("parser"))
			rules, stats := newCompiler(c.cfg).Compile(sets)
			if withOverlay {
				rules = append([]domain.CompiledRule{domain.NewOverlayRule(c.cfg.RedirectURL)}, rules...)
			}
			data, err := domain.EncodeRules(rules)
			if err != nil {
				return fmt.Errorf("encode rules: %w", err)
			}
			data = append(data, '\n')

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rules (%d directives, %d duplicates dropped) to %s\n",
				len(rules), stats.Directives, stats.Duplicates, out)
			return err
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the rule set to this file instead of stdout")
	cmd.Flags().BoolVar(&withOverlay, "overlay", false, "Include the overlay redirect rule (id 1)")
	return cmd
}

func (c *cli) newToggleCmd(use, short string, state domain.ToggleState) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *Application) error {
				out, err := app.controller.Toggle(cmd.Context(), state)
				printOutcome(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
}

func (c *cli) newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-apply the persisted toggle, re-fetching sources when enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *Application) error {
				out, err := app.controller.Refresh(cmd.Context())
				printOutcome(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the toggle and the installed rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *Application) error {
				ctx := cmd.Context()
				cur, err := app.toggles.Get(ctx)
				if err != nil {
					return err
				}
				rules, err := app.engine.Rules(ctx)
				if err != nil {
					return err
				}
				st := app.engine.Stats()
				overlayInstalled := len(rules) > 0 && rules[0].IsOverlay()

				w := cmd.OutOrStdout()
				changed := "never"
				if !cur.ChangedAt.IsZero() {
					changed = cur.ChangedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "toggle:     %s (changed %s)\n", cur.State, changed)
				fmt.Fprintf(w, "overlay:    %s\n", installedWord(overlayInstalled))
				fmt.Fprintf(w, "rules:      %d\n", len(rules))
				fmt.Fprintf(w, "generation: %d\n", st.Generation)
				if st.UpdatedUnix > 0 {
					fmt.Fprintf(w, "updated:    %s\n", time.Unix(st.UpdatedUnix, 0).Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}

func (c *cli) newCheckCmd() *cobra.Command {
	var resourceType string

	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Evaluate a request URL against the installed rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := domain.ParseResourceType(resourceType)
			if err != nil {
				return err
			}
			return c.withApp(func(app *Application) error {
				d, err := app.matcher.Evaluate(cmd.Context(), args[0], rt)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				switch {
				case d.IsRedirected():
					_, err = fmt.Fprintf(w, "redirect %s (rule %d, filter %q)\n", d.Action.Redirect.URL, d.RuleID, d.Filter)
				case d.IsBlocked():
					_, err = fmt.Fprintf(w, "block (rule %d, filter %q)\n", d.RuleID, d.Filter)
				default:
					_, err = fmt.Fprintln(w, "allow")
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&resourceType, "type", "t", string(domain.ResourceMainFrame), "Resource type of the request")
	return cmd
}

func (c *cli) newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Apply toggle changes until stopped (SIGUSR1 on, SIGUSR2 off, SIGHUP refresh)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(app *Application) error {
				ctx := cmd.Context()
				log.Info(map[string]any{
					"version": version,
					"env":     c.cfg.Env,
					"db_path": c.cfg.DBPath,
					"sources": len(c.cfg.Sources),
				}, "Starting dnrc driver")

				metricsSrv := startMetricsServer(c.cfg, app)
				defer func() {
					if metricsSrv != nil {
						_ = metricsSrv.Shutdown(context.Background())
					}
				}()

				sigs := make(chan os.Signal, 4)
				signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
				defer signal.Stop(sigs)
				go handleSignals(ctx, sigs, app)

				err := app.controller.Watch(ctx)
				if errors.Is(err, context.Canceled) {
					log.Info(nil, "dnrc driver stopped")
					return nil
				}
				return err
			})
		},
	}
}

// startMetricsServer serves /metrics when metrics_listen is set and attaches
// the collectors to the controller.
func startMetricsServer(cfg *config.AppConfig, app *Application) *http.Server {
	if cfg.MetricsListen == "" {
		return nil
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	app.controller.SetObserver(m)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler(reg))

	srv := &http.Server{Addr: cfg.MetricsListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(map[string]any{"addr": cfg.MetricsListen, "error": err}, "Metrics server failed")
		}
	}()
	log.Info(map[string]any{"addr": cfg.MetricsListen}, "Metrics server started")
	return srv
}

// handleSignals maps process signals onto toggle writes. The watcher picks
// the writes up; SIGHUP refreshes directly.
func handleSignals(ctx context.Context, sigs <-chan os.Signal, app *Application) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			log.Info(map[string]any{"signal": sig.String()}, "Signal received")
			var err error
			switch sig {
			case syscall.SIGUSR1:
				_, err = app.toggles.Set(ctx, domain.ToggleOn)
			case syscall.SIGUSR2:
				_, err = app.toggles.Set(ctx, domain.ToggleOff)
			case syscall.SIGHUP:
				_, err = app.controller.Refresh(ctx)
			}
			if err != nil && !errors.Is(err, domain.ErrSuperseded) {
				log.Error(map[string]any{"signal": sig.String(), "error": err}, "Signal handling failed")
			}
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "version=%s commit=%s buildDate=%s\n", version, commit, buildDate)
		},
	}
}

// withApp builds the application for one command and closes it afterwards.
func (c *cli) withApp(fn func(app *Application) error) error {
	app, err := buildApplication(c.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			log.Warn(map[string]any{"error": cerr}, "Error closing database")
		}
	}()
	return fn(app)
}

func printOutcome(w io.Writer, out controller.Outcome) {
	fmt.Fprintf(w, "toggle: %s, mode: %s\n", out.State, out.Mode)
	if b := out.Bulk; b != nil && b.Installed {
		fmt.Fprintf(w, "bulk: %d/%d sources, %d rules installed in %s\n",
			b.Fetched, b.Sources, b.Compile.Rules, b.Duration.Round(time.Millisecond))
	}
	if b := out.Bulk; b != nil && b.FetchErr != nil {
		fmt.Fprintf(w, "warning: %d sources failed: %v\n", b.FailedSources(), b.FetchErr)
	}
}

func installedWord(ok bool) string {
	if ok {
		return "installed"
	}
	return "absent"
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/digest/internal/api"
	"github.com/joescharf/digest/internal/daemon"
	"github.com/joescharf/digest/internal/digest"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/scheduler"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/slackbot"
	"github.com/joescharf/digest/internal/tracker"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 10 * time.Second
)

var serveDaemon bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server, Slack bot and scheduled digests",
	Long: `Start the HTTP API. When Slack and LLM credentials are configured the
Socket Mode bot and any configured digest schedules run alongside it.

By default it listens on port 8080. Use --port to change it and --daemon
to run in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveDaemon {
			return serveStartRun()
		}
		return serveRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "Run in the background")
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// serveConfig is the validated server configuration.
type serveConfig struct {
	Port       int    `validate:"min=1,max=65535"`
	Timezone   string `validate:"required"`
	BotToken   string
	AppToken   string `validate:"omitempty,startswith=xapp-"`
	IncludeOwn bool
	Schedules  []scheduler.DigestSchedule `validate:"dive"`
}

func loadServeConfig() (*serveConfig, error) {
	cfg := &serveConfig{
		Port:       viper.GetInt("port"),
		Timezone:   viper.GetString("timezone"),
		BotToken:   viper.GetString("slack.bot_token"),
		AppToken:   viper.GetString("slack.app_token"),
		IncludeOwn: viper.GetBool("slack.include_own_messages"),
	}
	if err := viper.UnmarshalKey("schedules", &cfg.Schedules); err != nil {
		return nil, fmt.Errorf("parse schedules: %w", err)
	}
	for i := range cfg.Schedules {
		if cfg.Schedules[i].User == "" {
			cfg.Schedules[i].User = viper.GetString("user")
		}
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "digest-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "digest-serve.log")
}

func serveRun() error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	pf := pidFile()
	if pid, running := pf.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("digest server already running (pid %d)", pid)
	}
	if err := pf.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer pf.Release()

	s, err := getStore()
	if err != nil {
		return err
	}
	defer s.Close()

	t := tracker.New(s, nil)
	pm := projects.NewManager(s)
	sm := settings.NewManager(s)

	// Digests need Slack and an LLM; without them the API still serves
	// issues, projects and settings.
	svc, client, err := buildDigestService(t, pm, sm)
	if err != nil {
		logger.Warn("digests disabled", "error", err)
	}

	var bot *slackbot.Bot
	switch {
	case svc == nil:
	case cfg.AppToken == "":
		logger.Info("slack bot disabled: slack.app_token not set")
	default:
		h := slackbot.NewHandler(svc, t, pm, sm, client, cfg.IncludeOwn)
		bot, err = slackbot.NewBot(slackbot.BotConfig{BotToken: cfg.BotToken, AppToken: cfg.AppToken, Debug: verbose}, h, logger)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewServer(s, t, pm, sm, svc).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("api server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if bot != nil {
		g.Go(func() error {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("slack bot: %w", err)
			}
			return nil
		})
	}
	switch {
	case len(cfg.Schedules) == 0:
	case svc == nil:
		logger.Warn("schedules ignored: digests are not configured", "count", len(cfg.Schedules))
	default:
		if err := startScheduler(ctx, g, loc, svc, client, cfg.Schedules); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
	}

	ui.Success("Serving API at http://localhost:%d/api/v1", cfg.Port)
	return g.Wait()
}

func startScheduler(ctx context.Context, g *errgroup.Group, loc *time.Location, svc *digest.Service, poster scheduler.Poster, schedules []scheduler.DigestSchedule) error {
	sched, err := scheduler.New(loc, logger)
	if err != nil {
		return err
	}
	if err := sched.RegisterDigests(ctx, svc, poster, schedules); err != nil {
		_ = sched.Stop()
		return err
	}
	for _, j := range sched.Jobs() {
		logger.Info("digest scheduled", "job", j.Name, "next_run", j.NextRun)
	}
	g.Go(func() error {
		<-ctx.Done()
		return sched.Stop()
	})
	return nil
}

// serveStartRun re-executes the binary as a detached `serve` process.
func serveStartRun() error {
	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return fmt.Errorf("digest server: %w", err)
	}
	if _, err := loadServeConfig(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}
	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	if dryRun {
		ui.DryRunMsg("Would start %s %v, logging to %s", exe, args, serveLogPath())
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(serveLogPath()), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := daemonCommand(exe, args, logFile)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Started digest server (pid %d) on port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	if dryRun {
		if pid, running := pidFile().IsRunning(); running {
			ui.DryRunMsg("Would stop digest server (pid %d)", pid)
			return nil
		}
	}
	pid, err := pidFile().Stop(stopTimeout, sigTERM(), sigKILL())
	if errors.Is(err, daemon.ErrNotRunning) {
		return fmt.Errorf("digest server is not running")
	}
	if err != nil {
		return err
	}
	ui.Success("Stopped digest server (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("digest server is not running")
		return nil
	}
	ui.Success("digest server is running (pid %d) on port %d", pid, viper.GetInt("port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/digest/internal/logging"
	"github.com/joescharf/digest/internal/output"
	"github.com/joescharf/digest/internal/projects"
	"github.com/joescharf/digest/internal/settings"
	"github.com/joescharf/digest/internal/store"
	"github.com/joescharf/digest/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store

	verbose bool
	dryRun  bool
	userRef string
)

var rootCmd = &cobra.Command{
	Use:   "digest",
	Short: "Chat digests and issue tracking from team channels",
	Long: `digest summarizes team chat channels and tracks the technical issues
people report in them.

It filters channel history by keyword, hands the result to an LLM for a
short bullet digest, and turns messages that describe bugs, failures or
regressions into tracked issues with a status lifecycle.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().StringVarP(&userRef, "user", "u", "", "User partition to operate on (default: config 'user')")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/digest/config.yaml)")
}

func initConfig() {
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// slack.bot_token is read from DIGEST_SLACK_BOT_TOKEN.
	viper.SetEnvPrefix("DIGEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("store.backend", store.BackendJSON)
	viper.SetDefault("store.path", filepath.Join(dir, "digest.json"))
	viper.SetDefault("db_path", filepath.Join(dir, "digest.db"))
	viper.SetDefault("user", "local")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("slack.bot_token", "")
	viper.SetDefault("slack.app_token", "")
	viper.SetDefault("slack.history_limit", 200)
	viper.SetDefault("slack.requests_per_second", 1.0)
	viper.SetDefault("slack.include_own_messages", false)
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.model", "gpt-4.1-2025-04-14")
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("port", 8080)
	viper.SetDefault("timezone", "Local")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := viper.GetString("log_level")
	if verbose {
		level = "debug"
	}
	logger = logging.New(level, viper.GetString("log_format") == "json", os.Stderr)

	// The store opens lazily so config/version run without one.
}

// commandContext returns the root command's context, which is only set once
// cobra has started executing.
func commandContext() context.Context {
	if ctx := rootCmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	backend := viper.GetString("store.backend")
	path := viper.GetString("store.path")
	if backend == store.BackendSQLite {
		path = viper.GetString("db_path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s, err := store.Open(commandContext(), backend, path)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	dataStore = s
	return dataStore, nil
}

// currentUser returns the --user flag or the configured default user.
func currentUser() string {
	if userRef != "" {
		return userRef
	}
	return viper.GetString("user")
}

func getTracker() (*tracker.Tracker, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return tracker.New(s, nil), nil
}

func getProjects() (*projects.Manager, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return projects.NewManager(s), nil
}

func getSettings() (*settings.Manager, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return settings.NewManager(s), nil
}

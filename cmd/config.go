package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "digest"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage digest configuration.

Running bare 'digest config' is the same as 'digest config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# digest configuration
# See: digest config show (for effective values and sources)

# State/data directory (default: ~/.config/digest)
# state_dir: {{ .StateDir }}

# Default user partition for CLI commands
user: "{{ .User }}"

# Logging: debug, info, warn, error / text, json
log_level: "{{ .LogLevel }}"
log_format: "{{ .LogFormat }}"

# Storage backend: json (single file) or sqlite
store:
  backend: "{{ .StoreBackend }}"
  path: "{{ .StorePath }}"
# SQLite database path, used when store.backend is sqlite
# db_path: {{ .DBPath }}

# Slack (tokens are better set via DIGEST_SLACK_BOT_TOKEN / DIGEST_SLACK_APP_TOKEN)
slack:
  bot_token: ""
  app_token: ""
  history_limit: {{ .HistoryLimit }}
  requests_per_second: {{ .RequestsPerSecond }}
  include_own_messages: false

# Summarizer: openai or anthropic
llm:
  provider: "{{ .LLMProvider }}"
  max_retries: {{ .MaxRetries }}

openai:
  api_key: ""
  model: "{{ .OpenAIModel }}"
  # base_url: https://api.openai.com/v1

anthropic:
  api_key: ""
  model: "{{ .AnthropicModel }}"

# digest serve
port: {{ .Port }}
timezone: "{{ .Timezone }}"

# Recurring digests posted by 'digest serve'
# schedules:
#   - name: morning-hardware
#     user: U012ABC
#     project: rover          # or channels: [hardware, firmware]
#     hours: 24
#     cron: "0 9 * * 1-5"
#     post_channel: standup
`

type configTemplateData struct {
	StateDir          string
	User              string
	LogLevel          string
	LogFormat         string
	StoreBackend      string
	StorePath         string
	DBPath            string
	HistoryLimit      int
	RequestsPerSecond float64
	LLMProvider       string
	MaxRetries        int
	OpenAIModel       string
	AnthropicModel    string
	Port              int
	Timezone          string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:          viper.GetString("state_dir"),
		User:              viper.GetString("user"),
		LogLevel:          viper.GetString("log_level"),
		LogFormat:         viper.GetString("log_format"),
		StoreBackend:      viper.GetString("store.backend"),
		StorePath:         viper.GetString("store.path"),
		DBPath:            viper.GetString("db_path"),
		HistoryLimit:      viper.GetInt("slack.history_limit"),
		RequestsPerSecond: viper.GetFloat64("slack.requests_per_second"),
		LLMProvider:       viper.GetString("llm.provider"),
		MaxRetries:        viper.GetInt("llm.max_retries"),
		OpenAIModel:       viper.GetString("openai.model"),
		AnthropicModel:    viper.GetString("anthropic.model"),
		Port:              viper.GetInt("port"),
		Timezone:          viper.GetString("timezone"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "DIGEST_STATE_DIR"},
	{Key: "user", EnvVar: "DIGEST_USER"},
	{Key: "log_level", EnvVar: "DIGEST_LOG_LEVEL"},
	{Key: "log_format", EnvVar: "DIGEST_LOG_FORMAT"},
	{Key: "store.backend", EnvVar: "DIGEST_STORE_BACKEND"},
	{Key: "store.path", EnvVar: "DIGEST_STORE_PATH"},
	{Key: "db_path", EnvVar: "DIGEST_DB_PATH"},
	{Key: "slack.bot_token", EnvVar: "DIGEST_SLACK_BOT_TOKEN", Secret: true},
	{Key: "slack.app_token", EnvVar: "DIGEST_SLACK_APP_TOKEN", Secret: true},
	{Key: "slack.history_limit", EnvVar: "DIGEST_SLACK_HISTORY_LIMIT"},
	{Key: "slack.requests_per_second", EnvVar: "DIGEST_SLACK_REQUESTS_PER_SECOND"},
	{Key: "slack.include_own_messages", EnvVar: "DIGEST_SLACK_INCLUDE_OWN_MESSAGES"},
	{Key: "llm.provider", EnvVar: "DIGEST_LLM_PROVIDER"},
	{Key: "llm.max_retries", EnvVar: "DIGEST_LLM_MAX_RETRIES"},
	{Key: "openai.api_key", EnvVar: "DIGEST_OPENAI_API_KEY", Secret: true},
	{Key: "openai.model", EnvVar: "DIGEST_OPENAI_MODEL"},
	{Key: "openai.base_url", EnvVar: "DIGEST_OPENAI_BASE_URL"},
	{Key: "anthropic.api_key", EnvVar: "DIGEST_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "DIGEST_ANTHROPIC_MODEL"},
	{Key: "port", EnvVar: "DIGEST_PORT"},
	{Key: "timezone", EnvVar: "DIGEST_TIMEZONE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		cfgPath = used
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret {
			val = maskSecret(viper.GetString(k.Key))
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	if list, ok := viper.Get("schedules").([]any); ok && len(list) > 0 {
		fmt.Fprintf(ui.Out, "  %-28s %d configured  (file)\n", "schedules", len(list))
	}

	return nil
}

// maskSecret keeps the last four characters of a credential.
func maskSecret(s string) string {
	switch {
	case s == "":
		return `""`
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'digest config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}

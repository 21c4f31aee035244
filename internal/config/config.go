// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/linkrunner/internal/locator"
)

// Config holds the entire application configuration. It is loaded once per
// run and treated as read-only afterwards.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Account     AccountConfig     `mapstructure:"account" yaml:"account"`
	Billing     BillingConfig     `mapstructure:"billing" yaml:"billing"`
	Integration IntegrationConfig `mapstructure:"integration" yaml:"integration"`
	Targets     TargetsConfig     `mapstructure:"targets" yaml:"targets"`
	Waits       WaitsConfig       `mapstructure:"waits" yaml:"waits"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Session     SessionConfig     `mapstructure:"session" yaml:"session"`
	Executor    ExecutorConfig    `mapstructure:"executor" yaml:"executor"`
	Artifacts   ArtifactsConfig   `mapstructure:"artifacts" yaml:"artifacts"`
	// Locators overrides catalog entries by dotted key. Viper splits dotted
	// keys into nested maps, so it is decoded by LocatorsFromViper instead.
	Locators map[string][]string `mapstructure:"-" yaml:"locators"`
}

// LoggerConfig defines all the settings for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// AccountConfig is the identity typed into the onboarding form.
type AccountConfig struct {
	Email    string `mapstructure:"email" yaml:"email"`
	Password string `mapstructure:"password" yaml:"password"`
	FullName string `mapstructure:"full_name" yaml:"full_name"`
	Company  string `mapstructure:"company" yaml:"company"`
}

// BillingConfig holds the card used for the free trial. An empty card number
// skips billing entirely.
type BillingConfig struct {
	CardNumber     string `mapstructure:"card_number" yaml:"card_number"`
	CardExpiry     string `mapstructure:"card_expiry" yaml:"card_expiry"`
	CardCVC        string `mapstructure:"card_cvc" yaml:"card_cvc"`
	CardholderName string `mapstructure:"cardholder_name" yaml:"cardholder_name"`
	Country        string `mapstructure:"country" yaml:"country"`
	PostalCode     string `mapstructure:"postal_code" yaml:"postal_code"`
}

// IntegrationConfig configures what the pipeline hands to the external tool.
type IntegrationConfig struct {
	// APIToken is an optional third-party API key filled into the external tool.
	APIToken    string `mapstructure:"api_token" yaml:"api_token"`
	WebhookName string `mapstructure:"webhook_name" yaml:"webhook_name"`
}

// TargetsConfig lists the pages the pipeline visits.
type TargetsConfig struct {
	AgentURL    string `mapstructure:"agent_url" yaml:"agent_url"`
	TemplateURL string `mapstructure:"template_url" yaml:"template_url"`
	WorkflowURL string `mapstructure:"workflow_url" yaml:"workflow_url"`
}

// WaitsConfig holds the settle delays between steps and the fixed wait.
type WaitsConfig struct {
	Short  time.Duration `mapstructure:"short" yaml:"short"`
	Medium time.Duration `mapstructure:"medium" yaml:"medium"`
	Long   time.Duration `mapstructure:"long" yaml:"long"`
	Total  time.Duration `mapstructure:"total" yaml:"total"`
}

// BrowserConfig controls the browser process.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ViewportWidth     int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// RemoteURL attaches to a running browser's DevTools endpoint, e.g.
	// http://127.0.0.1:9222 or a ws:// debugger URL.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
}

// SessionConfig controls the persisted login state and the manual login flow.
type SessionConfig struct {
	Path               string        `mapstructure:"path" yaml:"path"`
	ManualLoginTimeout time.Duration `mapstructure:"manual_login_timeout" yaml:"manual_login_timeout"`
	ManualLoginPoll    time.Duration `mapstructure:"manual_login_poll" yaml:"manual_login_poll"`
	LoggedInMarkers    []string      `mapstructure:"logged_in_markers" yaml:"logged_in_markers"`
	LoggedOutMarkers   []string      `mapstructure:"logged_out_markers" yaml:"logged_out_markers"`
}

// ExecutorConfig tunes the action executor.
type ExecutorConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CandidateTimeout time.Duration `mapstructure:"candidate_timeout" yaml:"candidate_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	TypeDelay        time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
	BlockSignatures  []string      `mapstructure:"block_signatures" yaml:"block_signatures"`
}

// ArtifactsConfig controls post-mortem capture.
type ArtifactsConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	Screenshots  bool   `mapstructure:"screenshots" yaml:"screenshots"`
	DOMSnapshots bool   `mapstructure:"dom_snapshots" yaml:"dom_snapshots"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "linkrunner")
	v.SetDefault("logger.log_file", "linkrunner.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Account --
	// Empty defaults register every key, so AutomaticEnv can supply it.
	v.SetDefault("account.email", "")
	v.SetDefault("account.password", "")
	v.SetDefault("account.full_name", "")
	v.SetDefault("account.company", "")

	// -- Billing --
	v.SetDefault("billing.card_number", "")
	v.SetDefault("billing.card_expiry", "")
	v.SetDefault("billing.card_cvc", "")
	v.SetDefault("billing.cardholder_name", "")
	v.SetDefault("billing.country", "")
	v.SetDefault("billing.postal_code", "")

	// -- Integration --
	v.SetDefault("integration.api_token", "")
	v.SetDefault("integration.webhook_name", "Lead Webhook")

	// -- Targets --
	v.SetDefault("targets.agent_url", "https://chat.lindy.ai")
	v.SetDefault("targets.template_url", "https://chat.lindy.ai/home/?templateId=68e5dd479651421f3052eaa6")
	v.SetDefault("targets.workflow_url", "https://n8n-lead-processing-jjde.bolt.host/")

	// -- Waits --
	v.SetDefault("waits.short", "5s")
	v.SetDefault("waits.medium", "10s")
	v.SetDefault("waits.long", "20s")
	v.SetDefault("waits.total", "10m")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.viewport_width", 1366)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.navigation_timeout", "60s")

	// -- Session --
	v.SetDefault("session.path", "~/.linkrunner/session.json")
	v.SetDefault("session.manual_login_timeout", "5m")
	v.SetDefault("session.manual_login_poll", "5s")
	v.SetDefault("session.logged_in_markers", []string{"workspace", "/home"})
	v.SetDefault("session.logged_out_markers", []string{"login", "signin", "signup"})

	// -- Executor --
	v.SetDefault("executor.timeout", "10s")
	v.SetDefault("executor.candidate_timeout", "2s")
	v.SetDefault("executor.poll_interval", "250ms")
	v.SetDefault("executor.action_timeout", "15s")
	v.SetDefault("executor.type_delay", "0s")
	v.SetDefault("executor.block_signatures", []string{
		`this browser or app may not be secure`,
		`couldn.t sign you in`,
		`browser may not be secure`,
	})

	// -- Artifacts --
	v.SetDefault("artifacts.dir", "artifacts")
	v.SetDefault("artifacts.screenshots", true)
	v.SetDefault("artifacts.dom_snapshots", true)
}

// NewConfigFromViper unmarshals and validates a configuration from v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("account.password", "LINKRUNNER_ACCOUNT_PASSWORD")
	_ = v.BindEnv("billing.card_number", "LINKRUNNER_BILLING_CARD_NUMBER")
	_ = v.BindEnv("billing.card_cvc", "LINKRUNNER_BILLING_CARD_CVC")
	_ = v.BindEnv("integration.api_token", "LINKRUNNER_INTEGRATION_API_TOKEN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	locators, err := LocatorsFromViper(v)
	if err != nil {
		return nil, err
	}
	cfg.Locators = locators

	// The API token historically lived in GITHUB_TOKEN.
	if cfg.Integration.APIToken == "" {
		cfg.Integration.APIToken = os.Getenv("GITHUB_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"targets.agent_url":    c.Targets.AgentURL,
		"targets.template_url": c.Targets.TemplateURL,
		"targets.workflow_url": c.Targets.WorkflowURL,
	} {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if c.Waits.Short < 0 || c.Waits.Medium < 0 || c.Waits.Long < 0 || c.Waits.Total < 0 {
		return fmt.Errorf("waits must not be negative")
	}
	if c.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be a positive duration")
	}
	if c.Browser.RemoteURL != "" {
		if u, err := url.Parse(c.Browser.RemoteURL); err != nil || u.Host == "" ||
			(u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("browser.remote_url must be a ws(s) or http(s) DevTools URL, got %q", c.Browser.RemoteURL)
		}
	}
	if c.Billing.CardNumber != "" && (c.Billing.CardExpiry == "" || c.Billing.CardCVC == "") {
		return fmt.Errorf("billing.card_expiry and billing.card_cvc are required when billing.card_number is set")
	}
	for key, list := range c.Locators {
		if len(list) == 0 {
			return fmt.Errorf("locators.%s must list at least one candidate", key)
		}
		if _, err := locator.ParseAll(list); err != nil {
			return fmt.Errorf("locators.%s: %w", key, err)
		}
	}
	return nil
}

// Validate checks the executor budgets.
func (e *ExecutorConfig) Validate() error {
	if e.Timeout <= 0 || e.CandidateTimeout <= 0 || e.PollInterval <= 0 || e.ActionTimeout <= 0 {
		return fmt.Errorf("timeout, candidate_timeout, poll_interval and action_timeout must be positive durations")
	}
	if e.TypeDelay < 0 {
		return fmt.Errorf("type_delay must not be negative")
	}
	return nil
}

// Validate checks the session settings.
func (s *SessionConfig) Validate() error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if s.ManualLoginTimeout <= 0 || s.ManualLoginPoll <= 0 {
		return fmt.Errorf("manual_login_timeout and manual_login_poll must be positive durations")
	}
	if len(s.LoggedInMarkers) == 0 {
		return fmt.Errorf("logged_in_markers must not be empty")
	}
	return nil
}

// LocatorsFromViper reads the locators section back into dotted keys, so
// `template.add` may be written either flat or nested in YAML.
func LocatorsFromViper(v *viper.Viper) (map[string][]string, error) {
	raw := v.Get("locators")
	if raw == nil {
		return nil, nil
	}
	out := make(map[string][]string)
	if err := flattenLocators("", raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenLocators(prefix string, raw any, out map[string][]string) error {
	switch val := raw.(type) {
	case map[string]any:
		for k, child := range val {
			key := strings.ToLower(k)
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flattenLocators(key, child, out); err != nil {
				return err
			}
		}
	case []string:
		out[prefix] = append([]string(nil), val...)
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("locators.%s: candidates must be strings, got %T", prefix, item)
			}
			list = append(list, s)
		}
		out[prefix] = list
	case string:
		out[prefix] = []string{val}
	default:
		return fmt.Errorf("locators.%s: unsupported value of type %T", prefix, raw)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must be an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("has no host: %q", raw)
	}
	return nil
}

// File: internal/config/config_test.go
package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/linkrunner/internal/executor"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "linkrunner", cfg.Logger.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.Waits.Short)
	assert.Equal(t, 10*time.Second, cfg.Waits.Medium)
	assert.Equal(t, 20*time.Second, cfg.Waits.Long)
	assert.Equal(t, 10*time.Minute, cfg.Waits.Total)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, "https://chat.lindy.ai", cfg.Targets.AgentURL)
	assert.Equal(t, []string{"workspace", "/home"}, cfg.Session.LoggedInMarkers)
	assert.Equal(t, 250*time.Millisecond, cfg.Executor.PollInterval)
	assert.True(t, cfg.Artifacts.Screenshots)

	require.NoError(t, cfg.Validate(), "defaults must validate on their own")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing agent url", func(c *Config) { c.Targets.AgentURL = "" }, "targets.agent_url"},
		{"non http template url", func(c *Config) { c.Targets.TemplateURL = "ftp://x.test/" }, "targets.template_url"},
		{"zero executor timeout", func(c *Config) { c.Executor.Timeout = 0 }, "executor configuration invalid"},
		{"negative type delay", func(c *Config) { c.Executor.TypeDelay = -time.Second }, "type_delay"},
		{"empty session path", func(c *Config) { c.Session.Path = " " }, "session configuration invalid"},
		{"no login markers", func(c *Config) { c.Session.LoggedInMarkers = nil }, "logged_in_markers"},
		{"negative wait", func(c *Config) { c.Waits.Total = -1 }, "waits"},
		{"card without cvc", func(c *Config) { c.Billing.CardNumber = "4242424242424242" }, "billing.card_expiry"},
		{"empty locator override", func(c *Config) { c.Locators = map[string][]string{"template.add": {}} }, "locators.template.add"},
		{"bad locator override", func(c *Config) { c.Locators = map[string][]string{"deploy.button": {"button:exact-text=Deploy"}} }, "locators.deploy.button"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	t.Run("complete billing", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Billing = BillingConfig{CardNumber: "4242424242424242", CardExpiry: "12/30", CardCVC: "123"}
		cfg.Locators = map[string][]string{"template.add": {"button:exact-text='Add' @y>150"}}
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
account:
  email: "ops@example.test"
waits:
  total: 90s
executor:
  timeout: 3s
locators:
  template.add:
    - "button:exact-text='Add' @y>150"
  deploy:
    button: "button:contains-text='Deploy'"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "ops@example.test", cfg.Account.Email)
		assert.Equal(t, 90*time.Second, cfg.Waits.Total)
		assert.Equal(t, 3*time.Second, cfg.Executor.Timeout)
		// A default survives alongside the file values.
		assert.Equal(t, "info", cfg.Logger.Level)
		assert.Equal(t, map[string][]string{
			"template.add":  {"button:exact-text='Add' @y>150"},
			"deploy.button": {"button:contains-text='Deploy'"},
		}, cfg.Locators)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("executor.poll_interval", "0s")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "poll_interval")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
account:
  password: "from-file"
`)))

		t.Setenv("LINKRUNNER_ACCOUNT_PASSWORD", "from-env")
		t.Setenv("LINKRUNNER_INTEGRATION_API_TOKEN", "tok_env")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Account.Password, "env overrides the file")
		assert.Equal(t, "tok_env", cfg.Integration.APIToken)
	})

	t.Run("Every key can come from the environment", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix("LINKRUNNER")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		env := map[string]string{
			"LINKRUNNER_ACCOUNT_EMAIL":           "ops@example.test",
			"LINKRUNNER_ACCOUNT_FULL_NAME":       "Ada Ops",
			"LINKRUNNER_ACCOUNT_COMPANY":         "Acme",
			"LINKRUNNER_BILLING_CARD_NUMBER":     "4242424242424242",
			"LINKRUNNER_BILLING_CARD_EXPIRY":     "12/30",
			"LINKRUNNER_BILLING_CARD_CVC":        "123",
			"LINKRUNNER_BILLING_CARDHOLDER_NAME": "Ada Ops",
			"LINKRUNNER_BILLING_COUNTRY":         "DE",
			"LINKRUNNER_BILLING_POSTAL_CODE":     "10115",
			"LINKRUNNER_BROWSER_EXEC_PATH":       "/usr/bin/chromium",
			"LINKRUNNER_BROWSER_ARGS":            "--lang=en-US,--mute-audio",
			"LINKRUNNER_BROWSER_REMOTE_URL":      "http://127.0.0.1:9222",
		}
		for k, val := range env {
			t.Setenv(k, val)
		}

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, AccountConfig{Email: "ops@example.test", FullName: "Ada Ops", Company: "Acme"}, cfg.Account)
		assert.Equal(t, BillingConfig{
			CardNumber: "4242424242424242", CardExpiry: "12/30", CardCVC: "123",
			CardholderName: "Ada Ops", Country: "DE", PostalCode: "10115",
		}, cfg.Billing)
		assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecPath)
		assert.Equal(t, []string{"--lang=en-US", "--mute-audio"}, cfg.Browser.Args)
		assert.Equal(t, "http://127.0.0.1:9222", cfg.BrowserOptions(true).RemoteURL)
	})

	t.Run("Invalid remote URL", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("browser.remote_url", "ftp://127.0.0.1:9222")
		_, err := NewConfigFromViper(v)
		assert.ErrorContains(t, err, "browser.remote_url")
	})

	t.Run("Legacy token variable", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		t.Setenv("LINKRUNNER_INTEGRATION_API_TOKEN", "")
		t.Setenv("GITHUB_TOKEN", "ghp_legacy")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "ghp_legacy", cfg.Integration.APIToken)
	})

	t.Run("Malformed locator section", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("locators", map[string]any{"template.add": 42})
		_, err := NewConfigFromViper(v)
		assert.ErrorContains(t, err, "unsupported value")
	})
}

func TestConversions(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Executor.BlockSignatures = nil
	cfg.Browser.ExecPath = "/usr/bin/chromium"
	cfg.Browser.ViewportWidth = 0

	eo := cfg.ExecutorOptions()
	assert.Equal(t, executor.DefaultBlockSignatures, eo.BlockSignatures)
	assert.Equal(t, cfg.Executor.Timeout, eo.Timeout)

	bo := cfg.BrowserOptions(false)
	assert.False(t, bo.Headless)
	assert.Equal(t, "/usr/bin/chromium", bo.ExecPath)
	assert.Equal(t, 1366, bo.ViewportWidth, "zero keeps the default")

	ao := cfg.ArtifactOptions()
	assert.Equal(t, "artifacts", ao.Dir)
	assert.True(t, ao.DOMSnapshots)
}

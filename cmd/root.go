// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/config"
	"github.com/xkilldash9x/linkrunner/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// NewRootCommand builds a fresh command tree with its own viper instance, so
// flags from one invocation never leak into the next.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "linkrunner",
		Short:         "Linkrunner provisions an agent from a template and hands its webhook to an external tool.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "linkrunner"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting linkrunner.", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./linkrunner.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newRunCmd(v))
	cmd.AddCommand(newLoginCmd(v))
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the command tree under ctx and logs the failure, if any. The
// caller maps the returned error to an exit code.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	logger := observability.GetLogger()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Warn("Command cancelled.")
	default:
		logger.Error("Command execution failed.", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file, if any, and enables LINKRUNNER_*
// environment overrides.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("linkrunner")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("LINKRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment only.
	}
	return nil
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration was not loaded")
	}
	return cfg, nil
}

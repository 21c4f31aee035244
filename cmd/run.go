// File: cmd/run.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/artifacts"
	"github.com/xkilldash9x/linkrunner/internal/config"
	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/observability"
	"github.com/xkilldash9x/linkrunner/internal/pipeline"
	"github.com/xkilldash9x/linkrunner/internal/session"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full provisioning pipeline",
		Long: `Run signs in with the saved session (or a manual login), fills onboarding and
billing, installs the template, configures the webhook, deploys, hands the
webhook to the external tool, waits, and finally deletes the account.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			recorder, err := artifacts.NewRecorder(logger, cfg.ArtifactOptions())
			if err != nil {
				return err
			}
			rc, err := newRunContext(cmd, cfg, logger)
			if err != nil {
				return err
			}
			rc.Interactive = interactive

			runner, err := pipeline.New(rc, recorder, pipeline.DefaultStages())
			if err != nil {
				return err
			}
			defer runner.Close(ctx)

			report, err := runner.Run(ctx)
			printReport(cmd.OutOrStdout(), report, recorder.Dir())
			return err
		},
	}

	cmd.Flags().Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	cmd.Flags().String("artifacts-dir", "", "Directory for screenshots, DOM snapshots and the run report. (Overrides config/env)")
	cmd.Flags().BoolVar(&interactive, "interactive", true, "Fall back to a manual login in a visible browser when no valid session exists.")
	_ = v.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
	_ = v.BindPFlag("artifacts.dir", cmd.Flags().Lookup("artifacts-dir"))
	return cmd
}

// newRunContext wires the collaborators shared by run and login.
func newRunContext(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*pipeline.RunContext, error) {
	store, err := session.NewStore(logger, cfg.Session.Path)
	if err != nil {
		return nil, err
	}
	exec, err := executor.New(logger, cfg.ExecutorOptions())
	if err != nil {
		return nil, err
	}
	catalog, err := pipeline.NewCatalog(cfg.Locators)
	if err != nil {
		return nil, fmt.Errorf("invalid locator overrides: %w", err)
	}
	return &pipeline.RunContext{
		Config:   cfg,
		Logger:   logger,
		Executor: exec,
		Catalog:  catalog,
		Sessions: store,
		Launcher: newLauncher(logger, cfg),
		Prompter: notePrompter{out: cmd.ErrOrStderr()},
	}, nil
}

func printReport(w io.Writer, report *pipeline.Report, dir string) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "\nRun %s: %s\n", report.RunID, report.Status)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tELAPSED\tERROR")
	for _, s := range report.Stages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Status, s.Elapsed, s.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Artifacts: %s\n", dir)
}

// File: cmd/probe.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/linkrunner/internal/executor"
	"github.com/xkilldash9x/linkrunner/internal/locator"
	"github.com/xkilldash9x/linkrunner/internal/observability"
	"github.com/xkilldash9x/linkrunner/internal/pipeline"
	"github.com/xkilldash9x/linkrunner/internal/snapshot"
)

const probeConcurrency = 4

type probeOptions struct {
	snapshots  []string
	key        string
	candidates []string
	timeout    time.Duration
}

type probeResult struct {
	path   string
	result executor.Result
	err    error
}

func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check which locator candidate resolves in saved DOM snapshots",
		Example: `  linkrunner probe --snapshot artifacts/run/01-install_template.html --key template.add
  linkrunner probe --snapshot page.html --candidate "button:exact-text='Add' @y>150"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			catalog, err := pipeline.NewCatalog(cfg.Locators)
			if err != nil {
				return fmt.Errorf("invalid locator overrides: %w", err)
			}
			logger := observability.GetLogger()
			exec, err := executor.New(logger, cfg.ExecutorOptions())
			if err != nil {
				return err
			}
			return runProbe(cmd.Context(), cmd.OutOrStdout(), logger, exec, catalog, opts)
		},
	}
	cmd.Flags().StringArrayVarP(&opts.snapshots, "snapshot", "s", nil, "Saved DOM snapshot to probe (repeatable)")
	cmd.Flags().StringVarP(&opts.key, "key", "k", "", "Catalog key whose candidates are probed, e.g. template.add")
	cmd.Flags().StringArrayVar(&opts.candidates, "candidate", nil, "Locator candidate to probe (repeatable, in priority order)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Second, "Budget per snapshot")
	_ = cmd.MarkFlagRequired("snapshot")
	cmd.MarkFlagsOneRequired("key", "candidate")
	cmd.MarkFlagsMutuallyExclusive("key", "candidate")
	return cmd
}

func runProbe(ctx context.Context, out io.Writer, logger *zap.Logger, exec *executor.Executor, catalog *pipeline.Catalog, opts *probeOptions) error {
	intent := opts.key
	var cands []locator.Candidate
	if opts.key != "" {
		if cands = catalog.Candidates(opts.key); cands == nil {
			return fmt.Errorf("unknown locator key %q", opts.key)
		}
	} else {
		var err error
		if cands, err = locator.ParseAll(opts.candidates); err != nil {
			return err
		}
		intent = "probe"
	}

	results := make([]probeResult, len(opts.snapshots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(probeConcurrency)
	for i, path := range opts.snapshots {
		g.Go(func() error {
			results[i] = probeOne(gctx, logger, exec, path, executor.Request{
				Intent:     intent,
				Candidates: cands,
				Action:     executor.ReadValue(),
				Timeout:    opts.timeout,
			})
			// A bad snapshot is reported on its own line; only cancellation stops the rest.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	missed := printProbe(out, results)
	if missed > 0 {
		return fmt.Errorf("%d of %d snapshots did not resolve %s", missed, len(results), intent)
	}
	return nil
}

func probeOne(ctx context.Context, logger *zap.Logger, exec *executor.Executor, path string, req executor.Request) probeResult {
	page, err := snapshot.Load(logger, path)
	if err != nil {
		return probeResult{path: path, result: executor.Result{Index: -1}, err: err}
	}
	res, err := exec.Execute(ctx, page, req)
	return probeResult{path: path, result: res, err: err}
}

func printProbe(w io.Writer, results []probeResult) (missed int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tSTATUS\tINDEX\tLOCATOR\tVALUE")
	for _, r := range results {
		status := r.result.Status.String()
		switch {
		case r.err != nil && !errors.Is(r.err, executor.ErrNotFound) && !errors.Is(r.err, executor.ErrBlocked):
			status = "error: " + r.err.Error()
			missed++
		case !r.result.OK():
			missed++
		}
		loc := "-"
		if r.result.Index >= 0 {
			loc = r.result.Locator.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%q\n", r.path, status, r.result.Index, loc, r.result.Value)
	}
	_ = tw.Flush()
	return missed
}

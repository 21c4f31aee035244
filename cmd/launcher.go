// File: cmd/launcher.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/linkrunner/internal/browser"
	"github.com/xkilldash9x/linkrunner/internal/config"
	"github.com/xkilldash9x/linkrunner/internal/pipeline"
	"github.com/xkilldash9x/linkrunner/internal/session"
)

// newLauncher is swapped out in tests so no command needs a real browser.
var newLauncher = func(logger *zap.Logger, cfg *config.Config) pipeline.Launcher {
	return &chromeLauncher{logger: logger, cfg: cfg}
}

type chromeLauncher struct {
	logger *zap.Logger
	cfg    *config.Config
}

func (l *chromeLauncher) Launch(ctx context.Context, headless bool, state *session.State) (pipeline.Browser, error) {
	inst, err := browser.Launch(ctx, l.logger, l.cfg.BrowserOptions(headless), state)
	if err != nil {
		return nil, err
	}
	return chromeBrowser{inst}, nil
}

// chromeBrowser narrows Page to the pipeline's interface.
type chromeBrowser struct {
	*browser.Instance
}

func (b chromeBrowser) Page() pipeline.Page { return b.Instance.Page() }

// notePrompter writes the instruction for the operator. The login itself is
// detected by polling the page, so nothing is read back.
type notePrompter struct {
	out io.Writer
}

func (p notePrompter) Prompt(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.out, "\n>>> %s\n\n", message)
	return err
}

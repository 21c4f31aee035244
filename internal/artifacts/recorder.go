// internal/artifacts/recorder.go
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source is anything that can render itself for post-mortem inspection.
type Source interface {
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Options selects what a Recorder keeps.
type Options struct {
	Dir          string
	Screenshots  bool
	DOMSnapshots bool
}

// Recorder writes a run's artifacts into a directory of its own.
type Recorder struct {
	opts   Options
	runID  string
	dir    string
	logger *zap.Logger

	mu  sync.Mutex
	seq int
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// NewRecorder creates <dir>/<timestamp>-<run id> and returns a recorder for it.
func NewRecorder(logger *zap.Logger, opts Options) (*Recorder, error) {
	base, err := homedir.Expand(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifact dir %q: %w", opts.Dir, err)
	}
	if base == "" {
		base = "artifacts"
	}
	runID := uuid.NewString()
	dir := filepath.Join(base, time.Now().UTC().Format("20060102T150405Z")+"-"+runID[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	r := &Recorder{
		opts:   opts,
		runID:  runID,
		dir:    dir,
		logger: logger.Named("artifacts").With(zap.String("run_id", runID)),
	}
	r.logger.Info("Artifact directory ready.", zap.String("dir", dir))
	return r, nil
}

// RunID identifies the run in logs and in the report.
func (r *Recorder) RunID() string { return r.runID }

// Dir is the run's artifact directory.
func (r *Recorder) Dir() string { return r.dir }

// Capture stores a screenshot and a DOM snapshot of src under name. It is best
// effort: what could be captured is kept and the failures are returned
// together. Sources without a renderer are skipped silently.
func (r *Recorder) Capture(ctx context.Context, name string, src Source) ([]string, error) {
	if r == nil || src == nil {
		return nil, nil
	}
	prefix := r.nextPrefix(name)

	var paths []string
	var errs error

	if r.opts.Screenshots {
		img, err := src.Screenshot(ctx)
		switch {
		case errors.Is(err, errors.ErrUnsupported):
		case err != nil:
			errs = multierr.Append(errs, fmt.Errorf("screenshot: %w", err))
		default:
			p, err := r.write(prefix+".png", img)
			errs = multierr.Append(errs, err)
			if err == nil {
				paths = append(paths, p)
			}
		}
	}

	if r.opts.DOMSnapshots {
		dom, err := src.HTML(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("dom snapshot: %w", err))
		} else {
			p, err := r.write(prefix+".html", []byte(dom))
			errs = multierr.Append(errs, err)
			if err == nil {
				paths = append(paths, p)
			}
		}
	}

	if errs != nil {
		r.logger.Warn("Artifact capture incomplete.", zap.String("name", name), zap.Error(errs))
	} else if len(paths) > 0 {
		r.logger.Info("Captured artifacts.", zap.String("name", name), zap.Strings("paths", paths))
	}
	return paths, errs
}

// WriteReport serializes v as report.json in the run directory.
func (r *Recorder) WriteReport(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run report: %w", err)
	}
	return r.write("report.json", data)
}

func (r *Recorder) nextPrefix(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	slug := strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if slug == "" {
		slug = "capture"
	}
	return fmt.Sprintf("%02d-%s", r.seq, slug)
}

func (r *Recorder) write(name string, data []byte) (string, error) {
	p := filepath.Join(r.dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return p, nil
}

package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	png     []byte
	shotErr error
	dom     string
	domErr  error
}

func (f fakeSource) Screenshot(context.Context) ([]byte, error) { return f.png, f.shotErr }
func (f fakeSource) HTML(context.Context) (string, error)       { return f.dom, f.domErr }

func newRecorder(t *testing.T, opts Options) *Recorder {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	r, err := NewRecorder(zaptest.NewLogger(t), opts)
	require.NoError(t, err)
	return r
}

func TestNewRecorder_CreatesRunDirectory(t *testing.T) {
	base := t.TempDir()
	r := newRecorder(t, Options{Dir: base})

	assert.Len(t, r.RunID(), 36)
	assert.Equal(t, base, filepath.Dir(r.Dir()))
	assert.True(t, strings.HasSuffix(r.Dir(), r.RunID()[:8]))
	info, err := os.Stat(r.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("writes both artifacts with a sequence prefix", func(t *testing.T) {
		r := newRecorder(t, Options{Screenshots: true, DOMSnapshots: true})
		paths, err := r.Capture(ctx, "Install Template!", fakeSource{png: []byte{0x89, 'P'}, dom: "<html></html>"})
		require.NoError(t, err)
		require.Len(t, paths, 2)
		assert.Equal(t, "01-Install_Template.png", filepath.Base(paths[0]))
		assert.Equal(t, "01-Install_Template.html", filepath.Base(paths[1]))

		dom, err := os.ReadFile(paths[1])
		require.NoError(t, err)
		assert.Equal(t, "<html></html>", string(dom))

		paths, err = r.Capture(ctx, "again", fakeSource{dom: "x"})
		require.NoError(t, err)
		assert.Equal(t, "02-again.png", filepath.Base(paths[0]))
	})

	t.Run("unsupported screenshots are skipped", func(t *testing.T) {
		r := newRecorder(t, Options{Screenshots: true, DOMSnapshots: true})
		paths, err := r.Capture(ctx, "offline", fakeSource{shotErr: errors.ErrUnsupported, dom: "<p/>"})
		require.NoError(t, err)
		require.Len(t, paths, 1)
		assert.Equal(t, ".html", filepath.Ext(paths[0]))
	})

	t.Run("failures are aggregated and partial output kept", func(t *testing.T) {
		r := newRecorder(t, Options{Screenshots: true, DOMSnapshots: true})
		paths, err := r.Capture(ctx, "broken", fakeSource{shotErr: errors.New("target closed"), dom: "<p/>"})
		assert.ErrorContains(t, err, "screenshot")
		assert.Len(t, paths, 1)
	})

	t.Run("disabled kinds are not captured", func(t *testing.T) {
		r := newRecorder(t, Options{})
		paths, err := r.Capture(ctx, "none", fakeSource{png: []byte{1}, dom: "x"})
		require.NoError(t, err)
		assert.Empty(t, paths)
	})

	t.Run("nil recorder is a no-op", func(t *testing.T) {
		var r *Recorder
		paths, err := r.Capture(ctx, "x", fakeSource{})
		assert.NoError(t, err)
		assert.Nil(t, paths)
	})
}

func TestWriteReport(t *testing.T) {
	r := newRecorder(t, Options{})
	p, err := r.WriteReport(map[string]any{"run_id": r.RunID(), "ok": true})
	require.NoError(t, err)
	assert.Equal(t, "report.json", filepath.Base(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ok": true`)
	assert.Contains(t, string(data), r.RunID())
}

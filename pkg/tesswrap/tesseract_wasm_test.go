//go:build tesseract_wasm

package tesswrap

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/danlock/gogosseract"
)

type stubRuntime struct {
	closed int
}

func (r *stubRuntime) LoadImage(ctx context.Context, img io.Reader, opts gogosseract.LoadImageOptions) error {
	return nil
}

func (r *stubRuntime) GetText(ctx context.Context, progressCB func(int32)) (string, error) {
	return "hello", nil
}

func (r *stubRuntime) Close(ctx context.Context) error {
	r.closed++
	return nil
}

// stubRuntimes makes the engine use stubs and returns every runtime started.
func stubRuntimes(t *testing.T) *[]*stubRuntime {
	t.Helper()
	started := new([]*stubRuntime)
	orig := newWasmRuntime
	newWasmRuntime = func(ctx context.Context, cfg gogosseract.Config) (wasmRuntime, error) {
		r := &stubRuntime{}
		*started = append(*started, r)
		return r, nil
	}
	t.Cleanup(func() { newWasmRuntime = orig })
	return started
}

func fakeTessdata(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "eng.traineddata"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestWasmEndClosesRuntime(t *testing.T) {
	started := stubRuntimes(t)
	e := NewEngine(nil)
	if err := e.Init(fakeTessdata(t), "eng"); err != nil {
		t.Fatal(err)
	}
	e.End()
	e.End()
	if len(*started) != 1 || (*started)[0].closed != 1 {
		t.Errorf("started %d runtimes, first closed %d times", len(*started), (*started)[0].closed)
	}
}

func TestWasmClearAdaptiveClassifierReplacesRuntime(t *testing.T) {
	started := stubRuntimes(t)
	e := NewEngine(nil)
	if err := e.Init(fakeTessdata(t), "eng"); err != nil {
		t.Fatal(err)
	}
	for range 3 {
		e.ClearAdaptiveClassifier()
	}
	e.End()
	if len(*started) != 4 {
		t.Fatalf("started %d runtimes, want 4", len(*started))
	}
	for i, r := range *started {
		if r.closed != 1 {
			t.Errorf("runtime %d closed %d times", i, r.closed)
		}
	}
}

package ocr

import (
	"log/slog"
	"testing"

	"github.com/johbar/ocrlib/internal/ocr/ocrtest"
	"github.com/johbar/ocrlib/pkg/tesswrap"
)

var errBroken = ocrtest.ErrBroken

// newTestAdapter creates an adapter using fake and a data dir holding the given packs.
// The counter reports how many engines were created.
func newTestAdapter(t *testing.T, fake *ocrtest.Engine, packs ...string) (*Adapter, *int) {
	t.Helper()
	created := new(int)
	a := New(Options{
		DataDir:      ocrtest.DataDir(t, packs...),
		TuningConfig: DefaultTuningConfig,
		NewEngine: func(*slog.Logger) tesswrap.Engine {
			*created++
			return fake
		},
	}, nil)
	return a, created
}

var grayImage = ocrtest.GrayImage

//go:build tesseract_wasm

package tesswrap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/danlock/gogosseract"
)

func init() {
	Backend = "wasm"
}

// wasmRuntime is the part of *gogosseract.Tesseract the engine uses.
type wasmRuntime interface {
	LoadImage(ctx context.Context, img io.Reader, opts gogosseract.LoadImageOptions) error
	GetText(ctx context.Context, progressCB func(int32)) (string, error)
	Close(ctx context.Context) error
}

// newWasmRuntime starts a Tesseract WASM instance.
var newWasmRuntime = func(ctx context.Context, cfg gogosseract.Config) (wasmRuntime, error) {
	return gogosseract.New(ctx, cfg)
}

// wasmEngine runs Tesseract compiled to WASM. It loads one training data file
// and reports no confidences.
type wasmEngine struct {
	log        *slog.Logger
	tess       wasmRuntime
	tessdata   string
	lang       string
	img        *Image
	rect       image.Rectangle
	recognized bool
	text       string
}

// NewEngine returns an Engine running Tesseract in a WASM runtime.
func NewEngine(log *slog.Logger) Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &wasmEngine{log: log}
}

func (e *wasmEngine) Init(tessdata, lang string) error {
	if strings.Contains(lang, "+") {
		return fmt.Errorf("%w: multiple languages", ErrUnsupported)
	}
	trainingDataFile, err := os.Open(filepath.Join(tessdata, lang+".traineddata"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	defer trainingDataFile.Close()
	cfg := gogosseract.Config{
		Language:     lang,
		TrainingData: trainingDataFile,
	}
	cfg.Stderr = io.Discard
	cfg.Stdout = io.Discard
	tess, err := newWasmRuntime(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	e.closeRuntime()
	e.tess, e.tessdata, e.lang = tess, tessdata, lang
	return nil
}

func (e *wasmEngine) ReadConfigFile(path string) error {
	return ErrUnsupported
}

func (e *wasmEngine) SetImage(img Image) error {
	if e.tess == nil {
		return ErrNotInitialized
	}
	if err := img.Validate(); err != nil {
		return err
	}
	e.Clear()
	e.img = &img
	return nil
}

func (e *wasmEngine) SetRectangle(r image.Rectangle) error {
	if e.img == nil {
		return ErrNoImage
	}
	e.rect = r
	e.recognized = false
	return nil
}

func (e *wasmEngine) UTF8Text() (string, error) {
	if e.tess == nil {
		return "", ErrNotInitialized
	}
	if e.img == nil {
		return "", ErrNoImage
	}
	if e.recognized {
		return e.text, nil
	}
	var buf bytes.Buffer
	if err := e.img.EncodePNG(&buf, e.rect); err != nil {
		return "", err
	}
	ctx := context.Background()
	if err := e.tess.LoadImage(ctx, &buf, gogosseract.LoadImageOptions{}); err != nil {
		return "", err
	}
	text, err := e.tess.GetText(ctx, func(progress int32) {})
	if err != nil {
		return "", err
	}
	e.text, e.recognized = text, true
	return text, nil
}

func (e *wasmEngine) MeanTextConf() int {
	return 0
}

func (e *wasmEngine) AllWordConfidences() []int {
	return nil
}

func (e *wasmEngine) SetVariable(name, value string) error {
	return fmt.Errorf("%w: SetVariable", ErrUnsupported)
}

func (e *wasmEngine) SetPageSegMode(mode PageSegMode) error {
	if mode == PSMAuto {
		return nil
	}
	return fmt.Errorf("%w: page segmentation mode %d", ErrUnsupported, mode)
}

func (e *wasmEngine) Clear() {
	e.img = nil
	e.rect = image.Rectangle{}
	e.recognized = false
	e.text = ""
}

// ClearAdaptiveClassifier starts a new WASM instance with the same training data.
func (e *wasmEngine) ClearAdaptiveClassifier() {
	if e.tess == nil {
		return
	}
	img, rect := e.img, e.rect
	e.closeRuntime()
	if err := e.Init(e.tessdata, e.lang); err != nil {
		e.log.Error("could not restart tesseract wasm", "err", err)
		return
	}
	e.img, e.rect, e.recognized = img, rect, false
}

func (e *wasmEngine) End() {
	e.Clear()
	e.closeRuntime()
}

// closeRuntime shuts the WASM runtime of the current instance down.
func (e *wasmEngine) closeRuntime() {
	if e.tess == nil {
		return
	}
	if err := e.tess.Close(context.Background()); err != nil {
		e.log.Warn("could not close tesseract wasm runtime", "err", err)
	}
	e.tess = nil
}

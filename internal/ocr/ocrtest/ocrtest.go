// Package ocrtest provides an in-memory engine and language data for tests.
package ocrtest

import (
	"errors"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johbar/ocrlib/pkg/tesswrap"
)

var ErrBroken = errors.New("broken engine")

// Engine records the calls made to it and recognizes a fixed text.
type Engine struct {
	InitErr error
	Text    string
	TextErr error
	Mean    int
	// Confs are returned as they are. If nil, every word gets Mean.
	Confs []int
	// Known variable names. Nil accepts every name.
	Known map[string]bool

	Vars         map[string]string
	Img          *tesswrap.Image
	Rect         image.Rectangle
	PSM          tesswrap.PageSegMode
	Configs      []string
	Inits        int
	Clears       int
	Adaptive     int
	Ends         int
	Recognitions int
}

// Factory returns a constructor of engines recognizing text with confidence mean.
func Factory(text string, mean int) func(*slog.Logger) tesswrap.Engine {
	return func(*slog.Logger) tesswrap.Engine {
		return &Engine{Text: text, Mean: mean}
	}
}

func (e *Engine) Init(tessdata, lang string) error {
	e.Inits++
	return e.InitErr
}

func (e *Engine) ReadConfigFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	e.Configs = append(e.Configs, path)
	return nil
}

func (e *Engine) SetImage(img tesswrap.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	e.Img = &img
	return nil
}

func (e *Engine) SetRectangle(r image.Rectangle) error {
	if e.Img == nil {
		return tesswrap.ErrNoImage
	}
	e.Rect = r
	return nil
}

func (e *Engine) UTF8Text() (string, error) {
	if e.Img == nil {
		return "", tesswrap.ErrNoImage
	}
	e.Recognitions++
	return e.Text, e.TextErr
}

func (e *Engine) MeanTextConf() int { return e.Mean }

func (e *Engine) AllWordConfidences() []int {
	if e.Confs != nil {
		return e.Confs
	}
	confs := make([]int, len(strings.Fields(e.Text)))
	for i := range confs {
		confs[i] = e.Mean
	}
	return confs
}

func (e *Engine) SetVariable(name, value string) error {
	if name == "" || (e.Known != nil && !e.Known[name]) {
		return tesswrap.ErrUnknownVariable
	}
	if e.Vars == nil {
		e.Vars = make(map[string]string)
	}
	e.Vars[name] = value
	return nil
}

func (e *Engine) SetPageSegMode(mode tesswrap.PageSegMode) error {
	e.PSM = mode
	return nil
}

func (e *Engine) Clear() {
	e.Clears++
	e.Img = nil
}

func (e *Engine) ClearAdaptiveClassifier() { e.Adaptive++ }

func (e *Engine) End() {
	e.Ends++
	e.Img = nil
	e.Vars = nil
}

// DataDir creates a data directory whose tessdata subdirectory holds the named files.
func DataDir(t testing.TB, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	tessdata := filepath.Join(dir, "tessdata")
	if err := os.Mkdir(tessdata, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(tessdata, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// GrayImage returns a white w*h greyscale image. The counter is incremented by Release.
func GrayImage(w, h int) (tesswrap.Image, *int) {
	released := new(int)
	pix := make([]byte, w*h)
	for i := range pix {
		pix[i] = 0xff
	}
	return tesswrap.Image{
		Pix: pix, Width: w, Height: h, BytesPerPixel: 1,
		Release: func() { *released++ },
	}, released
}

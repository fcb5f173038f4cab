//go:build tesseract_lib

package tesswrap

import (
	"errors"
	"testing"
)

type stubBaseAPI struct {
	inits    int
	ends     int
	clears   int
	images   int
	initFail bool
	vars     map[string]string
	configs  []string
}

// stubBaseAPIs makes the engine use a stub and returns it.
func stubBaseAPIs(t *testing.T) *stubBaseAPI {
	t.Helper()
	s := &stubBaseAPI{vars: make(map[string]string)}
	orig := newBaseAPI
	newBaseAPI = func() *baseAPI {
		return &baseAPI{
			init3: func(datapath, lang string) bool {
				s.inits++
				return !s.initFail
			},
			setVariable: func(name, value string) bool {
				s.vars[name] = value
				return true
			},
			readConfigFile: func(path string) { s.configs = append(s.configs, path) },
			setImageBytes:  func(data []byte) { s.images++ },
			utf8Text:       func() string { return "hello world\n" },
			meanTextConf:   func() int { return 120 },
			wordConfs:      func() []int { return []int{91, -3} },
			clear:          func() { s.clears++ },
			end:            func() { s.ends++ },
		}
	}
	t.Cleanup(func() { newBaseAPI = orig })
	return s
}

func TestLibRecognize(t *testing.T) {
	s := stubBaseAPIs(t)
	e := NewEngine(nil)
	if err := e.Init("/tessdata", "eng"); err != nil {
		t.Fatal(err)
	}
	defer e.End()
	if _, err := e.UTF8Text(); !errors.Is(err, ErrNoImage) {
		t.Errorf("got %v, want ErrNoImage", err)
	}
	img := Image{Pix: make([]byte, 16), Width: 4, Height: 4, BytesPerPixel: 1}
	if err := e.SetImage(img); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		text, err := e.UTF8Text()
		if err != nil || text != "hello world\n" {
			t.Fatalf("got %q, %v", text, err)
		}
	}
	if s.images != 1 {
		t.Errorf("image handed over %d times, want 1", s.images)
	}
	if got := e.MeanTextConf(); got != 100 {
		t.Errorf("mean = %d, want 100", got)
	}
	if got := e.AllWordConfidences(); len(got) != 2 || got[0] != 91 || got[1] != 0 {
		t.Errorf("word confidences = %v", got)
	}
}

func TestLibInitFails(t *testing.T) {
	s := stubBaseAPIs(t)
	s.initFail = true
	e := NewEngine(nil)
	if err := e.Init("/tessdata", "eng"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
	if s.ends != 1 {
		t.Errorf("failed instance ended %d times, want 1", s.ends)
	}
	if err := e.SetPageSegMode(PSMSingleLine); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("got %v, want ErrNotInitialized", err)
	}
}

func TestLibClearAdaptiveClassifierKeepsSettings(t *testing.T) {
	s := stubBaseAPIs(t)
	withCatalog(t, Catalog{"tessedit_char_whitelist": {}}, nil)
	e := NewEngine(nil)
	if err := e.Init("/tessdata", "eng"); err != nil {
		t.Fatal(err)
	}
	if err := e.ReadConfigFile("/tessdata/configs/ocr"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetVariable("tessedit_char_whitelist", "0123456789"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetVariable("no_such_tesseract_variable_xyz", "1"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("got %v, want ErrUnknownVariable", err)
	}
	clear(s.vars)
	e.ClearAdaptiveClassifier()
	if s.inits != 2 || s.ends != 1 {
		t.Errorf("inits = %d, ends = %d", s.inits, s.ends)
	}
	if s.vars["tessedit_char_whitelist"] != "0123456789" {
		t.Errorf("variables not re-applied: %v", s.vars)
	}
	if len(s.configs) != 2 {
		t.Errorf("config files read %d times, want 2", len(s.configs))
	}
	e.End()
	e.End()
	if s.ends != 2 {
		t.Errorf("ends = %d, want 2", s.ends)
	}
}

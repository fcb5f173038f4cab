// Package ocr adapts one Tesseract engine instance to callers that hand it
// borrowed image buffers and read back text and confidences.
//
// An Adapter owns exactly one engine. It is not safe for concurrent use:
// callers serialize access, e.g. through the session registry.
package ocr

import (
	"fmt"
	"image"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/johbar/ocrlib/pkg/langscan"
	"github.com/johbar/ocrlib/pkg/tesswrap"
	"golang.org/x/text/unicode/norm"
)

// NoConfidence is returned by MeanConfidence before anything was recognized.
const NoConfidence = -1

// DefaultTuningConfig is read from the tessdata directory when an adapter is opened.
const DefaultTuningConfig = "ratings"

type State int

const (
	Uninitialized State = iota
	Opened
	ImageSet
	Recognized
)

func (s State) String() string {
	switch s {
	case Opened:
		return "opened"
	case ImageSet:
		return "image-set"
	case Recognized:
		return "recognized"
	}
	return "uninitialized"
}

type Options struct {
	// DataDir contains the tessdata directory
	DataDir string
	// TuningConfig is a config file in tessdata applied after Init. Empty disables it.
	TuningConfig string
	// PageSegMode is set after Init unless it is PSMAuto, the engine's default.
	PageSegMode tesswrap.PageSegMode
	// DumpDir receives the last recognized image and text if set
	DumpDir string
	// NewEngine creates the engine. Defaults to [tesswrap.NewEngine].
	NewEngine func(*slog.Logger) tesswrap.Engine
}

// Result is the outcome of the last recognition.
type Result struct {
	Text            string `json:"text"`
	MeanConfidence  int    `json:"meanConfidence"`
	WordConfidences []int  `json:"wordConfidences"`
	Language        string `json:"language"`
}

type Adapter struct {
	opts   Options
	log    *slog.Logger
	engine tesswrap.Engine
	lang   string
	// img is the borrowed buffer, nil if none is held
	img  *tesswrap.Image
	rect image.Rectangle
	res  *Result
}

func New(opts Options, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.NewEngine == nil {
		opts.NewEngine = tesswrap.NewEngine
	}
	return &Adapter{opts: opts, log: logger}
}

// TessdataDir is the directory language packs are loaded from.
func (a *Adapter) TessdataDir() string {
	return filepath.Join(a.opts.DataDir, "tessdata")
}

func (a *Adapter) State() State {
	switch {
	case a.engine == nil:
		return Uninitialized
	case a.res != nil:
		return Recognized
	case a.img != nil:
		return ImageSet
	}
	return Opened
}

// Language returns the language code the adapter was opened with.
func (a *Adapter) Language() string {
	return a.lang
}

// ScanLanguageInventory lists the language packs installed in the tessdata directory.
// The inventory is rebuilt on every call.
func (a *Adapter) ScanLanguageInventory() (*langscan.Inventory, error) {
	return langscan.Scan(a.TessdataDir(), a.log)
}

// ValidateLanguage checks the syntax of a '+' separated list of language codes.
func ValidateLanguage(lang string) error {
	if lang == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLanguage)
	}
	for _, code := range strings.Split(lang, "+") {
		if code == "" || strings.ContainsAny(code, `/\.: `) {
			return fmt.Errorf("%w: %q", ErrInvalidLanguage, code)
		}
	}
	return nil
}

// Open loads the language packs for lang, codes separated by '+'.
// If Open fails the adapter stays uninitialized and holds no engine.
func (a *Adapter) Open(lang string) error {
	if a.engine != nil {
		return ErrAlreadyOpen
	}
	if err := ValidateLanguage(lang); err != nil {
		return err
	}
	inv, err := a.ScanLanguageInventory()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLanguageNotInstalled, err)
	}
	for _, code := range strings.Split(lang, "+") {
		if !inv.Has(code) {
			return fmt.Errorf("%w: %s", ErrLanguageNotInstalled, code)
		}
	}
	tessdata := a.TessdataDir()
	engine := a.opts.NewEngine(a.log)
	if err := engine.Init(tessdata, lang); err != nil {
		engine.End()
		a.log.Error("could not initialize engine", "lang", lang, "err", err)
		return fmt.Errorf("%w: %w", ErrEngineInit, err)
	}
	if a.opts.TuningConfig != "" {
		path := filepath.Join(tessdata, a.opts.TuningConfig)
		if err := engine.ReadConfigFile(path); err != nil {
			a.log.Warn("could not read tuning config", "path", path, "err", err)
		}
	}
	if a.opts.PageSegMode != tesswrap.PSMAuto {
		if err := engine.SetPageSegMode(a.opts.PageSegMode); err != nil {
			a.log.Warn("could not set default page segmentation mode", "psm", a.opts.PageSegMode, "err", err)
		}
	}
	a.engine, a.lang = engine, lang
	a.log.Debug("engine opened", "lang", lang, "backend", tesswrap.Backend)
	return nil
}

// SetImage lends img to the engine until ReleaseImage, ClearResults or Close.
// Only one image may be held at a time. If SetImage fails the caller keeps
// ownership of the buffer and img.Release is not called.
func (a *Adapter) SetImage(img tesswrap.Image) error {
	if a.engine == nil {
		return ErrNotOpen
	}
	if a.img != nil {
		return ErrImageHeld
	}
	if err := img.Validate(); err != nil {
		a.log.Error("refusing image", "width", img.Width, "height", img.Height, "bpp", img.BytesPerPixel, "len", len(img.Pix), "err", err)
		return err
	}
	if err := a.engine.SetImage(img); err != nil {
		return err
	}
	a.img = &img
	a.rect = image.Rectangle{}
	a.res = nil
	return nil
}

// SetRectangle restricts recognition to a part of the current image.
func (a *Adapter) SetRectangle(left, top, width, height int) error {
	if a.engine == nil {
		return ErrNotOpen
	}
	if a.img == nil {
		return ErrNoImage
	}
	r := image.Rect(left, top, left+width, top+height)
	if width <= 0 || height <= 0 || !r.In(a.img.Bounds()) {
		return fmt.Errorf("%w: rectangle %v not inside image %v", ErrInvalidGeometry, r, a.img.Bounds())
	}
	if err := a.engine.SetRectangle(r); err != nil {
		return err
	}
	a.rect = r
	a.res = nil
	return nil
}

// Recognize runs recognition on the current image, unless this has been done already.
// Engine failures are logged and result in empty text.
func (a *Adapter) Recognize() (string, error) {
	if a.engine == nil {
		return "", ErrNotOpen
	}
	if a.res != nil && a.img != nil {
		return a.res.Text, nil
	}
	if a.img == nil {
		return "", ErrNoImage
	}
	text, err := a.engine.UTF8Text()
	if err != nil {
		a.log.Error("recognition failed", "lang", a.lang, "err", err)
		text = ""
	}
	text = normalize(text)
	mean := tesswrap.ClampConfidence(float64(a.engine.MeanTextConf()))
	words := fitConfidences(a.engine.AllWordConfidences(), len(strings.Fields(text)), mean, a.log)
	a.res = &Result{Text: text, MeanConfidence: mean, WordConfidences: words, Language: a.lang}
	a.dump(a.img, text)
	return text, nil
}

// RecognizeImage recognizes img and releases it before returning.
func (a *Adapter) RecognizeImage(img tesswrap.Image) (string, error) {
	if err := a.SetImage(img); err != nil {
		return "", err
	}
	defer a.ReleaseImage()
	return a.Recognize()
}

// ReleaseImage ends the borrow of the current image. The last result stays available.
// Calling it without a held image does nothing.
func (a *Adapter) ReleaseImage() {
	if a.img == nil {
		return
	}
	// the engine must drop its pointer before the buffer is handed back
	a.engine.Clear()
	release := a.img.Release
	a.img = nil
	a.rect = image.Rectangle{}
	if release != nil {
		release()
	}
}

// MeanConfidence returns the mean confidence of the last recognition, between 0 and 100.
func (a *Adapter) MeanConfidence() (int, error) {
	if a.engine == nil {
		return NoConfidence, ErrNotOpen
	}
	if a.res == nil {
		return NoConfidence, ErrNoResult
	}
	return a.res.MeanConfidence, nil
}

// WordConfidences returns one confidence per whitespace separated word of the last text.
func (a *Adapter) WordConfidences() ([]int, error) {
	if a.engine == nil {
		return nil, ErrNotOpen
	}
	if a.res == nil {
		return nil, ErrNoResult
	}
	return slices.Clone(a.res.WordConfidences), nil
}

// Result returns a copy of the last recognition result.
func (a *Adapter) Result() (*Result, error) {
	if a.engine == nil {
		return nil, ErrNotOpen
	}
	if a.res == nil {
		return nil, ErrNoResult
	}
	res := *a.res
	res.WordConfidences = slices.Clone(a.res.WordConfidences)
	return &res, nil
}

// SetVariable sets a Tesseract variable until the adapter is closed.
func (a *Adapter) SetVariable(name, value string) error {
	if a.engine == nil {
		return ErrNotOpen
	}
	if err := a.engine.SetVariable(name, value); err != nil {
		a.log.Warn("could not set variable", "name", name, "err", err)
		return fmt.Errorf("setting %s: %w", name, err)
	}
	a.res = nil
	return nil
}

// SetVariables sets all vars in the order of their names and stops at the first failure.
func (a *Adapter) SetVariables(vars map[string]string) error {
	for _, name := range slices.Sorted(maps.Keys(vars)) {
		if err := a.SetVariable(name, vars[name]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) SetPageSegmentationMode(mode tesswrap.PageSegMode) error {
	if a.engine == nil {
		return ErrNotOpen
	}
	if err := a.engine.SetPageSegMode(mode); err != nil {
		return err
	}
	a.res = nil
	return nil
}

// ClearResults drops the last result and releases the current image. The language model stays loaded.
func (a *Adapter) ClearResults() error {
	if a.engine == nil {
		return ErrNotOpen
	}
	a.ReleaseImage()
	a.engine.Clear()
	a.res = nil
	return nil
}

// ClearAdaptiveState makes the engine forget what it learned from previous pages.
func (a *Adapter) ClearAdaptiveState() error {
	if a.engine == nil {
		return ErrNotOpen
	}
	a.engine.ClearAdaptiveClassifier()
	return nil
}

// Close releases the image and shuts the engine down. It may be called in any state.
func (a *Adapter) Close() {
	if a.engine == nil {
		return
	}
	a.ReleaseImage()
	a.engine.End()
	a.engine = nil
	a.res = nil
	a.log.Debug("engine closed", "lang", a.lang)
	a.lang = ""
}

func normalize(text string) string {
	return norm.NFC.String(strings.ToValidUTF8(text, "\uFFFD"))
}

// fitConfidences makes sure there is one confidence per word of the text.
// Missing values are filled with the mean.
func fitConfidences(confs []int, words, mean int, log *slog.Logger) []int {
	out := make([]int, words)
	for i := range out {
		if i < len(confs) {
			out[i] = tesswrap.ClampConfidence(float64(confs[i]))
		} else {
			out[i] = mean
		}
	}
	if len(confs) != words {
		log.Debug("word confidences do not match the words of the text", "confidences", len(confs), "words", words)
	}
	return out
}

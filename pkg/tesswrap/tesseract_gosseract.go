//go:build gosseract

package tesswrap

import (
	"bytes"
	"image"
	"log/slog"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	Backend = "gosseract"
	Version = gosseract.Version()
}

// gosseractEngine keeps its settings so the client can be rebuilt:
// gosseract offers no way to reset the adaptive classifier of a client.
type gosseractEngine struct {
	log        *slog.Logger
	client     *gosseract.Client
	tessdata   string
	langs      []string
	configFile string
	vars       map[string]string
	img        *Image
	rect       image.Rectangle
	imgLoaded  bool
	recognized bool
	words      []Word
	text       string
}

// NewEngine returns an Engine backed by gosseract (cgo).
func NewEngine(log *slog.Logger) Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &gosseractEngine{log: log, vars: make(map[string]string)}
}

func (e *gosseractEngine) newClient() error {
	c := gosseract.NewClient()
	// trailing newlines are part of Tesseract's output
	c.Trim = false
	if err := c.SetTessdataPrefix(e.tessdata); err != nil {
		c.Close()
		return err
	}
	if err := c.SetLanguage(e.langs...); err != nil {
		c.Close()
		return err
	}
	c.DisableOutput()
	if e.configFile != "" {
		if err := c.SetConfigFile(e.configFile); err != nil {
			c.Close()
			return err
		}
	}
	for k, v := range e.vars {
		c.SetVariable(gosseract.SettableVariable(k), v)
	}
	e.client = c
	e.imgLoaded = false
	e.recognized = false
	return nil
}

// Init only configures the client. gosseract initializes the TessBaseAPI lazily,
// so a broken language pack is reported by the first recognition.
func (e *gosseractEngine) Init(tessdata, lang string) error {
	e.tessdata = tessdata
	e.langs = strings.Split(lang, "+")
	return e.newClient()
}

func (e *gosseractEngine) ReadConfigFile(path string) error {
	if e.client == nil {
		return ErrNotInitialized
	}
	if err := e.client.SetConfigFile(path); err != nil {
		return err
	}
	e.configFile = path
	return nil
}

func (e *gosseractEngine) SetImage(img Image) error {
	if e.client == nil {
		return ErrNotInitialized
	}
	if err := img.Validate(); err != nil {
		return err
	}
	e.Clear()
	e.img = &img
	return nil
}

func (e *gosseractEngine) SetRectangle(r image.Rectangle) error {
	if e.img == nil {
		return ErrNoImage
	}
	e.rect = r
	e.imgLoaded = false
	e.recognized = false
	return nil
}

func (e *gosseractEngine) UTF8Text() (string, error) {
	if e.client == nil {
		return "", ErrNotInitialized
	}
	if e.img == nil {
		return "", ErrNoImage
	}
	if e.recognized {
		return e.text, nil
	}
	if !e.imgLoaded {
		// leptonica copies the encoded image, so the caller's pixels are not retained
		var buf bytes.Buffer
		if err := e.img.EncodePNG(&buf, e.rect); err != nil {
			return "", err
		}
		if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
			return "", err
		}
		e.imgLoaded = true
	}
	text, err := e.client.Text()
	if err != nil {
		return "", err
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.log.Warn("could not get word confidences", "err", err)
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, Word{Text: b.Word, Conf: b.Confidence})
	}
	e.text, e.words, e.recognized = text, words, true
	return text, nil
}

func (e *gosseractEngine) MeanTextConf() int {
	return MeanConfidence(e.words)
}

func (e *gosseractEngine) AllWordConfidences() []int {
	return WordConfidences(e.words)
}

func (e *gosseractEngine) SetVariable(name, value string) error {
	if e.client == nil {
		return ErrNotInitialized
	}
	if err := checkVariable(name); err != nil {
		return err
	}
	if err := e.client.SetVariable(gosseract.SettableVariable(name), value); err != nil {
		return err
	}
	e.vars[name] = value
	e.recognized = false
	return nil
}

func (e *gosseractEngine) SetPageSegMode(mode PageSegMode) error {
	if e.client == nil {
		return ErrNotInitialized
	}
	if err := e.client.SetPageSegMode(gosseract.PageSegMode(mode)); err != nil {
		return err
	}
	// re-applied after the lazy init, which would reset the mode otherwise
	e.vars["tessedit_pageseg_mode"] = strconv.Itoa(int(mode))
	e.client.SetVariable("tessedit_pageseg_mode", e.vars["tessedit_pageseg_mode"])
	e.recognized = false
	return nil
}

func (e *gosseractEngine) Clear() {
	e.img = nil
	e.rect = image.Rectangle{}
	e.imgLoaded = false
	e.recognized = false
	e.words = nil
	e.text = ""
}

func (e *gosseractEngine) ClearAdaptiveClassifier() {
	if e.client == nil {
		return
	}
	e.client.Close()
	e.client = nil
	if err := e.newClient(); err != nil {
		e.log.Error("could not recreate gosseract client", "err", err)
	}
}

func (e *gosseractEngine) End() {
	e.Clear()
	if e.client != nil {
		e.client.Close()
		e.client = nil
	}
	e.vars = make(map[string]string)
	e.configFile = ""
}

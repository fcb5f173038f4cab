//go:build tesseract_lib

package tesswrap

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"strconv"

	"github.com/raff/go-tesseract"
)

func init() {
	Backend = "tesseract_lib"
	Version = tesseract.Version()
}

// baseAPI holds the calls of one go-tesseract BaseAPI this backend needs.
type baseAPI struct {
	init3          func(datapath, lang string) bool
	setVariable    func(name, value string) bool
	readConfigFile func(path string)
	setImageBytes  func(data []byte)
	utf8Text       func() string
	meanTextConf   func() int
	wordConfs      func() []int
	clear          func()
	end            func()
}

var newBaseAPI = func() *baseAPI {
	tess := tesseract.BaseAPICreate()
	return &baseAPI{
		init3:          func(datapath, lang string) bool { return tess.Init3(datapath, lang) == 0 },
		setVariable:    func(name, value string) bool { return tess.SetVariable(name, value) },
		readConfigFile: func(path string) { tess.ReadConfigFile(path) },
		setImageBytes:  func(data []byte) { tess.SetImageBytes(data) },
		utf8Text:       func() string { return tess.GetUTF8Text() },
		meanTextConf:   func() int { return int(tess.MeanTextConf()) },
		wordConfs: func() []int {
			var confs []int
			for _, c := range tess.AllWordConfidences() {
				confs = append(confs, int(c))
			}
			return confs
		},
		clear: func() { tess.Clear() },
		end:   func() { tess.End() },
	}
}

// libEngine drives libtesseract through github.com/raff/go-tesseract (cgo).
// Settings are kept so the classifier can be reset with End and Init3.
type libEngine struct {
	log        *slog.Logger
	tess       *baseAPI
	tessdata   string
	lang       string
	configFile string
	vars       map[string]string
	img        *Image
	rect       image.Rectangle
	imgLoaded  bool
	recognized bool
	text       string
	mean       int
	confs      []int
}

// NewEngine returns an Engine backed by go-tesseract.
func NewEngine(log *slog.Logger) Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &libEngine{log: log, vars: make(map[string]string)}
}

func (e *libEngine) start() error {
	tess := newBaseAPI()
	if !tess.init3(e.tessdata, e.lang) {
		tess.end()
		return fmt.Errorf("%w: Init3 failed for %s", ErrNotInitialized, e.lang)
	}
	tess.setVariable("debug_file", "/dev/null")
	if e.configFile != "" {
		tess.readConfigFile(e.configFile)
	}
	for k, v := range e.vars {
		tess.setVariable(k, v)
	}
	e.tess = tess
	e.imgLoaded = false
	e.recognized = false
	return nil
}

func (e *libEngine) Init(tessdata, lang string) error {
	if e.tess != nil {
		e.tess.end()
		e.tess = nil
	}
	e.tessdata, e.lang = tessdata, lang
	return e.start()
}

func (e *libEngine) ReadConfigFile(path string) error {
	if e.tess == nil {
		return ErrNotInitialized
	}
	e.tess.readConfigFile(path)
	e.configFile = path
	e.recognized = false
	return nil
}

func (e *libEngine) SetImage(img Image) error {
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

func (e *libEngine) SetRectangle(r image.Rectangle) error {
	if e.img == nil {
		return ErrNoImage
	}
	e.rect = r
	e.imgLoaded = false
	e.recognized = false
	return nil
}

func (e *libEngine) UTF8Text() (string, error) {
	if e.tess == nil {
		return "", ErrNotInitialized
	}
	if e.img == nil {
		return "", ErrNoImage
	}
	if e.recognized {
		return e.text, nil
	}
	if !e.imgLoaded {
		var buf bytes.Buffer
		if err := e.img.EncodePNG(&buf, e.rect); err != nil {
			return "", err
		}
		e.tess.setImageBytes(buf.Bytes())
		e.imgLoaded = true
	}
	e.text = e.tess.utf8Text()
	e.mean = clampConf(e.tess.meanTextConf())
	e.confs = e.tess.wordConfs()
	for i, c := range e.confs {
		e.confs[i] = clampConf(c)
	}
	e.recognized = true
	return e.text, nil
}

func clampConf(c int) int {
	return min(max(c, 0), 100)
}

func (e *libEngine) MeanTextConf() int {
	if !e.recognized {
		return 0
	}
	return e.mean
}

func (e *libEngine) AllWordConfidences() []int {
	if !e.recognized {
		return nil
	}
	return e.confs
}

func (e *libEngine) SetVariable(name, value string) error {
	if e.tess == nil {
		return ErrNotInitialized
	}
	if err := checkVariable(name); err != nil {
		return err
	}
	if !e.tess.setVariable(name, value) {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, name)
	}
	e.vars[name] = value
	e.recognized = false
	return nil
}

func (e *libEngine) SetPageSegMode(mode PageSegMode) error {
	if e.tess == nil {
		return ErrNotInitialized
	}
	v := strconv.Itoa(int(mode))
	if !e.tess.setVariable("tessedit_pageseg_mode", v) {
		return fmt.Errorf("%w: page segmentation mode %d", ErrUnsupported, mode)
	}
	e.vars["tessedit_pageseg_mode"] = v
	e.recognized = false
	return nil
}

func (e *libEngine) Clear() {
	if e.tess != nil {
		e.tess.clear()
	}
	e.img = nil
	e.rect = image.Rectangle{}
	e.imgLoaded = false
	e.recognized = false
	e.text = ""
	e.mean = 0
	e.confs = nil
}

func (e *libEngine) ClearAdaptiveClassifier() {
	if e.tess == nil {
		return
	}
	img, rect := e.img, e.rect
	e.tess.end()
	e.tess = nil
	if err := e.start(); err != nil {
		e.log.Error("could not restart tesseract", "err", err)
		return
	}
	e.img, e.rect = img, rect
}

func (e *libEngine) End() {
	e.Clear()
	if e.tess != nil {
		e.tess.end()
		e.tess = nil
	}
	e.vars = make(map[string]string)
	e.configFile = ""
}

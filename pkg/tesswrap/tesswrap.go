/*
Package tesswrap wraps the base API of the Tesseract OCR engine v5 behind the [Engine] interface.
It defaults to using the CLI.
Alternative implementations can be used by supplying build tags:

  - gosseract: cgo binding (github.com/otiai10/gosseract/v2)
  - tesseract_pure: libtesseract loaded at runtime with purego, no cgo required
  - tesseract_wasm: Tesseract compiled to WASM (github.com/danlock/gogosseract)
  - tesseract_lib: cgo binding of the C++ base API (github.com/raff/go-tesseract)

An Engine is not safe for concurrent use.
*/
package tesswrap

import (
	"errors"
	"image"
)

var (
	// Backend names the implementation compiled into this binary
	Backend string
	// Version of Tesseract reported by the backend. May be empty if Tesseract is unavailable.
	Version string
)

var (
	ErrNotInitialized  = errors.New("tesseract is not initialized")
	ErrNoImage         = errors.New("no image set")
	ErrUnknownVariable = errors.New("unknown tesseract variable")
	ErrUnsupported     = errors.New("operation not supported by tesseract backend")
	ErrShortBuffer     = errors.New("image buffer is shorter than its geometry requires")
	ErrInvalidGeometry = errors.New("invalid image geometry")
)

// Engine is the capability surface of one TessBaseAPI instance.
type Engine interface {
	// Init loads the trained data for lang (codes joined by '+') from the tessdata directory.
	Init(tessdata, lang string) error
	// ReadConfigFile applies a Tesseract config file (key value pairs, one per line).
	ReadConfigFile(path string) error
	// SetImage hands the pixels of img to the engine. Implementations may keep
	// a reference to img.Pix until [Engine.Clear] or [Engine.End] is called.
	SetImage(img Image) error
	// SetRectangle restricts recognition to r. It discards previous results.
	SetRectangle(r image.Rectangle) error
	// UTF8Text recognizes the current image, unless this has been done already, and returns the text.
	UTF8Text() (string, error)
	// MeanTextConf returns the mean confidence of the last recognition, between 0 and 100.
	MeanTextConf() int
	// AllWordConfidences returns one confidence per word of the last recognition.
	AllWordConfidences() []int
	SetVariable(name, value string) error
	SetPageSegMode(mode PageSegMode) error
	// Clear frees recognition results and the image without unloading the language model.
	Clear()
	// ClearAdaptiveClassifier forgets what the classifier adapted to on previous pages.
	ClearAdaptiveClassifier()
	// End shuts the engine down. Only Init may be called afterwards.
	End()
}

// PageSegMode selects the layout analysis Tesseract performs. Values are passed to the engine unchanged.
type PageSegMode int

const (
	PSMOSDOnly PageSegMode = iota
	PSMAutoOSD
	PSMAutoOnly
	// PSMAuto is Tesseract's default: fully automatic page segmentation, but no OSD
	PSMAuto
	PSMSingleColumn
	PSMSingleBlockVertText
	PSMSingleBlock
	PSMSingleLine
	PSMSingleWord
	PSMCircleWord
	PSMSingleChar
	PSMSparseText
	PSMSparseTextOSD
	PSMRawLine
)

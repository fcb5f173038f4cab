package ocr

import (
	"errors"

	"github.com/johbar/ocrlib/pkg/tesswrap"
)

var (
	ErrNotOpen              = errors.New("adapter is not open")
	ErrAlreadyOpen          = errors.New("adapter is already open")
	ErrInvalidLanguage      = errors.New("invalid language code")
	ErrLanguageNotInstalled = errors.New("language pack not installed")
	ErrEngineInit           = errors.New("could not initialize OCR engine")
	ErrImageHeld            = errors.New("an image is already set, release it first")
	ErrNoResult             = errors.New("nothing has been recognized yet")

	ErrNoImage         = tesswrap.ErrNoImage
	ErrShortBuffer     = tesswrap.ErrShortBuffer
	ErrInvalidGeometry = tesswrap.ErrInvalidGeometry
	ErrUnknownVariable = tesswrap.ErrUnknownVariable
	ErrUnsupported     = tesswrap.ErrUnsupported
)

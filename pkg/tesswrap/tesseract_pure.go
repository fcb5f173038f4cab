//go:build tesseract_pure && (linux || darwin)

package tesswrap

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

var (
	TessVersion       func() *byte
	TessBaseAPICreate func() uintptr
	TessBaseAPIDelete func(handle uintptr)
	TessBaseAPIInit3  func(handle uintptr, datapath *byte, lang *byte) int32
	/*
		Close down tesseract and free up all memory. End() is equivalent to destructing and reconstructing
		your TessBaseAPI. Once End() has been used, none of the other API functions may be used other than Init.
	*/
	TessBaseAPIEnd            func(handle uintptr)
	TessBaseAPIReadConfigFile func(handle uintptr, filename *byte)
	// The image data is not copied. It must stay valid until the next SetImage, Clear or End.
	TessBaseAPISetImage                func(handle uintptr, imagedata unsafe.Pointer, width, height, bytesPerPixel, bytesPerLine int32)
	TessBaseAPISetRectangle            func(handle uintptr, left, top, width, height int32)
	TessBaseAPIGetUTF8Text             func(handle uintptr) *byte
	TessBaseAPIMeanTextConf            func(handle uintptr) int32
	TessBaseAPIAllWordConfidences      func(handle uintptr) *int32
	TessBaseAPISetVariable             func(handle uintptr, name, value *byte) int32
	TessBaseAPISetPageSegMode          func(handle uintptr, mode int32)
	TessBaseAPIClearAdaptiveClassifier func(handle uintptr)
	/*
		Free up recognition results and any stored image data,
		without actually freeing any recognition data that would be time-consuming to reload.
		Afterwards, you must call SetImage or TesseractRect before doing any Recognize or Get* operation.
	*/
	TessBaseAPIClear   func(handle uintptr)
	TessDeleteText     func(text *byte)
	TessDeleteIntArray func(arr *int32)

	loadErr error
)

var libPaths = []string{"libtesseract.so.5", "libtesseract.so", "libtesseract.dylib", "/opt/homebrew/lib/libtesseract.dylib"}

func init() {
	Backend = "purego"
	var lib uintptr
	for _, path := range libPaths {
		var err error
		lib, err = purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		loadErr = errors.Join(loadErr, err)
		if lib != 0 {
			loadErr = nil
			break
		}
	}
	if lib == 0 {
		return
	}
	purego.RegisterLibFunc(&TessVersion, lib, "TessVersion")
	purego.RegisterLibFunc(&TessBaseAPICreate, lib, "TessBaseAPICreate")
	purego.RegisterLibFunc(&TessBaseAPIDelete, lib, "TessBaseAPIDelete")
	purego.RegisterLibFunc(&TessBaseAPIInit3, lib, "TessBaseAPIInit3")
	purego.RegisterLibFunc(&TessBaseAPIEnd, lib, "TessBaseAPIEnd")
	purego.RegisterLibFunc(&TessBaseAPIReadConfigFile, lib, "TessBaseAPIReadConfigFile")
	purego.RegisterLibFunc(&TessBaseAPISetImage, lib, "TessBaseAPISetImage")
	purego.RegisterLibFunc(&TessBaseAPISetRectangle, lib, "TessBaseAPISetRectangle")
	purego.RegisterLibFunc(&TessBaseAPIGetUTF8Text, lib, "TessBaseAPIGetUTF8Text")
	purego.RegisterLibFunc(&TessBaseAPIMeanTextConf, lib, "TessBaseAPIMeanTextConf")
	purego.RegisterLibFunc(&TessBaseAPIAllWordConfidences, lib, "TessBaseAPIAllWordConfidences")
	purego.RegisterLibFunc(&TessBaseAPISetVariable, lib, "TessBaseAPISetVariable")
	purego.RegisterLibFunc(&TessBaseAPISetPageSegMode, lib, "TessBaseAPISetPageSegMode")
	purego.RegisterLibFunc(&TessBaseAPIClearAdaptiveClassifier, lib, "TessBaseAPIClearAdaptiveClassifier")
	purego.RegisterLibFunc(&TessBaseAPIClear, lib, "TessBaseAPIClear")
	purego.RegisterLibFunc(&TessDeleteText, lib, "TessDeleteText")
	purego.RegisterLibFunc(&TessDeleteIntArray, lib, "TessDeleteIntArray")

	Version = unix.BytePtrToString(TessVersion())
}

// pureEngine hands the caller's pixels to libtesseract without copying them.
// They are pinned from SetImage until Clear, End or the next SetImage.
type pureEngine struct {
	log    *slog.Logger
	handle uintptr
	pinner runtime.Pinner
	img    *Image
	// the C API returns 0 confidences without a prior recognition
	recognized bool
}

// NewEngine returns an Engine calling libtesseract through purego.
func NewEngine(log *slog.Logger) Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &pureEngine{log: log}
}

func (e *pureEngine) Init(tessdata, lang string) error {
	if loadErr != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, loadErr)
	}
	if e.handle == 0 {
		e.handle = TessBaseAPICreate()
	}
	datapath, err := unix.BytePtrFromString(tessdata)
	if err != nil {
		return err
	}
	l, err := unix.BytePtrFromString(lang)
	if err != nil {
		return err
	}
	if ret := TessBaseAPIInit3(e.handle, datapath, l); ret != 0 {
		TessBaseAPIDelete(e.handle)
		e.handle = 0
		return fmt.Errorf("%w: TessBaseAPIInit3 returned %d", ErrNotInitialized, ret)
	}
	return nil
}

func (e *pureEngine) ReadConfigFile(path string) error {
	if e.handle == 0 {
		return ErrNotInitialized
	}
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}
	TessBaseAPIReadConfigFile(e.handle, p)
	return nil
}

func (e *pureEngine) SetImage(img Image) error {
	if e.handle == 0 {
		return ErrNotInitialized
	}
	if err := img.Validate(); err != nil {
		return err
	}
	e.Clear()
	e.pinner.Pin(&img.Pix[0])
	e.img = &img
	TessBaseAPISetImage(e.handle, unsafe.Pointer(&img.Pix[0]),
		int32(img.Width), int32(img.Height), int32(img.BytesPerPixel), int32(img.Stride()))
	return nil
}

func (e *pureEngine) SetRectangle(r image.Rectangle) error {
	if e.img == nil {
		return ErrNoImage
	}
	TessBaseAPISetRectangle(e.handle, int32(r.Min.X), int32(r.Min.Y), int32(r.Dx()), int32(r.Dy()))
	e.recognized = false
	return nil
}

func (e *pureEngine) UTF8Text() (string, error) {
	if e.handle == 0 {
		return "", ErrNotInitialized
	}
	if e.img == nil {
		return "", ErrNoImage
	}
	text := TessBaseAPIGetUTF8Text(e.handle)
	e.recognized = true
	if text == nil {
		return "", nil
	}
	defer TessDeleteText(text)
	return unix.BytePtrToString(text), nil
}

func (e *pureEngine) MeanTextConf() int {
	if !e.recognized {
		return 0
	}
	return ClampConfidence(float64(TessBaseAPIMeanTextConf(e.handle)))
}

// AllWordConfidences copies the -1 terminated array returned by Tesseract.
func (e *pureEngine) AllWordConfidences() []int {
	if !e.recognized {
		return nil
	}
	arr := TessBaseAPIAllWordConfidences(e.handle)
	if arr == nil {
		return nil
	}
	defer TessDeleteIntArray(arr)
	var confs []int
	for p := arr; *p != -1; p = (*int32)(unsafe.Add(unsafe.Pointer(p), unsafe.Sizeof(*p))) {
		confs = append(confs, ClampConfidence(float64(*p)))
	}
	return confs
}

func (e *pureEngine) SetVariable(name, value string) error {
	if e.handle == 0 {
		return ErrNotInitialized
	}
	n, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	v, err := unix.BytePtrFromString(value)
	if err != nil {
		return err
	}
	if TessBaseAPISetVariable(e.handle, n, v) == 0 {
		return ErrUnknownVariable
	}
	e.recognized = false
	return nil
}

func (e *pureEngine) SetPageSegMode(mode PageSegMode) error {
	if e.handle == 0 {
		return ErrNotInitialized
	}
	TessBaseAPISetPageSegMode(e.handle, int32(mode))
	e.recognized = false
	return nil
}

func (e *pureEngine) Clear() {
	if e.handle != 0 {
		TessBaseAPIClear(e.handle)
	}
	e.img = nil
	e.recognized = false
	e.pinner.Unpin()
}

func (e *pureEngine) ClearAdaptiveClassifier() {
	if e.handle != 0 {
		TessBaseAPIClearAdaptiveClassifier(e.handle)
	}
}

func (e *pureEngine) End() {
	e.Clear()
	if e.handle != 0 {
		TessBaseAPIEnd(e.handle)
		TessBaseAPIDelete(e.handle)
		e.handle = 0
	}
}

package ocr

import (
	"os"
	"path/filepath"

	"github.com/johbar/ocrlib/pkg/tesswrap"
	"golang.org/x/image/tiff"
)

const (
	dumpImageName = "tessinput.tif"
	dumpTextName  = "out.txt"
)

// dump writes the recognized part of the image and the text to DumpDir.
// Failures are logged only.
func (a *Adapter) dump(img *tesswrap.Image, text string) {
	if a.opts.DumpDir == "" || img == nil {
		return
	}
	if err := os.MkdirAll(a.opts.DumpDir, 0o755); err != nil {
		a.log.Warn("could not create debug dump dir", "dir", a.opts.DumpDir, "err", err)
		return
	}
	if err := os.WriteFile(filepath.Join(a.opts.DumpDir, dumpTextName), []byte(text), 0o644); err != nil {
		a.log.Warn("could not dump recognized text", "err", err)
	}
	m, err := img.ToImage(a.rect)
	if err != nil {
		a.log.Warn("could not convert image for debug dump", "err", err)
		return
	}
	f, err := os.Create(filepath.Join(a.opts.DumpDir, dumpImageName))
	if err != nil {
		a.log.Warn("could not dump image", "err", err)
		return
	}
	defer f.Close()
	if err := tiff.Encode(f, m, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		a.log.Warn("could not dump image", "err", err)
	}
}

package ocr

import (
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johbar/ocrlib/pkg/tesswrap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// installedDataDir returns a directory whose tessdata subdirectory holds eng.traineddata.
func installedDataDir() string {
	for _, dir := range []string{
		os.Getenv("TESSDATA_PREFIX"),
		"/usr/share/tesseract-ocr/5/tessdata",
		"/usr/share/tesseract-ocr/4.00/tessdata",
		"/usr/share/tessdata",
		"/usr/local/share/tessdata",
		"/opt/homebrew/share/tessdata",
	} {
		if dir == "" || filepath.Base(dir) != "tessdata" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, "eng.traineddata")); err == nil {
			return filepath.Dir(dir)
		}
	}
	return ""
}

// textImage renders s in black on white, scaled up so Tesseract can read the bitmap font.
func textImage(s string, scale int) tesswrap.Image {
	face := basicfont.Face7x13
	w := font.MeasureString(face, s).Ceil() + 8
	small := image.NewGray(image.Rect(0, 0, w, 21))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	d := font.Drawer{Dst: small, Src: image.Black, Face: face, Dot: fixed.P(4, 15)}
	d.DrawString(s)
	big := image.NewGray(image.Rect(0, 0, w*scale, 21*scale))
	for y := range big.Rect.Dy() {
		for x := range big.Rect.Dx() {
			big.Pix[y*big.Stride+x] = small.Pix[(y/scale)*small.Stride+x/scale]
		}
	}
	return tesswrap.Image{Pix: big.Pix, Width: big.Rect.Dx(), Height: big.Rect.Dy(), BytesPerPixel: 1}
}

func TestRecognizeKnownText(t *testing.T) {
	dataDir := installedDataDir()
	if dataDir == "" {
		t.Log("Tesseract eng language data not available")
		return
	}
	a := New(Options{DataDir: dataDir, PageSegMode: tesswrap.PSMSingleLine}, nil)
	if err := a.Open("eng"); err != nil {
		t.Log("Tesseract not available:", err)
		return
	}
	defer a.Close()
	if err := a.SetImage(textImage("HELLO WORLD", 4)); err != nil {
		t.Fatal(err)
	}
	text, err := a.Recognize()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(strings.ToUpper(text), "HELLO") {
		t.Errorf("recognized %q, want it to contain HELLO", text)
	}
	conf, err := a.MeanConfidence()
	if err != nil {
		t.Fatal(err)
	}
	if conf <= 0 {
		t.Errorf("mean confidence = %d", conf)
	}
	confs, _ := a.WordConfidences()
	if len(confs) != len(strings.Fields(text)) {
		t.Errorf("%d confidences for %q", len(confs), text)
	}
}

func TestOpenNonexistentLanguage(t *testing.T) {
	dataDir := installedDataDir()
	if dataDir == "" {
		t.Log("Tesseract language data not available")
		return
	}
	a := New(Options{DataDir: dataDir}, nil)
	if err := a.Open("xx-nonexistent"); err == nil {
		a.Close()
		t.Fatal("opened a nonexistent language")
	}
	if a.State() != Uninitialized {
		t.Errorf("state = %v", a.State())
	}
}

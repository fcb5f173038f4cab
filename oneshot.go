package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/johbar/ocrlib/internal/imageload"
	"github.com/johbar/ocrlib/internal/ocr"
	"github.com/johbar/ocrlib/pkg/tesswrap"
)

type oneShotMeta struct {
	Lang            string `json:"lang"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	MeanConfidence  int    `json:"meanConfidence"`
	WordConfidences []int  `json:"wordConfidences"`
	Backend         string `json:"backend"`
}

// PrintResultToStdout recognizes an image and prints the result's metadata (as JSON) on the first line,
// followed by the recognized text. The image can be local or remote (http/https).
// When path is "-", the image is read from Stdin. It returns the exit code.
func PrintResultToStdout(path, lang string, loader *imageload.Loader, a *ocr.Adapter) int {
	data, err := readInput(path)
	if err != nil {
		logger.Error("Could not read image", "path", path, "err", err)
		return 1
	}
	img, err := loader.Load(data, nil)
	if err != nil {
		logger.Error("Could not load image", "path", path, "err", err)
		return 2
	}
	if err := a.Open(lang); err != nil {
		img.Release()
		logger.Error("Could not open Tesseract", "lang", lang, "err", err)
		return 2
	}
	defer a.Close()
	width, height := img.Width, img.Height
	text, err := a.RecognizeImage(img)
	if err != nil {
		img.Release()
		logger.Error("Could not recognize image", "path", path, "err", err)
		return 2
	}
	res, err := a.Result()
	if err != nil {
		logger.Error("No result", "err", err)
		return 2
	}
	meta, _ := json.Marshal(oneShotMeta{
		Lang:            lang,
		Width:           width,
		Height:          height,
		MeanConfidence:  res.MeanConfidence,
		WordConfidences: res.WordConfidences,
		Backend:         tesswrap.Backend,
	})
	os.Stdout.Write(meta)
	fmt.Println()
	fmt.Println(text)
	return 0
}

func readInput(path string) ([]byte, error) {
	switch {
	case path == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		resp, err := http.Get(path)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP error: %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(path)
}

// Package cache stores OCR results of one-shot requests, keyed by image content and settings.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/johbar/ocrlib/internal/ocr"
)

type Cache interface {
	// Get returns the cached result for key or nil if there is none.
	Get(key string) (*ocr.Result, error)
	Save(key string, res *ocr.Result) error
}

// Key identifies the result of recognizing data with the given language and page segmentation mode.
func Key(data []byte, lang string, psm int) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + "_" + lang + "_" + strconv.Itoa(psm)
}

type NopCache struct{}

func (c *NopCache) Get(key string) (*ocr.Result, error) {
	return nil, nil
}

func (c *NopCache) Save(key string, res *ocr.Result) error {
	return nil
}

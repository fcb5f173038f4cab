package tesswrap

import (
	"math"
	"unicode/utf8"
)

// Word is a recognized word and Tesseract's confidence in it.
type Word struct {
	Text string
	Conf float64
}

// ClampConfidence rounds c and limits it to the range 0..100.
func ClampConfidence(c float64) int {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return int(math.Round(c))
}

// MeanConfidence averages the word confidences weighted by the number of characters,
// the way TessBaseAPI::MeanTextConf does. Returns 0 if there are no words.
func MeanConfidence(words []Word) int {
	var sum float64
	var chars int
	for _, w := range words {
		n := utf8.RuneCountInString(w.Text)
		if n == 0 {
			continue
		}
		sum += float64(ClampConfidence(w.Conf) * n)
		chars += n
	}
	if chars == 0 {
		return 0
	}
	return ClampConfidence(sum / float64(chars))
}

// WordConfidences returns the clamped confidence of every word.
func WordConfidences(words []Word) []int {
	confs := make([]int, len(words))
	for i, w := range words {
		confs[i] = ClampConfidence(w.Conf)
	}
	return confs
}

package tesswrap

import (
	"os"
	"slices"
	"strings"
	"testing"
)

func TestParseTSV(t *testing.T) {
	f, err := os.Open("testdata/hello.tsv")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	text, words, err := ParseTSV(f)
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello world\nagain\n\nlast\n"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if len(words) != 4 {
		t.Fatalf("got %d words, want 4: %v", len(words), words)
	}
	if got := WordConfidences(words); !slices.Equal(got, []int{97, 91, 88, 43}) {
		t.Errorf("word confidences = %v", got)
	}
	if got := MeanConfidence(words); got != 82 {
		t.Errorf("mean confidence = %d, want 82", got)
	}
}

func TestParseTSVEmpty(t *testing.T) {
	text, words, err := ParseTSV(strings.NewReader("level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "" || len(words) != 0 {
		t.Errorf("expected no output, got %q %v", text, words)
	}
}

func TestParseTSVBadConfidence(t *testing.T) {
	_, _, err := ParseTSV(strings.NewReader("5\t1\t1\t1\t1\t1\t0\t0\t1\t1\tabc\tword\n"))
	if err == nil {
		t.Error("expected an error for a malformed confidence")
	}
}

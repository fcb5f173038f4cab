package tesswrap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// columns of Tesseract's TSV output
const (
	tsvLevel = iota
	tsvPage
	tsvBlock
	tsvPar
	tsvLine
	tsvWord
	tsvLeft
	tsvTop
	tsvWidth
	tsvHeight
	tsvConf
	tsvText
	tsvColumns
)

// word level rows carry the text
const tsvWordLevel = "5"

// ParseTSV reads the output of `tesseract ... tsv` and returns the recognized words.
// The text is rebuilt from the words: words of a line are separated by a space,
// lines by a newline and paragraphs by an empty line, matching Tesseract's text renderer.
func ParseTSV(r io.Reader) (string, []Word, error) {
	var sb strings.Builder
	var words []Word
	var lastLine, lastPar string
	lineHasWords := false
	header := true
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		if header {
			header = false
			if strings.HasPrefix(s.Text(), "level") {
				continue
			}
		}
		fields := strings.SplitN(s.Text(), "\t", tsvColumns)
		if len(fields) < tsvColumns || fields[tsvLevel] != tsvWordLevel {
			continue
		}
		text := strings.TrimSpace(fields[tsvText])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(fields[tsvConf], 64)
		if err != nil {
			return "", nil, fmt.Errorf("parsing confidence %q: %w", fields[tsvConf], err)
		}
		par := fields[tsvPage] + "." + fields[tsvBlock] + "." + fields[tsvPar]
		line := par + "." + fields[tsvLine]
		if lineHasWords && line != lastLine {
			sb.WriteByte('\n')
			if par != lastPar {
				sb.WriteByte('\n')
			}
		} else if lineHasWords {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
		lineHasWords = true
		lastLine, lastPar = line, par
		words = append(words, Word{Text: text, Conf: conf})
	}
	if err := s.Err(); err != nil {
		return "", nil, err
	}
	if lineHasWords {
		sb.WriteByte('\n')
	}
	return sb.String(), words, nil
}

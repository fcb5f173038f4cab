//go:build !gosseract && !tesseract_pure && !tesseract_wasm && !tesseract_lib

// This is the default implementation
package tesswrap

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strconv"
	"strings"
)

func init() {
	Backend = "cli"
	out, err := exec.Command("tesseract", "--version").Output()
	if err == nil {
		first, _, _ := strings.Cut(string(out), "\n")
		Version = strings.TrimPrefix(first, "tesseract ")
	}
}

// cliEngine runs the tesseract program once per recognition. The engine state lives
// in this struct and is turned into command line arguments.
type cliEngine struct {
	log         *slog.Logger
	initialized bool
	tessdata    string
	lang        string
	configs     []string
	vars        map[string]string
	psm         PageSegMode
	img         *Image
	rect        image.Rectangle
	recognized  bool
	words       []Word
	text        string
}

// NewEngine returns an Engine driving the tesseract command line program.
func NewEngine(log *slog.Logger) Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &cliEngine{log: log, psm: PSMAuto, vars: make(map[string]string)}
}

// listLangs returns the languages installed in tessdata
func listLangs(tessdata string) []string {
	cmd := exec.Command("tesseract", "--tessdata-dir", tessdata, "--list-langs")
	output, err := cmd.Output()
	if err != nil {
		return []string{}
	}
	outputLines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(outputLines) > 1 {
		// first line is a heading
		return outputLines[1:]
	}
	return []string{}
}

func (e *cliEngine) Init(tessdata, lang string) error {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	available := listLangs(tessdata)
	for _, l := range strings.Split(lang, "+") {
		if !slices.Contains(available, l) {
			return fmt.Errorf("%w: '%s' is not among the installed languages %v", ErrNotInitialized, l, available)
		}
	}
	e.tessdata, e.lang = tessdata, lang
	e.initialized = true
	return nil
}

func (e *cliEngine) ReadConfigFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("config file %s is a directory", path)
	}
	e.configs = append(e.configs, path)
	return nil
}

func (e *cliEngine) SetImage(img Image) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	if err := img.Validate(); err != nil {
		return err
	}
	e.Clear()
	e.img = &img
	return nil
}

func (e *cliEngine) SetRectangle(r image.Rectangle) error {
	if e.img == nil {
		return ErrNoImage
	}
	e.rect = r
	e.recognized = false
	return nil
}

func (e *cliEngine) args() []string {
	args := []string{
		"stdin", "stdout",
		"--tessdata-dir", e.tessdata,
		"-l", e.lang,
		"--psm", strconv.Itoa(int(e.psm)),
	}
	for _, k := range slices.Sorted(maps.Keys(e.vars)) {
		args = append(args, "-c", k+"="+e.vars[k])
	}
	args = append(args, e.configs...)
	return append(args, "tsv")
}

func (e *cliEngine) UTF8Text() (string, error) {
	if !e.initialized {
		return "", ErrNotInitialized
	}
	if e.img == nil {
		return "", ErrNoImage
	}
	if e.recognized {
		return e.text, nil
	}
	var in bytes.Buffer
	if err := e.img.EncodePNG(&in, e.rect); err != nil {
		return "", err
	}
	cmd := exec.Command("tesseract", e.args()...)
	cmd.Stdin = &in
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			e.log.Debug("tesseract failed", "stderr", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("running tesseract: %w", err)
	}
	text, words, err := ParseTSV(bytes.NewReader(out))
	if err != nil {
		return "", err
	}
	e.text, e.words, e.recognized = text, words, true
	return text, nil
}

func (e *cliEngine) MeanTextConf() int {
	return MeanConfidence(e.words)
}

func (e *cliEngine) AllWordConfidences() []int {
	return WordConfidences(e.words)
}

func (e *cliEngine) SetVariable(name, value string) error {
	if err := checkVariable(name); err != nil {
		return err
	}
	e.vars[name] = value
	e.recognized = false
	return nil
}

func (e *cliEngine) SetPageSegMode(mode PageSegMode) error {
	e.psm = mode
	e.recognized = false
	return nil
}

func (e *cliEngine) Clear() {
	e.img = nil
	e.rect = image.Rectangle{}
	e.recognized = false
	e.words = nil
	e.text = ""
}

// ClearAdaptiveClassifier is a no-op: every recognition runs in a fresh process.
func (e *cliEngine) ClearAdaptiveClassifier() {}

func (e *cliEngine) End() {
	e.Clear()
	e.initialized = false
	e.configs = nil
	e.vars = make(map[string]string)
	e.psm = PSMAuto
}

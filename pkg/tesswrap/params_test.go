package tesswrap

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestParseParameters(t *testing.T) {
	f, err := os.Open("testdata/params.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cat, err := ParseParameters(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat) != 5 {
		t.Errorf("got %d parameters, want 5", len(cat))
	}
	for _, name := range []string{"tessedit_char_whitelist", "preserve_interword_spaces", "log_level"} {
		if !cat.Has(name) {
			t.Errorf("%s missing", name)
		}
	}
	if cat.Has("Tesseract parameters:") || cat.Has("no_such_variable") {
		t.Error("unexpected parameter in catalog")
	}
}

func TestParseParametersEmpty(t *testing.T) {
	if _, err := ParseParameters(strings.NewReader("Tesseract parameters:\n")); err == nil {
		t.Error("expected an error without parameters")
	}
}

func TestCheckVariableEmptyName(t *testing.T) {
	if err := checkVariable(""); err != ErrUnknownVariable {
		t.Errorf("got %v, want ErrUnknownVariable", err)
	}
}

// withCatalog replaces the catalog for the duration of the test.
func withCatalog(t *testing.T, cat Catalog, err error) {
	t.Helper()
	orig := LoadCatalog
	LoadCatalog = func() (Catalog, error) { return cat, err }
	t.Cleanup(func() { LoadCatalog = orig })
}

func TestCheckVariableWithoutCatalog(t *testing.T) {
	withCatalog(t, nil, errors.New("exec: \"tesseract\": executable file not found in $PATH"))
	for _, name := range []string{"no_such_tesseract_variable_xyz", "tessedit_char_whitelist"} {
		if err := checkVariable(name); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: got %v, want ErrUnsupported", name, err)
		}
	}
}

func TestCheckVariableWithCatalog(t *testing.T) {
	withCatalog(t, Catalog{"tessedit_char_whitelist": {}}, nil)
	if err := checkVariable("tessedit_char_whitelist"); err != nil {
		t.Errorf("known variable refused: %v", err)
	}
	if err := checkVariable("no_such_tesseract_variable_xyz"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("got %v, want ErrUnknownVariable", err)
	}
}

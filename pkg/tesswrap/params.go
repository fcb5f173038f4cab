package tesswrap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Catalog is the set of variable names an installed Tesseract accepts.
type Catalog map[string]struct{}

// Has reports whether name is a known Tesseract variable.
func (c Catalog) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// ParseParameters reads the output of `tesseract --print-parameters`.
func ParseParameters(r io.Reader) (Catalog, error) {
	cat := make(Catalog)
	s := bufio.NewScanner(r)
	for s.Scan() {
		// the heading contains no tab, parameter names contain no spaces
		name, _, found := strings.Cut(s.Text(), "\t")
		if !found || name == "" || strings.Contains(name, " ") {
			continue
		}
		cat[name] = struct{}{}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(cat) == 0 {
		return nil, errors.New("no tesseract parameters found")
	}
	return cat, nil
}

// LoadCatalog asks the tesseract program for its parameters. The result is computed once.
// Backends which cannot reject unknown variables themselves use it to validate names.
var LoadCatalog = sync.OnceValues(func() (Catalog, error) {
	if _, err := exec.LookPath("tesseract"); err != nil {
		return nil, err
	}
	out, err := exec.Command("tesseract", "--print-parameters").Output()
	if err != nil {
		return nil, err
	}
	return ParseParameters(bytes.NewReader(out))
})

// checkVariable returns ErrUnknownVariable if the catalog lacks name.
// Without a catalog no name can be verified and ErrUnsupported is returned.
func checkVariable(name string) error {
	if name == "" {
		return ErrUnknownVariable
	}
	cat, err := LoadCatalog()
	if err != nil {
		return fmt.Errorf("%w: cannot verify variable %s: %w", ErrUnsupported, name, err)
	}
	if !cat.Has(name) {
		return ErrUnknownVariable
	}
	return nil
}

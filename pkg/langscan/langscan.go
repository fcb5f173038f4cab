// Package langscan finds the Tesseract language packs installed in a tessdata directory.
//
// Trained data files are named <lang>[<shard>].traineddata. A numeric suffix is the index
// of one shard of a language model split across several files; a file without a suffix
// is shard 0.
package langscan

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"

	"github.com/dlclark/regexp2"
)

// Extension of the files holding a language model
const Extension = ".traineddata"

var traineddata = regexp2.MustCompile(`^(?<lang>[A-Za-z_]+(?:-[A-Za-z_]+)*?)(?<shard>\d+)?\.traineddata$`, regexp2.None)

// Entry is one installed language.
type Entry struct {
	Lang   string `json:"lang"`
	Shards int    `json:"shards"`
}

// Inventory maps language codes to their shard count.
// Registering a language again only ever raises its count.
type Inventory struct {
	shards map[string]int
}

func New() *Inventory {
	return &Inventory{shards: make(map[string]int)}
}

// Register records that lang has at least shards shards.
func (inv *Inventory) Register(lang string, shards int) {
	if cur, ok := inv.shards[lang]; !ok || shards > cur {
		inv.shards[lang] = shards
	}
}

// ShardCount returns the number of shards of lang, 0 if it is not installed.
func (inv *Inventory) ShardCount(lang string) int {
	if inv == nil {
		return 0
	}
	return inv.shards[lang]
}

// Has reports whether lang has at least one shard.
func (inv *Inventory) Has(lang string) bool {
	return inv.ShardCount(lang) > 0
}

func (inv *Inventory) Len() int {
	if inv == nil {
		return 0
	}
	return len(inv.shards)
}

// Entries returns all languages sorted by code.
func (inv *Inventory) Entries() []Entry {
	if inv == nil {
		return []Entry{}
	}
	entries := make([]Entry, 0, len(inv.shards))
	for lang, n := range inv.shards {
		entries = append(entries, Entry{Lang: lang, Shards: n})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Lang, b.Lang) })
	return entries
}

// ParseFilename splits the name of a trained data file into language code and shard index.
func ParseFilename(name string) (lang string, shard int, ok bool) {
	m, err := traineddata.FindStringMatch(name)
	if err != nil || m == nil {
		return "", 0, false
	}
	lang = m.GroupByName("lang").String()
	if s := m.GroupByName("shard").String(); s != "" {
		shard, err = strconv.Atoi(s)
		if err != nil {
			return "", 0, false
		}
	}
	return lang, shard, true
}

// Scan builds a new Inventory from the files in dir. If dir cannot be read
// the inventory is empty and the error is logged and returned.
func Scan(dir string, log *slog.Logger) (*Inventory, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	inv := New()
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn("could not scan for language packs", "dir", dir, "err", err)
		return inv, fmt.Errorf("scanning %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lang, shard, ok := ParseFilename(e.Name())
		if !ok {
			continue
		}
		inv.Register(lang, shard+1)
	}
	log.Debug("scanned language packs", "dir", dir, "languages", inv.Len())
	return inv, nil
}

package langscan

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name  string
		lang  string
		shard int
		ok    bool
	}{
		{"eng.traineddata", "eng", 0, true},
		{"eng2.traineddata", "eng", 2, true},
		{"chi_sim.traineddata", "chi_sim", 0, true},
		{"chi_sim_vert3.traineddata", "chi_sim_vert", 3, true},
		{"osd.traineddata", "osd", 0, true},
		{"eng.user-words", "", 0, false},
		{"eng.traineddata.bak", "", 0, false},
		{"12.traineddata", "", 0, false},
	}
	for _, tt := range tests {
		lang, shard, ok := ParseFilename(tt.name)
		if lang != tt.lang || shard != tt.shard || ok != tt.ok {
			t.Errorf("ParseFilename(%q) = %q, %d, %v; want %q, %d, %v", tt.name, lang, shard, ok, tt.lang, tt.shard, tt.ok)
		}
	}
}

func TestRegisterKeepsMaximum(t *testing.T) {
	inv := New()
	inv.Register("deu", 2)
	inv.Register("deu", 5)
	inv.Register("deu", 3)
	if inv.Len() != 1 {
		t.Fatalf("got %d entries, want 1", inv.Len())
	}
	if n := inv.ShardCount("deu"); n != 5 {
		t.Errorf("shard count = %d, want 5", n)
	}
	if inv.ShardCount("fra") != 0 || inv.Has("fra") {
		t.Error("unknown language reported as installed")
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"eng.traineddata", "deu1.traineddata", "deu4.traineddata", "readme.txt", "configs"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "fra.traineddata.d"), 0o755); err != nil {
		t.Fatal(err)
	}
	inv, err := Scan(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{{Lang: "deu", Shards: 5}, {Lang: "eng", Shards: 1}}
	if got := inv.Entries(); !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
	again, _ := Scan(dir, nil)
	if !slices.Equal(again.Entries(), want) {
		t.Error("second scan differs from the first")
	}
}

func TestScanMissingDir(t *testing.T) {
	inv, err := Scan(filepath.Join(t.TempDir(), "nope"), nil)
	if err == nil {
		t.Error("expected an error")
	}
	if inv == nil || inv.Len() != 0 {
		t.Errorf("expected an empty inventory, got %v", inv)
	}
	if len(inv.Entries()) != 0 {
		t.Error("entries of empty inventory")
	}
}

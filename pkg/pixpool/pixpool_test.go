package pixpool_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/edsrzf/mmap-go"
	"github.com/johbar/ocrlib/pkg/pixpool"
)

func debugLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestPool(t *testing.T) {
	poolsize := 10
	p := pixpool.New(256, poolsize, debugLogger())
	releases := make([]func(), 0, poolsize)
	for range poolsize {
		b, release, err := p.Get(100)
		if err != nil {
			t.Errorf("getting buffer from pool: %v", err)
		}
		if len(b) != 100 {
			t.Errorf("got len %d, want 100", len(b))
		}
		if err := mmap.MMap(b[:cap(b)]).Flush(); err != nil {
			t.Error("buffer is not a mmap!")
		}
		releases = append(releases, release)
	}
	if p.Outstanding.Load() != int32(poolsize) {
		t.Errorf("outstanding = %d, want %d", p.Outstanding.Load(), poolsize)
	}
	for i, release := range releases {
		release()
		if p.CurrentSize() != i+1 {
			t.Errorf("got: %v, want: %v", p.CurrentSize(), i+1)
		}
	}
	if errs := p.Free(); len(errs) != 0 {
		t.Errorf("got: %v", errs)
	}
	if p.CurrentSize() != 0 {
		t.Errorf("got: %v, want: 0", p.CurrentSize())
	}
}

func TestReleaseTwice(t *testing.T) {
	p := pixpool.New(256, 4, nil)
	_, release, err := p.Get(10)
	if err != nil {
		t.Fatal(err)
	}
	release()
	release()
	if p.CurrentSize() != 1 {
		t.Errorf("region pooled %d times, want once", p.CurrentSize())
	}
	if p.Outstanding.Load() != 0 {
		t.Errorf("outstanding = %d, want 0", p.Outstanding.Load())
	}
}

func TestReusedBufferIsCleared(t *testing.T) {
	p := pixpool.New(64, 1, nil)
	b, release, _ := p.Get(64)
	for i := range b {
		b[i] = 0xff
	}
	release()
	b, release, _ = p.Get(32)
	defer release()
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d = %d, want 0", i, v)
		}
	}
}

func TestOversizedRequest(t *testing.T) {
	p := pixpool.New(64, 1, nil)
	b, release, err := p.Get(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 1000 {
		t.Errorf("got len %d", len(b))
	}
	release()
	if p.CurrentSize() != 0 {
		t.Error("heap buffer was pooled")
	}
}

func TestPoolFullUnmaps(t *testing.T) {
	p := pixpool.New(64, 1, nil)
	_, r1, _ := p.Get(8)
	_, r2, _ := p.Get(8)
	r1()
	r2()
	if p.CurrentSize() != 1 {
		t.Errorf("got %d idle regions, want 1", p.CurrentSize())
	}
	if p.NumCreated.Load() != 1 {
		t.Errorf("got %d mapped regions, want 1", p.NumCreated.Load())
	}
}

func TestMappingFailure(t *testing.T) {
	p := pixpool.New(64, 2, nil)
	errNoMem := errors.New("cannot allocate memory")
	restore := pixpool.FailMapping(errNoMem)
	b, release, err := p.Get(16)
	restore()
	if !errors.Is(err, errNoMem) {
		t.Fatalf("got %v, want %v", err, errNoMem)
	}
	if len(b) != 16 {
		t.Errorf("got len %d, want 16", len(b))
	}
	release()
	if p.NumCreated.Load() != 0 || p.Outstanding.Load() != 0 || p.CurrentSize() != 0 {
		t.Errorf("created = %d, outstanding = %d, idle = %d after failed mapping",
			p.NumCreated.Load(), p.Outstanding.Load(), p.CurrentSize())
	}
	_, release, err = p.Get(16)
	if err != nil {
		t.Fatal(err)
	}
	release()
	if p.NumCreated.Load() != 1 {
		t.Errorf("created = %d, want 1", p.NumCreated.Load())
	}
}

func BenchmarkNormalAlloc(b *testing.B) {
	for b.Loop() {
		buf := make([]byte, 200_000)
		buf[0] = 1
	}
}

func BenchmarkPoolAlloc(b *testing.B) {
	pool := pixpool.New(200_000, 16, nil)
	for b.Loop() {
		buf, release, err := pool.Get(200_000)
		if err != nil {
			b.Fatal(err)
		}
		buf[0] = 1
		release()
	}
}

// Package pixpool lends off-heap pixel buffers, backed by anonymous memory-mapped regions.
// A buffer may be handed to an OCR engine which keeps a raw pointer to it: the memory is
// never moved by the Go runtime and is only reused after its release function was called.
package pixpool

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"
)

var mapRegion = func(size int) (mmap.MMap, error) {
	return mmap.MapRegion(nil, size, mmap.RDWR, mmap.ANON, 0)
}

type Pool struct {
	mmaps    chan mmap.MMap
	elemSize int
	log      *slog.Logger
	// NumCreated counts the regions mapped so far
	NumCreated atomic.Int32
	// Outstanding counts buffers not yet released
	Outstanding atomic.Int32
}

// New creates a pool of at most poolSize idle regions of elemSize bytes each.
// Regions are mapped lazily. Anonymous mappings only consume memory for pages
// actually written, so elemSize can be the largest image size accepted.
func New(elemSize, poolSize int, logger *slog.Logger) *Pool {
	if elemSize < 8 {
		panic("illegal elemSize for pixpool")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pool{mmaps: make(chan mmap.MMap, poolSize), elemSize: elemSize, log: logger}
}

// Get returns a buffer of length n and the function that gives it back.
// release may be called any number of times; only the first call has an effect.
// Requests bigger than the element size are served from the heap.
// If mapping fails, a heap buffer is returned together with the error.
func (p *Pool) Get(n int) (buf []byte, release func(), err error) {
	if n > p.elemSize {
		p.log.Debug("buffer request exceeds element size, using heap", "size", n, "elemSize", p.elemSize)
		return make([]byte, n), func() {}, nil
	}
	var m mmap.MMap
	select {
	case m = <-p.mmaps:
		clear(m[:n])
	default:
		m, err = mapRegion(p.elemSize)
		if err != nil {
			return make([]byte, n), func() {}, err
		}
		created := p.NumCreated.Add(1)
		if created > int32(p.PoolSize()) {
			p.log.Warn("Number of buffers allocated is bigger than pool size. This might indicate a leak.", "created", created, "poolSize", p.PoolSize())
		}
	}
	p.Outstanding.Add(1)
	var once sync.Once
	return m[:n], func() { once.Do(func() { p.put(m) }) }, nil
}

// put returns a region to the pool. If all slots are taken the region is unmapped.
func (p *Pool) put(m mmap.MMap) {
	p.Outstanding.Add(-1)
	select {
	case p.mmaps <- m:
		p.log.Debug("buffer returned to pool", "idle", len(p.mmaps))
	default:
		err := m.Unmap()
		p.NumCreated.Add(-1)
		p.log.Debug("buffer was unmapped because pool was full", "err", err)
	}
}

// CurrentSize reports the number of idle regions.
func (p *Pool) CurrentSize() int {
	return len(p.mmaps)
}

func (p *Pool) PoolSize() int {
	return cap(p.mmaps)
}

func (p *Pool) ElemSize() int {
	return p.elemSize
}

// Free unmaps every idle region. Buffers still lent out are unaffected.
func (p *Pool) Free() []error {
	var errs []error
	for {
		select {
		case m := <-p.mmaps:
			p.NumCreated.Add(-1)
			if err := m.Unmap(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errs
		}
	}
}

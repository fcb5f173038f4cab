package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/johbar/ocrlib/internal/ocr"
	"github.com/johbar/ocrlib/pkg/tesswrap"
)

var errEnginesBusy = errors.New("all tesseract engines are busy")

// adapterPool keeps opened adapters for one-shot requests, so the language model is not
// loaded again for every image. At most size idle adapters are kept per language and mode.
// At most maxEngines adapters are open at a time, idle ones included.
type adapterPool struct {
	mu         sync.Mutex
	idle       map[string]chan *ocr.Adapter
	size       int
	newAdapter func(tesswrap.PageSegMode) *ocr.Adapter
	log        *slog.Logger
	// engines holds one token per open adapter. nil means unbounded
	engines chan struct{}
	waiting atomic.Int32
}

func newAdapterPool(size, maxEngines int, newAdapter func(tesswrap.PageSegMode) *ocr.Adapter, log *slog.Logger) *adapterPool {
	p := &adapterPool{idle: make(map[string]chan *ocr.Adapter), size: size, newAdapter: newAdapter, log: log}
	if maxEngines > 0 {
		p.engines = make(chan struct{}, maxEngines)
	}
	return p
}

func poolKey(lang string, psm tesswrap.PageSegMode) string {
	return lang + "/" + strconv.Itoa(int(psm))
}

func (p *adapterPool) slot(key string) chan *ocr.Adapter {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.idle[key]
	if !ok {
		ch = make(chan *ocr.Adapter, p.size)
		p.idle[key] = ch
	}
	return ch
}

// get returns an idle adapter or opens a new one. If the engine limit is reached
// it waits for an engine to become free until ctx is done.
func (p *adapterPool) get(ctx context.Context, lang string, psm tesswrap.PageSegMode) (*ocr.Adapter, error) {
	select {
	case a := <-p.slot(poolKey(lang, psm)):
		return a, nil
	default:
	}
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	a := p.newAdapter(psm)
	if err := a.Open(lang); err != nil {
		p.release()
		return nil, err
	}
	return a, nil
}

func (p *adapterPool) acquire(ctx context.Context) error {
	if p.engines == nil {
		return nil
	}
	for {
		select {
		case p.engines <- struct{}{}:
			return nil
		default:
		}
		if p.evictIdle() {
			continue
		}
		break
	}
	p.waiting.Add(1)
	defer p.waiting.Add(-1)
	// an adapter may have become idle before waiting was raised
	p.evictIdle()
	select {
	case p.engines <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errEnginesBusy, ctx.Err())
	}
}

func (p *adapterPool) release() {
	if p.engines != nil {
		<-p.engines
	}
}

// evictIdle closes one idle adapter of any language. It reports whether one was found.
func (p *adapterPool) evictIdle() bool {
	var victim *ocr.Adapter
	p.mu.Lock()
	for _, ch := range p.idle {
		select {
		case victim = <-ch:
		default:
			continue
		}
		break
	}
	p.mu.Unlock()
	if victim == nil {
		return false
	}
	p.log.Debug("closing idle adapter to free an engine", "lang", victim.Language())
	p.closeAdapter(victim)
	return true
}

func (p *adapterPool) closeAdapter(a *ocr.Adapter) {
	a.Close()
	p.release()
}

// put resets a and keeps it for reuse, or closes it if enough adapters are idle.
func (p *adapterPool) put(a *ocr.Adapter, psm tesswrap.PageSegMode) {
	if err := a.ClearResults(); err != nil {
		p.closeAdapter(a)
		return
	}
	a.ClearAdaptiveState()
	select {
	case p.slot(poolKey(a.Language(), psm)) <- a:
	default:
		p.log.Debug("closing surplus adapter", "lang", a.Language())
		p.closeAdapter(a)
		return
	}
	if p.waiting.Load() > 0 {
		p.evictIdle()
	}
}

func (p *adapterPool) closeAll() {
	p.mu.Lock()
	var open []*ocr.Adapter
	for key, ch := range p.idle {
	drain:
		for {
			select {
			case a := <-ch:
				open = append(open, a)
			default:
				break drain
			}
		}
		delete(p.idle, key)
	}
	p.mu.Unlock()
	for _, a := range open {
		p.closeAdapter(a)
	}
}

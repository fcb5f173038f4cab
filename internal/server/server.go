// Package server exposes OCR sessions and one-shot recognition over HTTP and NATS.
package server

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/johbar/ocrlib/internal/cache"
	"github.com/johbar/ocrlib/internal/config"
	"github.com/johbar/ocrlib/internal/imageload"
	"github.com/johbar/ocrlib/internal/ocr"
	"github.com/johbar/ocrlib/internal/session"
	"github.com/johbar/ocrlib/pkg/langscan"
	"github.com/johbar/ocrlib/pkg/tesswrap"
)

var (
	recognitions   = expvar.NewInt("ocr_recognitions")
	cacheHits      = expvar.NewInt("ocr_cache_hits")
	sessionsOpened = expvar.NewInt("ocr_sessions_opened")
	failures       = expvar.NewInt("ocr_failures")
)

var (
	errUnknownPreset = errors.New("unknown preset")
	errBadRequest    = errors.New("bad request")
)

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", errBadRequest, err)
}

type Service struct {
	conf     *config.OcrConfig
	adapter  ocr.Options
	sessions *session.Registry
	loader   *imageload.Loader
	presets  config.Presets
	cache    cache.Cache
	idle     *adapterPool
	log      *slog.Logger
}

// Deps are the collaborators of a Service. Cache and Presets may be nil.
type Deps struct {
	Config   *config.OcrConfig
	Adapter  ocr.Options
	Sessions *session.Registry
	Loader   *imageload.Loader
	Presets  config.Presets
	Cache    cache.Cache
	Logger   *slog.Logger
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Cache == nil {
		d.Cache = &cache.NopCache{}
	}
	if d.Presets == nil {
		d.Presets = config.Presets{}
	}
	s := &Service{
		conf:     d.Config,
		adapter:  d.Adapter,
		sessions: d.Sessions,
		loader:   d.Loader,
		presets:  d.Presets,
		cache:    d.Cache,
		log:      d.Logger,
	}
	s.idle = newAdapterPool(2, d.Config.MaxEngines, s.newAdapter, d.Logger)
	return s
}

// NewAdapter returns an unopened adapter using the default page segmentation mode.
func (s *Service) NewAdapter() *ocr.Adapter {
	return s.newAdapter(s.adapter.PageSegMode)
}

func (s *Service) newAdapter(psm tesswrap.PageSegMode) *ocr.Adapter {
	opts := s.adapter
	opts.PageSegMode = psm
	return ocr.New(opts, s.log)
}

// Close closes all sessions and idle adapters.
func (s *Service) Close() {
	s.sessions.CloseAll()
	s.idle.closeAll()
}

// RunSessionReaper closes sessions unused for longer than idle until ctx is done.
func (s *Service) RunSessionReaper(ctx context.Context, idle time.Duration) {
	s.sessions.RunReaper(ctx, idle/4, idle)
}

func (s *Service) tessdataDir() string {
	return filepath.Join(s.adapter.DataDir, "tessdata")
}

// Languages scans the tessdata directory.
func (s *Service) Languages() *langscan.Inventory {
	inv, _ := langscan.Scan(s.tessdataDir(), s.log)
	return inv
}

func parsePSM(str string, def tesswrap.PageSegMode) (tesswrap.PageSegMode, error) {
	if str == "" {
		return def, nil
	}
	n, err := strconv.Atoi(str)
	if err != nil || n < int(tesswrap.PSMOSDOnly) || n > int(tesswrap.PSMRawLine) {
		return 0, badRequest(fmt.Errorf("page segmentation mode %q", str))
	}
	return tesswrap.PageSegMode(n), nil
}

// recognizeOnce recognizes an uploaded image with an idle adapter for lang and psm.
// Results of encoded images are cached.
func (s *Service) recognizeOnce(ctx context.Context, data []byte, lang string, psm tesswrap.PageSegMode, raw *imageload.RawParams) (res *ocr.Result, cached bool, err error) {
	if lang == "" {
		lang = s.conf.DefaultLang
	}
	if err := ocr.ValidateLanguage(lang); err != nil {
		return nil, false, err
	}
	var key string
	if raw == nil {
		key = cache.Key(data, lang, int(psm))
		res, err := s.cache.Get(key)
		if err != nil {
			s.log.Warn("could not read result cache", "key", key, "err", err)
		}
		if res != nil {
			cacheHits.Add(1)
			return res, true, nil
		}
	}
	img, err := s.loader.Load(data, raw)
	if err != nil {
		return nil, false, err
	}
	if s.conf.EngineWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.conf.EngineWait)
		defer cancel()
	}
	a, err := s.idle.get(ctx, lang, psm)
	if err != nil {
		img.Release()
		return nil, false, err
	}
	defer s.idle.put(a, psm)
	if _, err := a.RecognizeImage(img); err != nil {
		img.Release()
		return nil, false, err
	}
	recognitions.Add(1)
	res, err = a.Result()
	if err != nil {
		return nil, false, err
	}
	if key != "" {
		if err := s.cache.Save(key, res); err != nil {
			s.log.Warn("Could not save result to cache", "key", key, "err", err)
		}
	}
	return res, false, nil
}

// statusFor maps errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, errUnknownPreset):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessions), errors.Is(err, ocr.ErrEngineInit), errors.Is(err, errEnginesBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, ocr.ErrInvalidLanguage),
		errors.Is(err, ocr.ErrInvalidGeometry),
		errors.Is(err, ocr.ErrShortBuffer),
		errors.Is(err, ocr.ErrUnknownVariable),
		errors.Is(err, imageload.ErrEmpty),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ocr.ErrLanguageNotInstalled), errors.Is(err, imageload.ErrUndecodable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ocr.ErrImageHeld),
		errors.Is(err, ocr.ErrNoImage),
		errors.Is(err, ocr.ErrNoResult),
		errors.Is(err, ocr.ErrNotOpen),
		errors.Is(err, ocr.ErrAlreadyOpen):
		return http.StatusConflict
	case errors.Is(err, imageload.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, imageload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ocr.ErrUnsupported):
		return http.StatusNotImplemented
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

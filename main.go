package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/johbar/ocrlib/internal/cache"
	ocrnats "github.com/johbar/ocrlib/internal/cache/nats"
	"github.com/johbar/ocrlib/internal/config"
	"github.com/johbar/ocrlib/internal/imageload"
	"github.com/johbar/ocrlib/internal/ocr"
	"github.com/johbar/ocrlib/internal/server"
	"github.com/johbar/ocrlib/internal/session"
	"github.com/johbar/ocrlib/pkg/pixpool"
	"github.com/johbar/ocrlib/pkg/tesswrap"
)

// pixel buffers of the pool fit a 300 dpi A4 page in RGBA
const poolElemSize = 2480 * 3508 * 4

var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}))

func main() {
	conf, err := config.NewOcrConfigFromEnv()
	if err != nil {
		logger.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: conf.LogLevel, AddSource: conf.Debug}))
	slog.SetDefault(logger)

	pool := pixpool.New(poolElemSize, conf.PoolSize, logger)
	defer pool.Free()
	loader := imageload.New(pool, conf.MaxImageSizeBytes, conf.MaxPixelBytesValue, logger)
	adapterOpts := ocr.Options{
		DataDir:      conf.DataDir,
		TuningConfig: conf.TuningConfig,
		PageSegMode:  tesswrap.PageSegMode(conf.DefaultPSM),
		DumpDir:      conf.DebugDumpDir,
	}

	// one shot mode: don't start a server, just process a single image provided on the command line
	if len(os.Args) > 1 {
		lang := conf.DefaultLang
		if len(os.Args) > 2 {
			lang = os.Args[2]
		}
		os.Exit(PrintResultToStdout(os.Args[1], lang, loader, ocr.New(adapterOpts, logger)))
	}

	if os.Getenv("GOMEMLIMIT") != "" {
		logger.Info("GOMEMLIMIT", "Bytes", debug.SetMemoryLimit(-1), "MBytes", debug.SetMemoryLimit(-1)/1024/1024)
	}
	buildinfo, _ := debug.ReadBuildInfo()
	logger.Debug("Info", "buildinfo", buildinfo)

	presets, err := config.LoadPresets(conf.PresetsFile)
	if err != nil {
		logger.Error("Could not load presets", "err", err)
		os.Exit(1)
	}

	var resultCache cache.Cache = &cache.NopCache{}
	nc, err := ocrnats.Connect(conf, logger)
	if err != nil {
		logger.Warn("NATS not available. Results will not be cached", "err", err)
		if conf.FailWithoutJetstream {
			os.Exit(1)
		}
	} else {
		defer nc.Drain()
		store, err := cache.New(conf, logger, nc)
		if err != nil {
			logger.Error("JetStream not available. Results will not be cached", "err", err)
			if conf.FailWithoutJetstream {
				os.Exit(1)
			}
		} else {
			resultCache = store
		}
	}

	newAdapter := func() *ocr.Adapter { return ocr.New(adapterOpts, logger) }
	svc := server.New(server.Deps{
		Config:   conf,
		Adapter:  adapterOpts,
		Sessions: session.New(newAdapter, conf.MaxSessions, logger),
		Loader:   loader,
		Presets:  presets,
		Cache:    resultCache,
		Logger:   logger,
	})
	defer svc.Close()
	logStartup(conf, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if conf.SessionIdleTimeout > 0 {
		go svc.RunSessionReaper(ctx, conf.SessionIdleTimeout)
	}
	if nc != nil {
		if _, err := svc.RegisterNatsService(nc); err != nil {
			logger.Error("Could not register NATS service", "err", err)
			os.Exit(1)
		}
	}

	if conf.NoHttp {
		if nc == nil {
			logger.Error("Fatal: NATS not connected and HTTP disabled.")
			os.Exit(1)
		}
		logger.Info("Service started with no HTTP endpoints. Waiting for interrupt.")
		<-ctx.Done()
		return
	}
	serve(ctx, conf.SrvAddr, svc.Router())
}

func serve(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()
	logger.Info("Service started", "address", srv.Addr)
	defer logger.Info("HTTP Server stopped.")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		// Error starting or closing listener:
		logger.Error("Webserver failed", "err", err)
	}
}

func logStartup(conf *config.OcrConfig, svc *server.Service) {
	logger.Info("Using Tesseract", "backend", tesswrap.Backend, "version", tesswrap.Version, "dataDir", conf.DataDir)
	inv := svc.Languages()
	if inv.Len() == 0 {
		logger.Warn("No language packs found", "dir", svc.NewAdapter().TessdataDir())
		return
	}
	if !inv.Has(conf.DefaultLang) {
		logger.Warn("Default language is not installed", "lang", conf.DefaultLang)
	}
	logger.Info("Language packs found", "count", inv.Len())
}

//go:build embed_nats

package nats

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/johbar/ocrlib/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = true

// JetStream domain of the embedded server. Leaf nodes reach the result cache under $JS.ocr.API.
const embeddedDomain = "ocr"

func embeddedOptions(conf *config.OcrConfig) *server.Options {
	storeDir := conf.NatsStoreDir
	if storeDir == "" {
		storeDir = filepath.Join(os.TempDir(), "ocr-nats")
	}
	return &server.Options{
		ServerName:      "ocr-" + embeddedDomain,
		JetStream:       true,
		JetStreamDomain: embeddedDomain,
		StoreDir:        storeDir,
		MaxPayload:      conf.NatsMaxPayload,
		DontListen:      !conf.ExposeNats,
		Host:            conf.NatsHost,
		Port:            conf.NatsPort,
		NoSigs:          true,
	}
}

// ConnectToEmbeddedNatsServer starts a NATS server with JetStream in this process and
// connects to it without a socket. The server shuts down when the connection is closed.
func ConnectToEmbeddedNatsServer(conf *config.OcrConfig, log *slog.Logger) (*nats.Conn, error) {
	_, nc, err := startEmbedded(conf, log)
	return nc, err
}

func startEmbedded(conf *config.OcrConfig, log *slog.Logger) (*server.Server, *nats.Conn, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	opts := embeddedOptions(conf)
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, nil, err
	}
	ns.ConfigureLogger()
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, errors.New("embedded NATS not ready")
	}
	nc, err := nats.Connect("", nats.InProcessServer(ns), nats.Name("OCR"),
		nats.ClosedHandler(func(*nats.Conn) {
			ns.Shutdown()
			log.Debug("Embedded NATS stopped")
		}))
	if err != nil {
		ns.Shutdown()
		return nil, nil, err
	}
	log.Info("Embedded NATS started", "domain", embeddedDomain, "storeDir", opts.StoreDir, "exposed", conf.ExposeNats)
	return ns, nc, nil
}

package nats

import (
	"errors"
	"log/slog"
	"time"

	"github.com/johbar/ocrlib/internal/config"
	"github.com/nats-io/nats.go"
)

var errNatsNotEmbedded = errors.New("NATS has not been embedded in this build")

// SetupNatsConnection connects the service to the external NATS server(s) in conf.NatsUrl,
// retrying conf.NatsConnectRetries times.
func SetupNatsConnection(conf *config.OcrConfig, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log.Info("Try connecting to NATS", "url", conf.NatsUrl, "timeoutSecs", conf.NatsTimeout.Seconds())
	for attempts := 1; ; attempts++ {
		nc, err := nats.Connect(conf.NatsUrl, nats.Name("OCR"), nats.Timeout(conf.NatsTimeout))
		if err == nil {
			return nc, nil
		}
		log.Error("Connecting to NATS failed",
			"url", conf.NatsUrl,
			"timeoutSecs", conf.NatsTimeout.Seconds(),
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		if attempts > conf.NatsConnectRetries {
			log.Error("Connecting to NATS failed. Retry count exceeded", "err", err, "maxRetries", conf.NatsConnectRetries)
			return nil, err
		}
		time.Sleep(time.Second)
	}
}

// Connect connects to external NATS if a URL is configured, to an embedded server otherwise.
// It returns nil and an error if neither is available.
func Connect(conf *config.OcrConfig, log *slog.Logger) (*nats.Conn, error) {
	if conf.NatsUrl != "" {
		return SetupNatsConnection(conf, log)
	}
	return ConnectToEmbeddedNatsServer(conf, log)
}

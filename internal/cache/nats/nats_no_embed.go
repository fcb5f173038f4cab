//go:build !embed_nats

package nats

import (
	"log/slog"

	"github.com/johbar/ocrlib/internal/config"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = false

func ConnectToEmbeddedNatsServer(_ *config.OcrConfig, _ *slog.Logger) (*nats.Conn, error) {
	return nil, errNatsNotEmbedded
}

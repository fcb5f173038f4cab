package nats

import (
	"testing"
	"time"

	"github.com/johbar/ocrlib/internal/config"
)

func TestSetupNatsConnectionGivesUp(t *testing.T) {
	conf := &config.OcrConfig{NatsUrl: "nats://127.0.0.1:1", NatsTimeout: 100 * time.Millisecond, NatsConnectRetries: 0}
	nc, err := SetupNatsConnection(conf, nil)
	if err == nil {
		nc.Close()
		t.Fatal("connected to a closed port")
	}
}

func TestConnectWithoutUrl(t *testing.T) {
	conf := &config.OcrConfig{NatsMaxPayload: 1 << 20, NatsStoreDir: t.TempDir(), NatsPort: 4222}
	nc, err := Connect(conf, nil)
	if NatsEmbedded {
		if err != nil {
			t.Fatal(err)
		}
		nc.Close()
		return
	}
	if err != errNatsNotEmbedded {
		t.Errorf("got %v, want errNatsNotEmbedded", err)
	}
}

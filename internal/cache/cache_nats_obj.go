package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/johbar/ocrlib/internal/config"
	"github.com/johbar/ocrlib/internal/ocr"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type ObjectStoreCache struct {
	jetstream.ObjectStore
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

func New(conf *config.OcrConfig, log *slog.Logger, nc *nats.Conn) (*ObjectStoreCache, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if nc == nil {
		return nil, errors.New("no connection to NATS")
	}
	js, err := setupJetstream(conf, nc, log)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Storage:     jetstream.FileStorage,
		Bucket:      conf.Bucket,
		Description: "OCR results",
		Compression: true,
		Replicas:    conf.Replicas,
	})
	if err != nil {
		log.Error("Creating NATS object store failed", "err", err)
		return nil, fmt.Errorf("initializing NATS object store: %w", err)
	}
	log.Info("NATS object store initialized.", "bucket", conf.Bucket)
	return &ObjectStoreCache{store, nc, js, log}, nil
}

func setupJetstream(conf *config.OcrConfig, nc *nats.Conn, log *slog.Logger) (jetstream.JetStream, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		log.Error("FATAL: Error when initializing NATS JetStream", "err", err.Error())
		return nil, err
	}

	for attempts := 0; attempts <= conf.NatsConnectRetries; attempts++ {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		_, err = js.AccountInfo(ctx)
		cancel()
		if err == nil {
			return js, nil
		}
		if errors.Is(err, jetstream.ErrJetStreamNotEnabled) || errors.Is(err, jetstream.ErrJetStreamNotEnabledForAccount) {
			return nil, err
		}
		log.Error("NATS JetStream check failed. Is JetStream enabled in external NATS server(s)?",
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		time.Sleep(time.Second)
	}
	return nil, fmt.Errorf("retry count exceeded: %w", err)
}

func (store ObjectStoreCache) Get(key string) (*ocr.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := store.GetBytes(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieving object %s from object store: %w", key, err)
	}
	var res ocr.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding cached result %s: %w", key, err)
	}
	return &res, nil
}

func (store ObjectStoreCache) Save(key string, res *ocr.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	m := jetstream.ObjectMeta{
		Name: key,
		Metadata: map[string]string{
			"lang":           res.Language,
			"meanConfidence": strconv.Itoa(res.MeanConfidence),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	info, err := store.ObjectStore.Put(ctx, m, bytes.NewReader(data))
	if err != nil {
		return err
	}
	store.log.Debug("Saved OCR result in NATS object store bucket", "key", key, "size", info.Size)
	return nil
}

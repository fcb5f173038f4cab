package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// OcrConfig represents the configuration of this service
type OcrConfig struct {
	// Name of the object store bucket in NATS caching one-shot results. Default: OCR_RESULTS
	Bucket string `env:"OCR_BUCKET" default:"OCR_RESULTS" validate:"required"`
	// Directory containing the tessdata directory. Default: /usr/share/tesseract-ocr/5
	DataDir string `env:"OCR_DATA_DIR" default:"/usr/share/tesseract-ocr/5" validate:"required"`
	// Add source info to log statement. Default: false
	Debug bool `env:"OCR_DEBUG" default:"false"`
	// If set, the last recognized image and text of every adapter are written here
	DebugDumpDir string `env:"OCR_DEBUG_DUMP_DIR"`
	// Language used when a request names none. Default: eng
	DefaultLang string `env:"OCR_DEFAULT_LANG" default:"eng" validate:"required"`
	// Page segmentation mode applied when an adapter is opened. Default: 3 (fully automatic)
	DefaultPSM int `env:"OCR_DEFAULT_PSM" default:"3" validate:"min=0,max=13"`
	// How long a one-shot request waits for a free engine. 0 waits as long as the client does
	EngineWait time.Duration `env:"OCR_ENGINE_WAIT" default:"30s"`
	// wether to expose embedded NATS server to other clients. Default: false
	ExposeNats bool `env:"OCR_EXPOSE_NATS" default:"false"`
	// If true the service will exit with an error if NATS or JetStream can't be connected
	FailWithoutJetstream bool `env:"OCR_FAIL_WITHOUT_JS" default:"false"`
	// Log level (DEBUG, INFO, WARN, ERROR)
	LogLevelStr string `env:"OCR_LOG_LEVEL" default:"INFO"`
	LogLevel    slog.Level
	// Maximum size of an uploaded image
	MaxImageSize      string `env:"OCR_MAX_IMAGE_SIZE" default:"50MiB"`
	MaxImageSizeBytes uint64
	// Maximum number of decoded pixel bytes, i.e. width*height*4 for color images
	MaxPixelBytes      string `env:"OCR_MAX_PIXEL_BYTES" default:"256MiB"`
	MaxPixelBytesValue uint64
	// Maximum number of engines open for one-shot requests, idle ones included. 0 means unlimited
	MaxEngines int `env:"OCR_MAX_ENGINES" default:"4" validate:"min=0"`
	// Maximum number of open sessions. 0 means unlimited
	MaxSessions int `env:"OCR_MAX_SESSIONS" default:"16" validate:"min=0"`
	// NATS max msg size (embedded server only)
	NatsMaxPayload int32 `env:"OCR_MAX_PAYLOAD" default:"8388608"`
	// embedded NATS server storage location. Default: $TMPDIR/ocr-nats
	NatsStoreDir string `env:"OCR_NATS_STORE_DIR"`
	// embedded NATS server host/ip address, if exposed. Default: localhost
	NatsHost string `env:"OCR_NATS_HOST" default:"localhost"`
	// embedded NATS server port, if exposed. Default: 4222
	NatsPort int `env:"OCR_NATS_PORT" default:"4222" validate:"min=1,max=65535"`
	// External NATS URL, e.g. nats://localhost:4222
	NatsUrl string `env:"OCR_NATS_URL"`
	// Timeout for the external NATS connection
	NatsTimeout time.Duration `env:"OCR_NATS_TIMEOUT" default:"15s"`
	// NatsConnectRetries is the number of attempts to connect to external NATS server(s)
	NatsConnectRetries int `env:"OCR_NATS_CONNECT_RETRIES" default:"10" validate:"min=1"`
	// if true, disable HTTP Server in favor of NATS Microservice interface
	NoHttp bool `env:"OCR_NO_HTTP" default:"false"`
	// Number of idle pixel buffers kept for reuse
	PoolSize int `env:"OCR_POOL_SIZE" default:"4" validate:"min=0"`
	// YAML file with named sets of Tesseract variables
	PresetsFile string `env:"OCR_PRESETS_FILE"`
	// How many replicas of the bucket to create. Default: 1
	Replicas int `env:"OCR_REPLICAS" default:"1" validate:"min=1,max=5"`
	// Sessions unused for this long are closed. 0 disables reaping
	SessionIdleTimeout time.Duration `env:"OCR_SESSION_IDLE_TIMEOUT" default:"10m"`
	// HTTP listen address and/or port. Default: ':8080'
	SrvAddr string `env:"OCR_HOST_PORT" default:":8080"`
	// Config file in tessdata read after the engine was initialized. Empty disables it
	TuningConfig string `env:"OCR_TUNING_CONFIG" default:"ratings"`
}

// NewOcrConfigFromEnv returns a service config object
// populated with defaults and values from environment vars
func NewOcrConfigFromEnv() (*OcrConfig, error) {
	var cfg OcrConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, err
	}
	if err := cfg.parse(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *OcrConfig) parse() error {
	err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelStr))
	if err != nil {
		return fmt.Errorf("parsing log level from env: %w", err)
	}
	maxSize, err := humanize.ParseBytes(cfg.MaxImageSize)
	if err != nil {
		return fmt.Errorf("parsing max image size from env: %w", err)
	}
	cfg.MaxImageSizeBytes = maxSize
	maxPix, err := humanize.ParseBytes(cfg.MaxPixelBytes)
	if err != nil {
		return fmt.Errorf("parsing max pixel bytes from env: %w", err)
	}
	cfg.MaxPixelBytesValue = maxPix
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Presets maps a preset name to the Tesseract variables it sets.
type Presets map[string]map[string]string

// LoadPresets reads presets from a YAML file like
//
//	digits:
//	  tessedit_char_whitelist: "0123456789"
//
// An empty path yields no presets.
func LoadPresets(path string) (Presets, error) {
	presets := Presets{}
	if path == "" {
		return presets, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading presets: %w", err)
	}
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parsing presets %s: %w", path, err)
	}
	for name, vars := range presets {
		if len(vars) == 0 {
			return nil, fmt.Errorf("preset %s sets no variables", name)
		}
	}
	return presets, nil
}

package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Signals   SignalsConfig   `json:"signals"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Market    MarketConfig    `json:"market"`
	Ops       OpsConfig       `json:"ops"`
	Events    EventsConfig    `json:"events"`
}

type TelegramConfig struct {
	Token    string  `json:"token" validate:"required"`
	AdminIDs []int64 `json:"admin_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout" default:"10s"`
	// LogChat receives forwarded log lines when logging.telegram is enabled.
	LogChat int64 `json:"log_chat,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" default:"info" validate:"oneof=trace debug info warn warning error"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" default:"./signalbot.log"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level" default:"warn"`
	RatePerSec int    `json:"rate_per_sec" default:"1" validate:"gte=1"`
}

// StorageConfig selects the persistence backend.
//
//	"storage": { "driver": "sqlite", "path": "./data/signalbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver" default:"sqlite" validate:"oneof=sqlite postgres memory"`
	Path        string `json:"path" default:"./data/signalbot.db"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres"`
	BusyTimeout string `json:"busy_timeout,omitempty" default:"5s"`
}

type SignalsConfig struct {
	ImagesDir string `json:"images_dir" default:"./assets/signals"`
}

type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec" default:"20" validate:"gte=1"`
}

type MarketConfig struct {
	Timeout       string      `json:"timeout" default:"10s"`
	YahooFallback *bool       `json:"yahoo_fallback,omitempty" default:"true"`
	Cache         CacheConfig `json:"cache"`
}

type CacheConfig struct {
	Driver string      `json:"driver" default:"memory" validate:"oneof=none memory redis"`
	TTL    string      `json:"ttl" default:"60s"`
	Redis  RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr     string `json:"addr" default:"127.0.0.1:6379"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db" validate:"gte=0"`
	Prefix   string `json:"prefix" default:"signalbot:snapshot:"`
}

// OpsConfig controls the metrics/health/pprof HTTP server.
//
// Prefer a loopback address; set a token when binding elsewhere.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr" default:"127.0.0.1:9090"`
	Token   string `json:"token,omitempty"`
	Pprof   bool   `json:"pprof"`
}

type EventsConfig struct {
	Kafka KafkaConfig `json:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled"`
	Brokers []string `json:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `json:"topic" default:"signalbot.events"`
}

// YahooEnabled reports the effective yahoo_fallback value.
func (m MarketConfig) YahooEnabled() bool {
	return m.YahooFallback == nil || *m.YahooFallback
}

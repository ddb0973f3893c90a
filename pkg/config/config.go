// Package config reads the gateway settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	DriverTimer = "timer"
	DriverAck   = "ack"
)

var validate = validator.New()

type Config struct {
	Addr      string `env:"GATEWAY_ADDR" envDefault:":8080" validate:"required"`
	LogLevel  string `env:"LOG_LEVEL"    envDefault:"info"  validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `env:"LOG_FORMAT"   envDefault:"text"  validate:"oneof=text json"`
	LogFile   string `env:"LOG_FILE"`

	DeliveryDelay   time.Duration `env:"DELIVERY_DELAY"   envDefault:"1s"    validate:"gte=0"`
	ReadDelay       time.Duration `env:"READ_DELAY"       envDefault:"3s"    validate:"gtefield=DeliveryDelay"`
	TypingTimeout   time.Duration `env:"TYPING_TIMEOUT"   envDefault:"1s"    validate:"gt=0"`
	LifecycleDriver string        `env:"LIFECYCLE_DRIVER" envDefault:"timer" validate:"oneof=timer ack"`

	SnowflakeNode  int64 `env:"SNOWFLAKE_NODE"   envDefault:"1"    validate:"gte=0,lte=1023"`
	SendBuffer     int   `env:"SEND_BUFFER"      envDefault:"256"  validate:"gt=0"`
	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE" envDefault:"4096" validate:"gt=0"`

	SeedGroups []string `env:"SEED_GROUPS" envSeparator:","`

	RedisAddr    string   `env:"REDIS_ADDR"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC"   envDefault:"chat-events" validate:"required"`
}

// Load reads the optional dotenv files (".env" when none is given), then the
// environment. Variables already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.SeedGroups = clean(cfg.SeedGroups)
	cfg.KafkaBrokers = clean(cfg.KafkaBrokers)

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func clean(values []string) []string {
	return lo.Uniq(lo.Compact(lo.Map(values, func(v string, _ int) string {
		return strings.TrimSpace(v)
	})))
}

func (c Config) MirrorEnabled() bool  { return c.RedisAddr != "" }
func (c Config) JournalEnabled() bool { return len(c.KafkaBrokers) > 0 }

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func missing(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(missing(t))
	req.NoError(err)
	req.Equal(":8080", cfg.Addr)
	req.Equal("info", cfg.LogLevel)
	req.Equal("text", cfg.LogFormat)
	req.Equal(time.Second, cfg.DeliveryDelay)
	req.Equal(3*time.Second, cfg.ReadDelay)
	req.Equal(time.Second, cfg.TypingTimeout)
	req.Equal(DriverTimer, cfg.LifecycleDriver)
	req.Equal(int64(1), cfg.SnowflakeNode)
	req.Equal(256, cfg.SendBuffer)
	req.Equal(int64(4096), cfg.MaxMessageSize)
	req.Equal("chat-events", cfg.KafkaTopic)
	req.False(cfg.MirrorEnabled())
	req.False(cfg.JournalEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Setenv("GATEWAY_ADDR", ":9090")
	t.Setenv("LIFECYCLE_DRIVER", "ack")
	t.Setenv("TYPING_TIMEOUT", "250ms")
	t.Setenv("SEED_GROUPS", " Work Group ,, random,random")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(missing(t))
	req.NoError(err)
	req.Equal(":9090", cfg.Addr)
	req.Equal(DriverAck, cfg.LifecycleDriver)
	req.Equal(250*time.Millisecond, cfg.TypingTimeout)
	req.Equal([]string{"Work Group", "random"}, cfg.SeedGroups)
	req.Equal([]string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	req.True(cfg.MirrorEnabled())
	req.True(cfg.JournalEnabled())
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	req.NoError(os.WriteFile(path, []byte("SEND_BUFFER=8\nLOG_FORMAT=json\n"), 0o600))
	t.Setenv("LOG_FORMAT", "text")
	t.Cleanup(func() { os.Unsetenv("SEND_BUFFER") })

	cfg, err := Load(path)
	req.NoError(err)
	req.Equal(8, cfg.SendBuffer)
	req.Equal("text", cfg.LogFormat)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":      {"LIFECYCLE_DRIVER": "manual"},
		"format":      {"LOG_FORMAT": "xml"},
		"node":        {"SNOWFLAKE_NODE": "2048"},
		"read before": {"DELIVERY_DELAY": "5s", "READ_DELAY": "1s"},
		"typing":      {"TYPING_TIMEOUT": "0s"},
		"duration":    {"READ_DELAY": "soon"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load(missing(t))
			require.Error(t, err)
		})
	}
}

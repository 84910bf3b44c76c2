package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ioqueue"
	"github.com/sirupsen/logrus"
)

var errDigestMismatch = errors.Define("digest mismatch")

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type QueueConfig struct {
	Backend          string        `toml:"backend"`
	MaxEvents        int           `toml:"max_events"`
	ConnectTableSize int           `toml:"connect_table_size"`
	ScanInterval     time.Duration `toml:"connect_scan_interval"`
	Pollers          int           `toml:"pollers"`
	PinPollers       bool          `toml:"pin_pollers"`
	Priority         string        `toml:"priority"`
}

type UDPConfig struct {
	Packets int     `toml:"packets"`
	Size    int     `toml:"size"`
	Rate    float64 `toml:"rate"`
}

type TCPConfig struct {
	Connections int `toml:"connections"`
	Bytes       int `toml:"bytes"`
	Chunk       int `toml:"chunk"`
}

type StressConfig struct {
	Keys     int `toml:"keys"`
	Messages int `toml:"messages"`
	Size     int `toml:"size"`
	Churn    int `toml:"churn"`
}

type Config struct {
	Log     LogConfig     `toml:"log"`
	Queue   QueueConfig   `toml:"queue"`
	UDP     UDPConfig     `toml:"udp"`
	TCP     TCPConfig     `toml:"tcp"`
	Stress  StressConfig  `toml:"stress"`
	Timeout time.Duration `toml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Queue: QueueConfig{
			MaxEvents:        16,
			ConnectTableSize: 64,
			ScanInterval:     10 * time.Millisecond,
			Pollers:          2,
		},
		UDP:     UDPConfig{Packets: 10000, Size: 512, Rate: 50000},
		TCP:     TCPConfig{Connections: 8, Bytes: 4 << 20, Chunk: 16 << 10},
		Stress:  StressConfig{Keys: 64, Messages: 1000, Size: 256, Churn: 256},
		Timeout: 30 * time.Second,
	}
}

// LoadConfig overlays the file at path on the defaults. An empty path keeps
// the defaults.
func LoadConfig(path string) (cfg Config, err error) {
	cfg = DefaultConfig()
	if path == "" {
		return
	}
	if _, statErr := os.Stat(path); statErr != nil {
		err = errors.New("config not found", errors.WithMeta("path", path), errors.WithWrap(statErr))
		return
	}
	meta, decodeErr := toml.DecodeFile(path, &cfg)
	if decodeErr != nil {
		err = errors.New("decode config failed", errors.WithMeta("path", path), errors.WithWrap(decodeErr))
		return
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		err = errors.New("unknown config keys", errors.WithMeta("path", path), errors.WithMeta("key", undecoded[0].String()))
		return
	}
	return
}

func (cfg *Config) Logger() (logrus.FieldLogger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	switch cfg.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
		break
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		break
	}
	return logger, nil
}

func (cfg *Config) QueueOptions(logger logrus.FieldLogger) []ioqueue.Option {
	return []ioqueue.Option{
		ioqueue.WithBackend(ioqueue.Backend(cfg.Queue.Backend)),
		ioqueue.WithMaxEvents(cfg.Queue.MaxEvents),
		ioqueue.WithConnectTableSize(cfg.Queue.ConnectTableSize),
		ioqueue.WithConnectScanInterval(cfg.Queue.ScanInterval),
		ioqueue.WithLogger(logger),
	}
}

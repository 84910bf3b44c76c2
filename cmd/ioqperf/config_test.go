package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.MaxEvents != 16 || cfg.Queue.ConnectTableSize != 64 {
		t.Error("unexpected defaults:", cfg.Queue)
	}

	path := filepath.Join(t.TempDir(), "ioqperf.toml")
	content := `
timeout = "5s"

[log]
level = "debug"
format = "json"

[queue]
backend = "poll"
pollers = 3
pin_pollers = true
priority = "idle"
connect_scan_interval = "2ms"

[udp]
packets = 10
`
	if err = os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if cfg, err = LoadConfig(path); err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.Backend != "poll" || cfg.Queue.Pollers != 3 || cfg.Queue.ScanInterval != 2*time.Millisecond {
		t.Error("queue section not applied:", cfg.Queue)
	}
	if !cfg.Queue.PinPollers || cfg.Queue.Priority != "idle" {
		t.Error("poller tuning not applied:", cfg.Queue)
	}
	if cfg.UDP.Packets != 10 || cfg.UDP.Size != 512 {
		t.Error("udp section not merged with defaults:", cfg.UDP)
	}
	if cfg.Timeout != 5*time.Second {
		t.Error("timeout:", cfg.Timeout)
	}
	if _, err = cfg.Logger(); err != nil {
		t.Error(err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file accepted")
	}
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[queue]\nbakend = \"poll\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("unknown key accepted")
	}
	cfg := DefaultConfig()
	cfg.Log.Level = "loud"
	if _, err := cfg.Logger(); err == nil {
		t.Error("bad level accepted")
	}
}

package main

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Log.Level = "warn"
	cfg.Timeout = 20 * time.Second
	cfg.UDP = UDPConfig{Packets: 200, Size: 256, Rate: 0}
	cfg.TCP = TCPConfig{Connections: 4, Bytes: 256 << 10, Chunk: 8 << 10}
	cfg.Stress = StressConfig{Keys: 8, Messages: 100, Size: 128, Churn: 32}
	return &cfg
}

func TestDigestIgnoresChunking(t *testing.T) {
	a := digestOf(10000, 7)
	b := digestOf(10000, 4096)
	if !bytes.Equal(a, b) {
		t.Error("digest depends on chunk size")
	}
	if bytes.Equal(a, digestOf(9999, 7)) {
		t.Error("digest ignores length")
	}
}

func TestRunUDP(t *testing.T) {
	if err := runUDP(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
}

func TestRunTCP(t *testing.T) {
	for _, backend := range []string{"", "poll"} {
		cfg := testConfig()
		cfg.Queue.Backend = backend
		if err := runTCP(context.Background(), cfg); err != nil {
			t.Fatal(backend, err)
		}
	}
}

func TestRunStress(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.PinPollers = true
	if err := runStress(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
}

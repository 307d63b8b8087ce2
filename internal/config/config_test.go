package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Connections) != 1 || cfg.Connections[0].Port != 27015 {
		t.Fatalf("expected default connection, got %+v", cfg.Connections)
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	body := `{"serial":{"port":"/dev/ttyUSB1","autodiscover":false},"connections":[{"host":"127.0.0.1","port":9000,"relay":false}],"logging":{"type":"debug","output":"stream"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB1" || cfg.Serial.Autodiscover {
		t.Fatalf("unexpected serial config: %+v", cfg.Serial)
	}
	if len(cfg.Connections) != 1 || cfg.Connections[0].Port != 9000 {
		t.Fatalf("unexpected connections: %+v", cfg.Connections)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Connections[0].Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for out-of-range port")
	}
}

func TestValidateRejectsSSLWithoutFiles(t *testing.T) {
	cfg := Default()
	cfg.Connections[0].SSL = true
	cfg.Connections[0].PK = "/nonexistent/key.pem"
	cfg.Connections[0].Cert = "/nonexistent/cert.pem"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unreadable SSL files")
	}
}

func TestValidateRejectsAuthWithoutKey(t *testing.T) {
	cfg := Default()
	cfg.Connections[0].Auth = true
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for empty auth_key")
	}
}

func TestValidateRejectsBadSynctime(t *testing.T) {
	cfg := Default()
	cfg.NTP.Synctime = "25:99"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for bad synctime")
	}
}

func TestParseHHMM(t *testing.T) {
	hh, mm, err := parseHHMM("10:29")
	if err != nil || hh != 10 || mm != 29 {
		t.Fatalf("unexpected parse result: hh=%d mm=%d err=%v", hh, mm, err)
	}
}

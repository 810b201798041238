package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestParseInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"30s":           30 * time.Second,
		"@every 5m":     5 * time.Minute,
		" @every 1h30m": 90 * time.Minute,
		"@hourly":       time.Hour,
		"@daily":        24 * time.Hour,
	}
	for input, want := range cases {
		got, err := ParseInterval(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", input, got, want)
		}
	}

	for _, input := range []string{"", "soon", "@every", "-1s", "0s", "*/5 * * * *"} {
		if _, err := ParseInterval(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage != StorageSQLite || cfg.Interval != time.Minute || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DepositKnownBlock != 11052984 || cfg.BatchSize != 500 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.ValidateStorage(); err != nil {
		t.Fatalf("default storage invalid: %v", err)
	}
	if err := cfg.ValidateChain(); err == nil {
		t.Fatalf("expected missing rpc error")
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakescope.yaml")
	content := "rpc: http://file:8545\nbatch-size: 100\ninterval: \"@every 10s\"\nstorage: postgres\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STAKESCOPE_BATCH_SIZE", "200")
	t.Setenv("STAKESCOPE_PG_DSN", "postgres://env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	if err := flags.Parse([]string{"--rpc", "http://flag:8545"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "http://flag:8545" {
		t.Fatalf("flag should win: %s", cfg.RPCURL)
	}
	if cfg.BatchSize != 200 {
		t.Fatalf("env should beat file: %d", cfg.BatchSize)
	}
	if cfg.Interval != 10*time.Second || cfg.Storage != StoragePostgres || cfg.PGDSN != "postgres://env" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if err := cfg.ValidateStorage(); err != nil {
		t.Fatalf("storage: %v", err)
	}
}

func TestValidateStorage(t *testing.T) {
	if err := (Config{Storage: "mysql"}).ValidateStorage(); err == nil {
		t.Fatalf("expected unknown storage error")
	}
	if err := (Config{Storage: StoragePostgres}).ValidateStorage(); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

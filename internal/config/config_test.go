package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mods.Dir != "mods" {
		t.Errorf("default mods dir = %q", cfg.Mods.Dir)
	}
	if !cfg.Trusted("core") {
		t.Error("core not trusted by default")
	}
	if cfg.Trusted("random-mod") {
		t.Error("unknown mod trusted")
	}
	if cfg.Run.Timeout.Duration() != 0 {
		t.Errorf("default timeout = %v", cfg.Run.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Verbosity() != 0 {
		t.Errorf("default logging = %+v", cfg.Logging)
	}
}

func TestExpandVerbosityFlags(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"-vvv"}, []string{"-v", "-v", "-v"}},
		{[]string{"-vv", "-mods", "x"}, []string{"-v", "-v", "-mods", "x"}},
		{[]string{"-v"}, []string{"-v"}},
		{[]string{"--verbose"}, []string{"--verbose"}},
		{[]string{"-version"}, []string{"-version"}},
	}
	for _, tc := range cases {
		got := expandVerbosityFlags(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("expandVerbosityFlags(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datastage.toml")
	content := `
[mods]
dir = "/srv/mods"
trusted = ["core", "base"]

[run]
timeout = "30s"
dump = "registry.json"

[logging]
level = "debug"
verbosity = 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mods.Dir != "/srv/mods" {
		t.Errorf("mods dir = %q", cfg.Mods.Dir)
	}
	if !cfg.Trusted("base") {
		t.Error("trusted list not loaded")
	}
	if cfg.Run.Timeout.Duration() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Run.Timeout)
	}
	if cfg.Run.Dump != "registry.json" {
		t.Errorf("dump = %q", cfg.Run.Dump)
	}
	if cfg.Logging.Level != "debug" || cfg.Verbosity() != 2 {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datastage.toml")
	content := `
[mods]
dir = "from-toml"

[logging]
level = "warn"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Env beats TOML; flags beat env.
	t.Setenv("DATASTAGE_MODS", "from-env")
	t.Setenv("DATASTAGE_LOG_LEVEL", "error")

	cfg, err := Load([]string{"-config", path, "-log-level", "debug", "-vv"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mods.Dir != "from-env" {
		t.Errorf("mods dir = %q, env override lost", cfg.Mods.Dir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, flag override lost", cfg.Logging.Level)
	}
	if cfg.Verbosity() != 2 {
		t.Errorf("verbosity = %d", cfg.Verbosity())
	}
}

func TestLoadMissingExplicitConfig(t *testing.T) {
	if _, err := Load([]string{"-config", "/no/such/file.toml"}); err == nil {
		t.Error("missing explicit config file not reported")
	}
	// A missing default file is tolerated.
	if _, err := Load(nil); err != nil {
		t.Errorf("missing default config rejected: %v", err)
	}
}

func TestLogVerbosityGate(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	cfg := DefaultConfig()
	cfg.SetLogger(zap.New(core).Sugar())
	cfg.Logging.Verbosity = 1

	cfg.Log(0, "always")
	cfg.Log(1, "stages")
	cfg.Log(2, "scripts")
	cfg.Log(3, "registry")

	var got []string
	for _, entry := range logs.All() {
		got = append(got, entry.Message)
	}
	want := []string{"always", "stages"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("logged %v, want %v", got, want)
	}
}

package config_test

import (
	"slices"
	"testing"

	"github.com/tinredperu/jack/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		TinRed: config.TinRedConfig{
			BaseURL:            "https://test.tinred.pe",
			EmitTimeoutSeconds: 90,
		},
		Session: config.SessionConfig{
			TTLMinutes:           1440,
			SweepIntervalMinutes: 10,
		},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
			STT: config.ProviderEntry{Name: "whisper-native"},
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := baseConfig()
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change should not require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_ListenAddrRequiresRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9090"

	d := config.Diff(old, new)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
	if !slices.Contains(d.RestartRequired, "server.listen_addr") {
		t.Errorf("expected server.listen_addr in RestartRequired, got %v", d.RestartRequired)
	}
}

func TestDiff_TinRedRequiresRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.TinRed.EmitTimeoutSeconds = 120

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "tinred") {
		t.Errorf("expected tinred in RestartRequired, got %v", d.RestartRequired)
	}
}

func TestDiff_ProviderModelRequiresRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Providers.LLM.Model = "gpt-4o"

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "providers.llm") {
		t.Errorf("expected providers.llm in RestartRequired, got %v", d.RestartRequired)
	}
	if slices.Contains(d.RestartRequired, "providers.stt") {
		t.Errorf("unchanged providers.stt should not appear, got %v", d.RestartRequired)
	}
}

func TestDiff_ProviderOptionsCompared(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	old.Providers.STT.Options = map[string]any{"threads": 4}
	new := baseConfig()
	new.Providers.STT.Options = map[string]any{"threads": 8}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "providers.stt") {
		t.Errorf("expected providers.stt in RestartRequired, got %v", d.RestartRequired)
	}
}

func TestDiff_TLSAddedRequiresRestart(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.TLS = &config.TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("expected server.tls in RestartRequired, got %v", d.RestartRequired)
	}
}

func TestDiff_TLSEqualPointers(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	old.Server.TLS = &config.TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}
	new := baseConfig()
	new.Server.TLS = &config.TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}

	d := config.Diff(old, new)
	if slices.Contains(d.RestartRequired, "server.tls") {
		t.Errorf("identical TLS configs should not diff, got %v", d.RestartRequired)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogWarn
	new.Session.TTLMinutes = 60
	new.Audit.PostgresDSN = "postgres://localhost/jack"

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	for _, want := range []string{"session", "audit"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("expected %q in RestartRequired, got %v", want, d.RestartRequired)
		}
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
[feed]
url = "ws://127.0.0.1:7497/ws"

[collector]
active_symbol = "mnqz5"

[storage.sqlite]
enabled = true
path = "history/history.sqlite"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Collector.ActiveSymbol != "MNQZ5" {
		t.Errorf("active symbol = %q, want normalized MNQZ5", cfg.Collector.ActiveSymbol)
	}
	if cfg.ShortWindow() != 40*time.Second {
		t.Errorf("short window = %v, want 40s", cfg.ShortWindow())
	}
	if cfg.BackfillMaxWindow() != 10*24*time.Hour {
		t.Errorf("backfill max window = %v, want 240h", cfg.BackfillMaxWindow())
	}
	if cfg.BaseRetryDelay() != 1500*time.Millisecond {
		t.Errorf("base retry delay = %v, want 1.5s", cfg.BaseRetryDelay())
	}
	if cfg.Watcher.Epsilon != 1e-8 {
		t.Errorf("epsilon = %g, want 1e-8", cfg.Watcher.Epsilon)
	}
	if cfg.WindowPause() != 200*time.Millisecond {
		t.Errorf("window pause = %v, want 200ms", cfg.WindowPause())
	}
	if cfg.App.LogLevel != "info" {
		t.Errorf("log level = %q, want info", cfg.App.LogLevel)
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing feed url",
			body: strings.Replace(minimalConfig, `url = "ws://127.0.0.1:7497/ws"`, `url = ""`, 1),
			want: "feed.url",
		},
		{
			name: "malformed active symbol",
			body: strings.Replace(minimalConfig, "mnqz5", "nonsense", 1),
			want: "active_symbol",
		},
		{
			name: "no primary storage",
			body: strings.Replace(minimalConfig, "enabled = true", "enabled = false", 1),
			want: "primary storage",
		},
		{
			name: "telegram enabled without token",
			body: minimalConfig + "\n[telegram]\nenabled_logs = true\n",
			want: "bot_token",
		},
	}
	for _, tc := range cases {
		_, err := Load(writeConfig(t, tc.body))
		if err == nil {
			t.Errorf("%s: Load succeeded, want error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

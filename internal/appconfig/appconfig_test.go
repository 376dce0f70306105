package appconfig_test

import (
	"testing"
	"time"

	"github.com/go-bitbake/modvcs/internal/appconfig"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"GOMODCACHE", "GOPROXY", "MODVCS_CACHE_DIR", "MODVCS_VERIFY_MAX_AGE_DAYS",
		"MODVCS_WORKERS", "MODVCS_TIMEOUT_LSREMOTE", "MODVCS_LOG_LEVEL", "MODVCS_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}

	cfg := appconfig.Load()

	if cfg.Go.Proxy != "https://proxy.golang.org" {
		t.Errorf("Go.Proxy = %q, want public proxy default", cfg.Go.Proxy)
	}
	if cfg.Verify.Workers != 10 {
		t.Errorf("Verify.Workers = %d, want 10", cfg.Verify.Workers)
	}
	if cfg.Verify.MaxAge != 30*24*time.Hour {
		t.Errorf("Verify.MaxAge = %v, want 30 days", cfg.Verify.MaxAge)
	}
	if cfg.Network.LsRemote != 90*time.Second {
		t.Errorf("Network.LsRemote = %v, want 90s", cfg.Network.LsRemote)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text defaults", cfg.Logging)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("GOPROXY", "https://example.com/proxy")
	t.Setenv("MODVCS_CACHE_DIR", "/tmp/modvcs-caches")
	t.Setenv("MODVCS_WORKERS", "4")
	t.Setenv("MODVCS_VERIFY_MAX_AGE_DAYS", "7")
	t.Setenv("MODVCS_TIMEOUT_FETCH", "30")
	t.Setenv("MODVCS_LOG_LEVEL", "debug")
	t.Setenv("MODVCS_LOG_FORMAT", "json")

	cfg := appconfig.Load()

	if cfg.Go.Proxy != "https://example.com/proxy" {
		t.Errorf("Go.Proxy = %q", cfg.Go.Proxy)
	}
	if cfg.Cache.Dir != "/tmp/modvcs-caches" {
		t.Errorf("Cache.Dir = %q", cfg.Cache.Dir)
	}
	if cfg.Verify.Workers != 4 {
		t.Errorf("Verify.Workers = %d, want 4", cfg.Verify.Workers)
	}
	if cfg.Verify.MaxAge != 7*24*time.Hour {
		t.Errorf("Verify.MaxAge = %v, want 7 days", cfg.Verify.MaxAge)
	}
	if cfg.Network.Fetch != 30*time.Second {
		t.Errorf("Network.Fetch = %v, want 30s", cfg.Network.Fetch)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoadIgnoresMalformedIntEnv(t *testing.T) {
	t.Setenv("MODVCS_WORKERS", "not-a-number")
	cfg := appconfig.Load()
	if cfg.Verify.Workers != 10 {
		t.Errorf("Verify.Workers = %d, want fallback 10 for malformed env value", cfg.Verify.Workers)
	}
}

func TestGitEnvDisablesPrompting(t *testing.T) {
	env := appconfig.GitEnv()
	want := map[string]bool{"GIT_TERMINAL_PROMPT=0": false, "GIT_ASKPASS=true": false}
	for _, e := range env {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for entry, found := range want {
		if !found {
			t.Errorf("GitEnv() missing %q", entry)
		}
	}
}

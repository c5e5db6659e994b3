package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webclip.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9000"
store:
  path: /tmp/test-captures.db
  cap: 50
browser:
  nav_timeout: 10s
extract:
  main_selectors: ["article", ".post"]
  min_main_len: 200
screenshot:
  cooldown: 2s
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("addr: %q", cfg.HTTP.Addr)
	}
	if cfg.Store.Cap != 50 || cfg.Store.Path != "/tmp/test-captures.db" {
		t.Errorf("store: %+v", cfg.Store)
	}
	if cfg.Browser.NavTimeout != 10*time.Second {
		t.Errorf("nav_timeout: %v", cfg.Browser.NavTimeout)
	}
	if len(cfg.Extract.MainSelectors) != 2 || cfg.Extract.MinMainLen != 200 {
		t.Errorf("extract: %+v", cfg.Extract)
	}
	if cfg.Screenshot.Cooldown != 2*time.Second {
		t.Errorf("screenshot: %+v", cfg.Screenshot)
	}
}

func TestLoadConfig_DefaultsSurvivePartialFile(t *testing.T) {
	path := writeConfig(t, "store:\n  path: /tmp/x.db\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Addr != ":8377" {
		t.Errorf("default addr lost: %q", cfg.HTTP.Addr)
	}
	if cfg.Store.Cap != 100 {
		t.Errorf("default cap lost: %d", cfg.Store.Cap)
	}
	if cfg.Store.AuditRetentionDays != 30 {
		t.Errorf("default audit retention lost: %d", cfg.Store.AuditRetentionDays)
	}
}

func TestLoadConfig_RejectsNegativeCap(t *testing.T) {
	path := writeConfig(t, "store:\n  cap: -1\n")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("negative cap must fail validation")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}

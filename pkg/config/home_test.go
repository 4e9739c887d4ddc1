package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHomeDir_Env(t *testing.T) {
	resetHome()
	t.Cleanup(resetHome)
	t.Setenv(EnvHome, "/custom/anchor")

	if got := HomeDir(); got != "/custom/anchor" {
		t.Errorf("HomeDir() = %q, want /custom/anchor", got)
	}
}

func TestHomeDir_Default(t *testing.T) {
	resetHome()
	t.Cleanup(resetHome)
	t.Setenv(EnvHome, "")

	got := HomeDir()
	if got == "" {
		t.Fatal("HomeDir() is empty")
	}
	if dir, err := os.UserConfigDir(); err == nil && got != filepath.Join(dir, "anchor-runner") {
		t.Errorf("HomeDir() = %q, want under %q", got, dir)
	}
}

func TestFindConfig(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	if got := FindConfig(first, second); got != "" {
		t.Errorf("FindConfig(empty dirs) = %q", got)
	}

	ymlPath := filepath.Join(second, "anchor.yml")
	if err := os.WriteFile(ymlPath, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfig(first, second); got != ymlPath {
		t.Errorf("FindConfig = %q, want %q", got, ymlPath)
	}

	yamlPath := filepath.Join(first, "anchor.yaml")
	if err := os.WriteFile(yamlPath, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfig(first, second); got != yamlPath {
		t.Errorf("FindConfig = %q, want earlier dir %q", got, yamlPath)
	}
}

func TestFindConfig_SkipsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "anchor.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := FindConfig(dir); got != "" {
		t.Errorf("FindConfig = %q, want none", got)
	}
}

func TestNewRunID(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)
	a, b := NewRunID(now), NewRunID(now)
	if !strings.HasPrefix(a, "20260304-050607-") {
		t.Errorf("NewRunID = %q", a)
	}
	if len(a) != len("20260304-050607-")+8 {
		t.Errorf("NewRunID length = %d", len(a))
	}
	if a == b {
		t.Error("two run ids collided")
	}
}

func TestResolveReportDir(t *testing.T) {
	resetHome()
	t.Cleanup(resetHome)
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	cfg := Default()
	cfg.Report.Dir = ReportAuto
	cfg.ResolveReportDir(time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local))
	if !strings.HasPrefix(cfg.Report.Dir, filepath.Join(home, "reports", "20260102-030405-")) {
		t.Errorf("Report.Dir = %q", cfg.Report.Dir)
	}

	cfg.Report.Dir = "out"
	cfg.ResolveReportDir(time.Now())
	if cfg.Report.Dir != "out" {
		t.Errorf("explicit dir changed to %q", cfg.Report.Dir)
	}
}

func TestLogPath(t *testing.T) {
	resetHome()
	t.Cleanup(resetHome)
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	p, err := LogPath()
	if err != nil {
		t.Fatalf("LogPath failed: %v", err)
	}
	if p != filepath.Join(home, "logs", "anchor-runner.log") {
		t.Errorf("LogPath = %q", p)
	}
	if st, err := os.Stat(filepath.Dir(p)); err != nil || !st.IsDir() {
		t.Errorf("logs dir not created: %v", err)
	}
}

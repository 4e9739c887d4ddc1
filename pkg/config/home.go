package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EnvHome overrides the anchor-runner home directory.
const EnvHome = "ANCHOR_RUNNER_HOME"

// ReportAuto as a report directory means a fresh run directory under the
// home reports dir.
const ReportAuto = "auto"

var configNames = []string{"anchor.yaml", "anchor.yml"}

var (
	homeOnce sync.Once
	homeDir  string
)

// HomeDir is where shared config, reports and logs live:
// $ANCHOR_RUNNER_HOME, else <user config dir>/anchor-runner, else the
// working directory.
func HomeDir() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

func resolveHome() string {
	if env := os.Getenv(EnvHome); env != "" {
		return env
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "anchor-runner")
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// resetHome forgets the cached home directory.
func resetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}

// FindConfig returns the first anchor.yaml or anchor.yml found in dirs, in
// order, or "" when there is none.
func FindConfig(dirs ...string) string {
	for _, dir := range dirs {
		for _, name := range configNames {
			p := filepath.Join(dir, name)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p
			}
		}
	}
	return ""
}

// NewRunID names a run: local start time plus a short random suffix, so
// runs sort by time and never collide.
func NewRunID(now time.Time) string {
	return now.Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// ReportsDir returns <home>/reports/<run>.
func ReportsDir(run string) string {
	return filepath.Join(HomeDir(), "reports", run)
}

// LogPath returns <home>/logs/anchor-runner.log, creating the logs dir.
func LogPath() (string, error) {
	dir := filepath.Join(HomeDir(), "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "anchor-runner.log"), nil
}

// ResolveReportDir expands ReportAuto into a new run directory.
func (c *Config) ResolveReportDir(now time.Time) {
	if c.Report.Dir == ReportAuto {
		c.Report.Dir = ReportsDir(NewRunID(now))
	}
}

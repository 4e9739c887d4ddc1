package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/anchor-runner/pkg/config"
	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/device"
	"github.com/devicelab-dev/anchor-runner/pkg/engine"
	"github.com/devicelab-dev/anchor-runner/pkg/hook"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
	"github.com/devicelab-dev/anchor-runner/pkg/mapping"
	"github.com/devicelab-dev/anchor-runner/pkg/match"
	"github.com/devicelab-dev/anchor-runner/pkg/match/cvmatch"
	"github.com/devicelab-dev/anchor-runner/pkg/report"
	"github.com/devicelab-dev/anchor-runner/pkg/screen"
)

// session is everything one command needs to drive a device.
type session struct {
	cfg      *config.Config
	engine   *engine.Engine
	reporter *report.Reporter
	serial   string
}

// Close saves the report, if any.
func (s *session) Close() error {
	if s.reporter == nil {
		return nil
	}
	s.reporter.Detach(s.engine.Hub())
	if err := s.reporter.Save(); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	logger.Info("report written to %s", s.cfg.Report.Dir)
	return nil
}

// newSession opens a session for a command; replaced in tests.
var newSession = openDeviceSession

func openDeviceSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	dev, err := deviceFor(cfg)
	if err != nil {
		return nil, err
	}

	physical := cfg.Mapping.Physical
	if cfg.Mapping.Enabled && !physical.Valid() {
		physical, err = dev.ScreenSize()
		if err != nil {
			return nil, fmt.Errorf("read screen size: %w", err)
		}
		logger.Info("physical resolution %s", physical)
	}

	s, err := buildSession(cfg, dev, physical, cvmatch.New())
	if err != nil {
		return nil, err
	}
	s.serial = dev.Serial()
	return s, nil
}

// openDevice connects to the configured device for commands that do not
// need a full session.
func openDevice(c *cli.Context) (*device.AndroidDevice, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return deviceFor(cfg)
}

func deviceFor(cfg *config.Config) (*device.AndroidDevice, error) {
	opts := device.Options{
		ADBPath: cfg.Device.ADBPath,
		Host:    cfg.Device.Host,
		Port:    cfg.Device.Port,
	}
	if cfg.Device.DisplayID != nil {
		opts.DisplayID = strconv.Itoa(*cfg.Device.DisplayID)
	}
	logger.Info("connecting to device %q", cfg.Device.Serial)
	dev, err := device.New(cfg.Device.Serial, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to device: %w", err)
	}
	return dev, nil
}

// buildSession wires mapper, capturer, strategy, hub, engine and reporter
// around a transport.
func buildSession(cfg *config.Config, t core.Transport, physical core.Resolution, tm match.TemplateMatcher) (*session, error) {
	mapper, err := mapping.New(cfg.Mapping.Enabled, physical, cfg.Mapping.Override)
	if err != nil {
		return nil, err
	}
	capturer := screen.New(t, mapper, screen.WithRemoteDir(cfg.Device.RemoteDir))

	mode, err := match.ParseMode(cfg.Matcher.Mode)
	if err != nil {
		return nil, err
	}
	strategy, err := match.Select(mode, match.Session{
		Transport: t,
		Capturer:  capturer,
		Mapper:    mapper,
		Matcher:   tm,
		Threshold: cfg.Matcher.Threshold,
		RemoteDir: cfg.Device.RemoteDir,
	})
	if err != nil {
		return nil, err
	}

	hub := hook.NewHub()
	eng := engine.New(t, strategy, capturer,
		engine.WithHub(hub),
		engine.WithTimeout(cfg.Timeouts.Timeout),
		engine.WithPollInterval(cfg.Timeouts.Poll),
		engine.WithSettleDelay(cfg.Timeouts.Settle),
		engine.WithApp(cfg.App.Package, cfg.App.Activity),
		engine.WithResourcePath(cfg.App.ResourcePath),
	)

	s := &session{cfg: cfg, engine: eng}
	if cfg.Report.Dir != "" {
		level, err := report.ParseLevel(cfg.Report.Level)
		if err != nil {
			return nil, err
		}
		rep, err := report.New(eng, cfg.Report.Dir, level,
			report.WithDevice(cfg.Device.Serial, physical),
			report.WithMapper(mapper))
		if err != nil {
			return nil, err
		}
		rep.Attach(hub)
		s.reporter = rep
	}
	logger.Info("session ready: matcher=%s mapping=%v", strategy.Name(), mapper.Enabled())
	return s, nil
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	path := c.String("config")
	if path == "" {
		path = config.FindConfig(".", config.HomeDir())
	}
	if path != "" {
		logger.Debug("loading config %s", path)
		cfg, err = config.Load(path)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := applyFlags(c, cfg); err != nil {
		return nil, err
	}
	cfg.ResolveReportDir(time.Now())
	return cfg, cfg.Validate()
}

func applyFlags(c *cli.Context, cfg *config.Config) error {
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if c.IsSet(name) {
			*dst = c.Duration(name)
		}
	}

	setString("device", &cfg.Device.Serial)
	setString("adb", &cfg.Device.ADBPath)
	setString("adb-host", &cfg.Device.Host)
	if c.IsSet("adb-port") {
		cfg.Device.Port = c.Int("adb-port")
	}
	if id := c.Int("display-id"); c.IsSet("display-id") && id >= 0 {
		cfg.Device.DisplayID = &id
	}

	if c.IsSet("override") {
		r, err := core.ParseResolution(c.String("override"))
		if err != nil {
			return err
		}
		cfg.Mapping.Enabled = true
		cfg.Mapping.Override = r
	}
	if c.IsSet("physical") {
		r, err := core.ParseResolution(c.String("physical"))
		if err != nil {
			return err
		}
		cfg.Mapping.Physical = r
	}

	setString("matcher", &cfg.Matcher.Mode)
	if c.IsSet("threshold") {
		cfg.Matcher.Threshold = c.Float64("threshold")
	}
	setDuration("timeout", &cfg.Timeouts.Timeout)
	setDuration("poll", &cfg.Timeouts.Poll)
	setDuration("settle", &cfg.Timeouts.Settle)

	setString("package", &cfg.App.Package)
	setString("activity", &cfg.App.Activity)
	setString("resource-path", &cfg.App.ResourcePath)
	setString("report", &cfg.Report.Dir)
	setString("report-level", &cfg.Report.Level)
	return nil
}

// withSession opens a session, runs fn and closes the session.
func withSession(c *cli.Context, fn func(*session) error) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	runErr := fn(s)
	if err := s.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

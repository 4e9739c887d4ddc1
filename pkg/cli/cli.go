// Package cli provides the command-line interface for anchor-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/anchor-runner/pkg/config"
	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file (default: anchor.yaml in the current directory, then in $ANCHOR_RUNNER_HOME)",
		EnvVars: []string{"ANCHOR_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s", "serial"},
		Usage:   "Device serial (default: first connected device)",
		EnvVars: []string{"ANCHOR_DEVICE", "ANDROID_SERIAL"},
	},
	&cli.StringFlag{
		Name:    "adb",
		Usage:   "Path to the adb binary",
		EnvVars: []string{"ANCHOR_ADB"},
	},
	&cli.StringFlag{
		Name:    "adb-host",
		Usage:   "adb server host",
		EnvVars: []string{"ANCHOR_ADB_HOST"},
	},
	&cli.IntFlag{
		Name:    "adb-port",
		Usage:   "adb server port",
		EnvVars: []string{"ANCHOR_ADB_PORT"},
	},
	&cli.IntFlag{
		Name:  "display-id",
		Usage: "Display to capture (screencap -d)",
		Value: -1,
	},
	&cli.StringFlag{
		Name:    "override",
		Usage:   "Override resolution WIDTHxHEIGHT; enables coordinate mapping",
		EnvVars: []string{"ANCHOR_OVERRIDE"},
	},
	&cli.StringFlag{
		Name:  "physical",
		Usage: "Physical resolution WIDTHxHEIGHT (default: read from the device)",
	},
	&cli.StringFlag{
		Name:    "matcher",
		Aliases: []string{"m"},
		Usage:   "Image matcher (auto, local, remote)",
		EnvVars: []string{"ANCHOR_MATCHER"},
	},
	&cli.Float64Flag{
		Name:  "threshold",
		Usage: "Local match acceptance threshold",
	},
	&cli.DurationFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Usage:   "Default wait budget for image actions",
		EnvVars: []string{"ANCHOR_TIMEOUT"},
	},
	&cli.DurationFlag{
		Name:  "poll",
		Usage: "Pause between screen polls",
	},
	&cli.DurationFlag{
		Name:  "settle",
		Usage: "Pause after taps, swipes and key presses",
	},
	&cli.StringFlag{
		Name:    "package",
		Usage:   "Application package",
		EnvVars: []string{"ANCHOR_PACKAGE"},
	},
	&cli.StringFlag{
		Name:  "activity",
		Usage: "Application launch activity",
	},
	&cli.StringFlag{
		Name:  "resource-path",
		Usage: "Template for image keys, e.g. res/{package}/{key}@auto.png",
	},
	&cli.StringFlag{
		Name:    "report",
		Aliases: []string{"r"},
		Usage:   "Write a step report (result.json) into this directory; \"auto\" picks a new run directory under the home dir",
		EnvVars: []string{"ANCHOR_REPORT"},
	},
	&cli.StringFlag{
		Name:  "report-level",
		Usage: "Report detail: default, screens, stack, full",
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Log to stderr, including debug output",
		EnvVars: []string{"ANCHOR_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Append logs to this file; \"auto\" uses the home logs dir",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Commands is the command set of the anchor-runner binary.
var Commands = []*cli.Command{
	devicesCommand,
	connectCommand,
	infoCommand,
	rebootCommand,
	powerOffCommand,
	tapCommand,
	swipeCommand,
	typeCommand,
	backCommand,
	homeCommand,
	tapImageCommand,
	existsCommand,
	waitCommand,
	waitGoneCommand,
	screenshotCommand,
	launchCommand,
	stopCommand,
	currentCommand,
	consoleCommand,
}

// NewApp builds the cli application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "anchor-runner",
		Usage:   "Image-anchored UI automation for Android devices",
		Version: Version,
		Description: `anchor-runner taps, types and swipes on an Android device over adb and
locates UI elements by template image, either on the host or with the
on-device cv matcher.

Examples:
  anchor-runner tap 540 1200
  anchor-runner --override 1080x1920 tap-image login.png
  anchor-runner --report out/ console`,
		Flags:    GlobalFlags,
		Commands: Commands,
		Before:   setupLogging,
		After: func(*cli.Context) error {
			logger.Close()
			return nil
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func setupLogging(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}
	if path := c.String("log-file"); path != "" {
		if path == "auto" {
			p, err := config.LogPath()
			if err != nil {
				return err
			}
			path = p
		}
		if err := logger.Init(path); err != nil {
			return err
		}
	} else if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	logger.SetDebug(c.Bool("verbose"))
	return nil
}

// exitCode is 2 for expected failures (image missing, wait timed out),
// 3 for bad arguments and 1 otherwise.
func exitCode(err error) int {
	switch core.CategoryOf(err) {
	case core.ErrCategoryNotFound, core.ErrCategoryTimeout:
		return 2
	case core.ErrCategoryArgument:
		return 3
	default:
		return 1
	}
}

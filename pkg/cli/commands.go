package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/device"
	"github.com/devicelab-dev/anchor-runner/pkg/engine"
	"github.com/devicelab-dev/anchor-runner/pkg/match"
)

var imageFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "key",
		Aliases: []string{"k"},
		Usage:   "Resource key resolved through --resource-path instead of a file argument",
	},
}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List devices known to adb",
	Action: func(c *cli.Context) error {
		devices, err := device.ListDevices()
		if err != nil {
			return err
		}
		w := c.App.Writer
		if len(devices) == 0 {
			fmt.Fprintln(w, "no devices")
			return nil
		}
		fmt.Fprintf(w, "%s%-24s %s%s\n", color(colorBold), "SERIAL", "STATE", color(colorReset))
		for _, d := range devices {
			fmt.Fprintf(w, "%-24s %s\n", d.Serial, d.State)
		}
		return nil
	},
}

var connectCommand = &cli.Command{
	Name:      "connect",
	Usage:     "Connect adb to a network device",
	ArgsUsage: "HOST:PORT",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return core.ErrInvalidArgument.WithMessage("connect needs HOST:PORT")
		}
		addr := c.Args().First()
		printSetupStep(c.App.Writer, "Connecting to "+addr+"...")
		if _, err := device.Dial(addr, device.Options{
			ADBPath: c.String("adb"),
			Host:    c.String("adb-host"),
			Port:    c.Int("adb-port"),
		}); err != nil {
			printFailure(c.App.Writer, err.Error())
			return err
		}
		printSetupSuccess(c.App.Writer, "Connected to "+addr)
		return nil
	},
}

var infoCommand = &cli.Command{
	Name:  "info",
	Usage: "Show device model, SDK and screen size",
	Action: func(c *cli.Context) error {
		dev, err := openDevice(c)
		if err != nil {
			return err
		}
		info, err := dev.Info()
		if err != nil {
			return err
		}
		w := c.App.Writer
		fmt.Fprintf(w, "serial:   %s\n", info.Serial)
		fmt.Fprintf(w, "model:    %s %s\n", info.Brand, info.Model)
		fmt.Fprintf(w, "sdk:      %s\n", info.SDK)
		fmt.Fprintf(w, "emulator: %v\n", info.IsEmulator)
		if size, err := dev.ScreenSize(); err == nil {
			fmt.Fprintf(w, "screen:   %s\n", size)
		}
		if cv, err := dev.Which(match.MatcherCommand); err == nil && cv != "" {
			fmt.Fprintf(w, "matcher:  %s\n", cv)
		}
		return nil
	},
}

var rebootCommand = &cli.Command{
	Name:  "reboot",
	Usage: "Reboot the device",
	Action: func(c *cli.Context) error {
		dev, err := openDevice(c)
		if err != nil {
			return err
		}
		printSetupStep(c.App.Writer, "Rebooting "+dev.Serial()+"...")
		return dev.Reboot()
	},
}

var powerOffCommand = &cli.Command{
	Name:  "power-off",
	Usage: "Power the device off",
	Action: func(c *cli.Context) error {
		dev, err := openDevice(c)
		if err != nil {
			return err
		}
		printSetupStep(c.App.Writer, "Powering off "+dev.Serial()+"...")
		return dev.PowerOff()
	},
}

var tapCommand = &cli.Command{
	Name:      "tap",
	Aliases:   []string{"click"},
	Usage:     "Tap at device coordinates",
	ArgsUsage: "X Y",
	Action: func(c *cli.Context) error {
		xy, err := intArgs(c, 2)
		if err != nil {
			return err
		}
		return withSession(c, func(s *session) error {
			return s.engine.Tap(xy[0], xy[1])
		})
	},
}

var swipeCommand = &cli.Command{
	Name:      "swipe",
	Usage:     "Swipe between two device points",
	ArgsUsage: "X1 Y1 X2 Y2",
	Action: func(c *cli.Context) error {
		p, err := intArgs(c, 4)
		if err != nil {
			return err
		}
		return withSession(c, func(s *session) error {
			return s.engine.Swipe(p[0], p[1], p[2], p[3])
		})
	},
}

var typeCommand = &cli.Command{
	Name:      "type",
	Usage:     "Type text; %s is sent as a space key",
	ArgsUsage: "TEXT",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "clear",
			Usage: "Press delete this many times first",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return core.ErrInvalidArgument.WithMessage("type needs TEXT")
		}
		text := strings.Join(c.Args().Slice(), engine.SpaceToken)
		return withSession(c, func(s *session) error {
			if n := c.Int("clear"); n > 0 {
				if err := s.engine.ClearText(n); err != nil {
					return err
				}
			}
			return s.engine.Type(text)
		})
	},
}

var backCommand = &cli.Command{
	Name:  "back",
	Usage: "Press the back key",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *session) error { return s.engine.Back() })
	},
}

var homeCommand = &cli.Command{
	Name:  "home",
	Usage: "Press the home key",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *session) error { return s.engine.Home() })
	},
}

var tapImageCommand = &cli.Command{
	Name:      "tap-image",
	Aliases:   []string{"click-image"},
	Usage:     "Wait for an image and tap its centre",
	ArgsUsage: "[IMAGE]",
	Flags:     imageFlags,
	Action: func(c *cli.Context) error {
		ref, err := imageRef(c)
		if err != nil {
			return err
		}
		return withSession(c, func(s *session) error {
			p, err := s.engine.TapImage(ref, 0, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "tapped %d,%d\n", p.X, p.Y)
			return nil
		})
	},
}

var existsCommand = &cli.Command{
	Name:      "exists",
	Usage:     "Check once whether an image is on screen; prints true or false",
	ArgsUsage: "[IMAGE]",
	Flags:     imageFlags,
	Action: func(c *cli.Context) error {
		ref, err := imageRef(c)
		if err != nil {
			return err
		}
		return withSession(c, func(s *session) error {
			ok, err := s.engine.Exists(ref)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, ok)
			return nil
		})
	},
}

var waitCommand = &cli.Command{
	Name:      "wait",
	Usage:     "Wait until an image appears",
	ArgsUsage: "[IMAGE]",
	Flags:     imageFlags,
	Action: func(c *cli.Context) error {
		ref, err := imageRef(c)
		if err != nil {
			return err
		}
		return withSession(c, func(s *session) error {
			return s.engine.WaitForAppearance(ref, 0, 0)
		})
	},
}

var waitGoneCommand = &cli.Command{
	Name:      "wait-gone",
	Usage:     "Wait until an image disappears",
	ArgsUsage: "[IMAGE]",
	Flags:     imageFlags,
	Action: func(c *cli.Context) error {
		ref, err := imageRef(c)
		if err != nil {
			return err
		}
		return withSession(c, func(s *session) error {
			return s.engine.WaitForDisappearance(ref, 0, 0)
		})
	},
}

var screenshotCommand = &cli.Command{
	Name:      "screenshot",
	Usage:     "Save the (cropped) screen as PNG",
	ArgsUsage: "FILE",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return core.ErrInvalidArgument.WithMessage("screenshot needs FILE")
		}
		path := c.Args().First()
		return withSession(c, func(s *session) error {
			img, err := s.engine.Screenshot(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "saved %s (%dx%d)\n", path, img.Bounds().Dx(), img.Bounds().Dy())
			return nil
		})
	},
}

var launchCommand = &cli.Command{
	Name:  "launch",
	Usage: "Start the configured application",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *session) error { return s.engine.Launch() })
	},
}

var stopCommand = &cli.Command{
	Name:  "stop",
	Usage: "Force-stop the configured application",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *session) error { return s.engine.Stop() })
	},
}

var currentCommand = &cli.Command{
	Name:  "current",
	Usage: "Print the foreground package/activity",
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *session) error {
			act, err := s.engine.CurrentActivity()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, act)
			return nil
		})
	},
}

func intArgs(c *cli.Context, n int) ([]int, error) {
	if c.NArg() != n {
		return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("%s needs %d integer arguments, got %d", c.Command.Name, n, c.NArg()))
	}
	return parseInts(c.Args().Slice())
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("%q is not an integer", a))
		}
		out[i] = v
	}
	return out, nil
}

// imageRef builds the target from --key or the first argument, rejecting an
// empty one before a device is opened.
func imageRef(c *cli.Context) (engine.ImageRef, error) {
	if key := c.String("key"); key != "" {
		return engine.ByKey(key), nil
	}
	if path := c.Args().First(); path != "" {
		return engine.ByPath(path), nil
	}
	return engine.ImageRef{}, core.ErrInvalidArgument.WithMessage(c.Command.Name + " needs IMAGE or --key")
}

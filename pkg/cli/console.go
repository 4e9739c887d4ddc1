package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/anchor-runner/pkg/core"
	"github.com/devicelab-dev/anchor-runner/pkg/engine"
	"github.com/devicelab-dev/anchor-runner/pkg/logger"
)

const consolePrompt = "anchor> "

var consoleCommand = &cli.Command{
	Name:  "console",
	Usage: "Read commands line by line and run them against one session",
	Description: `Each line is one command, e.g.

  tap 540 1200
  type hello%sworld
  tap-image login.png
  exists key:settings
  quit

Image arguments are file paths, or key:NAME resolved through --resource-path.
Failed commands are reported and the console keeps going.`,
	Action: func(c *cli.Context) error {
		return withSession(c, func(s *session) error {
			w := engine.NewWorker(s.engine, 1)
			defer w.Close()
			return runConsole(c.App.Reader, c.App.Writer, w)
		})
	},
}

type consoleFunc func(e *engine.Engine, args []string, out io.Writer) error

var consoleCommands = map[string]consoleFunc{
	"tap": func(e *engine.Engine, args []string, _ io.Writer) error {
		xy, err := argInts(args, 2)
		if err != nil {
			return err
		}
		return e.Tap(xy[0], xy[1])
	},
	"swipe": func(e *engine.Engine, args []string, _ io.Writer) error {
		p, err := argInts(args, 4)
		if err != nil {
			return err
		}
		return e.Swipe(p[0], p[1], p[2], p[3])
	},
	"type": func(e *engine.Engine, args []string, _ io.Writer) error {
		if len(args) == 0 {
			return core.ErrInvalidArgument.WithMessage("type needs TEXT")
		}
		return e.Type(strings.Join(args, engine.SpaceToken))
	},
	"clear": func(e *engine.Engine, args []string, _ io.Writer) error {
		n := engine.DefaultClearCount
		if len(args) > 0 {
			v, err := argInts(args, 1)
			if err != nil {
				return err
			}
			n = v[0]
		}
		return e.ClearText(n)
	},
	"back": func(e *engine.Engine, _ []string, _ io.Writer) error { return e.Back() },
	"home": func(e *engine.Engine, _ []string, _ io.Writer) error { return e.Home() },
	"tap-image": func(e *engine.Engine, args []string, out io.Writer) error {
		p, err := e.TapImage(consoleRef(args), 0, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "tapped %d,%d\n", p.X, p.Y)
		return nil
	},
	"exists": func(e *engine.Engine, args []string, out io.Writer) error {
		ok, err := e.Exists(consoleRef(args))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, ok)
		return nil
	},
	"wait": func(e *engine.Engine, args []string, _ io.Writer) error {
		return e.WaitForAppearance(consoleRef(args), 0, 0)
	},
	"wait-gone": func(e *engine.Engine, args []string, _ io.Writer) error {
		return e.WaitForDisappearance(consoleRef(args), 0, 0)
	},
	"screenshot": func(e *engine.Engine, args []string, out io.Writer) error {
		if len(args) != 1 {
			return core.ErrInvalidArgument.WithMessage("screenshot needs FILE")
		}
		if _, err := e.Screenshot(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %s\n", args[0])
		return nil
	},
	"launch": func(e *engine.Engine, _ []string, _ io.Writer) error { return e.Launch() },
	"stop":   func(e *engine.Engine, _ []string, _ io.Writer) error { return e.Stop() },
	"current": func(e *engine.Engine, _ []string, out io.Writer) error {
		act, err := e.CurrentActivity()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, act)
		return nil
	},
}

// runConsole executes one command per input line through w until EOF or
// quit. Command failures are printed, not returned.
func runConsole(in io.Reader, out io.Writer, w *engine.Worker) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, consolePrompt)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			fmt.Fprint(out, consolePrompt)
			continue
		}

		name, args := fields[0], fields[1:]
		switch name {
		case "quit", "exit":
			return nil
		case "help":
			fmt.Fprintf(out, "commands: %s, help, quit\n", strings.Join(consoleNames(), ", "))
			fmt.Fprint(out, consolePrompt)
			continue
		}

		fn, ok := consoleCommands[name]
		if !ok {
			printFailure(out, fmt.Sprintf("unknown command %q (try help)", name))
			fmt.Fprint(out, consolePrompt)
			continue
		}
		err := w.Do(name, func(e *engine.Engine) error {
			return fn(e, args, out)
		})
		if err != nil {
			logger.Warn("console: %s failed: %v", name, err)
			printFailure(out, err.Error())
		}
		fmt.Fprint(out, consolePrompt)
	}
	return scanner.Err()
}

func consoleNames() []string {
	names := make([]string, 0, len(consoleCommands))
	for n := range consoleCommands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func argInts(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, core.ErrInvalidArgument.WithMessage(fmt.Sprintf("need %d integer arguments, got %d", n, len(args)))
	}
	return parseInts(args)
}

func consoleRef(args []string) engine.ImageRef {
	if len(args) == 0 {
		return engine.ImageRef{}
	}
	if key, ok := strings.CutPrefix(args[0], "key:"); ok {
		return engine.ByKey(key)
	}
	return engine.ByPath(args[0])
}

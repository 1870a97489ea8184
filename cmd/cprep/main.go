package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/fwessels/cprep"
	"github.com/fwessels/cprep/internal/preprocessor"
)

// errReported is returned once a diagnostic has been written to stderr.
var errReported = errors.New("preprocessing failed")

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "cprep"
	app.Usage = "Run the C preprocessor over a source file"
	app.ArgsUsage = "<file.c>"
	app.HideHelpCommand = true
	app.Writer = stdout
	app.ErrWriter = stderr

	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "I",
			Usage: "Add a directory to the include search path",
		},
		&cli.StringSliceFlag{
			Name:  "iquote",
			Usage: "Add a directory searched only for quoted includes",
		},
		&cli.StringSliceFlag{
			Name:  "D",
			Usage: "Predefine NAME or NAME=VALUE",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the result to `FILE` instead of stdout",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Read settings from a YAML `FILE`; flags override it",
		},
		&cli.StringFlag{
			Name:  "color",
			Usage: "Colorize diagnostics: auto, always or never",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level for tracing the session (e.g. debug, trace)",
		},
		&cli.IntFlag{
			Name:  "max-expansion-depth",
			Usage: "Limit on nested macro expansions",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print a summary of the session to stderr",
		},
	}

	app.Action = func(c *cli.Context) error {
		return run(c, stdout, stderr)
	}
	return app
}

func loadConfig(c *cli.Context) (cprep.Config, error) {
	cfg := cprep.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = cprep.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	cfg.IncludeDirs = append(cfg.IncludeDirs, c.StringSlice("I")...)
	cfg.QuoteDirs = append(cfg.QuoteDirs, c.StringSlice("iquote")...)
	cfg.Defines = append(cfg.Defines, c.StringSlice("D")...)
	if c.IsSet("color") {
		cfg.Color = c.String("color")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("max-expansion-depth") {
		cfg.MaxExpansionDepth = c.Int("max-expansion-depth")
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context, stdout, stderr io.Writer) error {
	if c.NArg() != 1 {
		return errors.New("expected exactly one input file")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	p, out, err := cprep.File(cfg, c.Args().First())
	if err != nil {
		w, color := diagWriter(stderr, cfg.Color)
		if rerr := preprocessor.RenderError(w, err, preprocessor.RenderOptions{Color: color}); rerr != nil {
			return rerr
		}
		return errReported
	}

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, []byte(out), 0644); err != nil {
			return errors.Wrap(err, "writing output")
		}
	} else if _, err := io.WriteString(stdout, out); err != nil {
		return err
	}

	if c.Bool("stats") {
		st := cprep.SessionStats(p, out)
		fmt.Fprintf(stderr, "%s files, %s tokens, %s read, %s written\n",
			humanize.Comma(int64(st.Files)),
			humanize.Comma(int64(st.Tokens)),
			humanize.Bytes(uint64(st.InputBytes)),
			humanize.Bytes(uint64(st.OutputBytes)))
	}
	return nil
}

// diagWriter picks the destination for diagnostics and whether to color
// them. Terminals on Windows get escape sequences translated by colorable.
func diagWriter(stderr io.Writer, mode string) (io.Writer, bool) {
	f, isFile := stderr.(*os.File)
	tty := isFile && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))

	color := mode == cprep.ColorAlways || (mode == cprep.ColorAuto && tty)
	if color && isFile {
		return colorable.NewColorable(f), true
	}
	return stderr, color
}

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		if err != errReported {
			fmt.Fprintf(os.Stderr, "cprep: %v\n", err)
		}
		os.Exit(1)
	}
}

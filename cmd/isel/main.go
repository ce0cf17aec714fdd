package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/term"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/isel/compiler"
	"github.com/slowlang/isel/compiler/back"
	"github.com/slowlang/isel/compiler/format"
	"github.com/slowlang/isel/compiler/front"
)

func main() {
	selectCmd := &cli.Command{
		Name:        "select",
		Description: "select instructions for graph files",
		Action:      selectAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("arch", "", "target arch"),
			cli.NewFlag("features", "", "cpu features, comma separated (default: detected)"),
			cli.NewFlag("verify", false, "check single assignment of the result"),
			cli.NewFlag("positions", false, "print source positions"),
			cli.NewFlag("color", "auto", "colorize output: auto, always, never"),
		},
	}

	checkCmd := &cli.Command{
		Name:        "check",
		Description: "load and check graph files",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	featuresCmd := &cli.Command{
		Name:        "features",
		Description: "print detected cpu features and supported arches",
		Action:      featuresAct,
	}

	app := &cli.Command{
		Name:        "isel",
		Description: "isel lowers scheduled graphs to target instructions",
		Commands: []*cli.Command{
			selectCmd,
			checkCmd,
			featuresCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func config(c *cli.Command) (cfg back.Config, err error) {
	cfg, err = back.DefaultConfig().FromEnv()
	if err != nil {
		return cfg, errors.Wrap(err, "env")
	}

	if q := c.String("arch"); q != "" {
		cfg.Arch = q
	}

	if q := c.String("features"); q != "" {
		cfg.Features, err = back.ParseFeatures(q)
		if err != nil {
			return cfg, errors.Wrap(err, "features flag")
		}
	}

	if c.Bool("verify") {
		cfg.Verify = true
	}

	return cfg, nil
}

func useColor(mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	}

	return false, errors.New("unknown color mode: %q", mode)
}

func selectAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg, err := config(c)
	if err != nil {
		return err
	}

	color, err := useColor(c.String("color"))
	if err != nil {
		return err
	}

	opts := format.Options{Color: color, Positions: c.Bool("positions")}

	var b []byte

	for _, a := range c.Args {
		rs, err := compiler.SelectFile(ctx, cfg, a)
		if err != nil {
			return errors.Wrap(err, "select %v", a)
		}

		for _, r := range rs {
			b = b[:0]
			b = fmt.Appendf(b, "func %s:\n", r.Func.Name)

			if r.Seq == nil {
				b = fmt.Appendf(b, "\tbailout: %v\n", r.Bailout)
				os.Stdout.Write(b)

				continue
			}

			b, err = opts.Format(ctx, b, r.Seq)
			if err != nil {
				return errors.Wrap(err, "format %v", r.Func.Name)
			}

			os.Stdout.Write(b)
		}
	}

	return nil
}

func checkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		fs, err := front.LoadFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		for _, fn := range fs {
			fmt.Printf("%s: %v nodes, %v blocks\n", fn.Name, fn.Graph.Len(), len(fn.Schedule.Blocks))
		}
	}

	return nil
}

func featuresAct(c *cli.Command) error {
	fmt.Printf("detected: %v\n", back.DetectFeatures())
	fmt.Printf("arches:   %v\n", back.Arches())

	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/lipvoice/voice-client/internal/config"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("lipvoice", flag.ContinueOnError)
	global.SetOutput(stderr)
	stats := global.Bool("stats", false, "print gateway counters on exit")
	quiet := global.Bool("q", false, "do not print the banner")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage(stderr)
		return flag.ErrHelp
	}

	name, rest := global.Arg(0), global.Args()[1:]
	switch name {
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	case "help":
		usage(stdout)
		return nil
	}
	cmd, ok := commands[name]
	if !ok {
		usage(stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.New()
	if err != nil {
		return err
	}
	if !*quiet && cmd.banner {
		displayAppname(stderr, cfg.GetAppName())
	}

	if !cmd.needsApp {
		return cmd.run(ctx, &app{cfg: cfg, out: stdout}, rest)
	}
	a, err := newApp(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer a.close(*stats)
	return cmd.run(ctx, a, rest)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: lipvoice [-stats] [-q] <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}

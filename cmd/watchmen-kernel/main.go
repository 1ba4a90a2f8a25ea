// Command watchmen-kernel loads topic and pipeline definitions and runs
// pipelines on trigger files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/watchmen-go/kernel/config"
	"github.com/watchmen-go/kernel/metadata"
	"github.com/watchmen-go/kernel/version"
)

var commands = map[string]func(ctx context.Context, args []string, out io.Writer) error{
	"run":      runTrigger,
	"validate": runValidate,
	"version":  runVersion,
}

func usage() {
	fmt.Fprintf(os.Stderr, `watchmen-kernel - pipeline kernel (version %s)

Usage:
  watchmen-kernel <command> [options]

Commands:
  run        Ingest a trigger file and run the pipelines it starts
  validate   Validate topic and pipeline definitions
  version    Print the version

Run 'watchmen-kernel <command> -h' for command-specific help.
`, version.Version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd(ctx, os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runVersion(_ context.Context, _ []string, out io.Writer) error {
	_, err := fmt.Fprintln(out, version.Current())
	return err
}

func runValidate(_ context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	defs := fs.String("definitions", "definitions", "definition file or directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	loaded, err := metadata.Load(*defs)
	if err != nil {
		return err
	}
	reg := metadata.NewRegistry()
	if err := reg.Load(loaded); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d topics, %d pipelines ok\n", len(loaded.Topics), len(loaded.Pipelines))
	return err
}

func runTrigger(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configFile := fs.String("config", "", "configuration file (default: resolved from the working directory)")
	envFile := fs.String("env", "", "dotenv file")
	defs := fs.String("definitions", "definitions", "definition file or directory")
	triggerFile := fs.String("trigger", "", "trigger file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *triggerFile == "" {
		return fmt.Errorf("run: -trigger is required")
	}

	var opts []config.LoaderOption
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	if *envFile != "" {
		opts = append(opts, config.WithEnvFile(*envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	trig, err := loadTriggerFile(*triggerFile)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, *defs)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	report, err := a.fire(ctx, trig)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report.Logs()); err != nil {
		return err
	}
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d runs failed", n, len(report.Results))
	}
	return nil
}

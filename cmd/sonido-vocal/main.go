// Command sonido-vocal tracks, aligns and scores sung takes against a
// melody exercise.
//
// Usage:
//
//	sonido-vocal analyze -exercise ex.yaml -take take.wav [-reference ref.wav] [-save]
//	sonido-vocal live -exercise ex.yaml
//	sonido-vocal history [-exercise id] [-n 20]
//
// Every subcommand accepts -config; without it the defaults at 48 kHz apply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/RyanBlaney/sonido-vocal/config"
	"github.com/RyanBlaney/sonido-vocal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"analyze", "score a recorded take file", runAnalyze},
	{"live", "sing takes through the sound card", runLive},
	{"history", "list stored takes", runHistory},
}

// env is what every subcommand gets from the shared flags.
type env struct {
	cfg    *config.Config
	logger logging.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		usage(stderr)
		return 2
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "sonido-vocal: unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, &env{stdin: stdin, stdout: stdout, stderr: stderr}, args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "sonido-vocal %s: %v\n", cmd.name, err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: sonido-vocal <command> [flags]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
}

// newFlagSet returns a flag set carrying the shared -config flag.
func newFlagSet(name string, e *env) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	path := fs.String("config", "", "path to the YAML configuration file")
	return fs, path
}

// setup loads the configuration and installs the logger. Call it after
// parsing the flag set.
func (e *env) setup(configPath string) error {
	var err error
	if configPath == "" {
		e.cfg = config.Default(config.DefaultSampleRate)
	} else if e.cfg, err = config.Load(configPath); err != nil {
		return err
	}

	e.logger, err = e.cfg.Log.NewLogger(e.stderr)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(e.logger)
	return nil
}

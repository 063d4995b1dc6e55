package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/marmos91/dittostore/pkg/config"
)

// command is one dittostore sub-command.
type command struct {
	name    string
	summary string
	usage   string

	// flags registers the command's own flags. Global flags are added to
	// every command.
	flags func(fs *pflag.FlagSet)

	run func(ctx context.Context, a *app, fs *pflag.FlagSet, args []string) error
}

// app carries the process streams so commands can be driven from tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (a *app) commands() []*command {
	return []*command{
		initCommand(),
		putCommand(),
		getCommand(),
		lsCommand(),
		versionsCommand(),
		rmCommand(),
		shareCommand(),
		revokeCommand(),
		openCommand(),
		gcCommand(),
		serveCommand(),
	}
}

// execute dispatches args to a sub-command.
func (a *app) execute(ctx context.Context, args []string) error {
	if len(args) == 0 || isHelpFlag(args[0]) || args[0] == "help" {
		a.printUsage()
		if len(args) == 0 {
			return errors.New("command required")
		}
		return nil
	}

	var cmd *command
	for _, c := range a.commands() {
		if c.name == args[0] {
			cmd = c
			break
		}
	}
	if cmd == nil {
		return fmt.Errorf("unknown command %q\n\nRun 'dittostore --help' for usage.", args[0])
	}

	fs := pflag.NewFlagSet("dittostore "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addGlobalFlags(fs)
	if cmd.flags != nil {
		cmd.flags(fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			a.printCommandHelp(cmd, fs)
			return nil
		}
		return fmt.Errorf("%s\n\nRun 'dittostore %s --help' for usage.", err, cmd.name)
	}

	return cmd.run(ctx, a, fs, fs.Args())
}

// addGlobalFlags registers the flags every command accepts. Their names
// are the ones config.Load binds into the configuration.
func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	fs.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.String("log-format", "", "Log format (text, json)")
	fs.String("log-output", "", "Log destination (stdout, stderr, or a file path)")
	fs.String("store", "", "Object store type (filesystem, memory, s3)")
	fs.String("catalog", "", "Catalog type (memory, badger)")
	fs.String("max-size", "", "Upload size limit, e.g. 100MB")
	fs.Bool("metrics", false, "Enable Prometheus metrics")
	fs.Int("metrics-port", 0, "Metrics HTTP port")
}

func isHelpFlag(arg string) bool {
	return arg == "-h" || arg == "--help"
}

func (a *app) printUsage() {
	fmt.Fprintln(a.stderr, "dittostore - multi-tenant file storage")
	fmt.Fprintln(a.stderr)
	fmt.Fprintln(a.stderr, "Usage:")
	fmt.Fprintln(a.stderr, "  dittostore <command> [flags]")
	fmt.Fprintln(a.stderr)
	fmt.Fprintln(a.stderr, "Commands:")

	tw := tabwriter.NewWriter(a.stderr, 0, 4, 2, ' ', 0)
	for _, c := range a.commands() {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	_ = tw.Flush()

	fmt.Fprintln(a.stderr)
	fmt.Fprintln(a.stderr, "Run 'dittostore <command> --help' for command flags.")
}

func (a *app) printCommandHelp(cmd *command, fs *pflag.FlagSet) {
	fmt.Fprintf(a.stderr, "%s\n\nUsage:\n  dittostore %s\n\nFlags:\n", cmd.summary, cmd.usage)
	fmt.Fprint(a.stderr, fs.FlagUsages())
}

// requireArgs checks the positional argument count.
func requireArgs(cmd string, args []string, names ...string) error {
	if len(args) != len(names) {
		return fmt.Errorf("%s: expected %d argument(s) <%s>, got %d",
			cmd, len(names), strings.Join(names, "> <"), len(args))
	}
	return nil
}

// requireFlags checks that string flags are non-empty.
func requireFlags(fs *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		if v == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}

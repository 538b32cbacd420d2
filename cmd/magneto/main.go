// Package main is the magneto command-line tool. It runs the recording proxy and manages the
// cassettes it stores.
package main

import (
	"fmt"
	"os"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/application"
	"github.com/magneto-serge/magneto/internal/logging"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	application.Options
	logLevel string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "magneto",
		Short: "HTTP and WebSocket record-and-replay proxy",
		Long: `Magneto sits between a client and the services it calls. It records every exchange to a
cassette, then replays the cassette so tests run without the network.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "configuration file location")
	flags.BoolVar(&opts.AllowMissingFile, "allow-missing-file", false, "suppress error if config file is not found")
	flags.BoolVar(&opts.UseEnvironment, "from-env", true, "read configuration from MAGNETO_ environment variables")
	flags.StringVar(&opts.logLevel, "log-level", "", "minimum log level (debug, info, warn, error, none)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// loggers returns the loggers for a command. Commands that only print results log at Warn level
// unless a level was given on the command line.
func (o *rootOptions) loggers(defaultLevel ldlog.LogLevel) (ldlog.Loggers, error) {
	level := defaultLevel
	if o.logLevel != "" {
		opt, err := config.NewOptLogLevelFromString(o.logLevel)
		if err != nil {
			return ldlog.Loggers{}, err
		}
		level = opt.GetOrElse(defaultLevel)
	}
	return logging.MakeLoggersWithLevel(level), nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

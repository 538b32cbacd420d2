package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/magneto-serge/magneto/internal/cassette"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/spf13/cobra"
)

// withStore opens the configured cassette store for the duration of a command.
func withStore(opts *rootOptions, action func(cassette.Store) error) error {
	loggers, err := opts.loggers(ldlog.Warn)
	if err != nil {
		return err
	}
	if err := opts.Resolve(); err != nil {
		return err
	}
	c, err := opts.LoadConfig(loggers)
	if err != nil {
		return err
	}
	store, err := cassette.NewStore(c, loggers)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck
	return action(store)
}

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored cassettes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store cassette.Store) error {
				names, err := store.List()
				if err != nil {
					return err
				}
				for _, name := range names {
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect <cassette>",
		Short: "Show the interactions in a cassette",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store cassette.Store) error {
				c, err := store.Load(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					data, err := cassette.Encode(c)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}
				return describeCassette(cmd.OutOrStdout(), c)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cassette as JSON")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cassette>",
		Short: "Delete a cassette",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(store cassette.Store) error {
				if err := store.Delete(args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return err
			})
		},
	}
}

func describeCassette(out io.Writer, c *cassette.Cassette) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Cassette:\t%s\n", c.Name)
	fmt.Fprintf(w, "Version:\t%s\n", c.Version)
	fmt.Fprintf(w, "Recorded at:\t%s\n", c.RecordedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Cookies:\t%d\n", len(c.Cookies))
	fmt.Fprintf(w, "Interactions:\t%d\n", len(c.Interactions))
	for n, i := range c.Interactions {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n", n, i.Kind, i.Method(), i.URL(), interactionOutcome(i))
	}
	return w.Flush()
}

func interactionOutcome(i cassette.Interaction) string {
	switch {
	case i.Response != nil:
		if ms, ok := i.ResponseTimeMS.Get(); ok {
			return fmt.Sprintf("%d (%dms)", i.Response.Status, ms)
		}
		return fmt.Sprint(i.Response.Status)
	case i.Error != nil:
		return string(i.Error.Type)
	case i.WebSocket != nil:
		return fmt.Sprintf("%d messages", len(i.WebSocket.Messages))
	default:
		return ""
	}
}

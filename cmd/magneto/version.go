package main

import (
	"fmt"

	"github.com/magneto-serge/magneto/internal/application"
	"github.com/magneto-serge/magneto/proxy"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "magneto %s\n", application.DescribeVersion(proxy.Version))
			return err
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"appserver-client/internal/domain"
)

type methodCatalogue struct {
	Client        []string `json:"client"`
	Notifications []string `json:"notifications"`
	ServerRequest []string `json:"serverRequests"`
}

func newMethodsCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:         "methods",
		Short:       "List the known protocol methods",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOut {
				return writeJSON(cmd, methodCatalogue{
					Client:        domain.ClientMethods,
					Notifications: domain.NotificationMethods,
					ServerRequest: domain.ServerRequestMethods,
				})
			}

			rows := make([][]string, 0, len(domain.ClientMethods)+len(domain.NotificationMethods)+len(domain.ServerRequestMethods))
			for _, m := range domain.ClientMethods {
				rows = append(rows, []string{"client -> server", "request", m})
			}
			for _, m := range domain.ServerRequestMethods {
				rows = append(rows, []string{"server -> client", "request", m})
			}
			for _, m := range domain.NotificationMethods {
				rows = append(rows, []string{"server -> client", "notification", m})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Direction", "Kind", "Method"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

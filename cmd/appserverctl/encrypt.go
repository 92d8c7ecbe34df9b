package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"appserver-client/internal/infra/config"
)

func newEncryptValueCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "encrypt-value <plaintext>",
		Short:       "Encrypt a value for connection.env using $APPSERVER_CONFIG_KEY",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("APPSERVER_CONFIG_KEY")
			if passphrase == "" {
				return errors.New("APPSERVER_CONFIG_KEY is not set")
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), config.SecretPrefix+enc)
			return nil
		},
	}
}

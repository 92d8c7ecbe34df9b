package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"appserver-client/internal/domain"
	"appserver-client/internal/infra/config"
	"appserver-client/pkg/appserver"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	var noRetry bool
	var noHandshake bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <method> [params-json|-]",
		Short: "Send one request and print its result",
		Long: "Connects, runs the initialize handshake, sends <method> and prints the result as JSON.\n" +
			"Params are read from stdin when given as '-'. Rate-limited calls are retried with backoff.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			params, err := parseParams(cmd.InOrStdin(), args[1:])
			if err != nil {
				return err
			}
			if !domain.KnownClientMethod(method) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not a known client method\n", method)
			}

			return ctx.withClient(cmd, func(client *appserver.Client, cfg *config.Config) error {
				callCtx := cmd.Context()
				if timeout > 0 {
					var cancel context.CancelFunc
					callCtx, cancel = context.WithTimeout(callCtx, timeout)
					defer cancel()
				}

				if !noHandshake {
					if _, err := handshake(callCtx, client, cfg); err != nil {
						return err
					}
				}

				var res appserver.JSONValue
				if noRetry {
					res, err = client.Call(callCtx, method, params)
				} else {
					res, err = client.CallWithRetry(callCtx, method, params)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", method, err)
				}
				return writeJSON(cmd, res)
			})
		},
	}

	cmd.Flags().BoolVar(&noRetry, "no-retry", false, "Fail on the first rate-limit error")
	cmd.Flags().BoolVar(&noHandshake, "no-handshake", false, "Skip initialize/initialized")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Give up after this long (0 waits forever)")
	return cmd
}

// parseParams returns nil when no params were given so the field is omitted.
func parseParams(stdin io.Reader, args []string) (*appserver.JSONValue, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := args[0]
	if raw == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read params: %w", err)
		}
		raw = string(data)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var v appserver.JSONValue
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}
	return &v, nil
}

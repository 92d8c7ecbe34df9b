package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"appserver-client/internal/domain"
	"appserver-client/internal/infra/config"
	"appserver-client/pkg/appserver"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var answer bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print notifications, peer requests and diagnostics as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(client *appserver.Client, cfg *config.Config) error {
				res, err := handshake(cmd.Context(), client, cfg)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "connected to %s (%s)\n", res.UserAgent, client.ConnectionID())
				return watchInbound(cmd, client, out, colorize, answer)
			})
		},
	}

	cmd.Flags().BoolVar(&answer, "decline", true, "Answer peer requests with a method-not-found error")
	return cmd
}

func watchInbound(cmd *cobra.Command, client *appserver.Client, out io.Writer, colorize, decline bool) error {
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case msg, ok := <-client.Inbound():
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatInbound(msg, colorize))

			switch msg.Kind {
			case appserver.InboundRequest:
				if !decline {
					continue
				}
				rpcErr := appserver.RPCError{
					Code:    domain.RPCCodeMethodNotFound,
					Message: "method not handled: " + msg.Request.Method,
				}
				if err := client.RespondError(cmd.Context(), msg.Request.ID, rpcErr); err != nil {
					return fmt.Errorf("answer %s: %w", msg.Request.Method, err)
				}
			case appserver.InboundDisconnected:
				if msg.ExitCode != nil && *msg.ExitCode != 0 {
					return fmt.Errorf("app-server exited with code %d", *msg.ExitCode)
				}
				return nil
			}
		}
	}
}

func formatInbound(msg appserver.InboundMessage, colorize bool) string {
	switch msg.Kind {
	case appserver.InboundNotification:
		return fmt.Sprintf("%s %s %s",
			paint("notify ", colorize, text.FgCyan),
			msg.Notification.Method,
			paramsText(msg.Notification.Params))
	case appserver.InboundRequest:
		return fmt.Sprintf("%s %s [%s] %s",
			paint("request", colorize, text.FgYellow, text.Bold),
			msg.Request.Method,
			msg.Request.ID.String(),
			paramsText(msg.Request.Params))
	case appserver.InboundDiagnostic:
		return fmt.Sprintf("%s %s", paint("diag   ", colorize, text.FgHiBlack), msg.Diagnostic)
	case appserver.InboundDisconnected:
		status := "exit code unknown"
		if msg.ExitCode != nil {
			status = fmt.Sprintf("exit code %d", *msg.ExitCode)
		}
		return fmt.Sprintf("%s %s", paint("closed ", colorize, text.FgRed), status)
	default:
		return msg.Kind.String()
	}
}

func paramsText(p *appserver.JSONValue) string {
	if p == nil {
		return "{}"
	}
	return p.String()
}

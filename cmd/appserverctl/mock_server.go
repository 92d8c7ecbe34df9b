package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"appserver-client/internal/adapter/mockserver"
	"appserver-client/internal/domain"
	"appserver-client/internal/infra/config"
	"appserver-client/internal/infra/logger"
)

func newMockServerCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a minimal WebSocket app-server for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(cfg *config.Config, log *slog.Logger) error {
				if addr == "" {
					addr = cfg.MockServer.Addr
				}
				srv := newMockServer(addr, cfg.MockServer.UserAgent, logger.Component(log, "mockserver"))

				go func() {
					select {
					case <-srv.Ready():
						fmt.Fprintf(cmd.OutOrStdout(), "mock app-server listening on %s\n", srv.URL())
					case <-cmd.Context().Done():
					}
				}()
				return srv.Start(cmd.Context())
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default mock_server.addr)")
	return cmd
}

// newMockServer answers initialize plus model/list and echoes turn/start
// input back as an item/completed notification.
func newMockServer(addr, userAgent string, log *slog.Logger, extra ...mockserver.Option) *mockserver.Server {
	opts := append([]mockserver.Option{mockserver.WithLogger(log), mockserver.WithUserAgent(userAgent)}, extra...)
	srv := mockserver.NewServer(addr, opts...)

	srv.RegisterHandler(domain.MethodModelList, func(context.Context, *mockserver.Peer, *domain.JSONValue) (domain.JSONValue, error) {
		return domain.Object(map[string]domain.JSONValue{
			"data": domain.Array(domain.Object(map[string]domain.JSONValue{
				"id":          domain.String("mock-model"),
				"displayName": domain.String("Mock Model"),
				"isDefault":   domain.Bool(true),
			})),
		}), nil
	})

	srv.RegisterHandler(domain.MethodTurnStart, func(_ context.Context, p *mockserver.Peer, params *domain.JSONValue) (domain.JSONValue, error) {
		input := domain.Null()
		if params != nil {
			if v, ok := params.Field("input"); ok {
				input = v
			}
		}
		item := domain.Object(map[string]domain.JSONValue{
			"item": domain.Object(map[string]domain.JSONValue{
				"type":  domain.String("agentMessage"),
				"id":    domain.String("item-1"),
				"input": input,
			}),
		})
		if err := p.Notify("item/completed", &item); err != nil {
			return domain.JSONValue{}, err
		}
		return domain.Object(map[string]domain.JSONValue{
			"turn": domain.Object(map[string]domain.JSONValue{
				"id":     domain.String("turn-1"),
				"status": domain.String("completed"),
			}),
		}), nil
	})

	return srv
}

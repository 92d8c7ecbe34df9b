package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"appserver-client/internal/infra/config"
	"appserver-client/internal/infra/logger"
	"appserver-client/internal/infra/tracer"
	"appserver-client/pkg/appserver"
)

const defaultConfigPath = "appserver.yaml"

type commandContext struct {
	configFlag *string
	urlFlag    *string
	execFlag   *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, urlFlag, execFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		urlFlag:    urlFlag,
		execFlag:   execFlag,
	}
}

func (c *commandContext) configPath() string {
	if p := flagValue(c.configFlag); p != "" {
		return p
	}
	if p := os.Getenv("APPSERVER_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if c.applyFlags(cfg) {
			if err := config.Validate(cfg); err != nil {
				c.configErr = err
				return
			}
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// applyFlags lets --url and --exec override the configured transport. It
// reports whether anything changed.
func (c *commandContext) applyFlags(cfg *config.Config) bool {
	changed := false
	if url := flagValue(c.urlFlag); url != "" {
		cfg.Connection.Transport = config.TransportWebSocket
		cfg.Connection.URL = url
		changed = true
	}
	if line := flagValue(c.execFlag); line != "" {
		fields := strings.Fields(line)
		cfg.Connection.Transport = config.TransportPipe
		cfg.Connection.Executable = fields[0]
		cfg.Connection.Args = fields[1:]
		changed = true
	}
	return changed
}

// withRuntime sets up logging and tracing for the duration of fn.
func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(*config.Config, *slog.Logger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	shutdown, err := tracer.Setup(cmd.Context(), cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	return fn(cfg, log)
}

// withClient connects a client built from the configuration and closes it
// once fn returns.
func (c *commandContext) withClient(cmd *cobra.Command, fn func(*appserver.Client, *config.Config) error) error {
	return c.withRuntime(cmd, func(cfg *config.Config, log *slog.Logger) error {
		client, err := appserver.NewFromConfig(cfg, appserver.WithLogger(logger.Component(log, "client")))
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Connect(cmd.Context()); err != nil {
			return fmt.Errorf("connect to app-server: %w", err)
		}
		return fn(client, cfg)
	})
}

func handshake(ctx context.Context, client *appserver.Client, cfg *config.Config) (appserver.InitializeResult, error) {
	res, err := client.Handshake(ctx, appserver.InitializeParamsFromConfig(cfg.Client))
	if err != nil {
		return res, fmt.Errorf("initialize: %w", err)
	}
	return res, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

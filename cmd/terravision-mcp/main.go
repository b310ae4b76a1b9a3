// Command terravision-mcp serves the locate, findScenes, computeStats and
// renderImage tools over MCP on stdin/stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Berektassuly/terra-vision-ai/internal/config"
	"github.com/Berektassuly/terra-vision-ai/pkg/engine"
	"github.com/Berektassuly/terra-vision-ai/pkg/tools/mcpserver"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath, config.SkipModel())
	if err != nil {
		return err
	}

	// stdout carries the protocol; logs go to stderr.
	logger := cfg.Log.Logger(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := engine.NewService(cfg.Engine(), engine.WithLogger(logger))

	srv := mcpserver.New("terravision", version,
		mcpserver.WithToolTimeout(cfg.Agent.ToolTimeout),
		mcpserver.WithLogger(logger),
	)
	srv.Register(svc.ToolBox())

	logger.Info("terravision-mcp serving on stdio", "version", version)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

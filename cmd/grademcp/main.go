// Command grademcp serves the grading tools to an MCP client over stdio.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/exercisegrade/mcpserver"
	"github.com/jonwraymond/exercisegrade/server"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("grademcp", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	catalogPath := fs.String("catalog", os.Getenv("GRADE_CATALOG"), "JSON exercise catalog")
	timeout := fs.Duration("exec.timeout", 5*time.Second, "default run timeout")
	maxSteps := fs.Uint64("exec.max-steps", 0, "step budget for scripts")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("grademcp: %w", err)
	}
	if *catalogPath == "" {
		return fmt.Errorf("grademcp: -catalog is required")
	}

	// Stdout carries the protocol; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	catalog, err := server.LoadCatalogFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	srv, err := mcpserver.New(mcpserver.Config{
		Catalog: catalog,
		Engine: server.EngineConfig{
			DefaultTimeout: *timeout,
			MaxSteps:       *maxSteps,
		},
		Name:    "exercisegrade",
		Version: version,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving grading tools over stdio", "exercises", len(catalog.IDs()))
	return srv.Run(ctx, &mcp.StdioTransport{})
}

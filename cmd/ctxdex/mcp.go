package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpTransport "github.com/kailas-cloud/ctxdex/internal/transport/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the retrieval tools over MCP stdio",
	Long: `Serve retrieve_context and retrieve_places over the MCP stdio transport.

Without --tenant every tool call must pass tenant_id.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMCP(cmd.Context())
	},
}

func runMCP(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(closeCtx)
		_ = a.logger.Sync()
	}()

	weights, placeWeights := a.weights()
	srv := mcpTransport.NewServer(mcpTransport.Deps{
		Retriever:    a.retrieval,
		Tenant:       tenantFlag,
		Weights:      weights,
		PlaceWeights: placeWeights,
		Logger:       a.logger,
	})

	if err := server.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

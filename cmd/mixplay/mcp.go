package main

import (
	"log/slog"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/mcptools"
)

func newMCPCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the corpus tools to an MCP client over stdio",
		Long: `Runs an MCP server on stdin/stdout exposing the tools search_word,
compose_sentence and corpus_stats. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				slog.Info("mcp server starting", "pid", os.Getpid(), "words", a.Index().Len())
				return mcptools.New(a, mcptools.WithVersion(version)).
					Run(cmd.Context(), &mcpsdk.StdioTransport{})
			})
		},
	}
}

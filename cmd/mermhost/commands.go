// commands.go contains the cobra command definitions. Each builder
// creates one command and wires it to its handler in handlers.go.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "mermhost",
		Short:         "Natural-language mermaid diagramming over MCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML or JSON5 configuration file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(
		buildChatCmd(&configPath),
		buildServeCmd(&configPath),
		buildToolsCmd(&configPath),
		buildRenderCmd(&configPath),
		buildVersionCmd(),
	)
	return cmd
}

func buildChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start the interactive loop. Each line you type is classified by the
language model into either a tool call against the MCP render server or
a plain conversational answer. Type quit, exit, or q to leave.`,
		Example: `  # Chat against the server named in mermhost.yaml
  mermhost chat --config mermhost.yaml

  # Debug a session
  mermhost chat --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), *configPath)
		},
	}
}

func buildServeCmd(configPath *string) *cobra.Command {
	var (
		listen string
		stdio  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mermaid render server",
		Long: `Run the bundled MCP render server. By default it listens for JSON-RPC
over HTTP POST on the configured address; with --stdio it reads
newline-delimited requests from stdin instead, which is the framing the
stdio transport of the chat client expects.`,
		Example: `  # HTTP on the configured listen address
  mermhost serve

  # As a stdio child process
  mermhost serve --stdio`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, listen, stdio)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve over stdin/stdout instead of HTTP")
	return cmd
}

func buildToolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools and resources the MCP server offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd.Context(), *configPath)
		},
	}
}

func buildRenderCmd(configPath *string) *cobra.Command {
	var (
		input      string
		format     string
		width      int
		height     int
		background string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one mermaid script without a conversation",
		Example: `  mermhost render --input diagram.mmd --format svg
  cat diagram.mmd | mermhost render`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), *configPath, input, format, width, height, background)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Mermaid script file (default: stdin)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: png, svg, pdf")
	cmd.Flags().IntVar(&width, "width", 0, "Image width")
	cmd.Flags().IntVar(&height, "height", 0, "Image height")
	cmd.Flags().StringVar(&background, "background", "", "Background color")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mermhost %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

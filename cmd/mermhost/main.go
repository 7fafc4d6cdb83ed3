// Package main provides the mermhost CLI: an interactive host that
// turns natural-language requests into mermaid tool calls over MCP.
//
// # Basic Usage
//
// Start a conversation against a running render server:
//
//	mermhost chat --config mermhost.yaml
//
// Run the bundled mermaid render server:
//
//	mermhost serve
//	mermhost serve --stdio
//
// Inspect what the server offers:
//
//	mermhost tools
//
// Render a script without a conversation:
//
//	mermhost render --input diagram.mmd --format svg
//
// # Environment Variables
//
//   - MERMHOST_API_KEY: API key for the completion endpoint
//   - MERMAID_CLI_PATH: mermaid CLI binary (default: mmdc)
//   - MERMAID_OUTPUT_DIR: rendered image directory (default: ./output)
package main

import (
	"fmt"
	"os"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// handlers.go contains the run functions behind each command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lumenlab/mermhost/internal/backoff"
	"github.com/lumenlab/mermhost/internal/config"
	"github.com/lumenlab/mermhost/internal/host"
	"github.com/lumenlab/mermhost/internal/intent"
	"github.com/lumenlab/mermhost/internal/invoke"
	"github.com/lumenlab/mermhost/internal/llm"
	"github.com/lumenlab/mermhost/internal/mcp"
	"github.com/lumenlab/mermhost/internal/registry"
	"github.com/lumenlab/mermhost/internal/render"
	"github.com/lumenlab/mermhost/internal/validate"
)

// logLevelOverride holds the --log-level flag so a config-supplied
// level does not override an explicit one.
var logLevelOverride string

func setupLogging(level string) error {
	logLevelOverride = level
	return applyLogging(level, "")
}

func applyLogging(level, file string) error {
	var l slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		l = slog.LevelInfo
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	var w io.Writer = os.Stderr
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})))
	return nil
}

// loadConfig reads the configuration and applies its logging settings.
// An explicit --log-level wins over the config's level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if err := applyLogging(level, cfg.Logging.File); err != nil {
		return nil, err
	}
	return cfg, nil
}

func retryPolicy(cfg config.RetryConfig) backoff.Policy {
	policy := backoff.Default()
	if cfg.InitialDelay > 0 {
		policy.Initial = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		policy.Max = cfg.MaxDelay
	}
	return policy
}

func serverConfig(cfg config.MCPConfig) *mcp.ServerConfig {
	return &mcp.ServerConfig{
		ID:        cfg.ID,
		Transport: mcp.TransportType(cfg.Transport),
		Command:   cfg.Command,
		Args:      cfg.Args,
		Env:       cfg.Env,
		WorkDir:   cfg.WorkDir,
		URL:       cfg.URL,
		Headers:   cfg.Headers,
		Timeout:   cfg.Timeout,
	}
}

func runChat(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := slog.Default()

	client := mcp.NewClient(serverConfig(cfg.MCP), logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to MCP server: %w", err)
	}
	defer client.Close()

	llmClient := llm.New(llm.Options{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		Timeout:   cfg.LLM.Timeout,
		MaxTokens: cfg.LLM.MaxTokens,
	}, logger)

	policy := retryPolicy(cfg.Retry)
	reg := registry.New(client, policy, cfg.Retry.MaxAttempts, logger)
	classifier := intent.NewClassifier(llmClient, logger)
	invoker := invoke.New(client, policy, cfg.Retry.MaxAttempts, logger)

	loop := host.New(os.Stdin, os.Stdout, reg, classifier, validate.New(), invoker, llmClient, logger)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServe(ctx context.Context, configPath, listen string, stdio bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	renderer, err := render.NewRenderer(cfg.Render.CLIPath, cfg.Render.OutputDir, logger)
	if err != nil {
		return err
	}
	server := render.NewServer(renderer, logger)

	if stdio {
		// Logs go to stderr; stdout carries only protocol frames.
		return server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}

	if listen == "" {
		listen = cfg.Render.Listen
	}
	if listen == "" {
		listen = "127.0.0.1:8000"
	}

	mux := http.NewServeMux()
	mux.Handle("/mcp", server)
	httpServer := &http.Server{Addr: listen, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("render server listening", "addr", listen)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func runTools(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client := mcp.NewClient(serverConfig(cfg.MCP), slog.Default())
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to MCP server: %w", err)
	}
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	fmt.Printf("Tools (%d):\n", len(tools))
	for _, tool := range tools {
		fmt.Printf("  %-22s %s\n", tool.Name, tool.Description)
	}

	resources, err := client.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}
	fmt.Printf("Resources (%d):\n", len(resources))
	for _, res := range resources {
		fmt.Printf("  %-28s %s\n", res.URI, res.Description)
	}
	return nil
}

func runRender(ctx context.Context, configPath, input, format string, width, height int, background string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var script []byte
	if input == "" || input == "-" {
		script, err = io.ReadAll(os.Stdin)
	} else {
		script, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	renderer, err := render.NewRenderer(cfg.Render.CLIPath, cfg.Render.OutputDir, slog.Default())
	if err != nil {
		return err
	}

	out := renderer.Render(ctx, render.RenderRequest{
		Script:     string(script),
		Format:     format,
		Width:      width,
		Height:     height,
		Background: background,
	})
	if !out.Success {
		return fmt.Errorf("render: %s", out.Error)
	}
	fmt.Println(out.ImagePath)
	return nil
}

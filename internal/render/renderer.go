// Package render implements the mermaid drawing service: a wrapper
// around the mermaid CLI plus an MCP server exposing it over the same
// protocol the client package speaks.
package render

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SupportedFormats lists the output formats the CLI can produce.
var SupportedFormats = []string{"png", "svg", "pdf"}

// DefaultFormat is used when a render request names no format.
const DefaultFormat = "png"

const (
	defaultWidth      = 800
	defaultHeight     = 600
	defaultBackground = "transparent"

	renderTimeout   = 30 * time.Second
	validateTimeout = 10 * time.Second
)

// Renderer shells out to the mermaid CLI (mmdc) to turn scripts into
// image files under a fixed output directory.
type Renderer struct {
	cliPath   string
	outputDir string
	logger    *slog.Logger
}

// NewRenderer creates a Renderer and ensures the output directory
// exists.
func NewRenderer(cliPath, outputDir string, logger *slog.Logger) (*Renderer, error) {
	if cliPath == "" {
		cliPath = "mmdc"
	}
	if outputDir == "" {
		outputDir = "./output"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &Renderer{
		cliPath:   cliPath,
		outputDir: outputDir,
		logger:    logger.With("component", "renderer"),
	}, nil
}

// OutputDir returns the directory rendered images land in.
func (r *Renderer) OutputDir() string { return r.outputDir }

// CLIPath returns the mermaid CLI binary in use.
func (r *Renderer) CLIPath() string { return r.cliPath }

// RenderOutput is the render_mermaid tool's answer.
type RenderOutput struct {
	Success   bool   `json:"success"`
	ImagePath string `json:"image_path,omitempty"`
	FileID    string `json:"file_id,omitempty"`
	Format    string `json:"format,omitempty"`
	Size      int64  `json:"size,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ValidateOutput is the validate_mermaid tool's answer.
type ValidateOutput struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

// FormatsOutput is the get_supported_formats tool's answer.
type FormatsOutput struct {
	Formats      []string          `json:"formats"`
	Default      string            `json:"default"`
	Descriptions map[string]string `json:"descriptions"`
}

// RenderRequest holds one render invocation's arguments. Zero values
// take the service defaults.
type RenderRequest struct {
	Script     string `json:"script"`
	Format     string `json:"format"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Background string `json:"background"`
}

// FileID derives the stable output file identifier for a script: the
// first 12 hex characters of its MD5. The same script always lands at
// the same path.
func FileID(script string) string {
	sum := md5.Sum([]byte(script))
	return hex.EncodeToString(sum[:])[:12]
}

// Render runs the CLI over the script and reports the written image.
// CLI failures and timeouts come back inside the output, not as Go
// errors; only argument problems error out.
func (r *Renderer) Render(ctx context.Context, req RenderRequest) RenderOutput {
	if strings.TrimSpace(req.Script) == "" {
		return RenderOutput{Error: "script is empty"}
	}
	format := req.Format
	if format == "" {
		format = DefaultFormat
	}
	if !formatSupported(format) {
		return RenderOutput{Error: fmt.Sprintf("unsupported format %q, expected one of: %s", format, strings.Join(SupportedFormats, ", "))}
	}
	width := req.Width
	if width <= 0 {
		width = defaultWidth
	}
	height := req.Height
	if height <= 0 {
		height = defaultHeight
	}
	background := req.Background
	if background == "" {
		background = defaultBackground
	}

	fileID := FileID(req.Script)
	outputPath := filepath.Join(r.outputDir, fmt.Sprintf("mermaid_%s.%s", fileID, format))

	scriptPath, cleanup, err := writeTempScript(req.Script)
	if err != nil {
		return RenderOutput{Error: fmt.Sprintf("write script: %v", err)}
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cliPath,
		"--input", scriptPath,
		"--output", outputPath,
		"--outputFormat", format,
		"--width", strconv.Itoa(width),
		"--height", strconv.Itoa(height),
		"--backgroundColor", background,
	)
	stderr, err := runCapture(cmd)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return RenderOutput{Error: "mermaid rendering timed out"}
		}
		r.logger.Error("mermaid CLI failed", "file_id", fileID, "stderr", stderr)
		return RenderOutput{Error: fmt.Sprintf("failed to generate diagram: %s", firstNonEmpty(stderr, err.Error()))}
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return RenderOutput{Error: "output file was not created"}
	}

	r.logger.Info("diagram rendered",
		"file_id", fileID, "format", format, "bytes", info.Size())
	return RenderOutput{
		Success:   true,
		ImagePath: outputPath,
		FileID:    fileID,
		Format:    format,
		Size:      info.Size(),
	}
}

// Validate checks the script by asking the CLI to render it to a
// throwaway file with a short deadline.
func (r *Renderer) Validate(ctx context.Context, script string) ValidateOutput {
	if strings.TrimSpace(script) == "" {
		return ValidateOutput{Error: "script is empty"}
	}

	scriptPath, cleanup, err := writeTempScript(script)
	if err != nil {
		return ValidateOutput{Error: fmt.Sprintf("write script: %v", err)}
	}
	defer cleanup()

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("mermaid_check_%s.svg", FileID(script)))
	defer os.Remove(outPath)

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cliPath,
		"--input", scriptPath,
		"--output", outPath,
		"--quiet",
	)
	stderr, err := runCapture(cmd)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ValidateOutput{Error: "validation timed out"}
		}
		return ValidateOutput{Error: firstNonEmpty(stderr, err.Error())}
	}
	return ValidateOutput{IsValid: true}
}

// Formats describes the supported output formats.
func Formats() FormatsOutput {
	return FormatsOutput{
		Formats: SupportedFormats,
		Default: DefaultFormat,
		Descriptions: map[string]string{
			"png": "Portable Network Graphics, a bitmap suited to web pages",
			"svg": "Scalable Vector Graphics, lossless at any zoom",
			"pdf": "Portable Document Format, suited to print",
		},
	}
}

func formatSupported(format string) bool {
	for _, f := range SupportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

func writeTempScript(script string) (string, func(), error) {
	f, err := os.CreateTemp("", "mermaid_*.mmd")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.WriteString(script); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func runCapture(cmd *exec.Cmd) (string, error) {
	var stderr strings.Builder
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stderr.String()), err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

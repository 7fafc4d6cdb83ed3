package render

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestFileID(t *testing.T) {
	id := FileID("graph TD\nA-->B")
	if len(id) != 12 {
		t.Errorf("FileID length = %d, want 12", len(id))
	}
	if id != FileID("graph TD\nA-->B") {
		t.Error("FileID not stable for identical scripts")
	}
	if id == FileID("graph TD\nA-->C") {
		t.Error("FileID identical for different scripts")
	}
}

func TestRenderRejectsEmptyScript(t *testing.T) {
	r := newTestRenderer(t, "mmdc")
	out := r.Render(context.Background(), RenderRequest{Script: "   "})
	if out.Success || out.Error == "" {
		t.Errorf("output = %+v, want error for empty script", out)
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	r := newTestRenderer(t, "mmdc")
	out := r.Render(context.Background(), RenderRequest{Script: "graph TD", Format: "bmp"})
	if out.Success {
		t.Fatal("render succeeded with unsupported format")
	}
	if !strings.Contains(out.Error, "bmp") {
		t.Errorf("Error = %q, want it to name the bad format", out.Error)
	}
}

func TestRenderMissingCLI(t *testing.T) {
	r := newTestRenderer(t, filepath.Join(t.TempDir(), "no-such-mmdc"))
	out := r.Render(context.Background(), RenderRequest{Script: "graph TD"})
	if out.Success {
		t.Fatal("render succeeded without a CLI binary")
	}
	if out.Error == "" {
		t.Error("Error empty, want CLI failure description")
	}
}

func TestRenderWithFakeCLI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI uses a shell script")
	}
	r := newTestRenderer(t, fakeCLI(t, `#!/bin/sh
while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then out="$2"; fi
  shift
done
printf 'fake image' > "$out"
`))

	out := r.Render(context.Background(), RenderRequest{Script: "graph TD\nA-->B", Format: "svg"})
	if !out.Success {
		t.Fatalf("output = %+v, want success", out)
	}
	if out.Format != "svg" || out.FileID != FileID("graph TD\nA-->B") {
		t.Errorf("output = %+v", out)
	}
	data, err := os.ReadFile(out.ImagePath)
	if err != nil || string(data) != "fake image" {
		t.Errorf("image file = %q, %v", data, err)
	}
	if out.Size != int64(len("fake image")) {
		t.Errorf("Size = %d", out.Size)
	}
}

func TestValidateWithFakeCLI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI uses a shell script")
	}
	good := newTestRenderer(t, fakeCLI(t, "#!/bin/sh\nexit 0\n"))
	if out := good.Validate(context.Background(), "graph TD"); !out.IsValid {
		t.Errorf("output = %+v, want valid", out)
	}

	bad := newTestRenderer(t, fakeCLI(t, "#!/bin/sh\necho 'parse error at line 2' >&2\nexit 1\n"))
	out := bad.Validate(context.Background(), "graph TD ->>")
	if out.IsValid {
		t.Fatal("invalid script reported valid")
	}
	if !strings.Contains(out.Error, "parse error") {
		t.Errorf("Error = %q, want CLI stderr", out.Error)
	}
}

func TestFormats(t *testing.T) {
	out := Formats()
	if out.Default != "png" {
		t.Errorf("Default = %q", out.Default)
	}
	if len(out.Formats) != 3 || len(out.Descriptions) != 3 {
		t.Errorf("output = %+v", out)
	}
}

func newTestRenderer(t *testing.T, cliPath string) *Renderer {
	t.Helper()
	r, err := NewRenderer(cliPath, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func fakeCLI(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mmdc")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake CLI: %v", err)
	}
	return path
}

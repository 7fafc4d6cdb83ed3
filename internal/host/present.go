package host

import (
	"fmt"
	"sort"

	"github.com/lumenlab/mermhost/internal/invoke"
	"github.com/lumenlab/mermhost/internal/validate"
)

// maxValueDisplay bounds how much of any single value is echoed back
// to the terminal. Mermaid scripts can run to hundreds of lines.
const maxValueDisplay = 100

// presentParams echoes the arguments about to be sent, truncated, in
// stable key order.
func (l *Loop) presentParams(params map[string]any) {
	if len(params) == 0 {
		return
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(l.out, "  %s: %s\n", k, truncate(fmt.Sprintf("%v", params[k])))
	}
}

// presentInvalid explains exactly what the decision was missing so the
// user can restate the request.
func (l *Loop) presentInvalid(outcome validate.Outcome) {
	fmt.Fprintf(l.out, "I can't call %s yet:\n", outcome.ToolName)
	for _, field := range outcome.MissingFields {
		fmt.Fprintf(l.out, "  missing required parameter %q\n", field)
	}
	for _, te := range outcome.TypeErrors {
		fmt.Fprintf(l.out, "  parameter %s\n", te.String())
	}
	for _, v := range outcome.Violations {
		fmt.Fprintf(l.out, "  %s\n", v)
	}
	fmt.Fprintln(l.out, "Please rephrase with the missing details.")
}

// presentResult renders a tool outcome. Structured payloads print as
// truncated key/value lines; plain text prints as-is.
func (l *Loop) presentResult(tool string, result invoke.Result) {
	if !result.Success {
		fmt.Fprintf(l.out, "%s failed: %s\n", tool, truncate(result.Error))
		return
	}

	fmt.Fprintf(l.out, "%s succeeded.\n", tool)
	if result.Payload != nil {
		keys := make([]string, 0, len(result.Payload))
		for k := range result.Payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(l.out, "  %s: %s\n", k, truncate(fmt.Sprintf("%v", result.Payload[k])))
		}
		return
	}
	if result.Text != "" {
		fmt.Fprintln(l.out, truncate(result.Text))
	}
}

func truncate(s string) string {
	if len(s) <= maxValueDisplay {
		return s
	}
	return s[:maxValueDisplay] + "..."
}

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourorg/apitester/internal/validation"
	"github.com/yourorg/apitester/pkg/types"
)

// maxBodyPreview bounds the response excerpt embedded per endpoint.
const maxBodyPreview = 2000

// MarkdownFile is the file name RenderMarkdown writes.
const MarkdownFile = "report.md"

// RenderMarkdown writes a run report for results to outputDir/report.md and
// returns the file path.
func RenderMarkdown(title string, results []types.ExecutionResult, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, MarkdownFile)
	if err := os.WriteFile(path, []byte(Markdown(title, results, time.Now())), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// Markdown renders the run report.
func Markdown(title string, results []types.ExecutionResult, generatedAt time.Time) string {
	b := &strings.Builder{}
	sum := types.Summarize(results)

	fmt.Fprintf(b, "# %s\n\n", title)
	fmt.Fprintf(b, "Generated %s\n\n", generatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintln(b, "## Summary")
	fmt.Fprintln(b)
	fmt.Fprintln(b, "| Executed | Succeeded | Failed | Validations passed |")
	fmt.Fprintln(b, "|---|---|---|---|")
	fmt.Fprintf(b, "| %d | %d | %d | %d/%d |\n", sum.Total, sum.Succeeded, sum.Failed, sum.ValidationsPassed, sum.ValidationsTotal)

	for i, res := range results {
		fmt.Fprintf(b, "\n## %d. %s\n\n", i+1, cell(displayName(res.Endpoint)))
		fmt.Fprintf(b, "`%s %s`\n\n", res.Endpoint.Method, res.Endpoint.URL)
		if res.Response != nil {
			fmt.Fprintf(b, "**Result:** %s, HTTP %d %s in %d ms\n\n", res.Status, res.Response.Status, res.Response.StatusText, res.Response.ResponseTimeMs)
		} else {
			fmt.Fprintf(b, "**Result:** %s\n\n", res.Status)
		}
		if res.Error != "" {
			fmt.Fprintf(b, "**Error:** %s\n\n", res.Error)
		}
		if len(res.ValidationResults) > 0 {
			fmt.Fprintln(b, "### Validations")
			fmt.Fprintln(b)
			fmt.Fprintln(b, "| Rule | Result | Message |")
			fmt.Fprintln(b, "|---|---|---|")
			for _, rule := range res.ValidationResults {
				fmt.Fprintf(b, "| %s | %s | %s |\n", cell(validation.Describe(rule)), rule.Result, cell(rule.Message))
			}
			fmt.Fprintln(b)
		}
		if res.Response != nil && len(res.Response.Data) > 0 {
			fmt.Fprintln(b, "### Response")
			fmt.Fprintln(b)
			fmt.Fprintln(b, "```json")
			fmt.Fprintln(b, preview(res.Response.Data))
			fmt.Fprintln(b, "```")
		}
	}
	return b.String()
}

// cell escapes text for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func preview(data json.RawMessage) string {
	var buf bytes.Buffer
	out := string(data)
	if err := json.Indent(&buf, data, "", "  "); err == nil {
		out = buf.String()
	}
	if len(out) > maxBodyPreview {
		out = out[:maxBodyPreview] + "\n..."
	}
	return out
}

// Package report renders execution results and collections for people: CLI
// tables, a Markdown run report and an OpenAPI export of a collection.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/yourorg/apitester/pkg/types"
)

// WriteSummary prints one row per result followed by the run totals.
func WriteSummary(w io.Writer, results []types.ExecutionResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Name", "Method", "Result", "HTTP", "Time (ms)", "Validations"})
	table.SetAutoWrapText(false)
	for i, res := range results {
		code, elapsed := "-", "-"
		if res.Response != nil {
			code = strconv.Itoa(res.Response.Status)
			elapsed = strconv.FormatInt(res.Response.ResponseTimeMs, 10)
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			displayName(res.Endpoint),
			res.Endpoint.Method,
			string(res.Status),
			code,
			elapsed,
			fmt.Sprintf("%d/%d", res.PassedCount(), len(res.ValidationResults)),
		})
	}
	table.Render()

	sum := types.Summarize(results)
	fmt.Fprintf(w, "%d executed, %d succeeded, %d failed; %d/%d validations passed\n",
		sum.Total, sum.Succeeded, sum.Failed, sum.ValidationsPassed, sum.ValidationsTotal)
}

// WriteCollections prints collection headers as a table.
func WriteCollections(w io.Writer, cols []types.Collection) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Source", "Endpoints", "Updated"})
	table.SetAutoWrapText(false)
	for _, c := range cols {
		table.Append([]string{c.ID, c.Name, c.Source, strconv.Itoa(c.EndpointCount), c.UpdatedAt.Format("2006-01-02 15:04")})
	}
	table.Render()
}

// WriteEndpoints prints the endpoints of a collection with their rule counts
// and schema state.
func WriteEndpoints(w io.Writer, eps []types.Endpoint) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Method", "URL", "Rules", "Schema"})
	table.SetAutoWrapText(false)
	for _, ep := range eps {
		table.Append([]string{ep.ID, displayName(ep), ep.Method, ep.URL, strconv.Itoa(len(ep.ValidationRules)), schemaLabel(ep.ResponseSchema)})
	}
	table.Render()
}

func schemaLabel(slot types.SchemaSlot) string {
	if s, ok := slot.Get(); ok {
		return string(s.Source)
	}
	return slot.State.String()
}

func displayName(ep types.Endpoint) string {
	if ep.Name != "" {
		return ep.Name
	}
	return ep.Method + " " + ep.URL
}

package trace

import (
	"io"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary totals a set of results: mean utilization across traces and throughput across all operations
type Summary struct {
	Traces       int
	Ops          int
	Utilization  float64
	OpsPerSecond float64
}

// Summarize totals results
func Summarize(results []Result) Summary {
	var summary Summary
	var seconds float64

	for _, result := range results {
		summary.Traces++
		summary.Ops += result.Ops
		summary.Utilization += result.Utilization()
		seconds += result.Elapsed.Seconds()
	}

	if summary.Traces > 0 {
		summary.Utilization /= float64(summary.Traces)
	}
	if seconds > 0 {
		summary.OpsPerSecond = float64(summary.Ops) / seconds
	}

	return summary
}

// WriteReport writes a table with one row per result followed by a total row
func WriteReport(w io.Writer, results []Result) error {
	printer := message.NewPrinter(language.English)

	_, err := printer.Fprintf(w, "%-24s %10s %12s %12s %8s %14s\n", "trace", "ops", "peak", "heap", "util", "ops/sec")
	if err != nil {
		return err
	}

	for _, result := range results {
		_, err = printer.Fprintf(w, "%-24s %10d %12d %12d %7.1f%% %14.0f\n",
			result.Name, result.Ops, result.PeakPayload, result.HeapSize,
			result.Utilization()*100, result.OpsPerSecond())
		if err != nil {
			return err
		}
	}

	summary := Summarize(results)
	_, err = printer.Fprintf(w, "%-24s %10d %12s %12s %7.1f%% %14.0f\n",
		"total", summary.Ops, "", "", summary.Utilization*100, summary.OpsPerSecond)
	return err
}

// WriteJSONReport writes results and their summary as a JSON object
func WriteJSONReport(writer *jwriter.Writer, results []Result) {
	obj := writer.Object()
	defer obj.End()

	traces := obj.Name("Traces").Array()
	for _, result := range results {
		traceObj := traces.Object()
		traceObj.Name("Name").String(result.Name)
		traceObj.Name("Ops").Int(result.Ops)
		traceObj.Name("PeakPayload").Int(result.PeakPayload)
		traceObj.Name("HeapSize").Int(result.HeapSize)
		traceObj.Name("Utilization").Float64(result.Utilization())
		traceObj.Name("OpsPerSecond").Float64(result.OpsPerSecond())
		traceObj.End()
	}
	traces.End()

	summary := Summarize(results)
	summaryObj := obj.Name("Summary").Object()
	summaryObj.Name("Traces").Int(summary.Traces)
	summaryObj.Name("Ops").Int(summary.Ops)
	summaryObj.Name("Utilization").Float64(summary.Utilization)
	summaryObj.Name("OpsPerSecond").Float64(summary.OpsPerSecond)
	summaryObj.End()
}

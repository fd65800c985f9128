package analytics

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML page with an hourly entries bar chart and an
// average/peak occupancy line chart.
func RenderChart(w io.Writer, title string, buckets []Bucket) error {
	hours := make([]string, len(buckets))
	entries := make([]opts.BarData, len(buckets))
	avgOcc := make([]opts.LineData, len(buckets))
	peakOcc := make([]opts.LineData, len(buckets))
	capHits := make([]opts.BarData, len(buckets))

	for i, b := range buckets {
		hours[i] = b.Start.Format("Jan 2 15:04")
		entries[i] = opts.BarData{Value: b.Entries}
		capHits[i] = opts.BarData{Value: b.CapacityHits}
		avgOcc[i] = opts.LineData{Value: fmt.Sprintf("%.2f", b.AverageOccupancy)}
		peakOcc[i] = opts.LineData{Value: b.PeakOccupancy}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Entries per hour", Subtitle: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(hours).
		AddSeries("entries", entries).
		AddSeries("capacity hits", capHits)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy per hour"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "people"}),
	)
	line.SetXAxis(hours).
		AddSeries("average", avgOcc).
		AddSeries("peak", peakOcc)

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(bar, line)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

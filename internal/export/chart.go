package export

import (
	"errors"
	"io"
	"math"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"market-anomaly-alerts/internal/anomaly"
)

// ChartOptions tune the rendered PNG.
type ChartOptions struct {
	Title     string
	Asset     string
	Width     int
	Height    int
	MaxPoints int
}

var ruleColors = map[anomaly.Rule]drawing.Color{
	anomaly.RulePriceSpike:  drawing.ColorRed,
	anomaly.RuleVolumeSpike: drawing.ColorBlue,
}

// WriteChartPNG renders the price line with alert markers overlaid.
func WriteChartPNG(path string, opts ChartOptions, series []anomaly.EnrichedSample, alerts []anomaly.Alert) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := RenderChart(file, opts, series, alerts); err != nil {
		return err
	}
	return file.Close()
}

// RenderChart writes the PNG chart to w.
func RenderChart(w io.Writer, opts ChartOptions, series []anomaly.EnrichedSample, alerts []anomaly.Alert) error {
	if len(series) < 2 {
		return errors.New("chart needs at least two samples")
	}
	if opts.Width <= 0 {
		opts.Width = 1400
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}

	points := downsampleSeries(series, opts.MaxPoints)
	x := make([]time.Time, len(points))
	price := make([]float64, len(points))
	for i, s := range points {
		x[i] = s.Timestamp
		price[i] = s.Price.InexactFloat64()
	}

	priceName := "Price"
	if opts.Asset != "" {
		priceName = opts.Asset + " Price"
	}

	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			Name:           "Time",
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price (USD)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    priceName,
				XValues: x,
				YValues: price,
				Style: chart.Style{
					StrokeColor: drawing.ColorBlack,
					StrokeWidth: 1.5,
				},
			},
		},
	}

	for _, rule := range []anomaly.Rule{anomaly.RulePriceSpike, anomaly.RuleVolumeSpike} {
		markers := markerSeries(rule, alerts)
		if markers == nil {
			continue
		}
		graph.Series = append(graph.Series, *markers)
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// markerSeries draws one dot per alert of rule at the alert price.
func markerSeries(rule anomaly.Rule, alerts []anomaly.Alert) *chart.TimeSeries {
	var x []time.Time
	var y []float64
	for _, a := range alerts {
		if a.Rule != rule {
			continue
		}
		x = append(x, a.Timestamp)
		y = append(y, a.Price.InexactFloat64())
	}
	if len(x) == 0 {
		return nil
	}

	color := ruleColors[rule]
	return &chart.TimeSeries{
		Name:    rule.String(),
		XValues: x,
		YValues: y,
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    4,
			DotColor:    color.WithAlpha(200),
		},
	}
}

func downsampleSeries(series []anomaly.EnrichedSample, max int) []anomaly.EnrichedSample {
	if max <= 1 || len(series) <= max {
		return series
	}

	result := make([]anomaly.EnrichedSample, 0, max)
	step := float64(len(series)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(series) {
			idx = len(series) - 1
		}
		result = append(result, series[idx])
	}
	return result
}

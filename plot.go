package forecaster

import (
	"io"
	"math"
	"time"

	"github.com/carbonwise/go-forecaster/timedataset"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// missing is how echarts marks a gap in a line series.
const missing = "-"

func axisLabels(t []time.Time) []string {
	labels := make([]string, len(t))
	for i, p := range t {
		labels[i] = p.Format("2006-01")
	}
	return labels
}

// LineTSeries generates an echart multi-line chart over monthly periods. Each slice in y must have
// the same length as t; NaN values are drawn as gaps.
func LineTSeries(title string, seriesName []string, t []time.Time, y [][]float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(
			opts.Title{
				Title: title,
			},
		),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
	)

	line = line.SetXAxis(axisLabels(t))
	for i, series := range seriesName {
		data := make([]opts.LineData, len(y[i]))
		for j, v := range y[i] {
			if math.IsNaN(v) {
				data[j] = opts.LineData{Value: missing}
				continue
			}
			data[j] = opts.LineData{Value: v}
		}
		line = line.AddSeries(series, data)
	}
	return line
}

// LineForecast charts the observed history followed by the forecast months. The forecast line
// starts at the last observed value so the two connect.
func LineForecast(history *timedataset.TimeDataset, fc *Forecast) *charts.Line {
	n, h := history.Len(), len(fc.Predictions)
	t := make([]time.Time, 0, n+h)
	t = append(t, history.T...)

	actual := make([]float64, n+h)
	predicted := make([]float64, n+h)
	for i := range actual {
		actual[i] = math.NaN()
		predicted[i] = math.NaN()
	}
	copy(actual, history.Y)
	if n > 0 {
		predicted[n-1] = history.Y[n-1]
	}
	for i, p := range fc.Predictions {
		t = append(t, p.Date)
		predicted[n+i] = p.PredictedUsage
	}

	title := string(fc.Resource) + " " + fc.Entity + " " + string(fc.Kind)
	return LineTSeries(title, []string{"Actual", "Forecast"}, t, [][]float64{actual, predicted})
}

// PlotForecast renders an html page with the history and forecast chart to w.
func PlotForecast(w io.Writer, history *timedataset.TimeDataset, fc *Forecast) error {
	page := components.NewPage()
	page.AddCharts(LineForecast(history, fc))
	return page.Render(w)
}

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/canbridge/internal/httputil"
)

// echartsAssetsPrefix is where rendered pages fetch the ECharts
// runtime. Charts are a debug surface, so the public asset host the
// library defaults to is fine.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// signalChartHandler renders a quick line chart (HTML) of recent
// journal values for one destination path using go-echarts. This is a
// debugging-only endpoint to eyeball a signal without export tooling.
// Query params:
//   - path (required) destination path to plot
//   - limit (optional; default 200, max 5000) number of recent values
func (s *Server) signalChartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		httputil.BadRequest(w, "missing 'path' parameter")
		return
	}
	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	events, err := s.journal.RecentSignals(path, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query journal: %v", err))
		return
	}
	if len(events) == 0 {
		httputil.NotFound(w, fmt.Sprintf("no recorded values for %s", path))
		return
	}

	// RecentSignals is newest-first; plot oldest to newest.
	xs := make([]string, len(events))
	ys := make([]opts.LineData, len(events))
	for i, ev := range events {
		j := len(events) - 1 - i
		xs[j] = ev.Time.Format("15:04:05.000")
		ys[j] = opts.LineData{Value: ev.Value}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Signal history", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: path, Subtitle: fmt.Sprintf("%d most recent values, oldest %s", len(events), events[len(events)-1].Time.Format("2006-01-02 15:04:05"))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
	)
	line.SetXAxis(xs).
		AddSeries(path, ys, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// Command bus-report builds an offline traffic report from a .pcap
// capture or a signal journal: per-identifier frame counts, inter-frame
// gap statistics, and decoded time series. Output is a self-contained
// HTML page plus an optional PNG of the gap distribution.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/canbridge/internal/convert"
	"github.com/banshee-data/canbridge/internal/journal"
	"github.com/banshee-data/canbridge/internal/replay"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

var (
	capturePath = flag.String("capture", "", "pcap capture to report on")
	dbPath      = flag.String("db", "", "signal journal to report on (alternative to -capture)")
	mapping     = flag.String("mapping", "", "mapping config used to decode capture frames")
	output      = flag.String("o", "bus-report.html", "output HTML path")
	gapPNG      = flag.String("gap-png", "", "also write a PNG histogram of inter-frame gaps")
	seriesLimit = flag.Int("series-limit", 2000, "max points per decoded series")
)

// series is one decoded destination path over time.
type series struct {
	path   string
	times  []time.Time
	values []float64
}

func main() {
	flag.Parse()

	if (*capturePath == "") == (*dbPath == "") {
		log.Fatal("exactly one of -capture or -db is required")
	}

	var (
		counts map[uint32]int
		gaps   []float64 // milliseconds between consecutive frames
		decode []series
		source string
		err    error
	)
	if *capturePath != "" {
		source = *capturePath
		counts, gaps, decode, err = reportCapture(*capturePath, *mapping)
	} else {
		source = *dbPath
		decode, err = reportJournal(*dbPath)
	}
	if err != nil {
		log.Fatalf("failed to read %s: %v", source, err)
	}

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)

	if len(counts) > 0 {
		page.AddCharts(countChart(counts))
	}
	if len(gaps) > 1 {
		logGapStats(gaps)
		page.AddCharts(gapChart(gaps))
	}
	for _, s := range decode {
		page.AddCharts(seriesChart(s))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		log.Fatalf("render error: %v", err)
	}
	if err := os.WriteFile(*output, buf.Bytes(), 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%d series)", *output, len(decode))

	if *gapPNG != "" && len(gaps) > 1 {
		if err := saveGapHistogram(gaps, *gapPNG); err != nil {
			log.Fatalf("failed to write %s: %v", *gapPNG, err)
		}
		log.Printf("✓ Created: %s", *gapPNG)
	}
}

// reportCapture walks a pcap once, counting frames per identifier and
// collecting inter-frame gaps. With a mapping config the frames are
// additionally decoded into per-path time series.
func reportCapture(path, mappingPath string) (map[uint32]int, []float64, []series, error) {
	var engine *convert.Engine
	if mappingPath != "" {
		table := convert.NewTable()
		if err := table.LoadFile(mappingPath); err != nil {
			return nil, nil, nil, err
		}
		engine = convert.NewEngine(table)
	}

	records, err := replay.ReadAll(path)
	if err != nil {
		return nil, nil, nil, err
	}

	counts := make(map[uint32]int)
	var gaps []float64
	byPath := make(map[string]*series)
	var prev time.Time
	for i, rec := range records {
		counts[rec.Frame.ID]++
		if i > 0 {
			gaps = append(gaps, rec.Time.Sub(prev).Seconds()*1000)
		}
		prev = rec.Time

		if engine == nil {
			continue
		}
		for dest, v := range engine.Convert(rec.Frame) {
			s, ok := byPath[dest]
			if !ok {
				s = &series{path: dest}
				byPath[dest] = s
			}
			if len(s.values) < *seriesLimit {
				s.times = append(s.times, rec.Time)
				s.values = append(s.values, v.Numeric())
			}
		}
	}
	log.Printf("%s: %d frames, %d identifiers", path, len(records), len(counts))
	return counts, gaps, sortSeries(byPath), nil
}

// reportJournal pulls every recorded path's recent values plus its
// rollup out of a journal database.
func reportJournal(path string) ([]series, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	paths, err := j.Paths()
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*series, len(paths))
	for _, p := range paths {
		events, err := j.RecentSignals(p, *seriesLimit)
		if err != nil {
			return nil, err
		}
		roll, err := j.SignalRollup(p, time.Time{})
		if err == nil && roll.Count > 0 {
			log.Printf("%s: n=%d min=%.3f max=%.3f mean=%.3f", p, roll.Count, roll.Min, roll.Max, roll.Mean)
		}
		s := &series{path: p}
		// RecentSignals is newest-first; series plot oldest-first.
		for i := len(events) - 1; i >= 0; i-- {
			s.times = append(s.times, events[i].Time)
			s.values = append(s.values, events[i].Value)
		}
		byPath[p] = s
	}
	return sortSeries(byPath), nil
}

func sortSeries(byPath map[string]*series) []series {
	out := make([]series, 0, len(byPath))
	for _, s := range byPath {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

func logGapStats(gaps []float64) {
	sorted := append([]float64(nil), gaps...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	log.Printf("inter-frame gap: mean=%.3fms stddev=%.3fms p50=%.3fms p95=%.3fms p99=%.3fms",
		mean, std,
		stat.Quantile(0.50, stat.Empirical, sorted, nil),
		stat.Quantile(0.95, stat.Empirical, sorted, nil),
		stat.Quantile(0.99, stat.Empirical, sorted, nil))
}

func countChart(counts map[uint32]int) *charts.Bar {
	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	x := make([]string, len(ids))
	y := make([]opts.BarData, len(ids))
	for i, id := range ids {
		x[i] = fmt.Sprintf("0x%03X", id)
		y[i] = opts.BarData{Value: counts[id]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Frames per identifier"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("frames", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func gapChart(gaps []float64) *charts.Line {
	x := make([]string, len(gaps))
	y := make([]opts.LineData, len(gaps))
	for i, g := range gaps {
		x[i] = fmt.Sprintf("%d", i+1)
		y[i] = opts.LineData{Value: g}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Inter-frame gap (ms)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.SetXAxis(x).AddSeries("gap", y)
	return line
}

func seriesChart(s series) *charts.Line {
	x := make([]string, len(s.times))
	y := make([]opts.LineData, len(s.values))
	for i := range s.values {
		x[i] = s.times[i].Format("15:04:05.000")
		y[i] = opts.LineData{Value: s.values[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: s.path, Subtitle: fmt.Sprintf("%d values", len(s.values))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(x).
		AddSeries(s.path, y, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// saveGapHistogram writes the gap distribution as a PNG for reports
// that end up in documents rather than browsers.
func saveGapHistogram(gaps []float64, path string) error {
	p := plot.New()
	p.Title.Text = "Inter-frame gap distribution"
	p.X.Label.Text = "Gap (ms)"
	p.Y.Label.Text = "Frames"

	values := make(plotter.Values, len(gaps))
	copy(values, gaps)
	h, err := plotter.NewHist(values, 50)
	if err != nil {
		return err
	}
	p.Add(h)

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

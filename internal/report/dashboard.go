package report

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteDashboardHTML renders an interactive page for the session: a packet
// rate line chart per link interface and a scatter of every recorded
// position, one series per drone.
func (r *Report) WriteDashboardHTML(path string) error {
	page := components.NewPage()
	added := 0

	rates := r.Rates()
	ifaces := make([]string, 0, len(rates))
	for iface := range rates {
		ifaces = append(ifaces, iface)
	}
	sort.Strings(ifaces)
	for _, iface := range ifaces {
		if len(rates[iface]) == 0 {
			continue
		}
		page.AddCharts(r.rateChart(iface, rates[iface]))
		added++
	}

	if len(r.Samples) > 0 {
		page.AddCharts(r.positionChart())
		added++
	}

	if added == 0 {
		return fmt.Errorf("nothing recorded in session %s to render", r.Session.ID)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create dashboard file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render dashboard: %v", err)
	}

	return nil
}

// rateChart plots sent/received packet rates over elapsed time for one
// interface.
func (r *Report) rateChart(iface string, points []RatePoint) *charts.Line {
	x := make([]string, 0, len(points))
	sent := make([]opts.LineData, 0, len(points))
	recv := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, fmt.Sprintf("%.0fs", p.T.Sub(r.Session.StartedAt).Seconds()))
		sent = append(sent, opts.LineData{Value: p.SentPPS})
		recv = append(recv, opts.LineData{Value: p.RecvPPS})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Flight report", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Packet rates: %s", iface), Subtitle: fmt.Sprintf("session=%.8s points=%d", r.Session.ID, len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("sent pps", sent).
		AddSeries("received pps", recv)

	return line
}

// positionChart scatters every recorded position, one series per drone so
// the legend toggles them individually.
func (r *Report) positionChart() *charts.Scatter {
	maxAbs := 0.0
	for _, s := range r.Samples {
		if math.Abs(s.X) > maxAbs {
			maxAbs = math.Abs(s.X)
		}
		if math.Abs(s.Y) > maxAbs {
			maxAbs = math.Abs(s.Y)
		}
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Flight report", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Recorded positions", Subtitle: fmt.Sprintf("session=%.8s samples=%d", r.Session.ID, len(r.Samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	drones := r.Drones()
	colors := hexPalette(len(drones))
	for i, id := range drones {
		traj := r.Trajectory(id)
		pts := make([]opts.ScatterData, 0, len(traj))
		for _, s := range traj {
			pts = append(pts, opts.ScatterData{Value: []interface{}{s.X, s.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("drone %d", id), pts,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: colors[i]}),
		)
	}

	return scatter
}

// hexPalette is the line palette as CSS hex strings for echarts series.
func hexPalette(n int) []string {
	colors := make([]string, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = fmt.Sprintf("#%02x%02x%02x", r, g, b)
	}
	return colors
}

package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteTrajectoryPNG renders the XY flight path of every drone heard in the
// session as one square plot, a line per drone.
func (r *Report) WriteTrajectoryPNG(path string) error {
	if len(r.Samples) == 0 {
		return fmt.Errorf("no telemetry samples in session %s", r.Session.ID)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Flight paths - session %.8s", r.Session.ID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	drones := r.Drones()
	colors := palette(len(drones))

	for i, id := range drones {
		traj := r.Trajectory(id)
		pts := make(plotter.XYs, 0, len(traj))
		for _, s := range traj {
			pts = append(pts, plotter.XY{X: s.X, Y: s.Y})
		}
		if len(pts) == 0 {
			continue
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("drone %d", id), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save trajectory plot: %w", err)
	}

	return nil
}

// WriteSeparationPNG renders the minimum pairwise distance across the swarm
// over the session. Needs at least two drones' telemetry.
func (r *Report) WriteSeparationPNG(path string) error {
	sep := r.MinSeparation()
	if len(sep) == 0 {
		return fmt.Errorf("need telemetry from at least two drones for a separation plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Minimum separation - session %.8s", r.Session.ID)
	p.X.Label.Text = "Elapsed (s)"
	p.Y.Label.Text = "Separation (m)"

	pts := make(plotter.XYs, 0, len(sep))
	for _, sp := range sep {
		pts = append(pts, plotter.XY{
			X: sp.T.Sub(r.Session.StartedAt).Seconds(),
			Y: sp.Dist,
		})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 255, G: 82, B: 82, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save separation plot: %w", err)
	}

	return nil
}

// palette creates a set of distinct colors, one per drone line.
func palette(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

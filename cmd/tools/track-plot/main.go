// Package main provides a trajectory plotting tool for recorded tracks.
// It reads per-frame observations from the event store and renders the
// vertical centre of each track over time as a PNG, with fall-signal
// frames marked.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fallwatch/internal/db"
)

var (
	dbFile  = flag.String("db", "fallwatch.db", "SQLite event store path")
	camera  = flag.String("camera", "", "Camera identifier (required)")
	trackID = flag.Int64("track", 0, "Track identity to plot (0 plots every track)")
	limit   = flag.Int("limit", 2000, "Maximum observations per track")
	outFile = flag.String("out", "track-plot.png", "Output PNG path")
)

// palette holds the line colours, cycled when a camera has more tracks.
// Red is reserved for the fall markers.
var palette = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
	color.RGBA{R: 140, G: 86, B: 75, A: 255},
	color.RGBA{R: 227, G: 119, B: 194, A: 255},
	color.RGBA{R: 127, G: 127, B: 127, A: 255},
	color.RGBA{R: 23, G: 190, B: 207, A: 255},
}

func main() {
	flag.Parse()

	if *camera == "" {
		log.Fatal("-camera is required")
	}

	database, err := db.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	ids := []int64{*trackID}
	if *trackID == 0 {
		ids, err = database.CameraTrackIDs(*camera)
		if err != nil {
			log.Fatalf("Failed to list tracks: %v", err)
		}
	}
	if len(ids) == 0 {
		log.Fatalf("No observations recorded for camera %q", *camera)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track trajectories for %s", *camera)
	p.X.Label.Text = "Frame"
	// Image rows grow downward, so a fall shows as a rising line.
	p.Y.Label.Text = "Vertical centre (px, image coordinates)"

	var falls plotter.XYs
	plotted := 0
	for i, id := range ids {
		obs, err := database.GetTrackObservations(*camera, id, *limit)
		if err != nil {
			log.Fatalf("Failed to load observations for track %d: %v", id, err)
		}
		if len(obs) == 0 {
			continue
		}
		sort.Slice(obs, func(a, b int) bool {
			return obs[a].FrameIndex < obs[b].FrameIndex
		})

		pts := make(plotter.XYs, 0, len(obs))
		for _, o := range obs {
			centerY := o.BoxY + o.BoxH/2
			pts = append(pts, plotter.XY{X: float64(o.FrameIndex), Y: centerY})
			if o.FallSignal {
				falls = append(falls, plotter.XY{X: float64(o.FrameIndex), Y: centerY})
			}
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			log.Fatalf("Failed to build line for track %d: %v", id, err)
		}
		line.Color = palette[i%len(palette)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("track %d", id), line)
		plotted++
	}

	if plotted == 0 {
		log.Fatalf("No observations recorded for camera %q", *camera)
	}

	if len(falls) > 0 {
		scatter, err := plotter.NewScatter(falls)
		if err != nil {
			log.Fatalf("Failed to build fall markers: %v", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(2)
		p.Add(scatter)
		p.Legend.Add("fall signal", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, *outFile); err != nil {
		log.Fatalf("Failed to save plot: %v", err)
	}
	log.Printf("Wrote %d track(s) to %s", plotted, *outFile)
}

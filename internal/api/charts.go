package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fallwatch/internal/httputil"
)

// handleFallsChart renders a bar chart (HTML) of fall events per hour using
// go-echarts. This is a debugging-only endpoint (no auth) to eyeball fall
// frequency without a frontend.
// Query params:
//   - camera (optional; defaults to all cameras)
//   - hours (optional; default 24, max 720) window ending now
func (s *Server) handleFallsChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.database == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	camera := r.URL.Query().Get("camera")

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 1 && parsed <= 720 {
			hours = parsed
		}
	}
	sinceNanos := time.Now().Add(-time.Duration(hours) * time.Hour).UnixNano()

	counts, err := s.database.FallCountsByHour(camera, sinceNanos)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load fall counts: %v", err))
		return
	}

	byHour := make(map[string]int64, len(counts))
	for _, c := range counts {
		byHour[c.Hour] = c.Count
	}

	// Emit every hour in the window so quiet hours show as zero bars
	// instead of vanishing from the axis.
	start := time.Unix(0, sinceNanos).UTC().Truncate(time.Hour)
	end := time.Now().UTC().Truncate(time.Hour)
	x := make([]string, 0, hours+1)
	y := make([]opts.BarData, 0, hours+1)
	var total int64
	for t := start; !t.After(end); t = t.Add(time.Hour) {
		label := t.Format("2006-01-02 15:04")
		x = append(x, label)
		y = append(y, opts.BarData{Value: byHour[label]})
		total += byHour[label]
	}

	cameraLabel := camera
	if cameraLabel == "" {
		cameraLabel = "all"
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Falls per Hour", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Falls per Hour", Subtitle: fmt.Sprintf("camera=%s window=%dh events=%d", cameraLabel, hours, total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Hour (UTC)", AxisLabel: &opts.AxisLabel{Rotate: 45}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Falls"}),
	)
	bar.SetXAxis(x).
		AddSeries("falls", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

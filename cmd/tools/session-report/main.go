// Command session-report renders an HTML chart of one capture session's
// track observations from the SQLite capture store.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cantrack/internal/capture"
	"github.com/banshee-data/cantrack/internal/units"
)

var (
	dbFile     = flag.String("db", "capture_data.db", "SQLite capture store path")
	sessionID  = flag.String("session", "", "Session id to report on (default: most recent)")
	output     = flag.String("output", "session_report.html", "Output HTML path")
	speedUnits = flag.String("units", units.MPS, "Speed units for the chart ("+units.ValidUnitsString()+")")
	list       = flag.Bool("list", false, "List recorded sessions and exit")
)

func main() {
	flag.Parse()

	store, err := capture.NewStore(*dbFile)
	if err != nil {
		log.Fatalf("failed to open capture store: %v", err)
	}
	defer store.Close()

	sessions, err := store.Sessions()
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		log.Fatal("no sessions recorded")
	}

	if *list {
		for _, s := range sessions {
			fmt.Printf("%s  %s  (%s)\n", s.SessionID, s.Name, s.CreatedUTC.Format("2006-01-02 15:04:05"))
		}
		return
	}

	id := *sessionID
	if id == "" {
		id = sessions[0].SessionID
	}

	summary, err := store.SessionSummary(id)
	if err != nil {
		log.Fatalf("failed to summarize session: %v", err)
	}
	obs, err := store.Observations(id)
	if err != nil {
		log.Fatalf("failed to load observations: %v", err)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Session %s", id),
			Subtitle: fmt.Sprintf("%d observations, %d tracks, mean |v| %.1f %s",
				summary.Observations, summary.DistinctTracks,
				units.ConvertSpeed(summary.MeanAbsSpeed, *speedUnits), *speedUnits),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "|rel speed| (" + *speedUnits + ")"}),
	)

	labels := make([]string, 0, len(obs))
	speeds := make([]opts.LineData, 0, len(obs))
	dists := make([]opts.LineData, 0, len(obs))
	for _, o := range obs {
		labels = append(labels, o.Timestamp.Format("15:04:05.000"))
		speeds = append(speeds, opts.LineData{Value: units.ConvertSpeed(math.Abs(o.RelSpeed), *speedUnits)})
		dists = append(dists, opts.LineData{Value: o.LongDist})
	}

	line.SetXAxis(labels).
		AddSeries("abs rel speed", speeds).
		AddSeries("long dist (m)", dists)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s", *output)
}

// Command cantrack drives a factory Toyota radar over CAN, records track
// snapshots to a capture session, and serves the live state over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/banshee-data/cantrack/internal/api"
	"github.com/banshee-data/cantrack/internal/capture"
	"github.com/banshee-data/cantrack/internal/monitoring"
	"github.com/banshee-data/cantrack/internal/radar"
	"github.com/banshee-data/cantrack/internal/units"
	"github.com/banshee-data/cantrack/internal/version"
)

var (
	radarChannel = flag.String("radar-channel", "can1", "Radar CAN channel")
	carChannel   = flag.String("car-channel", "can0", "Car CAN channel")
	iface        = flag.String("interface", "socketcan", "Bus transport for both channels (socketcan, slcan, mock)")
	radarIface   = flag.String("radar-interface", "", "Override transport for the radar channel")
	carIface     = flag.String("car-interface", "", "Override transport for the car channel")
	bitrate      = flag.Int("bitrate", 500000, "CAN bitrate")
	radarDBC     = flag.String("radar-dbc", "opendbc/toyota_prius_2017_adas.dbc", "DBC used to decode radar tracks")
	controlDBC   = flag.String("control-dbc", "opendbc/toyota_prius_2017_pt_generated.dbc", "DBC containing ACC/DSU keep-alive messages")

	noSetup    = flag.Bool("no-setup", false, "Skip bringing interfaces up with ip link")
	useSudo    = flag.Bool("use-sudo", false, "Run interface setup commands with sudo")
	setupExtra = flag.String("setup-extra", "", "Comma-separated tokens to prefix ip link commands")

	noKeepAlive   = flag.Bool("no-keepalive", false, "Disable the internal keep-alive loop")
	keepAliveRate = flag.Float64("keepalive-rate", 100.0, "Keep-alive loop frequency in Hz")
	trackTimeout  = flag.Duration("track-timeout", 500*time.Millisecond, "Track cache time-to-live")
	pollTimeout   = flag.Duration("poll-timeout", 100*time.Millisecond, "Radar bus receive poll timeout")

	outputDir  = flag.String("output-dir", "captures", "Directory where capture sessions are stored")
	session    = flag.String("session", "", "Capture session name (default: timestamp)")
	overwrite  = flag.Bool("overwrite", false, "Allow overwriting an existing session directory")
	noCapture  = flag.Bool("no-capture", false, "Disable capture recording")
	dbFile     = flag.String("db", "capture_data.db", "SQLite capture store path")
	snapshotHz = flag.Float64("snapshot-rate", 30.0, "Track snapshot rate in Hz")
	duration   = flag.Duration("duration", 0, "Optional capture duration; zero runs until signalled")

	listen     = flag.String("listen", ":8080", "HTTP listen address")
	speedUnits = flag.String("units", units.MPS, "Speed units for the API ("+units.ValidUnitsString()+")")
	logFile    = flag.String("log-file", "", "Rotated log file path (default: stderr)")
	devMode    = flag.Bool("dev", false, "Run against in-memory mock buses")
)

func main() {
	flag.Parse()

	if *logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		})
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q: expected one of %s", *speedUnits, units.ValidUnitsString())
	}

	cfg := radar.Config{
		RadarChannel:     *radarChannel,
		CarChannel:       *carChannel,
		Interface:        *iface,
		RadarInterface:   *radarIface,
		CarInterface:     *carIface,
		Bitrate:          *bitrate,
		RadarDBC:         *radarDBC,
		ControlDBC:       *controlDBC,
		KeepAliveRate:    *keepAliveRate,
		KeepAliveEnabled: !*noKeepAlive,
		TrackTimeout:     *trackTimeout,
		PollTimeout:      *pollTimeout,
		AutoSetup:        !*noSetup,
		UseSudo:          *useSudo,
	}
	if *setupExtra != "" {
		cfg.SetupExtraArgs = strings.Split(*setupExtra, ",")
	}
	if *devMode {
		cfg.Interface = "mock"
		cfg.AutoSetup = false
	}

	log.Printf("cantrack %s (%s) starting: radar=%s car=%s", version.Version, version.GitSHA, cfg.RadarChannel, cfg.CarChannel)

	metrics := monitoring.NewCollector()
	driver, err := radar.NewDriver(cfg, radar.WithMetrics(metrics))
	if err != nil {
		log.Fatalf("invalid radar config: %v", err)
	}

	var store *capture.Store
	if *dbFile != "" {
		store, err = capture.NewStore(*dbFile)
		if err != nil {
			log.Fatalf("failed to open capture store: %v", err)
		}
		defer store.Close()
	}

	var sess *capture.Session
	if !*noCapture {
		sess, err = capture.NewSession(capture.Options{
			OutputDir: *outputDir,
			Name:      *session,
			Overwrite: *overwrite,
		}, capture.Meta{
			RadarChannel: cfg.RadarChannel,
			CarChannel:   cfg.CarChannel,
			TrackTimeout: cfg.TrackTimeout,
			Duration:     *duration,
		})
		if err != nil {
			log.Fatalf("failed to create capture session: %v", err)
		}
		log.Printf("recording capture session to %s", sess.Dir())
	}

	// Track updates flow into the store through a buffered channel so the
	// listener goroutine never blocks on SQLite.
	var recorded chan radar.Track
	if store != nil && sess != nil {
		recorded = make(chan radar.Track, 1024)
		driver.RegisterTrackCallback(func(t radar.Track) {
			select {
			case recorded <- t:
			default: // drop rather than stall ingestion
			}
		})
		if err := store.RecordSession(sess.Meta()); err != nil {
			log.Fatalf("failed to record session: %v", err)
		}
	}

	if err := driver.Start(); err != nil {
		log.Fatalf("failed to start radar driver: %v", err)
	}
	defer driver.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var wg sync.WaitGroup

	if recorded != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case t := <-recorded:
					if err := store.RecordTrack(sess.Meta().SessionID, t); err != nil {
						log.Printf("failed to record track: %v", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if sess != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if err := sess.Close(); err != nil {
					log.Printf("failed to finalize session: %v", err)
				}
			}()

			period := time.Duration(float64(time.Second) / *snapshotHz)
			ticker := time.NewTicker(period)
			defer ticker.Stop()

			frameIndex := 0
			for {
				select {
				case now := <-ticker.C:
					if err := sess.WriteSnapshot(now, frameIndex, driver.Tracks()); err != nil {
						log.Printf("failed to write snapshot: %v", err)
					}
					frameIndex++
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(driver, store, metrics, *speedUnits).ServeMux()
		server := &http.Server{Addr: *listen, Handler: mux}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	if ctx.Err() == context.DeadlineExceeded {
		log.Printf("capture duration reached; stopping")
	}
	wg.Wait()

	driver.Stop()
	log.Printf("graceful shutdown complete")
}

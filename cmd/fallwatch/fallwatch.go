package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fallwatch/internal/api"
	"github.com/banshee-data/fallwatch/internal/config"
	"github.com/banshee-data/fallwatch/internal/db"
	"github.com/banshee-data/fallwatch/internal/detect"
	"github.com/banshee-data/fallwatch/internal/fall"
	"github.com/banshee-data/fallwatch/internal/httputil"
	"github.com/banshee-data/fallwatch/internal/ingest"
	"github.com/banshee-data/fallwatch/internal/monitoring"
	"github.com/banshee-data/fallwatch/internal/session"
	"github.com/banshee-data/fallwatch/internal/track"
	"github.com/banshee-data/fallwatch/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbFile      = flag.String("db", "fallwatch.db", "SQLite event store path (empty disables persistence)")
	tuningFile  = flag.String("tuning", "", "Tuning config JSON (built-in defaults when empty)")
	sourceURL   = flag.String("source", "", "MJPEG camera stream URL (enables the ingest pipeline)")
	inferURL    = flag.String("infer", "", "Inference service URL for ingested frames")
	cameraID    = flag.String("camera", "cam0", "Camera identifier for ingested frames")
	demo        = flag.Bool("demo", false, "Ingest a synthetic stream with a scripted detector")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

const detectorTimeout = 10 * time.Second

// sessionConfig maps the loaded tuning onto the per-camera session settings.
func sessionConfig(tuning *config.TuningConfig) session.Config {
	return session.Config{
		Registry: track.RegistryConfig{
			MatchThreshold:   tuning.GetMatchThreshold(),
			RelaxedThreshold: tuning.GetRelaxedThreshold(),
			StrongAppearance: tuning.GetStrongAppearance(),
			ReIDMaxDistance:  tuning.GetReIDMaxDistance(),
			ActiveTTL:        tuning.GetActiveTTL(),
			HistoryTTL:       tuning.GetHistoryTTL(),
		},
		Fall: fall.Config{
			VelocityThreshold:    tuning.GetVelocityThreshold(),
			AngleChangeThreshold: tuning.GetAngleChangeThreshold(),
			AspectRatioThreshold: tuning.GetAspectRatioThreshold(),
			ConfidenceThreshold:  tuning.GetConfidenceThreshold(),
			HistorySize:          tuning.GetHistorySize(),
			MinBoxSize:           tuning.GetMinBoxSize(),
			StaleAfter:           tuning.GetStaleAfterFrames(),
		},
		ReuseWindow:      tuning.GetReuseWindow(),
		MinDetectionArea: tuning.GetMinDetectionArea(),
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (%s) built %s\n", version.Service, version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if *demo && *sourceURL != "" {
		log.Fatal("-demo and -source are mutually exclusive")
	}
	if *sourceURL != "" && *inferURL == "" {
		log.Fatal("-infer is required with -source")
	}

	monitoring.SetDebug(*verbose)

	tuning := config.DefaultTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *tuningFile)
	}

	var database *db.DB
	var events session.EventSink
	if *dbFile != "" {
		var err error
		database, err = db.OpenAndMigrate(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		events = db.NewRecorder(database)
	} else {
		log.Print("Event persistence disabled")
	}

	sessions := session.NewManager(sessionConfig(tuning), nil)

	runPipeline := *demo || *sourceURL != ""

	var detector detect.Detector
	if *demo {
		detector = detect.SyntheticDetector{FallEvery: 120}
	} else if *inferURL != "" {
		detector = detect.NewHTTPDetector(*inferURL, httputil.NewStandardClient(detectorTimeout))
	}

	svc := session.NewService(sessions, detector, events, nil)

	var stats *ingest.Stats
	if runPipeline {
		stats = ingest.NewStats()
	}

	// Create a wait group for the HTTP server and pipeline routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if runPipeline {
		fps := int(tuning.GetTargetFPS())

		var source ingest.FrameSource
		if *demo {
			source = ingest.NewSyntheticSource(600, time.Second/time.Duration(fps))
			log.Printf("Demo mode: synthetic stream for camera %s", *cameraID)
		} else {
			source = ingest.NewMJPEGSource(*sourceURL, nil)
			log.Printf("Ingesting %s for camera %s", *sourceURL, *cameraID)
		}

		pipeline := ingest.NewPipeline(ingest.PipelineConfig{
			CameraID:        *cameraID,
			TargetFPS:       fps,
			QueueSize:       tuning.GetQueueSize(),
			IdleSleep:       tuning.GetIdleSleep(),
			ReconnectDelays: tuning.GetReconnectDelays(),
			LogInterval:     tuning.GetLogInterval(),
			Source:          source,
			Analyzer: ingest.AnalyzerFunc(func(ctx context.Context, job ingest.FrameJob) error {
				_, err := svc.ProcessFrame(ctx, job.CameraID, job.Payload)
				return err
			}),
			Stats: stats,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pipeline.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("pipeline terminated: %v", err)
			}
			log.Print("pipeline routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(svc, database, stats, tuning).ServeMux()
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("%s %s listening on %s", version.Service, version.Version, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

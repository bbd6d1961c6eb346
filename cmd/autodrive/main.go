package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/autodrive/internal/arbiter"
	"github.com/banshee-data/autodrive/internal/config"
	"github.com/banshee-data/autodrive/internal/db"
	"github.com/banshee-data/autodrive/internal/drivers"
	"github.com/banshee-data/autodrive/internal/httputil"
	"github.com/banshee-data/autodrive/internal/lidar/l4perception"
	"github.com/banshee-data/autodrive/internal/lidar/l5tracks"
	"github.com/banshee-data/autodrive/internal/lidar/l6objects"
	"github.com/banshee-data/autodrive/internal/lidar/pipeline"
	"github.com/banshee-data/autodrive/internal/replay"
	"github.com/banshee-data/autodrive/internal/security"
	"github.com/banshee-data/autodrive/internal/timeutil"
	"github.com/banshee-data/autodrive/internal/version"
)

var (
	configFile      = flag.String("config", "", "Path to a tuning JSON file (default: built-in constants)")
	scansFile       = flag.String("scans", "", "Path to a JSON-lines scan log to replay (required)")
	dbFile          = flag.String("db", "", "Path to the SQLite tick recorder database (disabled when empty)")
	commandsOut     = flag.String("commands-out", "", "Write applied commands as JSON lines to this file (\"-\" for stdout)")
	metricsListen   = flag.String("metrics-listen", "", "HTTP listen address for Prometheus metrics (disabled when empty)")
	tickInterval    = flag.Duration("tick", 0, "Control cycle interval (default: tuning tick_interval)")
	classifierAddr  = flag.String("classifier-addr", "", "gRPC address of the object classifier (disabled when empty)")
	weightModelAddr = flag.String("weight-model-addr", "", "gRPC address of the weight model (disabled when empty)")
	debugLog        = flag.Bool("debug", false, "Write diagnostic and per-tick logs to stderr")
	versionFlag     = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}
	if *scansFile == "" {
		log.Fatal("[autodrive] -scans is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("[autodrive] %v", err)
	}
	log.Printf("[autodrive] Graceful shutdown complete")
}

func loadTuning() (*config.TuningConfig, error) {
	if *configFile == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(*configFile)
}

func configureLogging() {
	var diag, trace io.Writer
	if *debugLog {
		diag, trace = os.Stderr, os.Stderr
	}
	l5tracks.SetLogWriters(os.Stderr, diag, trace)
	drivers.SetLogWriters(os.Stderr, diag, trace)
	pipeline.SetLogWriters(os.Stderr, diag, trace)
}

func run(ctx context.Context) error {
	configureLogging()
	log.Printf("[autodrive] %s", version.String())
	if err := validateOutputs(); err != nil {
		return err
	}

	tuning, err := loadTuning()
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}

	scans, err := replay.OpenScanLog(*scansFile)
	if err != nil {
		return err
	}
	defer scans.Close()

	sink, closeSink, err := openSink()
	if err != nil {
		return err
	}
	defer closeSink()

	clock := timeutil.RealClock{}
	grid, err := l5tracks.NewAngularOccupancy(
		l5tracks.OccupancyConfigFromTuning(tuning),
		l5tracks.HeuristicWeigherFromTuning(tuning),
		clock,
	)
	if err != nil {
		return fmt.Errorf("create occupancy grid: %w", err)
	}

	da := arbiter.NewDrivingArbiter(nil)
	cruise, err := drivers.NewCruise(drivers.CruiseConfigFromTuning(tuning), da)
	if err != nil {
		return err
	}
	if !cruise.Engage() {
		return errors.New("cruise could not take the actuation channels")
	}
	watchdog, err := drivers.NewCollisionWatchdog(drivers.WatchdogConfigFromTuning(tuning), da, grid)
	if err != nil {
		return err
	}
	defer watchdog.Reset()

	cfg := pipeline.Config{
		Source:    scans,
		Vehicle:   scans,
		Sink:      sink,
		Clusterer: l4perception.NewContiguousClusterer(l4perception.ClusteringParamsFromTuning(tuning)),
		Grid:      grid,
		Arbiter:   da,
		Watchdog:  watchdog,
		Cruise:    cruise,
		Clock:     clock,
	}

	services := l6objects.ServiceConfigFromTuning(tuning)
	if *classifierAddr != "" {
		conn, err := dialService(*classifierAddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		cfg.Categorizer = l6objects.NewCategorizer(l6objects.NewGRPCClassifier(conn), grid, services)
		log.Printf("[autodrive] classifier at %s", *classifierAddr)
	}
	if *weightModelAddr != "" {
		conn, err := dialService(*weightModelAddr)
		if err != nil {
			return err
		}
		defer conn.Close()
		cfg.Rescorer = l6objects.NewRescorer(l6objects.NewGRPCWeightModel(conn), grid, clock, services)
		log.Printf("[autodrive] weight model at %s", *weightModelAddr)
	}

	if *dbFile != "" {
		store, err := db.Open(*dbFile)
		if err != nil {
			return err
		}
		defer store.Close()
		cfg.Recorder = store
		log.Printf("[autodrive] recording ticks to %s", *dbFile)
	}

	driver, err := pipeline.NewDriver(cfg)
	if err != nil {
		return err
	}

	if *metricsListen != "" {
		server := serveMetrics(*metricsListen, statusHandler(driver, watchdog, grid))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("[autodrive] metrics server shutdown error: %v", err)
			}
		}()
	}

	interval := *tickInterval
	if interval <= 0 {
		interval = tuning.GetTickInterval()
	}
	log.Printf("[autodrive] replaying %s every %v", *scansFile, interval)
	if err := driver.Run(ctx, interval); err != nil {
		return fmt.Errorf("after %d ticks: %w", driver.Ticks(), err)
	}

	last, _ := sink.Last()
	log.Printf("[autodrive] %d ticks, final strategy %s, last command %v",
		driver.Ticks(), watchdog.Strategy(), last)
	return nil
}

// validateOutputs rejects output paths outside the working directory and
// the temp directory.
func validateOutputs() error {
	for _, p := range []string{*dbFile, *commandsOut} {
		if p == "" || p == "-" {
			continue
		}
		if err := security.ValidateOutputPath(p); err != nil {
			return err
		}
	}
	return nil
}

func openSink() (*replay.LogSink, func(), error) {
	switch *commandsOut {
	case "":
		return replay.NewLogSink(nil), func() {}, nil
	case "-":
		return replay.NewLogSink(os.Stdout), func() {}, nil
	}
	f, err := os.Create(*commandsOut)
	if err != nil {
		return nil, nil, fmt.Errorf("create commands output: %w", err)
	}
	return replay.NewLogSink(f), func() {
		if err := f.Close(); err != nil {
			log.Printf("[autodrive] close %s: %v", *commandsOut, err)
		}
	}, nil
}

func dialService(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// runStatus is the body of /status.
type runStatus struct {
	Version   string `json:"version"`
	Ticks     int64  `json:"ticks"`
	Strategy  string `json:"strategy"`
	Occupants int    `json:"occupants"`
}

func statusHandler(d *pipeline.Driver, w *drivers.CollisionWatchdog, g *l5tracks.AngularOccupancy) http.HandlerFunc {
	return httputil.ReadOnly(func(rw http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(rw, http.StatusOK, runStatus{
			Version:   version.Version,
			Ticks:     d.Ticks(),
			Strategy:  w.Strategy().String(),
			Occupants: g.Len(),
		})
	})
}

func serveMetrics(addr string, status http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/status", status)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("[autodrive] serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[autodrive] metrics server error: %v", err)
		}
	}()
	return server
}

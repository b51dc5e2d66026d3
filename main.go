package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/biostream/api"
	"github.com/banshee-data/biostream/db"
	"github.com/banshee-data/biostream/internal/acquire"
	"github.com/banshee-data/biostream/internal/config"
	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/serialport"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	configPath = flag.String("config", "", "Path to acquisition config JSON (optional)")
	portPath   = flag.String("port", "", "Serial device path, overrides the config file")
	simulate   = flag.Bool("simulate", false, "Use the synthetic signal generator instead of hardware")
	dbFile     = flag.String("db", "sessions.db", "Path to the session log database")
	debug      = flag.Bool("debug", false, "Enable verbose per-iteration logging")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.EnableDebug(*debug)

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	port := cfg.GetPort()
	if *portPath != "" {
		port = *portPath
	}
	useSim := cfg.GetSimulate() || *simulate

	sessionDB, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open session database: %v", err)
	}
	defer sessionDB.Close()

	sink := acquire.NewBlockRing(cfg.GetSinkBlocks())
	loop, err := acquire.NewLoop(acquire.LoopConfig{
		Transport:      serialport.NewRealPort(),
		Sink:           sink,
		Recorder:       sessionDB,
		PortPath:       port,
		PortOptions:    cfg.PortOptions(),
		Format:         cfg.FrameFormat(),
		SampleRate:     cfg.GetSampleRate(),
		Simulate:       useSim,
		SimSeed:        cfg.GetSimSeed(),
		ReadChunkBytes: cfg.GetReadChunkBytes(),
	})
	if err != nil {
		log.Fatalf("Failed to build acquisition loop: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes
		sessionDB.AttachAdminRoutes(mux)

		// mount the API handlers, including the home page
		mux.Handle("/", api.NewServer(loop, sessionDB).ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	// Acquisition teardown goroutine: stop cleanly on signal so the final
	// session summary lands in the database.
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		loop.Stop()
		if err := loop.Disconnect(); err != nil {
			log.Printf("disconnect error: %v", err)
		}
		log.Printf("acquisition stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

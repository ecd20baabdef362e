package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hysonger/LatteAlbum/internal/cache"
	"github.com/hysonger/LatteAlbum/internal/catalog"
	"github.com/hysonger/LatteAlbum/internal/config"
	"github.com/hysonger/LatteAlbum/internal/fileservice"
	"github.com/hysonger/LatteAlbum/internal/processors"
	"github.com/hysonger/LatteAlbum/internal/scan"
	"github.com/hysonger/LatteAlbum/internal/scheduler"
	"github.com/hysonger/LatteAlbum/internal/server"
	"github.com/hysonger/LatteAlbum/internal/transcode"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (optional, uses defaults + env vars)")
	autoScan := flag.Bool("auto-scan", true, "Run a catalog scan immediately on startup")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Latte Album")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("photos base path: %s", cfg.Photos.BasePath)
	log.Printf("cache dir: %s", cfg.Cache.Dir)

	if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
		log.Fatalf("failed to create cache dir: %v", err)
	}

	db, err := catalog.New(cfg.DB.Path, cfg.DB.BatchCheckSize, cfg.DB.BatchWriteSize)
	if err != nil {
		log.Fatalf("failed to open catalog: %v", err)
	}
	defer db.Close()

	diskCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxCapacity, cfg.Cache.CacheTTL())
	if err != nil {
		log.Fatalf("failed to open thumbnail cache: %v", err)
	}

	registry := processors.NewRegistry(
		processors.NewStandardImageProcessor(),
		processors.NewHeifProcessor(),
		processors.NewVideoProcessor(cfg.Video.FFmpegPath, cfg.Video.ThumbnailOffset),
	)

	threads := cfg.Video.TranscodeThreads
	if threads <= 0 {
		threads = 4
	}
	pool := transcode.New(threads)

	state := scan.NewStateManager(cfg.WS.ProgressInterval)
	engine := scan.New(cfg.Photos.BasePath, cfg.Scan.Concurrency, cfg.DB.BatchWriteSize, registry, db, diskCache, state)

	sizes := fileservice.Sizes{
		Small:  cfg.Thumbnail.SmallSize,
		Medium: cfg.Thumbnail.MediumSize,
		Large:  cfg.Thumbnail.LargeSize,
	}
	files := fileservice.New(db, diskCache, registry, pool, sizes, cfg.Thumbnail.Quality)

	srv := server.New(cfg, db, files, engine, state)

	var sched *scheduler.Scheduler
	if cfg.Scan.Cron != "" {
		sched, err = scheduler.New(cfg.Scan.Cron, engine)
		if err != nil {
			log.Fatalf("failed to parse scan cron %q: %v", cfg.Scan.Cron, err)
		}
		sched.Start()
	}

	if *autoScan {
		go func() {
			log.Println("starting initial scan...")
			engine.Scan(context.Background())
		}()
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")
		engine.Cancel()
		if sched != nil {
			sched.Stop()
		}
		db.Close()
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

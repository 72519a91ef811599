package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/coldpaw/snatch/internal/alerts"
	"github.com/coldpaw/snatch/internal/blob"
	"github.com/coldpaw/snatch/internal/bot"
	"github.com/coldpaw/snatch/internal/config"
	"github.com/coldpaw/snatch/internal/progress"
	"github.com/coldpaw/snatch/internal/queue"
	"github.com/coldpaw/snatch/internal/server"
	"github.com/coldpaw/snatch/internal/services"
	"github.com/coldpaw/snatch/internal/store"
	"github.com/coldpaw/snatch/internal/util"
)

func main() {
	godotenv.Load()
	config.Load()

	if config.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	server.PrintBanner()
	util.CheckDependencies(config.YtdlpPath, config.FfprobePath)
	util.EnsureMediaDir()

	st, err := store.New(config.DataDir)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	b, err := bot.New(config.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	var uploader services.BlobUploader
	if config.BlobOverflow {
		up, err := blob.NewUploader(config.BlobSASURL, config.UploadTimeout)
		if err != nil {
			log.Fatalf("Invalid BLOB_CONTAINER_SAS_URL: %v", err)
		}
		uploader = up
	}

	tracker := progress.NewTracker(b)
	worker := services.NewWorker(st, b, tracker, uploader,
		config.MaxDuration, config.MaxSendSize, config.SendRetrySchedule)

	q, err := queue.New(st, worker.Process)
	if err != nil {
		log.Fatalf("Failed to load queue: %v", err)
	}

	b.Attach(st, q, tracker)
	b.Start()
	q.Start()

	util.StartCleanupInterval(worker.ShouldPreserve)

	srv := server.New(st, q)
	go func() {
		log.Printf("[Server] Admin API listening on :%s", config.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Server] %v", err)
		}
	}()

	alerts.ServerStarted()
	log.Println("Bot is running. Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	alerts.ServerStopping()
	b.Stop()
	srv.Close()
}

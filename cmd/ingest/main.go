package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kvoronov/transcript-qa/internal/bootstrap"
	"github.com/kvoronov/transcript-qa/internal/config"
	"github.com/kvoronov/transcript-qa/internal/observability/logging"
)

const serviceName = "transcript-qa-ingest"

func main() {
	var (
		file     = flag.String("file", "", "path to the transcript file (required)")
		title    = flag.String("title", "", "transcript title (defaults to the file name)")
		language = flag.String("language", "", "transcript language code")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *title == "" {
		*title = filepath.Base(*file)
	}

	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		WithRegistry: true,
		WithQueue:    true,
	})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("open file: %v", err)
	}
	defer f.Close()

	transcript, err := app.Ingestor.Upload(ctx, *title, *language, filepath.Base(*file), f)
	if err != nil {
		log.Fatalf("upload error: %v", err)
	}

	fmt.Printf("transcript %s uploaded, indexing queued\n", transcript.ID)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kvoronov/transcript-qa/internal/bootstrap"
	"github.com/kvoronov/transcript-qa/internal/config"
	"github.com/kvoronov/transcript-qa/internal/core/domain"
	"github.com/kvoronov/transcript-qa/internal/observability/logging"
	"github.com/kvoronov/transcript-qa/internal/observability/metrics"
)

const serviceName = "transcript-qa-ask"

func main() {
	var (
		question      = flag.String("q", "", "question to answer (required)")
		transcripts   = flag.String("transcripts", "", "comma-separated transcript IDs to search; empty searches all")
		topK          = flag.Int("top-k", 0, "number of chunks to use (default from config)")
		model         = flag.String("model", "", "LLM model override")
		temperature   = flag.Float64("temperature", 0.3, "LLM temperature")
		hybrid        = flag.Bool("hybrid", false, "fuse vector search with BM25")
		rerank        = flag.Bool("rerank", true, "rerank retrieved chunks")
		rerankerModel = flag.String("reranker-model", "", "reranker model override; \"llm\" forces the LLM strategy")
		expand        = flag.Bool("expand", true, "expand the query with paraphrases and a hypothetical answer")
		multiHop      = flag.Bool("multi-hop", false, "decompose the question into sub-queries")
		advancedGrade = flag.Bool("advanced-grade", false, "grade with LLM groundedness and completeness judgments")
		timeout       = flag.Duration("timeout", 3*time.Minute, "turn timeout")
		showSources   = flag.Bool("sources", true, "print source references")
	)
	flag.Parse()

	if *question == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	req := domain.RetrievalRequest{
		Question:          *question,
		TranscriptIDs:     splitIDs(*transcripts),
		TopK:              *topK,
		Model:             *model,
		Temperature:       *temperature,
		UseHybrid:         *hybrid,
		UseReranking:      *rerank,
		UseQueryExpansion: *expand,
		UseMultiHop:       *multiHop,
		UseAdvancedGrade:  *advancedGrade,
		RerankerModel:     *rerankerModel,
	}
	if req.TopK <= 0 {
		req.TopK = cfg.RAGTopK
	}
	if req.RerankerModel == "" {
		req.RerankerModel = cfg.RerankerModel
	}

	turnCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	// The registry is process-local and one-shot: nothing scrapes it
	// here. The same instruments back any long-running host of the
	// Answer path; the CLI's observable record of a turn is the log
	// line below.
	qa := metrics.NewQAMetrics(serviceName)
	start := time.Now()
	result, err := app.Answer.Answer(turnCtx, req)
	qa.ObserveTurn(serviceName, time.Since(start), err)
	if err != nil {
		log.Fatalf("answer error: %v", err)
	}
	qa.ObserveRetrieved(len(result.Retrieved))
	qa.ObserveQuality(result.Quality.OverallScore)
	logger.Info("qa turn finished", "duration_ms", time.Since(start).Milliseconds(), "retrieved", len(result.Retrieved))

	fmt.Println(result.Answer)
	fmt.Println()
	if *advancedGrade {
		fmt.Printf("quality: %.2f/5 (groundedness %.2f, completeness %.2f, relevance %.2f)\n",
			result.Quality.OverallScore, result.Quality.Groundedness,
			result.Quality.Completeness, result.Quality.Relevance)
	} else {
		fmt.Printf("quality: %.2f/5\n", result.Quality.OverallScore)
	}
	if *showSources && len(result.Sources) > 0 {
		fmt.Println("sources:")
		for i, src := range result.Sources {
			fmt.Printf("  [%d] transcript=%s chunk=%d score=%.4f\n", i+1, src.TranscriptID, src.ChunkIndex, src.Score)
		}
	}
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kvoronov/transcript-qa/internal/config"
	"github.com/kvoronov/transcript-qa/internal/core/ports"
	"github.com/kvoronov/transcript-qa/internal/core/usecase"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/chunking"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/embeddings"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/extractor"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/lexical"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/llm/evolution"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/queue/nats"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/repository/postgres"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/rerank/crossencoder"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/resilience"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/storage/localfs"
	"github.com/kvoronov/transcript-qa/internal/infrastructure/vector/qdrant"
)

// App wires the full dependency graph. Both binaries build the same
// graph; the worker additionally needs Postgres and NATS while the CLI
// only exercises the QA path.
type App struct {
	Config config.Config
	Log    *slog.Logger

	Queue    ports.MessageQueue
	Store    ports.TranscriptStore
	Ingestor *usecase.Ingestor
	Process  ports.TranscriptProcessor
	Answer   ports.QuestionAnswerer

	closeFn func()
}

// Options toggles the heavyweight dependencies. The CLI runs without
// Postgres and NATS.
type Options struct {
	WithRegistry bool
	WithQueue    bool
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, options Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	var closers []func()
	app := &App{Config: cfg, Log: log}

	if options.WithRegistry {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		repo := postgres.NewTranscriptRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.Store = repo
	}

	if options.WithQueue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             log,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers = append(closers, queue.Close)
		app.Queue = queue
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	remote := embeddings.NewRemoteClient(
		cfg.EvolutionBaseURL,
		cfg.EvolutionAPIKey,
		cfg.EmbeddingsModel,
		cfg.EmbeddingsDimension,
		embeddings.RemoteOptions{
			RequestsPerSecond: cfg.EmbeddingsRPS,
			Executor:          executor,
		},
	)
	embedder := embeddings.NewProvider(remote, embeddings.NewLocalEncoder(), log)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, log)
	lexicalIndex := lexical.NewIndex()

	// The lexical side starts empty after a restart; rebuild it from
	// whatever the vector store already holds.
	if chunks, err := vectorDB.ScrollAll(ctx); err != nil {
		log.Warn("could not rebuild lexical index from vector store", "error", err)
	} else if len(chunks) > 0 {
		lexicalIndex.Rebuild(chunks)
		log.Info("lexical index rebuilt", "chunks", len(chunks))
	}

	llm := evolution.New(cfg.EvolutionBaseURL, cfg.EvolutionAPIKey, cfg.EvolutionModel, evolution.Options{
		Executor: executor,
	})
	encoder := crossencoder.New(cfg.RerankerURL, cfg.RerankerModel, log)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	indexer := usecase.NewIndexer(chunker, embedder, vectorDB, lexicalIndex, log)
	retriever := usecase.NewRetriever(embedder, vectorDB, lexicalIndex, cfg.VectorWeight, cfg.LexicalWeight, log)
	reformulator := usecase.NewReformulator(llm, log)
	reranker := usecase.NewReranker(encoder, llm, log)
	synthesizer := usecase.NewSynthesizer(llm)
	grader := usecase.NewGrader(llm, log)

	app.Answer = usecase.NewAnswerer(reformulator, retriever, reranker, synthesizer, grader, log)

	if app.Store != nil {
		extract := extractor.NewDispatcher(storage)
		app.Process = usecase.NewProcessor(app.Store, extract, indexer, log)
		if app.Queue != nil {
			app.Ingestor = usecase.NewIngestor(app.Store, storage, app.Queue)
		}
	}

	app.closeFn = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sourcearchive/indexer/pkg/config"
	"github.com/sourcearchive/indexer/pkg/database"
	"github.com/sourcearchive/indexer/pkg/logging"
	"github.com/sourcearchive/indexer/pkg/models"
	"github.com/sourcearchive/indexer/pkg/queue"
	"github.com/sourcearchive/indexer/pkg/repositories"
	"github.com/sourcearchive/indexer/pkg/services"
	"github.com/sourcearchive/indexer/pkg/services/workqueue"
	"github.com/sourcearchive/indexer/pkg/storage"
	"github.com/sourcearchive/indexer/pkg/translator"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "indexer",
		Short:         "Metadata indexer for archived software origins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newWorkerCmd(), newReindexCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Env)
			defer func() { _ = logger.Sync() }()

			sqlDB, err := sql.Open("pgx", cfg.Database.URL())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer sqlDB.Close()

			return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume pipeline tasks and run indexing stages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Env)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := database.NewConnection(ctx, &database.Config{
				URL:            cfg.Database.URL(),
				MaxConnections: cfg.Database.MaxConnections,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			redisClient, err := database.NewRedisClient(&cfg.Redis)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			if redisClient == nil {
				return fmt.Errorf("worker requires a redis transport, none configured")
			}
			defer func() { _ = redisClient.Close() }()

			registry := translator.DefaultRegistry()
			if cfg.MetadataRegistryPath != "" {
				registry, err = translator.LoadRegistry(cfg.MetadataRegistryPath)
				if err != nil {
					return fmt.Errorf("failed to load metadata registry: %w", err)
				}
			}

			// TODO: wire a real archive client once the graph storage
			// service exposes its read API. The in-memory archive keeps
			// local runs self-contained.
			archive := storage.NewMemoryArchive()

			tools := repositories.NewToolRepository(db)
			contentMeta := repositories.NewContentMetadataRepository(db, tools)
			dirMeta := repositories.NewDirectoryMetadataRepository(db, tools)
			intrinsic := repositories.NewOriginIntrinsicRepository(db, tools)
			extrinsic := repositories.NewOriginExtrinsicRepository(db, tools)

			scheduler := queue.NewRedisScheduler(redisClient, cfg.Redis.QueueKey, logger)
			resolver := services.NewHeadResolver(archive, logger)
			extractor := services.NewDirectoryExtractor(
				archive, archive, registry, translator.New(),
				contentMeta, dirMeta, logger,
			)
			aggregator := services.NewOriginAggregator(intrinsic, extrinsic, logger)
			dispatcher := services.NewDispatcher(resolver, extractor, aggregator, dirMeta, scheduler, logger)

			pool := workqueue.New(logger,
				workqueue.WithStrategy(workqueue.NewThrottledTranslateStrategy(cfg.Worker.MaxTranslations)))
			defer pool.Cancel()

			consumer := queue.NewConsumer(redisClient, cfg.Redis.QueueKey, &poolHandler{
				pool:       pool,
				dispatcher: dispatcher,
			}, logger)

			logger.Info("worker started",
				zap.String("queue", cfg.Redis.QueueKey),
				zap.Int("max_translations", cfg.Worker.MaxTranslations))
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

// poolHandler feeds delivered tasks to the worker pool.
type poolHandler struct {
	pool       *workqueue.Queue
	dispatcher *services.Dispatcher
}

func (h *poolHandler) Handle(_ context.Context, task models.IndexTask) error {
	h.pool.Enqueue(services.NewStageTask(h.dispatcher, task))
	return nil
}

func newReindexCmd() *cobra.Command {
	var (
		toolName    string
		toolVersion string
		originsFile string
	)

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Enqueue fresh pipeline runs for a list of origins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Env)
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()

			db, err := database.NewConnection(ctx, &database.Config{
				URL:            cfg.Database.URL(),
				MaxConnections: cfg.Database.MaxConnections,
			})
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			redisClient, err := database.NewRedisClient(&cfg.Redis)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			if redisClient == nil {
				return fmt.Errorf("reindex requires a redis transport, none configured")
			}
			defer func() { _ = redisClient.Close() }()

			tools := repositories.NewToolRepository(db)
			registered, err := tools.Register(ctx, []models.Tool{{
				Name:          toolName,
				Version:       toolVersion,
				Configuration: json.RawMessage(`{}`),
			}})
			if err != nil {
				return fmt.Errorf("failed to register tool: %w", err)
			}

			scheduler := queue.NewRedisScheduler(redisClient, cfg.Redis.QueueKey, logger)
			reindexer := services.NewReindexer(scheduler, logger)

			enqueued, err := reindexer.Reindex(ctx, fileOriginLister(originsFile), registered[0].ID)
			if err != nil {
				return err
			}
			logger.Info("reindex complete", zap.Int("origins", enqueued))
			return nil
		},
	}

	cmd.Flags().StringVar(&toolName, "tool-name", "", "registered tool name to index with")
	cmd.Flags().StringVar(&toolVersion, "tool-version", "", "registered tool version")
	cmd.Flags().StringVar(&originsFile, "origins-file", "", "file with one origin URL per line")
	_ = cmd.MarkFlagRequired("tool-name")
	_ = cmd.MarkFlagRequired("tool-version")
	_ = cmd.MarkFlagRequired("origins-file")
	return cmd
}

// fileOriginLister yields the origins file in batches.
func fileOriginLister(path string) services.OriginLister {
	const batchSize = 500

	file, err := os.Open(path)
	var scanner *bufio.Scanner
	if err == nil {
		scanner = bufio.NewScanner(file)
	}
	done := false

	return func(_ context.Context) ([]string, error) {
		if err != nil {
			return nil, fmt.Errorf("failed to open origins file: %w", err)
		}
		if done {
			return nil, nil
		}

		batch := make([]string, 0, batchSize)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			batch = append(batch, line)
			if len(batch) == batchSize {
				return batch, nil
			}
		}
		done = true
		_ = file.Close()
		if scanErr := scanner.Err(); scanErr != nil {
			return nil, fmt.Errorf("failed to read origins file: %w", scanErr)
		}
		if len(batch) == 0 {
			return nil, nil
		}
		return batch, nil
	}
}

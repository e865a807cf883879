package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/harvester/internal/publisher"
	pubsubpublisher "github.com/JakeFAU/harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/harvester/internal/storage/gcs"
	"github.com/JakeFAU/harvester/internal/storage/mongo"
	"github.com/JakeFAU/harvester/internal/storage/postgres"
	"github.com/JakeFAU/harvester/internal/worker"
)

// openSinks connects every archiver enabled in the archive section. Each
// opened archiver registers its own closer.
func (a *App) openSinks(ctx context.Context) ([]worker.Sink, error) {
	cfg := a.cfg.Archive
	var sinks []worker.Sink

	if cfg.GCSBucket != "" {
		a.logger.Info("using GCS archiver", zap.String("bucket", cfg.GCSBucket))
		archiver, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix}, nil, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs archiver: %w", err)
		}
		a.closers = append(a.closers, closer{name: gcs.Name, close: func(context.Context) error { return archiver.Close() }})
		sinks = append(sinks, worker.Sink{Name: gcs.Name, Archiver: archiver})
	}

	if cfg.PostgresDSN != "" {
		a.logger.Info("using postgres archiver", zap.String("table", cfg.PostgresTable))
		archiver, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, Table: cfg.PostgresTable}, a.ids, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres archiver: %w", err)
		}
		a.closers = append(a.closers, closer{name: postgres.Name, close: func(context.Context) error {
			archiver.Close()
			return nil
		}})
		sinks = append(sinks, worker.Sink{Name: postgres.Name, Archiver: archiver})
	}

	if cfg.MongoURI != "" {
		a.logger.Info("using mongo archiver", zap.String("database", cfg.MongoDatabase), zap.String("collection", cfg.MongoCollection))
		archiver, err := mongo.Open(ctx, mongo.Config{
			URI:        cfg.MongoURI,
			Database:   cfg.MongoDatabase,
			Collection: cfg.MongoCollection,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init mongo archiver: %w", err)
		}
		a.closers = append(a.closers, closer{name: mongo.Name, close: archiver.Close})
		sinks = append(sinks, worker.Sink{Name: mongo.Name, Archiver: archiver})
	}

	if cfg.PubSubTopic != "" {
		a.logger.Info("using pubsub notifier", zap.String("topic", cfg.PubSubTopic))
		pub, err := pubsubpublisher.Open(ctx, cfg.PubSubProject, cfg.PubSubTopic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.closers = append(a.closers, closer{name: "pubsub", close: func(context.Context) error { return pub.Close() }})
		sinks = append(sinks, worker.Sink{Name: "pubsub", Archiver: publisher.NewArchiver(pub, cfg.PubSubTopic, a.logger)})
	}

	return sinks, nil
}

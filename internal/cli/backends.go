package cli

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/dossier/internal/config"
	"github.com/gosuda/dossier/internal/domain"
	"github.com/gosuda/dossier/internal/repository"
	"github.com/gosuda/dossier/internal/store/memory"
	"github.com/gosuda/dossier/internal/store/minio"
	"github.com/gosuda/dossier/internal/store/postgres"
	redisstore "github.com/gosuda/dossier/internal/store/redis"
	"github.com/gosuda/dossier/internal/store/s3"
	"github.com/gosuda/dossier/internal/store/sqlite"
)

// backends are the opened stores. close releases them in reverse order.
type backends struct {
	docs     domain.DocumentStore
	blobs    domain.BlobStore
	overflow domain.OverflowStore
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the stores selected by cfg.Store.
func openBackends(ctx context.Context, cfg *config.Config) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	switch cfg.Store.DocBackend {
	case config.BackendPostgres:
		if cfg.Database.MaxConns > math.MaxInt32 {
			return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		opts := postgres.Options{
			MaxConns: int32(cfg.Database.MaxConns), //nolint:gosec // bounds checked above
			MaxBytes: cfg.Repository.DocMaxBytes,
		}

		if cfg.Redis.Addr != "" {
			feed, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, func() {
				if err := feed.Close(); err != nil {
					log.Warn().Err(err).Msg("redis close")
				}
			})
			opts.Notifier = feed
		} else {
			log.Info().Msg("redis not configured, live queries will poll postgres")
		}

		store, err := postgres.New(ctx, cfg.Database.DSN(), opts)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)

		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		b.docs = store.Documents()

	case config.BackendMemory:
		log.Warn().Msg("using in-memory document store, reports are lost on exit")
		b.docs = memory.NewDocumentStore(cfg.Repository.DocMaxBytes)

	default:
		return nil, fmt.Errorf("unknown document backend %q", cfg.Store.DocBackend)
	}

	switch cfg.Store.BlobBackend {
	case config.BackendNone:
		// Large attachments go to the overflow store.
	case config.BackendS3:
		b.blobs = s3.New(s3.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.S3.PublicURL,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	case config.BackendMinIO:
		store, err := minio.New(minio.Config{
			Endpoint:        cfg.MinIO.Endpoint,
			AccessKeyID:     cfg.MinIO.AccessKeyID,
			SecretAccessKey: cfg.MinIO.SecretAccessKey,
			Bucket:          cfg.MinIO.Bucket,
			Region:          cfg.MinIO.Region,
			UseSSL:          cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		b.blobs = store
	case config.BackendMemory:
		b.blobs = memory.NewBlobStore("memory://blobs")
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Store.BlobBackend)
	}

	overflow, err := sqlite.Open(cfg.Store.OverflowPath)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() {
		if err := overflow.Close(); err != nil {
			log.Warn().Err(err).Msg("overflow store close")
		}
	})
	b.overflow = overflow

	return b, nil
}

// newRepository builds the report repository over b.
func newRepository(cfg *config.Config, b *backends) (*repository.Repository, error) {
	if b.docs == nil || b.overflow == nil {
		return nil, errors.New("backends not opened")
	}
	return repository.New(repository.Options{
		Docs:        b.docs,
		Blobs:       b.blobs,
		Overflow:    b.overflow,
		Budget:      cfg.Repository.InlineBudgetBytes,
		LoadTimeout: cfg.Repository.LoadTimeout,
		CacheRemote: cfg.Repository.CacheRemoteBlobs,
	})
}

package app

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"entgo.io/ent/dialect"

	"worldeconomics/internal/gateway/config"
	"worldeconomics/internal/report"
)

// reportStore holds the configured backend and how to release it.
type reportStore struct {
	store report.Store
	close func() error
}

func initReportStore(cfg *config.Config) (*reportStore, error) {
	origin, closeFn, err := openOrigin(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Backend == "memory" {
		return &reportStore{store: origin, close: closeFn}, nil
	}
	cached := report.NewCachedStore(origin, report.DefaultCacheConfig())
	return &reportStore{store: cached, close: closeFn}, nil
}

func openOrigin(cfg *config.Config) (report.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store.Backend {
	case "memory":
		log.Printf("report store: memory")
		return report.NewMemoryStore(), noop, nil
	case "disk":
		s, err := report.NewDiskStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report dir: %w", err)
		}
		log.Printf("report store: disk dir=%s", s.Root())
		return s, noop, nil
	case "s3":
		s3Cfg := report.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		}
		s, err := report.NewS3Store(s3Cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize report s3 store: %w", err)
		}
		log.Printf("report store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return s, noop, nil
	case "postgres":
		s, err := report.OpenSQLStore(dialect.Postgres, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres report store: %w", err)
		}
		log.Printf("report store: postgres")
		return s, s.Close, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create sqlite dir: %w", err)
			}
		}
		s, err := report.OpenSQLStore(dialect.SQLite, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite report store: %w", err)
		}
		log.Printf("report store: sqlite path=%s", cfg.Store.SQLitePath)
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown report store %q", cfg.Store.Backend)
	}
}

package core

import (
	"context"
	"fmt"
	"os"

	"resultscore/internal/blob"
	blobs3 "resultscore/internal/blob/s3"
	"resultscore/internal/infra/persistence/memory"
	"resultscore/internal/infra/persistence/postgres"
	"resultscore/internal/infra/persistence/sqlite"
	"resultscore/pkg/domain"
)

// Storage environment variables.
//
//	RESULTSCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	RESULTSCORE_SQLITE_PATH:    sqlite database file (default resultscore.db)
//	RESULTSCORE_POSTGRES_DSN:   postgres connection string
const (
	envStorageDriver = "RESULTSCORE_STORAGE_DRIVER"
	envSQLitePath    = "RESULTSCORE_SQLITE_PATH"
	envPostgresDSN   = "RESULTSCORE_POSTGRES_DSN"
	envBlobDriver    = "RESULTSCORE_BLOB_DRIVER"
	envBlobFSRoot    = "RESULTSCORE_BLOB_FS_ROOT"
	envMetricsDriver = "RESULTSCORE_METRICS"
	envTracePath     = "RESULTSCORE_TRACE_PATH"
)

// OpenPersistentStore selects a storage backend from the environment and
// wires in the default rules engine.
func OpenPersistentStore() (PersistentStore, error) {
	return openPersistentStore(DefaultRulesEngine())
}

func openPersistentStore(engine *domain.RulesEngine) (PersistentStore, error) {
	driver := os.Getenv(envStorageDriver)
	if driver == "" {
		driver = "sqlite"
	}
	switch driver {
	case "memory":
		return memory.NewStore(engine), nil
	case "sqlite":
		return sqlite.NewStore(os.Getenv(envSQLitePath), engine)
	case "postgres":
		return postgres.NewStore(os.Getenv(envPostgresDSN), engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// OpenArtifactStore selects a certificate artifact backend from the
// environment.
//
//	RESULTSCORE_BLOB_DRIVER:  fs|s3|memory (default fs)
//	RESULTSCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./artifacts)
//	(S3 variables documented in the s3 package)
func OpenArtifactStore(ctx context.Context) (ArtifactStore, error) {
	driver := os.Getenv(envBlobDriver)
	if driver == "" {
		driver = string(blob.DriverFilesystem)
	}
	switch blob.Driver(driver) {
	case blob.DriverFilesystem:
		return blob.NewFilesystem(os.Getenv(envBlobFSRoot))
	case blob.DriverS3:
		return blobs3.OpenFromEnv(ctx)
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// OpenMetricsRecorder selects a metrics backend from the environment.
//
//	RESULTSCORE_METRICS: none|expvar|prometheus (default none)
func OpenMetricsRecorder() (MetricsRecorder, error) {
	switch driver := os.Getenv(envMetricsDriver); driver {
	case "", "none":
		return nil, nil
	case "expvar":
		return NewExpvarMetricsRecorder(""), nil
	case "prometheus":
		return NewPrometheusMetricsRecorder(nil)
	default:
		return nil, fmt.Errorf("unknown metrics driver %q", driver)
	}
}

// OpenTracer opens a JSON-lines span log when RESULTSCORE_TRACE_PATH is
// set. The file stays open for the life of the process.
func OpenTracer() (Tracer, error) {
	path := os.Getenv(envTracePath)
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return NewJSONTracer(f), nil
}

// NewInMemoryService is a convenience constructor for tests and tooling: an
// in-memory store with the default rules engine.
func NewInMemoryService(opts ...Option) *Service {
	return NewService(memory.NewStore(DefaultRulesEngine()), opts...)
}

// NewEnvService wires a service from environment configuration: storage and
// artifact backends plus the metrics recorder and tracer when configured.
func NewEnvService(ctx context.Context, opts ...Option) (*Service, error) {
	store, err := OpenPersistentStore()
	if err != nil {
		return nil, err
	}
	artifacts, err := OpenArtifactStore(ctx)
	if err != nil {
		return nil, err
	}
	base := []Option{WithArtifactStore(artifacts)}
	metrics, err := OpenMetricsRecorder()
	if err != nil {
		return nil, err
	}
	if metrics != nil {
		base = append(base, WithMetrics(metrics))
	}
	tracer, err := OpenTracer()
	if err != nil {
		return nil, err
	}
	if tracer != nil {
		base = append(base, WithTracer(tracer))
	}
	return NewService(store, append(base, opts...)...), nil
}

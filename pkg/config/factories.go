package config

import (
	"context"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittostore/internal/logger"
	"github.com/marmos91/dittostore/pkg/catalog"
	catalogBadger "github.com/marmos91/dittostore/pkg/catalog/badger"
	catalogMemory "github.com/marmos91/dittostore/pkg/catalog/memory"
	"github.com/marmos91/dittostore/pkg/metrics"
	"github.com/marmos91/dittostore/pkg/store/object"
	objectFs "github.com/marmos91/dittostore/pkg/store/object/fs"
	objectMemory "github.com/marmos91/dittostore/pkg/store/object/memory"
	objectS3 "github.com/marmos91/dittostore/pkg/store/object/s3"
)

// CreateObjectStore creates an object store based on configuration.
//
// The Type field selects the implementation; the map for that type is
// decoded into the backend's options and passed to its constructor.
//
// Supported types:
//   - "filesystem": pkg/store/object/fs (local directory tree)
//   - "memory": pkg/store/object/memory (ephemeral, for tests and demos)
//   - "s3": pkg/store/object/s3 (Amazon S3 or compatible storage)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Object store configuration
//
// Returns:
//   - object.ObjectStore: Initialized object store
//   - error: Configuration or initialization error
func CreateObjectStore(ctx context.Context, cfg *ObjectStoreConfig) (object.ObjectStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemObjectStore(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryObjectStore(ctx, cfg.Memory)
	case "s3":
		return createS3ObjectStore(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown object store type: %q (supported: filesystem, memory, s3)", cfg.Type)
	}
}

// decodeOptions decodes a backend option map. Byte sizes may be written as
// human strings ("512MB") and numbers may be quoted, which is what
// environment overrides produce.
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			bytesHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// bytesHookFunc parses human byte sizes into unsigned integer fields.
func bytesHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Uint64 {
			return data, nil
		}
		return humanize.ParseBytes(data.(string))
	}
}

// createFilesystemObjectStore creates a filesystem-based object store.
func createFilesystemObjectStore(ctx context.Context, options map[string]any) (object.ObjectStore, error) {
	type FilesystemObjectStoreConfig struct {
		Path string `mapstructure:"path"`
	}

	var storeCfg FilesystemObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem object store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem object store: path is required")
	}

	store, err := objectFs.NewFSObjectStore(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem object store: %w", err)
	}
	return store, nil
}

func createMemoryObjectStore(ctx context.Context, options map[string]any) (object.ObjectStore, error) {
	var storeCfg objectMemory.MemoryObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory object store config: %w", err)
	}

	store, err := objectMemory.NewMemoryObjectStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory object store: %w", err)
	}

	logger.Warn("Using memory object store: uploaded bytes are lost on exit (limit %s)",
		humanize.Bytes(storeCfg.MaxSizeBytes))
	return store, nil
}

// createS3ObjectStore creates an S3-based object store.
func createS3ObjectStore(ctx context.Context, options map[string]any) (object.ObjectStore, error) {
	type S3ObjectStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3ObjectStoreConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 object store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 object store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 object store: region is required")
	}

	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Without explicit keys the default credential chain applies
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and Localstack need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	// ========================================================================
	// Step 3: Create S3 Object Store
	// ========================================================================

	store, err := objectS3.NewS3ObjectStore(ctx, objectS3.S3ObjectStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
		Metrics:   metrics.NewS3Metrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 object store: %w", err)
	}

	logger.Info("S3 object store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)
	return store, nil
}

// CreateCatalog creates a catalog based on configuration. The result
// reports to Prometheus when metrics are enabled.
//
// Supported types:
//   - "memory": pkg/catalog/memory (ephemeral)
//   - "badger": pkg/catalog/badger (BadgerDB, persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Catalog configuration
//
// Returns:
//   - catalog.Catalog: Initialized catalog
//   - error: Configuration or initialization error
func CreateCatalog(ctx context.Context, cfg *CatalogConfig) (catalog.Catalog, error) {
	var (
		cat catalog.Catalog
		err error
	)
	switch cfg.Type {
	case "memory":
		cat, err = createMemoryCatalog(ctx)
	case "badger":
		cat, err = createBadgerCatalog(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown catalog type: %q (supported: memory, badger)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return metrics.InstrumentCatalog(cat, metrics.NewCatalogMetrics(cfg.Type)), nil
}

func createMemoryCatalog(ctx context.Context) (catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger.Warn("Using memory catalog: file records are lost on exit")
	return catalogMemory.NewMemoryCatalog(), nil
}

// createBadgerCatalog creates a BadgerDB-backed persistent catalog.
func createBadgerCatalog(ctx context.Context, options map[string]any) (catalog.Catalog, error) {
	var storeCfg catalogBadger.BadgerCatalogConfig
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger catalog config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger catalog: path is required")
	}

	cat, err := catalogBadger.NewBadgerCatalog(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger catalog: %w", err)
	}
	return cat, nil
}

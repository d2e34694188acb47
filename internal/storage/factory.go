package storage

import (
	"context"
	"fmt"

	"github.com/fruitsalade/docarchive/internal/config"
	"github.com/fruitsalade/docarchive/internal/storage/local"
	s3backend "github.com/fruitsalade/docarchive/internal/storage/s3"
)

// NewBackendFromConfig creates a Backend rooted at rootPath (local) or the
// configured bucket (s3).
func NewBackendFromConfig(ctx context.Context, cfg config.Storage, rootPath string) (Backend, error) {
	switch cfg.Backend {
	case "s3":
		return s3backend.NewBackend(ctx, s3backend.BackendConfig{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			Prefix:    cfg.S3Prefix,
		})
	case "local", "":
		return local.New(local.Config{RootPath: rootPath, CreateDirs: true})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Backend)
	}
}

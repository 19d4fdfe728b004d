package config

import (
	"context"
	"fmt"

	"github.com/kazz187/provisioner/internal/project"
	"github.com/kazz187/provisioner/internal/project/repositoryimpl"
	"github.com/kazz187/provisioner/pkg/storage"
)

const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// NewRepository returns the outcome store selected by STORAGE_TYPE, or nil
// when outcomes are not kept, which is the default.
func (e *Env) NewRepository(ctx context.Context) (project.Repository, error) {
	var store storage.Storage
	switch e.StorageEnv.Type {
	case StorageNone, "":
		return nil, nil
	case StorageS3:
		s3, err := storage.NewS3Storage(ctx, e.S3Bucket, e.S3Prefix, e.S3Region)
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		store = s3
	default:
		local, err := storage.NewLocalStorage(e.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("local storage: %w", err)
		}
		store = local
	}
	return repositoryimpl.NewYAMLRepository(store), nil
}

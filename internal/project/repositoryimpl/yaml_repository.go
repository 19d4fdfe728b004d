package repositoryimpl

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/provisioner/internal/project"
	"github.com/kazz187/provisioner/pkg/cerr"
	"github.com/kazz187/provisioner/pkg/storage"
)

const outcomesPrefix = "outcomes"

var _ project.Repository = (*YAMLRepository)(nil)

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func dir(org, repo string) string {
	return fmt.Sprintf("%s/%s/%s", outcomesPrefix, org, repo)
}

// Run IDs are ULIDs, so lexical order of the files is chronological.
func path(o *project.Outcome) string {
	return fmt.Sprintf("%s/%s.yaml", dir(o.Org, o.Repo), o.RunID)
}

func (r *YAMLRepository) Create(ctx context.Context, o *project.Outcome) error {
	exists, err := r.storage.Exists(ctx, path(o))
	if err != nil {
		return cerr.WrapStorageWriteError("outcome", err)
	}
	if exists {
		return cerr.NewError(cerr.AlreadyExists, "outcome already exists", nil)
	}
	data, err := yaml.Marshal(o)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("marshal outcome: %w", err))
	}
	if err := r.storage.Write(ctx, path(o), data); err != nil {
		return cerr.WrapStorageWriteError("outcome", err)
	}
	return nil
}

func (r *YAMLRepository) List(ctx context.Context, org, repo string, limit int) ([]*project.Outcome, error) {
	paths, err := r.storage.List(ctx, dir(org, repo))
	if err != nil {
		return nil, cerr.WrapStorageReadError("outcomes", err)
	}
	slices.Reverse(paths)

	var outcomes []*project.Outcome
	for _, p := range paths {
		if limit > 0 && len(outcomes) == limit {
			break
		}
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, cerr.WrapStorageReadError("outcome", err)
		}
		var o project.Outcome
		if err := yaml.Unmarshal(data, &o); err != nil {
			slog.WarnContext(ctx, "skipping unreadable outcome", "path", p, "error", err)
			continue
		}
		o.Duration = o.FinishedAt.Sub(o.StartedAt)
		outcomes = append(outcomes, &o)
	}
	return outcomes, nil
}

package project

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"

	"github.com/kazz187/provisioner/pkg/cerr"
	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

// Service is the inbound boundary: it validates requests, then hands them
// to the coordinator. Only validation errors are returned as errors; every
// other failure is reported inside the outcome.
type Service struct {
	provisioner *Provisioner
	coordinator *Coordinator
	defaults    Defaults
}

func NewService(provisioner *Provisioner, coordinator *Coordinator, defaults Defaults) *Service {
	return &Service{
		provisioner: provisioner,
		coordinator: coordinator,
		defaults:    defaults,
	}
}

func (s *Service) Defaults() Defaults {
	return s.defaults
}

func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (Outcome, error) {
	d, err := req.Validate(s.defaults)
	if err != nil {
		return Outcome{}, err
	}
	batch := s.coordinator.Run(ctx, OperationProvision, s.coordinator.provisionItems(s.provisioner, []Descriptor{d}))
	return batch.Results[0], nil
}

func (s *Service) CreateMultiProject(ctx context.Context, req CreateMultiProjectRequest) (BatchResult, error) {
	descriptors, err := req.Validate(s.defaults)
	if err != nil {
		return BatchResult{}, err
	}
	slog.InfoContext(ctx, "provisioning batch", "org", req.OrgName, "size", len(descriptors))
	return s.coordinator.Run(ctx, OperationProvision, s.coordinator.provisionItems(s.provisioner, descriptors)), nil
}

func (s *Service) DeleteProject(ctx context.Context, req DeleteProjectRequest) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	batch := s.coordinator.Run(ctx, OperationDeprovision, s.coordinator.deprovisionItems(s.provisioner, req.OrgName, []string{req.RepoName}))
	return batch.Results[0], nil
}

func (s *Service) DeleteMultiProject(ctx context.Context, req DeleteMultiProjectRequest) (BatchResult, error) {
	if err := req.Validate(s.defaults.MaxBatchSize); err != nil {
		return BatchResult{}, err
	}
	slog.InfoContext(ctx, "deprovisioning batch", "org", req.OrgName, "size", len(req.RepoNames))
	return s.coordinator.Run(ctx, OperationDeprovision, s.coordinator.deprovisionItems(s.provisioner, req.OrgName, req.RepoNames)), nil
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type HistoryRequest struct {
	OrgName  string `json:"org_name" yaml:"org_name"`
	RepoName string `json:"repo_name" yaml:"repo_name"`
	Limit    int    `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// History lists the stored outcomes of org/repo, newest first.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]*Outcome, error) {
	v := &ValidationError{}
	checkName(v, "org_name", req.OrgName)
	checkName(v, "repo_name", req.RepoName)
	if req.Limit < 0 || req.Limit > maxHistoryLimit {
		v.add("limit", "must be between 0 and %d", maxHistoryLimit)
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}
	if s.provisioner.repo == nil {
		return nil, cerr.NewError(cerr.FailedPrecondition, "outcome history is not enabled", nil)
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	outcomes, err := s.provisioner.repo.List(ctx, req.OrgName, req.RepoName, limit)
	if err != nil {
		return nil, err
	}
	if outcomes == nil {
		outcomes = []*Outcome{}
	}
	return outcomes, nil
}

type PermissionUpdate struct {
	Org        string `json:"org_name" yaml:"org_name"`
	Repo       string `json:"repo_name" yaml:"repo_name"`
	Team       string `json:"team_slug" yaml:"team_slug"`
	Permission string `json:"permission" yaml:"permission"`
}

// UpdateRepoPermission sets an existing team's role on an existing
// repository. It is a single idempotent call, so there is nothing to
// compensate.
func (s *Service) UpdateRepoPermission(ctx context.Context, req UpdateRepoPermissionRequest) (PermissionUpdate, error) {
	g, err := req.Validate()
	if err != nil {
		return PermissionUpdate{}, err
	}
	slug := github.Slug(g.Team)
	if err := s.provisioner.scm.GrantTeamPermission(ctx, g.Org, slug, g.Repo, g.Permission.GitHubRole()); err != nil {
		return PermissionUpdate{}, fmt.Errorf("grant %s on %s: %w", g.Permission, Key(g.Org, g.Repo), err)
	}
	slog.InfoContext(ctx, "permission updated", "org", g.Org, "repo", g.Repo, "team", slug, "permission", g.Permission.String())
	return PermissionUpdate{Org: g.Org, Repo: g.Repo, Team: slug, Permission: g.Permission.String()}, nil
}

type PlatformCheck struct {
	Platform string `json:"platform" yaml:"platform"`
	OK       bool   `json:"ok" yaml:"ok"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// PreflightReport tells whether both platforms are reachable and usable
// for org before any provisioning is attempted.
type PreflightReport struct {
	Org    string          `json:"org_name" yaml:"org_name"`
	Ready  bool            `json:"ready" yaml:"ready"`
	Checks []PlatformCheck `json:"checks" yaml:"checks"`
}

func (s *Service) Preflight(ctx context.Context, org string) (PreflightReport, error) {
	v := &ValidationError{}
	checkName(v, "org_name", org)
	if err := v.orNil(); err != nil {
		return PreflightReport{}, err
	}

	var scmCheck, qualityCheck PlatformCheck
	var wg conc.WaitGroup
	wg.Go(func() {
		scmCheck = PlatformCheck{Platform: github.Platform}
		exists, err := s.provisioner.scm.OrganizationExists(ctx, org)
		switch {
		case err != nil:
			scmCheck.Detail = err.Error()
		case !exists:
			scmCheck.Detail = fmt.Sprintf("organization %q not found or not visible to the token", org)
		default:
			scmCheck.OK = true
		}
	})
	wg.Go(func() {
		qualityCheck = PlatformCheck{Platform: sonarqube.Platform}
		status, err := s.provisioner.quality.Status(ctx)
		switch {
		case err != nil:
			qualityCheck.Detail = err.Error()
		case !status.Up():
			qualityCheck.Detail = fmt.Sprintf("server status is %s", status.Status)
		default:
			qualityCheck.OK = true
			qualityCheck.Detail = "version " + status.Version
		}
	})
	if r := wg.WaitAndRecover(); r != nil {
		return PreflightReport{}, r.AsError()
	}

	return PreflightReport{
		Org:    org,
		Ready:  scmCheck.OK && qualityCheck.OK,
		Checks: []PlatformCheck{scmCheck, qualityCheck},
	}, nil
}

package project

import (
	"context"

	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

// deletion is the report entry produced by one idempotent delete.
func deletion(kind ResourceKind, name string, deleted bool, err error) Resource {
	switch {
	case err != nil:
		return Resource{Kind: kind, Name: name, State: ResourceRemaining}
	case deleted:
		return Resource{Kind: kind, Name: name, State: ResourceDeleted}
	}
	return Resource{Kind: kind, Name: name, State: ResourceAbsent}
}

// Deprovision tears down org/repo. The code-quality side goes first, then
// the source-control side. Every deletion tolerates absence and is
// attempted even when an earlier one failed, so the outcome always names
// which platform still holds residual state. Teams attached to the
// repository are deleted only when no other repository references them.
func (p *Provisioner) Deprovision(ctx context.Context, org, repo string) Outcome {
	r := p.newRun(ctx, OperationDeprovision, org, repo)
	projectKey := sonarqube.ProjectKey(repo)
	var (
		resources []Resource
		teams     []github.Team
		teamsErr  error
	)

	steps := []sagaStep{
		{StepDeleteQualityProject, func(ctx context.Context) error {
			deleted, err := p.quality.DeleteProject(ctx, projectKey)
			resources = append(resources, deletion(KindQualityProject, projectKey, deleted, err))
			return err
		}},
		{StepRevokeTokens, func(ctx context.Context) error {
			_, err := p.quality.RevokeProjectTokens(ctx, projectKey)
			return err
		}},
		{StepListTeams, func(ctx context.Context) error {
			teams, teamsErr = p.scm.ListRepoTeams(ctx, org, repo)
			return teamsErr
		}},
		{StepDeleteSecret, func(ctx context.Context) error {
			var firstErr error
			for _, name := range []string{p.secrets.Token, p.secrets.ProjectKey} {
				deleted, err := p.scm.DeleteSecret(ctx, org, repo, name)
				resources = append(resources, deletion(KindSecret, name, deleted, err))
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}},
		{StepDeleteRepository, func(ctx context.Context) error {
			deleted, err := p.scm.DeleteRepo(ctx, org, repo)
			resources = append(resources, deletion(KindRepository, Key(org, repo), deleted, err))
			return err
		}},
		{StepDeleteTeam, func(ctx context.Context) error {
			if teamsErr != nil {
				return nil
			}
			var firstErr error
			for _, team := range teams {
				result, err := p.scm.DeleteTeamIfUnused(ctx, org, team.Slug)
				res := deletion(KindTeam, team.Slug, result == github.TeamDeleted, err)
				if err == nil && result == github.TeamInUse {
					res.State = ResourceExisting
				}
				resources = append(resources, res)
				if err != nil && firstErr == nil {
					firstErr = err
				}
			}
			return firstErr
		}},
	}

	failed := false
	for _, s := range steps {
		if r.canceled(s.step) {
			failed = true
			break
		}
		if err := r.do(s.step, s.fn); err != nil {
			failed = true
		}
	}
	if failed {
		return r.finish(StateIncomplete, resources)
	}
	return r.finish(StateCompleted, resources)
}

package project

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kazz187/provisioner/pkg/clog"
	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/sealbox"
	"github.com/kazz187/provisioner/pkg/secret"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

type sagaStep struct {
	step Step
	fn   func(ctx context.Context) error
}

type namedSecret struct {
	name   string
	sealed sealbox.Sealed
}

// Provision stands up the project described by d, which must already be
// validated. Steps run strictly in order. When one fails, or ctx is
// cancelled between steps, everything recorded so far is compensated in
// reverse order.
func (p *Provisioner) Provision(ctx context.Context, d Descriptor) Outcome {
	r := p.newRun(ctx, OperationProvision, d.Org, d.Repo)
	ledger := &Ledger{}
	projectKey := sonarqube.ProjectKey(d.Repo)

	var (
		team    *github.Team
		token   *secret.Value
		pubKey  sealbox.PublicKey
		secrets []namedSecret
	)
	defer func() {
		token.Destroy()
	}()

	steps := []sagaStep{
		{StepCreateRepository, func(ctx context.Context) error {
			if _, err := p.scm.CreateRepoFromTemplate(ctx, d.Org, d.Repo, d.Template); err != nil {
				return err
			}
			ledger.Record(Resource{Kind: KindRepository, Name: d.Key()}, StepDeleteRepository, func(ctx context.Context) error {
				_, err := p.scm.DeleteRepo(ctx, d.Org, d.Repo)
				return err
			})
			return nil
		}},
		{StepEnsureTeam, func(ctx context.Context) error {
			t, created, err := p.scm.EnsureTeam(ctx, d.Org, d.Team)
			if err != nil {
				return err
			}
			team = t
			resource := Resource{Kind: KindTeam, Name: t.Slug}
			if !created {
				ledger.RecordExisting(resource)
				return nil
			}
			ledger.Record(resource, StepDeleteTeam, func(ctx context.Context) error {
				_, err := p.scm.DeleteTeam(ctx, d.Org, t.Slug)
				return err
			})
			return nil
		}},
		{StepGrantPermission, func(ctx context.Context) error {
			if err := p.scm.GrantTeamPermission(ctx, d.Org, team.Slug, d.Repo, d.Permission.GitHubRole()); err != nil {
				return err
			}
			name := fmt.Sprintf("%s:%s:%s", team.Slug, d.Repo, d.Permission)
			ledger.Record(Resource{Kind: KindPermission, Name: name}, StepRevokePermission, func(ctx context.Context) error {
				_, err := p.scm.RevokeTeamPermission(ctx, d.Org, team.Slug, d.Repo)
				return err
			})
			return nil
		}},
		{StepCreateQualityProject, func(ctx context.Context) error {
			if _, err := p.quality.CreateProject(ctx, projectKey, d.Repo); err != nil {
				return err
			}
			ledger.Record(Resource{Kind: KindQualityProject, Name: projectKey}, StepDeleteQualityProject, func(ctx context.Context) error {
				_, err := p.quality.DeleteProject(ctx, projectKey)
				return err
			})
			return nil
		}},
		{StepGenerateAnalysisToken, func(ctx context.Context) error {
			var err error
			token, err = p.quality.GenerateToken(ctx, projectKey)
			if err != nil {
				return err
			}
			ledger.Record(Resource{Kind: KindAnalysisToken, Name: sonarqube.TokenName(projectKey)}, StepRevokeTokens, func(ctx context.Context) error {
				_, err := p.quality.RevokeProjectTokens(ctx, projectKey)
				return err
			})
			return nil
		}},
		{StepFetchPublicKey, func(ctx context.Context) error {
			var err error
			pubKey, err = p.scm.FetchPublicKey(ctx, d.Org, d.Repo)
			return err
		}},
		{StepSealSecret, func(context.Context) error {
			plaintext := token.Reveal()
			defer clear(plaintext)
			sealedToken, err := p.seal(plaintext, pubKey)
			if err != nil {
				return err
			}
			sealedKey, err := p.seal([]byte(projectKey), pubKey)
			if err != nil {
				return err
			}
			token.Destroy()
			secrets = []namedSecret{
				{name: p.secrets.Token, sealed: sealedToken},
				{name: p.secrets.ProjectKey, sealed: sealedKey},
			}
			return nil
		}},
		{StepWriteSecret, func(ctx context.Context) error {
			for _, s := range secrets {
				if err := p.scm.WriteSecret(ctx, d.Org, d.Repo, s.name, s.sealed); err != nil {
					return fmt.Errorf("secret %s: %w", s.name, err)
				}
				ledger.Record(Resource{Kind: KindSecret, Name: s.name}, StepDeleteSecret, func(ctx context.Context) error {
					_, err := p.scm.DeleteSecret(ctx, d.Org, d.Repo, s.name)
					return err
				})
			}
			return nil
		}},
	}

	for _, s := range steps {
		if r.canceled(s.step) || r.do(s.step, s.fn) != nil {
			return p.rollback(r, ledger)
		}
	}
	return r.finish(StateCommitted, ledger.Resources())
}

// rollback compensates the ledger. A run that recorded nothing ends in
// StateFailed; compensation failures end in StatePartiallyRolledBack.
func (p *Provisioner) rollback(r *run, ledger *Ledger) Outcome {
	if ledger.Len() == 0 {
		return r.finish(StateFailed, nil)
	}
	slog.InfoContext(r.ctx, "compensating", "entries", ledger.Len())
	resources, errs := ledger.Compensate(r.callCtx)
	for _, ce := range errs {
		r.outcome.Errors = append(r.outcome.Errors, StepError{Step: ce.Step, Kind: ErrorCompensation, Message: ce.Error()})
		slog.ErrorContext(r.ctx, "compensation failed", clog.StepAttributeKey, string(ce.Step), clog.ErrorAttributeKey, ce.Err)
		if p.recorder != nil {
			p.recorder.RecordCompensationFailure(ce.Step)
		}
	}
	if len(errs) > 0 {
		return r.finish(StatePartiallyRolledBack, resources)
	}
	return r.finish(StateRolledBack, resources)
}

package project

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kazz187/provisioner/pkg/clog"
	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/panicerr"
	"github.com/kazz187/provisioner/pkg/sealbox"
	"github.com/kazz187/provisioner/pkg/secret"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

var (
	_ SourceControl = (*github.Client)(nil)
	_ CodeQuality   = (*sonarqube.Client)(nil)
)

// SourceControl is the subset of the GitHub client the sagas drive.
type SourceControl interface {
	CreateRepoFromTemplate(ctx context.Context, org, name string, template github.TemplateRef) (*github.Repository, error)
	EnsureTeam(ctx context.Context, org, name string) (*github.Team, bool, error)
	GrantTeamPermission(ctx context.Context, org, slug, repo, role string) error
	RevokeTeamPermission(ctx context.Context, org, slug, repo string) (bool, error)
	FetchPublicKey(ctx context.Context, org, repo string) (sealbox.PublicKey, error)
	WriteSecret(ctx context.Context, org, repo, name string, sealed sealbox.Sealed) error
	DeleteSecret(ctx context.Context, org, repo, name string) (bool, error)
	DeleteRepo(ctx context.Context, org, name string) (bool, error)
	DeleteTeam(ctx context.Context, org, slug string) (bool, error)
	DeleteTeamIfUnused(ctx context.Context, org, slug string) (github.TeamDeletion, error)
	ListRepoTeams(ctx context.Context, org, repo string) ([]github.Team, error)
	OrganizationExists(ctx context.Context, org string) (bool, error)
}

// CodeQuality is the subset of the SonarQube client the sagas drive.
type CodeQuality interface {
	CreateProject(ctx context.Context, key, name string) (*sonarqube.Project, error)
	GenerateToken(ctx context.Context, projectKey string) (*secret.Value, error)
	DeleteProject(ctx context.Context, key string) (bool, error)
	RevokeProjectTokens(ctx context.Context, projectKey string) ([]string, error)
	Status(ctx context.Context) (*sonarqube.Status, error)
}

// Sealer encrypts plaintext for the holder of key.
type Sealer func(plaintext []byte, key sealbox.PublicKey) (sealbox.Sealed, error)

// Recorder receives saga telemetry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordOutcome(op Operation, state State, elapsed time.Duration)
	RecordStepFailure(op Operation, step Step, kind ErrorKind)
	RecordCompensationFailure(step Step)
}

// SecretNames are the Actions secrets written into provisioned repositories.
type SecretNames struct {
	Token      string
	ProjectKey string
}

func DefaultSecretNames() SecretNames {
	return SecretNames{Token: "SONAR_TOKEN", ProjectKey: "SONAR_PROJECT_KEY"}
}

// Provisioner runs provisioning and deprovisioning sagas. It holds no
// per-run state and is safe for concurrent use.
type Provisioner struct {
	scm      SourceControl
	quality  CodeQuality
	seal     Sealer
	secrets  SecretNames
	recorder Recorder
	repo     Repository
	now      func() time.Time
}

type ProvisionerOption func(*Provisioner)

func WithSealer(seal Sealer) ProvisionerOption {
	return func(p *Provisioner) {
		p.seal = seal
	}
}

func WithSecretNames(names SecretNames) ProvisionerOption {
	return func(p *Provisioner) {
		p.secrets = names
	}
}

func WithRecorder(recorder Recorder) ProvisionerOption {
	return func(p *Provisioner) {
		p.recorder = recorder
	}
}

// WithRepository stores every outcome. Storage failures are logged and do
// not change the outcome.
func WithRepository(repo Repository) ProvisionerOption {
	return func(p *Provisioner) {
		p.repo = repo
	}
}

func NewProvisioner(scm SourceControl, quality CodeQuality, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		scm:     scm,
		quality: quality,
		seal:    sealbox.Seal,
		secrets: DefaultSecretNames(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run carries the bookkeeping of one saga execution.
type run struct {
	p       *Provisioner
	ctx     context.Context // caller context, observed between steps
	callCtx context.Context // never cancelled, used for remote calls
	outcome Outcome
}

func (p *Provisioner) newRun(ctx context.Context, op Operation, org, repo string) *run {
	ctx = clog.Fork(ctx)
	runID := ulid.Make().String()
	clog.AddAttributes(ctx, map[string]any{
		clog.OperationAttributeKey: string(op),
		clog.RunIDAttributeKey:     runID,
		clog.OrgAttributeKey:       org,
		clog.RepoAttributeKey:      repo,
	})
	slog.InfoContext(ctx, "saga started")
	return &run{
		p:       p,
		ctx:     ctx,
		callCtx: context.WithoutCancel(ctx),
		outcome: Outcome{
			RunID:     runID,
			Operation: op,
			Org:       org,
			Repo:      repo,
			StartedAt: p.now(),
		},
	}
}

// canceled reports whether the caller gave up. The step that would have
// run next is recorded as the failure point.
func (r *run) canceled(next Step) bool {
	err := r.ctx.Err()
	if err == nil {
		return false
	}
	r.fail(next, err)
	return true
}

// do executes one step under the non-cancellable context. A panic inside
// fn is reported as the step's error.
func (r *run) do(step Step, fn func(ctx context.Context) error) error {
	start := r.p.now()
	err := panicerr.SafeContext(fn)(r.callCtx)
	if err != nil {
		r.fail(step, err)
		return err
	}
	slog.DebugContext(r.ctx, "step succeeded", clog.StepAttributeKey, string(step), "elapsed", r.p.now().Sub(start))
	return nil
}

func (r *run) fail(step Step, err error) {
	kind := classify(err)
	r.outcome.Errors = append(r.outcome.Errors, StepError{Step: step, Kind: kind, Message: err.Error()})
	slog.WarnContext(r.ctx, "step failed", clog.StepAttributeKey, string(step), "kind", string(kind), clog.ErrorAttributeKey, err)
	if r.p.recorder != nil {
		r.p.recorder.RecordStepFailure(r.outcome.Operation, step, kind)
	}
}

func (r *run) finish(state State, resources []Resource) Outcome {
	r.outcome.State = state
	r.outcome.Resources = resources
	if r.outcome.Resources == nil {
		r.outcome.Resources = []Resource{}
	}
	r.outcome.Status = deriveStatus(state, r.outcome.Resources)
	r.outcome.FinishedAt = r.p.now()
	r.outcome.Duration = r.outcome.FinishedAt.Sub(r.outcome.StartedAt)

	level := clog.LevelInfo
	switch r.outcome.Status {
	case StatusPartialFailure:
		level = clog.LevelError
	case StatusFailure:
		level = clog.LevelWarn
	}
	clog.Log(r.ctx, level, "saga finished",
		"state", string(state),
		"status", string(r.outcome.Status),
		"errors", len(r.outcome.Errors),
		"elapsed", r.outcome.Duration,
	)
	if r.p.recorder != nil {
		r.p.recorder.RecordOutcome(r.outcome.Operation, state, r.outcome.Duration)
	}
	if r.p.repo != nil {
		stored := r.outcome
		if err := r.p.repo.Create(r.callCtx, &stored); err != nil {
			slog.ErrorContext(r.ctx, "failed to store outcome", clog.ErrorAttributeKey, err)
		}
	}
	return r.outcome
}

package project

import (
	"time"

	"github.com/kazz187/provisioner/internal/permission"
	"github.com/kazz187/provisioner/pkg/github"
)

// Descriptor identifies one project and how to provision it. Identity is
// (Org, Repo).
type Descriptor struct {
	Org        string
	Repo       string
	Template   github.TemplateRef
	Team       string
	Permission permission.Level
}

func (d Descriptor) Key() string {
	return Key(d.Org, d.Repo)
}

func Key(org, repo string) string {
	return org + "/" + repo
}

type Operation string

const (
	OperationProvision   Operation = "provision"
	OperationDeprovision Operation = "deprovision"
)

type State string

const (
	// provisioning
	StateCommitted           State = "committed"
	StateRolledBack          State = "rolled_back"
	StatePartiallyRolledBack State = "partially_rolled_back"
	StateFailed              State = "failed"
	// deprovisioning
	StateCompleted  State = "completed"
	StateIncomplete State = "incomplete"
)

type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
	StatusFailure        Status = "failure"
)

type ResourceKind string

const (
	KindRepository     ResourceKind = "repository"
	KindTeam           ResourceKind = "team"
	KindPermission     ResourceKind = "permission"
	KindQualityProject ResourceKind = "quality_project"
	KindAnalysisToken  ResourceKind = "analysis_token"
	KindSecret         ResourceKind = "secret"
)

type ResourceState string

const (
	ResourceCreated    ResourceState = "created"
	ResourceExisting   ResourceState = "existing"
	ResourceRolledBack ResourceState = "rolled_back"
	ResourceRemaining  ResourceState = "remaining"
	ResourceDeleted    ResourceState = "deleted"
	ResourceAbsent     ResourceState = "absent"
)

type Resource struct {
	Kind        ResourceKind  `json:"kind" yaml:"kind"`
	Name        string        `json:"name" yaml:"name"`
	PreExisting bool          `json:"pre_existing,omitempty" yaml:"pre_existing,omitempty"`
	State       ResourceState `json:"state" yaml:"state"`
}

type Step string

const (
	StepValidate              Step = "validate"
	StepCreateRepository      Step = "create_repository"
	StepEnsureTeam            Step = "ensure_team"
	StepGrantPermission       Step = "grant_permission"
	StepCreateQualityProject  Step = "create_quality_project"
	StepGenerateAnalysisToken Step = "generate_analysis_token"
	StepFetchPublicKey        Step = "fetch_public_key"
	StepSealSecret            Step = "seal_secret"
	StepWriteSecret           Step = "write_secret"

	StepDeleteSecret         Step = "delete_secret"
	StepDeleteQualityProject Step = "delete_quality_project"
	StepRevokeTokens         Step = "revoke_tokens"
	StepRevokePermission     Step = "revoke_permission"
	StepListTeams            Step = "list_teams"
	StepDeleteTeam           Step = "delete_team"
	StepDeleteRepository     Step = "delete_repository"
)

// ProvisionSteps lists the forward steps of provisioning in execution order.
var ProvisionSteps = []Step{
	StepCreateRepository,
	StepEnsureTeam,
	StepGrantPermission,
	StepCreateQualityProject,
	StepGenerateAnalysisToken,
	StepFetchPublicKey,
	StepSealSecret,
	StepWriteSecret,
}

type StepError struct {
	Step    Step      `json:"step" yaml:"step"`
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

// Outcome is the itemized result of one saga run.
type Outcome struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	Operation  Operation     `json:"operation" yaml:"operation"`
	Org        string        `json:"org_name" yaml:"org_name"`
	Repo       string        `json:"repo_name" yaml:"repo_name"`
	State      State         `json:"state" yaml:"state"`
	Status     Status        `json:"status" yaml:"status"`
	Resources  []Resource    `json:"resources" yaml:"resources"`
	Errors     []StepError   `json:"errors,omitempty" yaml:"errors,omitempty"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"-" yaml:"-"`
}

func (o Outcome) Key() string {
	return Key(o.Org, o.Repo)
}

// Remaining lists resources that still exist and need manual cleanup.
func (o Outcome) Remaining() []Resource {
	var out []Resource
	for _, r := range o.Resources {
		if r.State == ResourceRemaining {
			out = append(out, r)
		}
	}
	return out
}

func deriveStatus(state State, resources []Resource) Status {
	switch state {
	case StateCommitted, StateCompleted:
		return StatusSuccess
	case StatePartiallyRolledBack:
		return StatusPartialFailure
	case StateIncomplete:
		for _, r := range resources {
			if r.State == ResourceDeleted || r.State == ResourceAbsent {
				return StatusPartialFailure
			}
		}
	}
	return StatusFailure
}

// BatchResult holds one Outcome per input item, in input order.
type BatchResult struct {
	Operation Operation `json:"operation" yaml:"operation"`
	Total     int       `json:"total" yaml:"total"`
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Partial   int       `json:"partial" yaml:"partial"`
	Failed    int       `json:"failed" yaml:"failed"`
	Results   []Outcome `json:"results" yaml:"results"`
}

// Lookup returns the outcome for org/repo.
func (b BatchResult) Lookup(org, repo string) (Outcome, bool) {
	key := Key(org, repo)
	for _, o := range b.Results {
		if o.Key() == key {
			return o, true
		}
	}
	return Outcome{}, false
}

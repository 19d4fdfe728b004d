package project

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/kazz187/provisioner/internal/permission"
	"github.com/kazz187/provisioner/pkg/github"
	"github.com/kazz187/provisioner/pkg/remote"
	"github.com/kazz187/provisioner/pkg/sealbox"
	"github.com/kazz187/provisioner/pkg/secret"
	"github.com/kazz187/provisioner/pkg/sonarqube"
)

// fakePlatform is an in-memory stand-in for both GitHub and SonarQube.
// Failures and panics can be injected per method name.
type fakePlatform struct {
	mu sync.Mutex

	repos    map[string]bool           // org/repo
	teams    map[string]string         // org/slug -> name
	grants   map[string]string         // org/slug/repo -> role
	secrets  map[string]sealbox.Sealed // org/repo/name
	projects map[string]bool           // project key
	tokens   map[string][]string       // project key -> token names

	unknownOrgs map[string]bool
	qualityDown bool

	failures   map[string]error
	panics     map[string]bool
	onCall     func(method string)
	calls      []string
	grantCalls int

	pub  *[32]byte
	priv *[32]byte
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &fakePlatform{
		repos:       map[string]bool{},
		teams:       map[string]string{},
		grants:      map[string]string{},
		secrets:     map[string]sealbox.Sealed{},
		projects:    map[string]bool{},
		tokens:      map[string][]string{},
		unknownOrgs: map[string]bool{},
		failures:    map[string]error{},
		panics:      map[string]bool{},
		pub:         pub,
		priv:        priv,
	}
}

func (f *fakePlatform) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = err
}

func (f *fakePlatform) panicOn(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[method] = true
}

func (f *fakePlatform) check(method string) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	err := f.failures[method]
	shouldPanic := f.panics[method]
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(method)
	}
	if shouldPanic {
		panic("fake " + method + " exploded")
	}
	return err
}

func (f *fakePlatform) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// empty reports whether nothing created by a saga is left on either side.
func (f *fakePlatform) empty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens := 0
	for _, names := range f.tokens {
		tokens += len(names)
	}
	return len(f.repos) == 0 && len(f.teams) == 0 && len(f.grants) == 0 &&
		len(f.secrets) == 0 && len(f.projects) == 0 && tokens == 0
}

func (f *fakePlatform) open(t *testing.T, org, repo, name string) string {
	t.Helper()
	f.mu.Lock()
	sealed, ok := f.secrets[org+"/"+repo+"/"+name]
	f.mu.Unlock()
	require.True(t, ok, "secret %s not written", name)
	plain, ok := box.OpenAnonymous(nil, sealed.Ciphertext, f.pub, f.priv)
	require.True(t, ok, "secret %s does not open", name)
	return string(plain)
}

func remoteErr(platform string, status int) error {
	return &remote.Error{Platform: platform, Method: http.MethodPost, Path: "/fake", StatusCode: status, Body: "boom"}
}

func conflictErr(platform string) error {
	return (&remote.Error{Platform: platform, Method: http.MethodPost, Path: "/fake", StatusCode: http.StatusUnprocessableEntity}).AsConflict()
}

func (f *fakePlatform) CreateRepoFromTemplate(_ context.Context, org, name string, template github.TemplateRef) (*github.Repository, error) {
	if err := f.check("CreateRepoFromTemplate"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := org + "/" + name
	if f.repos[key] {
		return nil, conflictErr(github.Platform)
	}
	f.repos[key] = true
	return &github.Repository{Name: name, FullName: key, Private: true}, nil
}

func (f *fakePlatform) EnsureTeam(_ context.Context, org, name string) (*github.Team, bool, error) {
	if err := f.check("EnsureTeam"); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	slug := github.Slug(name)
	if existing, ok := f.teams[org+"/"+slug]; ok {
		return &github.Team{Name: existing, Slug: slug}, false, nil
	}
	f.teams[org+"/"+slug] = name
	return &github.Team{Name: name, Slug: slug, Privacy: "closed"}, true, nil
}

func (f *fakePlatform) GrantTeamPermission(_ context.Context, org, slug, repo, role string) error {
	if err := f.check("GrantTeamPermission"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.teams[org+"/"+slug]; !ok || !f.repos[org+"/"+repo] {
		return remoteErr(github.Platform, http.StatusNotFound)
	}
	f.grants[org+"/"+slug+"/"+repo] = role
	f.grantCalls++
	return nil
}

func (f *fakePlatform) RevokeTeamPermission(_ context.Context, org, slug, repo string) (bool, error) {
	if err := f.check("RevokeTeamPermission"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := org + "/" + slug + "/" + repo
	_, ok := f.grants[key]
	delete(f.grants, key)
	return ok, nil
}

func (f *fakePlatform) FetchPublicKey(_ context.Context, org, repo string) (sealbox.PublicKey, error) {
	if err := f.check("FetchPublicKey"); err != nil {
		return sealbox.PublicKey{}, err
	}
	return sealbox.NewPublicKey("key-"+repo, f.pub), nil
}

func (f *fakePlatform) WriteSecret(_ context.Context, org, repo, name string, sealed sealbox.Sealed) error {
	if err := f.check("WriteSecret"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.repos[org+"/"+repo] {
		return remoteErr(github.Platform, http.StatusNotFound)
	}
	f.secrets[org+"/"+repo+"/"+name] = sealed
	return nil
}

func (f *fakePlatform) DeleteSecret(_ context.Context, org, repo, name string) (bool, error) {
	if err := f.check("DeleteSecret"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := org + "/" + repo + "/" + name
	_, ok := f.secrets[key]
	delete(f.secrets, key)
	return ok, nil
}

// DeleteRepo also drops the repository's secrets and team grants, as
// GitHub does.
func (f *fakePlatform) DeleteRepo(_ context.Context, org, name string) (bool, error) {
	if err := f.check("DeleteRepo"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := org + "/" + name
	existed := f.repos[key]
	delete(f.repos, key)
	for k := range f.secrets {
		if strings.HasPrefix(k, key+"/") {
			delete(f.secrets, k)
		}
	}
	for k := range f.grants {
		if strings.HasPrefix(k, org+"/") && strings.HasSuffix(k, "/"+name) {
			delete(f.grants, k)
		}
	}
	return existed, nil
}

func (f *fakePlatform) DeleteTeam(_ context.Context, org, slug string) (bool, error) {
	if err := f.check("DeleteTeam"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteTeamLocked(org, slug), nil
}

func (f *fakePlatform) deleteTeamLocked(org, slug string) bool {
	key := org + "/" + slug
	_, ok := f.teams[key]
	delete(f.teams, key)
	for k := range f.grants {
		if strings.HasPrefix(k, key+"/") {
			delete(f.grants, k)
		}
	}
	return ok
}

func (f *fakePlatform) DeleteTeamIfUnused(_ context.Context, org, slug string) (github.TeamDeletion, error) {
	if err := f.check("DeleteTeamIfUnused"); err != nil {
		return github.TeamAbsent, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.grants {
		if strings.HasPrefix(k, org+"/"+slug+"/") {
			return github.TeamInUse, nil
		}
	}
	if f.deleteTeamLocked(org, slug) {
		return github.TeamDeleted, nil
	}
	return github.TeamAbsent, nil
}

func (f *fakePlatform) ListRepoTeams(_ context.Context, org, repo string) ([]github.Team, error) {
	if err := f.check("ListRepoTeams"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var teams []github.Team
	for k, role := range f.grants {
		parts := strings.Split(k, "/")
		if parts[0] == org && parts[2] == repo {
			teams = append(teams, github.Team{Name: f.teams[org+"/"+parts[1]], Slug: parts[1], Permission: role})
		}
	}
	return teams, nil
}

func (f *fakePlatform) OrganizationExists(_ context.Context, org string) (bool, error) {
	if err := f.check("OrganizationExists"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unknownOrgs[org], nil
}

func (f *fakePlatform) CreateProject(_ context.Context, key, name string) (*sonarqube.Project, error) {
	if err := f.check("CreateProject"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.projects[key] {
		return nil, conflictErr(sonarqube.Platform)
	}
	f.projects[key] = true
	return &sonarqube.Project{Key: key, Name: name, Visibility: "private"}, nil
}

func (f *fakePlatform) GenerateToken(_ context.Context, projectKey string) (*secret.Value, error) {
	if err := f.check("GenerateToken"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[projectKey] = append(f.tokens[projectKey], sonarqube.TokenName(projectKey))
	return secret.FromString("squ_" + projectKey), nil
}

func (f *fakePlatform) DeleteProject(_ context.Context, key string) (bool, error) {
	if err := f.check("DeleteProject"); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	existed := f.projects[key]
	delete(f.projects, key)
	return existed, nil
}

func (f *fakePlatform) RevokeProjectTokens(_ context.Context, projectKey string) ([]string, error) {
	if err := f.check("RevokeProjectTokens"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	revoked := f.tokens[projectKey]
	delete(f.tokens, projectKey)
	return revoked, nil
}

func (f *fakePlatform) Status(context.Context) (*sonarqube.Status, error) {
	if err := f.check("Status"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.qualityDown {
		return &sonarqube.Status{Version: "10.4", Status: "STARTING"}, nil
	}
	return &sonarqube.Status{Version: "10.4", Status: "UP"}, nil
}

type failureRecord struct {
	op   Operation
	step Step
	kind ErrorKind
}

type fakeRecorder struct {
	mu            sync.Mutex
	outcomes      map[State]int
	stepFailures  []failureRecord
	compensations []Step
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{outcomes: map[State]int{}}
}

func (r *fakeRecorder) RecordOutcome(_ Operation, state State, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[state]++
}

func (r *fakeRecorder) RecordStepFailure(op Operation, step Step, kind ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepFailures = append(r.stepFailures, failureRecord{op: op, step: step, kind: kind})
}

func (r *fakeRecorder) RecordCompensationFailure(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compensations = append(r.compensations, step)
}

// fakeRepository keeps outcomes in memory, in creation order.
type fakeRepository struct {
	mu       sync.Mutex
	outcomes []*Outcome
	err      error
}

func (r *fakeRepository) Create(_ context.Context, o *Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *fakeRepository) List(_ context.Context, org, repo string, limit int) ([]*Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Outcome
	for i := len(r.outcomes) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if o := r.outcomes[i]; o.Org == org && o.Repo == repo {
			out = append(out, o)
		}
	}
	return out, nil
}

func testDescriptor(repo string) Descriptor {
	return Descriptor{
		Org:        "acme",
		Repo:       repo,
		Template:   github.TemplateRef{Owner: "acme", Repo: "service-template"},
		Team:       repo + "-write",
		Permission: permission.Write,
	}
}

func testDefaults() Defaults {
	return Defaults{
		Template:     github.TemplateRef{Owner: "acme", Repo: "service-template"},
		Permission:   permission.Write,
		MaxBatchSize: 10,
	}
}

func kinds(resources []Resource) []ResourceKind {
	var out []ResourceKind
	for _, r := range resources {
		out = append(out, r.Kind)
	}
	return out
}

func states(resources []Resource) map[string]ResourceState {
	out := make(map[string]ResourceState, len(resources))
	for _, r := range resources {
		out[fmt.Sprintf("%s:%s", r.Kind, r.Name)] = r.State
	}
	return out
}

package project

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kazz187/provisioner/internal/permission"
	"github.com/kazz187/provisioner/pkg/github"
)

const maxNameLength = 100

var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Defaults fill the optional fields of inbound requests.
type Defaults struct {
	Template     github.TemplateRef
	Permission   permission.Level
	MaxBatchSize int
}

type CreateProjectRequest struct {
	OrgName        string `json:"org_name" yaml:"org_name"`
	RepoName       string `json:"repo_name" yaml:"repo_name"`
	TeamName       string `json:"team_name" yaml:"team_name"`
	TeamPermission string `json:"team_permission,omitempty" yaml:"team_permission,omitempty"`
	TemplateOwner  string `json:"template_owner,omitempty" yaml:"template_owner,omitempty"`
	TemplateRepo   string `json:"template_repo,omitempty" yaml:"template_repo,omitempty"`
}

// CreateMultiProjectRequest names its projects either as bare repository
// names, each getting a team called "{repo}-{permission}", or as full
// project entries. Entries without an org inherit OrgName.
type CreateMultiProjectRequest struct {
	OrgName   string                 `json:"org_name" yaml:"org_name"`
	RepoNames []string               `json:"repo_names,omitempty" yaml:"repo_names,omitempty"`
	Projects  []CreateProjectRequest `json:"projects,omitempty" yaml:"projects,omitempty"`
}

type UpdateRepoPermissionRequest struct {
	OrgName       string `json:"org_name" yaml:"org_name"`
	RepoName      string `json:"repo_name" yaml:"repo_name"`
	TeamName      string `json:"team_name" yaml:"team_name"`
	NewPermission string `json:"new_permission" yaml:"new_permission"`
}

type DeleteProjectRequest struct {
	OrgName  string `json:"org_name" yaml:"org_name"`
	RepoName string `json:"repo_name" yaml:"repo_name"`
}

type DeleteMultiProjectRequest struct {
	OrgName   string   `json:"org_name" yaml:"org_name"`
	RepoNames []string `json:"repo_names" yaml:"repo_names"`
}

// PermissionGrant is a validated UpdateRepoPermissionRequest.
type PermissionGrant struct {
	Org        string
	Repo       string
	Team       string
	Permission permission.Level
}

func checkName(v *ValidationError, field, name string) {
	switch {
	case name == "":
		v.add(field, "must not be empty")
	case len(name) > maxNameLength:
		v.add(field, "must be at most %d characters", maxNameLength)
	case name == "." || name == "..":
		v.add(field, "must not be %q", name)
	case !namePattern.MatchString(name):
		v.add(field, "may only contain letters, digits, '.', '_' and '-'")
	}
}

func checkTeam(v *ValidationError, field, name string) {
	if strings.TrimSpace(name) == "" {
		v.add(field, "must not be empty")
		return
	}
	if github.Slug(name) == "" {
		v.add(field, "must contain at least one letter or digit")
	}
}

func checkPermission(v *ValidationError, field, token string, fallback permission.Level) permission.Level {
	if token == "" {
		if !fallback.Valid() {
			v.add(field, "must be set")
		}
		return fallback
	}
	level, err := permission.Parse(token)
	if err != nil {
		v.add(field, "must be one of read, triage, write, maintain, admin")
		return permission.Unspecified
	}
	return level
}

func (r CreateProjectRequest) descriptor(v *ValidationError, prefix string, defaults Defaults) Descriptor {
	d := Descriptor{
		Org:      r.OrgName,
		Repo:     r.RepoName,
		Team:     r.TeamName,
		Template: defaults.Template,
	}
	checkName(v, prefix+"org_name", d.Org)
	checkName(v, prefix+"repo_name", d.Repo)
	checkTeam(v, prefix+"team_name", d.Team)
	d.Permission = checkPermission(v, prefix+"team_permission", r.TeamPermission, defaults.Permission)

	if r.TemplateOwner != "" || r.TemplateRepo != "" {
		d.Template = github.TemplateRef{Owner: r.TemplateOwner, Repo: r.TemplateRepo}
	}
	if d.Template.Owner == "" && d.Template.Repo == "" {
		v.add(prefix+"template", "no template given and no default configured")
	} else {
		checkName(v, prefix+"template_owner", d.Template.Owner)
		checkName(v, prefix+"template_repo", d.Template.Repo)
	}
	return d
}

// Validate checks r and resolves it into a Descriptor.
func (r CreateProjectRequest) Validate(defaults Defaults) (Descriptor, error) {
	v := &ValidationError{}
	d := r.descriptor(v, "", defaults)
	return d, v.orNil()
}

// Validate checks every entry of r and resolves them into Descriptors, in
// request order. Any invalid entry rejects the whole batch.
func (r CreateMultiProjectRequest) Validate(defaults Defaults) ([]Descriptor, error) {
	v := &ValidationError{}
	var descriptors []Descriptor
	switch {
	case len(r.RepoNames) > 0 && len(r.Projects) > 0:
		v.add("projects", "must not be combined with repo_names")
	case len(r.RepoNames) > 0:
		checkName(v, "org_name", r.OrgName)
		if !defaults.Permission.Valid() {
			v.add("repo_names", "requires a configured default permission")
			break
		}
		for i, repo := range r.RepoNames {
			req := CreateProjectRequest{
				OrgName:  r.OrgName,
				RepoName: repo,
				TeamName: fmt.Sprintf("%s-%s", repo, defaults.Permission),
			}
			descriptors = append(descriptors, req.descriptor(v, fmt.Sprintf("repo_names[%d].", i), defaults))
		}
	case len(r.Projects) > 0:
		for i, p := range r.Projects {
			if p.OrgName == "" {
				p.OrgName = r.OrgName
			}
			descriptors = append(descriptors, p.descriptor(v, fmt.Sprintf("projects[%d].", i), defaults))
		}
	default:
		v.add("repo_names", "at least one project is required")
	}
	checkBatch(v, defaults.MaxBatchSize, len(descriptors), func(i int) string { return descriptors[i].Key() })
	if err := v.orNil(); err != nil {
		return nil, err
	}
	return descriptors, nil
}

func (r UpdateRepoPermissionRequest) Validate() (PermissionGrant, error) {
	v := &ValidationError{}
	g := PermissionGrant{Org: r.OrgName, Repo: r.RepoName, Team: r.TeamName}
	checkName(v, "org_name", g.Org)
	checkName(v, "repo_name", g.Repo)
	checkTeam(v, "team_name", g.Team)
	if r.NewPermission == "" {
		v.add("new_permission", "must not be empty")
	} else {
		g.Permission = checkPermission(v, "new_permission", r.NewPermission, permission.Unspecified)
	}
	return g, v.orNil()
}

func (r DeleteProjectRequest) Validate() error {
	v := &ValidationError{}
	checkName(v, "org_name", r.OrgName)
	checkName(v, "repo_name", r.RepoName)
	return v.orNil()
}

func (r DeleteMultiProjectRequest) Validate(maxBatchSize int) error {
	v := &ValidationError{}
	checkName(v, "org_name", r.OrgName)
	if len(r.RepoNames) == 0 {
		v.add("repo_names", "at least one repository is required")
	}
	for i, repo := range r.RepoNames {
		checkName(v, fmt.Sprintf("repo_names[%d]", i), repo)
	}
	checkBatch(v, maxBatchSize, len(r.RepoNames), func(i int) string { return Key(r.OrgName, r.RepoNames[i]) })
	return v.orNil()
}

// checkBatch enforces the size limit and org/repo uniqueness. Outcomes are
// keyed by org/repo, so a duplicate would shadow its twin.
func checkBatch(v *ValidationError, maxSize, n int, key func(int) string) {
	if maxSize > 0 && n > maxSize {
		v.add("batch", "has %d projects, at most %d are allowed", n, maxSize)
	}
	seen := make(map[string]int, n)
	for i := range n {
		k := key(i)
		if first, ok := seen[k]; ok {
			v.add("batch", "%s appears at positions %d and %d", k, first, i)
			continue
		}
		seen[k] = i
	}
}

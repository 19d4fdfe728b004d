package github

import (
	"context"
	"net/http"
	"strings"
)

type Repository struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
	Private  bool   `json:"private"`
}

// TemplateRef names the repository new repositories are generated from.
type TemplateRef struct {
	Owner string
	Repo  string
}

func (t TemplateRef) String() string {
	return t.Owner + "/" + t.Repo
}

type generateRequest struct {
	Owner              string `json:"owner"`
	Name               string `json:"name"`
	Private            bool   `json:"private"`
	IncludeAllBranches bool   `json:"include_all_branches"`
}

// CreateRepoFromTemplate generates a private repository org/name from
// template. An existing repository of that name yields an error matching
// remote.ErrConflict.
func (c *Client) CreateRepoFromTemplate(ctx context.Context, org, name string, template TemplateRef) (*Repository, error) {
	resp, err := c.do(ctx, http.MethodPost, escapePath("repos", template.Owner, template.Repo, "generate"), generateRequest{
		Owner:   org,
		Name:    name,
		Private: true,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(string(resp.Body)), "already exists") {
		return nil, resp.Err().AsConflict()
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, resp.Err()
	}
	var repo Repository
	if err := decode(resp, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// DeleteRepo removes org/name. deleted is false when it did not exist.
func (c *Client) DeleteRepo(ctx context.Context, org, name string) (deleted bool, err error) {
	return c.remove(ctx, escapePath("repos", org, name))
}

// OrganizationExists reports whether org is visible to the configured token.
func (c *Client) OrganizationExists(ctx context.Context, org string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, escapePath("orgs", org), nil)
	if err != nil {
		return false, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.OK():
		return true, nil
	}
	return false, resp.Err()
}

package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const pageSize = 100

type Team struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Privacy    string `json:"privacy,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// Slug derives the URL slug GitHub assigns to a team name.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

type createTeamRequest struct {
	Name    string `json:"name"`
	Privacy string `json:"privacy"`
}

// GetTeam returns nil without error when the team does not exist.
func (c *Client) GetTeam(ctx context.Context, org, slug string) (*Team, error) {
	resp, err := c.do(ctx, http.MethodGet, escapePath("orgs", org, "teams", slug), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if !resp.OK() {
		return nil, resp.Err()
	}
	var team Team
	if err := decode(resp, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// EnsureTeam returns the team called name, creating it as a closed team
// when missing. created is true only when this call created it. Losing a
// creation race to a concurrent caller resolves to the winner's team.
func (c *Client) EnsureTeam(ctx context.Context, org, name string) (team *Team, created bool, err error) {
	slug := Slug(name)
	if slug == "" {
		return nil, false, fmt.Errorf("github: team name %q has no valid slug", name)
	}
	team, err = c.GetTeam(ctx, org, slug)
	if err != nil || team != nil {
		return team, false, err
	}

	resp, err := c.do(ctx, http.MethodPost, escapePath("orgs", org, "teams"), createTeamRequest{
		Name:    name,
		Privacy: "closed",
	})
	if err != nil {
		return nil, false, err
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		var t Team
		if err := decode(resp, &t); err != nil {
			return nil, false, err
		}
		return &t, true, nil
	case http.StatusUnprocessableEntity:
		team, err = c.GetTeam(ctx, org, slug)
		if err != nil {
			return nil, false, err
		}
		if team == nil {
			return nil, false, resp.Err()
		}
		return team, false, nil
	}
	return nil, false, resp.Err()
}

// DeleteTeam removes the team. deleted is false when it did not exist.
func (c *Client) DeleteTeam(ctx context.Context, org, slug string) (deleted bool, err error) {
	return c.remove(ctx, escapePath("orgs", org, "teams", slug))
}

// TeamHasRepos reports whether any repository is still attached to the
// team. A missing team has none.
func (c *Client) TeamHasRepos(ctx context.Context, org, slug string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, escapePath("orgs", org, "teams", slug, "repos")+"?per_page=1", nil)
	if err != nil {
		return false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if !resp.OK() {
		return false, resp.Err()
	}
	var repos []Repository
	if err := decode(resp, &repos); err != nil {
		return false, err
	}
	return len(repos) > 0, nil
}

// TeamDeletion is the result of DeleteTeamIfUnused.
type TeamDeletion int

const (
	TeamAbsent TeamDeletion = iota
	TeamDeleted
	TeamInUse
)

// DeleteTeamIfUnused deletes the team unless a repository still
// references it.
func (c *Client) DeleteTeamIfUnused(ctx context.Context, org, slug string) (TeamDeletion, error) {
	inUse, err := c.TeamHasRepos(ctx, org, slug)
	if err != nil {
		return TeamAbsent, err
	}
	if inUse {
		return TeamInUse, nil
	}
	deleted, err := c.DeleteTeam(ctx, org, slug)
	if err != nil || !deleted {
		return TeamAbsent, err
	}
	return TeamDeleted, nil
}

// ListRepoTeams returns every team with access to org/repo. A missing
// repository has no teams.
func (c *Client) ListRepoTeams(ctx context.Context, org, repo string) ([]Team, error) {
	var all []Team
	for page := 1; ; page++ {
		resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s?per_page=%d&page=%d", escapePath("repos", org, repo, "teams"), pageSize, page), nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusNotFound {
			return all, nil
		}
		if !resp.OK() {
			return nil, resp.Err()
		}
		var teams []Team
		if err := decode(resp, &teams); err != nil {
			return nil, err
		}
		all = append(all, teams...)
		if len(teams) < pageSize {
			return all, nil
		}
	}
}

type permissionRequest struct {
	Permission string `json:"permission"`
}

// GrantTeamPermission sets the team's role on org/repo. role is a GitHub
// role name (pull, triage, push, maintain, admin). Granting the current
// role again is a no-op on GitHub's side.
func (c *Client) GrantTeamPermission(ctx context.Context, org, slug, repo, role string) error {
	_, err := c.expect(ctx, http.MethodPut, escapePath("orgs", org, "teams", slug, "repos", org, repo),
		permissionRequest{Permission: role}, nil, http.StatusNoContent, http.StatusOK)
	return err
}

// RevokeTeamPermission detaches org/repo from the team. revoked is false
// when there was nothing to detach.
func (c *Client) RevokeTeamPermission(ctx context.Context, org, slug, repo string) (revoked bool, err error) {
	return c.remove(ctx, escapePath("orgs", org, "teams", slug, "repos", org, repo))
}

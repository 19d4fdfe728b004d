package sonarqube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kazz187/provisioner/pkg/secret"
)

const projectAnalysisToken = "PROJECT_ANALYSIS_TOKEN"

// GenerateToken issues the project's analysis token. The platform never
// returns a token again after this call, so the caller owns the only copy.
func (c *Client) GenerateToken(ctx context.Context, projectKey string) (*secret.Value, error) {
	resp, err := c.post(ctx, "/api/user_tokens/generate", url.Values{
		"name":       {TokenName(projectKey)},
		"type":       {projectAnalysisToken},
		"projectKey": {projectKey},
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err()
	}
	var body struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	}
	err = decode(resp, &body)
	clear(resp.Body)
	if err != nil {
		return nil, err
	}
	token := secret.FromString(body.Token)
	if token.IsZero() {
		return nil, fmt.Errorf("sonarqube: token response for %q carried no token", projectKey)
	}
	return token, nil
}

type userToken struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	ProjectKey string `json:"projectKey,omitempty"`
}

func (c *Client) searchTokens(ctx context.Context) ([]userToken, error) {
	resp, err := c.get(ctx, "/api/user_tokens/search", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, resp.Err()
	}
	var body struct {
		UserTokens []userToken `json:"userTokens"`
	}
	if err := decode(resp, &body); err != nil {
		return nil, err
	}
	return body.UserTokens, nil
}

// RevokeProjectTokens revokes every token of the calling user whose name
// starts with "{projectKey}_" and returns the names revoked. Each
// revocation is attempted even if an earlier one failed.
func (c *Client) RevokeProjectTokens(ctx context.Context, projectKey string) ([]string, error) {
	tokens, err := c.searchTokens(ctx)
	if err != nil {
		return nil, err
	}
	prefix := projectKey + "_"
	var (
		revoked []string
		errs    []error
	)
	for _, token := range tokens {
		if !strings.HasPrefix(token.Name, prefix) {
			continue
		}
		resp, err := c.post(ctx, "/api/user_tokens/revoke", url.Values{"name": {token.Name}})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !resp.OK() && resp.StatusCode != http.StatusNotFound {
			errs = append(errs, resp.Err())
			continue
		}
		revoked = append(revoked, token.Name)
	}
	return revoked, errors.Join(errs...)
}

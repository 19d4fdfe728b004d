package github

import (
	"context"
	"net/http"

	"github.com/kazz187/provisioner/pkg/sealbox"
)

type publicKeyResponse struct {
	KeyID string `json:"key_id"`
	Key   string `json:"key"`
}

// FetchPublicKey returns the repository's Actions secret encryption key.
// A malformed key fails with sealbox.ErrSealing.
func (c *Client) FetchPublicKey(ctx context.Context, org, repo string) (sealbox.PublicKey, error) {
	var body publicKeyResponse
	if _, err := c.expect(ctx, http.MethodGet, escapePath("repos", org, repo, "actions", "secrets", "public-key"), nil, &body, http.StatusOK); err != nil {
		return sealbox.PublicKey{}, err
	}
	return sealbox.ParsePublicKey(body.KeyID, body.Key)
}

type writeSecretRequest struct {
	EncryptedValue string `json:"encrypted_value"`
	KeyID          string `json:"key_id"`
}

// WriteSecret creates or overwrites the Actions secret name.
func (c *Client) WriteSecret(ctx context.Context, org, repo, name string, sealed sealbox.Sealed) error {
	_, err := c.expect(ctx, http.MethodPut, escapePath("repos", org, repo, "actions", "secrets", name), writeSecretRequest{
		EncryptedValue: sealed.EncryptedValue(),
		KeyID:          sealed.KeyID,
	}, nil, http.StatusCreated, http.StatusNoContent)
	return err
}

// DeleteSecret removes the Actions secret name. deleted is false when it
// did not exist.
func (c *Client) DeleteSecret(ctx context.Context, org, repo, name string) (deleted bool, err error) {
	return c.remove(ctx, escapePath("repos", org, repo, "actions", "secrets", name))
}

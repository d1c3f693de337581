package authsdk

import (
	"context"
	"net/http"
)

// GetJWKS retrieves a tenant's public JSON Web Key Set for verifying ID
// tokens, access tokens and JARM responses.
func (c *SDKClient) GetJWKS(ctx context.Context, tenantID string) (*JWKSResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, tenantPath(tenantID, JWKSPath), nil, nil)
	if err != nil {
		return nil, err
	}

	var jwks JWKSResponse
	if err := decodeJSON(resp, &jwks, http.StatusOK); err != nil {
		return nil, err
	}

	return &jwks, nil
}

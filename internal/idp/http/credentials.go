package http

import (
	"crypto/x509"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/idp/internal/idp/clientauth"
)

// credentials collects the client authentication material of r. Basic
// credentials are form-urlencoded per RFC 6749 2.3.1.
func credentials(r *http.Request, params map[string]string) clientauth.Credentials {
	id, secret, hasBasic := r.BasicAuth()
	if hasBasic {
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
	}

	var cert *x509.Certificate
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		cert = r.TLS.PeerCertificates[0]
	}
	return clientauth.FromParams(params, id, secret, hasBasic, cert)
}

package authsdk

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCEChallenge(t *testing.T) {
	t.Parallel()

	pkce, err := GeneratePKCEChallenge()
	require.NoError(t, err)
	require.NotNil(t, pkce)
	require.NotEmpty(t, pkce.Verifier)
	require.Equal(t, "S256", pkce.Method)

	hash := sha256.Sum256([]byte(pkce.Verifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(hash[:]), pkce.Challenge)

	params := url.Values{}
	pkce.Apply(params)
	require.Equal(t, pkce.Challenge, params.Get("code_challenge"))
	require.Equal(t, "S256", params.Get("code_challenge_method"))
}

func TestBuildAuthorizeURL(t *testing.T) {
	t.Parallel()

	client := NewSDKClient("https://idp.example.com/")
	got := client.BuildAuthorizeURL("tenant-a", url.Values{
		"response_type": {"code"},
		"client_id":     {"app"},
	})
	require.Equal(t, "https://idp.example.com/tenant-a/authorizations?client_id=app&response_type=code", got)
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	t.Run("interaction required", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/t1/authorizations", r.URL.Path)
			require.Equal(t, "app", r.URL.Query().Get("client_id"))
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(AuthorizationResponse{Status: "OK", RequestID: "req-1"})
		}))
		t.Cleanup(srv.Close)

		out, err := NewSDKClient(srv.URL).Authorize(t.Context(), "t1", url.Values{"client_id": {"app"}})
		require.NoError(t, err)
		require.NotNil(t, out.Interaction)
		require.Equal(t, "req-1", out.Interaction.RequestID)
		require.Empty(t, out.Location)
	})

	t.Run("redirect is not followed", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://app.example.com/cb?error=login_required", http.StatusFound)
		}))
		t.Cleanup(srv.Close)

		out, err := NewSDKClient(srv.URL).Authorize(t.Context(), "t1", url.Values{"prompt": {"none"}})
		require.NoError(t, err)
		require.Nil(t, out.Interaction)
		require.Equal(t, "https://app.example.com/cb?error=login_required", out.Location)
	})

	t.Run("error response", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ErrUnknownTenant.WriteError(w)
		}))
		t.Cleanup(srv.Close)

		_, err := NewSDKClient(srv.URL).Authorize(t.Context(), "nope", url.Values{})
		var oerr *OAuth2Error
		require.ErrorAs(t, err, &oerr)
		require.Equal(t, http.StatusNotFound, oerr.StatusCode)
	})
}

func TestInteractKeepsAuthSessionCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/t1/authorizations":
			http.SetCookie(w, &http.Cookie{Name: "IDP_AUTH_SESSION", Value: "browser-1", Path: "/t1/"})
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(AuthorizationResponse{Status: "OK", RequestID: "req-1"})
		case "/t1/authorizations/req-1/password-authentication":
			c, err := r.Cookie("IDP_AUTH_SESSION")
			if err != nil || c.Value != "browser-1" {
				ErrUnauthorizedSession.WriteError(w)
				return
			}
			require.NoError(t, r.ParseForm())
			w.Header().Set("Content-Type", "application/json")
			if r.PostForm.Get("password") != "secret" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(InteractionResponse{Outcome: "PENDING", Error: "invalid_credentials"})
				return
			}
			_ = json.NewEncoder(w).Encode(InteractionResponse{Outcome: "SUCCESS", Location: "https://app.example.com/cb?code=abc"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	client := NewSDKClient(srv.URL)
	_, err := client.Authorize(t.Context(), "t1", url.Values{})
	require.NoError(t, err)

	res, err := client.Interact(t.Context(), "t1", "req-1", "password-authentication", url.Values{"password": {"wrong"}})
	var oerr *OAuth2Error
	require.ErrorAs(t, err, &oerr)
	require.Equal(t, "invalid_credentials", oerr.Code)
	require.Equal(t, "PENDING", res.Outcome)

	res, err = client.Interact(t.Context(), "t1", "req-1", "password-authentication", url.Values{"password": {"secret"}})
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", res.Outcome)
	require.Equal(t, "https://app.example.com/cb?code=abc", res.Location)
}

func TestClientAuth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		auth  ClientAuth
		check func(t *testing.T, r *http.Request)
	}{
		{
			name: "form post",
			auth: ClientAuth{ClientID: "app", ClientSecret: "s3cret"},
			check: func(t *testing.T, r *http.Request) {
				require.Equal(t, "app", r.PostForm.Get("client_id"))
				require.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
			},
		},
		{
			name: "basic",
			auth: ClientAuth{ClientID: "app", ClientSecret: "s3cret", Basic: true},
			check: func(t *testing.T, r *http.Request) {
				id, secret, ok := r.BasicAuth()
				require.True(t, ok)
				require.Equal(t, "app", id)
				require.Equal(t, "s3cret", secret)
				require.Empty(t, r.PostForm.Get("client_secret"))
			},
		},
		{
			name: "assertion",
			auth: ClientAuth{ClientID: "app", Assertion: "eyJ.x.y"},
			check: func(t *testing.T, r *http.Request) {
				require.Equal(t, "eyJ.x.y", r.PostForm.Get("client_assertion"))
				require.Equal(t, "urn:ietf:params:oauth:client-assertion-type:jwt-bearer", r.PostForm.Get("client_assertion_type"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/t1/par", r.URL.Path)
				require.NoError(t, r.ParseForm())
				tt.check(t, r)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(PushedAuthorizationResponse{RequestURI: "urn:ietf:params:oauth:request_uri:par_1", ExpiresIn: 90})
			}))
			t.Cleanup(srv.Close)

			pushed, err := NewSDKClient(srv.URL).PushAuthorizationRequest(t.Context(), "t1", tt.auth, url.Values{"scope": {"openid"}})
			require.NoError(t, err)
			require.Equal(t, int64(90), pushed.ExpiresIn)
		})
	}
}

func TestPollCIBAToken(t *testing.T) {
	t.Parallel()

	t.Run("pending then tokens", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			require.Equal(t, CIBAGrantType, r.PostForm.Get("grant_type"))
			require.Equal(t, "req-1", r.PostForm.Get("auth_req_id"))
			if calls.Add(1) < 3 {
				NewOAuth2Error(http.StatusBadRequest, ErrorCodeAuthorizationPending, "pending").WriteError(w)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "at", TokenType: "Bearer", ExpiresIn: 3600})
		}))
		t.Cleanup(srv.Close)

		tokens, err := NewSDKClient(srv.URL).PollCIBAToken(t.Context(), "t1", ClientAuth{ClientID: "poller"}, "req-1", time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, "at", tokens.AccessToken)
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("access denied stops polling", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			NewOAuth2Error(http.StatusBadRequest, ErrorCodeAccessDenied, "denied").WriteError(w)
		}))
		t.Cleanup(srv.Close)

		_, err := NewSDKClient(srv.URL).PollCIBAToken(t.Context(), "t1", ClientAuth{ClientID: "poller"}, "req-1", time.Millisecond)
		var oerr *OAuth2Error
		require.True(t, errors.As(err, &oerr))
		require.Equal(t, ErrorCodeAccessDenied, oerr.Code)
		require.Equal(t, int32(1), calls.Load())
	})
}

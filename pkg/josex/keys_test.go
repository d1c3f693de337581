package josex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJWKSRoundTrip(t *testing.T) {
	t.Parallel()

	private, err := GenerateJWKS(KeySpec{Alg: "ES256"}, KeySpec{Alg: "RSA-OAEP", Use: "enc", RSABits: 2048})
	require.NoError(t, err)

	raw, err := MarshalJWKS(private)
	require.NoError(t, err)

	parsed, err := ParseJWKS(raw)
	require.NoError(t, err)
	require.Len(t, parsed.Keys, 2)
	require.False(t, parsed.Keys[0].IsPublic())

	public := PublicJWKS(parsed)
	require.Len(t, public.Keys, 2)
	for _, k := range public.Keys {
		require.True(t, k.IsPublic())
	}

	enc, err := SelectKey(public, "", "RSA-OAEP", "enc")
	require.NoError(t, err)
	require.Equal(t, "enc", enc.Use)

	_, err = SelectKey(public, "", "RSA-OAEP", "sig")
	require.ErrorIs(t, err, ErrNoKey)

	_, err = ParseJWKS("")
	require.ErrorIs(t, err, ErrInvalid)
}

func TestSelectKeyPrefersKid(t *testing.T) {
	t.Parallel()

	set, err := GenerateJWKS(KeySpec{Alg: "ES256"}, KeySpec{Alg: "ES256"})
	require.NoError(t, err)

	second := set.Keys[1].KeyID
	k, err := SelectKey(set, second, "ES256", "sig")
	require.NoError(t, err)
	require.Equal(t, second, k.KeyID)

	k, err = SelectKey(set, "", "ES256", "sig")
	require.NoError(t, err)
	require.Equal(t, set.Keys[0].KeyID, k.KeyID)
}

func TestJWKSFetcherCachesAndCollapses(t *testing.T) {
	t.Parallel()

	set, err := GenerateJWKS(KeySpec{Alg: "ES256"})
	require.NoError(t, err)
	raw, err := MarshalJWKS(PublicJWKS(set))
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
	}))
	t.Cleanup(srv.Close)

	f := NewJWKSFetcher(srv.Client(), time.Minute)
	for range 3 {
		got, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Len(t, got.Keys, 1)
	}
	require.Equal(t, int32(1), hits.Load())

	_, err = f.Fetch(context.Background(), srv.URL+"/missing\x7f")
	require.ErrorIs(t, err, ErrInvalid)
}

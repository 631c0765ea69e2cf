package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		var err error
		testKey, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
	})
	return testKey
}

// keyServer serves a key set holding one RSA key and counts fetches. The
// advertised key id can be changed to simulate rotation.
type keyServer struct {
	*httptest.Server
	hits int32

	mu  sync.Mutex
	kid string
}

func (s *keyServer) rotate(kid string) {
	s.mu.Lock()
	s.kid = kid
	s.mu.Unlock()
}

func (s *keyServer) fetches() int32 {
	return atomic.LoadInt32(&s.hits)
}

func certsServer(t *testing.T, kid string, key *rsa.PublicKey) *keyServer {
	t.Helper()
	ks := &keyServer{kid: kid}
	ks.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ks.hits, 1)
		ks.mu.Lock()
		kid := ks.kid
		ks.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": kid,
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	t.Cleanup(ks.Close)
	return ks
}

func signToken(t *testing.T, kid string, c claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(signingKey(t))
	require.NoError(t, err)
	return s
}

func validClaims() claims {
	return claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{"aud-1"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
}

func TestVerify_Valid(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)
	v := NewVerifier(srv.URL, "aud-1")

	id, err := v.Verify(context.Background(), signToken(t, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
}

func TestVerify_Failures(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	forged.Header["kid"] = "k1"
	forgedToken, err := forged.SignedString(otherKey)
	require.NoError(t, err)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noEmail := validClaims()
	noEmail.Email = ""

	wrongAud := validClaims()
	wrongAud.Audience = jwt.ClaimStrings{"someone-else"}

	noAud := validClaims()
	noAud.Audience = nil

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "missing", token: "", wantErr: ErrMissingToken},
		{name: "garbage", token: "not.a.jwt"},
		{name: "unknown kid", token: signToken(t, "k2", validClaims()), wantErr: ErrKeyNotFound},
		{name: "bad signature", token: forgedToken},
		{name: "expired", token: signToken(t, "k1", expired)},
		{name: "no email", token: signToken(t, "k1", noEmail), wantErr: ErrMissingEmail},
		{name: "wrong audience", token: signToken(t, "k1", wrongAud), wantErr: ErrInvalidAudience},
		{name: "no audience", token: signToken(t, "k1", noAud), wantErr: ErrInvalidAudience},
	}

	v := NewVerifier(srv.URL, "aud-1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerify_RejectsHS256(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)
	v := NewVerifier(srv.URL, "aud-1")

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	tok.Header["kid"] = "k1"
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), s)
	require.Error(t, err)
}

func TestVerify_KeySetUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewVerifier(srv.URL, "aud-1")
	_, err := v.Verify(context.Background(), signToken(t, "k1", validClaims()))
	assert.ErrorIs(t, err, ErrKeySetUnavailable)
}

func TestVerify_EmptyAudienceRejectsEverything(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)
	v := NewVerifier(srv.URL, "")

	_, err := v.Verify(context.Background(), signToken(t, "k1", validClaims()))
	assert.ErrorIs(t, err, ErrInvalidAudience)
}

func TestVerify_KeySetCaching(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)
	token := signToken(t, "k1", validClaims())

	uncached := NewVerifier(srv.URL, "aud-1", WithKeySetTTL(0))
	for i := 0; i < 3; i++ {
		_, err := uncached.Verify(context.Background(), token)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), srv.fetches())

	atomic.StoreInt32(&srv.hits, 0)
	cached := NewVerifier(srv.URL, "aud-1", WithKeySetTTL(time.Minute))
	t.Cleanup(cached.Close)
	for i := 0; i < 3; i++ {
		_, err := cached.Verify(context.Background(), token)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), srv.fetches())
}

func TestVerify_RefetchesKeySetOnUnknownKid(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)
	v := NewVerifier(srv.URL, "aud-1", WithKeySetTTL(time.Hour))
	t.Cleanup(v.Close)

	_, err := v.Verify(context.Background(), signToken(t, "k1", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.fetches())

	srv.rotate("k2")
	id, err := v.Verify(context.Background(), signToken(t, "k2", validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, int32(2), srv.fetches())
}

func TestMiddleware(t *testing.T) {
	srv := certsServer(t, "k1", &signingKey(t).PublicKey)
	v := NewVerifier(srv.URL, "aud-1")

	h := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := FromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(id.Email))
	}))

	t.Run("rejects missing assertion", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "Unauthorized")
	})

	t.Run("passes identity through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
		req.Header.Set(HeaderName, signToken(t, "k1", validClaims()))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice@example.com", rec.Body.String())
	})
}

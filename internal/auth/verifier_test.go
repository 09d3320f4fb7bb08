package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-florist/internal/common"
)

const testSecret = "super-secret-key"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(VerifierConfig{
		Secret:   testSecret,
		Issuer:   "backend-florist",
		Audience: "florist-storefront",
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return v
}

func signToken(t *testing.T, alg jwa.SignatureAlgorithm, key any, mutate func(*jwt.Builder) *jwt.Builder) string {
	t.Helper()
	b := jwt.NewBuilder().
		Subject("user-1").
		Issuer("backend-florist").
		Audience([]string{"florist-storefront"}).
		IssuedAt(fixedNow).
		NotBefore(fixedNow).
		Expiration(fixedNow.Add(15 * time.Minute))
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(alg, key))
	require.NoError(t, err)
	return string(signed)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier(VerifierConfig{Secret: "  "})
	require.Error(t, err)
}

func TestParseAccessToken(t *testing.T) {
	v := newTestVerifier(t)
	subject, err := v.ParseAccessToken(signToken(t, jwa.HS256, []byte(testSecret), nil))
	require.NoError(t, err)
	require.Equal(t, "user-1", subject)
}

func TestParseAccessTokenRejections(t *testing.T) {
	v := newTestVerifier(t)
	cases := map[string]string{
		"wrong key":       signToken(t, jwa.HS256, []byte("other-secret"), nil),
		"wrong algorithm": signToken(t, jwa.HS512, []byte(testSecret), nil),
		"expired": signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
			return b.Expiration(fixedNow.Add(-time.Hour))
		}),
		"wrong issuer": signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
			return b.Issuer("someone-else")
		}),
		"wrong audience": signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
			return b.Audience([]string{"admin"})
		}),
		"not yet valid": signToken(t, jwa.HS256, []byte(testSecret), func(b *jwt.Builder) *jwt.Builder {
			return b.NotBefore(fixedNow.Add(10 * time.Minute))
		}),
		"garbage": "not-a-token",
		"empty":   "",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ParseAccessToken(token)
			require.Error(t, err)
			appErr := common.AsAppError(err)
			require.NotNil(t, appErr)
			require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
		})
	}
}

func TestTokenValidatorRequiresSubject(t *testing.T) {
	tok, err := jwt.NewBuilder().Issuer("backend-florist").Expiration(fixedNow.Add(time.Minute)).Build()
	require.NoError(t, err)
	err = TokenValidator{Algorithm: jwa.HS256}.Validate(tok, jwa.HS256, fixedNow)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	mw := Middleware{Verifier: newTestVerifier(t), AccessCookie: "access_token"}
	valid := signToken(t, jwa.HS256, []byte(testSecret), nil)

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := common.UserID(r.Context())
		_, _ = w.Write([]byte(id))
	})

	t.Run("authenticate is optional", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.Authenticate(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Body.String())
	})

	t.Run("authenticate sets user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		rec := httptest.NewRecorder()
		mw.Authenticate(echo).ServeHTTP(rec, req)
		require.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("require auth rejects missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.RequireAuth(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Contains(t, rec.Body.String(), `"succeeded":false`)
		require.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("require auth accepts cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "access_token", Value: valid})
		rec := httptest.NewRecorder()
		mw.RequireAuth(echo).ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "user-1", rec.Body.String())
	})

	t.Run("require auth after authenticate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+valid)
		rec := httptest.NewRecorder()
		mw.Authenticate(mw.RequireAuth(echo)).ServeHTTP(rec, req)
		require.Equal(t, "user-1", rec.Body.String())
	})
}

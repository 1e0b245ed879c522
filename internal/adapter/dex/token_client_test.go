package dex_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/dexgate/internal/adapter/dex"
	"github.com/smallbiznis/dexgate/internal/config"
	authdomain "github.com/smallbiznis/dexgate/internal/domain/auth"
)

func TestExchangeSuccess(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"code":          r.PostFormValue("code"),
			"redirect_uri":  r.PostFormValue("redirect_uri"),
			"client_id":     r.PostFormValue("client_id"),
			"code_verifier": r.PostFormValue("code_verifier"),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "rt-1",
			"id_token":      "idt-1",
		})
	}))
	defer srv.Close()

	client := dex.NewClient(config.DexAppConfig{
		ClientID:                "dexgate",
		ClientSecret:            "shh",
		TokenURL:                srv.URL,
		RedirectURL:             "https://auth.example.com/auth/callback",
		SkipIDTokenVerification: true,
	}, srv.Client())

	tokens, err := client.Exchange(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	require.Equal(t, "at-1", tokens.AccessToken)
	require.Equal(t, "idt-1", tokens.IDToken)
	require.EqualValues(t, 3600, tokens.ExpiresIn)

	require.Equal(t, "authorization_code", gotForm["grant_type"])
	require.Equal(t, "code-1", gotForm["code"])
	require.Equal(t, "verifier-1", gotForm["code_verifier"])
	require.Equal(t, "dexgate", gotForm["client_id"])
}

func TestExchangeProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	client := dex.NewClient(config.DexAppConfig{
		TokenURL:                srv.URL,
		SkipIDTokenVerification: true,
	}, srv.Client())

	_, err := client.Exchange(context.Background(), "used-code", "")
	require.ErrorIs(t, err, authdomain.ErrTokenExchangeFailed)

	var exchangeErr *dex.ExchangeError
	require.ErrorAs(t, err, &exchangeErr)
	require.Equal(t, http.StatusBadRequest, exchangeErr.StatusCode)
}

func TestExchangeRequiresIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-1","token_type":"bearer"}`))
	}))
	defer srv.Close()

	client := dex.NewClient(config.DexAppConfig{
		TokenURL:                srv.URL,
		SkipIDTokenVerification: true,
	}, srv.Client())

	_, err := client.Exchange(context.Background(), "code-1", "")
	require.ErrorIs(t, err, authdomain.ErrTokenExchangeFailed)
}

type signingFixture struct {
	key    *rsa.PrivateKey
	signer jose.Signer
	jwks   *httptest.Server
}

func newSigningFixture(t *testing.T) *signingFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithHeader("kid", "test-key"),
	)
	require.NoError(t, err)

	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     "test-key",
			Algorithm: "RS256",
			Use:       "sig",
		}}})
	}))
	t.Cleanup(jwks.Close)

	return &signingFixture{key: key, signer: signer, jwks: jwks}
}

func (f *signingFixture) sign(t *testing.T, std josejwt.Claims, extra map[string]any) string {
	t.Helper()
	builder := josejwt.Signed(f.signer).Claims(std)
	if extra != nil {
		builder = builder.Claims(extra)
	}
	raw, err := builder.Serialize()
	require.NoError(t, err)
	return raw
}

func TestParseIDTokenVerified(t *testing.T) {
	f := newSigningFixture(t)
	now := time.Now()

	idToken := f.sign(t, josejwt.Claims{
		Issuer:   "https://dex.example.com",
		Subject:  "okta|user-7",
		Audience: josejwt.Audience{"dexgate"},
		Expiry:   josejwt.NewNumericDate(now.Add(time.Hour)),
		IssuedAt: josejwt.NewNumericDate(now),
	}, map[string]any{
		"nonce":          "nonce-1",
		"email":          "jamie@example.com",
		"email_verified": true,
		"name":           "Jamie",
	})

	client := dex.NewClient(config.DexAppConfig{
		ClientID:  "dexgate",
		IssuerURL: "https://dex.example.com",
		JWKSURL:   f.jwks.URL,
	}, f.jwks.Client())

	claims, err := client.ParseIDToken(context.Background(), idToken)
	require.NoError(t, err)
	require.Equal(t, "okta|user-7", claims.Subject)
	require.Equal(t, "nonce-1", claims.Nonce)
	require.Equal(t, "jamie@example.com", claims.Email)
	require.True(t, claims.EmailVerified)
}

func TestParseIDTokenRejectsWrongKey(t *testing.T) {
	f := newSigningFixture(t)
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rogueSigner, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: rogue},
		(&jose.SignerOptions{}).WithHeader("kid", "test-key"),
	)
	require.NoError(t, err)

	raw, err := josejwt.Signed(rogueSigner).Claims(josejwt.Claims{
		Issuer:   "https://dex.example.com",
		Subject:  "sub-1",
		Audience: josejwt.Audience{"dexgate"},
		Expiry:   josejwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).Serialize()
	require.NoError(t, err)

	client := dex.NewClient(config.DexAppConfig{
		ClientID:  "dexgate",
		IssuerURL: "https://dex.example.com",
		JWKSURL:   f.jwks.URL,
	}, f.jwks.Client())

	_, err = client.ParseIDToken(context.Background(), raw)
	require.Error(t, err)
}

func TestParseIDTokenRejectsWrongIssuer(t *testing.T) {
	f := newSigningFixture(t)

	idToken := f.sign(t, josejwt.Claims{
		Issuer:   "https://evil.example.com",
		Subject:  "sub-1",
		Audience: josejwt.Audience{"dexgate"},
		Expiry:   josejwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, nil)

	client := dex.NewClient(config.DexAppConfig{
		ClientID:  "dexgate",
		IssuerURL: "https://dex.example.com",
		JWKSURL:   f.jwks.URL,
	}, f.jwks.Client())

	_, err := client.ParseIDToken(context.Background(), idToken)
	require.ErrorIs(t, err, josejwt.ErrInvalidIssuer)
}

func TestParseIDTokenRejectsExpired(t *testing.T) {
	f := newSigningFixture(t)

	idToken := f.sign(t, josejwt.Claims{
		Issuer:   "https://dex.example.com",
		Subject:  "sub-1",
		Audience: josejwt.Audience{"dexgate"},
		Expiry:   josejwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, nil)

	client := dex.NewClient(config.DexAppConfig{
		ClientID:  "dexgate",
		IssuerURL: "https://dex.example.com",
		JWKSURL:   f.jwks.URL,
	}, f.jwks.Client())

	_, err := client.ParseIDToken(context.Background(), idToken)
	require.Error(t, err)
}

func TestVerifyNonce(t *testing.T) {
	claims := &authdomain.IDTokenClaims{Nonce: "nonce-1"}

	require.NoError(t, dex.VerifyNonce(claims, "nonce-1"))
	require.ErrorIs(t, dex.VerifyNonce(claims, "nonce-2"), authdomain.ErrNonceMismatch)
	// An empty expected nonce never passes.
	require.ErrorIs(t, dex.VerifyNonce(&authdomain.IDTokenClaims{}, ""), authdomain.ErrNonceMismatch)
}

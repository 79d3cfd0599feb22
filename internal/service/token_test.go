package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/repository"
)

type fakeOAuth struct {
	grants   int
	meCalls  int
	response *meli.TokenResponse
	userID   int64
}

func (f *fakeOAuth) OAuthGrant(ctx context.Context, grantType, clientID, clientSecret, credential, redirectURI string) (*meli.TokenResponse, error) {
	f.grants++
	return f.response, nil
}

func (f *fakeOAuth) Me(ctx context.Context) (*meli.User, error) {
	f.meCalls++
	return &meli.User{ID: f.userID}, nil
}

func newTestTokenService(store *repository.MemoryStore, oauth *fakeOAuth) *TokenService {
	s := NewTokenService(store.Properties(), "client-id", "client-secret", "https://example.com/oauth/callback")
	s.SetOAuthClient(oauth)
	return s
}

func seedTokens(t *testing.T, store *repository.MemoryStore, access, refresh string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	props := store.Properties()
	if err := props.Set(ctx, PropAccessToken, access); err != nil {
		t.Fatal(err)
	}
	if err := props.Set(ctx, PropRefreshToken, refresh); err != nil {
		t.Fatal(err)
	}
	if err := props.Set(ctx, PropExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10)); err != nil {
		t.Fatal(err)
	}
}

func TestAccessTokenValidTokenSkipsRefresh(t *testing.T) {
	store := repository.NewMemoryStore()
	oauth := &fakeOAuth{}
	s := newTestTokenService(store, oauth)
	seedTokens(t, store, "APP-valid", "TG-1", time.Now().Add(1*time.Hour))

	token, err := s.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "APP-valid" {
		t.Fatalf("expected stored token, got %q", token)
	}
	if oauth.grants != 0 {
		t.Fatalf("valid token must not refresh, grants=%d", oauth.grants)
	}
}

func TestAccessTokenRefreshesInsideBuffer(t *testing.T) {
	store := repository.NewMemoryStore()
	oauth := &fakeOAuth{response: &meli.TokenResponse{
		AccessToken:  "APP-new",
		RefreshToken: "TG-2",
		ExpiresIn:    21600,
	}}
	s := newTestTokenService(store, oauth)
	// Expires in 2 minutes, inside the 5-minute refresh buffer.
	seedTokens(t, store, "APP-stale", "TG-1", time.Now().Add(2*time.Minute))

	token, err := s.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "APP-new" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if oauth.grants != 1 {
		t.Fatalf("expected exactly 1 refresh grant, got %d", oauth.grants)
	}

	// The refreshed tokens must be durable.
	ctx := context.Background()
	if got, _ := store.Properties().Get(ctx, PropRefreshToken); got != "TG-2" {
		t.Fatalf("expected rotated refresh token persisted, got %q", got)
	}
	raw, _ := store.Properties().Get(ctx, PropExpiresAt)
	expiresAt, _ := strconv.ParseInt(raw, 10, 64)
	if expiresAt <= time.Now().Add(5*time.Hour).UnixMilli() {
		t.Fatalf("expected ~6h expiry persisted, got %d", expiresAt)
	}

	// A second call inside the fresh window must not refresh again.
	if _, err := s.AccessToken(ctx); err != nil {
		t.Fatalf("second AccessToken failed: %v", err)
	}
	if oauth.grants != 1 {
		t.Fatalf("expected no further grants, got %d", oauth.grants)
	}
}

func TestAccessTokenFallsBackToStaleWithoutRefreshToken(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestTokenService(store, &fakeOAuth{})
	seedTokens(t, store, "APP-stale", "", time.Now().Add(-1*time.Hour))

	token, err := s.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken failed: %v", err)
	}
	if token != "APP-stale" {
		t.Fatalf("expected stale fallback token, got %q", token)
	}
}

func TestAccessTokenWithoutAnyCredentialsFails(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newTestTokenService(store, &fakeOAuth{})

	_, err := s.AccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error with empty property store")
	}
	if meli.KindOf(err) != meli.KindAuth {
		t.Fatalf("expected KindAuth, got %v", meli.KindOf(err))
	}
}

func TestExchangeCodePersistsTokens(t *testing.T) {
	store := repository.NewMemoryStore()
	oauth := &fakeOAuth{response: &meli.TokenResponse{
		AccessToken:  "APP-first",
		RefreshToken: "TG-first",
		ExpiresIn:    21600,
	}}
	s := newTestTokenService(store, oauth)
	ctx := context.Background()

	if err := s.ExchangeCode(ctx, "AUTH-CODE"); err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}
	if got, _ := store.Properties().Get(ctx, PropAccessToken); got != "APP-first" {
		t.Fatalf("expected access token persisted, got %q", got)
	}
	if got, _ := store.Properties().Get(ctx, PropRefreshToken); got != "TG-first" {
		t.Fatalf("expected refresh token persisted, got %q", got)
	}
}

func TestSellerIDResolvedOnceThenCached(t *testing.T) {
	store := repository.NewMemoryStore()
	oauth := &fakeOAuth{userID: 987654}
	s := newTestTokenService(store, oauth)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := s.SellerID(ctx)
		if err != nil {
			t.Fatalf("SellerID call %d failed: %v", i, err)
		}
		if id != 987654 {
			t.Fatalf("expected 987654, got %d", id)
		}
	}
	if oauth.meCalls != 1 {
		t.Fatalf("expected one /users/me call, got %d", oauth.meCalls)
	}
}

package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"meli-stock-audit/internal/meli"
	"meli-stock-audit/internal/model"
	"meli-stock-audit/internal/repository"
)

// Property store keys for the token lifecycle.
const (
	PropAccessToken  = "ML_ACCESS_TOKEN"
	PropRefreshToken = "ML_REFRESH_TOKEN"
	PropExpiresAt    = "ML_EXPIRES_AT"
	PropSellerID     = "SELLER_ID"

	// RefreshBuffer triggers a refresh when the token expires within it.
	RefreshBuffer = 5 * time.Minute

	// DefaultExpiresIn is assumed when the grant response omits expiry.
	DefaultExpiresIn = 21600 // seconds
)

// OAuthClient performs token grants against the marketplace.
type OAuthClient interface {
	OAuthGrant(ctx context.Context, grantType, clientID, clientSecret, credential, redirectURI string) (*meli.TokenResponse, error)
	Me(ctx context.Context) (*meli.User, error)
}

// TokenService manages the OAuth token lifecycle. The property store
// is the single source of truth, so repeated near-simultaneous
// refreshes across invocations each succeed independently with
// last-writer-wins semantics.
type TokenService struct {
	props        repository.PropertyRepository
	oauth        OAuthClient
	clientID     string
	clientSecret string
	redirectURI  string

	mu sync.Mutex
}

// NewTokenService creates a token service over the given property store.
func NewTokenService(props repository.PropertyRepository, clientID, clientSecret, redirectURI string) *TokenService {
	return &TokenService{
		props:        props,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
	}
}

// SetOAuthClient injects the grant client after construction. The API
// client and token service reference each other, so one side is wired
// post-construction.
func (s *TokenService) SetOAuthClient(oauth OAuthClient) {
	s.oauth = oauth
}

func (s *TokenService) state(ctx context.Context) (model.TokenState, error) {
	access, err := s.props.Get(ctx, PropAccessToken)
	if err != nil {
		return model.TokenState{}, err
	}
	refresh, err := s.props.Get(ctx, PropRefreshToken)
	if err != nil {
		return model.TokenState{}, err
	}
	expiresRaw, err := s.props.Get(ctx, PropExpiresAt)
	if err != nil {
		return model.TokenState{}, err
	}
	expiresAt, _ := strconv.ParseInt(expiresRaw, 10, 64)
	return model.TokenState{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

func (s *TokenService) persist(ctx context.Context, tr *meli.TokenResponse) error {
	if err := s.props.Set(ctx, PropAccessToken, tr.AccessToken); err != nil {
		return err
	}
	if tr.RefreshToken != "" {
		if err := s.props.Set(ctx, PropRefreshToken, tr.RefreshToken); err != nil {
			return err
		}
	}
	expiresIn := tr.ExpiresIn
	if expiresIn == 0 {
		expiresIn = DefaultExpiresIn
	}
	expiresAt := time.Now().UnixMilli() + expiresIn*1000
	return s.props.Set(ctx, PropExpiresAt, strconv.FormatInt(expiresAt, 10))
}

// AccessToken returns a valid access token, refreshing first when the
// stored one expires within the buffer. Implements meli.TokenSource.
func (s *TokenService) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.state(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load token state: %w", err)
	}

	if state.AccessToken != "" && !state.ExpiresWithin(RefreshBuffer) {
		return state.AccessToken, nil
	}

	if state.RefreshToken != "" {
		log.Printf("[TokenService] Token expired or about to expire, refreshing")
		return s.refresh(ctx, state.RefreshToken)
	}

	if state.AccessToken != "" {
		log.Printf("[TokenService] Warning: using possibly expired token, no refresh token available")
		return state.AccessToken, nil
	}

	return "", &meli.Error{Kind: meli.KindAuth, Message: "no access token or refresh token available"}
}

func (s *TokenService) refresh(ctx context.Context, refreshToken string) (string, error) {
	if s.oauth == nil {
		return "", &meli.Error{Kind: meli.KindAuth, Message: "oauth client not configured"}
	}
	if s.clientID == "" || s.clientSecret == "" {
		return "", &meli.Error{Kind: meli.KindAuth, Message: "client credentials not configured"}
	}

	tr, err := s.oauth.OAuthGrant(ctx, "refresh_token", s.clientID, s.clientSecret, refreshToken, "")
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	if err := s.persist(ctx, tr); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	log.Printf("[TokenService] Token refreshed successfully")
	return tr.AccessToken, nil
}

// ExchangeCode performs the authorization-code grant from the OAuth
// callback and persists the resulting tokens.
func (s *TokenService) ExchangeCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.oauth == nil {
		return &meli.Error{Kind: meli.KindAuth, Message: "oauth client not configured"}
	}
	tr, err := s.oauth.OAuthGrant(ctx, "authorization_code", s.clientID, s.clientSecret, code, s.redirectURI)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := s.persist(ctx, tr); err != nil {
		return fmt.Errorf("failed to persist tokens: %w", err)
	}
	log.Printf("[TokenService] Authorization code exchanged, tokens stored")
	return nil
}

// SellerID returns the authenticated seller id, resolving it via
// /users/me on first use and caching it in the property store.
func (s *TokenService) SellerID(ctx context.Context) (int64, error) {
	raw, err := s.props.Get(ctx, PropSellerID)
	if err != nil {
		return 0, err
	}
	if raw != "" {
		return strconv.ParseInt(raw, 10, 64)
	}

	if s.oauth == nil {
		return 0, &meli.Error{Kind: meli.KindAuth, Message: "oauth client not configured"}
	}
	user, err := s.oauth.Me(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve seller id: %w", err)
	}
	if err := s.props.Set(ctx, PropSellerID, strconv.FormatInt(user.ID, 10)); err != nil {
		return 0, err
	}
	return user.ID, nil
}

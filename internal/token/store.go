package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/praxamed/calsync/internal/logging"
	"github.com/praxamed/calsync/internal/store"
)

// RefreshSkew is the minimum remaining validity below which the access token
// is refreshed before use.
const RefreshSkew = 5 * time.Minute

// RefreshError indicates a failed refresh-token exchange. Terminal errors
// (revoked or invalid grant) must not be retried; non-terminal errors are
// transport failures.
type RefreshError struct {
	AccountID string
	Terminal  bool
	Err       error
}

func (e *RefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("token refresh failed for account %s (%s): %v", e.AccountID, kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Store hands out valid access tokens for calendar accounts, refreshing and
// persisting them on demand. It is the single authoritative refresh path:
// concurrent callers for the same account serialize on a per-account lock so
// only one of them performs the exchange.
type Store struct {
	accounts store.AccountRepository
	conf     *oauth2.Config
	logger   *slog.Logger

	// now is a hook for tests.
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a token store backed by the given account repository and OAuth2
// client configuration.
func New(accounts store.AccountRepository, conf *oauth2.Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		accounts: accounts,
		conf:     conf,
		logger:   logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// ValidAccessToken returns a non-expired access token for the account,
// refreshing it first if less than RefreshSkew of validity remains.
// The refreshed credentials are persisted before the token is returned.
func (s *Store) ValidAccessToken(ctx context.Context, accountID string) (string, error) {
	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	if acc.AccessToken != "" && acc.TokenExpiry.Sub(s.now()) >= RefreshSkew {
		return acc.AccessToken, nil
	}

	return s.refresh(ctx, acc)
}

// AuthClient returns an HTTP client that attaches a valid access token to
// every request, performing the refresh-on-demand check against each
// request's own context. The client holds no context or token state of its
// own, so callers may cache and reuse it for the lifetime of the account.
func (s *Store) AuthClient(accountID string) *http.Client {
	return &http.Client{
		Transport: &authTransport{store: s, accountID: accountID, base: http.DefaultTransport},
	}
}

// refresh performs the refresh-token exchange and persists the new
// credentials. Callers must hold the account lock.
func (s *Store) refresh(ctx context.Context, acc *store.CalendarAccount) (string, error) {
	logger := logging.WithAccount(s.logger, acc.ID)

	if acc.RefreshToken == "" {
		return "", &RefreshError{AccountID: acc.ID, Terminal: true, Err: errors.New("no refresh token on file")}
	}

	seed := &oauth2.Token{
		RefreshToken: acc.RefreshToken,
		// Force the token source to treat the access token as expired.
		Expiry: time.Unix(1, 0),
	}

	fresh, err := s.conf.TokenSource(ctx, seed).Token()
	if err != nil {
		refreshErr := &RefreshError{AccountID: acc.ID, Terminal: isTerminal(err), Err: err}
		logger.Warn("token refresh failed", logging.Err(err), slog.Bool("terminal", refreshErr.Terminal))
		return "", refreshErr
	}

	// Providers may rotate the refresh token; keep the old one otherwise.
	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		refreshToken = acc.RefreshToken
	}

	if err := s.accounts.UpdateTokens(ctx, acc.ID, fresh.AccessToken, refreshToken, fresh.Expiry); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	logger.Info("access token refreshed", slog.Time("expiry", fresh.Expiry))
	return fresh.AccessToken, nil
}

func (s *Store) accountLock(accountID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountID] = lock
	}
	return lock
}

// isTerminal reports whether a token endpoint error is a terminal grant
// failure (revoked or invalid refresh token) as opposed to a transport error.
func isTerminal(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.Response == nil {
		return false
	}
	switch retrieveErr.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// authTransport runs the refresh-on-demand check before every request it
// forwards. oauth2.Transport cannot serve here: its TokenSource interface
// carries no per-request context, so a source bound at client construction
// would outlive request deadlines and cache tokens past rotation.
type authTransport struct {
	store     *Store
	accountID string
	base      http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	access, err := t.store.ValidAccessToken(req.Context(), t.accountID)
	if err != nil {
		return nil, err
	}
	// Per RoundTripper contract the request must not be mutated.
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+access)
	return t.base.RoundTrip(clone)
}

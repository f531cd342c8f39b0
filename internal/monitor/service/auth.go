package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/sessioncache"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/vrchat"
)

// AuthState is the position of the authentication state machine.
type AuthState string

const (
	StateUnauthenticated      AuthState = "unauthenticated"
	StateAwaitingSecondFactor AuthState = "awaitingSecondFactor"
	StateAuthenticated        AuthState = "authenticated"
	StateFailed               AuthState = "failed"
)

// SessionStatus is the session summary pushed to clients and served on the
// status endpoint.
type SessionStatus struct {
	State             AuthState               `json:"state"`
	HasActiveSession  bool                    `json:"hasActiveSession"`
	SecondFactorKind  domain.SecondFactorKind `json:"secondFactorKind,omitempty"`
	LastEstablishedAt *time.Time              `json:"lastEstablishedAt,omitempty"`
}

// LoginResult is what the login endpoint reports back to the dashboard.
type LoginResult struct {
	Code                 vrchat.OutcomeCode      `json:"code"`
	Message              string                  `json:"message"`
	State                AuthState               `json:"state"`
	RequiresSecondFactor bool                    `json:"requiresSecondFactor,omitempty"`
	SecondFactorKind     domain.SecondFactorKind `json:"secondFactorKind,omitempty"`
}

// APIClient is the slice of the upstream client the manager and poller use.
type APIClient interface {
	Login(ctx context.Context, username, password string) (vrchat.LoginOutcome, error)
	VerifySecondFactor(ctx context.Context, session domain.Session, code string) (vrchat.LoginOutcome, error)
	FetchAccount(ctx context.Context, session domain.Session, accountID string) (*domain.Profile, error)
	FetchSelf(ctx context.Context, session domain.Session) (*domain.Profile, error)
	Logout(ctx context.Context, session domain.Session) error
}

// Broadcaster receives state changes for fan-out to connected clients.
type Broadcaster interface {
	PublishSessionStatus(status SessionStatus)
	PublishAccountUpdate(accountID string, snap domain.Snapshot)
}

// AuthManager owns the authentication state machine and the current session.
// It starts the poller on entering the authenticated state and stops it on
// leaving. The session value never escapes except into the cache file.
type AuthManager struct {
	Client    APIClient
	Store     *StateStore
	Cache     *sessioncache.Cache // nil disables session caching
	Broadcast Broadcaster         // set during wiring, before first use
	Poller    *Poller             // set during wiring, before first use
	Logger    *slog.Logger

	// TOTPSecret, when set, answers totp challenges without operator input.
	TOTPSecret string

	// PollContext is the parent context for poller-started work.
	PollContext context.Context

	opMu sync.Mutex // serializes login/verify/logout/restore operations

	mu          sync.RWMutex
	state       AuthState
	session     domain.Session
	pendingKind domain.SecondFactorKind
}

// NewAuthManager returns a manager in the unauthenticated state.
func NewAuthManager(client APIClient, store *StateStore, logger *slog.Logger) *AuthManager {
	return &AuthManager{
		Client:      client,
		Store:       store,
		Logger:      logger,
		PollContext: context.Background(),
		state:       StateUnauthenticated,
	}
}

// CurrentState returns the state machine's position.
func (m *AuthManager) CurrentState() AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// HasActiveSession reports whether polling may call out.
func (m *AuthManager) HasActiveSession() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateAuthenticated && m.session.Active()
}

// Status returns the session summary for clients.
func (m *AuthManager) Status() SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

func (m *AuthManager) statusLocked() SessionStatus {
	status := SessionStatus{
		State:            m.state,
		HasActiveSession: m.state == StateAuthenticated && m.session.Active(),
		SecondFactorKind: m.pendingKind,
	}
	if !m.session.EstablishedAt.IsZero() {
		at := m.session.EstablishedAt
		status.LastEstablishedAt = &at
	}
	return status
}

// Login runs the credential exchange. Valid from any state except
// authenticated; a fresh login from awaiting-second-factor restarts the flow.
func (m *AuthManager) Login(ctx context.Context, username, password string) LoginResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.CurrentState() == StateAuthenticated {
		return LoginResult{
			Code:    vrchat.OutcomeSuccess,
			Message: "already authenticated",
			State:   StateAuthenticated,
		}
	}

	outcome, err := m.Client.Login(ctx, username, password)
	return m.applyLoginOutcome(ctx, outcome, err)
}

// VerifySecondFactor submits a one-time code for the pending challenge.
func (m *AuthManager) VerifySecondFactor(ctx context.Context, code string) LoginResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.verifySecondFactor(ctx, code)
}

func (m *AuthManager) verifySecondFactor(ctx context.Context, code string) LoginResult {
	m.mu.RLock()
	state := m.state
	session := m.session
	m.mu.RUnlock()

	if state != StateAwaitingSecondFactor {
		return LoginResult{
			Code:    vrchat.OutcomeSecondFactorVerificationFailed,
			Message: "no second factor challenge pending",
			State:   state,
		}
	}

	outcome, err := m.Client.VerifySecondFactor(ctx, session, code)
	switch outcome.Code {
	case vrchat.OutcomeSuccess:
		return m.becomeAuthenticated(outcome.Session)
	case vrchat.OutcomeInvalidSecondFactorCode:
		// Recoverable, the operator retries with a fresh code.
		return LoginResult{
			Code:             outcome.Code,
			Message:          "second factor code rejected",
			State:            StateAwaitingSecondFactor,
			SecondFactorKind: session.PendingSecondFactor,
		}
	default:
		return m.becomeFailed(outcome.Code, err)
	}
}

func (m *AuthManager) applyLoginOutcome(ctx context.Context, outcome vrchat.LoginOutcome, err error) LoginResult {
	switch outcome.Code {
	case vrchat.OutcomeSuccess:
		return m.becomeAuthenticated(outcome.Session)

	case vrchat.OutcomeSecondFactorRequired:
		m.mu.Lock()
		m.state = StateAwaitingSecondFactor
		m.session = outcome.Session
		m.pendingKind = outcome.SecondFactorKind
		status := m.statusLocked()
		m.mu.Unlock()
		m.notify(status)

		if outcome.SecondFactorKind == domain.SecondFactorTOTP && m.TOTPSecret != "" {
			return m.autoAnswerTOTP(ctx)
		}
		return LoginResult{
			Code:                 outcome.Code,
			Message:              "second factor required",
			State:                StateAwaitingSecondFactor,
			RequiresSecondFactor: true,
			SecondFactorKind:     outcome.SecondFactorKind,
		}

	case vrchat.OutcomeInvalidCredentials:
		return LoginResult{
			Code:    outcome.Code,
			Message: "invalid username or password",
			State:   m.CurrentState(),
		}

	default:
		return m.becomeFailed(outcome.Code, err)
	}
}

// autoAnswerTOTP generates the current code from the configured secret and
// runs the verification step. Called with opMu held.
func (m *AuthManager) autoAnswerTOTP(ctx context.Context) LoginResult {
	code, err := totp.GenerateCode(m.TOTPSecret, time.Now())
	if err != nil {
		m.Logger.Error("totp code generation failed", "err", err)
		return LoginResult{
			Code:                 vrchat.OutcomeSecondFactorRequired,
			Message:              "second factor required (automatic answering failed)",
			State:                StateAwaitingSecondFactor,
			RequiresSecondFactor: true,
			SecondFactorKind:     domain.SecondFactorTOTP,
		}
	}
	m.Logger.Info("answering totp challenge automatically")
	return m.verifySecondFactor(ctx, code)
}

func (m *AuthManager) becomeAuthenticated(session domain.Session) LoginResult {
	m.mu.Lock()
	m.state = StateAuthenticated
	m.session = session
	m.pendingKind = domain.SecondFactorNone
	status := m.statusLocked()
	m.mu.Unlock()

	if m.Cache != nil {
		if err := m.Cache.Save(session); err != nil {
			m.Logger.Error("session cache save failed", "err", err)
		}
	}

	m.Logger.Info("session established")
	m.notify(status)
	if m.Poller != nil {
		m.Poller.Start(m.PollContext)
	}

	return LoginResult{
		Code:    vrchat.OutcomeSuccess,
		Message: "authenticated",
		State:   StateAuthenticated,
	}
}

func (m *AuthManager) becomeFailed(code vrchat.OutcomeCode, err error) LoginResult {
	m.mu.Lock()
	m.state = StateFailed
	m.session = domain.Session{}
	m.pendingKind = domain.SecondFactorNone
	status := m.statusLocked()
	m.mu.Unlock()

	m.Logger.Error("authentication failed fatally", "code", code, "err", err)
	m.notify(status)
	if m.Poller != nil {
		m.Poller.Stop()
	}

	message := "authentication failed"
	if err != nil {
		message = fmt.Sprintf("authentication failed: %v", err)
	}
	return LoginResult{Code: code, Message: message, State: StateFailed}
}

// Logout invalidates the session upstream best effort and returns to the
// unauthenticated state.
func (m *AuthManager) Logout(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session.Active() {
		if err := m.Client.Logout(ctx, session); err != nil {
			m.Logger.Warn("remote logout failed", "err", err)
		}
	}
	m.clearSession("logged out")
}

// Invalidate drops the session after the upstream rejected it mid-operation.
// Polling pauses until re-authenticated.
func (m *AuthManager) Invalidate(reason string) {
	m.clearSession(reason)
}

func (m *AuthManager) clearSession(reason string) {
	m.mu.Lock()
	wasAuthenticated := m.state == StateAuthenticated
	m.state = StateUnauthenticated
	m.session = domain.Session{}
	m.pendingKind = domain.SecondFactorNone
	status := m.statusLocked()
	m.mu.Unlock()

	if m.Cache != nil {
		if err := m.Cache.Clear(); err != nil {
			m.Logger.Warn("session cache clear failed", "err", err)
		}
	}

	if wasAuthenticated {
		m.Logger.Info("session cleared", "reason", reason)
		if m.Poller != nil {
			// Invalidation can arrive from the dispatcher itself, and Stop
			// waits for the dispatcher to exit. StopAsync detaches the
			// current timers before a relogin can start fresh ones and waits
			// for the in-flight call in the background.
			m.Poller.StopAsync()
		}
	}
	m.notify(status)
}

// RestoreSession adopts a previously cached session optimistically and
// validates it with a self fetch. On rejection it demotes back to
// unauthenticated; on a transient network failure it keeps the cache but
// does not adopt the session.
func (m *AuthManager) RestoreSession(ctx context.Context, session domain.Session) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.Logger.Info("validating cached session")
	_, err := m.Client.FetchSelf(ctx, session)
	if err == nil {
		m.becomeAuthenticated(session)
		return true
	}

	var authErr *vrchat.AuthError
	if errors.As(err, &authErr) {
		m.Logger.Info("cached session rejected, discarding")
		if m.Cache != nil {
			if err := m.Cache.Clear(); err != nil {
				m.Logger.Warn("session cache clear failed", "err", err)
			}
		}
		return false
	}

	m.Logger.Warn("cached session validation inconclusive", "err", err)
	return false
}

// PollAccount is the dispatcher's work function: fetch one account, record
// the observation, and publish it when it changed. A session rejection
// escalates to invalidation; every other failure stays contained to the
// account.
func (m *AuthManager) PollAccount(ctx context.Context, account domain.WatchedAccount) {
	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	profile, err := m.Client.FetchAccount(ctx, session, account.AccountID)
	now := time.Now()

	if err == nil {
		snap, changed := m.Store.RecordSuccess(account.AccountID, profile, now)
		m.Logger.Debug("poll ok",
			"account_id", account.AccountID, "status", profile.CoarseStatus(), "changed", changed)
		if changed {
			m.publishUpdate(account.AccountID, snap)
		}
		return
	}

	message := pollErrorMessage(err)
	m.Logger.Warn("poll failed", "account_id", account.AccountID, "err", err)

	snap, changed := m.Store.RecordError(account.AccountID, message, now)
	if changed {
		m.publishUpdate(account.AccountID, snap)
	}

	var authErr *vrchat.AuthError
	if errors.As(err, &authErr) {
		m.Invalidate("session rejected during polling")
	}
}

func pollErrorMessage(err error) string {
	var authErr *vrchat.AuthError
	var apiErr *vrchat.APIError
	var netErr *vrchat.NetworkError
	switch {
	case errors.As(err, &authErr):
		return "session expired"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("api error (status %d)", apiErr.StatusCode)
	case errors.As(err, &netErr):
		return "network error: " + netErr.Err.Error()
	default:
		return err.Error()
	}
}

func (m *AuthManager) notify(status SessionStatus) {
	if m.Broadcast != nil {
		m.Broadcast.PublishSessionStatus(status)
	}
}

func (m *AuthManager) publishUpdate(accountID string, snap domain.Snapshot) {
	if m.Broadcast != nil {
		m.Broadcast.PublishAccountUpdate(accountID, snap)
	}
}

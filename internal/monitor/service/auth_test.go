package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/service"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/vrchat"
)

// fakeClient scripts the upstream's responses per call.
type fakeClient struct {
	mu sync.Mutex

	loginOutcome  vrchat.LoginOutcome
	loginErr      error
	verifyOutcome func(code string) vrchat.LoginOutcome
	fetchProfile  *domain.Profile
	fetchErr      error

	loginCalls  int
	verifyCalls int
	fetchCalls  int
	logoutCalls int
}

func (f *fakeClient) Login(ctx context.Context, username, password string) (vrchat.LoginOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginCalls++
	return f.loginOutcome, f.loginErr
}

func (f *fakeClient) VerifySecondFactor(ctx context.Context, session domain.Session, code string) (vrchat.LoginOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verifyOutcome(code), nil
}

func (f *fakeClient) FetchAccount(ctx context.Context, session domain.Session, accountID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.fetchProfile, f.fetchErr
}

func (f *fakeClient) FetchSelf(ctx context.Context, session domain.Session) (*domain.Profile, error) {
	return f.FetchAccount(ctx, session, "self")
}

func (f *fakeClient) Logout(ctx context.Context, session domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return nil
}

// recordingBroadcaster captures published events.
type recordingBroadcaster struct {
	mu       sync.Mutex
	statuses []service.SessionStatus
	updates  []string
}

func (b *recordingBroadcaster) PublishSessionStatus(status service.SessionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, status)
}

func (b *recordingBroadcaster) PublishAccountUpdate(accountID string, snap domain.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, accountID)
}

func (b *recordingBroadcaster) lastStatus() (service.SessionStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return service.SessionStatus{}, false
	}
	return b.statuses[len(b.statuses)-1], true
}

func newTestManager(client *fakeClient) (*service.AuthManager, *recordingBroadcaster) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broadcast := &recordingBroadcaster{}
	m := service.NewAuthManager(client, service.NewStateStore(), logger)
	m.Broadcast = broadcast
	return m, broadcast
}

func TestAuthManagerLoginSuccess(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:    vrchat.OutcomeSuccess,
			Session: domain.Session{AuthToken: "tok", EstablishedAt: time.Now()},
		},
	}
	m, broadcast := newTestManager(client)

	result := m.Login(context.Background(), "alice", "hunter2")
	require.Equal(t, vrchat.OutcomeSuccess, result.Code)
	require.Equal(t, service.StateAuthenticated, m.CurrentState())
	require.True(t, m.HasActiveSession())

	status, ok := broadcast.lastStatus()
	require.True(t, ok)
	require.True(t, status.HasActiveSession)
	require.NotNil(t, status.LastEstablishedAt)
}

func TestAuthManagerInvalidCredentials(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{Code: vrchat.OutcomeInvalidCredentials},
	}
	m, _ := newTestManager(client)

	result := m.Login(context.Background(), "alice", "wrong")
	require.Equal(t, vrchat.OutcomeInvalidCredentials, result.Code)
	require.Equal(t, service.StateUnauthenticated, m.CurrentState(),
		"rejected credentials are recoverable")
}

func TestAuthManagerSecondFactorFlow(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:             vrchat.OutcomeSecondFactorRequired,
			SecondFactorKind: domain.SecondFactorTOTP,
			Session: domain.Session{
				AuthToken:           "interim",
				PendingSecondFactor: domain.SecondFactorTOTP,
			},
		},
		verifyOutcome: func(code string) vrchat.LoginOutcome {
			if code == "000000" {
				return vrchat.LoginOutcome{Code: vrchat.OutcomeInvalidSecondFactorCode}
			}
			return vrchat.LoginOutcome{
				Code:    vrchat.OutcomeSuccess,
				Session: domain.Session{AuthToken: "tok", SecondFactorToken: "2fa", EstablishedAt: time.Now()},
			}
		},
	}
	m, _ := newTestManager(client)

	result := m.Login(context.Background(), "alice", "hunter2")
	require.Equal(t, vrchat.OutcomeSecondFactorRequired, result.Code)
	require.True(t, result.RequiresSecondFactor)
	require.Equal(t, service.StateAwaitingSecondFactor, m.CurrentState())

	// A wrong code keeps the challenge pending, it is not fatal.
	result = m.VerifySecondFactor(context.Background(), "000000")
	require.Equal(t, vrchat.OutcomeInvalidSecondFactorCode, result.Code)
	require.Equal(t, service.StateAwaitingSecondFactor, m.CurrentState())

	result = m.VerifySecondFactor(context.Background(), "123456")
	require.Equal(t, vrchat.OutcomeSuccess, result.Code)
	require.Equal(t, service.StateAuthenticated, m.CurrentState())
}

func TestAuthManagerVerificationFailureIsFatal(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:             vrchat.OutcomeSecondFactorRequired,
			SecondFactorKind: domain.SecondFactorTOTP,
			Session:          domain.Session{AuthToken: "interim", PendingSecondFactor: domain.SecondFactorTOTP},
		},
		verifyOutcome: func(code string) vrchat.LoginOutcome {
			return vrchat.LoginOutcome{Code: vrchat.OutcomeSecondFactorVerificationFailed}
		},
	}
	m, _ := newTestManager(client)

	m.Login(context.Background(), "alice", "hunter2")
	result := m.VerifySecondFactor(context.Background(), "123456")
	require.Equal(t, vrchat.OutcomeSecondFactorVerificationFailed, result.Code)
	require.Equal(t, service.StateFailed, m.CurrentState())
}

func TestAuthManagerProtocolViolationIsFatal(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{Code: vrchat.OutcomeMissingSessionToken},
	}
	m, _ := newTestManager(client)

	m.Login(context.Background(), "alice", "hunter2")
	require.Equal(t, service.StateFailed, m.CurrentState())
}

func TestAuthManagerAutoTOTP(t *testing.T) {
	// A real base32 secret so code generation and verification agree.
	const secret = "JBSWY3DPEHPK3PXP"

	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:             vrchat.OutcomeSecondFactorRequired,
			SecondFactorKind: domain.SecondFactorTOTP,
			Session:          domain.Session{AuthToken: "interim", PendingSecondFactor: domain.SecondFactorTOTP},
		},
		verifyOutcome: func(code string) vrchat.LoginOutcome {
			if !totp.Validate(code, secret) {
				return vrchat.LoginOutcome{Code: vrchat.OutcomeInvalidSecondFactorCode}
			}
			return vrchat.LoginOutcome{
				Code:    vrchat.OutcomeSuccess,
				Session: domain.Session{AuthToken: "tok", SecondFactorToken: "2fa", EstablishedAt: time.Now()},
			}
		},
	}
	m, _ := newTestManager(client)
	m.TOTPSecret = secret

	result := m.Login(context.Background(), "alice", "hunter2")
	require.Equal(t, vrchat.OutcomeSuccess, result.Code,
		"the challenge should be answered without operator input")
	require.Equal(t, service.StateAuthenticated, m.CurrentState())
	require.Equal(t, 1, client.verifyCalls)
}

func TestAuthManagerLogout(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:    vrchat.OutcomeSuccess,
			Session: domain.Session{AuthToken: "tok", EstablishedAt: time.Now()},
		},
	}
	m, _ := newTestManager(client)

	m.Login(context.Background(), "alice", "hunter2")
	m.Logout(context.Background())

	require.Equal(t, service.StateUnauthenticated, m.CurrentState())
	require.False(t, m.HasActiveSession())
	require.Equal(t, 1, client.logoutCalls)
}

func TestAuthManagerPollEscalatesAuthError(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:    vrchat.OutcomeSuccess,
			Session: domain.Session{AuthToken: "tok", EstablishedAt: time.Now()},
		},
		fetchErr: &vrchat.AuthError{StatusCode: 401},
	}
	m, broadcast := newTestManager(client)

	m.Login(context.Background(), "alice", "hunter2")
	require.True(t, m.HasActiveSession())

	account := domain.WatchedAccount{AccountID: "usr_1", DisplayLabel: "Alice"}
	m.PollAccount(context.Background(), account)

	require.Equal(t, service.StateUnauthenticated, m.CurrentState(),
		"a rejected session demotes to unauthenticated, not failed")

	status, ok := broadcast.lastStatus()
	require.True(t, ok)
	require.False(t, status.HasActiveSession)

	latest, ok := m.Store.Latest("usr_1")
	require.True(t, ok)
	require.Equal(t, domain.StatusError, latest.StatusKind)
}

func TestAuthManagerReloginAfterInvalidateKeepsPolling(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:    vrchat.OutcomeSuccess,
			Session: domain.Session{AuthToken: "tok", EstablishedAt: time.Now()},
		},
		fetchProfile: &domain.Profile{ID: "usr_1", DisplayName: "Alice", State: "online", Status: "active"},
	}
	m, _ := newTestManager(client)

	accounts := []domain.WatchedAccount{{AccountID: "usr_1", DisplayLabel: "Alice"}}
	m.Poller = service.NewPoller(accounts, m.PollAccount, m.HasActiveSession, discardLogger())
	defer m.Poller.Stop()

	m.Login(context.Background(), "alice", "hunter2")
	require.True(t, m.Poller.Running())
	waitFor(t, 2*time.Second, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.fetchCalls >= 1
	})

	// The stop triggered by the invalidation must not tear down the poller
	// the immediate relogin just started.
	m.Invalidate("session rejected during polling")
	m.Login(context.Background(), "alice", "hunter2")
	require.Equal(t, service.StateAuthenticated, m.CurrentState())

	time.Sleep(50 * time.Millisecond)
	require.True(t, m.Poller.Running())

	// The restarted generation still dispatches.
	waitFor(t, 2*time.Second, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.fetchCalls >= 2
	})
}

func TestAuthManagerPollRecordsAndPublishes(t *testing.T) {
	client := &fakeClient{
		loginOutcome: vrchat.LoginOutcome{
			Code:    vrchat.OutcomeSuccess,
			Session: domain.Session{AuthToken: "tok", EstablishedAt: time.Now()},
		},
		fetchProfile: &domain.Profile{ID: "usr_1", DisplayName: "Alice", State: "online", Status: "active"},
	}
	m, broadcast := newTestManager(client)
	m.Login(context.Background(), "alice", "hunter2")

	account := domain.WatchedAccount{AccountID: "usr_1", DisplayLabel: "Alice"}
	m.PollAccount(context.Background(), account)
	m.PollAccount(context.Background(), account)

	broadcast.mu.Lock()
	updates := len(broadcast.updates)
	broadcast.mu.Unlock()
	require.Equal(t, 1, updates, "unchanged observations are not re-broadcast")
}

package vrchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://api.vrchat.cloud/api/1"

	// The upstream rejects unrecognised clients, so we present the identity
	// its own client uses.
	userAgent = "VRC.Core.BestHTTP/2.2.1.0"

	authCookieName      = "auth"
	twoFactorCookieName = "twoFactorAuth"
)

// Retry policy for transient network failures on fetch paths.
const (
	DefaultRetryAttempts = 7
	DefaultMinBackoff    = time.Second
	DefaultMaxBackoff    = 10 * time.Minute

	// Session validation at startup gets a shorter retry budget so a dead
	// network does not stall boot for minutes.
	validationRetryAttempts = 3
)

// LogSink receives sanitized request/response summaries, e.g. for streaming
// to dashboard clients. Implementations must not block.
type LogSink interface {
	APILog(kind, content string, at time.Time)
}

// Client performs authenticated HTTP calls against the upstream service. It
// holds no session state: credential material is passed in per call as a
// domain.Session and returned inside LoginOutcome values.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Pacer      *Pacer
	Logger     *slog.Logger
	LogSink    LogSink // optional

	RetryAttempts int
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
}

// NewClient returns a Client with production defaults.
func NewClient(logger *slog.Logger) *Client {
	return &Client{
		BaseURL:       DefaultBaseURL,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		Pacer:         NewPacer(DefaultStartGap, DefaultFinishGap),
		Logger:        logger,
		RetryAttempts: DefaultRetryAttempts,
		MinBackoff:    DefaultMinBackoff,
		MaxBackoff:    DefaultMaxBackoff,
	}
}

// Login performs the credential exchange. The returned outcome is one of:
// Success, SecondFactorRequired, InvalidCredentials, MissingSessionToken,
// UnsupportedSecondFactorKind or NetworkError. The error is only non-nil
// alongside OutcomeNetworkError and carries the underlying cause.
func (c *Client) Login(ctx context.Context, username, password string) (LoginOutcome, error) {
	resp, err := c.do(ctx, http.MethodGet, "/auth/user", nil, func(req *http.Request) {
		req.SetBasicAuth(username, password)
	})
	if err != nil {
		return LoginOutcome{Code: OutcomeNetworkError}, err
	}

	token := resp.cookie(authCookieName)

	if resp.ok() {
		if token == "" {
			// Success status without a session cookie: the upstream broke
			// protocol and nothing sensible can be retried.
			c.Logger.Error("login response missing session cookie")
			return LoginOutcome{Code: OutcomeMissingSessionToken}, nil
		}

		var ident identityPayload
		if err := json.Unmarshal(resp.body, &ident); err != nil {
			err = &NetworkError{Err: fmt.Errorf("decode identity payload: %w", err)}
			return LoginOutcome{Code: OutcomeNetworkError}, err
		}

		if len(ident.RequiresTwoFactorAuth) > 0 {
			kind := pickSecondFactor(ident.RequiresTwoFactorAuth)
			if kind == domain.SecondFactorNone {
				c.Logger.Error("unsupported second factor kinds offered",
					"kinds", ident.RequiresTwoFactorAuth)
				return LoginOutcome{Code: OutcomeUnsupportedSecondFactorKind}, nil
			}
			c.Logger.Info("login requires second factor", "kind", kind)
			return LoginOutcome{
				Code:             OutcomeSecondFactorRequired,
				SecondFactorKind: kind,
				Session: domain.Session{
					AuthToken:           token,
					PendingSecondFactor: kind,
				},
			}, nil
		}

		c.Logger.Info("login successful")
		return LoginOutcome{
			Code: OutcomeSuccess,
			Session: domain.Session{
				AuthToken:     token,
				EstablishedAt: time.Now(),
			},
		}, nil
	}

	c.Logger.Warn("login rejected", "status", resp.status)
	return LoginOutcome{Code: OutcomeInvalidCredentials}, nil
}

// VerifySecondFactor submits a one-time code for the pending challenge held
// in session. On success the returned outcome carries the completed session.
func (c *Client) VerifySecondFactor(ctx context.Context, session domain.Session, code string) (LoginOutcome, error) {
	if session.AuthToken == "" {
		return LoginOutcome{Code: OutcomeMissingSessionToken}, nil
	}

	var path string
	switch session.PendingSecondFactor {
	case domain.SecondFactorTOTP:
		path = "/auth/twofactorauth/totp/verify"
	case domain.SecondFactorEmail:
		path = "/auth/twofactorauth/emailotp/verify"
	default:
		return LoginOutcome{Code: OutcomeUnsupportedSecondFactorKind}, nil
	}

	payload := map[string]string{"code": code}
	resp, err := c.do(ctx, http.MethodPost, path, payload, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: authCookieName, Value: session.AuthToken})
	})
	if err != nil {
		return LoginOutcome{Code: OutcomeNetworkError}, err
	}

	if resp.ok() {
		token := resp.cookie(authCookieName)
		if token == "" {
			// No fresh cookie in the verification response; the interim one
			// stays valid.
			token = session.AuthToken
		}
		second := resp.cookie(twoFactorCookieName)
		if second == "" {
			c.Logger.Warn("second factor cookie missing from verification response")
		}

		c.Logger.Info("second factor verification successful")
		return LoginOutcome{
			Code: OutcomeSuccess,
			Session: domain.Session{
				AuthToken:         token,
				SecondFactorToken: second,
				EstablishedAt:     time.Now(),
			},
		}, nil
	}

	if strings.Contains(strings.ToLower(string(resp.body)), "invalid code") {
		c.Logger.Warn("second factor code rejected", "status", resp.status)
		return LoginOutcome{Code: OutcomeInvalidSecondFactorCode}, nil
	}

	c.Logger.Warn("second factor verification failed", "status", resp.status)
	return LoginOutcome{Code: OutcomeSecondFactorVerificationFailed}, nil
}

// FetchAccount retrieves a watched account's user record. Network errors are
// retried with exponential backoff; auth and API errors are returned as-is.
func (c *Client) FetchAccount(ctx context.Context, session domain.Session, accountID string) (*domain.Profile, error) {
	return c.fetch(ctx, session, "/users/"+url.PathEscape(accountID), c.RetryAttempts)
}

// FetchSelf retrieves the authenticated account's own record. Used to
// validate a cached session at startup, with a shorter retry budget.
func (c *Client) FetchSelf(ctx context.Context, session domain.Session) (*domain.Profile, error) {
	return c.fetch(ctx, session, "/auth/user", validationRetryAttempts)
}

// Logout invalidates the session upstream, best effort. The caller discards
// the session value regardless of the result.
func (c *Client) Logout(ctx context.Context, session domain.Session) error {
	if session.AuthToken == "" {
		return nil
	}
	resp, err := c.do(ctx, http.MethodPut, "/logout", nil, func(req *http.Request) {
		attachSessionCookies(req, session)
	})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return &APIError{StatusCode: resp.status, Body: string(resp.body)}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, session domain.Session, path string, retries int) (*domain.Profile, error) {
	backoff := c.MinBackoff
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.Logger.Warn("retrying fetch after network error",
				"path", path, "attempt", attempt, "backoff", backoff, "err", lastErr)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &NetworkError{Err: ctx.Err()}
			case <-timer.C:
			}
			backoff = min(backoff*2, c.MaxBackoff)
		}

		profile, err := c.fetchOnce(ctx, session, path)
		if err == nil {
			return profile, nil
		}
		lastErr = err

		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			return nil, err
		}
		if attempt >= retries {
			return nil, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, lastErr)
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, session domain.Session, path string) (*domain.Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, func(req *http.Request) {
		attachSessionCookies(req, session)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusUnauthorized:
		return nil, &AuthError{StatusCode: resp.status}
	case !resp.ok():
		return nil, &APIError{StatusCode: resp.status, Body: truncate(string(resp.body), 512)}
	}

	// The upstream sometimes returns error payloads under a 2xx status.
	if bytes.Contains(resp.body, []byte(`"error":`)) {
		return nil, &APIError{StatusCode: resp.status, Body: truncate(string(resp.body), 512)}
	}

	var profile domain.Profile
	if err := json.Unmarshal(resp.body, &profile); err != nil {
		return nil, fmt.Errorf("decode user record: %w", err)
	}
	return &profile, nil
}

// apiResponse is a fully-drained HTTP response.
type apiResponse struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

func (r *apiResponse) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (r *apiResponse) cookie(name string) string {
	for _, ck := range r.cookies {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// do runs one paced, logged HTTP exchange. Transport failures come back as
// *NetworkError; any HTTP response, whatever the status, is returned for the
// caller to interpret.
func (c *Client) do(ctx context.Context, method, path string, payload any, decorate func(*http.Request)) (*apiResponse, error) {
	var bodyReader io.Reader
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if decorate != nil {
		decorate(req)
	}

	if err := c.Pacer.Acquire(ctx); err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer c.Pacer.Release()

	c.logExchange("request", requestSummary(req, bodyBytes))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: fmt.Errorf("read response body: %w", err)}
	}

	out := &apiResponse{status: resp.StatusCode, body: respBody, cookies: resp.Cookies()}
	c.logExchange("response", responseSummary(resp, respBody))
	return out, nil
}

func (c *Client) logExchange(kind, summary string) {
	sanitized := Sanitize(summary)
	c.Logger.Debug("api "+kind, "summary", sanitized)
	if c.LogSink != nil {
		c.LogSink.APILog(kind, sanitized, time.Now())
	}
}

func requestSummary(req *http.Request, body []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", req.Method, req.URL.String())
	writeHeaders(&b, req.Header)
	if len(body) > 0 {
		b.WriteString("\nBody: ")
		b.Write(body)
	}
	return b.String()
}

func responseSummary(resp *http.Response, body []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Status: %d", resp.StatusCode)
	writeHeaders(&b, resp.Header)
	if len(body) > 0 {
		b.WriteString("\nBody: ")
		b.Write(body)
	}
	return b.String()
}

func writeHeaders(b *strings.Builder, h http.Header) {
	if len(h) == 0 {
		return
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("\nHeaders:")
	for _, name := range names {
		for _, value := range h[name] {
			fmt.Fprintf(b, "\n  %s: %s", name, value)
		}
	}
}

func attachSessionCookies(req *http.Request, session domain.Session) {
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: session.AuthToken})
	if session.SecondFactorToken != "" {
		req.AddCookie(&http.Cookie{Name: twoFactorCookieName, Value: session.SecondFactorToken})
	}
}

// pickSecondFactor selects the challenge to answer; TOTP wins when offered.
func pickSecondFactor(kinds []string) domain.SecondFactorKind {
	for _, k := range kinds {
		if strings.EqualFold(k, string(domain.SecondFactorTOTP)) {
			return domain.SecondFactorTOTP
		}
	}
	for _, k := range kinds {
		if strings.EqualFold(k, string(domain.SecondFactorEmail)) {
			return domain.SecondFactorEmail
		}
	}
	return domain.SecondFactorNone
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

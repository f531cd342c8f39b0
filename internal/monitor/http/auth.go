package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/service"
	"github.com/aussiebroadwan/vrcwatch/internal/monitor/vrchat"
	"github.com/aussiebroadwan/vrcwatch/pkg/httpx"
	"github.com/aussiebroadwan/vrcwatch/pkg/slogx"
)

// AuthHandler exposes the upstream session over the control API.
type AuthHandler struct {
	AuthManager *service.AuthManager
}

// loginRequest covers both login steps. Type selects which: "credentials"
// submits username/password, "2fa" submits a one-time code for the pending
// challenge.
type loginRequest struct {
	Type          string `json:"type"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	TwoFactorCode string `json:"twoFactorCode,omitempty"`
}

// HandleStatus handles GET /api/auth/status.
func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, h.AuthManager.Status())
}

// HandleLogin handles POST /api/auth/login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse login request", "err", err)
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": "Invalid JSON body",
		})
		return
	}

	var result service.LoginResult
	switch req.Type {
	case "credentials":
		if req.Username == "" || req.Password == "" {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_request",
				"error_description": "username and password are required",
			})
			return
		}
		result = h.AuthManager.Login(ctx, req.Username, req.Password)

	case "2fa":
		if req.TwoFactorCode == "" {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
				"error":             "invalid_request",
				"error_description": "twoFactorCode is required",
			})
			return
		}
		result = h.AuthManager.VerifySecondFactor(ctx, req.TwoFactorCode)

	default:
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": `type must be "credentials" or "2fa"`,
		})
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, statusForOutcome(result.Code), result)
}

// HandleLogout handles POST /api/auth/logout.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.AuthManager.Logout(r.Context())
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func statusForOutcome(code vrchat.OutcomeCode) int {
	switch code {
	case vrchat.OutcomeSuccess, vrchat.OutcomeSecondFactorRequired:
		return http.StatusOK
	case vrchat.OutcomeInvalidCredentials, vrchat.OutcomeInvalidSecondFactorCode:
		return http.StatusUnauthorized
	case vrchat.OutcomeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

package account

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler exposes the Account wire contract of spec.md §6.5: register,
// login, TOTP enrollment/verification, password change.
type Handler struct {
	svc *Service
}

// NewHandler builds a Handler over a Service.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Router builds the gorilla/mux router for this handler.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/{account_id}/two-fa", h.GenerateTwoFA).Methods(http.MethodGet)
	r.HandleFunc("/{account_id}/two-fa", h.SetTwoFA).Methods(http.MethodPost)
	r.HandleFunc("/{account_id}/two-fa", h.DeleteTwoFA).Methods(http.MethodDelete)
	r.HandleFunc("/{account_id}/two-fa/verify", h.VerifyTwoFA).Methods(http.MethodPost)
	r.HandleFunc("/{account_id}/password", h.ChangePassword).Methods(http.MethodPatch)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func accountIDFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["account_id"], 10, 64)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	AccountID    int64  `json:"account_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func writeAuth(w http.ResponseWriter, data *AuthorizationData) {
	writeJSON(w, http.StatusOK, authResponse{
		AccountID:    data.AccountID,
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
	})
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	data, err := h.svc.Register(r.Context(), req.Login, req.Password)
	if err != nil {
		status := http.StatusInternalServerError
		if err == ErrLoginTaken {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeAuth(w, data)
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	data, err := h.svc.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		status := http.StatusUnauthorized
		if err == ErrAccountNotFound {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeAuth(w, data)
}

type twoFAKeyResponse struct {
	Key             string `json:"key"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// GenerateTwoFA handles GET /{account_id}/two-fa: mints an unconfirmed TOTP
// secret for the caller to enroll.
func (h *Handler) GenerateTwoFA(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid account_id"})
		return
	}
	key, uri, err := h.svc.GenerateTwoFAKey(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, twoFAKeyResponse{Key: key, ProvisioningURI: uri})
}

type twoFASetRequest struct {
	Key  string `json:"key"`
	Code string `json:"code"`
}

// SetTwoFA handles POST /{account_id}/two-fa: confirms enrollment of a key
// generated by GenerateTwoFA.
func (h *Handler) SetTwoFA(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid account_id"})
		return
	}
	var req twoFASetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	if err := h.svc.SetTwoFAKey(r.Context(), accountID, req.Key, req.Code); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type twoFACodeRequest struct {
	Code string `json:"code"`
}

// DeleteTwoFA handles DELETE /{account_id}/two-fa.
func (h *Handler) DeleteTwoFA(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid account_id"})
		return
	}
	var req twoFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	if err := h.svc.DeleteTwoFAKey(r.Context(), accountID, req.Code); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyTwoFA handles POST /{account_id}/two-fa/verify.
func (h *Handler) VerifyTwoFA(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid account_id"})
		return
	}
	var req twoFACodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	ok, err := h.svc.VerifyTwoFA(r.Context(), accountID, req.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": ok})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles PATCH /{account_id}/password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid account_id"})
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	if err := h.svc.ChangePassword(r.Context(), accountID, req.NewPassword, req.OldPassword); err != nil {
		status := http.StatusBadRequest
		if err == ErrInvalidPassword {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

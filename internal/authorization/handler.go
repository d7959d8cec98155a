package authorization

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler exposes the Authorization wire contract of spec.md §6.5:
// POST /, POST /tg, GET /check, POST /refresh.
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
	r.HandleFunc("/", h.Create).Methods(http.MethodPost)
	r.HandleFunc("/tg", h.CreateTg).Methods(http.MethodPost)
	r.HandleFunc("/check", h.Check).Methods(http.MethodGet)
	r.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)
	return r
}

type createRequest struct {
	AccountID   int64  `json:"account_id"`
	TwoFAStatus bool   `json:"two_fa_status"`
	Role        string `json:"role"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Create handles POST /: issue a short-lived refresh token pair.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	pair, err := h.svc.CreateTokens(r.Context(), req.AccountID, req.TwoFAStatus, req.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// CreateTg handles POST /tg: issue a 10-year refresh token pair for the
// Telegram long-lived flow.
func (h *Handler) CreateTg(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	pair, err := h.svc.CreateTokensTg(r.Context(), req.AccountID, req.TwoFAStatus, req.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

type checkResponse struct {
	AccountID   int64  `json:"account_id"`
	TwoFAStatus bool   `json:"two_fa_status"`
	Role        string `json:"role"`
	Message     string `json:"message"`
}

// Check handles GET /check: validate the Access-Token cookie.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("Access-Token")
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, checkResponse{Message: "missing Access-Token cookie"})
		return
	}

	payload, err := h.svc.CheckToken(cookie.Value)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, checkResponse{Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{
		AccountID:   payload.AccountID,
		TwoFAStatus: payload.TwoFAStatus,
		Role:        payload.Role,
		Message:     "ok",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh handles POST /refresh: exchange a valid refresh token for a fresh
// pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "malformed body"})
		return
	}
	pair, err := h.svc.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

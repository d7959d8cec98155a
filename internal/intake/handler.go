package intake

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/gommgo/release-machine/internal/release"
	"github.com/gommgo/release-machine/pkg/logger"
)

// Handler implements the Event Intake HTTP endpoints of spec.md §4.5/§6.1.
// It calls only the Engine — never the Store directly — per spec.md §4.1.
type Handler struct {
	engine   *release.Engine
	validate *validator.Validate
	logger   *slog.Logger

	// allowSchemaBootstrap gates /table/create and /table/drop, off by
	// default in production per spec.md §6.1.
	allowSchemaBootstrap bool
	createSchema         func() error
	dropSchema           func() error
}

// New builds a Handler. createSchema/dropSchema back /table/create and
// /table/drop; either may be nil if AllowSchemaBootstrap is false.
func New(engine *release.Engine, allowSchemaBootstrap bool, createSchema, dropSchema func() error, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:               engine,
		validate:             validator.New(),
		logger:               logger,
		allowSchemaBootstrap: allowSchemaBootstrap,
		createSchema:         createSchema,
		dropSchema:           dropSchema,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// CreateRelease handles POST {prefix}/release.
func (h *Handler) CreateRelease(w http.ResponseWriter, r *http.Request) {
	var req CreateReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.engine.Create(r.Context(), req.ServiceName, req.ReleaseTag, req.InitiatedBy, req.CIRunID, req.CIActionLink, req.CIRef)
	if err != nil {
		h.logger.Error("create release failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store failure")
		return
	}

	writeJSON(w, http.StatusCreated, CreateReleaseResponse{ReleaseID: id})
}

// UpdateRelease handles PATCH {prefix}/release.
func (h *Handler) UpdateRelease(w http.ResponseWriter, r *http.Request) {
	var req UpdateReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	_, err := h.engine.Update(r.Context(), req.ReleaseID, release.Update{
		Status:        req.Status,
		CIRunID:       req.CIRunID,
		CIActionLink:  req.CIActionLink,
		RollbackToTag: req.RollbackToTag,
	})
	if err != nil {
		switch {
		case errors.Is(err, release.ErrInvalidTransition), errors.Is(err, release.ErrTerminal):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, release.ErrNotFound):
			writeError(w, http.StatusBadRequest, "unknown release_id")
		default:
			logger.WithRelease(h.logger, req.ReleaseID).Error("update release failed", "error", err)
			writeError(w, http.StatusInternalServerError, "store failure")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Health handles GET {prefix}/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// CreateTable handles GET {prefix}/table/create, gated behind
// AllowSchemaBootstrap.
func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	if !h.allowSchemaBootstrap || h.createSchema == nil {
		writeError(w, http.StatusForbidden, "schema bootstrap disabled")
		return
	}
	if err := h.createSchema(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DropTable handles GET {prefix}/table/drop, gated behind
// AllowSchemaBootstrap.
func (h *Handler) DropTable(w http.ResponseWriter, r *http.Request) {
	if !h.allowSchemaBootstrap || h.dropSchema == nil {
		writeError(w, http.StatusForbidden, "schema bootstrap disabled")
		return
	}
	if err := h.dropSchema(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Package handler wires the registry HTTP API to the registry service.
package handler

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkns/internal/namekey"
	"zkns/internal/platform/middleware"
	"zkns/internal/registry/actionlog"
	"zkns/internal/registry/models"
	"zkns/internal/registry/service"
	"zkns/internal/registry/state"
	pkgerrors "zkns/pkg/errors"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	svc    *service.Service
	state  *state.Store
	log    actionlog.Log
	logger *slog.Logger
}

// New constructs the registry handler with its dependencies.
func New(svc *service.Service, st *state.Store, log actionlog.Log, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, state: st, log: log, logger: logger}
}

// Register mounts the public registry routes. Admin routes are mounted
// separately so the admin-token middleware wraps only them.
func (h *Handler) Register(r chi.Router) {
	r.Post("/names", h.HandleRegister)
	r.Get("/names/{name}", h.HandleResolve)
	r.Put("/names/{name}/record", h.HandleSetRecord)
	r.Post("/names/{name}/transfer", h.HandleTransfer)
	r.Get("/status", h.HandleStatus)
}

// RegisterAdmin mounts the admin routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/admin/premium", h.HandleSetPremium)
	r.Post("/admin/pause", h.HandleTogglePause)
	r.Put("/admin/owner", h.HandleChangeAdmin)
}

type registerRequest struct {
	Name    string `json:"name"`
	Aux     string `json:"aux"`
	Payload string `json:"payload"`
}

type recordResponse struct {
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Aux     string `json:"aux"`
	Payload string `json:"payload"`
}

// HandleRegister handles POST /names.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	rec, err := recordFrom(req.Aux, req.Payload)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.svc.Register(ctx, caller, req.Name, rec); err != nil {
		h.logOpError(r, "register", req.Name, err)
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

// HandleResolve handles GET /names/{name}. Only settled registrations
// resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rec, err := h.svc.Resolve(r.Context(), name)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{
		Name:    name,
		Owner:   string(rec.Owner),
		Aux:     namekey.Decode(rec.Aux),
		Payload: namekey.Decode(rec.Payload),
	})
}

type setRecordRequest struct {
	Aux     string `json:"aux"`
	Payload string `json:"payload"`
}

// HandleSetRecord handles PUT /names/{name}/record.
func (h *Handler) HandleSetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	var req setRecordRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	rec, err := recordFrom(req.Aux, req.Payload)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.svc.SetRecord(ctx, caller, name, rec); err != nil {
		h.logOpError(r, "set record", name, err)
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

type transferRequest struct {
	NewOwner string `json:"new_owner"`
}

// HandleTransfer handles POST /names/{name}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	var req transferRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.NewOwner == "" {
		WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "new_owner is required"))
		return
	}

	if err := h.svc.TransferOwnership(ctx, caller, name, models.PublicKey(req.NewOwner)); err != nil {
		h.logOpError(r, "transfer", name, err)
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

type setPremiumRequest struct {
	Premium uint64 `json:"premium"`
}

// HandleSetPremium handles PUT /admin/premium.
func (h *Handler) HandleSetPremium(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req setPremiumRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := h.svc.SetPremium(r.Context(), caller, req.Premium); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

// HandleTogglePause handles POST /admin/pause. Each call flips the flag.
func (h *Handler) HandleTogglePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.TogglePause(r.Context(), caller); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

type changeAdminRequest struct {
	NewAdmin string `json:"new_admin"`
}

// HandleChangeAdmin handles PUT /admin/owner.
func (h *Handler) HandleChangeAdmin(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req changeAdminRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.NewAdmin == "" {
		WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "new_admin is required"))
		return
	}
	if err := h.svc.ChangeAdmin(r.Context(), caller, models.PublicKey(req.NewAdmin)); err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

type statusResponse struct {
	Cursor  uint64   `json:"cursor"`
	Roots   []string `json:"roots"`
	Pending int      `json:"pending_actions"`
	Paused  bool     `json:"paused"`
	Premium uint64   `json:"premium"`
	Admin   string   `json:"admin"`
}

// HandleStatus handles GET /status: the last-settled commitment plus queue
// depth, for operators and reconciliation tooling.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, err := h.log.PendingCount(ctx)
	if err != nil {
		WriteError(w, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "count pending actions"))
		return
	}
	paused, err := h.svc.Paused(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}
	premium, err := h.svc.Premium(ctx)
	if err != nil {
		WriteError(w, err)
		return
	}

	c := h.state.Commitment()
	roots := make([]string, len(c.Roots))
	for i, root := range c.Roots {
		roots[i] = hex.EncodeToString(root[:])
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Cursor:  c.Cursor,
		Roots:   roots,
		Pending: pending,
		Paused:  paused,
		Premium: premium,
		Admin:   string(h.svc.Admin(ctx)),
	})
}

// caller pulls the caller key set by the middleware; operations that mutate
// state refuse anonymous requests.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (models.PublicKey, bool) {
	key := middleware.GetCallerKey(r.Context())
	if key == "" {
		WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "X-Caller-Key header is required"))
		return "", false
	}
	return models.PublicKey(key), true
}

func (h *Handler) logOpError(r *http.Request, op, name string, err error) {
	h.logger.DebugContext(r.Context(), fmt.Sprintf("%s rejected", op),
		"name", name,
		"error", err,
		"request_id", middleware.GetRequestID(r.Context()),
	)
}

// recordFrom packs the string fields of a request into a record. Owner is
// filled in by the service from the caller key.
func recordFrom(aux, payload string) (models.Record, error) {
	var rec models.Record
	var err error
	if aux != "" {
		if rec.Aux, err = namekey.Encode(aux); err != nil {
			return models.Record{}, pkgerrors.Wrap(err, pkgerrors.CodeEncoding, "aux")
		}
	}
	if payload != "" {
		if rec.Payload, err = namekey.Encode(payload); err != nil {
			return models.Record{}, pkgerrors.Wrap(err, pkgerrors.CodeEncoding, "payload")
		}
	}
	return rec, nil
}

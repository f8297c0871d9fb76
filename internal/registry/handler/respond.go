package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	pkgerrors "zkns/pkg/errors"
)

// errorResponse is the wire form of every error the API returns.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// statusFor maps domain error codes onto HTTP status codes.
func statusFor(code pkgerrors.Code) int {
	switch code {
	case pkgerrors.CodeBadRequest, pkgerrors.CodeEncoding:
		return http.StatusBadRequest
	case pkgerrors.CodeNotFound, pkgerrors.CodeNotOwned:
		return http.StatusNotFound
	case pkgerrors.CodeNotOwner, pkgerrors.CodeNotAdmin:
		return http.StatusForbidden
	case pkgerrors.CodeAlreadyRegistered, pkgerrors.CodePaused:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as a JSON error response. Internal details are not
// leaked: only the code and the domain message go on the wire.
func WriteError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	var derr *pkgerrors.Error
	if errors.As(err, &derr) && code != pkgerrors.CodeInternal {
		resp.Description = derr.Message
	}
	writeJSON(w, statusFor(code), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		logger.DebugContext(r.Context(), "bad request body", "error", err)
		WriteError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

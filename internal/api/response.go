package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/uma-arai/sbcntr-inventory/internal/model"
	"go.uber.org/zap"
)

type errorBody struct {
	Kind    model.ErrorKind `json:"kind"`
	Message string          `json:"message"`
	RoomID  string          `json:"room_id,omitempty"`
	Date    *model.DayKey   `json:"date,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// statusFor はエラー種別をHTTPステータスに変換します
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindConflict, model.KindIncompleteRange, model.KindInsufficientAvailability:
		return http.StatusConflict
	case model.KindUnsupportedOperation:
		return http.StatusNotImplemented
	case model.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)

	body := errorBody{Kind: kind, Message: "internal server error"}
	var domainErr *model.Error
	if errors.As(err, &domainErr) {
		body.Message = domainErr.PublicMessage()
		body.RoomID = domainErr.RoomID
		body.Date = domainErr.Date
	}
	if h.exposeErrors {
		body.Message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/genomics-portal/platform/pkg/clinical"
	"github.com/genomics-portal/platform/pkg/common/logger"
	"github.com/genomics-portal/platform/pkg/gateway/graphql"
)

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to write json response")
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, data)
}

// writeError maps domain and upstream failures to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal error"

	var statusErr *graphql.StatusError
	var gqlErr *graphql.Error
	switch {
	case clinical.IsValidationError(err):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, clinical.ErrUnknownEntity):
		status, msg = http.StatusNotFound, err.Error()
	case errors.As(err, &statusErr) && (statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden):
		status, msg = statusErr.StatusCode, http.StatusText(statusErr.StatusCode)
	case errors.As(err, &gqlErr) && gqlErr.Code() == "UNAUTHENTICATED":
		status, msg = http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized)
	case errors.As(err, &gqlErr) && gqlErr.Code() == "FORBIDDEN":
		status, msg = http.StatusForbidden, http.StatusText(http.StatusForbidden)
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "upstream timeout"
	case errors.Is(err, graphql.ErrUpstream):
		status, msg = http.StatusBadGateway, "upstream gateway error"
	}

	entry := logger.Log.WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}
	http.Error(w, msg, status)
}

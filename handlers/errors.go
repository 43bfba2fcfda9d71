package handlers

import (
	"albumgrab/services"
	"errors"
	"net/http"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrControlNotFound), errors.Is(err, services.ErrNoPageEntity):
		return http.StatusNotFound
	case errors.Is(err, services.ErrControlBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrBackendUnreachable), errors.Is(err, services.ErrBackendRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

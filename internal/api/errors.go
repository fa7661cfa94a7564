package api

import (
	"errors"
	"net/http"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Step    int    `json:"step,omitempty"`
	NoPlan  bool   `json:"no_plan,omitempty"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var denied *domain.PolicyDeniedError
	var planning *domain.PlanningError
	var unavailable *domain.RollbackUnavailableError
	var execErr *domain.ExecutionError
	var oracleErr *domain.OracleError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &denied):
		return http.StatusForbidden
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &planning):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unavailable):
		return http.StatusGone
	case errors.As(err, &execErr):
		if execErr.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &oracleErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse builds the body for err. Internal errors are not echoed.
func errorResponse(err error) ErrorResponse {
	code := httpStatusFromDomainError(err)
	resp := ErrorResponse{Code: code, Message: err.Error()}
	if code == http.StatusInternalServerError {
		resp.Message = "internal error"
	}
	var denied *domain.PolicyDeniedError
	if errors.As(err, &denied) {
		resp.Step = denied.Step
	}
	var planning *domain.PlanningError
	if errors.As(err, &planning) {
		resp.NoPlan = planning.NoPlan
	}
	return resp
}

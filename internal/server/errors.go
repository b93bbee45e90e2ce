// Package server provides the HTTP API for print order estimation.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/print-estimator/internal/db"
	"github.com/jonathan/print-estimator/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var pErr *pipeline.PipelineError
	if errors.As(err, &pErr) {
		switch {
		case errors.Is(err, pipeline.ErrUnsupportedInput):
			return http.StatusBadRequest
		case errors.Is(err, db.ErrNotFound):
			return http.StatusNotFound
		case pErr.Stage == pipeline.StageExtraction:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	}

	var vErrs validator.ValidationErrors
	switch {
	case errors.As(err, &vErrs):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	}

	switch err.(type) {
	case *ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the reply for err, naming the stage for pipeline failures
func errorBody(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}
	var pErr *pipeline.PipelineError
	if errors.As(err, &pErr) {
		resp.Stage = pErr.Stage
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		resp.Error = fmt.Sprintf("validation error: %s failed %q", vErrs[0].Field(), vErrs[0].Tag())
	}
	return resp
}

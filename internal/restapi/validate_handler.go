package restapi

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/eapproval/internal/approval"
	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/store"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// handleValidate processes POST /api/v1/validate.
//
// A document that fails validation is still a 200: the verdict is in the
// body, including for a missing or unknown doc_type. Only an undecodable or
// oversized body is a client error.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes)

	var payload ruleengine.DocumentPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_INVALID_INPUT",
				Message: fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}

		log.Warn("invalid json payload", slog.String("error", err.Error()))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_JSON",
			Message: "Invalid JSON payload: " + err.Error(),
		})
		return
	}

	resp, err := a.svc.Validate(r.Context(), payload)
	if err != nil {
		a.renderRulesetError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleListValidations processes GET /api/v1/validations.
// Query: page, page_size (clamped to 1..100), doc_no, doc_type, passed.
func (a *API) handleListValidations(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	// 1. Parse Query Parameters (Type Validation)
	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		renderQueryError(w, r, err)
		return
	}
	pageSize, err := parseOptionalInt(r, "page_size", defaultPageSize)
	if err != nil {
		renderQueryError(w, r, err)
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		renderQueryError(w, r, err)
		return
	}

	// 2. Sanitize & Clamp
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	// 3. Query
	records, totalItems, err := a.svc.History(r.Context(), filter, pageSize, offset)
	if err != nil {
		if errors.Is(err, approval.ErrAuditDisabled) {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, ErrorResponse{Code: "ERR_UNAVAILABLE", Message: "Validation history is not configured"})
			return
		}
		log.Error("failed to list validations", slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to list validations"})
		return
	}

	// 4. Metadata
	totalPages := 0
	if totalItems > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, PaginatedResponse{
		Data: records,
		Pagination: Pagination{
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	})
}

// handleGetValidation processes GET /api/v1/validations/{id}.
func (a *API) handleGetValidation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Validation id must be a positive integer",
			Details: []ErrorDetail{{Field: "id", Issue: "must be a positive integer"}},
		})
		return
	}

	record, err := a.svc.Record(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRecordNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Code: "ERR_NOT_FOUND", Message: "Validation record not found"})
		case errors.Is(err, approval.ErrAuditDisabled):
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, ErrorResponse{Code: "ERR_UNAVAILABLE", Message: "Validation history is not configured"})
		default:
			logger.FromContext(r.Context()).Error("failed to get validation", slog.String("error", err.Error()))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to get validation"})
		}
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, record)
}

// --- Private Helpers ---

// parseOptionalInt extracts an integer from the query string.
// If the parameter is missing, it returns the defaultValue.
// It only returns an error if the parameter is present but malformed.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	filter := store.ListFilter{
		DocNo:   q.Get("doc_no"),
		DocType: q.Get("doc_type"),
	}
	if raw := q.Get("passed"); raw != "" {
		passed, err := strconv.ParseBool(raw)
		if err != nil {
			return store.ListFilter{}, fmt.Errorf("parameter 'passed' must be a boolean")
		}
		filter.Passed = &passed
	}
	return filter, nil
}

func renderQueryError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_INVALID_QUERY_PARAM",
		Message: err.Error(),
	})
}

package restapi

// ReloadResponse is returned by POST /api/v1/rules/reload.
type ReloadResponse struct {
	Message      string `json:"message"`
	RulesVersion string `json:"rules_version"`
}

// PaginatedResponse is a standard wrapper for list endpoints to support offset pagination.
type PaginatedResponse struct {
	// Data holds the list of resources.
	Data any `json:"data"`

	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about a specific field failure.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

package restapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
)

// handleGetRules processes GET /api/v1/rules: metadata of the active ruleset.
func (a *API) handleGetRules(w http.ResponseWriter, r *http.Request) {
	meta, err := a.svc.Metadata()
	if err != nil {
		a.renderRulesetError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, meta)
}

// handleGetOptions processes GET /api/v1/rules/options: UI selection lists.
func (a *API) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := a.svc.Options()
	if err != nil {
		a.renderRulesetError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, opts)
}

// handleReloadRules processes POST /api/v1/rules/reload.
//
// A missing rules file maps to 404 and a malformed or invalid one to 400.
// In both cases the previously active ruleset keeps serving.
func (a *API) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	version, err := a.svc.Reload(r.Context(), rulestore.TriggerAPI)
	if err != nil {
		switch {
		case errors.Is(err, ruleengine.ErrNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Code: "ERR_RULES_NOT_FOUND", Message: err.Error()})
		case errors.Is(err, ruleengine.ErrParse), errors.Is(err, ruleengine.ErrSchema):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{Code: "ERR_RULES_INVALID", Message: err.Error()})
		default:
			log.Error("ruleset reload failed", slog.String("error", err.Error()))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to reload rules"})
		}
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ReloadResponse{Message: "Rules reloaded", RulesVersion: version})
}

// renderRulesetError maps read-side errors. Before the first successful load
// the service is unavailable rather than broken.
func (a *API) renderRulesetError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, rulestore.ErrNoRuleset) {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, ErrorResponse{Code: "ERR_UNAVAILABLE", Message: "No ruleset is loaded"})
		return
	}

	logger.FromContext(r.Context()).Error("failed to read ruleset", slog.String("error", err.Error()))
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{Code: "ERR_INTERNAL", Message: "Failed to read ruleset"})
}

package rpcapi

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
)

// Validate evaluates the document against the active ruleset.
//
// It returns:
//   - OK with the validation response, whether or not the document passed.
//     A missing or unknown doc_type is reported in the issues.
//   - UNAVAILABLE if no ruleset has been loaded yet.
//   - INTERNAL for anything else.
func (a *API) Validate(ctx context.Context, req *ruleengine.DocumentPayload) (*ruleengine.ValidationResponse, error) {
	resp, err := a.svc.Validate(ctx, *req)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &resp, nil
}

// GetRules returns the metadata of the active ruleset.
func (a *API) GetRules(ctx context.Context, _ *GetRulesRequest) (*ruleengine.Metadata, error) {
	meta, err := a.svc.Metadata()
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &meta, nil
}

func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, rulestore.ErrNoRuleset):
		return status.Error(codes.Unavailable, "no ruleset is loaded")
	default:
		logger.FromContext(ctx).Error("rpc failed", slog.String("error", err.Error()))
		return status.Error(codes.Internal, "internal server error")
	}
}

// Package rpcapi implements the gRPC front end of the validation service.
// It serves the same operations as the REST API to internal callers that
// prefer a long-lived RPC connection.
package rpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "eapproval.v1.Validator"

// Full method names, as seen by interceptors and metrics.
const (
	ValidateMethod = "/" + ServiceName + "/Validate"
	GetRulesMethod = "/" + ServiceName + "/GetRules"
)

// Service is the part of approval.Service the RPC handlers call.
type Service interface {
	Validate(ctx context.Context, payload ruleengine.DocumentPayload) (ruleengine.ValidationResponse, error)
	Metadata() (ruleengine.Metadata, error)
}

// GetRulesRequest is the (empty) request of GetRules.
type GetRulesRequest struct{}

// ValidatorServer is the server-side contract of eapproval.v1.Validator.
type ValidatorServer interface {
	Validate(ctx context.Context, req *ruleengine.DocumentPayload) (*ruleengine.ValidationResponse, error)
	GetRules(ctx context.Context, req *GetRulesRequest) (*ruleengine.Metadata, error)
}

// API implements ValidatorServer on top of Service.
type API struct {
	svc Service
}

var _ ValidatorServer = (*API)(nil)

// NewAPI creates the gRPC API.
func NewAPI(svc Service) *API {
	if svc == nil {
		panic("rpcapi: service cannot be nil")
	}
	return &API{svc: svc}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&validatorServiceDesc, a)
}

var validatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "GetRules", Handler: getRulesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eapproval/v1/validator",
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ruleengine.DocumentPayload)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ValidatorServer).Validate(ctx, req.(*ruleengine.DocumentPayload))
	}
	return interceptor(ctx, in, info, handler)
}

func getRulesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRulesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ValidatorServer).GetRules(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetRulesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ValidatorServer).GetRules(ctx, req.(*GetRulesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

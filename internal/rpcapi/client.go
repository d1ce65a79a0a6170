package rpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rafaeljc/eapproval/internal/ruleengine"
)

// Client calls eapproval.v1.Validator over an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps conn. Every call is sent with the JSON content-subtype.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Validate validates payload remotely.
func (c *Client) Validate(ctx context.Context, payload *ruleengine.DocumentPayload, opts ...grpc.CallOption) (*ruleengine.ValidationResponse, error) {
	out := new(ruleengine.ValidationResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.conn.Invoke(ctx, ValidateMethod, payload, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRules returns the metadata of the remote active ruleset.
func (c *Client) GetRules(ctx context.Context, opts ...grpc.CallOption) (*ruleengine.Metadata, error) {
	out := new(ruleengine.Metadata)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.conn.Invoke(ctx, GetRulesMethod, &GetRulesRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

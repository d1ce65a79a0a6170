package rpcapi_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rafaeljc/eapproval/internal/approval"
	"github.com/rafaeljc/eapproval/internal/logger"
	"github.com/rafaeljc/eapproval/internal/rpcapi"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
)

// newApprovalService builds a real approval service over the shared test
// ruleset. The ruleset is loaded unless load is false.
func newApprovalService(t *testing.T, load bool) *approval.Service {
	t.Helper()

	raw, err := os.ReadFile("../ruleengine/testdata/rules.json")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	rules := rulestore.New(rulestore.NewFileSource(path), nil)
	if load {
		_, err := rules.Reload(context.Background(), rulestore.TriggerStartup)
		require.NoError(t, err)
	}
	return approval.NewService(rules, ruleengine.New(nil), nil, approval.Options{})
}

// startServer serves svc over an in-memory listener with the production
// interceptor chain and returns a connected client.
func startServer(t *testing.T, svc rpcapi.Service) *rpcapi.Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			rpcapi.RequestLoggerInterceptor(nil),
			rpcapi.ObservabilityInterceptor(),
		),
	)
	rpcapi.NewAPI(svc).Register(s)
	go func() { _ = s.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough://bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		s.Stop()
	})
	return rpcapi.NewClient(conn)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	amount := 1000.0
	tests := []struct {
		name       string
		payload    ruleengine.DocumentPayload
		wantCode   codes.Code
		wantPassed bool
	}{
		{
			name: "passing document",
			payload: ruleengine.DocumentPayload{
				DocNo:         "EXR-2025-001",
				DocType:       "EXR",
				AmountTotal:   &amount,
				ApprovalChain: []ruleengine.ApprovalMember{{Role: "ROLE_LEAD"}},
				Attachments:   []ruleengine.Attachment{{Filename: "q.pdf", Type: "quote"}},
			},
			wantCode:   codes.OK,
			wantPassed: true,
		},
		{
			name:       "failing document is not an error",
			payload:    ruleengine.DocumentPayload{DocNo: "bad", DocType: "EXR"},
			wantCode:   codes.OK,
			wantPassed: false,
		},
		{
			name:       "missing doc_type is reported as issues",
			payload:    ruleengine.DocumentPayload{DocNo: "EXR-2025-001"},
			wantCode:   codes.OK,
			wantPassed: false,
		},
	}

	client := startServer(t, newApprovalService(t, true))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			resp, err := client.Validate(context.Background(), &tt.payload)

			// Assert
			require.Equal(t, tt.wantCode, status.Code(err))
			if tt.wantCode != codes.OK {
				return
			}
			assert.Equal(t, tt.wantPassed, resp.Passed)
			assert.Equal(t, "2025.10.1", resp.RulesVersion)
			assert.NotEmpty(t, resp.Issues)
		})
	}
}

func TestValidate_Unavailable(t *testing.T) {
	t.Parallel()

	client := startServer(t, newApprovalService(t, false))

	_, err := client.Validate(context.Background(), &ruleengine.DocumentPayload{DocType: "EXR"})

	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestGetRules(t *testing.T) {
	t.Parallel()

	t.Run("returns metadata of the active ruleset", func(t *testing.T) {
		t.Parallel()

		client := startServer(t, newApprovalService(t, true))

		meta, err := client.GetRules(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "2025.10.1", meta.Version)
		assert.Equal(t, []string{"EXR", "LEV", "PUR"}, meta.Stats.DocTypes)
		assert.Len(t, meta.Digest, 64)
	})

	t.Run("unavailable before the first load", func(t *testing.T) {
		t.Parallel()

		client := startServer(t, newApprovalService(t, false))

		_, err := client.GetRules(context.Background())

		assert.Equal(t, codes.Unavailable, status.Code(err))
	})
}

// stubService reports the request ID it saw and fails with a fixed error.
type stubService struct {
	err      error
	sawReqID chan string
}

func (s *stubService) Validate(ctx context.Context, _ ruleengine.DocumentPayload) (ruleengine.ValidationResponse, error) {
	s.sawReqID <- logger.RequestIDFromContext(ctx)
	return ruleengine.ValidationResponse{Passed: true}, s.err
}

func (s *stubService) Metadata() (ruleengine.Metadata, error) {
	return ruleengine.Metadata{}, s.err
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	t.Run("propagates the caller's request id", func(t *testing.T) {
		t.Parallel()

		svc := &stubService{sawReqID: make(chan string, 1)}
		client := startServer(t, svc)
		ctx := metadata.AppendToOutgoingContext(context.Background(), rpcapi.RequestIDKey, "req-42")

		var header metadata.MD
		_, err := client.Validate(ctx, &ruleengine.DocumentPayload{DocType: "EXR"}, grpc.Header(&header))

		require.NoError(t, err)
		assert.Equal(t, "req-42", <-svc.sawReqID)
		assert.Equal(t, []string{"req-42"}, header.Get(rpcapi.RequestIDKey))
	})

	t.Run("generates one when absent", func(t *testing.T) {
		t.Parallel()

		svc := &stubService{sawReqID: make(chan string, 1)}
		client := startServer(t, svc)

		var header metadata.MD
		_, err := client.Validate(context.Background(), &ruleengine.DocumentPayload{DocType: "EXR"}, grpc.Header(&header))

		require.NoError(t, err)
		generated := <-svc.sawReqID
		assert.Len(t, generated, 36)
		assert.Equal(t, []string{generated}, header.Get(rpcapi.RequestIDKey))
	})
}

func TestUnexpectedErrorsAreInternal(t *testing.T) {
	t.Parallel()

	svc := &stubService{err: errors.New("pool exhausted"), sawReqID: make(chan string, 1)}
	client := startServer(t, svc)

	_, err := client.Validate(context.Background(), &ruleengine.DocumentPayload{DocType: "EXR"})

	st, _ := status.FromError(err)
	assert.Equal(t, codes.Internal, st.Code())
	assert.NotContains(t, st.Message(), "pool exhausted")
}

func TestNewAPI_NilServicePanics(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "rpcapi: service cannot be nil", func() {
		rpcapi.NewAPI(nil)
	})
}

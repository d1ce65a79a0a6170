package restapi_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/eapproval/internal/approval"
	"github.com/rafaeljc/eapproval/internal/restapi"
	"github.com/rafaeljc/eapproval/internal/ruleengine"
	"github.com/rafaeljc/eapproval/internal/rulestore"
	"github.com/rafaeljc/eapproval/internal/store"
)

const testAPIKey = "s3cret-reload-key"

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

type testEnv struct {
	api       *restapi.API
	rulesPath string
}

// newTestEnv wires the API to a real approval service backed by a rules
// file in a temp dir. The ruleset is loaded unless load is false.
func newTestEnv(t *testing.T, load bool, cfg restapi.Config) *testEnv {
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

	svc := approval.NewService(rules, ruleengine.New(nil), nil, approval.Options{})
	return &testEnv{api: restapi.NewAPI(svc, cfg, nil), rulesPath: path}
}

func (e *testEnv) do(method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.api.Router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) restapi.ErrorResponse {
	t.Helper()
	var errResp restapi.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	return errResp
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false, restapi.Config{SkipAuth: true})

	rr := env.do(http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestGetRules(t *testing.T) {
	t.Parallel()

	t.Run("returns metadata of the active ruleset", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true, restapi.Config{SkipAuth: true})

		rr := env.do(http.MethodGet, "/api/v1/rules", nil, nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var meta ruleengine.Metadata
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &meta))
		assert.Equal(t, "2025.10.1", meta.Version)
		assert.Equal(t, []string{"EXR", "LEV", "PUR"}, meta.Stats.DocTypes)
		assert.Equal(t, 4, meta.Stats.ApprovalRules)
		assert.Equal(t, 4, meta.Stats.AttachmentRules)
		assert.Equal(t, 3, meta.Stats.RiskRules)
	})

	t.Run("unavailable before the first load", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false, restapi.Config{SkipAuth: true})

		for _, target := range []string{"/api/v1/rules", "/api/v1/rules/options"} {
			rr := env.do(http.MethodGet, target, nil, nil)
			assert.Equal(t, http.StatusServiceUnavailable, rr.Code, target)
			assert.Equal(t, "ERR_UNAVAILABLE", decodeError(t, rr).Code)
		}
	})
}

func TestGetOptions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, restapi.Config{SkipAuth: true})

	rr := env.do(http.MethodGet, "/api/v1/rules/options", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var opts ruleengine.Options
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &opts))
	require.NotEmpty(t, opts.Roles)
	assert.Equal(t, "ROLE_LEAD", opts.Roles[0].Code, "roles are ordered by rank")
	assert.Len(t, opts.DocTypes, 3)
	assert.NotEmpty(t, opts.Attachments)
	assert.NotEmpty(t, opts.RiskFlags)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, restapi.Config{SkipAuth: true})

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantPassed *bool
	}{
		{
			name:       "compliant document",
			body:       `{"doc_no":"EXR-2025-001","doc_type":"EXR","amount_total":1000,"approval_chain":[{"role":"ROLE_LEAD"}],"attachments":[{"filename":"q.pdf","type":"quote"}]}`,
			wantStatus: http.StatusOK,
			wantPassed: ptr(true),
		},
		{
			name:       "failing document is still 200",
			body:       `{"doc_no":"bad","doc_type":"EXR","approval_chain":[],"attachments":[]}`,
			wantStatus: http.StatusOK,
			wantPassed: ptr(false),
		},
		{
			name:       "malformed JSON",
			body:       `{"doc_no":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_JSON",
		},
		{
			name:       "wrong field type",
			body:       `{"doc_no":"EXR-2025-001","doc_type":"EXR","amount_total":"lots"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ERR_INVALID_JSON",
		},
		{
			name:       "missing doc_type is reported as issues",
			body:       `{"doc_no":"EXR-2025-001"}`,
			wantStatus: http.StatusOK,
			wantPassed: ptr(false),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			rr := env.do(http.MethodPost, "/api/v1/validate", []byte(tt.body), nil)

			// Assert
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)
				return
			}
			var resp ruleengine.ValidationResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, *tt.wantPassed, resp.Passed)
			assert.Equal(t, "2025.10.1", resp.RulesVersion)
			assert.NotEmpty(t, resp.Issues)
		})
	}
}

func TestValidate_BodyTooLarge(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, restapi.Config{SkipAuth: true, MaxBodyBytes: 64})
	body := `{"doc_no":"EXR-2025-001","doc_type":"EXR","title":"` + strings.Repeat("x", 200) + `"}`

	rr := env.do(http.MethodPost, "/api/v1/validate", []byte(body), nil)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "ERR_INVALID_INPUT", decodeError(t, rr).Code)
}

func TestReloadRules(t *testing.T) {
	t.Parallel()

	auth := map[string]string{restapi.APIKeyHeader: testAPIKey}

	tests := []struct {
		name        string
		headers     map[string]string
		fileContent *string
		wantStatus  int
		wantCode    string
	}{
		{name: "reloads with a valid key", headers: auth, wantStatus: http.StatusOK},
		{name: "missing key", headers: nil, wantStatus: http.StatusUnauthorized, wantCode: "ERR_UNAUTHORIZED"},
		{name: "wrong key", headers: map[string]string{restapi.APIKeyHeader: "nope"}, wantStatus: http.StatusUnauthorized, wantCode: "ERR_UNAUTHORIZED"},
		{name: "rules file removed", headers: auth, fileContent: ptr(""), wantStatus: http.StatusNotFound, wantCode: "ERR_RULES_NOT_FOUND"},
		{name: "malformed rules", headers: auth, fileContent: ptr(`{"version":`), wantStatus: http.StatusBadRequest, wantCode: "ERR_RULES_INVALID"},
		{name: "schema violation", headers: auth, fileContent: ptr(`{"version":"x"}`), wantStatus: http.StatusBadRequest, wantCode: "ERR_RULES_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			env := newTestEnv(t, true, restapi.Config{APIKeyHash: hashKey(testAPIKey)})
			if tt.fileContent != nil {
				if *tt.fileContent == "" {
					require.NoError(t, os.Remove(env.rulesPath))
				} else {
					require.NoError(t, os.WriteFile(env.rulesPath, []byte(*tt.fileContent), 0o600))
				}
			}

			// Act
			rr := env.do(http.MethodPost, "/api/v1/rules/reload", nil, tt.headers)

			// Assert
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)

				// The previous ruleset keeps serving.
				meta := env.do(http.MethodGet, "/api/v1/rules", nil, nil)
				assert.Equal(t, http.StatusOK, meta.Code)
				return
			}
			var resp restapi.ReloadResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, "2025.10.1", resp.RulesVersion)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestReloadRules_UppercaseHashAccepted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, restapi.Config{APIKeyHash: strings.ToUpper(hashKey(testAPIKey))})

	rr := env.do(http.MethodPost, "/api/v1/rules/reload", nil, map[string]string{restapi.APIKeyHeader: testAPIKey})

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestValidations_DisabledWithoutStorage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true, restapi.Config{SkipAuth: true})

	for _, target := range []string{"/api/v1/validations", "/api/v1/validations/1"} {
		rr := env.do(http.MethodGet, target, nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, target)
		assert.Equal(t, "ERR_UNAVAILABLE", decodeError(t, rr).Code)
	}
}

// historyService serves canned history results.
type historyService struct {
	restapi.Service
	records []*store.ValidationRecord
	err     error

	gotFilter store.ListFilter
	gotLimit  int
	gotOffset int
}

func (h *historyService) History(_ context.Context, filter store.ListFilter, limit, offset int) ([]*store.ValidationRecord, int64, error) {
	h.gotFilter, h.gotLimit, h.gotOffset = filter, limit, offset
	if h.err != nil {
		return nil, 0, h.err
	}
	return h.records, int64(len(h.records)), nil
}

func (h *historyService) Record(_ context.Context, id int64) (*store.ValidationRecord, error) {
	if h.err != nil {
		return nil, h.err
	}
	for _, r := range h.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func TestListValidations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantOffset int
		wantPage   int
		wantFilter store.ListFilter
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantLimit: 10, wantOffset: 0, wantPage: 1},
		{name: "custom page and size", query: "?page=3&page_size=5", wantStatus: http.StatusOK, wantLimit: 5, wantOffset: 10, wantPage: 3},
		{name: "size clamped to 100", query: "?page_size=1000", wantStatus: http.StatusOK, wantLimit: 100, wantOffset: 0, wantPage: 1},
		{name: "page clamped to 1", query: "?page=-4", wantStatus: http.StatusOK, wantLimit: 10, wantOffset: 0, wantPage: 1},
		{name: "size zero uses default", query: "?page_size=0", wantStatus: http.StatusOK, wantLimit: 10, wantOffset: 0, wantPage: 1},
		{
			name: "filters", query: "?doc_no=EXR-2025-001&doc_type=EXR&passed=false",
			wantStatus: http.StatusOK, wantLimit: 10, wantPage: 1,
			wantFilter: store.ListFilter{DocNo: "EXR-2025-001", DocType: "EXR", Passed: ptr(false)},
		},
		{name: "invalid page", query: "?page=banana", wantStatus: http.StatusBadRequest},
		{name: "invalid passed", query: "?passed=maybe", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			svc := &historyService{records: []*store.ValidationRecord{{ID: 1, DocNo: "EXR-2025-001"}}}
			api := restapi.NewAPI(svc, restapi.Config{SkipAuth: true}, nil)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/validations"+tt.query, nil)
			rr := httptest.NewRecorder()

			// Act
			api.Router.ServeHTTP(rr, req)

			// Assert
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "ERR_INVALID_QUERY_PARAM", decodeError(t, rr).Code)
				return
			}
			assert.Equal(t, tt.wantLimit, svc.gotLimit)
			assert.Equal(t, tt.wantOffset, svc.gotOffset)
			assert.Equal(t, tt.wantFilter, svc.gotFilter)

			var resp restapi.PaginatedResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantPage, resp.Pagination.CurrentPage)
			assert.Equal(t, int64(1), resp.Pagination.TotalItems)
			assert.Equal(t, 1, resp.Pagination.TotalPages)
		})
	}
}

func TestListValidations_StorageError(t *testing.T) {
	t.Parallel()

	svc := &historyService{err: errors.New("connection reset")}
	api := restapi.NewAPI(svc, restapi.Config{SkipAuth: true}, nil)
	rr := httptest.NewRecorder()

	api.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/validations", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "ERR_INTERNAL", decodeError(t, rr).Code)
}

func TestGetValidation(t *testing.T) {
	t.Parallel()

	svc := &historyService{records: []*store.ValidationRecord{{ID: 7, DocNo: "EXR-2025-007"}}}
	api := restapi.NewAPI(svc, restapi.Config{SkipAuth: true}, nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{name: "found", path: "/api/v1/validations/7", wantStatus: http.StatusOK},
		{name: "not found", path: "/api/v1/validations/8", wantStatus: http.StatusNotFound, wantCode: "ERR_NOT_FOUND"},
		{name: "non numeric id", path: "/api/v1/validations/abc", wantStatus: http.StatusBadRequest, wantCode: "ERR_INVALID_INPUT"},
		{name: "zero id", path: "/api/v1/validations/0", wantStatus: http.StatusBadRequest, wantCode: "ERR_INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rr := httptest.NewRecorder()
			api.Router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rr).Code)
				return
			}
			var rec store.ValidationRecord
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
			assert.Equal(t, "EXR-2025-007", rec.DocNo)
		})
	}
}

func TestNewAPI_Contracts(t *testing.T) {
	t.Parallel()

	assert.PanicsWithValue(t, "restapi: service cannot be nil", func() {
		restapi.NewAPI(nil, restapi.Config{SkipAuth: true}, nil)
	})
	assert.PanicsWithValue(t, "restapi: apiKeyHash cannot be empty when authentication is enabled", func() {
		restapi.NewAPI(&historyService{}, restapi.Config{}, nil)
	})
}

func ptr[T any](v T) *T { return &v }

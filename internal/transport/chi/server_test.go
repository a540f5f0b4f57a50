package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
)

type testEnv struct {
	store   *fakeStore
	ingest  *fakeIngester
	health  *fakeHealth
	handler http.Handler
}

func newTestEnv(apiKeys ...string) *testEnv {
	env := &testEnv{
		store:  &fakeStore{},
		ingest: &fakeIngester{},
		health: &fakeHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{
			healthuc.ComponentIndex: healthuc.CheckOK,
		}}},
	}
	env.handler = NewServer(env.store, env.ingest, env.health, nil).Handler(apiKeys)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestIngestFile(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPost, "/v1/tenants/alice@example.com/files",
		`{"filename":"a.txt","db_file_id":42,"text":"hello","metadata":{"author":"ann"}}`)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	doc := env.ingest.doc
	if doc.Tenant != "alice@example.com" || doc.Filename != "a.txt" || *doc.FileRef != 42 || doc.Metadata["author"] != "ann" {
		t.Errorf("document = %+v", doc)
	}
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "11" {
		t.Errorf("X-Embedding-Tokens = %q", got)
	}
	body := decodeBody[map[string]any](t, rr)
	if body["chunks"] != float64(2) || body["replaced"] != nil {
		t.Errorf("body = %v", body)
	}
}

func TestReingestFile(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPut, "/v1/tenants/t/files", `{"filename":"a.txt","text":"hello"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if len(env.ingest.calls) != 1 || env.ingest.calls[0] != "reingest" {
		t.Errorf("calls = %v", env.ingest.calls)
	}
	body := decodeBody[map[string]any](t, rr)
	replaced, _ := body["replaced"].(map[string]any)
	if replaced["deleted_chunks"] != float64(5) || replaced["method"] != "by_reference" {
		t.Errorf("replaced = %v", body["replaced"])
	}
}

func TestIngestFile_BadBody(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPost, "/v1/tenants/t/files", `{"filename":`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeBadRequest {
		t.Errorf("code = %s", resp.Code)
	}
	if len(env.ingest.calls) != 0 {
		t.Error("ingester must not be called")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    ErrorCode
		message string
	}{
		{"invalid input keeps detail", fmt.Errorf("%w: tenant is required", domain.ErrInvalidInput),
			http.StatusBadRequest, CodeValidationFailed, "invalid input: tenant is required"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, CodeNotFound, "not found"},
		{"quota", fmt.Errorf("budget check: %w", domain.ErrEmbeddingQuotaExceeded),
			http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded, "embedding quota exceeded"},
		{"rate limited", fmt.Errorf("%w: %w", domain.ErrRateLimited, domain.ErrEmbeddingProviderError),
			http.StatusTooManyRequests, CodeRateLimited, "rate limited"},
		{"provider", domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError,
			"embedding provider error"},
		{"storage hides detail", fmt.Errorf("search: %w: FT.SEARCH: connection refused 10.0.0.1", domain.ErrStorage),
			http.StatusServiceUnavailable, CodeStorageUnavailable, "storage error"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout, "context deadline exceeded"},
		{"unknown", errors.New("secret internals"), http.StatusInternalServerError, CodeInternalError, "internal error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv()
			env.store.err = tc.err

			rr := env.do(t, http.MethodPost, "/v1/tenants/t/search", `{"query":"q"}`)

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Code != tc.code || resp.Message != tc.message {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestSearchDocuments(t *testing.T) {
	env := newTestEnv()
	env.store.hits = []hit.Hit{{ID: "a.txt#chunk1", Score: 0.9, Filename: "a.txt", SequenceNumber: 1}}

	rr := env.do(t, http.MethodPost, "/v1/tenants/T/search", `{
		"query": "vectors",
		"top_k": 7,
		"filters": {
			"must": [{"key": "filename", "match": "a.txt"}],
			"must_not": [{"key": "chunk_number", "range": {"gt": 10}}]
		}
	}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if env.store.tenant != "T" || env.store.query != "vectors" || env.store.topK != 7 {
		t.Errorf("store got tenant=%q query=%q topK=%d", env.store.tenant, env.store.query, env.store.topK)
	}
	must, mustNot := env.store.filters.Must(), env.store.filters.MustNot()
	if len(must) != 1 || must[0].Key() != "filename" || must[0].Match() != "a.txt" {
		t.Errorf("must = %v", must)
	}
	if len(mustNot) != 1 || !mustNot[0].IsRange() || *mustNot[0].Range().GT() != 10 {
		t.Errorf("must_not = %v", mustNot)
	}
	if got := rr.Header().Get("X-Embedding-Tokens"); got != "4" {
		t.Errorf("X-Embedding-Tokens = %q", got)
	}
	resp := decodeBody[HitListResponse](t, rr)
	if resp.Total != 1 || resp.Items[0].ID != "a.txt#chunk1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSearchDocuments_EmptyResultIsArray(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPost, "/v1/tenants/t/search", `{"query":"q"}`)

	if !strings.Contains(rr.Body.String(), `"items":[]`) {
		t.Errorf("body = %s", rr.Body)
	}
}

func TestSearchDocuments_InvalidFilter(t *testing.T) {
	tests := map[string]string{
		"match and range": `{"query":"q","filters":{"must":[{"key":"filename","match":"a","range":{"gt":1}}]}}`,
		"neither":         `{"query":"q","filters":{"must":[{"key":"filename"}]}}`,
		"empty match":     `{"query":"q","filters":{"should":[{"key":"filename","match":""}]}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv()
			rr := env.do(t, http.MethodPost, "/v1/tenants/t/search", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
			if env.store.query != "" {
				t.Error("store must not be called")
			}
		})
	}
}

func TestSearchFile(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPost, "/v1/tenants/t/files/search", `{"filename":"a.txt","query":"q"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if env.store.filename != "a.txt" || env.store.topK != 0 {
		t.Errorf("filename=%q topK=%d", env.store.filename, env.store.topK)
	}
}

func TestFileContext(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodGet, "/v1/tenants/t/files/context?filename=a%20b.txt&max_chunks=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if env.store.filename != "a b.txt" || env.store.maxChunks != 5 {
		t.Errorf("filename=%q maxChunks=%d", env.store.filename, env.store.maxChunks)
	}

	rr = env.do(t, http.MethodGet, "/v1/tenants/t/files/context?filename=a.txt&max_chunks=many", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad max_chunks: status = %d", rr.Code)
	}
}

func TestBatchSearch(t *testing.T) {
	env := newTestEnv()
	env.store.batch = []batch.Result{
		batch.NewOK(batch.Query{ID: "q1", Text: "first"}, []hit.Hit{{ID: "x"}}),
		batch.NewError(batch.Query{ID: "q2", Text: "second"}, fmt.Errorf("search: %w", domain.ErrStorage)),
	}

	rr := env.do(t, http.MethodPost, "/v1/tenants/t/batch-search", `{"queries":[
		{"id":"q1","query":"first","top_k":3},
		{"id":"q2","query":"second","filters":{"must":[{"key":"document_type","match":"note"}]}}
	]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if len(env.store.queries) != 2 || env.store.queries[0].TopK != 3 || env.store.queries[1].Filters.IsEmpty() {
		t.Errorf("queries = %+v", env.store.queries)
	}
	resp := decodeBody[BatchSearchResponse](t, rr)
	if resp.Succeeded != 1 || resp.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d", resp.Succeeded, resp.Failed)
	}
	if resp.Items[0].QueryID != "q1" || len(resp.Items[0].Hits) != 1 || resp.Items[0].Error != nil {
		t.Errorf("item 0 = %+v", resp.Items[0])
	}
	failed := resp.Items[1]
	if failed.Status != "error" || failed.Error == nil || failed.Error.Code != CodeStorageUnavailable {
		t.Errorf("item 1 = %+v", failed)
	}
	if failed.Hits == nil {
		t.Error("failed item must carry an empty hit list")
	}
}

func TestBatchSearch_Size(t *testing.T) {
	tooMany := `{"queries":[` + strings.Repeat(`{"query":"q"},`, batch.MaxQueries) + `{"query":"q"}]}`
	for name, body := range map[string]string{"empty": `{"queries":[]}`, "too many": tooMany} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv()
			if rr := env.do(t, http.MethodPost, "/v1/tenants/t/batch-search", body); rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rr.Code)
			}
		})
	}
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodDelete, "/v1/tenants/t/files/42?filename=old.txt", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body)
	}
	if env.store.fileRef != 42 || env.store.filename != "old.txt" {
		t.Errorf("fileRef=%d fallback=%q", env.store.fileRef, env.store.filename)
	}
	body := decodeBody[map[string]any](t, rr)
	if body["deleted_chunks"] != float64(3) || body["method"] != "by_reference" || body["verified"] != true {
		t.Errorf("body = %v", body)
	}

	if rr := env.do(t, http.MethodDelete, "/v1/tenants/t/files/abc", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric reference: status = %d", rr.Code)
	}
}

func TestDeleteFileByName(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodDelete, "/v1/tenants/t/files?filename=a.txt", "")

	if rr.Code != http.StatusOK || env.store.filename != "a.txt" {
		t.Fatalf("status = %d filename=%q", rr.Code, env.store.filename)
	}
	if body := decodeBody[map[string]any](t, rr); body["deleted_chunks"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestDeleteTenant_UnknownCount(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodDelete, "/v1/tenants/bob", "")

	if rr.Code != http.StatusOK || env.store.tenant != "bob" {
		t.Fatalf("status = %d tenant=%q", rr.Code, env.store.tenant)
	}
	if body := decodeBody[map[string]any](t, rr); body["deleted_vectors"] != "unknown" {
		t.Errorf("body = %v", body)
	}
}

func TestStatsAndSummary(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodGet, "/v1/tenants/t/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rr.Code)
	}
	if body := decodeBody[map[string]any](t, rr); body["total_chunks"] != float64(4) {
		t.Errorf("stats = %v", body)
	}

	rr = env.do(t, http.MethodGet, "/v1/tenants/t/files/summary?filename=a.txt", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rr.Code)
	}
	if body := decodeBody[map[string]any](t, rr); body["exists"] != true || body["filename"] != "a.txt" {
		t.Errorf("summary = %v", body)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		want   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			env := newTestEnv()
			env.health.report = healthuc.Report{Status: tc.status, Checks: map[string]healthuc.CheckResult{
				healthuc.ComponentIndex: healthuc.CheckOK,
			}}

			rr := env.do(t, http.MethodGet, "/health", "")
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
			resp := decodeBody[HealthResponse](t, rr)
			if resp.Status != string(tc.status) || resp.Checks[healthuc.ComponentIndex] != "ok" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestHandler_AuthAndUnknownRoute(t *testing.T) {
	env := newTestEnv("secret")

	if rr := env.do(t, http.MethodGet, "/v1/tenants/t/stats", ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("without token: status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health: status = %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/nothing", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route: status = %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeNotFound {
		t.Errorf("code = %s", resp.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestHandler_RecoversPanic(t *testing.T) {
	env := newTestEnv()
	env.store.panic = true

	rr := env.do(t, http.MethodPost, "/v1/tenants/t/search", `{"query":"q"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeInternalError {
		t.Errorf("code = %s", resp.Code)
	}
}

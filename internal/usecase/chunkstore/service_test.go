package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/chunk"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
)

const tenant = "  Alice@Example.com "

// --- Store ---

func TestStore_UsesFileRefForRecordIDs(t *testing.T) {
	svc, idx := newTestService(t, Config{})

	res, err := svc.Store(context.Background(), tenant, ref(42), "report.pdf", payloads(3, "pdf"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.Stored != 3 || res.Namespace != "alice@example.com" {
		t.Errorf("unexpected result: %+v", res)
	}
	want := []string{"file_42#chunk1", "file_42#chunk2", "file_42#chunk3"}
	if got := idx.ids("alice@example.com"); !slices.Equal(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
	if idx.upserts != 1 {
		t.Errorf("expected one batch upsert, got %d", idx.upserts)
	}
}

func TestStore_FilenameIDsWithoutFileRef(t *testing.T) {
	svc, idx := newTestService(t, Config{})

	if _, err := svc.Store(context.Background(), tenant, nil, "notes.txt", payloads(2, "text")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	want := []string{"notes.txt#chunk1", "notes.txt#chunk2"}
	if got := idx.ids("alice@example.com"); !slices.Equal(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestStore_Idempotent(t *testing.T) {
	svc, idx := newTestService(t, Config{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Store(ctx, tenant, ref(7), "a.txt", payloads(4, "text")); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	hits, err := svc.SearchAcrossDocuments(ctx, tenant, "anything", filter.Expression{}, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	ids := hit.IDs(hits)
	slices.Sort(ids)
	if len(slices.Compact(ids)) != 4 || idx.count("alice@example.com") != 4 {
		t.Errorf("expected 4 unique records, got %v", hit.IDs(hits))
	}
}

func TestStore_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		tenant   string
		filename string
		chunks   []chunk.Payload
	}{
		{"empty batch", tenant, "a.txt", nil},
		{"blank tenant", "   ", "a.txt", payloads(1, "text")},
		{"blank filename", tenant, " ", payloads(1, "text")},
		{"tag separator in filename", tenant, "a|b.txt", payloads(1, "text")},
		{"duplicate sequence", tenant, "a.txt", append(payloads(2, "text"), chunk.Payload{Text: "x", SequenceNumber: 2})},
		{"zero sequence", tenant, "a.txt", []chunk.Payload{{Text: "x"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, idx := newTestService(t, Config{})
			_, err := svc.Store(context.Background(), tc.tenant, nil, tc.filename, tc.chunks)
			if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrStorage and ErrInvalidInput, got %v", err)
			}
			if idx.upserts != 0 {
				t.Error("index must not be called for invalid input")
			}
		})
	}
}

func TestStore_TextLengthInRunes(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	chunks := []chunk.Payload{
		{Text: "привет мир", SequenceNumber: 1, DocumentType: "text"},
		{Text: "日本語", SequenceNumber: 2, DocumentType: "text"},
	}

	res, err := svc.Store(context.Background(), tenant, nil, "ru.txt", chunks)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.TotalTextLength != 13 {
		t.Errorf("TotalTextLength = %d, want 13", res.TotalTextLength)
	}
}

func TestStore_IndexFailure(t *testing.T) {
	svc, idx := newTestService(t, Config{})
	idx.upsertErr = errIndexDown

	_, err := svc.Store(context.Background(), tenant, nil, "a.txt", payloads(1, "text"))
	if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, errIndexDown) {
		t.Fatalf("expected ErrStorage wrapping the index error, got %v", err)
	}
	if errors.Is(err, domain.ErrInvalidInput) {
		t.Error("index failure is not an input error")
	}
}

func TestReplace_DeletesThenStores(t *testing.T) {
	svc, idx := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := svc.Store(ctx, tenant, ref(3), "r.txt", payloads(5, "text")); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Replace(ctx, tenant, ref(3), "r.txt", payloads(2, "text"))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if res.Deleted != domain.KnownCount(5) || res.Method != MethodByReference || res.Stored != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := idx.count("alice@example.com"); got != 2 {
		t.Errorf("expected 2 records after replace, got %d", got)
	}
}

func TestReplace_ByFilename(t *testing.T) {
	svc, idx := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := svc.Store(ctx, tenant, nil, "r.txt", payloads(3, "text")); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Replace(ctx, tenant, nil, "r.txt", payloads(1, "text"))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if res.Deleted != domain.KnownCount(3) || res.Method != MethodFilename {
		t.Errorf("unexpected result: %+v", res)
	}
	if got := idx.count("alice@example.com"); got != 1 {
		t.Errorf("expected 1 record after replace, got %d", got)
	}
}

// --- Search ---

func TestSearchInFile_ScopesAndRanks(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()
	mustStore(t, svc, tenant, ref(1), "one.txt", 3)
	mustStore(t, svc, tenant, ref(2), "two.txt", 4)

	hits, err := svc.SearchInFile(ctx, tenant, "two.txt", "question", 0)
	if err != nil {
		t.Fatalf("SearchInFile: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("expected 4 hits, got %d", len(hits))
	}
	for i, h := range hits {
		if h.Filename != "two.txt" {
			t.Errorf("hit from wrong file: %+v", h)
		}
		if i > 0 && hits[i-1].Score < h.Score {
			t.Errorf("hits not in descending score order: %v", hits)
		}
	}
}

func TestSearch_InvalidRequests(t *testing.T) {
	svc, idx := newTestService(t, Config{})
	ctx := context.Background()

	cases := map[string]error{}
	_, cases["empty query"] = svc.SearchAcrossDocuments(ctx, tenant, "  ", filter.Expression{}, 5)
	_, cases["blank tenant"] = svc.SearchAcrossDocuments(ctx, "", "q", filter.Expression{}, 5)
	_, cases["unknown filter"] = svc.SearchAcrossDocuments(ctx, tenant, "q", filter.All(filter.Equal("author", "x")), 5)
	_, cases["blank filename"] = svc.SearchInFile(ctx, tenant, "", "q", 5)

	for name, err := range cases {
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if idx.searches != 0 {
		t.Errorf("index searched %d times for invalid requests", idx.searches)
	}
}

func TestSearch_FailureReturnsEmptyHits(t *testing.T) {
	svc, idx := newTestService(t, Config{})
	idx.searchHook = func(context.Context, string) error { return errIndexDown }

	hits, err := svc.SearchAcrossDocuments(context.Background(), tenant, "q", filter.Expression{}, 5)
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil hits, got %#v", hits)
	}
}

func TestSearch_TenantIsolation(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()
	mustStore(t, svc, "tenant-a@example.com", ref(1), "secret.txt", 3)

	for _, q := range []string{"secret", "chunk 1", "anything"} {
		hits, err := svc.SearchAcrossDocuments(ctx, "tenant-b@example.com", q, filter.Expression{}, 100)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(hits) != 0 {
			t.Errorf("tenant B saw tenant A's chunks for %q: %v", q, hit.IDs(hits))
		}
	}
}

func TestGetFileContext_DocumentOrder(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	mustStore(t, svc, tenant, nil, "long.txt", 12)

	hits, err := svc.GetFileContext(context.Background(), tenant, "long.txt", 0)
	if err != nil {
		t.Fatalf("GetFileContext: %v", err)
	}
	if len(hits) != 12 {
		t.Fatalf("expected 12 chunks, got %d", len(hits))
	}
	for i, h := range hits {
		if h.SequenceNumber != i+1 {
			t.Fatalf("chunk %d has sequence %d", i, h.SequenceNumber)
		}
	}
}

func TestGetFileContext_MaxChunks(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	mustStore(t, svc, tenant, nil, "long.txt", 12)

	hits, err := svc.GetFileContext(context.Background(), tenant, "long.txt", 5)
	if err != nil {
		t.Fatalf("GetFileContext: %v", err)
	}
	if len(hits) != 5 || hits[0].SequenceNumber != 1 || hits[4].SequenceNumber != 5 {
		t.Errorf("expected the first 5 chunks, got %v", hit.IDs(hits))
	}
}

// --- BatchSearch ---

func TestBatchSearch_FailureIsolated(t *testing.T) {
	svc, idx := newTestService(t, Config{MaxConcurrentCalls: 3})
	mustStore(t, svc, tenant, ref(1), "doc.txt", 3)
	idx.searchHook = func(_ context.Context, query string) error {
		if query == "query 4" {
			return errIndexDown
		}
		return nil
	}

	queries := make([]batch.Query, 10)
	for i := range queries {
		queries[i] = batch.Query{ID: "q" + strconv.Itoa(i+1), Text: "query " + strconv.Itoa(i+1)}
	}

	results, err := svc.BatchSearch(context.Background(), tenant, queries)
	if err != nil {
		t.Fatalf("BatchSearch: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if r.QueryID() != queries[i].ID {
			t.Errorf("result %d has id %q, want %q", i, r.QueryID(), queries[i].ID)
		}
		if i == 3 {
			if r.Status() != batch.StatusError || !errors.Is(r.Err(), errIndexDown) || len(r.Hits()) != 0 {
				t.Errorf("query 4: expected error and no hits, got status=%s err=%v hits=%d",
					r.Status(), r.Err(), len(r.Hits()))
			}
			continue
		}
		if r.Status() != batch.StatusOK || len(r.Hits()) != 3 {
			t.Errorf("query %d: status=%s err=%v hits=%d", i+1, r.Status(), r.Err(), len(r.Hits()))
		}
	}
}

func TestBatchSearch_GeneratesIDsAndValidatesPerQuery(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	results, err := svc.BatchSearch(context.Background(), tenant, []batch.Query{
		{Text: "fine"},
		{Text: ""},
		{Text: "bad filter", Filters: filter.All(filter.Equal(chunk.KeyChunkNumber, "3"))},
	})
	if err != nil {
		t.Fatalf("BatchSearch: %v", err)
	}
	if results[0].QueryID() == "" || results[0].Err() != nil {
		t.Errorf("first query: id=%q err=%v", results[0].QueryID(), results[0].Err())
	}
	for _, r := range results[1:] {
		if !errors.Is(r.Err(), domain.ErrInvalidInput) {
			t.Errorf("query %q: expected ErrInvalidInput, got %v", r.Query(), r.Err())
		}
	}
}

func TestBatchSearch_Limits(t *testing.T) {
	svc, _ := newTestService(t, Config{})

	if _, err := svc.BatchSearch(context.Background(), " ", nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("blank tenant: expected ErrInvalidInput, got %v", err)
	}
	tooMany := make([]batch.Query, batch.MaxQueries+1)
	if _, err := svc.BatchSearch(context.Background(), tenant, tooMany); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("oversized batch: expected ErrInvalidInput, got %v", err)
	}
}

// --- Concurrency ---

func TestLimiter_BoundsConcurrentCalls(t *testing.T) {
	const limit = 2
	svc, idx := newTestService(t, Config{MaxConcurrentCalls: limit})

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	idx.searchHook = func(context.Context, string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.SearchAcrossDocuments(context.Background(), tenant, fmt.Sprintf("q%d", i), filter.Expression{}, 5)
		}()
	}

	waitFor(t, func() bool { return inFlight.Load() == limit })
	close(release)
	wg.Wait()

	if peak.Load() > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", peak.Load(), limit)
	}
}

func TestLimiter_CancelDoesNotLeakSlot(t *testing.T) {
	svc, idx := newTestService(t, Config{MaxConcurrentCalls: 1})

	entered := make(chan struct{})
	release := make(chan struct{})
	idx.searchHook = func(ctx context.Context, query string) error {
		if query != "holder" {
			return nil
		}
		close(entered)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	holderDone := make(chan error, 1)
	go func() {
		_, err := svc.SearchAcrossDocuments(context.Background(), tenant, "holder", filter.Expression{}, 5)
		holderDone <- err
	}()
	<-entered

	// A waiter whose context is canceled gives up without taking the slot.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.SearchAcrossDocuments(ctx, tenant, "waiter", filter.Expression{}, 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if errors.Is(err, domain.ErrStorage) {
		t.Error("cancellation must not be reported as a storage error")
	}

	close(release)
	if err := <-holderDone; err != nil {
		t.Fatalf("holder: %v", err)
	}

	// The slot is free again.
	if _, err := svc.SearchAcrossDocuments(context.Background(), tenant, "after", filter.Expression{}, 5); err != nil {
		t.Fatalf("search after cancellation: %v", err)
	}
}

func TestLimiter_CanceledInFlightCallReleasesSlot(t *testing.T) {
	svc, idx := newTestService(t, Config{MaxConcurrentCalls: 1})
	idx.searchHook = func(ctx context.Context, query string) error {
		if query != "slow" {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.SearchAcrossDocuments(ctx, tenant, "slow", filter.Expression{}, 5)
		done <- err
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := svc.SearchAcrossDocuments(context.Background(), tenant, "next", filter.Expression{}, 5); err != nil {
		t.Fatalf("slot leaked after cancellation: %v", err)
	}
}

// --- Helpers ---

func mustStore(t *testing.T, svc *Service, tenant string, fileRef *int64, filename string, n int) {
	t.Helper()
	if _, err := svc.Store(context.Background(), tenant, fileRef, filename, payloads(n, "text")); err != nil {
		t.Fatalf("Store(%s): %v", filename, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

package chi

import (
	"context"

	"github.com/kailas-cloud/ragstore/internal/domain"
	"github.com/kailas-cloud/ragstore/internal/domain/batch"
	"github.com/kailas-cloud/ragstore/internal/domain/search/filter"
	"github.com/kailas-cloud/ragstore/internal/domain/search/hit"
	"github.com/kailas-cloud/ragstore/internal/usecase/chunkstore"
	healthuc "github.com/kailas-cloud/ragstore/internal/usecase/health"
	"github.com/kailas-cloud/ragstore/internal/usecase/ingest"
)

// fakeStore records the last call's arguments and returns canned results.
type fakeStore struct {
	err   error
	panic bool
	hits  []hit.Hit
	batch []batch.Result

	tenant    string
	filename  string
	query     string
	topK      int
	maxChunks int
	fileRef   int64
	filters   filter.Expression
	queries   []batch.Query
}

func (f *fakeStore) SearchInFile(_ context.Context, tenant, filename, query string, topK int) ([]hit.Hit, error) {
	f.tenant, f.filename, f.query, f.topK = tenant, filename, query, topK
	return f.hits, f.err
}

func (f *fakeStore) SearchAcrossDocuments(
	ctx context.Context, tenant, query string, filters filter.Expression, topK int,
) ([]hit.Hit, error) {
	if f.panic {
		panic("boom")
	}
	f.tenant, f.query, f.filters, f.topK = tenant, query, filters, topK
	domain.UsageFromContext(ctx).AddTokens(4)
	return f.hits, f.err
}

func (f *fakeStore) GetFileContext(_ context.Context, tenant, filename string, maxChunks int) ([]hit.Hit, error) {
	f.tenant, f.filename, f.maxChunks = tenant, filename, maxChunks
	return f.hits, f.err
}

func (f *fakeStore) BatchSearch(_ context.Context, tenant string, queries []batch.Query) ([]batch.Result, error) {
	f.tenant, f.queries = tenant, queries
	return f.batch, f.err
}

func (f *fakeStore) DeleteByFileRef(
	_ context.Context, tenant string, fileRef int64, filenameFallback string,
) (chunkstore.DeleteResult, error) {
	f.tenant, f.fileRef, f.filename = tenant, fileRef, filenameFallback
	return chunkstore.DeleteResult{
		Deleted: domain.KnownCount(3), Method: chunkstore.MethodByReference, FileRef: fileRef, Verified: true,
	}, f.err
}

func (f *fakeStore) DeleteByFilename(_ context.Context, tenant, filename string) (domain.Count, error) {
	f.tenant, f.filename = tenant, filename
	return domain.KnownCount(2), f.err
}

func (f *fakeStore) DeleteAllForTenant(_ context.Context, tenant string) (chunkstore.TenantDeleteResult, error) {
	f.tenant = tenant
	return chunkstore.TenantDeleteResult{
		Deleted: domain.UnknownCount(), Namespace: tenant, Method: chunkstore.MethodNamespace,
	}, f.err
}

func (f *fakeStore) TenantStats(_ context.Context, tenant string) (chunkstore.TenantStats, error) {
	f.tenant = tenant
	return chunkstore.TenantStats{Namespace: tenant, TotalDocuments: 1, TotalChunks: 4}, f.err
}

func (f *fakeStore) DocumentSummary(_ context.Context, tenant, filename string) (chunkstore.DocumentSummary, error) {
	f.tenant, f.filename = tenant, filename
	return chunkstore.DocumentSummary{Filename: filename, Exists: true, ChunkCount: 4}, f.err
}

type fakeIngester struct {
	err   error
	calls []string
	doc   ingest.Document
}

func (f *fakeIngester) Ingest(ctx context.Context, doc ingest.Document) (ingest.Result, error) {
	return f.run(ctx, "ingest", doc)
}

func (f *fakeIngester) Reingest(ctx context.Context, doc ingest.Document) (ingest.Result, error) {
	return f.run(ctx, "reingest", doc)
}

func (f *fakeIngester) run(ctx context.Context, op string, doc ingest.Document) (ingest.Result, error) {
	f.calls = append(f.calls, op)
	f.doc = doc
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	domain.UsageFromContext(ctx).AddTokens(11)
	res := ingest.Result{Namespace: doc.Tenant, Filename: doc.Filename, Chunks: 2}
	if op == "reingest" {
		res.Replaced = &ingest.Replaced{Deleted: domain.KnownCount(5), Method: "by_reference"}
	}
	return res, nil
}

type fakeHealth struct{ report healthuc.Report }

func (f fakeHealth) Check(context.Context) healthuc.Report { return f.report }

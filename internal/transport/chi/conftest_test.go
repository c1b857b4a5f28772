package chi

import (
	"context"

	"go.uber.org/zap"

	"github.com/faithful-rag/ragserve/internal/domain"
	"github.com/faithful-rag/ragserve/internal/usecase/exporter"
	"github.com/faithful-rag/ragserve/internal/usecase/indexer"
	"github.com/faithful-rag/ragserve/internal/usecase/query"
	runloguc "github.com/faithful-rag/ragserve/internal/usecase/runlog"
)

type mockAsker struct {
	askFn func(ctx context.Context, req query.Request) (query.Response, error)
}

func (m *mockAsker) Ask(ctx context.Context, req query.Request) (query.Response, error) {
	if m.askFn != nil {
		return m.askFn(ctx, req)
	}
	return query.Response{}, nil
}

type mockRunService struct {
	recentFn func(ctx context.Context, limit int) ([]domain.RunRecord, error)
	patchFn  func(ctx context.Context, id string, req runloguc.PatchRequest) (domain.RunRecord, error)
	clearFn  func(ctx context.Context) (int, error)
}

func (m *mockRunService) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockRunService) Patch(
	ctx context.Context, id string, req runloguc.PatchRequest,
) (domain.RunRecord, error) {
	if m.patchFn != nil {
		return m.patchFn(ctx, id, req)
	}
	return domain.RunRecord{}, nil
}

func (m *mockRunService) Clear(ctx context.Context) (int, error) {
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	return 0, nil
}

type mockExportService struct {
	exportFn func(ctx context.Context) ([]exporter.Example, error)
}

func (m *mockExportService) Export(ctx context.Context) ([]exporter.Example, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx)
	}
	return nil, nil
}

type mockIndexService struct {
	buildFn func(ctx context.Context) (indexer.BuildResult, error)
}

func (m *mockIndexService) Build(ctx context.Context) (indexer.BuildResult, error) {
	if m.buildFn != nil {
		return m.buildFn(ctx)
	}
	return indexer.BuildResult{}, nil
}

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type serverMocks struct {
	asker  *mockAsker
	runs   *mockRunService
	export *mockExportService
	index  *mockIndexService
	pinger *mockPinger
}

func newTestServer() (*Server, *serverMocks) {
	m := &serverMocks{
		asker:  &mockAsker{},
		runs:   &mockRunService{},
		export: &mockExportService{},
		index:  &mockIndexService{},
		pinger: &mockPinger{},
	}
	s := NewServer(m.asker, m.runs, m.export, m.index, m.pinger, zap.NewNop())
	return s, m
}

package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/ports"
	"github.com/samirrijal/cadastre/internal/core/survey"
	"github.com/samirrijal/cadastre/internal/core/usecases"
)

// --- Mock PlanRepository ---

type mockPlanRepo struct {
	saveFn   func(ctx context.Context, snap *domain.PlanSnapshot) error
	loadFn   func(ctx context.Context, planID string) (*domain.PlanSnapshot, error)
	listFn   func(ctx context.Context) ([]domain.PlanInfo, error)
	deleteFn func(ctx context.Context, planID string) error
}

func (m *mockPlanRepo) Save(ctx context.Context, snap *domain.PlanSnapshot) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, snap)
	}
	return nil
}

func (m *mockPlanRepo) Load(ctx context.Context, planID string) (*domain.PlanSnapshot, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, planID)
	}
	return nil, domain.ErrPlanNotFound
}

func (m *mockPlanRepo) List(ctx context.Context) ([]domain.PlanInfo, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockPlanRepo) Delete(ctx context.Context, planID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, planID)
	}
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu     sync.Mutex
	events []*domain.SurveyEvent
	err    error
}

func (m *mockPublisher) PublishSurveyEvent(ctx context.Context, event *domain.SurveyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *mockPublisher) kinds() []domain.EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.EventKind, len(m.events))
	for i, e := range m.events {
		out[i] = e.Kind
	}
	return out
}

// --- Mock CacheService ---

type mockCache struct {
	data map[string][]byte
	gets int
	hits int
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.gets++
	if v, ok := m.data[key]; ok {
		m.hits++
		return v, nil
	}
	return nil, errors.New("miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttl int) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// --- Mock PlanArchiver ---

type mockArchiver struct {
	archiveFn func(ctx context.Context, snap *domain.PlanSnapshot) (string, error)
}

func (m *mockArchiver) ArchivePlan(ctx context.Context, snap *domain.PlanSnapshot) (string, error) {
	return m.archiveFn(ctx, snap)
}

// --- Helpers ---

func newService(repo *mockPlanRepo, pub *mockPublisher, cache *mockCache) *usecases.PlanService {
	return usecases.NewPlanService(nilIfRepo(repo), nilIfPub(pub), nilIfCache(cache), nil, survey.DefaultOptions(), 60)
}

func nilIfRepo(r *mockPlanRepo) ports.PlanRepository {
	if r == nil {
		return nil
	}
	return r
}

func nilIfPub(p *mockPublisher) ports.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func nilIfCache(c *mockCache) ports.CacheService {
	if c == nil {
		return nil
	}
	return c
}

func createPlan(t *testing.T, svc *usecases.PlanService) string {
	t.Helper()
	info, err := svc.Create(context.Background(), "DP 1234")
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return info.ID
}

// --- Tests ---

func TestPlanService_CreateAndAddPoints(t *testing.T) {
	svc := newService(nil, nil, nil)
	ctx := context.Background()
	id := createPlan(t, svc)

	if _, err := svc.AddPoint(ctx, id, domain.Point{Number: 1, Easting: 10, Northing: 20}); err != nil {
		t.Fatalf("add point: %v", err)
	}
	_, err := svc.AddPoint(ctx, id, domain.Point{Number: 1})
	if !errors.Is(err, domain.ErrDuplicatePointNumber) {
		t.Errorf("expected ErrDuplicatePointNumber, got %v", err)
	}

	pts, err := svc.Points(ctx, id)
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if len(pts) != 1 || pts[0].Layer != domain.LayerBoundary {
		t.Errorf("unexpected points: %+v", pts)
	}

	info, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Name != "DP 1234" || info.Points != 1 || info.Revision != 1 {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestPlanService_UnknownPlan(t *testing.T) {
	svc := newService(nil, nil, nil)
	_, err := svc.Points(context.Background(), "missing")
	if !errors.Is(err, domain.ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound, got %v", err)
	}

	svc = newService(&mockPlanRepo{}, nil, nil)
	_, err = svc.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrPlanNotFound) {
		t.Errorf("expected ErrPlanNotFound from repo, got %v", err)
	}
}

func TestPlanService_TraverseLifecyclePublishesEvents(t *testing.T) {
	pub := &mockPublisher{}
	svc := newService(nil, pub, nil)
	ctx := context.Background()
	id := createPlan(t, svc)

	if _, err := svc.AddPoint(ctx, id, domain.Point{Number: 3, Easting: 100.003, Northing: -0.002}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartTraverse(ctx, id, domain.Point{Number: 1}); err != nil {
		t.Fatal(err)
	}
	ext, err := svc.ExtendByBearingDistance(ctx, id, survey.BearingDistance{From: 1, Bearing: 90, Distance: 100, Number: 2})
	if err != nil {
		t.Fatal(err)
	}
	if ext.Suggestion == nil || ext.Suggestion.Point.Number != 3 {
		t.Fatalf("expected close suggestion on point 3, got %+v", ext.Suggestion)
	}

	if err := svc.MarkClosingCandidate(ctx, id, 3); err != nil {
		t.Fatal(err)
	}
	m, err := svc.Misclosure(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Band != domain.BandExcellent {
		t.Errorf("band = %s, want excellent", m.Band)
	}

	res, err := svc.Adjust(ctx, id, m.DeltaEasting, m.DeltaNorthing)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("adjustment failed: %+v", res)
	}
	if _, err := svc.CommitTraverse(ctx, id); err != nil {
		t.Fatal(err)
	}

	want := []domain.EventKind{
		domain.EventPointComputed,
		domain.EventMisclosure,
		domain.EventAdjustment,
		domain.EventTraverseCommitted,
	}
	got := pub.kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	for _, ev := range pub.events {
		if ev.PlanID != id || len(ev.Payload) == 0 {
			t.Errorf("bad event: %+v", ev)
		}
	}

	trs, err := svc.Traverses(ctx, id)
	if err != nil || len(trs) != 1 {
		t.Errorf("traverses = %v, %v", trs, err)
	}
	if _, err := svc.ActiveTraverse(ctx, id); !errors.Is(err, domain.ErrNoActiveTraverse) {
		t.Errorf("expected no active traverse, got %v", err)
	}
}

func TestPlanService_AdjustRejectedIsNotAnError(t *testing.T) {
	svc := newService(nil, nil, nil)
	ctx := context.Background()
	id := createPlan(t, svc)

	_, _ = svc.AddPoint(ctx, id, domain.Point{Number: 3, Easting: 100.003, Northing: -0.002})
	_, _ = svc.StartTraverse(ctx, id, domain.Point{Number: 1})
	_, _ = svc.ExtendByBearingDistance(ctx, id, survey.BearingDistance{From: 1, Bearing: 90, Distance: 100, Number: 2})
	_ = svc.MarkClosingCandidate(ctx, id, 3)

	res, err := svc.Adjust(ctx, id, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Error("expected rejected adjustment")
	}
	pt, _ := svc.Point(ctx, id, 2)
	if pt.Easting != 100 {
		t.Errorf("point 2 moved to %v", pt.Easting)
	}
}

func TestPlanService_PublishFailureDoesNotFailOperation(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	svc := newService(nil, pub, nil)
	ctx := context.Background()
	id := createPlan(t, svc)

	_, _ = svc.StartTraverse(ctx, id, domain.Point{Number: 1})
	if _, err := svc.ExtendByBearingDistance(ctx, id, survey.BearingDistance{From: 1, Bearing: 10, Distance: 5, Number: 2}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPlanService_SaveSnapshot(t *testing.T) {
	var saved []*domain.PlanSnapshot
	repo := &mockPlanRepo{
		saveFn: func(ctx context.Context, snap *domain.PlanSnapshot) error {
			saved = append(saved, snap)
			return nil
		},
	}
	pub := &mockPublisher{}
	svc := newService(repo, pub, nil)
	ctx := context.Background()
	id := createPlan(t, svc)

	for i, c := range [][2]float64{{0, 0}, {10, 0}, {10, 10}, {0, 10}} {
		if _, err := svc.AddPoint(ctx, id, domain.Point{Number: i + 1, Easting: c[0], Northing: c[1]}); err != nil {
			t.Fatal(err)
		}
	}
	poly, err := svc.CommitPolygon(ctx, id, []int{1, 2, 3, 4}, domain.PolygonMeta{LotNumber: "1", PlanNumber: "DP 1234"})
	if err != nil {
		t.Fatal(err)
	}
	if poly.Area != 100 {
		t.Errorf("area = %v, want 100", poly.Area)
	}
	_, _ = svc.StartTraverse(ctx, id, domain.Point{Number: 1})
	_, _ = svc.ExtendByBearingDistance(ctx, id, survey.BearingDistance{From: 1, Bearing: 45, Distance: 3, Number: 9})

	if _, err := svc.Save(ctx, id); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected create + save, got %d saves", len(saved))
	}
	snap := saved[1]
	if snap.PlanID != id || snap.Name != "DP 1234" {
		t.Errorf("bad header: %+v", snap)
	}
	if len(snap.Points) != 4 {
		t.Errorf("saved %d points, want 4 (open traverse point excluded)", len(snap.Points))
	}
	if len(snap.Polygons) != 1 || snap.Polygons[0].LotNumber != "1" {
		t.Errorf("bad polygons: %+v", snap.Polygons)
	}

	kinds := pub.kinds()
	if kinds[len(kinds)-1] != domain.EventPlanSaved {
		t.Errorf("last event = %s, want plan.saved", kinds[len(kinds)-1])
	}
}

func TestPlanService_SaveWithoutRepository(t *testing.T) {
	svc := newService(nil, nil, nil)
	id := createPlan(t, svc)
	_, err := svc.Save(context.Background(), id)
	if !errors.Is(err, usecases.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPlanService_LoadsFromRepositoryOnDemand(t *testing.T) {
	loads := 0
	repo := &mockPlanRepo{
		loadFn: func(ctx context.Context, planID string) (*domain.PlanSnapshot, error) {
			loads++
			return &domain.PlanSnapshot{
				PlanID: planID,
				Name:   "stored",
				Points: []domain.Point{
					{Number: 1}, {Number: 2, Easting: 4}, {Number: 3, Easting: 4, Northing: 3},
				},
				Polygons: []domain.PolygonRecord{
					{LotNumber: "5", Type: domain.PolygonParcel, Points: []int{1, 2, 3}},
				},
			}, nil
		},
	}
	svc := newService(repo, nil, nil)
	ctx := context.Background()

	poly, err := svc.Polygon(ctx, "plan-1", "5")
	if err != nil {
		t.Fatalf("polygon: %v", err)
	}
	if poly.Area != 6 {
		t.Errorf("area = %v, want 6", poly.Area)
	}
	if err := svc.RemovePoint(ctx, "plan-1", 2); !errors.Is(err, domain.ErrPointInUse) {
		t.Errorf("expected ErrPointInUse, got %v", err)
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}

	if _, err := svc.Load(ctx, "plan-1"); err != nil {
		t.Fatal(err)
	}
	if loads != 2 {
		t.Errorf("explicit load should hit the repository again, loads = %d", loads)
	}
}

func TestPlanService_GeoJSONCachedPerRevision(t *testing.T) {
	cache := &mockCache{}
	svc := newService(nil, nil, cache)
	ctx := context.Background()
	id := createPlan(t, svc)
	_, _ = svc.AddPoint(ctx, id, domain.Point{Number: 1})

	first, err := svc.GeoJSON(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.GeoJSON(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) || cache.hits != 1 {
		t.Errorf("expected second call served from cache, hits = %d", cache.hits)
	}

	_, _ = svc.AddPoint(ctx, id, domain.Point{Number: 2, Easting: 1})
	third, _ := svc.GeoJSON(ctx, id)
	if cache.hits != 1 || string(third) == string(first) {
		t.Error("mutation must invalidate the cached view")
	}
}

func TestPlanService_Archive(t *testing.T) {
	var got *domain.PlanSnapshot
	arch := &mockArchiver{archiveFn: func(ctx context.Context, snap *domain.PlanSnapshot) (string, error) {
		got = snap
		return "run-1", nil
	}}
	svc := usecases.NewPlanService(nil, nil, nil, arch, survey.DefaultOptions(), 0)
	id := createPlan(t, svc)

	runID, err := svc.Archive(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if runID != "run-1" || got == nil || got.PlanID != id {
		t.Errorf("runID = %s, snapshot = %+v", runID, got)
	}
}

func TestPlanService_ConcurrentExtensions(t *testing.T) {
	svc := newService(nil, nil, nil)
	ctx := context.Background()
	id := createPlan(t, svc)
	if _, err := svc.StartTraverse(ctx, id, domain.Point{Number: 1}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.ExtendByBearingDistance(ctx, id, survey.BearingDistance{
				From: 1, Bearing: 1, Distance: float64(n + 1), Number: n + 100,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("extension failed: %v", err)
		}
	}

	tr, err := svc.ActiveTraverse(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Legs) != 50 {
		t.Errorf("legs = %d, want 50", len(tr.Legs))
	}
}

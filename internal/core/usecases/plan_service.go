package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/ports"
	"github.com/samirrijal/cadastre/internal/core/survey"
	"github.com/samirrijal/cadastre/internal/pkg/metrics"
	"github.com/samirrijal/cadastre/internal/pkg/telemetry"
)

// ErrUnavailable is returned when an operation needs a dependency that is not configured.
var ErrUnavailable = errors.New("dependency unavailable")

// PlanService owns the in-memory survey plans. Each plan has a single writer:
// every operation on a plan holds that plan's lock, so a partially adjusted
// plan is never observed.
type PlanService struct {
	repo      ports.PlanRepository
	publisher ports.EventPublisher
	cache     ports.CacheService
	archiver  ports.PlanArchiver
	opts      survey.Options
	cacheTTL  int
	tracer    trace.Tracer

	mu    sync.Mutex
	plans map[string]*planEntry
}

type planEntry struct {
	mu         sync.Mutex
	id         string
	name       string
	plan       *survey.Plan
	generation int64 // changes whenever the plan is (re)loaded
	createdAt  time.Time
	updatedAt  time.Time
}

func (e *planEntry) info() domain.PlanInfo {
	_, active := e.plan.ActiveTraverse()
	polys, _ := e.plan.Polygons()
	return domain.PlanInfo{
		ID:             e.id,
		Name:           e.name,
		Points:         len(e.plan.Points()),
		Polygons:       len(polys),
		Traverses:      len(e.plan.Traverses()),
		ActiveTraverse: active,
		Revision:       e.plan.Revision(),
		CreatedAt:      e.createdAt,
		UpdatedAt:      e.updatedAt,
	}
}

// NewPlanService creates a new PlanService. Any of the ports may be nil.
func NewPlanService(
	repo ports.PlanRepository,
	publisher ports.EventPublisher,
	cache ports.CacheService,
	archiver ports.PlanArchiver,
	opts survey.Options,
	cacheTTL int,
) *PlanService {
	return &PlanService{
		repo:      repo,
		publisher: publisher,
		cache:     cache,
		archiver:  archiver,
		opts:      opts,
		cacheTTL:  cacheTTL,
		tracer:    telemetry.Tracer(),
		plans:     make(map[string]*planEntry),
	}
}

// Create starts an empty plan and persists its header row.
func (s *PlanService) Create(ctx context.Context, name string) (domain.PlanInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled plan"
	}
	now := time.Now().UTC()
	e := &planEntry{
		id:         uuid.NewString(),
		name:       name,
		plan:       survey.NewPlan(s.opts),
		generation: now.UnixNano(),
		createdAt:  now,
		updatedAt:  now,
	}

	if s.repo != nil {
		snap := &domain.PlanSnapshot{PlanID: e.id, Name: name, CreatedAt: now, UpdatedAt: now}
		if err := s.repo.Save(ctx, snap); err != nil {
			return domain.PlanInfo{}, fmt.Errorf("create plan: %w", err)
		}
	}

	s.mu.Lock()
	s.plans[e.id] = e
	metrics.PlansLoaded.Set(float64(len(s.plans)))
	s.mu.Unlock()

	slog.Info("plan created", "plan_id", e.id, "name", name)
	return e.info(), nil
}

// Get returns a plan summary, loading the plan from storage if needed.
func (s *PlanService) Get(ctx context.Context, planID string) (domain.PlanInfo, error) {
	var info domain.PlanInfo
	err := s.read(ctx, planID, func(e *planEntry) error {
		info = e.info()
		return nil
	})
	return info, err
}

// List returns the plans held in memory together with those only in storage.
func (s *PlanService) List(ctx context.Context) ([]domain.PlanInfo, error) {
	s.mu.Lock()
	entries := make([]*planEntry, 0, len(s.plans))
	for _, e := range s.plans {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	seen := make(map[string]bool, len(entries))
	out := make([]domain.PlanInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.info())
		e.mu.Unlock()
		seen[e.id] = true
	}

	if s.repo != nil {
		stored, err := s.repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list plans: %w", err)
		}
		for _, p := range stored {
			if !seen[p.ID] {
				out = append(out, p)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete drops a plan from memory and storage.
func (s *PlanService) Delete(ctx context.Context, planID string) error {
	s.mu.Lock()
	_, inMemory := s.plans[planID]
	delete(s.plans, planID)
	metrics.PlansLoaded.Set(float64(len(s.plans)))
	s.mu.Unlock()

	if s.repo == nil {
		if !inMemory {
			return fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
		}
		return nil
	}
	if err := s.repo.Delete(ctx, planID); err != nil {
		return fmt.Errorf("delete plan %s: %w", planID, err)
	}
	slog.Info("plan deleted", "plan_id", planID)
	return nil
}

// Save persists the committed state of a plan. Points created by an open
// traverse stay in memory only.
func (s *PlanService) Save(ctx context.Context, planID string) (domain.PlanInfo, error) {
	if s.repo == nil {
		return domain.PlanInfo{}, fmt.Errorf("save plan: %w: no repository", ErrUnavailable)
	}
	ctx, span := s.tracer.Start(ctx, telemetry.SpanPlanSave, trace.WithAttributes(attribute.String(telemetry.AttrPlanID, planID)))
	defer span.End()

	var (
		snap domain.PlanSnapshot
		info domain.PlanInfo
	)
	err := s.read(ctx, planID, func(e *planEntry) error {
		var err error
		snap, err = e.snapshot()
		info = e.info()
		return err
	})
	if err != nil {
		return domain.PlanInfo{}, traceErr(span, err)
	}

	start := time.Now()
	if err := s.repo.Save(ctx, &snap); err != nil {
		return domain.PlanInfo{}, traceErr(span, fmt.Errorf("save plan %s: %w", planID, err))
	}
	metrics.PlanSaveDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int(telemetry.AttrPoints, len(snap.Points)),
		attribute.Int(telemetry.AttrPolygons, len(snap.Polygons)),
	)

	slog.Info("plan saved", "plan_id", planID, "points", len(snap.Points), "polygons", len(snap.Polygons))
	s.publish(ctx, planID, domain.EventPlanSaved, info)
	return info, nil
}

// Load replaces the in-memory plan with its stored state. An open traverse is dropped.
func (s *PlanService) Load(ctx context.Context, planID string) (domain.PlanInfo, error) {
	e, err := s.load(ctx, planID)
	if err != nil {
		return domain.PlanInfo{}, err
	}

	s.mu.Lock()
	s.plans[planID] = e
	metrics.PlansLoaded.Set(float64(len(s.plans)))
	s.mu.Unlock()

	slog.Info("plan loaded", "plan_id", planID)
	return e.info(), nil
}

// Snapshot returns the persisted form of a plan without saving it.
func (s *PlanService) Snapshot(ctx context.Context, planID string) (domain.PlanSnapshot, error) {
	var snap domain.PlanSnapshot
	err := s.read(ctx, planID, func(e *planEntry) error {
		var err error
		snap, err = e.snapshot()
		return err
	})
	return snap, err
}

// Archive hands the plan snapshot to the archive workflow and returns its run ID.
func (s *PlanService) Archive(ctx context.Context, planID string) (string, error) {
	if s.archiver == nil {
		return "", fmt.Errorf("archive plan: %w: no workflow client", ErrUnavailable)
	}
	ctx, span := s.tracer.Start(ctx, telemetry.SpanArchive, trace.WithAttributes(attribute.String(telemetry.AttrPlanID, planID)))
	defer span.End()

	snap, err := s.Snapshot(ctx, planID)
	if err != nil {
		return "", traceErr(span, err)
	}
	runID, err := s.archiver.ArchivePlan(ctx, &snap)
	if err != nil {
		return "", traceErr(span, fmt.Errorf("archive plan %s: %w", planID, err))
	}
	slog.Info("plan archive started", "plan_id", planID, "run_id", runID)
	return runID, nil
}

// GeoJSON renders the plan as a GeoJSON FeatureCollection, cached per plan revision.
func (s *PlanService) GeoJSON(ctx context.Context, planID string) ([]byte, error) {
	var (
		data []byte
		key  string
	)
	err := s.read(ctx, planID, func(e *planEntry) error {
		key = fmt.Sprintf("plan:%s:geojson:%d:%d", planID, e.generation, e.plan.Revision())
		if s.cache != nil {
			if cached, err := s.cache.Get(ctx, key); err == nil {
				metrics.CacheHits.WithLabelValues("geojson").Inc()
				data = cached
				return nil
			}
			metrics.CacheMisses.WithLabelValues("geojson").Inc()
		}
		fc, err := e.plan.FeatureCollection()
		if err != nil {
			return err
		}
		data, err = json.Marshal(fc)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		_ = s.cache.Set(ctx, key, data, s.cacheTTL)
	}
	return data, nil
}

// AddPoint enters a point with known coordinates.
func (s *PlanService) AddPoint(ctx context.Context, planID string, pt domain.Point) (domain.Point, error) {
	var out domain.Point
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.AddPoint(pt)
		return err
	})
	return out, err
}

// Point returns one live point.
func (s *PlanService) Point(ctx context.Context, planID string, number int) (domain.Point, error) {
	var out domain.Point
	err := s.read(ctx, planID, func(e *planEntry) error {
		var err error
		out, err = e.plan.Point(number)
		return err
	})
	return out, err
}

// Points returns every live point in entry order.
func (s *PlanService) Points(ctx context.Context, planID string) ([]domain.Point, error) {
	var out []domain.Point
	err := s.read(ctx, planID, func(e *planEntry) error {
		out = e.plan.Points()
		return nil
	})
	return out, err
}

// RemovePoint deletes a point that no committed polygon or traverse references.
func (s *PlanService) RemovePoint(ctx context.Context, planID string, number int) error {
	return s.mutate(ctx, planID, func(p *survey.Plan) error {
		return p.RemovePoint(number)
	})
}

// StartTraverse opens a traverse at the given point.
func (s *PlanService) StartTraverse(ctx context.Context, planID string, first domain.Point) (domain.Traverse, error) {
	var out domain.Traverse
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.StartTraverse(first)
		return err
	})
	if err == nil {
		slog.Info("traverse started", "plan_id", planID, "traverse_id", out.ID, "point", first.Number)
	}
	return out, err
}

// ActiveTraverse returns the traverse in progress.
func (s *PlanService) ActiveTraverse(ctx context.Context, planID string) (domain.Traverse, error) {
	var out domain.Traverse
	err := s.read(ctx, planID, func(e *planEntry) error {
		t, ok := e.plan.ActiveTraverse()
		if !ok {
			return domain.ErrNoActiveTraverse
		}
		out = t
		return nil
	})
	return out, err
}

// Traverses lists the committed traverses.
func (s *PlanService) Traverses(ctx context.Context, planID string) ([]domain.Traverse, error) {
	var out []domain.Traverse
	err := s.read(ctx, planID, func(e *planEntry) error {
		out = e.plan.Traverses()
		return nil
	})
	return out, err
}

// ExtendByBearingDistance computes the next traverse point from a bearing and distance.
func (s *PlanService) ExtendByBearingDistance(ctx context.Context, planID string, req survey.BearingDistance) (domain.Extension, error) {
	var out domain.Extension
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.ExtendByBearingDistance(req)
		return err
	})
	if err != nil {
		return domain.Extension{}, err
	}
	metrics.PointsComputed.WithLabelValues("bearing_distance").Inc()
	s.publish(ctx, planID, domain.EventPointComputed, out)
	return out, nil
}

// ExtendByArc computes the next traverse point along a circular arc.
func (s *PlanService) ExtendByArc(ctx context.Context, planID string, req survey.ArcLeg) (domain.Extension, error) {
	var out domain.Extension
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.ExtendByArc(req)
		return err
	})
	if err != nil {
		return domain.Extension{}, err
	}
	metrics.PointsComputed.WithLabelValues("arc").Inc()
	s.publish(ctx, planID, domain.EventPointComputed, out)
	return out, nil
}

// MarkClosingCandidate records the point the traverse is expected to close on.
func (s *PlanService) MarkClosingCandidate(ctx context.Context, planID string, number int) error {
	return s.mutate(ctx, planID, func(p *survey.Plan) error {
		return p.MarkClosingCandidate(number)
	})
}

// Reopen clears the closing candidate so the traverse can be extended again.
func (s *PlanService) Reopen(ctx context.Context, planID string) error {
	return s.mutate(ctx, planID, func(p *survey.Plan) error {
		return p.Reopen()
	})
}

// Misclosure reports the gap between the traverse end and its closing candidate.
func (s *PlanService) Misclosure(ctx context.Context, planID string) (domain.Misclosure, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanMisclosure, trace.WithAttributes(attribute.String(telemetry.AttrPlanID, planID)))
	defer span.End()

	var out domain.Misclosure
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.Misclosure()
		return err
	})
	if err != nil {
		return domain.Misclosure{}, traceErr(span, err)
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrTraverseID, out.TraverseID),
		attribute.String(telemetry.AttrBand, out.Band.String()),
	)
	metrics.Misclosures.WithLabelValues(out.Band.String()).Inc()
	metrics.MisclosureMillimetres.Observe(out.Millimetres())
	s.publish(ctx, planID, domain.EventMisclosure, out)
	return out, nil
}

// Adjust distributes a confirmed misclosure over the active traverse.
// An out-of-tolerance attempt is not an error: the result reports success=false
// and the plan is unchanged.
func (s *PlanService) Adjust(ctx context.Context, planID string, dE, dN float64) (domain.AdjustmentResult, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanAdjust, trace.WithAttributes(attribute.String(telemetry.AttrPlanID, planID)))
	defer span.End()

	var out domain.AdjustmentResult
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.Adjust(dE, dN)
		return err
	})
	if err != nil {
		return domain.AdjustmentResult{}, traceErr(span, err)
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrTraverseID, out.TraverseID),
		attribute.Bool(telemetry.AttrSuccess, out.Success),
	)
	if out.Success {
		metrics.Adjustments.WithLabelValues("applied").Inc()
		slog.Info("traverse adjusted", "plan_id", planID, "traverse_id", out.TraverseID,
			"pre_adjust", out.PreAdjust, "post_adjust", out.PostAdjust)
	} else {
		metrics.Adjustments.WithLabelValues("rejected").Inc()
		slog.Warn("adjustment rejected", "plan_id", planID, "traverse_id", out.TraverseID, "error", out.Err())
	}
	s.publish(ctx, planID, domain.EventAdjustment, out)
	return out, nil
}

// CommitTraverse folds the active traverse into the plan.
func (s *PlanService) CommitTraverse(ctx context.Context, planID string) (domain.Traverse, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanCommit, trace.WithAttributes(attribute.String(telemetry.AttrPlanID, planID)))
	defer span.End()

	var out domain.Traverse
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		var err error
		out, err = p.Commit()
		return err
	})
	if err != nil {
		return domain.Traverse{}, traceErr(span, err)
	}
	slog.Info("traverse committed", "plan_id", planID, "traverse_id", out.ID, "legs", len(out.Legs))
	s.publish(ctx, planID, domain.EventTraverseCommitted, out)
	return out, nil
}

// DiscardTraverse abandons the active traverse and its new points.
func (s *PlanService) DiscardTraverse(ctx context.Context, planID string) error {
	var id int
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		t, ok := p.ActiveTraverse()
		if !ok {
			return domain.ErrNoActiveTraverse
		}
		id = t.ID
		p.Discard()
		return nil
	})
	if err == nil {
		slog.Info("traverse discarded", "plan_id", planID, "traverse_id", id)
	}
	return err
}

// PreviewPolygon resolves a polygon without committing it.
func (s *PlanService) PreviewPolygon(ctx context.Context, planID string, refs []int, meta domain.PolygonMeta) (domain.Polygon, error) {
	var out domain.Polygon
	err := s.read(ctx, planID, func(e *planEntry) error {
		var err error
		out, err = e.plan.PreviewPolygon(refs, meta)
		return err
	})
	return out, err
}

// CommitPolygon resolves and commits a new lot.
func (s *PlanService) CommitPolygon(ctx context.Context, planID string, refs []int, meta domain.PolygonMeta) (domain.Polygon, error) {
	return s.commitPolygon(ctx, planID, refs, meta, false)
}

// ReplacePolygon resolves a polygon and overwrites the lot with the same number.
func (s *PlanService) ReplacePolygon(ctx context.Context, planID string, refs []int, meta domain.PolygonMeta) (domain.Polygon, error) {
	return s.commitPolygon(ctx, planID, refs, meta, true)
}

func (s *PlanService) commitPolygon(ctx context.Context, planID string, refs []int, meta domain.PolygonMeta, replace bool) (domain.Polygon, error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanPolygon, trace.WithAttributes(
		attribute.String(telemetry.AttrPlanID, planID),
		attribute.String(telemetry.AttrLotNumber, meta.LotNumber),
	))
	defer span.End()

	var out domain.Polygon
	err := s.mutate(ctx, planID, func(p *survey.Plan) error {
		poly, err := p.PreviewPolygon(refs, meta)
		if err != nil {
			return err
		}
		if replace {
			err = p.ReplacePolygon(poly)
		} else {
			err = p.CommitPolygon(poly)
		}
		out = poly
		return err
	})
	if err != nil {
		return domain.Polygon{}, traceErr(span, err)
	}

	metrics.PolygonsCommitted.WithLabelValues(string(out.Type)).Inc()
	slog.Info("polygon committed", "plan_id", planID, "lot", out.LotNumber, "area", out.Area, "replace", replace)
	s.publish(ctx, planID, domain.EventPolygonCommitted, out)
	return out, nil
}

// RemovePolygon drops a committed lot.
func (s *PlanService) RemovePolygon(ctx context.Context, planID, lot string) error {
	return s.mutate(ctx, planID, func(p *survey.Plan) error {
		return p.RemovePolygon(lot)
	})
}

// Polygon returns one committed lot resolved against the current points.
func (s *PlanService) Polygon(ctx context.Context, planID, lot string) (domain.Polygon, error) {
	var out domain.Polygon
	err := s.read(ctx, planID, func(e *planEntry) error {
		var err error
		out, err = e.plan.Polygon(lot)
		return err
	})
	return out, err
}

// Polygons returns every committed lot resolved against the current points.
func (s *PlanService) Polygons(ctx context.Context, planID string) ([]domain.Polygon, error) {
	var out []domain.Polygon
	err := s.read(ctx, planID, func(e *planEntry) error {
		var err error
		out, err = e.plan.Polygons()
		return err
	})
	return out, err
}

// entry returns the in-memory plan, loading it from storage on first use.
func (s *PlanService) entry(ctx context.Context, planID string) (*planEntry, error) {
	s.mu.Lock()
	e, ok := s.plans[planID]
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	loaded, err := s.load(ctx, planID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.plans[planID]; ok {
		return e, nil
	}
	s.plans[planID] = loaded
	metrics.PlansLoaded.Set(float64(len(s.plans)))
	return loaded, nil
}

func (s *PlanService) load(ctx context.Context, planID string) (*planEntry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}
	ctx, span := s.tracer.Start(ctx, telemetry.SpanPlanLoad, trace.WithAttributes(attribute.String(telemetry.AttrPlanID, planID)))
	defer span.End()

	snap, err := s.repo.Load(ctx, planID)
	if err != nil {
		return nil, traceErr(span, err)
	}
	plan, err := survey.Restore(*snap, s.opts)
	if err != nil {
		return nil, traceErr(span, fmt.Errorf("restore plan %s: %w", planID, err))
	}
	return &planEntry{
		id:         planID,
		name:       snap.Name,
		plan:       plan,
		generation: time.Now().UnixNano(),
		createdAt:  snap.CreatedAt,
		updatedAt:  snap.UpdatedAt,
	}, nil
}

func (s *PlanService) read(ctx context.Context, planID string, fn func(e *planEntry) error) error {
	e, err := s.entry(ctx, planID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e)
}

func (s *PlanService) mutate(ctx context.Context, planID string, fn func(p *survey.Plan) error) error {
	e, err := s.entry(ctx, planID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rev := e.plan.Revision()
	if err := fn(e.plan); err != nil {
		return err
	}
	if e.plan.Revision() != rev {
		e.updatedAt = time.Now().UTC()
	}
	return nil
}

func (e *planEntry) snapshot() (domain.PlanSnapshot, error) {
	snap, err := e.plan.Snapshot()
	if err != nil {
		return domain.PlanSnapshot{}, fmt.Errorf("snapshot plan %s: %w", e.id, err)
	}
	snap.PlanID = e.id
	snap.Name = e.name
	snap.CreatedAt = e.createdAt
	snap.UpdatedAt = e.updatedAt
	return snap, nil
}

// publish is best-effort: a broker outage must not fail a survey operation.
func (s *PlanService) publish(ctx context.Context, planID string, kind domain.EventKind, v any) {
	if s.publisher == nil {
		return
	}
	ev, err := domain.NewSurveyEvent(planID, kind, v)
	if err == nil {
		err = s.publisher.PublishSurveyEvent(ctx, ev)
	}
	if err != nil {
		slog.Warn("publish survey event failed", "plan_id", planID, "kind", kind, "error", err)
	}
}

func traceErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

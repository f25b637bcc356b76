package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// PlanRepo implements ports.PlanRepository with pgx.
type PlanRepo struct {
	db *DB
}

// NewPlanRepo creates a new PlanRepo.
func NewPlanRepo(db *DB) *PlanRepo {
	return &PlanRepo{db: db}
}

// Save upserts the plan header and replaces its points and polygons in one transaction.
func (r *PlanRepo) Save(ctx context.Context, snap *domain.PlanSnapshot) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO plans (id, name, created_at, updated_at)
			VALUES ($1, $2, COALESCE($3, now()), COALESCE($4, now()))
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
		`, snap.PlanID, snap.Name, nullTime(snap.CreatedAt), nullTime(snap.UpdatedAt))
		if err != nil {
			return fmt.Errorf("upsert plan: %w", err)
		}

		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM polygons WHERE plan_id = $1`, snap.PlanID)
		batch.Queue(`DELETE FROM points WHERE plan_id = $1`, snap.PlanID)
		for _, p := range snap.Points {
			batch.Queue(`
				INSERT INTO points (plan_id, number, easting, northing, elevation, code, layer)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, snap.PlanID, p.Number, p.Easting, p.Northing, p.Elevation, p.Code, string(p.Layer))
		}
		for _, g := range snap.Polygons {
			refs := make([]int32, len(g.Points))
			for i, n := range g.Points {
				if n < math.MinInt32 || n > math.MaxInt32 {
					return fmt.Errorf("lot %s: point number %d out of range", g.LotNumber, n)
				}
				refs[i] = int32(n)
			}
			batch.Queue(`
				INSERT INTO polygons (plan_id, lot_number, plan_number, type, description, point_numbers, area, stated_area)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, snap.PlanID, g.LotNumber, g.PlanNumber, string(g.Type), g.Description, refs, g.Area, g.StatedArea)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("batch close: %w", err)
		}
		return nil
	})
}

// Load reads a plan's two tables back in entry order.
func (r *PlanRepo) Load(ctx context.Context, planID string) (*domain.PlanSnapshot, error) {
	snap := &domain.PlanSnapshot{PlanID: planID}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT name, created_at, updated_at FROM plans WHERE id = $1
	`, planID).Scan(&snap.Name, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT number, easting, northing, elevation, COALESCE(code, ''), layer
		FROM points WHERE plan_id = $1
		ORDER BY seq
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Point
		var layer string
		if err := rows.Scan(&p.Number, &p.Easting, &p.Northing, &p.Elevation, &p.Code, &layer); err != nil {
			return nil, err
		}
		p.Layer = domain.Layer(layer)
		snap.Points = append(snap.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.db.Pool.Query(ctx, `
		SELECT lot_number, COALESCE(plan_number, ''), type, COALESCE(description, ''),
		       point_numbers, area, stated_area
		FROM polygons WHERE plan_id = $1
		ORDER BY seq
	`, planID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var g domain.PolygonRecord
		var typ string
		var refs []int32
		if err := prows.Scan(&g.LotNumber, &g.PlanNumber, &typ, &g.Description, &refs, &g.Area, &g.StatedArea); err != nil {
			return nil, err
		}
		g.Type = domain.PolygonType(typ)
		g.Points = make([]int, len(refs))
		for i, n := range refs {
			g.Points[i] = int(n)
		}
		snap.Polygons = append(snap.Polygons, g)
	}
	return snap, prows.Err()
}

// List returns every stored plan with its row counts, oldest first.
func (r *PlanRepo) List(ctx context.Context) ([]domain.PlanInfo, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT p.id::text, p.name, p.created_at, p.updated_at,
		       (SELECT count(*) FROM points pt WHERE pt.plan_id = p.id),
		       (SELECT count(*) FROM polygons pg WHERE pg.plan_id = p.id)
		FROM plans p
		ORDER BY p.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.PlanInfo
	for rows.Next() {
		var p domain.PlanInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.Points, &p.Polygons); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// Delete removes a plan; its rows cascade.
func (r *PlanRepo) Delete(ctx context.Context, planID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, planID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPlanNotFound, planID)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

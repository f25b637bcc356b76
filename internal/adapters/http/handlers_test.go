package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/cadastre/internal/adapters/http"
	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/survey"
	"github.com/samirrijal/cadastre/internal/core/usecases"
)

// ---- Mock ports ----

type mockArchiver struct {
	archiveFn func(ctx context.Context, snap *domain.PlanSnapshot) (string, error)
}

func (m *mockArchiver) ArchivePlan(ctx context.Context, snap *domain.PlanSnapshot) (string, error) {
	if m.archiveFn != nil {
		return m.archiveFn(ctx, snap)
	}
	return "run-1", nil
}

type mockRepo struct {
	saved map[string]*domain.PlanSnapshot
}

func (m *mockRepo) Save(ctx context.Context, snap *domain.PlanSnapshot) error {
	if m.saved == nil {
		m.saved = make(map[string]*domain.PlanSnapshot)
	}
	m.saved[snap.PlanID] = snap
	return nil
}

func (m *mockRepo) Load(ctx context.Context, id string) (*domain.PlanSnapshot, error) {
	if snap, ok := m.saved[id]; ok {
		return snap, nil
	}
	return nil, domain.ErrPlanNotFound
}

func (m *mockRepo) List(ctx context.Context) ([]domain.PlanInfo, error) { return nil, nil }

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	delete(m.saved, id)
	return nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps() *handler.Dependencies {
	return &handler.Dependencies{
		Plans: usecases.NewPlanService(nil, nil, nil, nil, survey.DefaultOptions(), 0),
	}
}

func do(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, b)
	}
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	expectStatus(t, resp, status)
	var apiErr handler.APIError
	decode(t, resp, &apiErr)
	if apiErr.Code != code {
		t.Errorf("expected error code %s, got %s (%s)", code, apiErr.Code, apiErr.Message)
	}
}

func createPlan(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp := do(t, app, "POST", "/v1/plans", map[string]string{"name": "DP 1234"})
	expectStatus(t, resp, 201)
	var info domain.PlanInfo
	decode(t, resp, &info)
	return info.ID
}

type leg struct {
	From     int     `json:"from"`
	Bearing  string  `json:"bearing"`
	Distance float64 `json:"distance"`
	Number   int     `json:"number"`
}

// runSquare opens a traverse at P1 (0,0) and walks a 100 m square whose last
// leg stops 2 mm short of the start, at P5.
func runSquare(t *testing.T, app *fiber.App, id string) {
	t.Helper()
	base := "/v1/plans/" + id
	expectStatus(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 1, "easting": 0, "northing": 0}), 201)
	for _, l := range []leg{
		{From: 1, Bearing: "90", Distance: 100, Number: 2},
		{From: 2, Bearing: "0", Distance: 100, Number: 3},
		{From: 3, Bearing: "270", Distance: 100, Number: 4},
		{From: 4, Bearing: "180", Distance: 99.998, Number: 5},
	} {
		expectStatus(t, do(t, app, "POST", base+"/traverse/legs", l), 201)
	}
}

// ---- Plan handler tests ----

func TestCreateAndListPlans(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)

	resp := do(t, app, "GET", "/v1/plans", nil)
	expectStatus(t, resp, 200)
	var plans []domain.PlanInfo
	decode(t, resp, &plans)
	if len(plans) != 1 || plans[0].ID != id {
		t.Fatalf("expected plan %s in list, got %+v", id, plans)
	}
	if plans[0].Name != "DP 1234" {
		t.Errorf("expected name DP 1234, got %q", plans[0].Name)
	}
}

func TestGetPlan_InvalidID(t *testing.T) {
	app := setupApp(makeDeps())
	expectError(t, do(t, app, "GET", "/v1/plans/not-a-uuid", nil), 404, "not_found")
}

func TestGetPlan_Unknown(t *testing.T) {
	app := setupApp(makeDeps())
	expectError(t, do(t, app, "GET", "/v1/plans/3f1c2a8e-8d0b-4b1e-9a55-0c1f1b2d3e4f", nil), 404, "not_found")
}

func TestSavePlan_NoRepository(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	expectError(t, do(t, app, "POST", "/v1/plans/"+id+"/save", nil), 503, "unavailable")
}

func TestSavePlan_WithRepository(t *testing.T) {
	repo := &mockRepo{}
	deps := makeDeps()
	deps.Plans = usecases.NewPlanService(repo, nil, nil, nil, survey.DefaultOptions(), 0)
	app := setupApp(deps)

	id := createPlan(t, app)
	expectStatus(t, do(t, app, "POST", "/v1/plans/"+id+"/points", map[string]interface{}{"number": 1, "easting": 10, "northing": 20}), 201)
	expectStatus(t, do(t, app, "POST", "/v1/plans/"+id+"/save", nil), 200)

	snap := repo.saved[id]
	if snap == nil || len(snap.Points) != 1 {
		t.Fatalf("expected saved snapshot with 1 point, got %+v", snap)
	}
}

func TestArchivePlan(t *testing.T) {
	var archived string
	deps := makeDeps()
	deps.Plans = usecases.NewPlanService(nil, nil, nil, &mockArchiver{
		archiveFn: func(ctx context.Context, snap *domain.PlanSnapshot) (string, error) {
			archived = snap.PlanID
			return "run-42", nil
		},
	}, survey.DefaultOptions(), 0)
	app := setupApp(deps)
	id := createPlan(t, app)

	resp := do(t, app, "POST", "/v1/plans/"+id+"/archive", nil)
	expectStatus(t, resp, 202)
	var body map[string]string
	decode(t, resp, &body)
	if body["run_id"] != "run-42" || archived != id {
		t.Errorf("unexpected archive result %v (archived %q)", body, archived)
	}
}

func TestArchivePlan_WorkflowError(t *testing.T) {
	deps := makeDeps()
	deps.Plans = usecases.NewPlanService(nil, nil, nil, &mockArchiver{
		archiveFn: func(ctx context.Context, snap *domain.PlanSnapshot) (string, error) {
			return "", errors.New("temporal down")
		},
	}, survey.DefaultOptions(), 0)
	app := setupApp(deps)
	id := createPlan(t, app)

	expectError(t, do(t, app, "POST", "/v1/plans/"+id+"/archive", nil), 500, "internal_error")
}

// ---- Point handler tests ----

func TestAddPoint_Duplicate(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	pt := map[string]interface{}{"number": 7, "easting": 1, "northing": 2, "layer": "REFERENCE MARKS"}

	resp := do(t, app, "POST", "/v1/plans/"+id+"/points", pt)
	expectStatus(t, resp, 201)
	var got domain.Point
	decode(t, resp, &got)
	if got.Layer != domain.LayerReferenceMark {
		t.Errorf("expected layer REFERENCE_MARK, got %s", got.Layer)
	}

	expectError(t, do(t, app, "POST", "/v1/plans/"+id+"/points", pt), 409, "conflict")
}

func TestAddPoint_BadLayer(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	resp := do(t, app, "POST", "/v1/plans/"+id+"/points", map[string]interface{}{"number": 1, "layer": "ROADWAY"})
	expectError(t, resp, 400, "bad_request")
}

func TestPointNumber_OutOfRange(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	tooBig := 1 << 31

	expectError(t, do(t, app, "POST", base+"/points", map[string]interface{}{"number": tooBig, "easting": 1, "northing": 2}), 400, "bad_request")
	expectError(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": tooBig}), 400, "bad_request")

	expectStatus(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 1}), 201)
	expectError(t, do(t, app, "POST", base+"/traverse/legs", leg{From: 1, Bearing: "90", Distance: 10, Number: tooBig}), 400, "bad_request")
}

func TestDeletePoint_LegSourceKeepsGeoJSON(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id

	expectStatus(t, do(t, app, "POST", base+"/points", map[string]interface{}{"number": 10, "easting": 50, "northing": 50}), 201)
	expectStatus(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 1}), 201)
	expectStatus(t, do(t, app, "POST", base+"/traverse/legs", leg{From: 10, Bearing: "90", Distance: 10, Number: 2}), 201)

	expectStatus(t, do(t, app, "DELETE", base+"/points/10", nil), 204)
	expectError(t, do(t, app, "GET", base+"/points/2", nil), 404, "not_found")

	resp := do(t, app, "GET", base+"/traverse", nil)
	expectStatus(t, resp, 200)
	var tr domain.Traverse
	decode(t, resp, &tr)
	if len(tr.Legs) != 0 {
		t.Errorf("expected legs from 10 to be dropped, got %+v", tr.Legs)
	}

	expectStatus(t, do(t, app, "GET", base+"/geojson", nil), 200)
}

func TestListPoints_Pagination(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	for n := 1; n <= 5; n++ {
		expectStatus(t, do(t, app, "POST", "/v1/plans/"+id+"/points", map[string]interface{}{"number": n, "easting": n, "northing": 0}), 201)
	}

	resp := do(t, app, "GET", "/v1/plans/"+id+"/points?offset=2&limit=2", nil)
	expectStatus(t, resp, 200)
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link, got %q", link)
	}

	var result struct {
		Data       []domain.Point `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	decode(t, resp, &result)
	if result.Pagination.Total != 5 || len(result.Data) != 2 {
		t.Fatalf("expected 2 of 5 points, got %d of %d", len(result.Data), result.Pagination.Total)
	}
	if result.Data[0].Number != 3 {
		t.Errorf("expected page to start at point 3, got %d", result.Data[0].Number)
	}
}

func TestDeletePoint_NotFound(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	expectError(t, do(t, app, "DELETE", "/v1/plans/"+id+"/points/99", nil), 404, "not_found")
}

// ---- Traverse handler tests ----

func TestTraverse_CloseAdjustCommit(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	runSquare(t, app, id)

	expectStatus(t, do(t, app, "POST", base+"/traverse/closing", map[string]int{"point": 1}), 200)

	resp := do(t, app, "GET", base+"/traverse/misclosure", nil)
	expectStatus(t, resp, 200)
	var mis struct {
		Misclosure domain.Misclosure `json:"misclosure"`
		MM         float64           `json:"mm"`
		Band       string            `json:"band"`
		Colour     string            `json:"colour"`
	}
	decode(t, resp, &mis)
	if math.Abs(mis.MM-2) > 1e-6 {
		t.Errorf("expected 2 mm misclosure, got %f", mis.MM)
	}
	if mis.Band != "excellent" || mis.Colour != "#0f961f" {
		t.Errorf("expected excellent/#0f961f, got %s/%s", mis.Band, mis.Colour)
	}

	resp = do(t, app, "POST", base+"/traverse/adjust", nil)
	expectStatus(t, resp, 200)
	var adj struct {
		Result domain.AdjustmentResult `json:"result"`
		Error  string                  `json:"error"`
	}
	decode(t, resp, &adj)
	if !adj.Result.Success || adj.Error != "" {
		t.Fatalf("expected successful adjustment, got %+v (%s)", adj.Result, adj.Error)
	}

	resp = do(t, app, "GET", base+"/points/5", nil)
	expectStatus(t, resp, 200)
	var p5 domain.Point
	decode(t, resp, &p5)
	if math.Abs(p5.Easting) > 1e-6 || math.Abs(p5.Northing) > 1e-6 {
		t.Errorf("expected adjusted P5 on the start, got (%f, %f)", p5.Easting, p5.Northing)
	}

	expectStatus(t, do(t, app, "POST", base+"/traverse/commit", nil), 200)
	expectError(t, do(t, app, "GET", base+"/traverse", nil), 404, "not_found")

	resp = do(t, app, "GET", base+"/traverses", nil)
	expectStatus(t, resp, 200)
	var ts []domain.Traverse
	decode(t, resp, &ts)
	if len(ts) != 1 || ts[0].State != domain.TraverseCommitted {
		t.Fatalf("expected one committed traverse, got %+v", ts)
	}

	// committed points are pinned
	expectError(t, do(t, app, "DELETE", base+"/points/3", nil), 409, "conflict")
}

func TestTraverse_AdjustRejected(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	runSquare(t, app, id)
	expectStatus(t, do(t, app, "POST", base+"/traverse/closing", map[string]int{"point": 1}), 200)

	// a correction that does not cancel the misclosure leaves a residual
	resp := do(t, app, "POST", base+"/traverse/adjust", map[string]float64{"delta_easting": 0.5, "delta_northing": 0})
	expectStatus(t, resp, 200)
	var adj struct {
		Result domain.AdjustmentResult `json:"result"`
		Error  string                  `json:"error"`
	}
	decode(t, resp, &adj)
	if adj.Result.Success || adj.Error == "" {
		t.Fatalf("expected rejected adjustment, got %+v", adj)
	}

	resp = do(t, app, "GET", base+"/points/5", nil)
	var p5 domain.Point
	decode(t, resp, &p5)
	if math.Abs(p5.Northing-0.002) > 1e-9 {
		t.Errorf("rejected adjustment moved P5 to %f", p5.Northing)
	}
}

func TestAdjust_HalfDelta(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	resp := do(t, app, "POST", "/v1/plans/"+id+"/traverse/adjust", map[string]float64{"delta_easting": 0.1})
	expectError(t, resp, 400, "bad_request")
}

func TestAddLeg_BadBearing(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	expectStatus(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 1}), 201)

	expectError(t, do(t, app, "POST", base+"/traverse/legs", leg{From: 1, Bearing: "45.7", Distance: 10, Number: 2}), 400, "bad_request")
	expectError(t, do(t, app, "POST", base+"/traverse/legs", leg{From: 1, Bearing: "360", Distance: 10, Number: 2}), 400, "bad_request")
	expectError(t, do(t, app, "POST", base+"/traverse/legs", leg{From: 9, Bearing: "45", Distance: 10, Number: 2}), 404, "not_found")
}

func TestAddLeg_Arc(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	expectStatus(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 1}), 201)

	resp := do(t, app, "POST", base+"/traverse/legs", map[string]interface{}{
		"from":    1,
		"bearing": "0",
		"number":  2,
		"arc":     map[string]interface{}{"radius": 100, "rotation": "cw", "length": math.Pi * 50},
	})
	expectStatus(t, resp, 201)
	var ext domain.Extension
	decode(t, resp, &ext)
	// a clockwise quarter circle from north ends 100 m east and 100 m north
	if math.Abs(ext.Point.Easting-100) > 1e-6 || math.Abs(ext.Point.Northing-100) > 1e-6 {
		t.Errorf("unexpected arc end (%f, %f)", ext.Point.Easting, ext.Point.Northing)
	}
	if ext.Leg.Arc == nil {
		t.Error("expected arc on leg")
	}
}

func TestStartTraverse_InProgress(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	expectStatus(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 1}), 201)
	expectError(t, do(t, app, "POST", base+"/traverse", map[string]interface{}{"number": 2, "easting": 5}), 409, "conflict")

	expectStatus(t, do(t, app, "DELETE", base+"/traverse", nil), 204)
	expectError(t, do(t, app, "GET", base+"/points/1", nil), 404, "not_found")
}

// ---- Polygon handler tests ----

func addSquarePoints(t *testing.T, app *fiber.App, id string) {
	t.Helper()
	for _, p := range []map[string]interface{}{
		{"number": 1, "easting": 0, "northing": 0},
		{"number": 2, "easting": 20, "northing": 0},
		{"number": 3, "easting": 20, "northing": 30},
		{"number": 4, "easting": 0, "northing": 30},
	} {
		expectStatus(t, do(t, app, "POST", "/v1/plans/"+id+"/points", p), 201)
	}
}

func TestPolygon_CommitReplaceDelete(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	base := "/v1/plans/" + id
	addSquarePoints(t, app, id)

	body := map[string]interface{}{"points": []int{1, 2, 3, 4}, "lot_number": "12", "plan_number": "DP1234", "stated_area": 601.0}
	resp := do(t, app, "POST", base+"/polygons", body)
	expectStatus(t, resp, 201)
	var poly domain.Polygon
	decode(t, resp, &poly)
	if math.Abs(poly.Area-600) > 1e-9 {
		t.Errorf("expected area 600, got %f", poly.Area)
	}
	if poly.Type != domain.PolygonParcel {
		t.Errorf("expected default type PARCEL, got %s", poly.Type)
	}
	if poly.AreaDiscrepancy == nil || math.Abs(*poly.AreaDiscrepancy+1) > 1e-9 {
		t.Errorf("expected discrepancy -1, got %v", poly.AreaDiscrepancy)
	}

	expectError(t, do(t, app, "POST", base+"/polygons", body), 409, "conflict")

	resp = do(t, app, "PUT", base+"/polygons/12", map[string]interface{}{"points": []int{1, 2, 3}})
	expectStatus(t, resp, 200)
	decode(t, resp, &poly)
	if math.Abs(poly.Area-300) > 1e-9 {
		t.Errorf("expected replaced area 300, got %f", poly.Area)
	}

	// point 4 is free again after the replace
	expectStatus(t, do(t, app, "DELETE", base+"/points/4", nil), 204)

	expectStatus(t, do(t, app, "DELETE", base+"/polygons/12", nil), 204)
	expectError(t, do(t, app, "GET", base+"/polygons/12", nil), 404, "not_found")
}

func TestPolygon_Degenerate(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	addSquarePoints(t, app, id)

	resp := do(t, app, "POST", "/v1/plans/"+id+"/polygons/preview", map[string]interface{}{"points": []int{1, 2}})
	expectError(t, resp, 400, "bad_request")

	resp = do(t, app, "POST", "/v1/plans/"+id+"/polygons", map[string]interface{}{"points": []int{1, 2, 3}})
	expectError(t, resp, 400, "bad_request")
}

func TestGeoJSON(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	addSquarePoints(t, app, id)
	expectStatus(t, do(t, app, "POST", "/v1/plans/"+id+"/polygons", map[string]interface{}{"points": []int{1, 2, 3, 4}, "lot_number": "1"}), 201)

	resp := do(t, app, "GET", "/v1/plans/"+id+"/geojson", nil)
	expectStatus(t, resp, 200)
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected geo+json content type, got %q", ct)
	}
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	decode(t, resp, &fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 5 {
		t.Errorf("expected 5 features, got %s with %d", fc.Type, len(fc.Features))
	}
}

// ---- Misc ----

func TestParseBearing(t *testing.T) {
	app := setupApp(makeDeps())

	resp := do(t, app, "GET", "/v1/bearings/parse?b=123.4530", nil)
	expectStatus(t, resp, 200)
	var body struct {
		Degrees float64 `json:"degrees"`
		DMS     string  `json:"dms"`
		Reverse string  `json:"reverse"`
	}
	decode(t, resp, &body)
	if math.Abs(body.Degrees-123.758333) > 1e-5 || body.DMS != "123.4530" || body.Reverse != "303.4530" {
		t.Errorf("unexpected parse result %+v", body)
	}

	expectError(t, do(t, app, "GET", "/v1/bearings/parse?b=12.3", nil), 400, "bad_request")
	expectError(t, do(t, app, "GET", "/v1/bearings/parse", nil), 400, "bad_request")
}

func TestGraphQL_Points(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)
	addSquarePoints(t, app, id)

	resp := do(t, app, "POST", "/graphql", map[string]string{
		"query": `{ points(plan: "` + id + `") { number layer } traverse(plan: "` + id + `") { id } }`,
	})
	expectStatus(t, resp, 200)
	var result struct {
		Data struct {
			Points []struct {
				Number int    `json:"number"`
				Layer  string `json:"layer"`
			} `json:"points"`
			Traverse *struct{ ID int } `json:"traverse"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	decode(t, resp, &result)
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Data.Points) != 4 || result.Data.Points[0].Layer != "BOUNDARY" {
		t.Errorf("unexpected points %+v", result.Data.Points)
	}
	if result.Data.Traverse != nil {
		t.Errorf("expected null traverse, got %+v", result.Data.Traverse)
	}
}

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps())
	expectStatus(t, do(t, app, "GET", "/v1/health", nil), 200)
	// no database configured
	expectStatus(t, do(t, app, "GET", "/v1/ready", nil), 503)
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps())
	id := createPlan(t, app)

	resp := do(t, app, "GET", "/v1/plans/"+id+"/points", nil)
	expectStatus(t, resp, 200)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag header")
	}

	req := httptest.NewRequest("GET", "/v1/plans/"+id+"/points", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	expectStatus(t, resp, 304)
}

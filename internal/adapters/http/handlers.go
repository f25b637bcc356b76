package http

import (
	"fmt"
	"math"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/samirrijal/cadastre/internal/core/domain"
	"github.com/samirrijal/cadastre/internal/core/survey"
	"github.com/samirrijal/cadastre/internal/pkg/geospatial"
)

type planRequest struct {
	Name string `json:"name"`
}

type pointRequest struct {
	Number    int     `json:"number"`
	Easting   float64 `json:"easting"`
	Northing  float64 `json:"northing"`
	Elevation float64 `json:"elevation"`
	Code      string  `json:"code"`
	Layer     string  `json:"layer"`
}

func (r pointRequest) point() (domain.Point, error) {
	layer, err := domain.ParseLayer(r.Layer)
	if err != nil {
		return domain.Point{}, err
	}
	if err := checkPointNumber(r.Number); err != nil {
		return domain.Point{}, err
	}
	return domain.Point{
		Number:    r.Number,
		Easting:   r.Easting,
		Northing:  r.Northing,
		Elevation: r.Elevation,
		Code:      r.Code,
		Layer:     layer,
	}, nil
}

// checkPointNumber keeps point numbers within the range the points table stores.
func checkPointNumber(n int) error {
	if n <= 0 || n > math.MaxInt32 {
		return fmt.Errorf("point number must be between 1 and %d, got %d", math.MaxInt32, n)
	}
	return nil
}

type arcRequest struct {
	Radius   float64 `json:"radius"`
	Rotation string  `json:"rotation"`
	Length   float64 `json:"length"`
}

// legRequest adds one leg. Bearing is packed D.MMSS text as written on the plan.
// With Arc set, Bearing is the tangent at the source point.
type legRequest struct {
	From      int         `json:"from"`
	Bearing   string      `json:"bearing"`
	Distance  float64     `json:"distance"`
	Arc       *arcRequest `json:"arc"`
	Number    int         `json:"number"`
	Elevation float64     `json:"elevation"`
	Code      string      `json:"code"`
	Layer     string      `json:"layer"`
}

type closingRequest struct {
	Point int `json:"point"`
}

type adjustRequest struct {
	DeltaEasting  *float64 `json:"delta_easting"`
	DeltaNorthing *float64 `json:"delta_northing"`
}

type polygonRequest struct {
	Points      []int    `json:"points"`
	PlanNumber  string   `json:"plan_number"`
	LotNumber   string   `json:"lot_number"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	StatedArea  *float64 `json:"stated_area"`
}

func (r polygonRequest) meta() (domain.PolygonMeta, error) {
	typ, err := domain.ParsePolygonType(r.Type)
	if err != nil {
		return domain.PolygonMeta{}, err
	}
	return domain.PolygonMeta{
		PlanNumber:  strings.TrimSpace(r.PlanNumber),
		LotNumber:   strings.TrimSpace(r.LotNumber),
		Description: r.Description,
		Type:        typ,
		StatedArea:  r.StatedArea,
	}, nil
}

// planID validates the :id route parameter. Plans are keyed by UUID, so
// anything else cannot exist.
func planID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func planNotFound(c *fiber.Ctx) error {
	return errNotFound(c, "plan not found: "+c.Params("id"))
}

// CreatePlanHandler starts an empty plan.
func CreatePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req planRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		if len(req.Name) > 200 {
			return errBadRequest(c, "name too long (max 200 characters)")
		}

		info, err := deps.Plans.Create(c.UserContext(), req.Name)
		if err != nil {
			return writeError(c, err)
		}
		c.Location("/v1/plans/" + info.ID)
		return c.Status(fiber.StatusCreated).JSON(info)
	}
}

// ListPlansHandler returns every plan held in memory or storage.
func ListPlansHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		plans, err := deps.Plans.List(c.UserContext())
		if err != nil {
			return writeError(c, err)
		}
		if plans == nil {
			plans = []domain.PlanInfo{}
		}
		return c.JSON(plans)
	}
}

// GetPlanHandler returns a plan summary.
func GetPlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		info, err := deps.Plans.Get(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(info)
	}
}

// DeletePlanHandler drops a plan from memory and storage.
func DeletePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		if err := deps.Plans.Delete(c.UserContext(), id); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// SavePlanHandler writes the plan's points and polygons to the database.
func SavePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		info, err := deps.Plans.Save(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(info)
	}
}

// LoadPlanHandler replaces the in-memory plan with its stored copy.
func LoadPlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		info, err := deps.Plans.Load(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(info)
	}
}

// ArchivePlanHandler starts the archive workflow for a plan.
func ArchivePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		runID, err := deps.Plans.Archive(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"plan_id": id,
			"run_id":  runID,
		})
	}
}

// PlanGeoJSONHandler renders the plan as a FeatureCollection.
func PlanGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		data, err := deps.Plans.GeoJSON(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.Send(data)
	}
}

// ListPointsHandler returns the plan's points in entry order, paginated.
func ListPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		points, err := deps.Plans.Points(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}

		pg := parsePagination(c, 500, 5000)
		page := paginate(points, &pg)
		if page == nil {
			page = []domain.Point{}
		}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// AddPointHandler enters a point with known coordinates.
func AddPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		var req pointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pt, err := req.point()
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		out, err := deps.Plans.AddPoint(c.UserContext(), id, pt)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(out)
	}
}

// GetPointHandler returns one point.
func GetPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		number, err := c.ParamsInt("number")
		if err != nil {
			return errBadRequest(c, "point number must be an integer")
		}
		pt, err := deps.Plans.Point(c.UserContext(), id, number)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(pt)
	}
}

// DeletePointHandler removes a point nothing references.
func DeletePointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		number, err := c.ParamsInt("number")
		if err != nil {
			return errBadRequest(c, "point number must be an integer")
		}
		if err := deps.Plans.RemovePoint(c.UserContext(), id, number); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// StartTraverseHandler opens a traverse at the posted point.
func StartTraverseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		var req pointRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pt, err := req.point()
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		t, err := deps.Plans.StartTraverse(c.UserContext(), id, pt)
		if err != nil {
			return writeError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	}
}

// GetTraverseHandler returns the traverse in progress.
func GetTraverseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		t, err := deps.Plans.ActiveTraverse(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(t)
	}
}

// ListTraversesHandler returns the committed traverses.
func ListTraversesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		ts, err := deps.Plans.Traverses(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		if ts == nil {
			ts = []domain.Traverse{}
		}
		return c.JSON(ts)
	}
}

// AddLegHandler computes a new point from a bearing/distance or arc leg.
func AddLegHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		var req legRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		bearing, err := geospatial.ParseBearing(req.Bearing)
		if err != nil {
			return writeError(c, err)
		}
		layer, err := domain.ParseLayer(req.Layer)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := checkPointNumber(req.Number); err != nil {
			return errBadRequest(c, err.Error())
		}

		var ext domain.Extension
		if req.Arc != nil {
			rot, err := geospatial.ParseRotation(req.Arc.Rotation)
			if err != nil {
				return writeError(c, err)
			}
			ext, err = deps.Plans.ExtendByArc(c.UserContext(), id, survey.ArcLeg{
				From:      req.From,
				Bearing:   bearing,
				Radius:    req.Arc.Radius,
				Rotation:  rot,
				Length:    req.Arc.Length,
				Number:    req.Number,
				Elevation: req.Elevation,
				Code:      req.Code,
				Layer:     layer,
			})
			if err != nil {
				return writeError(c, err)
			}
		} else {
			ext, err = deps.Plans.ExtendByBearingDistance(c.UserContext(), id, survey.BearingDistance{
				From:      req.From,
				Bearing:   bearing,
				Distance:  req.Distance,
				Number:    req.Number,
				Elevation: req.Elevation,
				Code:      req.Code,
				Layer:     layer,
			})
			if err != nil {
				return writeError(c, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(ext)
	}
}

// MarkClosingHandler records the closing candidate. A zero point reopens the traverse.
func MarkClosingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		var req closingRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		if req.Point == 0 {
			err := deps.Plans.Reopen(c.UserContext(), id)
			if err != nil {
				return writeError(c, err)
			}
		} else if err := deps.Plans.MarkClosingCandidate(c.UserContext(), id, req.Point); err != nil {
			return writeError(c, err)
		}

		t, err := deps.Plans.ActiveTraverse(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(t)
	}
}

// MisclosureHandler reports the misclosure against the closing candidate.
func MisclosureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		m, err := deps.Plans.Misclosure(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(fiber.Map{
			"misclosure": m,
			"bearing":    m.Bearing.DMS(),
			"mm":         m.Millimetres(),
			"band":       m.Band.String(),
			"colour":     m.Band.Colour(),
		})
	}
}

// AdjustHandler applies the compass rule. Without explicit deltas the current
// misclosure is used. A rejected adjustment is still a 200 with success=false.
func AdjustHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		var req adjustRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		if (req.DeltaEasting == nil) != (req.DeltaNorthing == nil) {
			return errBadRequest(c, "delta_easting and delta_northing must be given together")
		}

		var dE, dN float64
		if req.DeltaEasting != nil {
			dE, dN = *req.DeltaEasting, *req.DeltaNorthing
		} else {
			m, err := deps.Plans.Misclosure(c.UserContext(), id)
			if err != nil {
				return writeError(c, err)
			}
			dE, dN = m.DeltaEasting, m.DeltaNorthing
		}

		res, err := deps.Plans.Adjust(c.UserContext(), id, dE, dN)
		if err != nil {
			return writeError(c, err)
		}
		body := fiber.Map{"result": res}
		if err := res.Err(); err != nil {
			body["error"] = err.Error()
		}
		return c.JSON(body)
	}
}

// CommitTraverseHandler folds the active traverse into the plan.
func CommitTraverseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		t, err := deps.Plans.CommitTraverse(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(t)
	}
}

// DiscardTraverseHandler abandons the active traverse.
func DiscardTraverseHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		if err := deps.Plans.DiscardTraverse(c.UserContext(), id); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// parsePolygon reads a polygon body shared by preview, commit and replace.
func parsePolygon(c *fiber.Ctx) ([]int, domain.PolygonMeta, error) {
	var req polygonRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, domain.PolygonMeta{}, fmt.Errorf("invalid request body")
	}
	meta, err := req.meta()
	if err != nil {
		return nil, domain.PolygonMeta{}, err
	}
	return req.Points, meta, nil
}

// PreviewPolygonHandler resolves a polygon without committing it.
func PreviewPolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		refs, meta, err := parsePolygon(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		poly, err := deps.Plans.PreviewPolygon(c.UserContext(), id, refs, meta)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(poly)
	}
}

// CommitPolygonHandler commits a new lot.
func CommitPolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		refs, meta, err := parsePolygon(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		poly, err := deps.Plans.CommitPolygon(c.UserContext(), id, refs, meta)
		if err != nil {
			return writeError(c, err)
		}
		c.Location(fmt.Sprintf("/v1/plans/%s/polygons/%s", id, poly.LotNumber))
		return c.Status(fiber.StatusCreated).JSON(poly)
	}
}

// ReplacePolygonHandler overwrites the lot named in the path.
func ReplacePolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		refs, meta, err := parsePolygon(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		lot := c.Params("lot")
		if meta.LotNumber != "" && meta.LotNumber != lot {
			return errBadRequest(c, "lot_number does not match the path")
		}
		meta.LotNumber = lot

		poly, err := deps.Plans.ReplacePolygon(c.UserContext(), id, refs, meta)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(poly)
	}
}

// ListPolygonsHandler returns every committed lot.
func ListPolygonsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		polys, err := deps.Plans.Polygons(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		if polys == nil {
			polys = []domain.Polygon{}
		}
		return c.JSON(polys)
	}
}

// GetPolygonHandler returns one lot.
func GetPolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		poly, err := deps.Plans.Polygon(c.UserContext(), id, c.Params("lot"))
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(poly)
	}
}

// DeletePolygonHandler drops a lot.
func DeletePolygonHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := planID(c)
		if !ok {
			return planNotFound(c)
		}
		if err := deps.Plans.RemovePolygon(c.UserContext(), id, c.Params("lot")); err != nil {
			return writeError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ParseBearingHandler validates packed D.MMSS input for form fields.
func ParseBearingHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		b := c.Query("b")
		if b == "" {
			return errBadRequest(c, "b query parameter is required")
		}
		angle, err := geospatial.ParseBearing(b)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(fiber.Map{
			"input":   b,
			"degrees": float64(angle),
			"dms":     angle.DMS(),
			"reverse": angle.Reverse().DMS(),
		})
	}
}

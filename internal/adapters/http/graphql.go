package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// buildSchema creates the read-only GraphQL schema over the plan service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"easting":  &graphql.Field{Type: graphql.Float},
			"northing": &graphql.Field{Type: graphql.Float},
		},
	})

	planType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Plan",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"name":            &graphql.Field{Type: graphql.String},
			"points":          &graphql.Field{Type: graphql.Int},
			"polygons":        &graphql.Field{Type: graphql.Int},
			"traverses":       &graphql.Field{Type: graphql.Int},
			"active_traverse": &graphql.Field{Type: graphql.Boolean},
			"revision":        &graphql.Field{Type: graphql.Int},
			"created_at":      &graphql.Field{Type: graphql.DateTime},
			"updated_at":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Point",
		Fields: graphql.Fields{
			"number":    &graphql.Field{Type: graphql.Int},
			"easting":   &graphql.Field{Type: graphql.Float},
			"northing":  &graphql.Field{Type: graphql.Float},
			"elevation": &graphql.Field{Type: graphql.Float},
			"code":      &graphql.Field{Type: graphql.String},
			"layer":     &graphql.Field{Type: graphql.String},
		},
	})

	polygonType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Polygon",
		Fields: graphql.Fields{
			"lot_number":       &graphql.Field{Type: graphql.String},
			"plan_number":      &graphql.Field{Type: graphql.String},
			"type":             &graphql.Field{Type: graphql.String},
			"description":      &graphql.Field{Type: graphql.String},
			"points":           &graphql.Field{Type: graphql.NewList(graphql.Int)},
			"area":             &graphql.Field{Type: graphql.Float},
			"stated_area":      &graphql.Field{Type: graphql.Float},
			"area_discrepancy": &graphql.Field{Type: graphql.Float},
			"clockwise":        &graphql.Field{Type: graphql.Boolean},
			"centroid":         &graphql.Field{Type: coordinateType},
			"label":            &graphql.Field{Type: graphql.String},
		},
	})

	legType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Leg",
		Fields: graphql.Fields{
			"from":       &graphql.Field{Type: graphql.Int},
			"to":         &graphql.Field{Type: graphql.Int},
			"bearing":    &graphql.Field{Type: graphql.String, Description: "Packed D.MMSS"},
			"distance":   &graphql.Field{Type: graphql.Float},
			"radius":     &graphql.Field{Type: graphql.Float},
			"rotation":   &graphql.Field{Type: graphql.String},
			"arc_length": &graphql.Field{Type: graphql.Float},
			"adjusted":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	misclosureType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Misclosure",
		Fields: graphql.Fields{
			"delta_easting":   &graphql.Field{Type: graphql.Float},
			"delta_northing":  &graphql.Field{Type: graphql.Float},
			"linear_error":    &graphql.Field{Type: graphql.Float},
			"bearing":         &graphql.Field{Type: graphql.String},
			"traverse_length": &graphql.Field{Type: graphql.Float},
			"precision":       &graphql.Field{Type: graphql.Float},
			"band":            &graphql.Field{Type: graphql.String},
			"colour":          &graphql.Field{Type: graphql.String},
		},
	})

	traverseType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Traverse",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.Int},
			"state":       &graphql.Field{Type: graphql.String},
			"start":       &graphql.Field{Type: graphql.Int},
			"points":      &graphql.Field{Type: graphql.NewList(graphql.Int)},
			"closing_ref": &graphql.Field{Type: graphql.Int},
			"legs":        &graphql.Field{Type: graphql.NewList(legType)},
			"misclosure":  &graphql.Field{Type: misclosureType},
		},
	})

	planArg := graphql.FieldConfigArgument{
		"plan": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"plans": &graphql.Field{
				Type:        graphql.NewList(planType),
				Description: "List all plans",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					plans, err := deps.Plans.List(p.Context)
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(plans))
					for _, info := range plans {
						out = append(out, planMap(info))
					}
					return out, nil
				},
			},
			"plan": &graphql.Field{
				Type:        planType,
				Description: "Get a plan summary by ID",
				Args:        planArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					info, err := deps.Plans.Get(p.Context, p.Args["plan"].(string))
					if err != nil {
						return nil, err
					}
					return planMap(info), nil
				},
			},
			"points": &graphql.Field{
				Type:        graphql.NewList(pointType),
				Description: "Points of a plan in entry order",
				Args:        planArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					points, err := deps.Plans.Points(p.Context, p.Args["plan"].(string))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(points))
					for _, pt := range points {
						out = append(out, pointMap(pt))
					}
					return out, nil
				},
			},
			"polygons": &graphql.Field{
				Type:        graphql.NewList(polygonType),
				Description: "Committed lots of a plan",
				Args:        planArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					polys, err := deps.Plans.Polygons(p.Context, p.Args["plan"].(string))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(polys))
					for _, poly := range polys {
						out = append(out, polygonMap(poly))
					}
					return out, nil
				},
			},
			"traverse": &graphql.Field{
				Type:        traverseType,
				Description: "The traverse in progress, null when none",
				Args:        planArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					t, err := deps.Plans.ActiveTraverse(p.Context, p.Args["plan"].(string))
					if err != nil {
						if errorIn(err, []error{domain.ErrNoActiveTraverse}) {
							return nil, nil
						}
						return nil, err
					}
					return traverseMap(t), nil
				},
			},
			"traverses": &graphql.Field{
				Type:        graphql.NewList(traverseType),
				Description: "Committed traverses of a plan",
				Args:        planArg,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ts, err := deps.Plans.Traverses(p.Context, p.Args["plan"].(string))
					if err != nil {
						return nil, err
					}
					out := make([]map[string]interface{}, 0, len(ts))
					for _, t := range ts {
						out = append(out, traverseMap(t))
					}
					return out, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// Named string and float types do not coerce through graphql-go scalars,
// so results are flattened to plain values.

func planMap(info domain.PlanInfo) map[string]interface{} {
	return map[string]interface{}{
		"id":              info.ID,
		"name":            info.Name,
		"points":          info.Points,
		"polygons":        info.Polygons,
		"traverses":       info.Traverses,
		"active_traverse": info.ActiveTraverse,
		"revision":        int(info.Revision),
		"created_at":      info.CreatedAt,
		"updated_at":      info.UpdatedAt,
	}
}

func pointMap(pt domain.Point) map[string]interface{} {
	return map[string]interface{}{
		"number":    pt.Number,
		"easting":   pt.Easting,
		"northing":  pt.Northing,
		"elevation": pt.Elevation,
		"code":      pt.Code,
		"layer":     string(pt.Layer),
	}
}

func polygonMap(poly domain.Polygon) map[string]interface{} {
	m := map[string]interface{}{
		"lot_number":  poly.LotNumber,
		"plan_number": poly.PlanNumber,
		"type":        string(poly.Type),
		"description": poly.Description,
		"points":      poly.Points,
		"area":        poly.Area,
		"clockwise":   poly.Clockwise(),
		"centroid": map[string]interface{}{
			"easting":  poly.Centroid.Easting,
			"northing": poly.Centroid.Northing,
		},
		"label": poly.Label,
	}
	if poly.StatedArea != nil {
		m["stated_area"] = *poly.StatedArea
	}
	if poly.AreaDiscrepancy != nil {
		m["area_discrepancy"] = *poly.AreaDiscrepancy
	}
	return m
}

func traverseMap(t domain.Traverse) map[string]interface{} {
	legs := make([]map[string]interface{}, 0, len(t.Legs))
	for _, l := range t.Legs {
		leg := map[string]interface{}{
			"from":     l.From,
			"to":       l.To,
			"bearing":  l.BearingDMS(),
			"distance": l.Distance,
			"adjusted": l.Adjusted,
		}
		if l.Arc != nil {
			leg["radius"] = l.Arc.Radius
			leg["rotation"] = string(l.Arc.Rotation)
			leg["arc_length"] = l.Arc.Length
		}
		legs = append(legs, leg)
	}

	m := map[string]interface{}{
		"id":     t.ID,
		"state":  string(t.State),
		"start":  t.Start,
		"points": t.Points,
		"legs":   legs,
	}
	if t.ClosingRef != nil {
		m["closing_ref"] = *t.ClosingRef
	}
	if mc := t.Misclosure; mc != nil {
		m["misclosure"] = map[string]interface{}{
			"delta_easting":   mc.DeltaEasting,
			"delta_northing":  mc.DeltaNorthing,
			"linear_error":    mc.LinearError,
			"bearing":         mc.Bearing.DMS(),
			"traverse_length": mc.TraverseLength,
			"precision":       mc.Precision,
			"band":            mc.Band.String(),
			"colour":          mc.Band.Colour(),
		}
	}
	return m
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

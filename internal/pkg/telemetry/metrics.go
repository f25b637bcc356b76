package telemetry

// Span names used for instrumentation.
const (
	SpanPlanLoad   = "survey.plan.load"
	SpanPlanSave   = "survey.plan.save"
	SpanMisclosure = "survey.traverse.misclosure"
	SpanAdjust     = "survey.traverse.adjust"
	SpanCommit     = "survey.traverse.commit"
	SpanPolygon    = "survey.polygon.commit"
	SpanArchive    = "survey.plan.archive"
)

// Span attribute keys.
const (
	AttrPlanID     = "survey.plan_id"
	AttrTraverseID = "survey.traverse_id"
	AttrLotNumber  = "survey.lot_number"
	AttrBand       = "survey.band"
	AttrSuccess    = "survey.adjust.success"
	AttrPoints     = "survey.points"
	AttrPolygons   = "survey.polygons"
)

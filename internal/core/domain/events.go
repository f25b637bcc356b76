package domain

import (
	"encoding/json"
	"time"
)

// EventKind names a survey event. It is the subject suffix on the message bus.
type EventKind string

const (
	EventPointComputed     EventKind = "point.computed"
	EventMisclosure        EventKind = "misclosure"
	EventAdjustment        EventKind = "adjustment"
	EventTraverseCommitted EventKind = "traverse.committed"
	EventPolygonCommitted  EventKind = "polygon.committed"
	EventPlanSaved         EventKind = "plan.saved"
)

// SurveyEvent is published after a plan mutation. Payload is the JSON form of
// the value the event describes (an Extension, Misclosure, Polygon...).
type SurveyEvent struct {
	PlanID  string          `json:"plan_id"`
	Kind    EventKind       `json:"kind"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewSurveyEvent encodes v as the payload of a new event.
func NewSurveyEvent(planID string, kind EventKind, v any) (*SurveyEvent, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &SurveyEvent{PlanID: planID, Kind: kind, Time: time.Now().UTC(), Payload: raw}, nil
}

package natsadapter

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/samirrijal/cadastre/internal/core/domain"
)

// SubjectPrefix roots every survey subject: survey.<plan>.<kind>.
const SubjectPrefix = "survey"

// Subject returns the subject an event of kind is published on for a plan.
func Subject(planID string, kind domain.EventKind) string {
	return SubjectPrefix + "." + planID + "." + string(kind)
}

// PlanSubject matches every event of one plan.
func PlanSubject(planID string) string {
	return SubjectPrefix + "." + planID + ".>"
}

// encodeEvent wraps an event in a protobuf Struct envelope:
//
//	{plan_id, kind, time: {seconds, nanos}, payload: {...}}
func encodeEvent(ev *domain.SurveyEvent) ([]byte, error) {
	var payload map[string]any
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	ts := timestamppb.New(ev.Time)

	env, err := structpb.NewStruct(map[string]any{
		"plan_id": ev.PlanID,
		"kind":    string(ev.Kind),
		"time": map[string]any{
			"seconds": float64(ts.GetSeconds()),
			"nanos":   float64(ts.GetNanos()),
		},
		"payload": payload,
	})
	if err != nil {
		return nil, fmt.Errorf("build envelope: %w", err)
	}
	return proto.Marshal(env)
}

// decodeEvent reverses encodeEvent. The payload comes back as protojson.
func decodeEvent(data []byte) (*domain.SurveyEvent, error) {
	var env structpb.Struct
	if err := proto.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	f := env.GetFields()

	ev := &domain.SurveyEvent{
		PlanID: f["plan_id"].GetStringValue(),
		Kind:   domain.EventKind(f["kind"].GetStringValue()),
	}
	if ts := f["time"].GetStructValue(); ts != nil {
		t := &timestamppb.Timestamp{
			Seconds: int64(ts.GetFields()["seconds"].GetNumberValue()),
			Nanos:   int32(ts.GetFields()["nanos"].GetNumberValue()),
		}
		if err := t.CheckValid(); err == nil {
			ev.Time = t.AsTime()
		}
	}
	if p := f["payload"].GetStructValue(); p != nil {
		raw, err := protojson.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		ev.Payload = raw
	}
	if ev.PlanID == "" || ev.Kind == "" {
		return nil, fmt.Errorf("envelope missing plan_id or kind")
	}
	return ev, nil
}

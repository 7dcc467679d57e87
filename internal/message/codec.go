package message

import (
	"encoding/json"
	"fmt"

	"kitmsg/internal/domain"
)

// Decode validates ev's payload against the variant registered for its
// type. Missing fields take their defaults; fields of the wrong JSON type
// fail with domain.ErrInvalidPayload.
func Decode(ev domain.InboundEvent) (Inbound, error) {
	switch ev.Type {
	case CustomActionRequestType:
		var m CustomActionRequest
		if err := decodeInto(ev, &m); err != nil {
			return nil, err
		}
		if m.Parameters == nil {
			m.Parameters = map[string]any{}
		}
		domain.Normalize(m.Parameters)
		return m, nil
	case SetParameterType:
		var m SetParameter
		if err := decodeInto(ev, &m); err != nil {
			return nil, err
		}
		m.Value = domain.Normalize(m.Value)
		return m, nil
	case GetCustomDataType:
		m := GetCustomData{Type: "all"}
		if err := decodeInto(ev, &m); err != nil {
			return nil, err
		}
		return m, nil
	case GetTimelineStatusType:
		return GetTimelineStatus{}, nil
	case TimelineControlType:
		var m TimelineControl
		if err := decodeInto(ev, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("decode %s: unknown message type: %w", ev.Type, domain.ErrInvalidPayload)
	}
}

func decodeInto(ev domain.InboundEvent, dst any) error {
	if len(ev.Payload) == 0 {
		return nil
	}
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("decode %s: %v: %w", ev.Type, err, domain.ErrInvalidPayload)
	}
	if err := domain.DecodeJSON(data, dst); err != nil {
		return fmt.Errorf("decode %s: %v: %w", ev.Type, err, domain.ErrInvalidPayload)
	}
	return nil
}

func (m CustomActionResult) Payload() domain.Payload {
	return domain.Payload{
		"action_type": m.ActionType,
		"result":      m.Result,
		"status":      m.Status,
	}
}

func (m DataUpdateNotification) Payload() domain.Payload {
	return domain.Payload{
		"type": m.Type,
		"data": m.Data,
	}
}

func (m ParameterChanged) Payload() domain.Payload {
	return domain.Payload{
		"name":   m.Name,
		"value":  m.Value,
		"status": m.Status,
	}
}

func (m TimelineStatusResponse) Payload() domain.Payload {
	if m.Action != nil {
		return domain.Payload{
			"action_result":        m.Action.payload(),
			"mode":                 m.Mode,
			"is_playing":           m.IsPlaying,
			"scripted_mode_active": m.ScriptedModeActive,
		}
	}
	return domain.Payload{
		"mode":                 m.Mode,
		"is_playing":           m.IsPlaying,
		"is_stopped":           m.IsStopped,
		"current_time":         m.CurrentTime,
		"start_time":           m.StartTime,
		"end_time":             m.EndTime,
		"scripted_mode_active": m.ScriptedModeActive,
	}
}

func (r ActionResult) payload() map[string]any {
	out := map[string]any{
		"action":  r.Action,
		"success": r.Success,
		"error":   nil,
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Message != "" {
		out["message"] = r.Message
	}
	return out
}

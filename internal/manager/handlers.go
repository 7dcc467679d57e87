package manager

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"kitmsg/internal/message"

	"github.com/dustin/go-humanize"
)

func (m *Manager) onCustomAction(ctx context.Context, req message.CustomActionRequest) error {
	m.logger.Info("custom action request", "action_type", req.ActionType, "parameters", req.Parameters)

	var result map[string]any
	switch req.ActionType {
	case "rotate_camera":
		result = map[string]any{
			"rotated": true,
			"angle":   valueOr(req.Parameters, "angle", 0),
		}
	case "toggle_feature":
		result = map[string]any{
			"feature": valueOr(req.Parameters, "feature", ""),
			"enabled": valueOr(req.Parameters, "enabled", false),
		}
	default:
		result = map[string]any{"error": fmt.Sprintf("Unknown action: %s", req.ActionType)}
	}

	m.publisher.Send(message.CustomActionResult{
		ActionType: req.ActionType,
		Result:     result,
		Status:     "success",
	})
	return nil
}

func (m *Manager) onSetParameter(ctx context.Context, req message.SetParameter) error {
	m.logger.Info("setting parameter", "name", req.Name, "value", req.Value)

	if req.Name == "" || !req.HasValue() {
		return nil
	}
	if err := m.store.Set(ctx, req.Name, req.Value); err != nil {
		return fmt.Errorf("set parameter %s: %w", req.Name, err)
	}

	m.publisher.Send(message.ParameterChanged{
		Name:   req.Name,
		Value:  req.Value,
		Status: "success",
	})
	return nil
}

func (m *Manager) onGetCustomData(ctx context.Context, req message.GetCustomData) error {
	m.logger.Info("data request", "type", req.Type)

	var data map[string]any
	if src, ok := m.data[req.Type]; ok {
		data = src()
	} else {
		data = map[string]any{"message": fmt.Sprintf("No data available for type: %s", req.Type)}
	}

	m.publisher.Send(message.DataUpdateNotification{Type: req.Type, Data: data})
	return nil
}

func (m *Manager) onGetTimelineStatus(ctx context.Context, _ message.GetTimelineStatus) error {
	m.logger.Info("timeline status requested")

	tl := m.timeline
	isPlaying := tl.IsPlaying()
	isStopped := tl.IsStopped()

	m.publisher.Send(message.TimelineStatusResponse{
		Mode:               Mode(isPlaying, isStopped),
		IsPlaying:          isPlaying,
		IsStopped:          isStopped,
		CurrentTime:        tl.CurrentTime(),
		StartTime:          tl.StartTime(),
		EndTime:            tl.EndTime(),
		ScriptedModeActive: isPlaying,
	})
	return nil
}

// onTimelineControl reports every failure in the response; nothing raised
// by the timeline reaches the dispatch boundary.
func (m *Manager) onTimelineControl(ctx context.Context, req message.TimelineControl) error {
	m.logger.Info("timeline control", "action", req.Action)

	result := m.applyControl(req.Action)

	// Read the timeline again right before answering so the reply reflects
	// the state after the action.
	tl := m.timeline
	m.publisher.Send(message.TimelineStatusResponse{
		Mode:               Mode(tl.IsPlaying(), tl.IsStopped()),
		IsPlaying:          tl.IsPlaying(),
		ScriptedModeActive: tl.IsPlaying(),
		Action:             &result,
	})
	return nil
}

func (m *Manager) applyControl(action string) (result message.ActionResult) {
	result.Action = action
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Message = ""
			result.Error = fmt.Sprint(r)
			m.logger.Error("timeline control error", "action", action, "err", result.Error)
		}
	}()

	var err error
	var msg string
	switch action {
	case "play":
		err = m.timeline.Play()
		msg = "Simulation started (scripted mode active)"
	case "pause":
		err = m.timeline.Pause()
		msg = "Simulation paused"
	case "stop":
		err = m.timeline.Stop()
		msg = "Simulation stopped (idle mode)"
	default:
		result.Error = fmt.Sprintf("Unknown action: %s", action)
		return result
	}
	if err != nil {
		result.Error = err.Error()
		m.logger.Error("timeline control error", "action", action, "err", err)
		return result
	}
	result.Success = true
	result.Message = msg
	return result
}

// Mode derives the playback mode. Playing wins when both flags are set;
// paused is the fallback when neither is.
func Mode(isPlaying, isStopped bool) string {
	switch {
	case isPlaying:
		return "playing"
	case isStopped:
		return "stopped"
	default:
		return "paused"
	}
}

func (m *Manager) defaultDataSources() map[string]DataSource {
	return map[string]DataSource{
		"viewport_info": func() map[string]any {
			return map[string]any{
				"resolution": "1920x1080",
				"fps":        60,
				"renderer":   "RTX",
			}
		},
		"app_status": func() map[string]any {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return map[string]any{
				"version":      m.version,
				"uptime":       formatUptime(m.now().Sub(m.started)),
				"memory_usage": humanize.Bytes(ms.Sys),
			}
		},
	}
}

// formatUptime renders d as HH:MM:SS; hours are not capped at 24.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}

func valueOr(params map[string]any, key string, fallback any) any {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

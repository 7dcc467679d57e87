// Package message defines the typed variants carried by each wire message
// name and converts them to and from untyped payloads.
package message

import "kitmsg/internal/domain"

// Inbound wire names (client -> process).
const (
	CustomActionRequestType domain.MessageType = "customActionRequest"
	SetParameterType        domain.MessageType = "setParameter"
	GetCustomDataType       domain.MessageType = "getCustomData"
	GetTimelineStatusType   domain.MessageType = "getTimelineStatus"
	TimelineControlType     domain.MessageType = "timelineControl"
)

// Outbound wire names (process -> client).
const (
	CustomActionResultType     domain.MessageType = "customActionResult"
	DataUpdateNotificationType domain.MessageType = "dataUpdateNotification"
	ParameterChangedType       domain.MessageType = "parameterChanged"
	TimelineStatusResponseType domain.MessageType = "timelineStatusResponse"
)

// InboundTypes lists every inbound name in subscription order.
func InboundTypes() []domain.MessageType {
	return []domain.MessageType{
		CustomActionRequestType,
		SetParameterType,
		GetCustomDataType,
		GetTimelineStatusType,
		TimelineControlType,
	}
}

// OutboundTypes lists every outbound name in declaration order.
func OutboundTypes() []domain.MessageType {
	return []domain.MessageType{
		CustomActionResultType,
		DataUpdateNotificationType,
		ParameterChangedType,
		TimelineStatusResponseType,
	}
}

// Inbound is implemented by every client -> process variant.
type Inbound interface {
	MessageType() domain.MessageType
}

// Outbound is implemented by every process -> client variant.
type Outbound interface {
	MessageType() domain.MessageType
	Payload() domain.Payload
}

type CustomActionRequest struct {
	ActionType string         `json:"action_type"`
	Parameters map[string]any `json:"parameters"`
}

type SetParameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// HasValue is false when the value was missing or null.
func (m SetParameter) HasValue() bool { return m.Value != nil }

type GetCustomData struct {
	Type string `json:"type"`
}

type GetTimelineStatus struct{}

type TimelineControl struct {
	Action string `json:"action"`
}

func (CustomActionRequest) MessageType() domain.MessageType { return CustomActionRequestType }
func (SetParameter) MessageType() domain.MessageType        { return SetParameterType }
func (GetCustomData) MessageType() domain.MessageType       { return GetCustomDataType }
func (GetTimelineStatus) MessageType() domain.MessageType   { return GetTimelineStatusType }
func (TimelineControl) MessageType() domain.MessageType     { return TimelineControlType }

type CustomActionResult struct {
	ActionType string
	Result     map[string]any
	Status     string
}

type DataUpdateNotification struct {
	Type string
	Data map[string]any
}

type ParameterChanged struct {
	Name   string
	Value  any
	Status string
}

// ActionResult reports the outcome of a timeline control request.
type ActionResult struct {
	Action  string
	Success bool
	Error   string // empty renders as null
	Message string // omitted when empty
}

// TimelineStatusResponse answers both status queries and control requests.
// Status queries fill the timing fields; control requests fill Action.
type TimelineStatusResponse struct {
	Mode               string
	IsPlaying          bool
	IsStopped          bool
	CurrentTime        float64
	StartTime          float64
	EndTime            float64
	ScriptedModeActive bool

	Action *ActionResult
}

func (CustomActionResult) MessageType() domain.MessageType     { return CustomActionResultType }
func (DataUpdateNotification) MessageType() domain.MessageType { return DataUpdateNotificationType }
func (ParameterChanged) MessageType() domain.MessageType       { return ParameterChangedType }
func (TimelineStatusResponse) MessageType() domain.MessageType { return TimelineStatusResponseType }

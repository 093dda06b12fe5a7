package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl   MessageType = "client_control"
	TypeLeadFormField   MessageType = "lead_form_field"
	TypeLeadFormSubmit  MessageType = "lead_form_submit"
	TypeLeadFormCancel  MessageType = "lead_form_cancel"
	TypeViewState       MessageType = "view_state"
	TypeLeadFormDisplay MessageType = "lead_form_display"
	TypeLeadFormDismiss MessageType = "lead_form_dismiss"
	TypeNotification    MessageType = "notification"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Client control actions.
const (
	ActionStart      = "start"
	ActionEnd        = "end"
	ActionRefresh    = "refresh"
	ActionMediaError = "media_error"
)

// Views rendered by the shell.
const (
	ViewWelcome = "welcome"
	ViewSession = "session"
)

// Notification levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Detail    string      `json:"detail,omitempty"`
}

type LeadFormField struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	FormID    uint64      `json:"form_id"`
	Field     string      `json:"field"`
	Value     string      `json:"value"`
}

// LeadFormSubmit submits the form. Fields, when present, are applied before
// submitting so a renderer may send the whole form at once.
type LeadFormSubmit struct {
	Type      MessageType       `json:"type"`
	SessionID string            `json:"session_id"`
	FormID    uint64            `json:"form_id"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type LeadFormCancel struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	FormID    uint64      `json:"form_id"`
}

type ViewState struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	View         string      `json:"view"`
	CallState    string      `json:"call_state"`
	StartEnabled bool        `json:"start_enabled"`
	Fetching     bool        `json:"fetching"`
	RoomName     string      `json:"room_name,omitempty"`
}

type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Value    string `json:"value"`
	Required bool   `json:"required"`
	Multi    bool   `json:"multiline,omitempty"`
}

type LeadFormDisplay struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	FormID      uint64      `json:"form_id"`
	Layout      string      `json:"layout"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	SubmitText  string      `json:"submit_text"`
	CancelText  string      `json:"cancel_text"`
	Fields      []FormField `json:"fields"`
}

type LeadFormDismiss struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	FormID    uint64      `json:"form_id"`
	Reason    string      `json:"reason"`
}

type Notification struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Level       string      `json:"level"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Action {
		case ActionStart, ActionEnd, ActionRefresh, ActionMediaError:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	case TypeLeadFormField:
		var msg LeadFormField
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Field == "" {
			return nil, errors.New("invalid lead_form_field")
		}
		return msg, nil
	case TypeLeadFormSubmit:
		var msg LeadFormSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeLeadFormCancel:
		var msg LeadFormCancel
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

package types

import "time"

// ControlMessage represents a WebSocket control update message
type ControlMessage struct {
	ControlID   string            `json:"controlId"`
	Identity    string            `json:"identity"`
	DisplayName string            `json:"displayName"`
	State       ControlState      `json:"state"`
	Label       string            `json:"label"`    // text the host shell shows on the control
	Disabled    bool              `json:"disabled"` // whether the control accepts clicks
	Progress    *ProgressSnapshot `json:"progress,omitempty"`
	Message     string            `json:"message,omitempty"` // status or error messages
	Timestamp   time.Time         `json:"timestamp"`         // when the update occurred
}

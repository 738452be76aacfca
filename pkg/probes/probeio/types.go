// Package probeio defines the JSON-over-stdio protocol between the
// engine and out-of-process probes: WASI modules and subprocess
// harnesses both read one request line on stdin and write one result or
// error line on stdout.
package probeio

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType represents the type of message in the protocol.
type MessageType string

const (
	// MessageTypeRequest carries the probe request to the guest.
	MessageTypeRequest MessageType = "REQ"
	// MessageTypeResult carries the probe's finding back.
	MessageTypeResult MessageType = "RESULT"
	// MessageTypeError reports a probe failure.
	MessageTypeError MessageType = "ERROR"
)

// Probe kinds carried in a request.
const (
	KindAvailability = "availability"
	KindRequirement  = "requirement"
)

// Message is the envelope for all protocol messages.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Request carries everything a probe needs to decide: the package under
// evaluation, the probe kind, the host facts snapshot, and the shared
// option namespace including earlier packages' verdicts.
type Request struct {
	Package  string                 `json:"package"`
	Kind     string                 `json:"kind"`
	Facts    map[string]interface{} `json:"facts,omitempty"`
	Options  map[string]string      `json:"options,omitempty"`
	Verdicts map[string]string      `json:"verdicts,omitempty"`
	Timeout  int                    `json:"timeout,omitempty"` // seconds
}

// Result is a probe's finding. Availability probes set Found,
// requirement probes set Required; Note is free-form audit text.
type Result struct {
	Found    *bool  `json:"found,omitempty"`
	Required *bool  `json:"required,omitempty"`
	Note     string `json:"note,omitempty"`
}

// ErrorReply reports a probe failure with a machine-readable code.
type ErrorReply struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Validate checks if the message type is valid.
func (mt MessageType) Validate() error {
	switch mt {
	case MessageTypeRequest, MessageTypeResult, MessageTypeError:
		return nil
	default:
		return fmt.Errorf("invalid message type: %s", mt)
	}
}

// Validate checks if the request is complete.
func (r *Request) Validate() error {
	if r.Package == "" {
		return fmt.Errorf("request package is required")
	}
	switch r.Kind {
	case KindAvailability, KindRequirement:
		return nil
	default:
		return fmt.Errorf("invalid probe kind: %s", r.Kind)
	}
}

// Validate checks that the result carries at least one finding.
func (r *Result) Validate() error {
	if r.Found == nil && r.Required == nil {
		return fmt.Errorf("result must carry found or required")
	}
	return nil
}

package probeio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Encoder writes protocol messages to an io.Writer, one JSON line each.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates a new protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

// Encode writes a message to the output stream.
func (e *Encoder) Encode(msgType MessageType, data interface{}) error {
	if err := msgType.Validate(); err != nil {
		return fmt.Errorf("invalid message type: %w", err)
	}

	var dataBytes []byte
	var err error
	if data != nil {
		dataBytes, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := e.w.Write(msgBytes); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	return nil
}

// EncodeRequest sends a REQ message.
func (e *Encoder) EncodeRequest(req *Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return e.Encode(MessageTypeRequest, req)
}

// EncodeResult sends a RESULT message.
func (e *Encoder) EncodeResult(res *Result) error {
	if err := res.Validate(); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	return e.Encode(MessageTypeResult, res)
}

// EncodeError sends an ERROR message.
func (e *Encoder) EncodeError(rep *ErrorReply) error {
	return e.Encode(MessageTypeError, rep)
}

// Decoder reads protocol messages from an io.Reader.
type Decoder struct {
	r *bufio.Scanner
}

// NewDecoder creates a new protocol decoder. Probe payloads are small;
// the line buffer caps at 1 MB.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)
	return &Decoder{
		r: scanner,
	}
}

// Decode reads the next message from the input stream.
func (d *Decoder) Decode() (*Message, error) {
	if !d.r.Scan() {
		if err := d.r.Err(); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		return nil, io.EOF
	}

	line := d.r.Bytes()
	if len(line) == 0 {
		return nil, fmt.Errorf("empty line")
	}

	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	if err := msg.Type.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	return &msg, nil
}

// DecodeRequest reads a REQ message.
func (d *Decoder) DecodeRequest() (*Request, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}

	if msg.Type != MessageTypeRequest {
		return nil, fmt.Errorf("expected REQ message, got %s", msg.Type)
	}

	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	return &req, nil
}

// DecodeResult reads a RESULT message. An ERROR message comes back as a
// Go error carrying the guest's message.
func (d *Decoder) DecodeResult() (*Result, error) {
	msg, err := d.Decode()
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case MessageTypeResult:
		var res Result
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		if err := res.Validate(); err != nil {
			return nil, fmt.Errorf("invalid result: %w", err)
		}
		return &res, nil

	case MessageTypeError:
		var rep ErrorReply
		if err := json.Unmarshal(msg.Data, &rep); err != nil {
			return nil, fmt.Errorf("failed to unmarshal error reply: %w", err)
		}
		if rep.Code != "" {
			return nil, fmt.Errorf("probe reported %s: %s", rep.Code, rep.Message)
		}
		return nil, fmt.Errorf("probe reported: %s", rep.Message)

	default:
		return nil, fmt.Errorf("expected RESULT or ERROR message, got %s", msg.Type)
	}
}

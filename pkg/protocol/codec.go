package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameBytes bounds a single wire frame. Lines longer than this are
// rejected rather than silently truncated.
const MaxFrameBytes = 1 << 20 // 1 MiB

// Decoder reads newline-delimited JSON request frames from a stream.
type Decoder struct {
	scanner *bufio.Scanner
	fatal   bool
}

// Fatal reports whether the underlying stream can no longer be scanned,
// as opposed to a single bad frame.
func (d *Decoder) Fatal() bool {
	return d.fatal
}

// NewDecoder creates a decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), MaxFrameBytes)
	return &Decoder{scanner: scanner}
}

// Decode reads the next complete frame and parses it into a Request.
// It returns io.EOF when the stream closes cleanly, and a *Error with code
// malformed_request when the frame cannot be parsed or validated.
func (d *Decoder) Decode() (*Request, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, &Error{Code: CodeMalformedRequest, Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := d.scanner.Err(); err != nil {
		d.fatal = true
		if err == bufio.ErrTooLong {
			return nil, &Error{Code: CodeMalformedRequest, Message: "frame exceeds maximum size"}
		}
		return nil, err
	}
	return nil, io.EOF
}

// DecodeRaw reads the next complete frame without interpreting it. Clients
// use this to read response frames, whose shape depends on the action.
func (d *Decoder) DecodeRaw() (json.RawMessage, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		out := make(json.RawMessage, len(line))
		copy(out, line)
		return out, nil
	}

	if err := d.scanner.Err(); err != nil {
		if err == bufio.ErrTooLong {
			return nil, &Error{Code: CodeMalformedRequest, Message: "frame exceeds maximum size"}
		}
		return nil, err
	}
	return nil, io.EOF
}

// Encoder writes response frames as newline-delimited JSON.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v and writes it as one frame.
func (e *Encoder) Encode(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	if _, err := e.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// EncodeError writes a typed error frame.
func (e *Encoder) EncodeError(perr *Error) error {
	return e.Encode(ErrorResponse{Error: perr})
}

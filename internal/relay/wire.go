package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	labelEvent  = "EVENT"
	labelReq    = "REQ"
	labelClose  = "CLOSE"
	labelOK     = "OK"
	labelEOSE   = "EOSE"
	labelClosed = "CLOSED"
	labelNotice = "NOTICE"
)

var errFrame = errors.New("malformed relay frame")

// encodeFrame renders a NIP-01 frame.
func encodeFrame(label string, args ...any) ([]byte, error) {
	frame := make([]any, 0, 1+len(args))
	frame = append(frame, label)
	frame = append(frame, args...)
	return json.Marshal(frame)
}

// decodeFrame splits a frame into its label and raw arguments.
func decodeFrame(raw []byte) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errFrame, err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: empty", errFrame)
	}
	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return "", nil, fmt.Errorf("%w: label: %v", errFrame, err)
	}
	return label, parts[1:], nil
}

// arg decodes args[i] into out.
func arg(args []json.RawMessage, i int, out any) error {
	if i >= len(args) {
		return fmt.Errorf("%w: missing argument %d", errFrame, i)
	}
	if err := json.Unmarshal(args[i], out); err != nil {
		return fmt.Errorf("%w: argument %d: %v", errFrame, i, err)
	}
	return nil
}

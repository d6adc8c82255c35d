package live

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encodeFrame renders an event in the SSE wire format: optional "id:" and
// "retry:" lines, an "event:" line, a "data:" line carrying the JSON-encoded
// payload, and a blank-line terminator.
func encodeFrame(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}

	var buf bytes.Buffer
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	if ev.RetryMillis > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", ev.RetryMillis)
	}
	fmt.Fprintf(&buf, "event: %s\n", ev.Type)
	fmt.Fprintf(&buf, "data: %s\n\n", payload)
	return buf.Bytes(), nil
}

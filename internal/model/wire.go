package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeKeys are the canonical field names that hold timestamps. The wire
// format sends either RFC 3339 strings or epoch milliseconds (the mobile
// client historically sent Date.now() values); both decode to time.Time.
var timeKeys = map[string]bool{
	"startTime":     true,
	"endTime":       true,
	"completedTime": true,
	"createdAt":     true,
	"updatedAt":     true,
}

// DecodeOperation converts a canonical field map (the output of the inbound
// fieldmap translation) into a typed Operation. Unknown fields are dropped
// here; they have already been preserved through translation for callers
// that round-trip raw maps.
func DecodeOperation(m map[string]any) (Operation, error) {
	normalizeTimes(m)
	if steps, ok := m["steps"].([]any); ok {
		for _, s := range steps {
			if sm, ok := s.(map[string]any); ok {
				normalizeTimes(sm)
			}
		}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return Operation{}, fmt.Errorf("model: encode canonical map: %w", err)
	}
	var op Operation
	if err := json.Unmarshal(raw, &op); err != nil {
		return Operation{}, fmt.Errorf("model: decode operation: %w", err)
	}
	return op, nil
}

// EncodeOperation converts a typed Operation back into a canonical field
// map, ready for outbound localization.
func EncodeOperation(op Operation) (map[string]any, error) {
	raw, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("model: encode operation: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("model: decode operation map: %w", err)
	}
	return m, nil
}

// normalizeTimes rewrites epoch-millisecond numbers to RFC 3339 strings so
// the subsequent json.Unmarshal into time.Time fields succeeds.
func normalizeTimes(m map[string]any) {
	for k, v := range m {
		if !timeKeys[k] {
			continue
		}
		if f, ok := v.(float64); ok {
			m[k] = time.UnixMilli(int64(f)).UTC().Format(time.RFC3339Nano)
		}
	}
}

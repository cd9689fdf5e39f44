package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Filter is one tri-state filter axis. FilterAny is the zero value and means
// "no constraint"; it is distinct from FilterFalse, which constrains the axis
// to sites whose status is false.
type Filter uint8

const (
	FilterAny Filter = iota
	FilterTrue
	FilterFalse
)

// String returns "any", "true" or "false".
func (f Filter) String() string {
	switch f {
	case FilterTrue:
		return "true"
	case FilterFalse:
		return "false"
	default:
		return "any"
	}
}

// QueryValue returns the query-string value for the axis and whether the axis
// should be sent at all. FilterAny is omitted from queries entirely.
func (f Filter) QueryValue() (string, bool) {
	switch f {
	case FilterTrue:
		return "true", true
	case FilterFalse:
		return "false", true
	default:
		return "", false
	}
}

// BoolPtr converts the filter to the nullable boolean used in storage.
func (f Filter) BoolPtr() *bool {
	switch f {
	case FilterTrue:
		v := true
		return &v
	case FilterFalse:
		v := false
		return &v
	default:
		return nil
	}
}

// FilterFromBoolPtr is the inverse of BoolPtr.
func FilterFromBoolPtr(b *bool) Filter {
	switch {
	case b == nil:
		return FilterAny
	case *b:
		return FilterTrue
	default:
		return FilterFalse
	}
}

// MarshalJSON encodes FilterAny as null and the other variants as booleans.
func (f Filter) MarshalJSON() ([]byte, error) {
	switch f {
	case FilterTrue:
		return []byte("true"), nil
	case FilterFalse:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts null, true or false.
func (f *Filter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FilterAny
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("filter must be true, false or null: %w", err)
	}
	if b {
		*f = FilterTrue
	} else {
		*f = FilterFalse
	}
	return nil
}

// LoadStatus is the lifecycle of one fetch cycle:
// idle -> pending -> succeeded | failed. Every new cycle resets to pending.
type LoadStatus string

const (
	LoadIdle      LoadStatus = "idle"
	LoadPending   LoadStatus = "pending"
	LoadSucceeded LoadStatus = "succeeded"
	LoadFailed    LoadStatus = "failed"
)

// SelectionPhase identifies the selection lifecycle state.
type SelectionPhase string

const (
	PhaseIdle    SelectionPhase = "idle"
	PhaseOpen    SelectionPhase = "open"
	PhaseClosing SelectionPhase = "closing"
)

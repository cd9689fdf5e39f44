package types

import (
	"encoding/json"
	"testing"
)

func TestFilter_JSON(t *testing.T) {
	tests := []struct {
		json   string
		filter Filter
	}{
		{"null", FilterAny},
		{"true", FilterTrue},
		{"false", FilterFalse},
	}

	for _, tt := range tests {
		t.Run(tt.json, func(t *testing.T) {
			out, err := json.Marshal(tt.filter)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(out) != tt.json {
				t.Errorf("Marshal(%v) = %s, want %s", tt.filter, out, tt.json)
			}

			got := Filter(99)
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if got != tt.filter {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.json, got, tt.filter)
			}
		})
	}
}

func TestFilter_UnmarshalRejectsNonBool(t *testing.T) {
	for _, in := range []string{`"true"`, `1`, `"any"`} {
		var f Filter
		if err := json.Unmarshal([]byte(in), &f); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
}

// A missing axis decodes to FilterAny, same as an explicit null.
func TestFilters_PartialObject(t *testing.T) {
	var f Filters
	if err := json.Unmarshal([]byte(`{"reservedFilter":false}`), &f); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Filters{ReservedFilter: FilterFalse}
	if f != want {
		t.Errorf("got %+v, want %+v", f, want)
	}
}

func TestFilter_QueryValue(t *testing.T) {
	if _, ok := FilterAny.QueryValue(); ok {
		t.Error("FilterAny should be omitted from queries")
	}
	if v, ok := FilterTrue.QueryValue(); !ok || v != "true" {
		t.Errorf("FilterTrue.QueryValue() = %q, %v", v, ok)
	}
	if v, ok := FilterFalse.QueryValue(); !ok || v != "false" {
		t.Errorf("FilterFalse.QueryValue() = %q, %v", v, ok)
	}
}

func TestFilter_BoolPtrRoundTrip(t *testing.T) {
	for _, f := range []Filter{FilterAny, FilterTrue, FilterFalse} {
		if got := FilterFromBoolPtr(f.BoolPtr()); got != f {
			t.Errorf("FilterFromBoolPtr(%v.BoolPtr()) = %v", f, got)
		}
	}
	if FilterAny.BoolPtr() != nil {
		t.Error("FilterAny.BoolPtr() should be nil")
	}
}

func TestFilter_String(t *testing.T) {
	for f, want := range map[Filter]string{FilterAny: "any", FilterTrue: "true", FilterFalse: "false"} {
		if f.String() != want {
			t.Errorf("Filter(%d).String() = %q, want %q", uint8(f), f.String(), want)
		}
	}
}

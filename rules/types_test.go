package rules

import (
	"encoding/json"
	"testing"
)

// TestStateLookup verifies that missing keys and nil states report ok == false
func TestStateLookup(t *testing.T) {
	state := State{"poi": "Office", "empty": nil}

	if v, ok := state.Lookup("poi"); !ok || v != "Office" {
		t.Errorf("Lookup(poi) = %v, %v; want Office, true", v, ok)
	}
	if _, ok := state.Lookup("empty"); !ok {
		t.Error("Lookup(empty) should report a present nil value")
	}
	if _, ok := state.Lookup("missing"); ok {
		t.Error("Lookup(missing) should report ok == false")
	}

	var nilState State
	if _, ok := nilState.Lookup("poi"); ok {
		t.Error("Lookup on nil state should report ok == false")
	}
}

// TestStateString verifies that only string values are returned as strings
func TestStateString(t *testing.T) {
	state := State{"poi": "Office", "budget": 2000}

	tests := []struct {
		field  string
		want   string
		wantOK bool
	}{
		{"poi", "Office", true},
		{"budget", "", false},
		{"missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			got, ok := state.String(tt.field)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("String(%s) = %q, %v; want %q, %v", tt.field, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestStateNumber verifies that every numeric kind converts and others do not
func TestStateNumber(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		want   float64
		wantOK bool
	}{
		{"int", 2000, 2000, true},
		{"int8", int8(-3), -3, true},
		{"int16", int16(300), 300, true},
		{"int32", int32(70000), 70000, true},
		{"int64", int64(1 << 40), 1 << 40, true},
		{"uint", uint(5), 5, true},
		{"uint8", uint8(255), 255, true},
		{"uint16", uint16(65535), 65535, true},
		{"uint32", uint32(12), 12, true},
		{"uint64", uint64(99), 99, true},
		{"float32", float32(1.5), 1.5, true},
		{"float64", 20000.25, 20000.25, true},
		{"json.Number", json.Number("10000"), 10000, true},
		{"bad json.Number", json.Number("ten"), 0, false},
		{"string", "10000", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := State{"budget": tt.value}
			got, ok := state.Number("budget")
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Number(budget) = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if _, ok := (State{}).Number("budget"); ok {
		t.Error("Number on missing field should report ok == false")
	}
}

// TestStateFromJSON verifies that decoded JSON requests work with typed accessors
func TestStateFromJSON(t *testing.T) {
	var state State
	if err := json.Unmarshal([]byte(`{"pointOfInterest":"Home Furniture","budget":15000}`), &state); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}

	if v, ok := state.Number("budget"); !ok || v != 15000 {
		t.Errorf("Number(budget) = %v, %v; want 15000, true", v, ok)
	}
	if v, ok := state.String("pointOfInterest"); !ok || v != "Home Furniture" {
		t.Errorf("String(pointOfInterest) = %q, %v", v, ok)
	}
}

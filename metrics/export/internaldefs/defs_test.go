package internaldefs

import (
	"strings"
	"testing"
)

func TestCounterDefsAreUnique(t *testing.T) {
	names := make(map[string]bool, len(CounterDefs))
	ids := make(map[int]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "emf_auth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("unexpected counter name %q", def.Name)
		}
		if names[def.Name] {
			t.Fatalf("duplicate counter name %q", def.Name)
		}
		if ids[int(def.ID)] {
			t.Fatalf("duplicate counter id %d", def.ID)
		}
		names[def.Name] = true
		ids[int(def.ID)] = true
	}
}

func TestBoundTablesAgree(t *testing.T) {
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 || len(HistogramUpperBounds) != 8 {
		t.Fatalf("bound tables must have 8 entries")
	}
	if HistogramBounds[7] != "+Inf" || HistogramBoundSuffix[7] != "inf" {
		t.Fatal("last bucket must be +Inf")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestHistogramDefsDescribeBuckets(t *testing.T) {
	for _, def := range HistogramDefs {
		if def.Help == "" || def.BucketHelp == "" || def.CountHelp == "" {
			t.Fatalf("histogram %s lacks descriptions", def.Name)
		}
	}
}

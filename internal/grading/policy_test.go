package grading

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPolicyJSONRoundTrip(t *testing.T) {
	raw := `{"points_per_difficulty":{"1":10,"2":20.5},"penalty_type":"fixed","fixed_penalty":5}`
	var p Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.PointsFor(1).Equal(decimal.NewFromInt(10)) {
		t.Fatalf("PointsFor(1) = %s", p.PointsFor(1))
	}
	if !p.PointsFor(2).Equal(decimal.NewFromFloat(20.5)) {
		t.Fatalf("PointsFor(2) = %s", p.PointsFor(2))
	}
	if !p.PenaltyFor(3).Equal(decimal.NewFromInt(5)) {
		t.Fatalf("PenaltyFor = %s, want fixed 5", p.PenaltyFor(3))
	}

	buf, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Policy
	if err := json.Unmarshal(buf, &back); err != nil {
		t.Fatalf("unmarshal round trip: %v", err)
	}
	if !back.PointsFor(2).Equal(p.PointsFor(2)) || back.PenaltyType != p.PenaltyType {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, p)
	}
}

func TestPolicyUnmarshalTolerance(t *testing.T) {
	// Bad keys/values are dropped, not fatal: they just score as zero.
	raw := `{"points_per_difficulty":{"1":10,"bogus":5,"2":"x"},"penalty_type":"","fixed_penalty":"oops"}`
	var p Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.PenaltyType != PenaltyNone {
		t.Fatalf("penalty type = %q, want default none", p.PenaltyType)
	}
	if !p.PointsFor(1).Equal(decimal.NewFromInt(10)) {
		t.Fatalf("PointsFor(1) = %s", p.PointsFor(1))
	}
	if !p.PointsFor(2).IsZero() {
		t.Fatalf("PointsFor(2) = %s, want 0 after dropped entry", p.PointsFor(2))
	}
	if !p.FixedPenalty.IsZero() {
		t.Fatalf("FixedPenalty = %s, want 0 after dropped value", p.FixedPenalty)
	}
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		p       Policy
		wantErr bool
	}{
		{"none ok", Policy{PenaltyType: PenaltyNone}, false},
		{"fixed ok", Policy{PenaltyType: PenaltyFixed, FixedPenalty: decimal.NewFromInt(2)}, false},
		{"bad penalty type", Policy{PenaltyType: "weird"}, true},
		{"difficulty out of range", Policy{
			PenaltyType:         PenaltyNone,
			PointsPerDifficulty: map[int]decimal.Decimal{9: decimal.NewFromInt(1)},
		}, true},
		{"negative points", Policy{
			PenaltyType:         PenaltyNone,
			PointsPerDifficulty: map[int]decimal.Decimal{1: decimal.NewFromInt(-1)},
		}, true},
		{"negative fixed penalty", Policy{PenaltyType: PenaltyFixed, FixedPenalty: decimal.NewFromInt(-1)}, true},
		{"by-difficulty without map", Policy{PenaltyType: PenaltyByDifficulty}, true},
		{"by-difficulty ok", Policy{
			PenaltyType:         PenaltyByDifficulty,
			PenaltyByDifficulty: map[int]decimal.Decimal{1: decimal.NewFromInt(1)},
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestPenaltyForByDifficultySparse(t *testing.T) {
	p := Policy{
		PenaltyType:         PenaltyByDifficulty,
		PenaltyByDifficulty: map[int]decimal.Decimal{2: decimal.NewFromInt(2)},
	}
	if !p.PenaltyFor(2).Equal(decimal.NewFromInt(2)) {
		t.Fatalf("PenaltyFor(2) = %s", p.PenaltyFor(2))
	}
	if !p.PenaltyFor(5).IsZero() {
		t.Fatalf("PenaltyFor(5) = %s, want 0", p.PenaltyFor(5))
	}
}

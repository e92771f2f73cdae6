package grading

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// PenaltyType selects how incorrect answers are penalized.
type PenaltyType string

const (
	PenaltyNone         PenaltyType = "none"
	PenaltyFixed        PenaltyType = "fixed"
	PenaltyByDifficulty PenaltyType = "by_difficulty"
)

const (
	MinDifficulty = 1
	MaxDifficulty = 7
)

// Policy is a test's scoring configuration: points awarded per difficulty
// level plus the penalty rule for incorrect answers. Both maps may be
// sparse; a missing difficulty means zero.
type Policy struct {
	PointsPerDifficulty map[int]decimal.Decimal
	PenaltyType         PenaltyType
	FixedPenalty        decimal.Decimal
	PenaltyByDifficulty map[int]decimal.Decimal
}

// PointsFor returns the points a correct answer at the given difficulty is
// worth. Unknown difficulties are worth zero.
func (p Policy) PointsFor(difficulty int) decimal.Decimal {
	if v, ok := p.PointsPerDifficulty[difficulty]; ok {
		return v
	}
	return decimal.Zero
}

// PenaltyFor returns the (non-negative) penalty magnitude for an incorrect
// answer at the given difficulty.
func (p Policy) PenaltyFor(difficulty int) decimal.Decimal {
	switch p.PenaltyType {
	case PenaltyFixed:
		return p.FixedPenalty
	case PenaltyByDifficulty:
		if v, ok := p.PenaltyByDifficulty[difficulty]; ok {
			return v
		}
	}
	return decimal.Zero
}

// Validate rejects malformed policies at test-creation time so that grading
// never has to. Grading itself still degrades to zero on anything missing.
func (p Policy) Validate() error {
	switch p.PenaltyType {
	case PenaltyNone, PenaltyFixed, PenaltyByDifficulty:
	default:
		return fmt.Errorf("unknown penalty type %q", p.PenaltyType)
	}
	if err := validateMap("points_per_difficulty", p.PointsPerDifficulty); err != nil {
		return err
	}
	if err := validateMap("penalty_by_difficulty", p.PenaltyByDifficulty); err != nil {
		return err
	}
	if p.FixedPenalty.IsNegative() {
		return fmt.Errorf("fixed_penalty must not be negative")
	}
	if p.PenaltyType == PenaltyByDifficulty && len(p.PenaltyByDifficulty) == 0 {
		return fmt.Errorf("penalty_by_difficulty required for penalty type %q", PenaltyByDifficulty)
	}
	return nil
}

func validateMap(field string, m map[int]decimal.Decimal) error {
	for k, v := range m {
		if k < MinDifficulty || k > MaxDifficulty {
			return fmt.Errorf("%s: difficulty %d out of range [%d,%d]", field, k, MinDifficulty, MaxDifficulty)
		}
		if v.IsNegative() {
			return fmt.Errorf("%s: value for difficulty %d must not be negative", field, k)
		}
	}
	return nil
}

// policyJSON is the persisted shape: difficulty keys are strings
// ("1".."7") and values are plain JSON numbers. Numeric fields decode via
// RawMessage so a single malformed entry cannot fail the whole document.
type policyJSON struct {
	PointsPerDifficulty map[string]json.RawMessage `json:"points_per_difficulty,omitempty"`
	PenaltyType         PenaltyType                `json:"penalty_type"`
	FixedPenalty        json.RawMessage            `json:"fixed_penalty,omitempty"`
	PenaltyByDifficulty map[string]json.RawMessage `json:"penalty_by_difficulty,omitempty"`
}

func (p Policy) MarshalJSON() ([]byte, error) {
	out := policyJSON{
		PointsPerDifficulty: encodeDiffMap(p.PointsPerDifficulty),
		PenaltyType:         p.PenaltyType,
		PenaltyByDifficulty: encodeDiffMap(p.PenaltyByDifficulty),
	}
	if out.PenaltyType == "" {
		out.PenaltyType = PenaltyNone
	}
	if !p.FixedPenalty.IsZero() {
		out.FixedPenalty = json.RawMessage(p.FixedPenalty.String())
	}
	return json.Marshal(out)
}

func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw policyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.PenaltyType = raw.PenaltyType
	if p.PenaltyType == "" {
		p.PenaltyType = PenaltyNone
	}
	p.PointsPerDifficulty = decodeDiffMap(raw.PointsPerDifficulty)
	p.PenaltyByDifficulty = decodeDiffMap(raw.PenaltyByDifficulty)
	p.FixedPenalty = decimal.Zero
	if v, ok := decodeNumber(raw.FixedPenalty); ok {
		p.FixedPenalty = v
	}
	return nil
}

func encodeDiffMap(m map[int]decimal.Decimal) map[string]json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = json.RawMessage(v.String())
	}
	return out
}

// decodeDiffMap tolerates bad keys and values rather than failing the whole
// policy; a dropped entry just scores as zero later.
func decodeDiffMap(m map[string]json.RawMessage) map[int]decimal.Decimal {
	if len(m) == 0 {
		return nil
	}
	out := make(map[int]decimal.Decimal, len(m))
	for k, raw := range m {
		d, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		v, ok := decodeNumber(raw)
		if !ok {
			continue
		}
		out[d] = v
	}
	return out
}

func decodeNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

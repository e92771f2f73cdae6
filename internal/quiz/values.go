package quiz

import (
	"strconv"
	"strings"
)

// Value is the tagged submitted-answer value: exactly one variant per
// response format. Using a sealed interface keeps the three evaluation
// paths explicit instead of branching on format strings everywhere.
type Value interface{ isValue() }

type TextValue string

// NumberValue is a parsed integer response.
type NumberValue int64

// ChoiceValue is the id of a resolved Choice.
type ChoiceValue string

func (TextValue) isValue()   {}
func (NumberValue) isValue() {}
func (ChoiceValue) isValue() {}

// ParseValue interprets raw form input for the question's format. Blank
// input, malformed numbers and unknown choice ids all degrade to
// "no value" (ok=false) rather than erroring; whether that is acceptable
// is the caller's allow-no-response decision.
func ParseValue(q Question, raw string) (Value, bool) {
	switch q.Format {
	case FormatText:
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, false
		}
		return TextValue(s), true

	case FormatNumber:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, false
		}
		return NumberValue(n), true

	case FormatChoice:
		id := strings.TrimSpace(raw)
		for _, c := range q.Choices {
			if c.ID == id {
				return ChoiceValue(id), true
			}
		}
		return nil, false
	}
	return nil, false
}

// setValue writes the variant into the answer's discriminated columns.
// A nil value leaves all three empty (a synthesized blank answer).
func setValue(ans *Answer, v Value) {
	switch t := v.(type) {
	case TextValue:
		s := string(t)
		ans.Text = &s
	case NumberValue:
		n := int64(t)
		ans.Number = &n
	case ChoiceValue:
		id := string(t)
		ans.ChoiceID = &id
	}
}

// applyBlankValue sets the format-appropriate empty value used when
// force-finishing synthesizes answers: empty string for text, null for
// number and choice.
func applyBlankValue(q Question, ans *Answer) {
	if q.Format == FormatText {
		empty := ""
		ans.Text = &empty
	}
}

// priorValue is the format-appropriate projection of a stored answer,
// used to re-populate the form when a question is revisited.
func priorValue(q Question, ans Answer) any {
	switch q.Format {
	case FormatText:
		if ans.Text != nil {
			return *ans.Text
		}
	case FormatNumber:
		if ans.Number != nil {
			return *ans.Number
		}
	case FormatChoice:
		if ans.ChoiceID != nil {
			return *ans.ChoiceID
		}
	}
	return nil
}

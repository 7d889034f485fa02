package target

import (
	"cmp"
	"slices"
)

// Mode is the fill strategy chosen for a page.
type Mode int

const (
	// ModeNone means no eligible field exists.
	ModeNone Mode = iota
	// ModeSegmented spreads the code over single-character fields.
	ModeSegmented
	// ModeWhole writes the whole code into one field, plus mirrors.
	ModeWhole
)

func (m Mode) String() string {
	switch m {
	case ModeSegmented:
		return "segmented"
	case ModeWhole:
		return "whole-field"
	default:
		return "none"
	}
}

// maxMirrors caps the additional verification-like fields that receive a
// copy of the code in whole-field mode.
const maxMirrors = 2

// Assignment is one write the engine performs.
type Assignment struct {
	Ref    string
	Value  string
	Score  int
	Mirror bool
}

// Plan is the outcome of Select.
type Plan struct {
	Mode        Mode
	Assignments []Assignment

	// Candidates lists every eligible field ordered by score, highest
	// first. The no-code indication uses the same set.
	Candidates []string
}

// Empty reports whether the plan writes nothing.
func (p Plan) Empty() bool {
	return len(p.Assignments) == 0
}

// Refs returns the refs written by the plan, in write order.
func (p Plan) Refs() []string {
	refs := make([]string, len(p.Assignments))
	for i, a := range p.Assignments {
		refs[i] = a.Ref
	}
	return refs
}

type scored struct {
	Record
	score int
	order int
}

// Select chooses which fields receive code. Segmented layouts win whenever
// there are at least as many single-character fields as code characters.
func Select(records []Record, code string) Plan {
	eligible := rank(records, code)
	plan := Plan{Candidates: make([]string, len(eligible))}
	for i, s := range eligible {
		plan.Candidates[i] = s.Ref
	}
	if code == "" || len(eligible) == 0 {
		return plan
	}

	chars := []rune(code)
	var single []scored
	for _, s := range eligible {
		if SingleChar(s.Record) {
			single = append(single, s)
		}
	}
	if len(single) >= len(chars) {
		slices.SortStableFunc(single, func(a, b scored) int {
			if c := cmp.Compare(a.Rect.Left, b.Rect.Left); c != 0 {
				return c
			}
			return cmp.Compare(a.order, b.order)
		})
		plan.Mode = ModeSegmented
		for i, ch := range chars {
			plan.Assignments = append(plan.Assignments, Assignment{
				Ref:   single[i].Ref,
				Value: string(ch),
				Score: single[i].score,
			})
		}
		return plan
	}

	var text []scored
	for _, s := range eligible {
		if TextLike(s.Record) && fits(s.Record, len(chars)) {
			text = append(text, s)
		}
	}
	if len(text) == 0 {
		return plan
	}

	best := text[0]
	plan.Mode = ModeWhole
	plan.Assignments = append(plan.Assignments, Assignment{Ref: best.Ref, Value: code, Score: best.score})

	if !LooksLikeVerification(best.Record) {
		return plan
	}
	for _, s := range text[1:] {
		if len(plan.Assignments) > maxMirrors {
			break
		}
		if LooksLikeVerification(s.Record) {
			plan.Assignments = append(plan.Assignments, Assignment{
				Ref:    s.Ref,
				Value:  code,
				Score:  s.score,
				Mirror: true,
			})
		}
	}
	return plan
}

// fits reports whether a declared max length leaves room for n characters.
func fits(r Record, n int) bool {
	return r.MaxLength <= 0 || r.MaxLength >= n
}

// rank filters eligible records and orders them by score, then empty
// fields first, then fields inside the viewport, then document order.
// A field already holding code counts as empty so a repeated fill lands on
// the same field.
func rank(records []Record, code string) []scored {
	var out []scored
	for i, r := range records {
		if Eligible(r) {
			out = append(out, scored{Record: r, score: Score(r), order: i})
		}
	}
	slices.SortStableFunc(out, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		aFree, bFree := a.Empty() || a.Value == code, b.Empty() || b.Value == code
		if aFree != bFree {
			if aFree {
				return -1
			}
			return 1
		}
		if a.InViewport != b.InViewport {
			if a.InViewport {
				return -1
			}
			return 1
		}
		return cmp.Compare(a.order, b.order)
	})
	return out
}

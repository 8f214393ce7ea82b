package dispatch

import (
	"strings"

	"github.com/lattice-mud/lattice/internal/resolve"
	"github.com/lattice-mud/lattice/internal/world"
)

// tokenKind classifies one slot of a verb's pattern.
type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokPrep
	tokDObj
	tokIObj
	tokName
)

type patternToken struct {
	kind    tokenKind
	literal string // set when kind == tokLiteral
	label   string // variable name to capture under: "dobj", "iobj", or the <name> label
}

func parsePatternToken(raw string) patternToken {
	switch raw {
	case "prep":
		return patternToken{kind: tokPrep, label: "prep"}
	case "dobj":
		return patternToken{kind: tokDObj, label: "dobj"}
	case "iobj":
		return patternToken{kind: tokIObj, label: "iobj"}
	}
	if strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">") && len(raw) > 2 {
		return patternToken{kind: tokName, label: raw[1 : len(raw)-1]}
	}
	return patternToken{kind: tokLiteral, literal: raw}
}

// matchSingle reports whether word satisfies tok on its own (used to find
// the boundary of a preceding variable-length capture).
func matchSingle(tok patternToken, word string) bool {
	switch tok.kind {
	case tokLiteral:
		return strings.EqualFold(tok.literal, word)
	case tokPrep:
		return prepositions[strings.ToLower(word)]
	default:
		return false
	}
}

// matchSegment matches a sequence of pattern tokens (literals, "prep",
// and at most one variable slot between any two fixed tokens) against a
// word sequence, capturing variable slots into vars by their label.
func matchSegment(tokens []patternToken, words []string, vars map[string]string) bool {
	if len(tokens) == 0 {
		return len(words) == 0
	}
	cur := tokens[0]
	switch cur.kind {
	case tokLiteral:
		if len(words) == 0 || !strings.EqualFold(cur.literal, words[0]) {
			return false
		}
		return matchSegment(tokens[1:], words[1:], vars)
	case tokPrep:
		if len(words) == 0 || !prepositions[strings.ToLower(words[0])] {
			return false
		}
		vars[cur.label] = words[0]
		return matchSegment(tokens[1:], words[1:], vars)
	case tokDObj, tokIObj, tokName:
		if len(tokens) == 1 {
			if len(words) == 0 {
				return false
			}
			vars[cur.label] = strings.Join(words, " ")
			return true
		}
		next := tokens[1]
		boundary := -1
		for idx := 1; idx < len(words); idx++ {
			if matchSingle(next, words[idx]) {
				boundary = idx
				break
			}
		}
		if boundary == -1 {
			if next.kind == tokDObj || next.kind == tokIObj || next.kind == tokName {
				boundary = 1 // two adjacent variable slots: split greedily at one word
			} else {
				return false
			}
		}
		vars[cur.label] = strings.Join(words[:boundary], " ")
		return matchSegment(tokens[1:], words[boundary:], vars)
	}
	return false
}

// matchPattern matches a verb's full pattern (including its leading
// literal verb token) against rest, the words following the command
// token the caller already consumed. It returns the captured text
// variables, the number of literal tokens matched (for tie-breaking),
// the outcome (OutcomeAmbiguous if a dobj/iobj phrase resolves
// ambiguously), the ambiguous candidate set when that happens, and
// whether the pattern matched at all.
func (d *Dispatcher) matchPattern(patterns []string, rest string, player world.ID) (vars map[string]string, literals int, outcome OutcomeKind, ambiguous []world.Thing, matched bool) {
	if len(patterns) == 0 {
		return nil, 0, OutcomeNoMatch, nil, rest == ""
	}

	var tokens []patternToken
	for _, p := range patterns[1:] { // patterns[0] is the verb token itself, already matched by the caller
		tokens = append(tokens, parsePatternToken(p))
	}
	for _, t := range tokens {
		if t.kind == tokLiteral {
			literals++
		}
	}

	words := []string{}
	if rest != "" {
		words = strings.Fields(rest)
	}

	vars = map[string]string{}
	if !matchSegment(tokens, words, vars) {
		return nil, 0, OutcomeNoMatch, nil, false
	}

	for _, t := range tokens {
		if t.kind != tokDObj && t.kind != tokIObj {
			continue
		}
		phrase := vars[t.label]
		out, one, many := d.resolver.ResolveUnique(phrase, player, "", resolve.TypeFilter{})
		switch out {
		case resolve.OutcomeNone:
			return nil, 0, OutcomeNoMatch, nil, false
		case resolve.OutcomeAmbiguous:
			return nil, 0, OutcomeAmbiguous, many, false
		case resolve.OutcomeOne:
			vars[t.label+"_id"] = string(one.ID)
		}
	}

	return vars, literals, OutcomeHandled, nil, true
}

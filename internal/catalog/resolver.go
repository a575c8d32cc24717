package catalog

import (
	"strings"

	"github.com/tiendi/tiendi/internal/domain"
)

// ResolutionKind classifies a variant resolution outcome.
type ResolutionKind int

const (
	// Resolved means exactly one variant matched.
	Resolved ResolutionKind = iota
	// Ambiguous means several variants matched and the customer must pick.
	Ambiguous
	// NoMatch means no variant matched the query at all.
	NoMatch
	// MissingQuery means the product has variants but no query was given.
	MissingQuery
)

// Resolution is the outcome of resolving a variant query.
type Resolution struct {
	Kind    ResolutionKind
	Variant *domain.Variant
	// Candidates lists the variants to present back to the customer on
	// Ambiguous, NoMatch and MissingQuery outcomes.
	Candidates []domain.Variant
}

// sizeAbbreviations maps shorthand size tokens to canonical size words.
// Customers type "m", "med", "xl" far more often than the full value.
var sizeAbbreviations = map[string]string{
	"s":    "small",
	"sm":   "small",
	"sml":  "small",
	"m":    "medium",
	"md":   "medium",
	"med":  "medium",
	"l":    "large",
	"lg":   "large",
	"lrg":  "large",
	"xs":   "extra small",
	"xl":   "extra large",
	"xxl":  "2xl",
	"xxxl": "3xl",
}

// ResolveVariant fuzzy-matches a free-text variant query against a product's
// available variants. A prior partial selection for the same product is
// merged into the query so the customer can narrow turn by turn
// ("medium" then "red").
//
// The match runs in two passes: an exact pass keeping variants where every
// query token matches some option value, then, only when the exact pass
// finds nothing, a partial pass keeping variants where at least one token
// matches. The exact pass going first avoids two tokens accidentally
// matching option values of different variants.
func ResolveVariant(query string, variants []domain.Variant, partial *domain.PartialVariantSelection) Resolution {
	if len(variants) == 0 {
		return Resolution{Kind: NoMatch}
	}

	tokens := tokenize(query)

	// Fold previously resolved option values into the token set so a
	// follow-up "red" still carries the earlier "medium".
	if partial != nil {
		for _, val := range partial.Options {
			if !containsFold(tokens, val) {
				tokens = append(tokens, strings.ToLower(val))
			}
		}
	}

	if len(tokens) == 0 {
		return Resolution{Kind: MissingQuery, Candidates: variants}
	}

	// Exact pass: every token must match some option value.
	exact := filterVariants(variants, tokens, true)
	if len(exact) == 1 {
		v := exact[0]
		return Resolution{Kind: Resolved, Variant: &v}
	}
	if len(exact) > 1 {
		return Resolution{Kind: Ambiguous, Candidates: exact}
	}

	// Partial pass: at least one token must match.
	part := filterVariants(variants, tokens, false)
	if len(part) == 1 {
		v := part[0]
		return Resolution{Kind: Resolved, Variant: &v}
	}
	if len(part) > 1 {
		return Resolution{Kind: Ambiguous, Candidates: part}
	}

	return Resolution{Kind: NoMatch, Candidates: variants}
}

// filterVariants keeps variants matching the tokens. With every=true all
// tokens must match some option value; otherwise one match suffices.
func filterVariants(variants []domain.Variant, tokens []string, every bool) []domain.Variant {
	var kept []domain.Variant
	for _, v := range variants {
		matched := 0
		for _, tok := range tokens {
			if variantHasValue(v, tok) {
				matched++
			}
		}
		if (every && matched == len(tokens)) || (!every && matched > 0) {
			kept = append(kept, v)
		}
	}
	return kept
}

// variantHasValue reports whether any option value of v matches the token.
func variantHasValue(v domain.Variant, token string) bool {
	for _, opt := range v.Options {
		if matchValue(token, opt.Value) {
			return true
		}
	}
	return false
}

// matchValue fuzzy-matches one query token against one option value:
// exact case-insensitive equality, then the size abbreviation table, then
// substring containment in either direction as a last resort.
func matchValue(token, value string) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	value = strings.ToLower(strings.TrimSpace(value))
	if token == "" || value == "" {
		return false
	}

	if token == value {
		return true
	}

	if full, ok := sizeAbbreviations[token]; ok && full == value {
		return true
	}
	// The customer may also type the full word for an abbreviated catalog
	// value ("medium" for a variant stored as "M").
	if full, ok := sizeAbbreviations[value]; ok && full == token {
		return true
	}

	// Containment needs at least two characters on the contained side,
	// otherwise single-letter sizes match inside unrelated words.
	if len(token) >= 2 && strings.Contains(value, token) {
		return true
	}
	if len(value) >= 2 && strings.Contains(token, value) {
		return true
	}
	return false
}

// tokenize splits the query on whitespace, lowercased, dropping pure
// quantity tokens ("2", "x2") that belong to the line item, not the variant.
func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?")
		if f == "" || isQuantityToken(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func isQuantityToken(s string) bool {
	t := strings.TrimPrefix(s, "x")
	if t == "" {
		return false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

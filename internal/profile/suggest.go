package profile

import (
	"fmt"
	"sort"
	"strings"

	"cswitch/internal/config"
)

const (
	maxSuggestDistance = 2
	maxSuggestions     = 3
)

// NotFoundError is returned when no category contains the requested name.
type NotFoundError struct {
	Name        string
	Suggestions []string
	Listing     string
}

func (e *NotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "profile not found: %q", e.Name)
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, "\n\nDid you mean: %s", strings.Join(e.Suggestions, ", "))
	}
	if e.Listing != "" {
		b.WriteString("\n\n")
		b.WriteString(e.Listing)
	}
	return b.String()
}

func (r *Resolver) notFound(name string) error {
	return &NotFoundError{
		Name:        name,
		Suggestions: Suggest(name, r.KnownNames()),
		Listing:     r.Listing(),
	}
}

// Suggest returns up to three candidates within edit distance 2 of name,
// compared case-insensitively, ordered by distance then name.
func Suggest(name string, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}
	target := strings.ToLower(name)
	var matches []scored
	for _, c := range candidates {
		d := Levenshtein(target, strings.ToLower(c))
		if d <= maxSuggestDistance {
			matches = append(matches, scored{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].dist != matches[j].dist {
			return matches[i].dist < matches[j].dist
		}
		return matches[i].name < matches[j].name
	})
	if len(matches) > maxSuggestions {
		matches = matches[:maxSuggestions]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// Listing formats every category of known profiles for display.
func (r *Resolver) Listing() string {
	var b strings.Builder
	b.WriteString("Available profiles:")
	section := func(title string, names []string) {
		fmt.Fprintf(&b, "\n  %s:", title)
		if len(names) == 0 {
			b.WriteString(" (none)")
			return
		}
		for _, n := range names {
			fmt.Fprintf(&b, "\n    - %s", n)
		}
	}
	section("OAuth providers", config.OAuthProviders)
	section("OAuth variants", r.cfg.VariantNames())
	section("Settings-based", r.cfg.ProfileNames())
	section("Accounts", r.cfg.AccountNames())
	return b.String()
}

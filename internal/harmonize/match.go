package harmonize

import (
	"regexp"
	"strings"
)

var (
	parentheticalRe = regexp.MustCompile(`\(.*?\)`)
	nonAlnumRe      = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// normalizeName folds a country name to its lookup key: lowercase, "&" as
// "and", parentheticals and punctuation stripped, whitespace collapsed,
// leading "the" dropped.
func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "&", "and")
	name = parentheticalRe.ReplaceAllString(name, "")
	name = nonAlnumRe.ReplaceAllString(name, "")
	name = strings.TrimSpace(whitespaceRe.ReplaceAllString(name, " "))
	name = strings.TrimPrefix(name, "the ")
	return name
}

// Matcher maps normalized country names to iso3 codes. Sources that carry
// names instead of codes (Freedom House, RSF, CPI, GSI) resolve through it.
type Matcher struct {
	nameToISO3 map[string]string
}

// NewMatcher indexes the country records over their common, official and
// alternate spellings. The first spelling to claim a key wins.
func NewMatcher(records []countryRecord) *Matcher {
	m := &Matcher{nameToISO3: map[string]string{}}
	for _, c := range records {
		if c.CCA3 == "" {
			continue
		}
		names := []string{c.Name.Common, c.Name.Official}
		names = append(names, c.AltSpellings...)
		for _, n := range names {
			key := normalizeName(n)
			if key == "" {
				continue
			}
			if _, taken := m.nameToISO3[key]; !taken {
				m.nameToISO3[key] = strings.ToUpper(c.CCA3)
			}
		}
	}
	return m
}

// NewMatcherFromMembers builds a matcher from a plain member list, used
// when only un_members.csv is available and no alternate spellings exist.
func NewMatcherFromMembers(members []Member) *Matcher {
	records := make([]countryRecord, len(members))
	for i, m := range members {
		records[i].CCA3 = m.ISO3
		records[i].Name.Common = m.Name
		records[i].Name.Official = m.Official
	}
	return NewMatcher(records)
}

// Match resolves a country name to its iso3 code.
func (m *Matcher) Match(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	iso3, ok := m.nameToISO3[normalizeName(name)]
	return iso3, ok
}

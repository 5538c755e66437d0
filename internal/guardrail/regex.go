package guardrail

import (
	"errors"
	"regexp"
	"unicode/utf8"
)

// MatchGroup names the subexpression that delimits a match when a pattern
// needs surrounding context, such as a word boundary, that must not be
// consumed by the match itself.
const MatchGroup = "match"

var errMatchesEmpty = errors.New("pattern matches empty text")

type RegexMatcher struct {
	re *regexp.Regexp
	// group is the index of MatchGroup, or 0 when the whole match counts.
	group int
}

// NewRegexMatcher compiles pattern with RE2 semantics. Patterns that match
// the empty string are rejected since they would block every input.
func NewRegexMatcher(pattern string) (*RegexMatcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.MatchString("") {
		return nil, errMatchesEmpty
	}
	group := re.SubexpIndex(MatchGroup)
	if group < 0 {
		group = 0
	}
	return &RegexMatcher{re: re, group: group}, nil
}

func (m *RegexMatcher) Match(input string) bool {
	return m.re.FindStringIndex(input) != nil
}

// Count returns the number of non-overlapping matches. With a match group
// the scan resumes where the group ends, so trailing context can serve as
// leading context of the next match.
func (m *RegexMatcher) Count(input string) int {
	if m.group == 0 {
		return len(m.re.FindAllStringIndex(input, -1))
	}

	n, pos := 0, 0
	for pos <= len(input) {
		loc := m.re.FindStringSubmatchIndex(input[pos:])
		if loc == nil {
			break
		}
		n++
		end := pos + loc[2*m.group+1]
		if loc[2*m.group+1] < 0 || end <= pos {
			end = pos + max(loc[1], 1)
		}
		if end > len(input) {
			break
		}
		for end < len(input) && !utf8.RuneStart(input[end]) {
			end++
		}
		pos = end
	}
	return n
}

func (m *RegexMatcher) String() string {
	return m.re.String()
}

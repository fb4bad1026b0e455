package immunity

import (
	"regexp"
	"strings"
)

// Matcher is a single text predicate. Implementations must be safe for
// concurrent use; the engine calls them without additional locking.
type Matcher interface {
	Matches(text string) bool
}

// SpanFinder is optionally implemented by matchers that can locate the
// offending spans. Sanitize redacts exactly those spans; matchers without
// span information cause the whole text to be replaced, the conservative
// fallback.
type SpanFinder interface {
	FindSpans(text string) [][2]int
}

// substringMatcher matches case-insensitively on a literal substring.
type substringMatcher struct {
	needle string // stored lowercase
}

// Substring builds a case-insensitive literal matcher.
func Substring(s string) Matcher {
	return &substringMatcher{needle: strings.ToLower(s)}
}

func (m *substringMatcher) Matches(text string) bool {
	return strings.Contains(strings.ToLower(text), m.needle)
}

func (m *substringMatcher) FindSpans(text string) [][2]int {
	lower := strings.ToLower(text)
	var spans [][2]int
	for start := 0; ; {
		i := strings.Index(lower[start:], m.needle)
		if i < 0 {
			break
		}
		begin := start + i
		end := begin + len(m.needle)
		spans = append(spans, [2]int{begin, end})
		start = end
	}
	return spans
}

func (m *substringMatcher) String() string { return "substring:" + m.needle }

// regexMatcher matches a compiled case-insensitive regular expression.
type regexMatcher struct {
	re *regexp.Regexp
}

// Regex builds a case-insensitive regex matcher. The expression must compile;
// catalog construction treats a bad expression as a programmer error.
func Regex(expr string) Matcher {
	return &regexMatcher{re: regexp.MustCompile("(?i)" + expr)}
}

// RegexChecked is the fallible variant used for user-supplied catalogs.
func RegexChecked(expr string) (Matcher, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, err
	}
	return &regexMatcher{re: re}, nil
}

func (m *regexMatcher) Matches(text string) bool {
	return m.re.MatchString(text)
}

func (m *regexMatcher) FindSpans(text string) [][2]int {
	idx := m.re.FindAllStringIndex(text, -1)
	spans := make([][2]int, 0, len(idx))
	for _, p := range idx {
		spans = append(spans, [2]int{p[0], p[1]})
	}
	return spans
}

func (m *regexMatcher) String() string { return "regex:" + m.re.String() }

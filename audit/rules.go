package audit

import (
	"regexp"
	"strings"

	"github.com/ofircohen205/aura-sub001/intervention"
)

// Rule is one deterministic static pattern the Rule Prefilter applies to
// added lines.
type Rule struct {
	ID       string
	Severity intervention.Severity
	Match    func(file FileDiff, line Line) (bool, string)
}

// DefaultRules returns the built-in rule set: function length, banned
// APIs, and hard-coded credentials.
func DefaultRules() []Rule {
	return []Rule{
		bannedAPIRule(),
		hardcodedCredentialRule(),
		longFunctionRule(),
	}
}

var bannedAPIPattern = regexp.MustCompile(`\b(eval|exec\.Command|os\.Exec|unsafe\.Pointer)\(`)

func bannedAPIRule() Rule {
	return Rule{
		ID:       "banned-api",
		Severity: intervention.SeverityHigh,
		Match: func(file FileDiff, line Line) (bool, string) {
			if m := bannedAPIPattern.FindString(line.Content); m != "" {
				return true, "use of banned API " + strings.TrimSuffix(m, "(")
			}
			return false, ""
		},
	}
}

var credentialPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password)\s*[:=]\s*['"][A-Za-z0-9+/=_-]{8,}['"]`)

func hardcodedCredentialRule() Rule {
	return Rule{
		ID:       "hardcoded-credential",
		Severity: intervention.SeverityCritical,
		Match: func(file FileDiff, line Line) (bool, string) {
			if credentialPattern.MatchString(line.Content) {
				return true, "possible hard-coded credential"
			}
			return false, ""
		},
	}
}

// longFunctionThreshold is the added-line count above which a hunk is
// flagged as long-function, a cheap proxy for "function got too long"
// without parsing the target language's AST. longFunctionRule's own
// Match never fires: a per-line Match cannot see a hunk's length, so
// PrefilterRules makes this check itself.
const longFunctionThreshold = 80

func longFunctionRule() Rule {
	return Rule{
		ID:       "long-function",
		Severity: intervention.SeverityMedium,
		Match: func(file FileDiff, line Line) (bool, string) {
			return false, ""
		},
	}
}

// PrefilterCandidate is one rule match awaiting retrieval-backed
// verdict resolution.
type PrefilterCandidate struct {
	RuleID      string
	FilePath    string
	Line        int
	Severity    intervention.Severity
	Explanation string
	CodeClass   CodeClass
}

// CodeClass distinguishes production code from contexts where the same
// pattern is expected and should weigh toward dismissal.
type CodeClass string

const (
	CodeClassProduction CodeClass = "production"
	CodeClassTest       CodeClass = "test"
	CodeClassConfig     CodeClass = "config"
	CodeClassGenerated  CodeClass = "generated"
)

// PrefilterRules applies rules to each added line of diff and returns
// every match. It also flags each hunk whose added-line count exceeds
// longFunctionThreshold as long-function, the span-length check the
// per-line Match signature can't express.
func PrefilterRules(diff *Diff, rules []Rule) []PrefilterCandidate {
	var candidates []PrefilterCandidate

	for _, file := range diff.Files {
		class := classify(file.Path)
		for _, hunk := range file.Hunks {
			added := 0
			for _, line := range hunk.Lines {
				if line.Kind == LineAdded {
					added++
				}
			}
			if added > longFunctionThreshold {
				candidates = append(candidates, PrefilterCandidate{
					RuleID:      "long-function",
					FilePath:    file.Path,
					Line:        hunk.StartLine,
					Severity:    intervention.SeverityMedium,
					Explanation: "hunk adds a long run of code in one function",
					CodeClass:   class,
				})
			}

			for _, line := range hunk.Lines {
				if line.Kind != LineAdded {
					continue
				}
				for _, rule := range rules {
					if rule.ID == "long-function" {
						continue
					}
					if ok, why := rule.Match(file, line); ok {
						candidates = append(candidates, PrefilterCandidate{
							RuleID:      rule.ID,
							FilePath:    file.Path,
							Line:        line.Number,
							Severity:    rule.Severity,
							Explanation: why,
							CodeClass:   class,
						})
					}
				}
			}
		}
	}

	return candidates
}

func classify(path string) CodeClass {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "_test.") || strings.Contains(lower, "/test/"):
		return CodeClassTest
	case strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") ||
		strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".toml"):
		return CodeClassConfig
	case strings.Contains(lower, "generated") || strings.Contains(lower, ".pb.go"):
		return CodeClassGenerated
	default:
		return CodeClassProduction
	}
}

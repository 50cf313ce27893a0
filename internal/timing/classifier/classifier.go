// Package classifier labels a command by its first token / argv shape, producing the
// command_class used to group Timing Store history by tool family.
package classifier

import "strings"

// Rule matches a command's first token against a known command family.
type Rule struct {
	Class   string
	Matches func(firstToken string, args []string) bool
}

// DefaultRules returns the built-in command-class rules, checked in order; the first
// match wins. Unmatched commands fall back to "shell".
func DefaultRules() []Rule {
	return []Rule{
		{Class: "claude-cli", Matches: func(tok string, _ []string) bool {
			return tok == "claude" || strings.HasSuffix(tok, "/claude")
		}},
		{Class: "python", Matches: func(tok string, _ []string) bool {
			return tok == "python" || tok == "python3" || strings.HasPrefix(tok, "python3.")
		}},
		{Class: "node", Matches: func(tok string, _ []string) bool {
			return tok == "node" || tok == "npx" || tok == "npm"
		}},
		{Class: "git", Matches: func(tok string, _ []string) bool {
			return tok == "git"
		}},
		{Class: "go", Matches: func(tok string, _ []string) bool {
			return tok == "go"
		}},
	}
}

// Classifier labels commands using a fixed rule set.
type Classifier struct {
	rules []Rule
}

// New builds a Classifier from rules. Pass DefaultRules() for the built-in set.
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the command class for argv. An empty argv classifies as "shell".
func (c *Classifier) Classify(argv []string) string {
	if len(argv) == 0 {
		return "shell"
	}

	first := argv[0]
	for _, rule := range c.rules {
		if rule.Matches(first, argv[1:]) {
			return rule.Class
		}
	}
	return "shell"
}

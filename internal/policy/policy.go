// ABOUTME: Pure policy engine evaluating package names against allow/block patterns
// ABOUTME: Patterns are case-insensitive globs where * matches any substring

// Package policy decides whether a package name may be installed or added.
//
// Patterns are glob-style: * matches any substring and matching is
// case-insensitive against the full package name. A name matching any blocked
// pattern is always blocked, regardless of the allow list. When the allow
// list is non-empty the engine runs in allow-list mode and every name must
// match at least one allow pattern; an empty allow list means no allow-list
// restriction is configured, not "deny everything".
//
// Evaluation is a pure function of the configured pattern sets and the input
// string: no I/O, no side effects.
package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Engine holds the compiled pattern sets for the process lifetime.
type Engine struct {
	allowed []compiledPattern
	blocked []compiledPattern
}

type compiledPattern struct {
	raw string
	re  *regexp.Regexp
}

// New compiles the allow and block pattern lists. Blank entries are ignored
// so that comma-separated configuration with trailing separators parses
// cleanly.
func New(allowed, blocked []string) (*Engine, error) {
	e := &Engine{}

	var err error
	if e.allowed, err = compilePatterns(allowed); err != nil {
		return nil, fmt.Errorf("compiling allowed patterns: %w", err)
	}
	if e.blocked, err = compilePatterns(blocked); err != nil {
		return nil, fmt.Errorf("compiling blocked patterns: %w", err)
	}
	return e, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	var compiled []compiledPattern
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := compileGlob(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, compiledPattern{raw: p, re: re})
	}
	return compiled, nil
}

// compileGlob translates a glob pattern into an anchored case-insensitive
// regexp. Everything except * is matched literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("(?i)^")
	for i, part := range strings.Split(pattern, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// Evaluate reports whether the package name is allowed. Block always wins;
// see the package documentation for the two allow-list modes.
func (e *Engine) Evaluate(name string) bool {
	for _, p := range e.blocked {
		if p.re.MatchString(name) {
			return false
		}
	}

	if len(e.allowed) == 0 {
		return true
	}
	for _, p := range e.allowed {
		if p.re.MatchString(name) {
			return true
		}
	}
	return false
}

// FirstBlocked evaluates a list of package specs and returns the normalized
// name of the first one the policy rejects.
func (e *Engine) FirstBlocked(specs []string) (string, bool) {
	for _, spec := range specs {
		name := NormalizeSpec(spec)
		if !e.Evaluate(name) {
			return name, true
		}
	}
	return "", false
}

// NormalizeSpec strips version constraints from a package spec, so that
// "requests==2.31.0" and "requests>=2" both evaluate as "requests".
func NormalizeSpec(spec string) string {
	if i := strings.IndexAny(spec, "=<>!~"); i >= 0 {
		spec = spec[:i]
	}
	return strings.TrimSpace(spec)
}

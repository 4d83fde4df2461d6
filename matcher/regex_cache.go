package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kadledav/streamroute/pkg/cache"
)

// regexCache memoizes compiled patterns across engine rebuilds. Rule sets
// change rarely relative to the rebuild period, so most builds hit the cache
// for every pattern.
var regexCache cache.Cache[*regexp.Regexp]

func init() {
	var err error
	regexCache, err = cache.NewLRU[*regexp.Regexp](256)
	if err != nil {
		// Cache creation only fails on invalid capacity
		panic(fmt.Sprintf("failed to initialize regex cache: %v", err))
	}
}

// CompileRegex returns a cached compiled regex or compiles and caches it.
// Patterns failing the complexity bound are rejected before compilation.
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	if re, found := regexCache.Get(pattern); found {
		return re, nil
	}

	if err := validateRegexComplexity(pattern); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}

	regexCache.Set(pattern, re)
	return re, nil
}

// validateRegexComplexity bounds pattern cost up front. Go's RE2 engine has
// no exponential backtracking, but very long patterns, huge repetition
// counts, and deep nesting still inflate compiled program size and per-match
// cost, so they are rejected at build time.
func validateRegexComplexity(pattern string) error {
	if len(pattern) > 500 {
		return fmt.Errorf("regex pattern too long (max 500 chars): %d chars", len(pattern))
	}

	// Reject excessive repetition counts such as {1000,}
	if strings.Contains(pattern, "{") {
		for i := 1000; i <= 9999; i++ {
			if strings.Contains(pattern, fmt.Sprintf("{%d", i)) {
				return fmt.Errorf("regex pattern contains excessive repetition count (>= 1000)")
			}
		}
	}

	if strings.Count(pattern, "(") > 20 {
		return fmt.Errorf("regex pattern has too many groups (max 20)")
	}

	nestLevel := 0
	maxNest := 0
	for _, ch := range pattern {
		switch ch {
		case '(':
			nestLevel++
			if nestLevel > maxNest {
				maxNest = nestLevel
			}
		case ')':
			nestLevel--
		}
	}
	if maxNest > 5 {
		return fmt.Errorf("regex pattern has excessive nesting depth (max 5 levels)")
	}

	return nil
}

// clearRegexCache removes all cached patterns (used by tests)
func clearRegexCache() {
	regexCache.Clear()
}

// regexCacheSize returns the number of cached patterns (used by tests)
func regexCacheSize() int {
	return regexCache.Size()
}

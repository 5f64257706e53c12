package mirror

import (
	"fmt"
	"regexp"
	"strings"
)

// filter matches names against allow and ignore expressions. A name must
// match an allow expression and no ignore expression.
type filter struct {
	allowed []*regexp.Regexp
	ignored []*regexp.Regexp
}

func newFilter(cfg FilterConfig) (*filter, error) {
	allowed, err := compileRegexes(cfg.Allowed)
	if err != nil {
		return nil, err
	}
	ignored, err := compileRegexes(cfg.Ignored)
	if err != nil {
		return nil, err
	}
	return &filter{allowed: allowed, ignored: ignored}, nil
}

func (f *filter) IsAllowed(name string) bool {
	isAllowed := false
	for _, regex := range f.allowed {
		if regex.MatchString(name) {
			isAllowed = true
			break
		}
	}

	for _, regex := range f.ignored {
		if regex.MatchString(name) {
			isAllowed = false
			break
		}
	}
	return isAllowed
}

func compileRegex(expr string) (*regexp.Regexp, error) {
	if strings.HasPrefix(expr, "/") && strings.HasSuffix(expr, "/") {
		substr := expr[1 : len(expr)-1]
		regex, err := regexp.Compile(substr)
		if err != nil {
			return nil, err
		}

		return regex, nil
	}

	// If this is no regex input (which is marked by the slashes around it) then we escape it so that it's a literal
	regex, err := regexp.Compile("^" + regexp.QuoteMeta(expr) + "$")
	if err != nil {
		return nil, err
	}
	return regex, nil
}

func compileRegexes(expr []string) ([]*regexp.Regexp, error) {
	compiledExpressions := make([]*regexp.Regexp, len(expr))
	for i, exprStr := range expr {
		expr, err := compileRegex(exprStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression string '%v': %w", exprStr, err)
		}
		compiledExpressions[i] = expr
	}

	return compiledExpressions, nil
}

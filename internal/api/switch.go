package api

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Switch sends requests matching a force-real pattern to the real client and
// everything else to the simulated one. A pattern prefixed with "re:" is a
// regular expression, otherwise it matches as a substring of the path.
type Switch struct {
	real     Client
	mock     Client
	literals []string
	regexps  []*regexp.Regexp
}

func NewSwitch(real, mock Client, patterns []string) (*Switch, error) {
	s := &Switch{real: real, mock: mock}
	for _, p := range patterns {
		if expr, ok := strings.CutPrefix(p, "re:"); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid force-real pattern %q: %w", p, err)
			}
			s.regexps = append(s.regexps, re)
			continue
		}
		if p != "" {
			s.literals = append(s.literals, p)
		}
	}
	return s, nil
}

// UsesReal reports whether path is routed to the real client.
func (s *Switch) UsesReal(path string) bool {
	for _, l := range s.literals {
		if strings.Contains(path, l) {
			return true
		}
	}
	for _, re := range s.regexps {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (s *Switch) Request(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	if s.real != nil && s.UsesReal(path) {
		return s.real.Request(ctx, method, path, body)
	}
	return s.mock.Request(ctx, method, path, body)
}

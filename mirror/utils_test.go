package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterIsAllowed(t *testing.T) {
	tt := []struct {
		name    string
		cfg     FilterConfig
		input   string
		allowed bool
	}{
		{
			name:    "literal match",
			cfg:     FilterConfig{Allowed: []string{"orders"}},
			input:   "orders",
			allowed: true,
		},
		{
			name:    "literal is anchored",
			cfg:     FilterConfig{Allowed: []string{"orders"}},
			input:   "orders-v2",
			allowed: false,
		},
		{
			name:    "regex match",
			cfg:     FilterConfig{Allowed: []string{"/orders-.*/"}},
			input:   "orders-v2",
			allowed: true,
		},
		{
			name:    "ignored wins over allowed",
			cfg:     FilterConfig{Allowed: []string{"/.*/"}, Ignored: []string{"/__.*/"}},
			input:   "__consumer_offsets",
			allowed: false,
		},
		{
			name:    "allow everything",
			cfg:     FilterConfig{Allowed: []string{"/.*/"}},
			input:   "anything",
			allowed: true,
		},
		{
			name:    "no allowed expressions",
			cfg:     FilterConfig{},
			input:   "orders",
			allowed: false,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			f, err := newFilter(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, f.IsAllowed(tc.input))
		})
	}
}

func TestCompileRegexInvalid(t *testing.T) {
	_, err := compileRegexes([]string{"/*invalid/"})
	assert.Error(t, err)
}

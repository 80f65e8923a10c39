package compact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeField(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "Acme%20Corp"},
		{"acme.com", "acme%2Ecom"},
		{"a-b_c~d", "a-b_c~d"},
		{"a+b", "a%2Bb"},
		{"100%", "100%25"},
		{"O'Brien (UK)", "O%27Brien%20%28UK%29"},
		{"ü", "%C3%BC"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := escapeField(tt.in)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.Contains(got, "."))

			back, err := unescapeField(got)
			require.NoError(t, err)
			assert.Equal(t, tt.in, back)
		})
	}
}

func TestUnescapeField_PlusIsLiteral(t *testing.T) {
	got, err := unescapeField("a+b")
	require.NoError(t, err)
	assert.Equal(t, "a+b", got)
}

package erb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/rubyastgen/internal/ruby"
)

func TestFallback(t *testing.T) {
	t.Parallel()

	got := Fallback("<% if x %>\n")
	assert.Equal(t, "<<~'ERB_TEMPLATE'\n<% if x %>\nERB_TEMPLATE\n", got)

	got = Fallback("no newline")
	assert.Equal(t, "<<~'ERB_TEMPLATE'\nno newline\nERB_TEMPLATE\n", got)
}

func TestFallback_DelimiterCollision(t *testing.T) {
	t.Parallel()

	raw := "ERB_TEMPLATE\nERB_TEMPLATE_1\n"
	got := Fallback(raw)
	assert.True(t, strings.HasPrefix(got, "<<~'ERB_TEMPLATE_2'\n"), got)
	assert.True(t, strings.HasSuffix(got, "\nERB_TEMPLATE_2\n"), got)
}

func TestFallback_AlwaysParses(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<% if cond %>yes",
		"x<% end %>",
		"#{system('rm -rf /')} and \\ backslashes \"quotes\"",
		"<%= unterminated",
		"ERB_TEMPLATE",
		"  ERB_TEMPLATE\n",
		"<% items.each do |x| %>\n  <%= x %>\n",
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			wrapped := Fallback(raw)
			_, err := ruby.Parse(context.Background(), []byte(wrapped), "fallback.erb")
			require.NoError(t, err, "wrapped source:\n%s", wrapped)
		})
	}
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	out, fellBack, err := Prepare("<%= a %>")
	require.NoError(t, err)
	assert.False(t, fellBack)
	assert.Contains(t, out, "joern__template_out_escape(a)")

	out, fellBack, err = Prepare("<% if a %>")
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.True(t, fellBack)
	assert.Equal(t, Fallback("<% if a %>"), out)
}

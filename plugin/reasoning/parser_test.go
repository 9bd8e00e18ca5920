package reasoning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRejectsOrdinaryContent(t *testing.T) {
	for _, text := range []string{
		"",
		"Hello there, how can I help?",
		"not a match",
		`{reasoning: "unterminated`,
		`reasoning: "missing braces"`,
		`{reasoning: no quotes at all}`,
		`prefix {reasoning: "text"}`,
	} {
		require.Nil(t, Parse(text), "text %q should not parse", text)
	}
}

func TestParseReasoningOnly(t *testing.T) {
	parsed := Parse(`{reasoning: "I should look this up first"}`)
	require.NotNil(t, parsed)
	require.Equal(t, "I should look this up first", parsed.Reasoning)
	require.NotNil(t, parsed.Calls)
	require.Empty(t, parsed.Calls)
}

func TestParseSingleQuotedReasoning(t *testing.T) {
	parsed := Parse(`{reasoning: 'single quotes work too'}`)
	require.NotNil(t, parsed)
	require.Equal(t, "single quotes work too", parsed.Reasoning)
}

func TestParseEmptyFunctionsList(t *testing.T) {
	parsed := Parse(`{reasoning: "nothing to run", functions: []}`)
	require.NotNil(t, parsed)
	require.Equal(t, "nothing to run", parsed.Reasoning)
	require.Empty(t, parsed.Calls)
}

func TestParseOptionalMarkerOnFunctionsKey(t *testing.T) {
	parsed := Parse(`{reasoning: "check the weather", functions?: [get_weather(city: "Oslo")]}`)
	require.NotNil(t, parsed)
	require.Len(t, parsed.Calls, 1)
	require.Equal(t, "get_weather", parsed.Calls[0].Name)
	require.Equal(t, "Oslo", parsed.Calls[0].Args["city"])
}

func TestParseArgumentCoercion(t *testing.T) {
	parsed := Parse(`{reasoning: "mixed args", functions: [f(a: "1", b: [1, 2], c: true, d: 3.5, e: false, g: bareword)]}`)
	require.NotNil(t, parsed)
	require.Len(t, parsed.Calls, 1)

	args := parsed.Calls[0].Args
	require.Equal(t, "1", args["a"])
	require.Equal(t, []any{float64(1), float64(2)}, args["b"])
	require.Equal(t, true, args["c"])
	require.Equal(t, 3.5, args["d"])
	require.Equal(t, false, args["e"])
	require.Equal(t, "bareword", args["g"])
}

func TestParseMultipleCalls(t *testing.T) {
	parsed := Parse(`{reasoning: "two steps", functions: [first(x: 1), second(y: "two")]}`)
	require.NotNil(t, parsed)
	require.Len(t, parsed.Calls, 2)
	require.Equal(t, "first", parsed.Calls[0].Name)
	require.Equal(t, float64(1), parsed.Calls[0].Args["x"])
	require.Equal(t, "second", parsed.Calls[1].Name)
	require.Equal(t, "two", parsed.Calls[1].Args["y"])
}

func TestParseCallWithoutArgs(t *testing.T) {
	parsed := Parse(`{reasoning: "no args", functions: [refresh()]}`)
	require.NotNil(t, parsed)
	require.Len(t, parsed.Calls, 1)
	require.Equal(t, "refresh", parsed.Calls[0].Name)
	require.Empty(t, parsed.Calls[0].Args)
}

func TestParseStringArrayItems(t *testing.T) {
	parsed := Parse(`{reasoning: "tags", functions: [tag(names: ["alpha", "beta"])]}`)
	require.NotNil(t, parsed)
	require.Equal(t, []any{"alpha", "beta"}, parsed.Calls[0].Args["names"])
}

func TestParseSurroundingWhitespace(t *testing.T) {
	parsed := Parse("  \n {reasoning: \"padded\"} \n ")
	require.NotNil(t, parsed)
	require.Equal(t, "padded", parsed.Reasoning)
}

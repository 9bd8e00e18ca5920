// Package reasoning recognizes the embedded control protocol a generation
// backend can emit to redirect a reply into tool execution instead of a chat
// message.
//
// Grammar:
//
//	{reasoning: "<free text>", functions?: [<call>, <call>, ...]}
//	<call> ::= name(arg: value, arg2: value2, ...)
//	value  ::= "<string>" | '<string>' | [item, item, ...] | <number> | true | false | <bareword>
//	item   ::= "<string>" | <number>
//
// The functions key is optional and may carry a literal trailing "?". Parsing
// is regex-based and deliberately permissive: quoted strings have no escape
// handling, so an embedded quote ends the string where the remainder of the
// envelope still matches. Numeric-looking values coerce to float64, true/false
// to bool, and any other bare token stays a string.
package reasoning

import (
	"regexp"
	"strconv"
	"strings"
)

// FunctionCall is one parsed call expression.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Parsed is the structured intent extracted from raw generated text.
type Parsed struct {
	Reasoning string         `json:"reasoning"`
	Calls     []FunctionCall `json:"functionCalls"`
}

var (
	envelopeRe = regexp.MustCompile(`(?s)^\s*\{\s*reasoning\s*:\s*(?:"(.*?)"|'(.*?)')\s*(,\s*functions\s*\??\s*:\s*\[(.*)\]\s*)?\}\s*$`)
	callRe     = regexp.MustCompile(`(\w+)\s*\(([^)]*)\)`)
	argRe      = regexp.MustCompile(`(\w+)\s*:\s*("[^"]*"|'[^']*'|\[[^\]]*\]|[^,)]+)`)
	itemRe     = regexp.MustCompile(`"[^"]*"|'[^']*'|[^,\s]+`)
)

// Parse matches the whole text against the protocol grammar. It returns nil
// when the text does not conform; a non-conforming text is ordinary chat
// content, not an error.
//
// During streaming the same function is invoked against a growing buffer; any
// non-nil result counts as detection even though later increments might have
// extended the envelope. That early exit is best-effort by contract.
func Parse(text string) *Parsed {
	m := envelopeRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	reason := m[1]
	if reason == "" {
		reason = m[2]
	}
	parsed := &Parsed{
		Reasoning: reason,
		Calls:     []FunctionCall{},
	}
	if m[3] == "" {
		// No functions clause at all; same as an empty list.
		return parsed
	}
	for _, call := range callRe.FindAllStringSubmatch(m[4], -1) {
		fc := FunctionCall{Name: call[1], Args: map[string]any{}}
		for _, arg := range argRe.FindAllStringSubmatch(call[2], -1) {
			fc.Args[arg[1]] = coerceValue(arg[2])
		}
		parsed.Calls = append(parsed.Calls, fc)
	}
	return parsed
}

func coerceValue(raw string) any {
	v := strings.TrimSpace(raw)
	switch {
	case len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0]:
		return v[1 : len(v)-1]
	case strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]"):
		return coerceArray(v[1 : len(v)-1])
	case v == "true":
		return true
	case v == "false":
		return false
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func coerceArray(inner string) []any {
	items := []any{}
	for _, item := range itemRe.FindAllString(inner, -1) {
		if len(item) >= 2 && (item[0] == '"' || item[0] == '\'') && item[len(item)-1] == item[0] {
			items = append(items, item[1:len(item)-1])
			continue
		}
		if f, err := strconv.ParseFloat(item, 64); err == nil {
			items = append(items, f)
			continue
		}
		items = append(items, item)
	}
	return items
}

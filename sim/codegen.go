package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect describes the surface syntax of the kernel language the generator
// writes. The engine only needs block structure, comments and conditionals;
// everything else is written by nodes in their templates.
type Dialect struct {
	Name          string
	Keywords      map[string]bool
	IndentUnit    string
	CommentPrefix string
	// IfFormat, ElifFormat and Else open conditional blocks.
	IfFormat   string
	ElifFormat string
	Else       string
	// Pass is the statement emitted into a block that would otherwise be empty.
	Pass string
	// And joins guard conditions.
	And string
	// RangeFormat renders start <= variable < end; verbs are
	// [1] variable, [2] start, [3] end.
	RangeFormat string
	True, False string
}

// Cloquence is the Python-syntax kernel dialect.
var Cloquence = Dialect{
	Name: "cl.oquence",
	Keywords: toSet(
		"and", "as", "assert", "break", "continue", "def", "del", "elif",
		"else", "exec", "for", "if", "in", "is", "not", "or", "pass",
		"return", "while", "True", "False", "None",
	),
	IndentUnit:    "    ",
	CommentPrefix: "#",
	IfFormat:      "if %s:",
	ElifFormat:    "elif %s:",
	Else:          "else:",
	Pass:          "pass",
	And:           " and ",
	RangeFormat:   "%[2]d <= %[1]s < %[3]d",
	True:          "True",
	False:         "False",
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Condition formats the If or Elif opener for cond.
func (d Dialect) Condition(first bool, cond string) string {
	if first {
		return fmt.Sprintf(d.IfFormat, cond)
	}
	return fmt.Sprintf(d.ElifFormat, cond)
}

// Range formats a half-open range guard.
func (d Dialect) Range(variable string, start, end int) string {
	return fmt.Sprintf(d.RangeFormat, variable, start, end)
}

// Generator accumulates kernel source. Lines are written at the current
// indentation depth. Identifiers in emitted templates are replaced by the
// value of the attribute of the same name found by upward lookup from the
// node currently emitting, resolved at the moment of emission.
type Generator struct {
	Dialect Dialect
	// PrintHooks writes a comment naming each code generation hook stage as
	// it is triggered.
	PrintHooks bool

	buf    strings.Builder
	depth  int
	origin []Node
}

// NewGenerator creates an empty generator for the given dialect.
func NewGenerator(d Dialect) *Generator {
	return &Generator{Dialect: d}
}

func (g *Generator) Tab() { g.depth++ }

func (g *Generator) Untab() {
	if g.depth == 0 {
		panic("Generator.Untab: indentation is already at zero")
	}
	g.depth--
}

// Depth returns the current indentation depth.
func (g *Generator) Depth() int { return g.depth }

// Code returns everything emitted so far.
func (g *Generator) Code() string { return g.buf.String() }

// Len returns the number of bytes emitted so far.
func (g *Generator) Len() int { return g.buf.Len() }

// Current returns the node whose attributes resolve identifiers, or nil
// outside of any hook.
func (g *Generator) Current() Node {
	if len(g.origin) == 0 {
		return nil
	}
	return g.origin[len(g.origin)-1]
}

func (g *Generator) within(n Node, fn CGFunc) error {
	g.origin = append(g.origin, n)
	defer func() { g.origin = g.origin[:len(g.origin)-1] }()
	return fn(g)
}

// EmitFrom emits code with n as the substitution origin.
func (g *Generator) EmitFrom(n Node, code string) error {
	return g.within(n, func(g *Generator) error { return g.Emit(code) })
}

// Line appends one line at the current indentation without substitution.
func (g *Generator) Line(text string) {
	g.buf.WriteString(strings.Repeat(g.Dialect.IndentUnit, g.depth))
	g.buf.WriteString(text)
	g.buf.WriteByte('\n')
}

// Comment appends a comment line.
func (g *Generator) Comment(text string) {
	g.Line(g.Dialect.CommentPrefix + " " + text)
}

// Block emits opener, runs body one level deeper and closes the level again.
// A body that emits nothing gets a Pass statement.
func (g *Generator) Block(opener string, body func(g *Generator) error) error {
	if err := g.Emit(opener); err != nil {
		return err
	}
	g.Tab()
	defer g.Untab()
	before := g.Len()
	if err := body(g); err != nil {
		return err
	}
	if g.Len() == before {
		g.Line(g.Dialect.Pass)
	}
	return nil
}

// Emit dedents a template and writes each non-blank line with identifier
// substitution. Leading tabs left after dedenting become extra indentation
// levels. An identifier that resolves to a CodeFunc and sits alone on its
// line is invoked instead of written.
func (g *Generator) Emit(code string) error {
	for _, l := range dedent(code) {
		extra := 0
		for strings.HasPrefix(l, "\t") {
			l = l[1:]
			extra++
		}
		text := strings.TrimRight(l, " \t")
		if text == "" {
			continue
		}
		g.depth += extra
		err := g.emitLine(text)
		g.depth -= extra
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emitLine(text string) error {
	origin := g.Current()
	if origin != nil && isIdent(strings.TrimSpace(text)) && !g.Dialect.Keywords[strings.TrimSpace(text)] {
		if a, ok := Lookup(origin, strings.TrimSpace(text)); ok && a.Set {
			if fn, isCode := a.Value.(CodeFunc); isCode {
				return fn(g)
			}
		}
	}
	out, err := g.substitute(origin, text, map[string]bool{})
	if err != nil {
		return err
	}
	g.Line(out)
	return nil
}

// Substitute returns text with identifiers resolved from n, without emitting.
func (g *Generator) Substitute(n Node, text string) (string, error) {
	return g.substitute(n, text, map[string]bool{})
}

func (g *Generator) substitute(origin Node, text string, expanding map[string]bool) (string, error) {
	if origin == nil {
		return text, nil
	}
	var out strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case g.Dialect.CommentPrefix != "" && strings.HasPrefix(text[i:], g.Dialect.CommentPrefix):
			out.WriteString(text[i:])
			return out.String(), nil
		case c == '"' || c == '\'':
			j := scanString(text, i)
			out.WriteString(text[i:j])
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			ident := text[i:j]
			if g.Dialect.Keywords[ident] || prevNonSpace(text, i) == '.' {
				out.WriteString(ident)
			} else {
				repl, err := g.resolve(origin, ident, expanding)
				if err != nil {
					return "", err
				}
				out.WriteString(repl)
			}
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(text) && (isIdentChar(text[j]) || text[j] == '.') {
				j++
			}
			out.WriteString(text[i:j])
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

func (g *Generator) resolve(origin Node, ident string, expanding map[string]bool) (string, error) {
	if expanding[ident] {
		return ident, nil
	}
	a, ok := Lookup(origin, ident)
	if !ok {
		return ident, nil
	}
	if !a.Set {
		return "", fmt.Errorf("resolving %q from %s (declared on %s): %w",
			ident, origin.Base().Name(), a.Owner.Base().Name(), ErrUnresolved)
	}
	switch v := a.Value.(type) {
	case string:
		expanding[ident] = true
		defer delete(expanding, ident)
		return g.substitute(origin, v, expanding)
	case Expr:
		return v.CGExpression(), nil
	case CodeFunc:
		return "", fmt.Errorf("code function %q must appear on a line of its own", ident)
	case bool:
		if v {
			return g.Dialect.True, nil
		}
		return g.Dialect.False, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case float32:
		return formatFloat(float64(v), 32), nil
	case float64:
		return formatFloat(v, 64), nil
	case nil:
		return "", fmt.Errorf("resolving %q from %s: nil value: %w", ident, origin.Base().Name(), ErrUnresolved)
	default:
		return "", fmt.Errorf("resolving %q from %s: cannot substitute value of type %T", ident, origin.Base().Name(), v)
	}
}

// formatFloat renders v as a literal that always reads back as a float.
func formatFloat(v float64, bits int) string {
	s := strconv.FormatFloat(v, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eEIN") {
		s += ".0"
	}
	return s
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}

func prevNonSpace(text string, i int) byte {
	for j := i - 1; j >= 0; j-- {
		if text[j] != ' ' && text[j] != '\t' {
			return text[j]
		}
	}
	return 0
}

// scanString returns the index just past the string literal starting at i.
// An unterminated literal runs to the end of the line.
func scanString(text string, i int) int {
	q := text[i]
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(text)
}

// dedent splits a template into lines, drops leading and trailing blank
// lines and removes the whitespace prefix shared by all non-blank lines.
func dedent(code string) []string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lead := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = lead, false
			continue
		}
		for !strings.HasPrefix(lead, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return lines
}

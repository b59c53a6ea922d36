package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"go/scanner"
	"go/token"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

const calculateTimeout = 5 * time.Second

type mathFunc struct {
	name  string
	arity int
}

// Functions and constants an expression may use, mapped to package math.
var (
	calcFuncs = map[string]mathFunc{
		"sqrt": {"Sqrt", 1}, "cbrt": {"Cbrt", 1}, "abs": {"Abs", 1},
		"exp": {"Exp", 1}, "expm1": {"Expm1", 1},
		"log": {"Log", 1}, "log10": {"Log10", 1}, "log2": {"Log2", 1}, "log1p": {"Log1p", 1},
		"sin": {"Sin", 1}, "cos": {"Cos", 1}, "tan": {"Tan", 1},
		"asin": {"Asin", 1}, "acos": {"Acos", 1}, "atan": {"Atan", 1},
		"arcsin": {"Asin", 1}, "arccos": {"Acos", 1}, "arctan": {"Atan", 1},
		"sinh": {"Sinh", 1}, "cosh": {"Cosh", 1}, "tanh": {"Tanh", 1},
		"floor": {"Floor", 1}, "ceil": {"Ceil", 1}, "round": {"Round", 1}, "trunc": {"Trunc", 1},
		"atan2": {"Atan2", 2}, "arctan2": {"Atan2", 2},
		"pow": {"Pow", 2}, "hypot": {"Hypot", 2}, "mod": {"Mod", 2},
		"min": {"Min", 2}, "max": {"Max", 2},
	}
	calcConsts = map[string]string{
		"pi": "math.Pi",
		"e":  "math.E",
	}
)

// CalculateTool evaluates arithmetic expressions.
type CalculateTool struct{}

func NewCalculateTool() *CalculateTool {
	return &CalculateTool{}
}

func (t *CalculateTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name: CalculateToolName,
		Description: "Evaluates a mathematical expression safely. Supports numbers, parentheses, " +
			"+ - * / % and ** (or ^), functions such as sqrt, log, sin, pow, min, max, " +
			"the constants pi and e, and a single comparison (< <= > >= == !=) which " +
			"yields True or False. Use it instead of doing arithmetic yourself.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"expression": stringProp("The expression to evaluate, e.g. (2 + 3) * sqrt(16)"),
			},
			"required":             []string{"expression"},
			"additionalProperties": false,
		},
	}
}

func (t *CalculateTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Expression string `json:"expression"`
	}
	if err := parseArgs(CalculateToolName, args, &payload); err != nil {
		return "", err
	}
	result, err := Evaluate(ctx, payload.Expression)
	if err != nil {
		return fmt.Sprintf("Error: Invalid expression - %v", err), nil
	}
	return result, nil
}

// Evaluate computes expr and formats the result. Integral results print
// without a fractional part.
func Evaluate(ctx context.Context, expr string) (string, error) {
	src, err := translateExpr(expr)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, calculateTimeout)
	defer cancel()

	// The interpreter only sees package math.
	i := interp.New(interp.Options{})
	if err := i.Use(interp.Exports{"math/math": stdlib.Symbols["math/math"]}); err != nil {
		return "", fmt.Errorf("load math: %w", err)
	}
	if _, err := i.EvalWithContext(ctx, `import "math"`); err != nil {
		return "", fmt.Errorf("import math: %w", err)
	}
	v, err := i.EvalWithContext(ctx, src)
	if err != nil {
		return "", err
	}
	switch res := v.Interface().(type) {
	case float64:
		return formatNumber(res), nil
	case bool:
		if res {
			return "True", nil
		}
		return "False", nil
	}
	return "", fmt.Errorf("expression did not produce a number")
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

type calcToken struct {
	off int
	tok token.Token
	lit string
}

// exprParser translates a calculator expression into a Go expression over
// float64 values. Precedence, lowest first: one optional comparison, + -,
// * / %, unary sign, then right-associative ** (or ^).
type exprParser struct {
	toks []calcToken
	pos  int
}

func translateExpr(expr string) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", fmt.Errorf("empty expression")
	}
	toks, err := tokenize(expr)
	if err != nil {
		return "", err
	}
	p := &exprParser{toks: toks}
	out, err := p.parseComparison()
	if err != nil {
		return "", err
	}
	if p.pos < len(p.toks) {
		return "", fmt.Errorf("unexpected %q at offset %d", p.peek().text(), p.toks[p.pos].off)
	}
	return out, nil
}

func tokenize(expr string) ([]calcToken, error) {
	fset := token.NewFileSet()
	file := fset.AddFile("expr", fset.Base(), len(expr))

	var scanErr error
	var s scanner.Scanner
	s.Init(file, []byte(expr), func(pos token.Position, msg string) {
		if scanErr == nil {
			scanErr = fmt.Errorf("%s at offset %d", msg, pos.Offset)
		}
	}, scanner.ScanComments)

	var toks []calcToken
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		// Automatic semicolon at the end of the input.
		if tok == token.SEMICOLON && lit == "\n" {
			continue
		}
		// "//" and "/*" would otherwise hide the rest of the expression.
		if tok == token.COMMENT {
			return nil, fmt.Errorf("unexpected %q at offset %d", lit[:2], file.Offset(pos))
		}
		// Fold "**" into one power token.
		if tok == token.MUL && len(toks) > 0 {
			prev := &toks[len(toks)-1]
			if prev.tok == token.MUL && prev.off+1 == file.Offset(pos) {
				prev.tok = token.XOR
				continue
			}
		}
		toks = append(toks, calcToken{off: file.Offset(pos), tok: tok, lit: lit})
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return toks, nil
}

func (t calcToken) text() string {
	if t.lit != "" {
		return t.lit
	}
	if t.tok == token.XOR {
		return "**"
	}
	return t.tok.String()
}

func (p *exprParser) peek() calcToken {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return calcToken{tok: token.EOF}
}

func (p *exprParser) next() calcToken {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *exprParser) expect(tok token.Token) error {
	if t := p.next(); t.tok != tok {
		if t.tok == token.EOF {
			return fmt.Errorf("expected %s, got end of expression", tok)
		}
		return fmt.Errorf("expected %s, got %q", tok, t.text())
	}
	return nil
}

var comparisonOps = map[token.Token]bool{
	token.LSS: true, token.LEQ: true, token.GTR: true,
	token.GEQ: true, token.EQL: true, token.NEQ: true,
}

// parseComparison yields a float64 expression, or a bool one when the sum is
// compared with another. Comparisons do not chain.
func (p *exprParser) parseComparison() (string, error) {
	left, err := p.parseSum()
	if err != nil {
		return "", err
	}
	op := p.peek().tok
	if !comparisonOps[op] {
		return "float64(" + left + ")", nil
	}
	p.next()
	right, err := p.parseSum()
	if err != nil {
		return "", err
	}
	if next := p.peek(); comparisonOps[next.tok] {
		return "", fmt.Errorf("chained comparison %q at offset %d", next.text(), next.off)
	}
	return "(" + left + " " + op.String() + " " + right + ")", nil
}

func (p *exprParser) parseSum() (string, error) {
	left, err := p.parseProduct()
	if err != nil {
		return "", err
	}
	for {
		op := p.peek().tok
		if op != token.ADD && op != token.SUB {
			return left, nil
		}
		p.next()
		right, err := p.parseProduct()
		if err != nil {
			return "", err
		}
		left = "(" + left + " " + op.String() + " " + right + ")"
	}
}

func (p *exprParser) parseProduct() (string, error) {
	left, err := p.parseUnary()
	if err != nil {
		return "", err
	}
	for {
		op := p.peek().tok
		if op != token.MUL && op != token.QUO && op != token.REM {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		if op == token.REM {
			left = "math.Mod(" + left + ", " + right + ")"
		} else {
			left = "(" + left + " " + op.String() + " " + right + ")"
		}
	}
}

func (p *exprParser) parseUnary() (string, error) {
	switch p.peek().tok {
	case token.SUB:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		return "(-" + operand + ")", nil
	case token.ADD:
		p.next()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (string, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return "", err
	}
	if p.peek().tok != token.XOR {
		return base, nil
	}
	p.next()
	exp, err := p.parseUnary()
	if err != nil {
		return "", err
	}
	return "math.Pow(" + base + ", " + exp + ")", nil
}

func (p *exprParser) parsePrimary() (string, error) {
	t := p.next()
	switch t.tok {
	case token.INT, token.FLOAT:
		return "float64(" + t.lit + ")", nil
	case token.LPAREN:
		inner, err := p.parseSum()
		if err != nil {
			return "", err
		}
		if err := p.expect(token.RPAREN); err != nil {
			return "", err
		}
		return inner, nil
	case token.IDENT:
		name := strings.ToLower(t.lit)
		if p.peek().tok != token.LPAREN {
			if c, ok := calcConsts[name]; ok {
				return c, nil
			}
			return "", fmt.Errorf("unknown name %q", t.lit)
		}
		fn, ok := calcFuncs[name]
		if !ok {
			return "", fmt.Errorf("unknown function %q", t.lit)
		}
		p.next()
		args, err := p.parseArgs()
		if err != nil {
			return "", err
		}
		if len(args) != fn.arity {
			return "", fmt.Errorf("%s takes %d argument(s), got %d", name, fn.arity, len(args))
		}
		return "math." + fn.name + "(" + strings.Join(args, ", ") + ")", nil
	case token.EOF:
		return "", fmt.Errorf("unexpected end of expression")
	}
	return "", fmt.Errorf("unexpected %q", t.text())
}

func (p *exprParser) parseArgs() ([]string, error) {
	var args []string
	if p.peek().tok == token.RPAREN {
		p.next()
		return args, nil
	}
	for {
		arg, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		switch t := p.next(); t.tok {
		case token.COMMA:
			continue
		case token.RPAREN:
			return args, nil
		default:
			return nil, fmt.Errorf("expected , or ) in argument list, got %q", t.text())
		}
	}
}

package skill

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// mathArgs is the argument shape of the builtin evaluate_math skill.
type mathArgs struct {
	Expression string `json:"expression" jsonschema:"required,description=Arithmetic expression using + - * / % ** and parentheses"`
}

// RegisterBuiltins registers the skills every deployment gets by default.
// Currently that is evaluate_math, a safe arithmetic evaluator.
func RegisterBuiltins(r *Registry) error {
	return RegisterTyped(r, "evaluate_math",
		"Safely evaluate arithmetic expressions containing +, -, *, /, %, and **.",
		func(_ context.Context, args mathArgs) (string, error) {
			value, err := evalExpression(args.Expression)
			if err != nil {
				return "", err
			}
			return formatNumber(value), nil
		})
}

// formatNumber renders a result without float artifacts: 0.45 - 0.25 prints
// as 0.2, not 0.19999999999999998.
func formatNumber(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Sprintf("%v", v)
	}
	rounded := math.Round(v*1e12) / 1e12
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// ============================================================================
// EXPRESSION EVALUATOR
// A tiny recursive-descent parser over + - * / % ** with parentheses and
// unary minus. No identifiers, no calls; anything else is rejected.
// ============================================================================

type exprParser struct {
	input []rune
	pos   int
}

func evalExpression(expression string) (float64, error) {
	p := &exprParser{input: []rune(strings.TrimSpace(expression))}
	if len(p.input) == 0 {
		return 0, fmt.Errorf("empty expression")
	}

	value, err := p.parseSum()
	if err != nil {
		return 0, err
	}

	p.skipSpaces()
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

func (p *exprParser) parseSum() (float64, error) {
	left, err := p.parseProduct()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		switch {
		case p.peek() == '+':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left += right
		case p.peek() == '-':
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseProduct() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		switch p.peek() {
		case '*':
			// "**" is power, handled below us; only consume a single '*'.
			if p.peekAt(1) == '*' {
				return left, nil
			}
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case '%':
			p.pos++
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = math.Mod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	p.skipSpaces()
	if p.peek() == '*' && p.peekAt(1) == '*' {
		p.pos += 2
		// Right-associative: 2**3**2 is 2**(3**2).
		exponent, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exponent), nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	switch p.peek() {
	case '+':
		p.pos++
		return p.parseUnary()
	case '-':
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -value, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpaces()

	if p.peek() == '(' {
		p.pos++
		value, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		if p.pos < len(p.input) {
			return 0, fmt.Errorf("unsupported expression at position %d", p.pos)
		}
		return 0, fmt.Errorf("unexpected end of expression")
	}

	value, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return value, nil
}

func (p *exprParser) peek() rune {
	return p.peekAt(0)
}

func (p *exprParser) peekAt(offset int) rune {
	if p.pos+offset >= len(p.input) {
		return 0
	}
	return p.input[p.pos+offset]
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

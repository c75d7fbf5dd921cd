package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	errNoExpression      = "Please provide a mathematical expression to calculate."
	errInvalidExpression = "Invalid mathematical expression or unsupported operation."
)

var (
	calcPrefix     = regexp.MustCompile(`(?i)^(calculate|compute|eval|evaluate)\s+`)
	calcWhitespace = regexp.MustCompile(`\s+`)
	calcRewrites   = []struct {
		re   *regexp.Regexp
		tmpl string
	}{
		{regexp.MustCompile(`sqrt\(([^)]+)\)`), "pow($1,0.5)"},
		{regexp.MustCompile(`square\(([^)]+)\)`), "pow($1,2)"},
		{regexp.MustCompile(`cube\(([^)]+)\)`), "pow($1,3)"},
	}
)

// CalculatorTool 安全的算术表达式求值
type CalculatorTool struct{}

// NewCalculatorTool 创建计算器工具
func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (c *CalculatorTool) Name() string     { return "calculator" }
func (c *CalculatorTool) Category() string { return CategoryMath }

func (c *CalculatorTool) Description() string {
	return "Performs mathematical calculations. Supports basic arithmetic operations " +
		"(+, -, *, /, **, %), parentheses, and functions like abs, round, max, min, sum. " +
		"Example: 'calculate 2 + 3 * 4' or 'sqrt(16) + 2'"
}

func (c *CalculatorTool) UsageExamples() []string {
	return []string{
		"2 + 3 * 4",
		"sqrt(16) + 2",
		"(10 + 5) / 3",
		"2 ** 3",
		"abs(-15)",
		"round(3.14159, 2)",
		"max(10, 20, 5)",
	}
}

type calculatorInput struct {
	Input string `json:"input" jsonschema:"description=Mathematical expression to calculate"`
}

func (c *CalculatorTool) ParameterSchema() map[string]any {
	return GenerateSchema[calculatorInput]()
}

// Validate 只允许数字、运算符、括号、逗号和字母
func (c *CalculatorTool) Validate(input string) bool {
	if !NonEmpty(input) {
		return false
	}
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9', r < 128 && unicode.IsLetter(r), unicode.IsSpace(r):
		case strings.ContainsRune("+-*/().,%^×÷", r):
		default:
			return false
		}
	}
	return true
}

func (c *CalculatorTool) Execute(ctx context.Context, input string, _ map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expr := NormalizeExpression(input)
	if expr == "" {
		return Fail(errNoExpression), nil
	}

	value, err := Evaluate(expr)
	if err != nil {
		return Fail(errInvalidExpression), nil
	}

	formatted := FormatNumber(value)
	return Succeed(fmt.Sprintf("%s = %s", expr, formatted), map[string]any{
		"expression":       expr,
		"result":           value,
		"formatted_result": formatted,
	}), nil
}

// NormalizeExpression 去掉命令前缀与空白，并改写常见数学记号
func NormalizeExpression(input string) string {
	expr := calcPrefix.ReplaceAllString(strings.TrimSpace(input), "")
	expr = calcWhitespace.ReplaceAllString(expr, "")
	expr = strings.NewReplacer("×", "*", "÷", "/", "^", "**").Replace(expr)
	expr = replaceTimesX(expr)
	for _, rw := range calcRewrites {
		expr = rw.re.ReplaceAllString(expr, rw.tmpl)
	}
	return expr
}

// replaceTimesX 把位于数字或括号之间的 x 视为乘号，函数名中的 x（如 max）保持不变
func replaceTimesX(expr string) string {
	b := []byte(expr)
	for i := 1; i < len(b)-1; i++ {
		if b[i] != 'x' && b[i] != 'X' {
			continue
		}
		prev, next := b[i-1], b[i+1]
		if (isDigit(prev) || prev == ')' || prev == '.') && (isDigit(next) || next == '(' || next == '.') {
			b[i] = '*'
		}
	}
	return string(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// FormatNumber 整数值按整数输出，其余保留 10 位有效数字
func FormatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// ====== 表达式求值 ======

var errSyntax = errors.New("syntax error")

var calcConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

// Evaluate 计算表达式。支持 + - * / % **、一元正负号、括号、
// 常量 pi e 和函数 abs round max min sum pow sqrt。
func Evaluate(expr string) (float64, error) {
	p := &exprParser{src: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.src) {
		return 0, fmt.Errorf("%w: unexpected %q at %d", errSyntax, p.src[p.pos:], p.pos)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("result is not a finite number")
	}
	return v, nil
}

type exprParser struct {
	src string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *exprParser) peek(s string) bool {
	p.skipSpace()
	return strings.HasPrefix(p.src[p.pos:], s)
}

func (p *exprParser) consume(s string) bool {
	if p.peek(s) {
		p.pos += len(s)
		return true
	}
	return false
}

// expr := term (('+'|'-') term)*
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch {
		case p.consume("+"):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.consume("-"):
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// term := unary (('*'|'/'|'%') unary)*
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		var op byte
		switch {
		case p.peek("**"):
			return left, nil
		case p.consume("*"):
			op = '*'
		case p.consume("/"):
			op = '/'
		case p.consume("%"):
			op = '%'
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, errors.New("division by zero")
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, errors.New("modulo by zero")
			}
			// 取模结果与除数同号
			left = left - right*math.Floor(left/right)
		}
	}
}

// unary := ('+'|'-') unary | power
func (p *exprParser) parseUnary() (float64, error) {
	if p.consume("-") {
		v, err := p.parseUnary()
		return -v, err
	}
	if p.consume("+") {
		return p.parseUnary()
	}
	return p.parsePower()
}

// power := primary ('**' unary)?，右结合
func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	if p.consume("**") {
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0, fmt.Errorf("%w: unexpected end of expression", errSyntax)
	}

	c := p.src[p.pos]
	switch {
	case c == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if !p.consume(")") {
			return 0, fmt.Errorf("%w: missing closing parenthesis", errSyntax)
		}
		return v, nil
	case isDigit(c) || c == '.':
		return p.parseNumber()
	case unicode.IsLetter(rune(c)) || c == '_':
		return p.parseName()
	}
	return 0, fmt.Errorf("%w: unexpected %q", errSyntax, c)
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) && (isDigit(p.src[p.pos]) || p.src[p.pos] == '.') {
		p.pos++
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		j := p.pos + 1
		if j < len(p.src) && (p.src[j] == '+' || p.src[j] == '-') {
			j++
		}
		if j < len(p.src) && isDigit(p.src[j]) {
			p.pos = j
			for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
				p.pos++
			}
		}
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", errSyntax, p.src[start:p.pos])
	}
	return v, nil
}

func (p *exprParser) parseName() (float64, error) {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if !(unicode.IsLetter(rune(c)) || isDigit(c) || c == '_') {
			break
		}
		p.pos++
	}
	name := p.src[start:p.pos]

	if !p.consume("(") {
		if v, ok := calcConstants[name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown name %q", name)
	}

	var args []float64
	if !p.consume(")") {
		for {
			v, err := p.parseExpr()
			if err != nil {
				return 0, err
			}
			args = append(args, v)
			if p.consume(")") {
				break
			}
			if !p.consume(",") {
				return 0, fmt.Errorf("%w: expected ',' or ')'", errSyntax)
			}
		}
	}
	return callFunction(name, args)
}

func callFunction(name string, args []float64) (float64, error) {
	arity := func(min, max int) error {
		if len(args) < min || (max >= 0 && len(args) > max) {
			return fmt.Errorf("%s: wrong number of arguments", name)
		}
		return nil
	}

	switch name {
	case "abs":
		if err := arity(1, 1); err != nil {
			return 0, err
		}
		return math.Abs(args[0]), nil
	case "round":
		if err := arity(1, 2); err != nil {
			return 0, err
		}
		if len(args) == 1 {
			return math.RoundToEven(args[0]), nil
		}
		scale := math.Pow(10, math.Trunc(args[1]))
		return math.RoundToEven(args[0]*scale) / scale, nil
	case "max", "min":
		if err := arity(1, -1); err != nil {
			return 0, err
		}
		v := args[0]
		for _, a := range args[1:] {
			if (name == "max" && a > v) || (name == "min" && a < v) {
				v = a
			}
		}
		return v, nil
	case "sum":
		total := 0.0
		for _, a := range args {
			total += a
		}
		return total, nil
	case "pow":
		if err := arity(2, 2); err != nil {
			return 0, err
		}
		return math.Pow(args[0], args[1]), nil
	case "sqrt":
		if err := arity(1, 1); err != nil {
			return 0, err
		}
		if args[0] < 0 {
			return 0, errors.New("sqrt of negative number")
		}
		return math.Sqrt(args[0]), nil
	}
	return 0, fmt.Errorf("unsupported function %q", name)
}

package simplimath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// TokenType identifies a lexical token in an expression.
type TokenType int

const (
	TOKEN_EOF TokenType = iota
	TOKEN_ILLEGAL
	TOKEN_NUMBER
	TOKEN_STRING
	TOKEN_IDENTIFIER
	TOKEN_PLUS
	TOKEN_MINUS
	TOKEN_MULTIPLY
	TOKEN_DIVIDE
	TOKEN_FLOORDIV
	TOKEN_POWER
	TOKEN_MOD
	TOKEN_LPAREN
	TOKEN_RPAREN
	TOKEN_COMMA
	TOKEN_EQ
	TOKEN_NE
	TOKEN_LT
	TOKEN_LE
	TOKEN_GT
	TOKEN_GE
	TOKEN_AND
	TOKEN_OR
	TOKEN_NOT
)

// ExprToken is a single lexical token.
type ExprToken struct {
	Type  TokenType
	Value string // source text (decoded text for strings)
}

// ExpressionLexer tokenizes SimpliMath expressions.
type ExpressionLexer struct {
	input []rune
	pos   int
	char  rune
	err   error
}

// NewExpressionLexer creates a lexer over input.
func NewExpressionLexer(input string) *ExpressionLexer {
	l := &ExpressionLexer{input: []rune(input)}
	l.readChar()
	return l
}

func (l *ExpressionLexer) readChar() {
	if l.pos >= len(l.input) {
		l.char = 0
	} else {
		l.char = l.input[l.pos]
	}
	l.pos++
}

func (l *ExpressionLexer) peekChar() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *ExpressionLexer) skipWhitespace() {
	for l.char == ' ' || l.char == '\t' || l.char == '\r' || l.char == '\n' {
		l.readChar()
	}
}

// readString reads a quoted literal. The opening quote is the current char.
func (l *ExpressionLexer) readString() (string, error) {
	quote := l.char
	l.readChar()
	var sb strings.Builder
	for l.char != quote {
		if l.char == 0 && l.pos > len(l.input) {
			return "", errors.New("unterminated string literal")
		}
		if l.char == '\\' {
			l.readChar()
			switch l.char {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case 'r':
				sb.WriteRune('\r')
			case '\\', '\'', '"':
				sb.WriteRune(l.char)
			case 0:
				return "", errors.New("unterminated string literal")
			default:
				sb.WriteRune('\\')
				sb.WriteRune(l.char)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.char)
		l.readChar()
	}
	l.readChar()
	return sb.String(), nil
}

// readNumber reads an integer or float literal (fraction and exponent optional).
func (l *ExpressionLexer) readNumber() string {
	start := l.pos - 1
	for isDigit(l.char) {
		l.readChar()
	}
	if l.char == '.' {
		l.readChar()
		for isDigit(l.char) {
			l.readChar()
		}
	}
	if l.char == 'e' || l.char == 'E' {
		next := l.peekChar()
		if isDigit(next) || ((next == '+' || next == '-') && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
			l.readChar()
			if l.char == '+' || l.char == '-' {
				l.readChar()
			}
			for isDigit(l.char) {
				l.readChar()
			}
		}
	}
	return string(l.input[start : l.pos-1])
}

func (l *ExpressionLexer) readIdentifier() string {
	start := l.pos - 1
	for isIdentPart(l.char) {
		l.readChar()
	}
	return string(l.input[start : l.pos-1])
}

// NextToken returns the next token. Lexing errors yield TOKEN_ILLEGAL.
func (l *ExpressionLexer) NextToken() ExprToken {
	l.skipWhitespace()

	switch l.char {
	case 0:
		if l.pos > len(l.input) {
			return ExprToken{Type: TOKEN_EOF}
		}
	case '+':
		l.readChar()
		return ExprToken{Type: TOKEN_PLUS, Value: "+"}
	case '-':
		l.readChar()
		return ExprToken{Type: TOKEN_MINUS, Value: "-"}
	case '*':
		l.readChar()
		if l.char == '*' {
			l.readChar()
			return ExprToken{Type: TOKEN_POWER, Value: "**"}
		}
		return ExprToken{Type: TOKEN_MULTIPLY, Value: "*"}
	case '/':
		l.readChar()
		if l.char == '/' {
			l.readChar()
			return ExprToken{Type: TOKEN_FLOORDIV, Value: "//"}
		}
		return ExprToken{Type: TOKEN_DIVIDE, Value: "/"}
	case '%':
		l.readChar()
		return ExprToken{Type: TOKEN_MOD, Value: "%"}
	case '(':
		l.readChar()
		return ExprToken{Type: TOKEN_LPAREN, Value: "("}
	case ')':
		l.readChar()
		return ExprToken{Type: TOKEN_RPAREN, Value: ")"}
	case ',':
		l.readChar()
		return ExprToken{Type: TOKEN_COMMA, Value: ","}
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return ExprToken{Type: TOKEN_EQ, Value: "=="}
		}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return ExprToken{Type: TOKEN_NE, Value: "!="}
		}
	case '<':
		l.readChar()
		if l.char == '=' {
			l.readChar()
			return ExprToken{Type: TOKEN_LE, Value: "<="}
		}
		return ExprToken{Type: TOKEN_LT, Value: "<"}
	case '>':
		l.readChar()
		if l.char == '=' {
			l.readChar()
			return ExprToken{Type: TOKEN_GE, Value: ">="}
		}
		return ExprToken{Type: TOKEN_GT, Value: ">"}
	case '"', '\'':
		str, err := l.readString()
		if err != nil {
			l.err = err
			return ExprToken{Type: TOKEN_ILLEGAL, Value: err.Error()}
		}
		return ExprToken{Type: TOKEN_STRING, Value: str}
	default:
		if isDigit(l.char) || (l.char == '.' && isDigit(l.peekChar())) {
			return ExprToken{Type: TOKEN_NUMBER, Value: l.readNumber()}
		}
		if isIdentStart(l.char) {
			ident := l.readIdentifier()
			switch ident {
			case "and":
				return ExprToken{Type: TOKEN_AND, Value: ident}
			case "or":
				return ExprToken{Type: TOKEN_OR, Value: ident}
			case "not":
				return ExprToken{Type: TOKEN_NOT, Value: ident}
			}
			return ExprToken{Type: TOKEN_IDENTIFIER, Value: ident}
		}
	}

	bad := string(l.char)
	l.readChar()
	l.err = fmt.Errorf("unexpected character %q", bad)
	return ExprToken{Type: TOKEN_ILLEGAL, Value: bad}
}

// Expr is a node of the expression tree.
type Expr interface {
	exprNode()
}

// Literal is a number or string constant.
type Literal struct {
	Value Value
}

// Variable references a store entry.
type Variable struct {
	Name string
}

// BinaryOp is one of + - * /.
type BinaryOp struct {
	Op    byte
	Left  Expr
	Right Expr
}

// Unsupported records a construct the language parses but refuses to
// evaluate: unary operators, comparisons, calls, boolean operators and
// the %, ** and // operators.
type Unsupported struct {
	Construct string
	Operands  []Expr
}

func (*Literal) exprNode()     {}
func (*Variable) exprNode()    {}
func (*BinaryOp) exprNode()    {}
func (*Unsupported) exprNode() {}

// ExpressionParser is a recursive-descent parser producing an Expr tree.
type ExpressionParser struct {
	lexer   *ExpressionLexer
	current ExprToken
	peek    ExprToken
}

// NewExpressionParser creates a parser over input.
func NewExpressionParser(input string) *ExpressionParser {
	p := &ExpressionParser{lexer: NewExpressionLexer(input)}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *ExpressionParser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *ExpressionParser) currentTokenIs(t TokenType) bool {
	return p.current.Type == t
}

// ParseExpression parses input into a tree. The whole input must be consumed.
func ParseExpression(input string) (Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errors.New("empty expression")
	}
	p := NewExpressionParser(input)
	expr, err := p.parseOrExpression()
	if err != nil {
		return nil, err
	}
	if !p.currentTokenIs(TOKEN_EOF) {
		return nil, fmt.Errorf("unexpected token %q", p.current.Value)
	}
	return expr, nil
}

func (p *ExpressionParser) parseOrExpression() (Expr, error) {
	left, err := p.parseAndExpression()
	if err != nil {
		return nil, err
	}
	for p.currentTokenIs(TOKEN_OR) {
		p.nextToken()
		right, err := p.parseAndExpression()
		if err != nil {
			return nil, err
		}
		left = &Unsupported{Construct: "boolean operator 'or'", Operands: []Expr{left, right}}
	}
	return left, nil
}

func (p *ExpressionParser) parseAndExpression() (Expr, error) {
	left, err := p.parseNotExpression()
	if err != nil {
		return nil, err
	}
	for p.currentTokenIs(TOKEN_AND) {
		p.nextToken()
		right, err := p.parseNotExpression()
		if err != nil {
			return nil, err
		}
		left = &Unsupported{Construct: "boolean operator 'and'", Operands: []Expr{left, right}}
	}
	return left, nil
}

func (p *ExpressionParser) parseNotExpression() (Expr, error) {
	if p.currentTokenIs(TOKEN_NOT) {
		p.nextToken()
		operand, err := p.parseNotExpression()
		if err != nil {
			return nil, err
		}
		return &Unsupported{Construct: "unary operator 'not'", Operands: []Expr{operand}}, nil
	}
	return p.parseComparison()
}

func (p *ExpressionParser) parseComparison() (Expr, error) {
	left, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
			op := p.current.Value
			p.nextToken()
			right, err := p.parseAdditiveExpression()
			if err != nil {
				return nil, err
			}
			left = &Unsupported{Construct: "comparison '" + op + "'", Operands: []Expr{left, right}}
		default:
			return left, nil
		}
	}
}

func (p *ExpressionParser) parseAdditiveExpression() (Expr, error) {
	left, err := p.parseMultiplicativeExpression()
	if err != nil {
		return nil, err
	}
	for p.currentTokenIs(TOKEN_PLUS) || p.currentTokenIs(TOKEN_MINUS) {
		op := p.current.Value[0]
		p.nextToken()
		right, err := p.parseMultiplicativeExpression()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *ExpressionParser) parseMultiplicativeExpression() (Expr, error) {
	left, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case TOKEN_MULTIPLY, TOKEN_DIVIDE:
			op := p.current.Value[0]
			p.nextToken()
			right, err := p.parseUnaryExpression()
			if err != nil {
				return nil, err
			}
			left = &BinaryOp{Op: op, Left: left, Right: right}
		case TOKEN_MOD, TOKEN_FLOORDIV:
			op := p.current.Value
			p.nextToken()
			right, err := p.parseUnaryExpression()
			if err != nil {
				return nil, err
			}
			left = &Unsupported{Construct: "operator '" + op + "'", Operands: []Expr{left, right}}
		default:
			return left, nil
		}
	}
}

func (p *ExpressionParser) parseUnaryExpression() (Expr, error) {
	if p.currentTokenIs(TOKEN_MINUS) || p.currentTokenIs(TOKEN_PLUS) {
		op := p.current.Value
		p.nextToken()
		operand, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &Unsupported{Construct: "unary operator '" + op + "'", Operands: []Expr{operand}}, nil
	}
	return p.parsePowerExpression()
}

// parsePowerExpression handles ** (right-associative, binds tighter than unary).
func (p *ExpressionParser) parsePowerExpression() (Expr, error) {
	base, err := p.parsePrimaryExpression()
	if err != nil {
		return nil, err
	}
	if p.currentTokenIs(TOKEN_POWER) {
		p.nextToken()
		exponent, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &Unsupported{Construct: "operator '**'", Operands: []Expr{base, exponent}}, nil
	}
	return base, nil
}

func (p *ExpressionParser) parsePrimaryExpression() (Expr, error) {
	switch p.current.Type {
	case TOKEN_NUMBER:
		lit, err := parseNumberLiteral(p.current.Value)
		if err != nil {
			return nil, err
		}
		p.nextToken()
		return lit, nil

	case TOKEN_STRING:
		lit := &Literal{Value: StringValue(p.current.Value)}
		p.nextToken()
		return lit, nil

	case TOKEN_IDENTIFIER:
		name := p.current.Value
		if p.peek.Type == TOKEN_LPAREN {
			return p.parseFunctionCall(name)
		}
		p.nextToken()
		return &Variable{Name: name}, nil

	case TOKEN_LPAREN:
		p.nextToken()
		inner, err := p.parseOrExpression()
		if err != nil {
			return nil, err
		}
		if !p.currentTokenIs(TOKEN_RPAREN) {
			return nil, errors.New("expected ')'")
		}
		p.nextToken()
		return inner, nil

	case TOKEN_ILLEGAL:
		if p.lexer.err != nil {
			return nil, p.lexer.err
		}
	}
	if p.current.Type == TOKEN_EOF {
		return nil, errors.New("unexpected end of expression")
	}
	return nil, fmt.Errorf("unexpected token %q", p.current.Value)
}

// parseFunctionCall parses f(a, b, ...) so it can be rejected at evaluation.
func (p *ExpressionParser) parseFunctionCall(name string) (Expr, error) {
	p.nextToken() // name
	p.nextToken() // (
	var args []Expr
	if !p.currentTokenIs(TOKEN_RPAREN) {
		for {
			arg, err := p.parseOrExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.currentTokenIs(TOKEN_COMMA) {
				break
			}
			p.nextToken()
			if p.currentTokenIs(TOKEN_RPAREN) {
				break
			}
		}
	}
	if !p.currentTokenIs(TOKEN_RPAREN) {
		return nil, errors.New("expected ')' after function arguments")
	}
	p.nextToken()
	return &Unsupported{Construct: "call to '" + name + "'", Operands: args}, nil
}

// parseNumberLiteral turns lexed digits into an Int or Float literal.
func parseNumberLiteral(text string) (*Literal, error) {
	if strings.ContainsAny(text, ".eE") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", text)
		}
		return &Literal{Value: FloatValue(f)}, nil
	}
	if len(text) > 1 && text[0] == '0' && strings.Trim(text, "0") != "" {
		return nil, fmt.Errorf("leading zeros in integer literal %q", text)
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return nil, fmt.Errorf("integer literal %s: %w", text, ErrIntegerOverflow)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", text)
	}
	return &Literal{Value: IntValue(i)}, nil
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || unicode.IsDigit(ch)
}

// IsValidIdentifier reports whether name can be bound as a variable.
func IsValidIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, ch := range name {
		if i == 0 && !isIdentStart(ch) {
			return false
		}
		if !isIdentPart(ch) {
			return false
		}
	}
	return true
}

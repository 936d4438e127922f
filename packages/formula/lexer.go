package formula

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenEquals
	TokenNumber
	TokenCell
	TokenRange
	TokenRefError
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenWhitespace
	TokenError
)

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpPower
)

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull     = 0
	charTab      = '\t'
	charNewline  = '\n'
	charReturn   = '\r'
	charSpace    = ' '
	charPercent  = '%'
	charLParen   = '('
	charRParen   = ')'
	charAsterisk = '*'
	charPlus     = '+'
	charComma    = ','
	charMinus    = '-'
	charPeriod   = '.'
	charSlash    = '/'
	charColon    = ':'
	charEqual    = '='
	charCaret    = '^'
	charDollar   = '$'
	charHash     = '#'
)

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart: {
		TokenEquals: true, // formula prefix
	},
	StateAfterValue: { // after number, cell, range, #REF!
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenComma:          true, // only if in function
		TokenEOF:            true,
	},
	StateAfterOperator: {
		TokenNumber:        true,
		TokenCell:          true,
		TokenRefError:      true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true, // only unary after binary
	},
	StateAfterLeftParen: {
		TokenNumber:        true,
		TokenCell:          true,
		TokenRange:         true, // allow ranges in functions
		TokenRefError:      true,
		TokenFunction:      true,
		TokenLeftParen:     true, // nested
		TokenUnaryPrefixOp: true,
		TokenRightParen:    true, // empty argument lists
	},
	StateAfterRightParen: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true,
		TokenComma:          true,
		TokenEOF:            true,
	},
	StateAfterComma: { // only valid in function context
		TokenNumber:        true,
		TokenCell:          true,
		TokenRange:         true,
		TokenRefError:      true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true,
	},
	StateAfterFunction: {
		TokenLeftParen: true,
	},
	StateAfterEquals: {
		TokenNumber:        true,
		TokenCell:          true,
		TokenRange:         true,
		TokenRefError:      true,
		TokenFunction:      true,
		TokenLeftParen:     true,
		TokenUnaryPrefixOp: true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
	End   int // rune position just past the token
}

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterEquals
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterFunction
)

// Lexer tokenizes formula expressions
type Lexer struct {
	input      string
	runes      []rune // UTF-8 aware representation
	pos        int
	state      TokenState
	parenDepth int
	tokens     []Token
	error      string
}

// NewLexer creates a new lexer for the given formula input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		pos:    0,
		state:  StateStart,
		tokens: []Token{},
	}
}

// Tokenize tokenizes the entire input and returns tokens and any error
func (l *Lexer) Tokenize() ([]Token, []string) {
	// formula lexer - must start with =
	if len(l.runes) == 0 || l.runes[0] != charEqual {
		l.error = "formula must start with '='"
		return nil, []string{l.error}
	}

	for l.pos < len(l.runes) {
		tok := l.nextToken()
		if tok.Type == TokenError {
			l.error = tok.Value
			return nil, []string{l.error}
		}
		if tok.Type == TokenEOF {
			break
		}
		if !l.validateTransition(tok.Type) {
			l.error = "unexpected token: " + tok.Value
			return nil, []string{l.error}
		}
		l.tokens = append(l.tokens, tok)
		l.updateState(tok.Type)
	}

	if l.parenDepth > 0 {
		l.error = "unbalanced parentheses: missing closing parenthesis"
		return nil, []string{l.error}
	}

	if !l.validateTransition(TokenEOF) {
		l.error = "unexpected end of formula"
		return nil, []string{l.error}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: len(l.runes), End: len(l.runes)})
	return l.tokens, nil
}

// Runes returns the rune slice token positions refer to
func (l *Lexer) Runes() []rune {
	return l.runes
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenEquals:
		l.state = StateAfterEquals
	case TokenNumber, TokenCell, TokenRange, TokenRefError:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators don't change state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenFunction:
		l.state = StateAfterFunction
	}
}

// nextToken returns the next token from the input
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos, End: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	if l.isDigit(ch) || (ch == charPeriod && l.isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos, End: l.pos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos, End: l.pos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos, End: l.pos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash, charCaret:
		l.pos++
		return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos, End: l.pos}
	case charPercent:
		l.pos++
		return Token{Type: TokenUnaryPostfixOp, Value: "%", Pos: startPos, End: l.pos}
	case charEqual:
		if l.pos == 0 {
			l.pos++
			return Token{Type: TokenEquals, Value: "=", Pos: startPos, End: l.pos}
		}
		return Token{Type: TokenError, Value: "unexpected character: =", Pos: startPos}
	case charHash:
		return l.scanRefError()
	}

	if l.isAlpha(ch) || ch == charDollar {
		return l.scanIdentifierOrCell()
	}

	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation and classification

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn {
			l.pos++
		} else {
			break
		}
	}
}

func (l *Lexer) isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func (l *Lexer) isAlphaNumeric(ch rune) bool {
	return l.isAlpha(ch) || l.isDigit(ch)
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}

	if l.current() == charPeriod && l.isDigit(l.peek(1)) {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && l.isDigit(l.current()) {
			l.pos++
		}
	}

	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++

		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		if !l.isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && l.isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos, End: l.pos}
}

// scanRefError scans the literal #REF! left behind by reference rewriting
func (l *Lexer) scanRefError() Token {
	startPos := l.pos
	marker := []rune(RefErrorMarker)
	for i, ch := range marker {
		if l.peek(i) != ch {
			return Token{Type: TokenError, Value: "unexpected character: #", Pos: startPos}
		}
	}
	l.pos += len(marker)
	return Token{Type: TokenRefError, Value: RefErrorMarker, Pos: startPos, End: l.pos}
}

// scanCellPart consumes an optional "$", letters, optional "$", digits
func (l *Lexer) scanCellPart() {
	if l.current() == charDollar {
		l.pos++
	}
	for l.pos < len(l.runes) && l.isAlpha(l.current()) {
		l.pos++
	}
	if l.current() == charDollar {
		l.pos++
	}
	for l.pos < len(l.runes) && l.isDigit(l.current()) {
		l.pos++
	}
}

// scanIdentifierOrCell scans functions, cells and ranges
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos

	if l.current() != charDollar {
		// function names are plain identifiers followed by "("
		end := l.pos
		for end < len(l.runes) && (l.isAlphaNumeric(l.runes[end]) || l.runes[end] == '_') {
			end++
		}
		name := l.substring(startPos, end)
		if end < len(l.runes) && l.runes[end] == charLParen && !l.isCell(name) {
			l.pos = end
			return Token{Type: TokenFunction, Value: toUpper(name), Pos: startPos, End: l.pos}
		}
	}

	l.scanCellPart()
	value := l.substring(startPos, l.pos)
	if !l.isCell(value) {
		// consume the rest of the word for a readable error
		for l.pos < len(l.runes) && (l.isAlphaNumeric(l.current()) || l.current() == '_') {
			l.pos++
		}
		return Token{Type: TokenError, Value: "unknown identifier: " + l.substring(startPos, l.pos), Pos: startPos}
	}

	// check for range (A1:B2)
	if l.current() == charColon {
		savedPos := l.pos
		l.pos++ // consume ':'

		cellStart := l.pos
		l.scanCellPart()
		secondCell := l.substring(cellStart, l.pos)
		if l.isCell(secondCell) {
			return Token{Type: TokenRange, Value: l.substring(startPos, l.pos), Pos: startPos, End: l.pos}
		}
		l.pos = savedPos
		return Token{Type: TokenError, Value: "invalid range reference", Pos: startPos}
	}

	return Token{Type: TokenCell, Value: value, Pos: startPos, End: l.pos}
}

// isCell checks if a string is a valid cell reference (e.g., A1, $B$12)
func (l *Lexer) isCell(s string) bool {
	_, err := ParseCellRef(s)
	return err == nil
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos, End: l.pos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos, End: l.pos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	switch l.state {
	case StateStart, StateAfterEquals, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}

// toUpper converts ASCII letters to uppercase
func toUpper(s string) string {
	result := make([]rune, 0, len(s))
	for _, ch := range s {
		if ch >= 'a' && ch <= 'z' {
			ch -= 32
		}
		result = append(result, ch)
	}
	return string(result)
}

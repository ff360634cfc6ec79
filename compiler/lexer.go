package compiler

// ---------------------------------------------------------------------------
// Lexer: on-demand tokenizer for coxy source
// ---------------------------------------------------------------------------

// Lexer produces tokens one at a time as the compiler asks for them.
type Lexer struct {
	input   string
	start   int // start of the token being scanned
	current int // next byte to read
	line    int // current line (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1}
}

// NextToken returns the next token. At end of input it keeps returning
// TokenEOF.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	l.start = l.current

	if l.atEnd() {
		return l.makeToken(TokenEOF)
	}

	c := l.advance()
	switch {
	case isAlpha(c):
		return l.readIdentifier()
	case isDigit(c):
		return l.readNumber()
	}

	switch c {
	case '(':
		return l.makeToken(TokenLeftParen)
	case ')':
		return l.makeToken(TokenRightParen)
	case '{':
		return l.makeToken(TokenLeftBrace)
	case '}':
		return l.makeToken(TokenRightBrace)
	case ';':
		return l.makeToken(TokenSemicolon)
	case ',':
		return l.makeToken(TokenComma)
	case '.':
		return l.makeToken(TokenDot)
	case '-':
		return l.makeToken(TokenMinus)
	case '+':
		return l.makeToken(TokenPlus)
	case '/':
		return l.makeToken(TokenSlash)
	case '*':
		return l.makeToken(TokenStar)
	case '!':
		return l.makeToken(l.pick('=', TokenBangEqual, TokenBang))
	case '=':
		return l.makeToken(l.pick('=', TokenEqualEqual, TokenEqual))
	case '<':
		return l.makeToken(l.pick('=', TokenLessEqual, TokenLess))
	case '>':
		return l.makeToken(l.pick('=', TokenGreaterEqual, TokenGreater))
	case '"':
		return l.readString()
	}

	return l.errorToken("Unexpected character.")
}

// Tokenize scans the whole input, including the final EOF token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

func (l *Lexer) atEnd() bool {
	return l.current >= len(l.input)
}

func (l *Lexer) advance() byte {
	c := l.input[l.current]
	l.current++
	return c
}

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.input[l.current]
}

func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.input) {
		return 0
	}
	return l.input[l.current+1]
}

// pick consumes expected if it is next and returns matched, else single.
func (l *Lexer) pick(expected byte, matched, single TokenType) TokenType {
	if l.atEnd() || l.input[l.current] != expected {
		return single
	}
	l.current++
	return matched
}

func (l *Lexer) makeToken(t TokenType) Token {
	return Token{Type: t, Lexeme: l.input[l.start:l.current], Line: l.line}
}

func (l *Lexer) errorToken(message string) Token {
	return Token{Type: TokenError, Lexeme: message, Line: l.line}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\r', '\t':
			l.current++
		case '\n':
			l.line++
			l.current++
		case '/':
			if l.peekNext() != '/' {
				return
			}
			for l.peek() != '\n' && !l.atEnd() {
				l.current++
			}
		default:
			return
		}
	}
}

func (l *Lexer) readString() Token {
	for l.peek() != '"' && !l.atEnd() {
		if l.peek() == '\n' {
			l.line++
		}
		l.current++
	}
	if l.atEnd() {
		return l.errorToken("Unterminated string.")
	}
	l.current++ // closing quote
	return l.makeToken(TokenString)
}

func (l *Lexer) readNumber() Token {
	for isDigit(l.peek()) {
		l.current++
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.current++
		for isDigit(l.peek()) {
			l.current++
		}
	}
	return l.makeToken(TokenNumber)
}

func (l *Lexer) readIdentifier() Token {
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		l.current++
	}
	if t, ok := keywords[l.input[l.start:l.current]]; ok {
		return l.makeToken(t)
	}
	return l.makeToken(TokenIdentifier)
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

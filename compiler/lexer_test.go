package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `( ) { } , . - + ; / * ! != = == > >= < <=`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLeftParen, "("},
		{TokenRightParen, ")"},
		{TokenLeftBrace, "{"},
		{TokenRightBrace, "}"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenMinus, "-"},
		{TokenPlus, "+"},
		{TokenSemicolon, ";"},
		{TokenSlash, "/"},
		{TokenStar, "*"},
		{TokenBang, "!"},
		{TokenBangEqual, "!="},
		{TokenEqual, "="},
		{TokenEqualEqual, "=="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Lexeme != exp.lit {
			t.Errorf("token[%d] lexeme = %q, want %q", i, tok.Lexeme, exp.lit)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	for word, typ := range keywords {
		tokens := Tokenize(word)
		if tokens[0].Type != typ {
			t.Errorf("%q lexed as %v, want %v", word, tokens[0].Type, typ)
		}
	}

	// Keywords are whole words only.
	for _, input := range []string{"classy", "orchid", "_if", "var1", "Nil"} {
		if tok := Tokenize(input)[0]; tok.Type != TokenIdentifier || tok.Lexeme != input {
			t.Errorf("%q lexed as %v, want IDENTIFIER", input, tok)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"123", []string{"123"}},
		{"3.14", []string{"3.14"}},
		{"1.", []string{"1", "."}},
		{".5", []string{".", "5"}},
		{"1.2.3", []string{"1.2", ".", "3"}},
	}
	for _, tt := range tests {
		tokens := Tokenize(tt.input)
		var got []string
		for _, tok := range tokens[:len(tokens)-1] {
			got = append(got, tok.Lexeme)
		}
		if len(got) != len(tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.input, i, got[i], tt.want[i])
			}
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tok := Tokenize(`"hello world"`)[0]
	if tok.Type != TokenString || tok.Lexeme != `"hello world"` {
		t.Errorf("string token = %v", tok)
	}

	tokens := Tokenize("\"multi\nline\" x")
	if tokens[0].Type != TokenString || tokens[0].Line != 2 {
		t.Errorf("multi-line string = %v, want STRING ending on line 2", tokens[0])
	}
	if tokens[1].Line != 2 {
		t.Errorf("token after string on line %d, want 2", tokens[1].Line)
	}
}

func TestLexerErrors(t *testing.T) {
	tok := Tokenize(`"open`)[0]
	if tok.Type != TokenError || tok.Lexeme != "Unterminated string." {
		t.Errorf("unterminated string = %v", tok)
	}

	tokens := Tokenize("a @ b")
	if tokens[1].Type != TokenError || tokens[1].Lexeme != "Unexpected character." {
		t.Errorf("unexpected character = %v", tokens[1])
	}
	if tokens[2].Type != TokenIdentifier || tokens[2].Lexeme != "b" {
		t.Errorf("lexing did not resume after the error: %v", tokens[2])
	}
}

func TestLexerCommentsAndLines(t *testing.T) {
	input := "var a; // comment with \"quote\n\n  print a / 2;"
	tokens := Tokenize(input)

	wantTypes := []TokenType{
		TokenVar, TokenIdentifier, TokenSemicolon,
		TokenPrint, TokenIdentifier, TokenSlash, TokenNumber, TokenSemicolon,
		TokenEOF,
	}
	if len(tokens) != len(wantTypes) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(wantTypes), tokens)
	}
	for i, typ := range wantTypes {
		if tokens[i].Type != typ {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i].Type, typ)
		}
	}
	if tokens[0].Line != 1 || tokens[3].Line != 3 || tokens[8].Line != 3 {
		t.Errorf("lines = %d, %d, %d; want 1, 3, 3", tokens[0].Line, tokens[3].Line, tokens[8].Line)
	}
}

func TestLexerEOFRepeats(t *testing.T) {
	l := NewLexer("")
	for i := 0; i < 3; i++ {
		if tok := l.NextToken(); tok.Type != TokenEOF {
			t.Fatalf("call %d = %v, want EOF", i, tok)
		}
	}
}

func TestTokenString(t *testing.T) {
	if TokenBangEqual.String() != "!=" || TokenEOF.String() != "EOF" {
		t.Error("token type names wrong")
	}
	if got := TokenType(999).String(); got != "TokenType(999)" {
		t.Errorf("unknown type = %q", got)
	}
	tok := Token{Type: TokenIdentifier, Lexeme: "x", Line: 4}
	if got := tok.String(); got != `IDENTIFIER("x")@4` {
		t.Errorf("Token.String = %q", got)
	}
}

package descriptor

import (
	"fmt"
)

type TokenType int

type Token struct {
	Type    TokenType // Type of the token
	Lexeme  string    // Actual text from the descriptor
	Literal string    // Class name for OBJECT tokens, empty otherwise
	Pos     Position  // Position in the descriptor
}

// NewToken creates a new Token instance
func NewToken(tokenType TokenType, lexeme string, literal string, pos Position) Token {
	return Token{
		Type:    tokenType,
		Lexeme:  lexeme,
		Literal: literal,
		Pos:     pos,
	}
}

const (
	EOF TokenType = iota // End of descriptor

	BYTE    // B
	CHAR    // C
	DOUBLE  // D
	FLOAT   // F
	INT     // I
	LONG    // J
	SHORT   // S
	BOOLEAN // Z
	VOID    // V

	OBJECT // L<class name>;
	ARRAY  // [

	LPAREN // (
	RPAREN // )

	ILLEGAL // illegal token
)

var tokenNames = map[TokenType]string{
	EOF:     "$",
	BYTE:    "B",
	CHAR:    "C",
	DOUBLE:  "D",
	FLOAT:   "F",
	INT:     "I",
	LONG:    "J",
	SHORT:   "S",
	BOOLEAN: "Z",
	VOID:    "V",
	OBJECT:  "L;",
	ARRAY:   "[",
	LPAREN:  "(",
	RPAREN:  ")",
	ILLEGAL: "illegal",
}

// String returns a string representation of the Token
func (t Token) String() string {
	if t.Literal == "" {
		return fmt.Sprintf("T_{%s, %v, nil, %s}", t.Type, t.Lexeme, t.Pos)
	}

	return fmt.Sprintf("T_{%s, %v, %q, %s}", t.Type, t.Lexeme, t.Literal, t.Pos)
}

// String returns a string representation of the TokenType
func (t TokenType) String() string {
	if str, ok := tokenNames[t]; ok {
		return str
	}

	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// IsBase reports whether the token is one of the single-letter base types
func (t TokenType) IsBase() bool {
	switch t {
	case BYTE, CHAR, DOUBLE, FLOAT, INT, LONG, SHORT, BOOLEAN:
		return true
	default:
		return false
	}
}

type Position struct {
	Column int
	Offset int
}

// Returns a string representation of the Position
func (p Position) String() string {
	return fmt.Sprintf("%d, %d", p.Column, p.Offset)
}

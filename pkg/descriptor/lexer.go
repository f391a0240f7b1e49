package descriptor

type Lexer struct {
	input    string // descriptor being tokenized
	length   int    // length of the input string
	position int    // current position in the input string
}

// Create a new lexer instance
func NewLexer(s string) *Lexer {
	return &Lexer{
		input:    s,
		length:   len(s),
		position: 0,
	}
}

// Get the next token from the input
func (l *Lexer) NextToken() Token {
	if l.position >= l.length {
		return NewToken(EOF, "", "", l.currentPosition())
	}

	remaining := l.input[l.position:]
	tokenType, lexeme, matched := MatchToken(remaining)
	pos := l.currentPosition()

	if !matched {
		l.advance(1)
		return NewToken(ILLEGAL, lexeme, "", pos)
	}

	var literal string
	if tokenType == OBJECT {
		// strip the leading 'L' and trailing ';'
		literal = lexeme[1 : len(lexeme)-1]
	}

	l.advance(len(lexeme))
	return NewToken(tokenType, lexeme, literal, pos)
}

// View next token without advancing the position
func (l *Lexer) Peek() Token {
	cpos := l.position
	token := l.NextToken()
	l.position = cpos

	return token
}

// Check if there are more characters to read
func (l *Lexer) HasMore() bool {
	return l.position < l.length
}

// Advance the lexer position by n characters
func (l *Lexer) advance(n int) {
	l.position = min(l.position+n, l.length)
}

// Get the current position of the lexer
func (l *Lexer) currentPosition() Position {
	return Position{
		Column: l.position + 1,
		Offset: l.position,
	}
}

package descriptor

import (
	"regexp"
)

type tokenRegex struct {
	Pattern *regexp.Regexp
	Raw     string
}

// Token regex patterns
var tokenRegexes = map[TokenType]tokenRegex{
	OBJECT: {regexp.MustCompile(`^L[^;\[.()]+;`), `^L[^;\[.()]+;`},

	BYTE:    {regexp.MustCompile(`^B`), `^B`},
	CHAR:    {regexp.MustCompile(`^C`), `^C`},
	DOUBLE:  {regexp.MustCompile(`^D`), `^D`},
	FLOAT:   {regexp.MustCompile(`^F`), `^F`},
	INT:     {regexp.MustCompile(`^I`), `^I`},
	LONG:    {regexp.MustCompile(`^J`), `^J`},
	SHORT:   {regexp.MustCompile(`^S`), `^S`},
	BOOLEAN: {regexp.MustCompile(`^Z`), `^Z`},
	VOID:    {regexp.MustCompile(`^V`), `^V`},

	ARRAY:  {regexp.MustCompile(`^\[`), `^\[`},
	LPAREN: {regexp.MustCompile(`^\(`), `^\(`},
	RPAREN: {regexp.MustCompile(`^\)`), `^\)`},
}

// Token precedence order for matching. OBJECT must win over the bare letters.
var tokenPrecedenceOrder = []TokenType{
	OBJECT,
	BYTE, CHAR, DOUBLE, FLOAT, INT, LONG, SHORT, BOOLEAN, VOID,
	ARRAY, LPAREN, RPAREN,
}

// Get the regex pattern for a token type
func (t TokenType) Regex() *regexp.Regexp {
	if regex, ok := tokenRegexes[t]; ok {
		return regex.Pattern
	}

	return nil
}

// Match the token at the start of the string
func MatchToken(s string) (TokenType, string, bool) {
	if s == "" {
		return EOF, "", false
	}

	for _, tokenType := range tokenPrecedenceOrder {
		if regex, ok := tokenRegexes[tokenType]; ok {
			if match := regex.Pattern.FindString(s); match != "" {
				return tokenType, match, true
			}
		}
	}

	return ILLEGAL, string(s[0]), false
}

package expression

import "fmt"

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenIdent
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenPercent
	tokenLParen
	tokenRParen
	tokenComma
	tokenQuestion
	tokenColon
	tokenBang
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
)

// token is a single lexeme with its byte offset in the source.
type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex scans src into a token stream. The returned slice always ends
// with a tokenEOF entry.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				if i >= len(src) || !isDigit(src[i]) {
					return nil, fmt.Errorf("%w: malformed number at offset %d", ErrSyntax, start)
				}
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			tokens = append(tokens, token{tokenNumber, src[start:i], start})
		case c == '\'' || c == '"':
			quote := c
			start := i
			i++
			var buf []byte
			closed := false
			for i < len(src) {
				if src[i] == '\\' && i+1 < len(src) {
					buf = append(buf, unescape(src[i+1]))
					i += 2
					continue
				}
				if src[i] == quote {
					closed = true
					i++
					break
				}
				buf = append(buf, src[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, start)
			}
			tokens = append(tokens, token{tokenString, string(buf), start})
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{tokenIdent, src[start:i], start})
		default:
			start := i
			kind, width, err := lexOperator(src, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind, src[start : start+width], start})
			i += width
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(src)})
	return tokens, nil
}

// lexOperator scans a one- or two-character operator at offset i.
func lexOperator(src string, i int) (tokenKind, int, error) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "==":
		return tokenEq, 2, nil
	case "!=":
		return tokenNeq, 2, nil
	case "<=":
		return tokenLte, 2, nil
	case ">=":
		return tokenGte, 2, nil
	case "&&":
		return tokenAnd, 2, nil
	case "||":
		return tokenOr, 2, nil
	}
	switch src[i] {
	case '+':
		return tokenPlus, 1, nil
	case '-':
		return tokenMinus, 1, nil
	case '*':
		return tokenStar, 1, nil
	case '/':
		return tokenSlash, 1, nil
	case '%':
		return tokenPercent, 1, nil
	case '(':
		return tokenLParen, 1, nil
	case ')':
		return tokenRParen, 1, nil
	case ',':
		return tokenComma, 1, nil
	case '?':
		return tokenQuestion, 1, nil
	case ':':
		return tokenColon, 1, nil
	case '!':
		return tokenBang, 1, nil
	case '<':
		return tokenLt, 1, nil
	case '>':
		return tokenGt, 1, nil
	}
	return tokenEOF, 0, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, src[i], i)
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	default:
		return c
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

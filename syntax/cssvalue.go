package syntax

import (
	"strings"

	"github.com/mazznoer/csscolorparser"
)

// cssUnits is the set of length units that attach directly to a preceding
// number without a space.
var cssUnits = map[string]bool{
	"px": true, "em": true, "rem": true, "ex": true, "ch": true,
	"vw": true, "vh": true, "vmin": true, "vmax": true,
	"pt": true, "pc": true, "cm": true, "mm": true, "in": true, "q": true,
	"s": true, "ms": true, "deg": true, "rad": true, "grad": true, "turn": true,
	"fr": true, "dpi": true, "dpcm": true, "dppx": true,
}

// JoinValueTokens reassembles CSS property value tokens into text, applying
// the spacing rules of the language:
//
//   - tokens are space-joined by default;
//   - no space after '#', '(' and '.'; none before ')', ',' and ';';
//   - a hyphen fuses with a following alphabetic token (compound identifier);
//   - a number fuses with a following unit ("10px", "1.5em", "100%");
//   - a minus that precedes a number keeps a space before it (unary negative).
func JoinValueTokens(toks []Token) string {
	var b strings.Builder
	for i, t := range toks {
		lex := valueLexeme(t)
		if i > 0 && needSpace(toks[i-1], t) {
			b.WriteByte(' ')
		}
		b.WriteString(lex)
	}
	return b.String()
}

func valueLexeme(t Token) string {
	if t.Kind == String {
		// Re-quote string literals so generated CSS stays valid.
		return `"` + t.Lexeme + `"`
	}
	return t.Lexeme
}

func needSpace(prev, cur Token) bool {
	switch prev.Kind {
	case Hash, LParen, Dot:
		return false
	case Minus:
		// "-webkit" style compounds fuse; "- 5" stays "- 5" only when the
		// minus itself was preceded by a space, which JoinValueTokens already
		// encoded by emitting the minus as its own token.
		if cur.Kind == Ident {
			return false
		}
		if cur.Kind == Number {
			return false
		}
	}
	switch cur.Kind {
	case RParen, Comma, Semicolon:
		return false
	case LParen:
		// Function call: no space between name and '('.
		if prev.Kind == Ident {
			return false
		}
	case Ident:
		if prev.Kind == Number && (cssUnits[strings.ToLower(cur.Lexeme)]) {
			return false
		}
		if prev.Kind == Dot {
			return false
		}
	case Number:
		if prev.Kind == Hash || prev.Kind == Dot {
			return false
		}
	case Minus:
		return true
	}
	if cur.Kind == Unquoted && cur.Lexeme == "%" && prev.Kind == Number {
		return false
	}
	if prev.Kind == Unquoted && prev.Lexeme == "%" {
		return true
	}
	return true
}

// NormalizeColor parses a CSS color literal and returns its canonical hex
// form. Non-color values come back unchanged with ok == false.
func NormalizeColor(value string) (string, bool) {
	c, err := csscolorparser.Parse(strings.TrimSpace(value))
	if err != nil {
		return value, false
	}
	return c.HexString(), true
}

// looksLikeColor is a cheap pre-filter so NormalizeColor is only consulted
// for plausible color literals.
func looksLikeColor(value string) bool {
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "#") {
		return true
	}
	return strings.HasPrefix(v, "rgb(") || strings.HasPrefix(v, "rgba(") ||
		strings.HasPrefix(v, "hsl(") || strings.HasPrefix(v, "hsla(")
}

package syntax

import "fmt"

// TokenKind is the closed set of CHTL token kinds.
type TokenKind int

const (
	EOF TokenKind = iota
	ErrorTok

	Ident    // div, text, class
	String   // "content" or 'content'
	Unquoted // bare literal in value position
	Number   // 123, 1.5

	LBrace    // {
	RBrace    // }
	LParen    // (
	RParen    // )
	Colon     // :
	Semicolon // ;
	Comma     // ,
	Equals    // =
	Dot       // .
	Hash      // #
	Ampersand // &
	Minus     // -

	// Keyword blocks, lexed as a single token including the brackets.
	KwTemplate      // [Template]
	KwCustom        // [Custom]
	KwOrigin        // [Origin]
	KwConfiguration // [Configuration]
	KwNamespace     // [Namespace]
	KwImport        // [Import]
	KwInfo          // [Info]
	KwExport        // [Export]

	// Type markers.
	AtStyle      // @Style
	AtElement    // @Element
	AtVar        // @Var
	AtHtml       // @Html
	AtJavaScript // @JavaScript
	AtChtl       // @Chtl
	AtCJmod      // @CJmod
	AtOther      // @Anything else (user-declared origin types)

	// Contextual keywords surface as Ident; the parser compares lexemes for
	// "text", "style", "script", "from", "as", "inherit", "delete", "insert",
	// "after", "before", "replace", "except", "use".

	LineComment      // // ...
	BlockComment     // /* ... */
	GeneratorComment // -- ...
)

var tokenNames = map[TokenKind]string{
	EOF:              "EOF",
	ErrorTok:         "error",
	Ident:            "identifier",
	String:           "string",
	Unquoted:         "literal",
	Number:           "number",
	LBrace:           "'{'",
	RBrace:           "'}'",
	LParen:           "'('",
	RParen:           "')'",
	Colon:            "':'",
	Semicolon:        "';'",
	Comma:            "','",
	Equals:           "'='",
	Dot:              "'.'",
	Hash:             "'#'",
	Ampersand:        "'&'",
	Minus:            "'-'",
	KwTemplate:       "[Template]",
	KwCustom:         "[Custom]",
	KwOrigin:         "[Origin]",
	KwConfiguration:  "[Configuration]",
	KwNamespace:      "[Namespace]",
	KwImport:         "[Import]",
	KwInfo:           "[Info]",
	KwExport:         "[Export]",
	AtStyle:          "@Style",
	AtElement:        "@Element",
	AtVar:            "@Var",
	AtHtml:           "@Html",
	AtJavaScript:     "@JavaScript",
	AtChtl:           "@Chtl",
	AtCJmod:          "@CJmod",
	AtOther:          "@-marker",
	LineComment:      "line comment",
	BlockComment:     "block comment",
	GeneratorComment: "generator comment",
}

func (k TokenKind) String() string {
	if s, ok := tokenNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a lexed CHTL token with its position.
type Token struct {
	Kind   TokenKind
	Lexeme string
	Pos    Span
}

// IsComment reports whether the token is any comment variant.
func (t Token) IsComment() bool {
	return t.Kind == LineComment || t.Kind == BlockComment || t.Kind == GeneratorComment
}

// IsValue reports whether the token can appear in a value position.
func (t Token) IsValue() bool {
	return t.Kind == String || t.Kind == Unquoted || t.Kind == Number || t.Kind == Ident
}

// keywordBlocks maps bracketed keyword lexemes to their token kinds.
var keywordBlocks = map[string]TokenKind{
	"[Template]":      KwTemplate,
	"[Custom]":        KwCustom,
	"[Origin]":        KwOrigin,
	"[Configuration]": KwConfiguration,
	"[Namespace]":     KwNamespace,
	"[Import]":        KwImport,
	"[Info]":          KwInfo,
	"[Export]":        KwExport,
}

// typeMarkers maps @-marker lexemes to their token kinds.
var typeMarkers = map[string]TokenKind{
	"@Style":      AtStyle,
	"@Element":    AtElement,
	"@Var":        AtVar,
	"@Html":       AtHtml,
	"@JavaScript": AtJavaScript,
	"@Chtl":       AtChtl,
	"@CJmod":      AtCJmod,
}

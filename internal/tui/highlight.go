package tui

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const (
	highlightStyle     = "monokai"
	highlightFormatter = "terminal256"
)

// highlight renders code for the terminal, picking the lexer from the
// file name. The input is returned unchanged when it cannot be tokenised.
func highlight(filename, code string) string {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var b strings.Builder
	if err := formatters.Get(highlightFormatter).Format(&b, styles.Get(highlightStyle), iterator); err != nil {
		return code
	}
	return b.String()
}

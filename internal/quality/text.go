package quality

import (
	"strings"
	"sync"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	markdownParser     goldmark.Markdown
	markdownParserOnce sync.Once
)

func parser() goldmark.Markdown {
	markdownParserOnce.Do(func() {
		markdownParser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return markdownParser
}

// plainText strips markdown syntax and returns one line per block.
func plainText(markdown string) string {
	if markdown == "" {
		return ""
	}
	source := []byte(markdown)
	doc := parser().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				b.Write(n.Segment.Value(source))
				if n.SoftLineBreak() || n.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(n.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// sentences splits plain text on terminal punctuation and block breaks.
func sentences(plain string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" && len(words(s)) > 0 {
			out = append(out, s)
		}
		cur.Reset()
	}
	runes := []rune(plain)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}

// words returns lower-cased word tokens.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}

const vowels = "aeiouyâîûıöü"

// syllables estimates syllables by counting vowel groups.
func syllables(word string) int {
	count := 0
	prevVowel := false
	for _, r := range word {
		v := strings.ContainsRune(vowels, r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count == 0 {
		return 1
	}
	return count
}

// countPhrase counts non-overlapping occurrences of phrase in tokens.
func countPhrase(tokens []string, phrase []string) int {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return 0
	}
	n := 0
	for i := 0; i+len(phrase) <= len(tokens); {
		match := true
		for j := range phrase {
			if tokens[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			n++
			i += len(phrase)
			continue
		}
		i++
	}
	return n
}

package query

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/lightspan-ai/gateway/pkg/api"
)

// Referenced documents arrive embedded in knowledge-search tool output as
// blocks of the form "\nMetadata: { ... }\n". The interior is a literal
// mapping written by the upstream's tooling; it is parsed with a small
// permissive scanner, never evaluated.

const metadataMarker = "\nMetadata: "

// parseReferencedDocuments extracts the referenced documents from one text
// content item. A metadata block is kept iff it carries both docs_url and
// title. Parse failures are logged and skipped.
func parseReferencedDocuments(text string) []api.ReferencedDocument {
	var docs []api.ReferencedDocument

	rest := text
	for {
		idx := strings.Index(rest, metadataMarker)
		if idx < 0 {
			break
		}
		rest = rest[idx+len(metadataMarker):]

		block, ok := takeBraceBlock(rest)
		if !ok {
			slog.Warn("Unterminated metadata block in tool output, skipping")
			break
		}
		rest = rest[len(block):]

		fields := parseLiteralMap(block)
		url, hasURL := fields["docs_url"]
		title, hasTitle := fields["title"]
		if !hasURL || !hasTitle {
			continue
		}
		docs = append(docs, api.ReferencedDocument{DocURL: url, DocTitle: title})
	}
	return docs
}

// dedupeDocuments keeps the first occurrence of each doc_url in encounter
// order.
func dedupeDocuments(docs []api.ReferencedDocument) []api.ReferencedDocument {
	if len(docs) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(docs))
	var out []api.ReferencedDocument
	for _, d := range docs {
		if seen[d.DocURL] {
			continue
		}
		seen[d.DocURL] = true
		out = append(out, d)
	}
	return out
}

// takeBraceBlock returns the brace-balanced prefix of s starting at its
// first '{'. Braces inside quoted strings do not count.
func takeBraceBlock(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	var quote byte
	for i := start; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// parseLiteralMap reads string-keyed entries out of a literal mapping such
// as {'docs_url': 'https://x', 'title': "Y", 'chunks': 3}. Only string and
// scalar values are captured; nested containers are skipped.
func parseLiteralMap(block string) map[string]string {
	fields := map[string]string{}

	s := strings.TrimSpace(block)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")

	i := 0
	for i < len(s) {
		// Key.
		key, next, ok := readLiteral(s, i)
		if !ok {
			break
		}
		i = skipSpaces(s, next)
		if i >= len(s) || s[i] != ':' {
			i = skipPastComma(s, i)
			continue
		}
		i = skipSpaces(s, i+1)

		// Value.
		if i < len(s) && (s[i] == '{' || s[i] == '[') {
			// Nested container, skip it whole.
			if nested, ok := takeBalanced(s[i:], s[i]); ok {
				i += len(nested)
			}
			i = skipPastComma(s, i)
			continue
		}
		value, next, ok := readLiteral(s, i)
		if ok {
			fields[key] = value
			i = next
		}
		i = skipPastComma(s, i)
	}
	return fields
}

// readLiteral reads one quoted string or bare scalar starting at i.
func readLiteral(s string, i int) (string, int, bool) {
	i = skipSpaces(s, i)
	if i >= len(s) {
		return "", i, false
	}
	if s[i] == '\'' || s[i] == '"' {
		quote := s[i]
		var b strings.Builder
		for j := i + 1; j < len(s); j++ {
			if s[j] == '\\' && j+1 < len(s) {
				b.WriteByte(s[j+1])
				j++
				continue
			}
			if s[j] == quote {
				return b.String(), j + 1, true
			}
			b.WriteByte(s[j])
		}
		return "", i, false
	}

	j := i
	for j < len(s) && s[j] != ',' && s[j] != ':' && s[j] != '}' {
		j++
	}
	token := strings.TrimSpace(s[i:j])
	if token == "" {
		return "", j, false
	}
	// Bare scalars keep their printable form.
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), j, true
	}
	return token, j, true
}

func skipSpaces(s string, i int) int {
	for i < len(s) && unicode.IsSpace(rune(s[i])) {
		i++
	}
	return i
}

func skipPastComma(s string, i int) int {
	for i < len(s) && s[i] != ',' {
		i++
	}
	if i < len(s) {
		i++
	}
	return i
}

// takeBalanced returns the prefix of s balanced on the given opening
// bracket.
func takeBalanced(s string, open byte) (string, bool) {
	var closing byte
	switch open {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return "", false
	}

	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

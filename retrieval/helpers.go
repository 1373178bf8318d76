package retrieval

import "strings"

// ftsEscaper strips FTS5 query syntax so raw user input cannot break the
// MATCH expression.
var ftsEscaper = strings.NewReplacer(
	"\"", "", "*", "", "(", "", ")", "",
	"+", "", "-", " ", "^", "", ":", "",
	"?", "", "[", "", "]", "", "{", "",
	"}", "", "!", "", ".", "", ",", "",
	";", "",
)

// sanitizeFTSQuery escapes special FTS5 characters and builds an OR query:
// the full phrase (quoted) for exact matches plus the individual significant
// words for broader recall.
func sanitizeFTSQuery(query string) string {
	cleaned := ftsEscaper.Replace(query)
	words := strings.Fields(cleaned)
	if len(words) == 0 {
		return ""
	}

	var parts []string
	if len(words) > 1 {
		parts = append(parts, "\""+strings.Join(words, " ")+"\"")
	}
	for _, w := range words {
		if len(w) > 2 && !isStopWord(w) {
			parts = append(parts, w)
		}
	}
	if len(parts) == 0 {
		return strings.Join(words, " OR ")
	}
	return strings.Join(parts, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "what": true, "which": true, "who": true, "where": true,
	"when": true, "how": true, "why": true, "not": true, "no": true,
	"if": true, "then": true, "than": true, "so": true, "as": true,
	"about": true, "into": true, "between": true,
}

func isStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}

// Package analyzer turns raw text into a ranked word-frequency table.
package analyzer

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"

	cbus "github.com/next-trace/scg-wordfreq/contract/bus"
	"github.com/next-trace/scg-wordfreq/contract/wordfreq"
)

// Analyze counts the tokens of text and returns the n most frequent ones, ranked by
// count descending and then by token ascending. Non-positive n means
// wordfreq.DefaultTopN. TotalWords always counts every token, not only the ranked ones.
func Analyze(text string, n int) wordfreq.Response {
	if strings.TrimSpace(text) == "" {
		return wordfreq.Response{WordFrequencies: []wordfreq.Item{}}
	}

	tokens := Tokenize(text)
	items := rank(tokens)

	if limit := wordfreq.EffectiveLimit(n); limit < len(items) {
		items = items[:limit]
	}

	return wordfreq.Response{WordFrequencies: items, TotalWords: len(tokens)}
}

// Tokenize lowercases text and splits it into maximal runs of letters, digits and
// combining marks. Everything else, underscore included, is a delimiter.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), isDelimiter)
}

func isDelimiter(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsMark(r)
}

func rank(tokens []string) []wordfreq.Item {
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	items := make([]wordfreq.Item, 0, len(counts))
	for word, count := range counts {
		items = append(items, wordfreq.Item{Word: word, Count: count})
	}

	slices.SortFunc(items, func(a, b wordfreq.Item) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}

		return strings.Compare(a.Word, b.Word)
	})

	return items
}

// Handler exposes Analyze as a query handler for the service bus.
type Handler struct{}

var _ cbus.QueryHandler[wordfreq.Request, wordfreq.Response] = Handler{}

func (Handler) Handle(_ context.Context, req wordfreq.Request) (wordfreq.Response, error) {
	return Analyze(req.Text, req.Limit()), nil
}

package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	notificationDomain "github.com/reshetovitsme/voice-of-light/internal/modules/notification/domain"
	"github.com/samber/lo"
)

// DefaultExcerptBudget is the size, in characters, of one keyword excerpt.
const DefaultExcerptBudget = 950

// Excerpts returns one field per keyword found in body. A field holds every
// paragraph mentioning the keyword; past budget it is cut and suffixed with
// the total number of mentions.
func Excerpts(body string, keywords []string, budget int) []notificationDomain.Field {
	if budget <= 0 {
		budget = DefaultExcerptBudget
	}
	body = strings.ReplaceAll(body, "\r\n", "\n")
	paragraphs := lo.FilterMap(strings.Split(body, "\n\n"), func(p string, _ int) (string, bool) {
		p = strings.TrimSpace(p)
		return p, p != ""
	})

	var fields []notificationDomain.Field
	for _, kw := range lo.Uniq(keywords) {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		matching := lo.Filter(paragraphs, func(p string, _ int) bool {
			return CountWholeWord(p, kw) > 0
		})
		if len(matching) == 0 {
			continue
		}

		text := strings.Join(matching, "\n\n")
		if utf8.RuneCountInString(text) > budget {
			text = string([]rune(text)[:budget]) +
				fmt.Sprintf("... `%d` mentions in total", CountWholeWord(body, kw))
		}
		fields = append(fields, notificationDomain.Field{
			Name:  fmt.Sprintf("'%s' was mentioned in this post!", kw),
			Value: text,
		})
	}
	return fields
}

// CountWholeWord counts case-insensitive occurrences of word in text that
// are not glued to other letters or digits.
func CountWholeWord(text, word string) int {
	text = strings.ToLower(text)
	word = strings.ToLower(word)
	if word == "" {
		return 0
	}

	count := 0
	for offset := 0; offset <= len(text)-len(word); {
		i := strings.Index(text[offset:], word)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(text[:start])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(text) || !isWordRune(after)) {
			count++
			offset = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return count
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

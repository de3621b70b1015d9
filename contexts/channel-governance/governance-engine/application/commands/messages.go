package commands

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// CommentDisplayWidth bounds comments quoted in broadcasts and read views.
	CommentDisplayWidth = 50
	shortenPlaceholder  = " [...]"
	noCommentGiven      = "No comment given"
)

// Shorten collapses whitespace and, when the result exceeds width runes,
// drops trailing words until the text plus placeholder fits.
func Shorten(text string, width int) string {
	words := strings.Fields(text)
	collapsed := strings.Join(words, " ")
	if utf8.RuneCountInString(collapsed) <= width {
		return collapsed
	}
	budget := width - utf8.RuneCountInString(shortenPlaceholder)
	var kept []string
	length := 0
	for _, word := range words {
		next := utf8.RuneCountInString(word)
		if len(kept) > 0 {
			next++
		}
		if length+next > budget {
			break
		}
		kept = append(kept, word)
		length += next
	}
	if len(kept) == 0 {
		return strings.TrimSpace(shortenPlaceholder)
	}
	return strings.Join(kept, " ") + shortenPlaceholder
}

func displayComment(comment string) string {
	if shortened := Shorten(comment, CommentDisplayWidth); shortened != "" {
		return shortened
	}
	return noCommentGiven
}

func (e *Engine) pollURL(pollID int64) string {
	if e.pollURLBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/v1/channels/%s/polls/%d", e.pollURLBase, url.PathEscape(e.channel), pollID)
}

func (e *Engine) pollAnnouncement(pollID int64, creator string, description string) string {
	if link := e.pollURL(pollID); link != "" {
		return fmt.Sprintf("New poll #%d by %s (%s): %s", pollID, creator, link, description)
	}
	return fmt.Sprintf("New poll #%d by %s: %s", pollID, creator, description)
}

package delivery

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"news_digest/internal/model"
)

const generatedLayout = "2006-01-02 15:04 UTC"

// FormatEntry formats a digest entry as a standalone chat message.
func FormatEntry(e model.DigestEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", e.Source.Label())
	b.WriteString(e.Title)
	if tags := hashtags(e.Labels); tags != "" {
		b.WriteString("\n\n")
		b.WriteString(tags)
	}
	if e.URL != "" {
		b.WriteString("\n\n")
		b.WriteString(e.URL)
	}
	return b.String()
}

// FormatText formats the whole digest as plain text.
func FormatText(digest []model.DigestEntry, generated time.Time) string {
	var b strings.Builder
	b.WriteString("Hi!\n\n")
	for _, e := range digest {
		b.WriteString("* ")
		if len(e.Labels) > 0 {
			fmt.Fprintf(&b, "[%s] ", strings.Join(e.Labels, ", "))
		}
		b.WriteString(e.Title)
		if e.URL != "" {
			b.WriteString(" - ")
			b.WriteString(e.URL)
		}
		fmt.Fprintf(&b, " (%s)\n", e.Source.Label())
	}
	fmt.Fprintf(&b, "\nGenerated: %s\n", generated.UTC().Format(generatedLayout))
	return b.String()
}

// FormatHTML formats the whole digest as an HTML document.
func FormatHTML(digest []model.DigestEntry, generated time.Time) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><body>\n<p>Hi!</p>\n<ul>\n")
	for _, e := range digest {
		b.WriteString("<li>")
		if len(e.Labels) > 0 {
			fmt.Fprintf(&b, "<b>[%s]</b> ", html.EscapeString(strings.Join(e.Labels, ", ")))
		}
		title := html.EscapeString(e.Title)
		if e.URL != "" {
			fmt.Fprintf(&b, "<a href=\"%s\">%s</a>", html.EscapeString(e.URL), title)
		} else {
			b.WriteString(title)
		}
		fmt.Fprintf(&b, " <small>%s</small></li>\n", html.EscapeString(e.Source.Label()))
	}
	fmt.Fprintf(&b, "</ul>\n<p><small>Generated: %s</small></p>\n</body></html>\n",
		generated.UTC().Format(generatedLayout))
	return b.String()
}

// hashtags renders topic titles as Telegram hashtags, so "Machine Learning"
// becomes #Machine_Learning.
func hashtags(labels []string) string {
	tags := make([]string, 0, len(labels))
	for _, l := range labels {
		tag := strings.Map(func(r rune) rune {
			switch {
			case unicode.IsLetter(r), unicode.IsDigit(r), r == '_':
				return r
			case unicode.IsSpace(r), r == '-':
				return '_'
			default:
				return -1
			}
		}, strings.TrimSpace(l))
		if tag != "" {
			tags = append(tags, "#"+tag)
		}
	}
	return strings.Join(tags, " ")
}

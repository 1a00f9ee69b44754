package tui

import (
	"strings"
	"unicode/utf8"
)

const ellipsis = "..."

// truncateText shortens text to width runes, marking the cut with an
// ellipsis when there is room for one.
func truncateText(text string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	if width <= len(ellipsis) {
		return string(runes[:width])
	}
	return string(runes[:width-len(ellipsis)]) + ellipsis
}

// formatDetail renders label followed by value wrapped to width, with
// continuation lines indented under the first.
func formatDetail(label, value string, width int) string {
	indent := utf8.RuneCountInString(label)
	if width <= indent {
		return label + value
	}
	pad := "\n" + strings.Repeat(" ", indent)
	return label + strings.ReplaceAll(wrapText(value, width-indent), "\n", pad)
}

// wrapText packs the words of text into lines of at most width runes.
// Words longer than a line, usually paths, are split after a separator
// when one is available.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		if cur != "" && utf8.RuneCountInString(cur)+1+utf8.RuneCountInString(word) <= width {
			cur += " " + word
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		pieces := splitLong(word, width)
		lines = append(lines, pieces[:len(pieces)-1]...)
		cur = pieces[len(pieces)-1]
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return strings.Join(lines, "\n")
}

func splitLong(word string, width int) []string {
	var pieces []string
	runes := []rune(word)
	for len(runes) > width {
		cut := width
		if i := lastSeparator(runes[:width]); i > 0 {
			cut = i + 1
		}
		pieces = append(pieces, string(runes[:cut]))
		runes = runes[cut:]
	}
	return append(pieces, string(runes))
}

func lastSeparator(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '/' || runes[i] == '\\' {
			return i
		}
	}
	return -1
}

package composer

import (
	"regexp"
	"strings"
)

var (
	reHeading     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	reLabel       = regexp.MustCompile(`\*\*([^*]+):\*\*`)
	reTriple      = regexp.MustCompile(`\*\*\*([^*]+)\*\*\*`)
	reBold        = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	reBoldBullet  = regexp.MustCompile(`(?m)^\*\*\s*-\s*`)
	reBoldNumber  = regexp.MustCompile(`(?m)^\*\*\s*\d+\.\s*`)
	reBlankLines  = regexp.MustCompile(`\n{3,}`)
	reStrayMarker = regexp.MustCompile(`\*+`)
)

// CleanMarkdown strips heavy markdown from generated text: headings, bold and
// italic markers, emphasized bullets, and runs of blank lines.
func CleanMarkdown(text string) string {
	text = reHeading.ReplaceAllString(text, "")
	text = reLabel.ReplaceAllString(text, "$1:")
	text = reTriple.ReplaceAllString(text, "$1")
	text = reBold.ReplaceAllString(text, "$1")
	text = reBoldBullet.ReplaceAllString(text, "• ")
	text = reBoldNumber.ReplaceAllStringFunc(text, func(m string) string {
		return strings.ReplaceAll(m, "**", "")
	})
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	text = reStrayMarker.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

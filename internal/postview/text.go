package postview

import (
	"regexp"
	"strings"

	"github.com/ButyrinIA/blogsync/internal/models"
)

const DefaultExcerptLength = 160

var DefaultImages = []string{
	"/images/ourspace1.png",
	"/images/ourspace2.png",
	"/images/ourspace3.png",
	"/images/ourspace4.png",
	"/images/ourspace5.png",
}

var (
	markdownImage = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
	htmlImage     = regexp.MustCompile(`(?i)<img\s+[^>]*src=["']([^"'>\s]+)["'][^>]*>`)

	scriptBlock = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?is)<style.*?>.*?</style>`)
	htmlTag     = regexp.MustCompile(`</?[^>]+(>|$)`)
	whitespace  = regexp.MustCompile(`\s+`)
)

type replacement struct {
	re   *regexp.Regexp
	with string
}

// Markdown tokens removed before tags are stripped, in order.
var markdownTokens = []replacement{
	{regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`), ""},
	{regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile("`{1,3}[^`]*`{1,3}"), ""},
	{regexp.MustCompile(`\*\*\*(.*?)\*\*\*`), "$1"},
	{regexp.MustCompile(`\*\*(.*?)\*\*`), "$1"},
	{regexp.MustCompile(`\*(.*?)\*`), "$1"},
	{regexp.MustCompile(`___(.*?)___`), "$1"},
	{regexp.MustCompile(`__(.*?)__`), "$1"},
	{regexp.MustCompile(`\b_(.*?)_\b`), "$1"},
	{regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`), ""},
	{regexp.MustCompile(`(?m)^\s{0,3}>\s?`), ""},
	{regexp.MustCompile(`(?m)^\s*[-*+]\s+`), ""},
	{regexp.MustCompile(`(?m)^\s*\d+\.\s+`), ""},
	{regexp.MustCompile(`(?m)^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`), ""},
}

// StripText reduces markdown or HTML content to plain text on one line.
func StripText(content string) string {
	for _, r := range markdownTokens {
		content = r.re.ReplaceAllString(content, r.with)
	}
	content = scriptBlock.ReplaceAllString(content, "")
	content = styleBlock.ReplaceAllString(content, "")
	content = htmlTag.ReplaceAllString(content, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(content, " "))
}

// Excerpt returns at most limit characters of plain text, ending with an
// ellipsis when cut. limit <= 0 means DefaultExcerptLength.
func Excerpt(content string, limit int) string {
	if limit <= 0 {
		limit = DefaultExcerptLength
	}
	text := []rune(StripText(content))
	if len(text) <= limit {
		return string(text)
	}
	return strings.TrimRight(string(text[:limit-1]), " \t\n") + "…"
}

// PickImage returns the first image embedded in the post content, markdown
// before HTML. Posts without one get a fallback chosen by a stable hash of
// the id, or of the title when there is no id.
func PickImage(post models.Post, fallbacks []string) string {
	if m := markdownImage.FindStringSubmatch(post.Content); m != nil {
		return m[1]
	}
	if m := htmlImage.FindStringSubmatch(post.Content); m != nil {
		return m[1]
	}

	if len(fallbacks) == 0 {
		fallbacks = DefaultImages
	}
	key := post.ID
	if key == "" {
		key = post.Title
	}
	var hash uint32
	for _, r := range key {
		hash = hash*31 + uint32(r)
	}
	return fallbacks[hash%uint32(len(fallbacks))]
}

package blog

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

const (
	wordsPerMinute = 200
	excerptLen     = 160
)

var (
	allowedTags = toSet(
		"a", "abbr", "b", "blockquote", "br", "caption", "code", "div", "em", "figcaption", "figure",
		"h1", "h2", "h3", "h4", "h5", "h6", "hr", "i", "img", "li", "mark", "ol", "p", "pre", "s",
		"small", "span", "strong", "sub", "sup", "table", "tbody", "td", "tfoot", "th", "thead", "tr",
		"u", "ul",
	)
	allowedAttrs = toSet("alt", "class", "colspan", "height", "href", "id", "rel", "rowspan", "src", "target", "title", "width")
	urlAttrs     = toSet("href", "src")

	// dropped together with their content
	droppedTags = toSet("script", "style", "iframe", "object", "embed", "noscript", "template")
	voidTags    = toSet("embed", "img", "br", "hr")

	headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3}
)

func toSet(items ...string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// Sanitize keeps the allowlisted tags & attributes of body, dropping scripts, embeds,
// event handler attributes and javascript: URLs.
func Sanitize(body string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(body))
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken: // io.EOF or malformed input, keep what was sanitized so far
			return b.String()
		case html.TextToken:
			if skipDepth == 0 {
				b.WriteString(html.EscapeString(string(z.Text())))
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if droppedTags[tok.Data] {
				if tt == html.StartTagToken && !voidTags[tok.Data] {
					skipDepth++
				}
				continue
			}
			if skipDepth > 0 || !allowedTags[tok.Data] {
				continue
			}
			tok.Attr = cleanAttrs(tok.Attr)
			b.WriteString(tok.String())
		case html.EndTagToken:
			tok := z.Token()
			if droppedTags[tok.Data] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if skipDepth > 0 || !allowedTags[tok.Data] || voidTags[tok.Data] {
				continue
			}
			b.WriteString(tok.String())
		}
	}
}

func cleanAttrs(attrs []html.Attribute) []html.Attribute {
	cleaned := attrs[:0]
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if a.Namespace != "" || strings.HasPrefix(key, "on") || !allowedAttrs[key] {
			continue
		}
		if urlAttrs[key] && unsafeURL(a.Val) {
			continue
		}
		a.Key = key
		cleaned = append(cleaned, a)
	}
	return cleaned
}

// unsafeURL catches javascript:, vbscript: and data: (except images) schemes, ignoring obfuscating whitespace.
func unsafeURL(val string) bool {
	var b strings.Builder
	for _, r := range val {
		if r > ' ' {
			b.WriteRune(r)
		}
	}
	v := strings.ToLower(b.String())
	switch {
	case strings.HasPrefix(v, "javascript:"), strings.HasPrefix(v, "vbscript:"):
		return true
	case strings.HasPrefix(v, "data:"):
		return !strings.HasPrefix(v, "data:image/")
	}
	return false
}

// PlainText returns the whitespace-collapsed text content of body.
func PlainText(body string) string {
	var words []string
	z := html.NewTokenizer(strings.NewReader(body))
	skipDepth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(words, " ")
		case html.TextToken:
			if skipDepth == 0 {
				words = append(words, strings.Fields(string(z.Text()))...)
			}
		case html.StartTagToken:
			if name, _ := z.TagName(); droppedTags[string(name)] && !voidTags[string(name)] {
				skipDepth++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); droppedTags[string(name)] && skipDepth > 0 {
				skipDepth--
			}
		}
	}
}

// ReadingMinutes is ceil(words / 200), at least 1.
func ReadingMinutes(text string) int {
	words := len(strings.Fields(text))
	minutes := int(math.Ceil(float64(words) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Excerpt returns the first 160 characters of text.
func Excerpt(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= excerptLen {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:excerptLen]))
}

// Outline lists the h1-h3 headings of body. Anchors are the heading ids, or slugs made unique within the document.
func Outline(body string) []Heading {
	headings := make([]Heading, 0)
	seen := make(map[string]int)
	z := html.NewTokenizer(strings.NewReader(body))

	var curr *Heading
	var text []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return headings
		case html.StartTagToken:
			tok := z.Token()
			if lvl, ok := headingLevels[tok.Data]; ok && curr == nil {
				curr = &Heading{Level: lvl}
				for _, a := range tok.Attr {
					if a.Key == "id" {
						curr.Anchor = a.Val
					}
				}
				text = text[:0]
			}
		case html.TextToken:
			if curr != nil {
				text = append(text, strings.Fields(string(z.Text()))...)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if lvl, ok := headingLevels[string(name)]; ok && curr != nil && lvl == curr.Level {
				curr.Text = strings.Join(text, " ")
				if curr.Anchor == "" {
					curr.Anchor = uniqueAnchor(core.Slugify(curr.Text), seen)
				} else {
					seen[curr.Anchor]++
				}
				if curr.Text != "" {
					headings = append(headings, *curr)
				}
				curr = nil
			}
		}
	}
}

func uniqueAnchor(base string, seen map[string]int) string {
	if base == "" {
		base = "section"
	}
	seen[base]++
	if n := seen[base]; n > 1 {
		return base + "-" + strconv.Itoa(n)
	}
	return base
}

package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// minContainerTextLen is the least amount of text a keyword-matched
// <div> must hold to be accepted as the content container.
const minContainerTextLen = 200

var (
	keywordRe       = regexp.MustCompile(`(?i)(article|content|pub|body)`)
	playerClassRe   = regexp.MustCompile(`(?i)(player|audio|video|jwplayer|vjs|media|play)`)
	metadataClassRe = regexp.MustCompile(`(?i)(publication|issue|magazine|context|related|footer|language|promo|share)`)
	issueRe         = regexp.MustCompile(`(?i)\bwp\d{2}\b`)
	multiNewlineRe  = regexp.MustCompile(`\n{3,}`)
	newlineRunRe    = regexp.MustCompile(`\s*\n\s*`)
)

// controlNeedles mark player controls when found in aria-label or
// title attributes.
var controlNeedles = []string{"play", "audio", "video"}

// metadataBlockTags are the block-level tags eligible for
// publication-metadata stripping.
var metadataBlockTags = map[string]bool{
	"section": true, "div": true, "p": true, "ul": true, "ol": true,
	"li": true, "footer": true, "aside": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// FromHTML converts a fetched page into reader-mode Markdown without
// touching the network. The page URL is used to resolve relative
// links and image sources.
func FromHTML(page, baseURL string) Result {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Result{SourceURL: baseURL, Images: []Image{}}
	}

	// The fallback image scan runs against the raw page: CDN URLs often
	// live in blocks the walker strips.
	fallback := fallbackImage(page, doc, base)

	container := findContainer(doc)
	title := resolveTitle(container, doc)

	w := &walker{base: base, title: title}
	markdown := ""
	if container != nil {
		inArticle := container.Data == "article" || container.Data == "main"
		markdown = w.element(container, inArticle)
	}

	markdown = strings.TrimSpace(multiNewlineRe.ReplaceAllString(markdown, "\n\n"))
	if title != "" {
		markdown = ensureMarkdownTitle(markdown, title)
	}

	images := w.images
	if len(images) == 0 && fallback != nil {
		img := *fallback
		if img.Alt == nil {
			img.Alt = optional(title)
		}
		markdown = insertFallbackImage(markdown, img)
		images = []Image{img}
	}
	if images == nil {
		images = []Image{}
	}

	return Result{Markdown: markdown, Title: title, SourceURL: baseURL, Images: images}
}

// findContainer picks the main content element: <article>, then
// <main>, then the longest content-classed <div>, then <body>.
func findContainer(doc *goquery.Document) *html.Node {
	if sel := doc.Find("article").First(); sel.Length() > 0 {
		return sel.Get(0)
	}
	if sel := doc.Find("main").First(); sel.Length() > 0 {
		return sel.Get(0)
	}

	var best *html.Node
	bestLen := 0
	doc.Find("div").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		if !keywordRe.MatchString(elementClassID(n)) {
			return
		}
		if textLen := len(collectText(n)); textLen > bestLen {
			best, bestLen = n, textLen
		}
	})
	if best != nil && bestLen >= minContainerTextLen {
		return best
	}

	if sel := doc.Find("body").First(); sel.Length() > 0 {
		return sel.Get(0)
	}
	return nil
}

// resolveTitle prefers the first <h1> inside the container, falling
// back to the document <title>.
func resolveTitle(container *html.Node, doc *goquery.Document) string {
	if container != nil {
		if h1 := findFirstTag(container, "h1"); h1 != nil {
			if text := normalizeText(collectText(h1)); text != "" {
				return text
			}
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// walker renders a DOM subtree as Markdown, accumulating the images it
// keeps along the way.
type walker struct {
	base   *url.URL
	title  string
	images []Image
}

// element renders one element. inArticleOrMain tracks whether an
// <article> or <main> ancestor exists; headers outside one are chrome.
func (w *walker) element(n *html.Node, inArticleOrMain bool) string {
	name := n.Data

	switch name {
	// Never content.
	case "script", "style", "noscript", "svg", "form", "button",
		"audio", "video", "source", "track":
		return ""
	// Layout and navigation chrome.
	case "nav", "footer", "aside":
		return ""
	}

	if name == "header" && !inArticleOrMain {
		return ""
	}

	if isPlayerControl(n) {
		return ""
	}

	classID := elementClassID(n)
	if playerClassRe.MatchString(classID) &&
		!hasDescendantTag(n, "img") && !hasDescendantTag(n, "picture") {
		if len(normalizeText(collectText(n))) <= 20 {
			return ""
		}
	}

	if metadataBlockTags[name] && w.isMetadataBlock(n, classID) {
		return ""
	}

	childScope := inArticleOrMain || name == "article" || name == "main"

	switch name {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := normalizeText(collectText(n))
		if text == "" {
			return ""
		}
		level := int(name[1] - '0')
		return strings.Repeat("#", level) + " " + text + "\n\n"

	case "figure":
		return w.figure(n)

	case "img":
		return w.image(n)

	case "picture":
		if img := findFirstTag(n, "img"); img != nil {
			return w.image(img)
		}
		return ""

	case "a":
		content := strings.TrimSpace(w.children(n, childScope))
		if content == "" {
			return ""
		}
		if href := nodeAttr(n, "href"); href != "" {
			return fmt.Sprintf("[%s](%s)", content, resolveRef(w.base, href))
		}
		return content

	case "p":
		content := strings.TrimSpace(w.children(n, childScope))
		if content == "" {
			return ""
		}
		return content + "\n\n"

	case "br":
		return "\n"

	case "hr":
		return "\n---\n\n"

	case "ul":
		return w.list(n, childScope, false)

	case "ol":
		return w.list(n, childScope, true)

	case "li":
		content := strings.TrimSpace(w.children(n, childScope))
		if content == "" {
			return ""
		}
		return "- " + content + "\n"

	case "strong", "b":
		content := strings.TrimSpace(w.children(n, childScope))
		if content == "" {
			return ""
		}
		return "**" + content + "**"

	case "em", "i":
		content := strings.TrimSpace(w.children(n, childScope))
		if content == "" {
			return ""
		}
		return "*" + content + "*"

	case "blockquote":
		content := strings.TrimSuffix(w.children(n, childScope), "\n")
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			lines[i] = "> " + line
		}
		return strings.Join(lines, "\n") + "\n\n"

	case "pre":
		return "```\n" + collectText(n) + "\n```\n\n"

	case "code":
		return "`" + collectText(n) + "`"
	}

	return w.children(n, childScope)
}

// children renders child nodes in order, flattening source formatting
// whitespace so block lines start clean.
func (w *walker) children(n *html.Node, inArticleOrMain bool) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(textContent(c.Data))
		case html.ElementNode:
			sb.WriteString(w.element(c, inArticleOrMain))
		}
	}
	return sb.String()
}

// figure renders the figure's image plus an italic caption line and
// records both on the image list.
func (w *walker) figure(n *html.Node) string {
	img := findFirstTag(n, "img")
	if img == nil {
		return ""
	}
	src := resolveImgSrc(img, w.base)
	if src == "" {
		return ""
	}

	alt := strings.TrimSpace(nodeAttr(img, "alt"))
	caption := ""
	if fc := findFirstTag(n, "figcaption"); fc != nil {
		caption = normalizeText(collectText(fc))
	}

	w.images = append(w.images, Image{URL: src, Alt: optional(alt), Caption: optional(caption)})

	md := fmt.Sprintf("![%s](%s)\n\n", alt, src)
	if caption != "" {
		md += fmt.Sprintf("*%s*\n\n", caption)
	}
	return md
}

// image renders a standalone <img>, dropping it when no usable source
// attribute resolves.
func (w *walker) image(n *html.Node) string {
	src := resolveImgSrc(n, w.base)
	if src == "" {
		return ""
	}
	alt := strings.TrimSpace(nodeAttr(n, "alt"))
	w.images = append(w.images, Image{URL: src, Alt: optional(alt)})
	return fmt.Sprintf("![%s](%s)\n\n", alt, src)
}

// list renders the li children of a ul/ol.
func (w *walker) list(n *html.Node, inArticleOrMain, ordered bool) string {
	var sb strings.Builder
	idx := 1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		content := strings.TrimSpace(w.children(c, inArticleOrMain))
		if content == "" {
			continue
		}
		if ordered {
			fmt.Fprintf(&sb, "%d. %s\n", idx, content)
			idx++
		} else {
			sb.WriteString("- " + content + "\n")
		}
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

// isMetadataBlock reports whether a short block is publication
// metadata rather than content. Blocks carrying the article title are
// always kept.
func (w *walker) isMetadataBlock(n *html.Node, classID string) bool {
	normalized := normalizeText(collectText(n))
	if len(normalized) > 250 {
		return false
	}
	if w.title != "" && elementHasExactText(n, w.title) {
		return false
	}

	if strings.TrimSpace(classID) != "" && metadataClassRe.MatchString(classID) {
		return true
	}

	upper := strings.ToUpper(normalized)
	if strings.Contains(upper, "THE WATCHTOWER") || strings.Contains(upper, "AWAKE!") {
		return true
	}

	if issueRe.MatchString(normalized) &&
		(strings.Contains(normalized, "No.") ||
			strings.Contains(normalized, "pp.") ||
			strings.Contains(normalized, "pp ")) {
		return true
	}

	if w.title != "" {
		lower := strings.ToLower(normalized)
		if strings.Contains(lower, "english") && strings.Contains(lower, strings.ToLower(w.title)) {
			return true
		}
	}
	return false
}

// isPlayerControl recognizes audio/video widget controls by their
// accessibility attributes.
func isPlayerControl(n *html.Node) bool {
	for _, key := range []string{"aria-label", "title"} {
		val := strings.ToLower(nodeAttr(n, key))
		if val == "" {
			continue
		}
		for _, needle := range controlNeedles {
			if strings.Contains(val, needle) {
				return true
			}
		}
	}

	role := strings.ToLower(nodeAttr(n, "role"))
	if role == "button" || role == "link" {
		if strings.EqualFold(normalizeText(collectText(n)), "play") {
			return true
		}
	}
	return false
}

// ensureMarkdownTitle promotes a leading plain-text title line to an
// h1 heading. Output already starting with the heading is unchanged.
func ensureMarkdownTitle(markdown, title string) string {
	heading := "# " + title
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == heading {
			return markdown
		}
		if trimmed == title {
			lines[i] = heading
			return strings.Join(lines, "\n")
		}
		return markdown
	}
	return markdown
}

// textContent flattens a text node: formatting-only whitespace is
// dropped, and whitespace runs spanning newlines collapse to a space.
func textContent(s string) string {
	if strings.TrimSpace(s) == "" {
		if strings.ContainsRune(s, '\n') {
			return ""
		}
		return s
	}
	return newlineRunRe.ReplaceAllString(s, " ")
}

// nodeAttr returns the value of the named attribute, or "".
func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// elementClassID joins the id and class attributes for regexp checks.
func elementClassID(n *html.Node) string {
	return nodeAttr(n, "id") + " " + nodeAttr(n, "class")
}

// collectText concatenates all descendant text nodes.
func collectText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			sb.WriteString(collectText(c))
		}
	}
	return sb.String()
}

// normalizeText collapses all whitespace runs to single spaces and
// trims the ends.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// elementHasExactText reports whether the element or any descendant
// has normalized text exactly equal to target.
func elementHasExactText(n *html.Node, target string) bool {
	if normalizeText(collectText(n)) == target {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && elementHasExactText(c, target) {
			return true
		}
	}
	return false
}

// findFirstTag returns the first descendant element with the given tag
// name in document order.
func findFirstTag(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.Data == tag {
			return c
		}
		if found := findFirstTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// hasDescendantTag reports whether any descendant has the given tag.
func hasDescendantTag(n *html.Node, tag string) bool {
	return findFirstTag(n, tag) != nil
}

// optional returns nil for empty strings so absent values serialize
// as JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

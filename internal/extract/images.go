package extract

import (
	"encoding/json"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	cmsImageRe    = regexp.MustCompile(`(?i)https?://cms-imgp\.jw-cdn\.org/img/p/[^\s"'<>]+`)
	akamaiImageRe = regexp.MustCompile(`(?i)https?://assetsnffrgf-a\.akamaihd\.net/assets/[^\s"'<>]+`)
	imageSizeRe   = regexp.MustCompile(`(?i)_(xs|s|m|l|xl)(?:\b|\.|_)`)
)

// sizeLadderAttrs are checked largest-first when an <img> carries
// neither data-src nor src.
var sizeLadderAttrs = []string{
	"data-original", "data-largest", "data-large",
	"data-medium", "data-small", "data-smallest",
}

// metaImageSelectors are tried in order for the page-level image.
var metaImageSelectors = []string{
	`meta[property="og:image"]`,
	`meta[property="og:image:secure_url"]`,
	`meta[name="twitter:image"]`,
	`meta[name="twitter:image:src"]`,
	`meta[itemprop="image"]`,
}

// resolveImgSrc picks the best source attribute of an <img> and
// resolves it against the page URL. Empty means the image is unusable.
func resolveImgSrc(n *html.Node, base *url.URL) string {
	src := nodeAttr(n, "data-src")
	if src == "" {
		src = nodeAttr(n, "src")
	}
	if src == "" {
		for _, attr := range sizeLadderAttrs {
			if src = nodeAttr(n, attr); src != "" {
				break
			}
		}
	}
	if src == "" {
		srcset := nodeAttr(n, "srcset")
		if srcset == "" {
			srcset = nodeAttr(n, "data-srcset")
		}
		if srcset != "" {
			src = bestFromSrcset(srcset)
		}
	}
	if src == "" {
		return ""
	}

	if base == nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// bestFromSrcset returns the candidate with the highest width/density
// descriptor; later entries win ties.
func bestFromSrcset(srcset string) string {
	bestURL := ""
	bestScore := -1.0
	for _, part := range strings.Split(srcset, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.Fields(part)
		candidate := pieces[0]
		score := 0.0
		if len(pieces) > 1 {
			desc := pieces[1]
			if strings.HasSuffix(desc, "w") || strings.HasSuffix(desc, "x") {
				if v, err := strconv.ParseFloat(desc[:len(desc)-1], 64); err == nil {
					score = v
				}
			}
		}
		if score >= bestScore {
			bestScore, bestURL = score, candidate
		}
	}
	return bestURL
}

// scoreImageURL ranks CDN size codes embedded in the URL.
func scoreImageURL(u string) int {
	m := imageSizeRe.FindStringSubmatch(u)
	if m == nil {
		return 0
	}
	switch strings.ToLower(m[1]) {
	case "xs":
		return 1
	case "s":
		return 2
	case "m":
		return 3
	case "l":
		return 4
	case "xl":
		return 5
	}
	return 0
}

// pickBestImageURL prefers larger size codes; later occurrences win
// ties.
func pickBestImageURL(urls []string) string {
	best := ""
	bestScore := -1
	for _, u := range urls {
		if score := scoreImageURL(u); score >= bestScore {
			best, bestScore = u, score
		}
	}
	return best
}

// fallbackImage finds a representative image for pages whose content
// container yields none: meta tags, then JSON-LD, then "Image:"
// anchors, then known CDN URLs anywhere in the raw page.
func fallbackImage(page string, doc *goquery.Document, base *url.URL) *Image {
	if raw := metaImage(doc); raw != "" {
		return &Image{URL: resolveRef(base, raw)}
	}
	if raw := jsonldImage(doc); raw != "" {
		return &Image{URL: resolveRef(base, raw)}
	}
	if href, alt := imageLink(doc, base); href != "" {
		return &Image{URL: href, Alt: optional(alt)}
	}
	if best := pickBestImageURL(cmsImageRe.FindAllString(page, -1)); best != "" {
		return &Image{URL: best}
	}
	if best := pickBestImageURL(akamaiImageRe.FindAllString(page, -1)); best != "" {
		return &Image{URL: best}
	}
	return nil
}

// metaImage reads the first non-empty social/schema image meta tag.
func metaImage(doc *goquery.Document) string {
	for _, sel := range metaImageSelectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if trimmed := strings.TrimSpace(content); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// jsonldImage scans ld+json blocks for an image or thumbnailUrl value.
func jsonldImage(doc *goquery.Document) string {
	found := ""
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return true
		}
		if u := jsonldImageValue(payload); u != "" {
			found = u
			return false
		}
		return true
	})
	return found
}

// jsonldImageValue walks arbitrary JSON-LD for the first usable image
// URL: a string, a list entry, or an object with a url field, checked
// before recursing into nested values.
func jsonldImageValue(payload any) string {
	switch value := payload.(type) {
	case map[string]any:
		for _, key := range []string{"image", "thumbnailUrl"} {
			nested, ok := value[key]
			if !ok {
				continue
			}
			switch img := nested.(type) {
			case string:
				return img
			case []any:
				for _, item := range img {
					switch entry := item.(type) {
					case string:
						return entry
					case map[string]any:
						if u, ok := entry["url"].(string); ok {
							return u
						}
					}
				}
			case map[string]any:
				if u, ok := img["url"].(string); ok {
					return u
				}
			}
		}

		// Sorted keys keep the nested scan deterministic.
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if u := jsonldImageValue(value[k]); u != "" {
				return u
			}
		}
	case []any:
		for _, item := range value {
			if u := jsonldImageValue(item); u != "" {
				return u
			}
		}
	}
	return ""
}

// imageLink finds an anchor whose text announces an image ("Image:
// <alt text>") and returns its resolved href and the alt text.
func imageLink(doc *goquery.Document, base *url.URL) (string, string) {
	href, alt := "", ""
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := normalizeText(sel.Text())
		if !strings.HasPrefix(text, "Image:") {
			return true
		}
		raw, ok := sel.Attr("href")
		if !ok || raw == "" {
			return true
		}
		href = resolveRef(base, raw)
		alt = strings.TrimSpace(strings.TrimPrefix(text, "Image:"))
		return false
	})
	return href, alt
}

// insertFallbackImage places the image right after the title heading,
// or before everything else when no heading leads the document.
func insertFallbackImage(markdown string, img Image) string {
	alt := ""
	if img.Alt != nil {
		alt = *img.Alt
	}
	imageMD := "![" + alt + "](" + img.URL + ")"

	if strings.TrimSpace(markdown) == "" {
		return imageMD
	}

	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			head := strings.Join(lines[:i+1], "\n")
			tail := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			if tail != "" {
				return head + "\n\n" + imageMD + "\n\n" + tail
			}
			return head + "\n\n" + imageMD
		}
		return imageMD + "\n\n" + markdown
	}
	return imageMD + "\n\n" + markdown
}

// resolveRef resolves raw against base, returning raw untouched when
// it cannot be parsed.
func resolveRef(base *url.URL, raw string) string {
	if base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

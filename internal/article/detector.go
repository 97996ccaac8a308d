package article

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// FeedKind はニュースフィードの形式。
type FeedKind string

const (
	FeedKindRSS  FeedKind = "rss"
	FeedKindAtom FeedKind = "atom"
)

// FeedLink はニュースサイトのHTMLから見つかったフィードへのリンク。
type FeedLink struct {
	URL   string
	Kind  FeedKind
	Title string
}

var feedMediaTypes = map[string]FeedKind{
	"application/rss+xml":  FeedKindRSS,
	"application/atom+xml": FeedKindAtom,
}

var xmlMediaTypes = []string{
	"text/xml",
	"application/xml",
}

// isFeedResponse はContent-Typeとボディの先頭からRSS/Atomのレスポンスかを判定する。
// text/xmlやapplication/xmlの場合だけボディを確認する。
func isFeedResponse(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)
	if _, ok := feedMediaTypes[mediaType]; ok {
		return true
	}

	isXML := false
	for _, xmlType := range xmlMediaTypes {
		if mediaType == xmlType {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}
	return looksLikeFeed(body)
}

func isHTMLResponse(contentType string) bool {
	return strings.Contains(mediaTypeOf(contentType), "html")
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// looksLikeFeed は先頭4KBにRSS・RDF・Atomのルート要素があるかを調べる。
func looksLikeFeed(body []byte) bool {
	n := len(body)
	if n > 4096 {
		n = 4096
	}
	prefix := strings.ToLower(string(body[:n]))

	switch {
	case strings.Contains(prefix, "<rss"), strings.Contains(prefix, "<rdf:rdf"):
		return true
	case strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"):
		return true
	}
	return false
}

// feedLinksFromHTML はheadタグ内の<link rel="alternate">からフィードへのリンクを集める。
// 相対URLはbaseURLを基準に解決する。bodyタグに入った時点で解析を打ち切る。
func feedLinksFromHTML(body []byte, baseURL string) []FeedLink {
	var links []FeedLink

	base, err := url.Parse(baseURL)
	if err != nil {
		return links
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tag := string(tn)

			if tag == "head" {
				inHead = true
				continue
			}
			if tag == "body" {
				return links
			}
			if !inHead || tag != "link" || !hasAttr {
				continue
			}

			var rel, typ, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					typ = strings.ToLower(string(val))
				case "href":
					href = string(val)
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			kind, ok := feedMediaTypes[typ]
			if !ok {
				continue
			}
			resolved := resolveURL(base, href)
			if resolved == "" {
				continue
			}
			links = append(links, FeedLink{URL: resolved, Kind: kind, Title: title})

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return links
			}
		}
	}
}

// selectFeed は同一ホスト、Atom、出現順の優先度で1つのフィードを選ぶ。
func selectFeed(links []FeedLink, pageURL string) *FeedLink {
	if len(links) == 0 {
		return nil
	}

	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == pageHost {
			score += 100
		}
		if l.Kind == FeedKindAtom {
			score += 10
		}
		// 同点なら先に出現したものを残す
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return &links[best]
}

// resolveURL は相対URLをbaseを基準に絶対URLにする。
// "//host/path"形式はbaseのスキームを引き継ぐ。
func resolveURL(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

package article

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// MinContentLength はニュース記事として採用する本文の最小文字数（これを超える必要がある）。
	MinContentLength = 100

	minParagraphLength = 25
	maxParagraphs      = 12
	minParagraphs      = 2
	maxPageParagraphs  = 10

	untitledNews = "タイトル不明"
	untitledPage = "記事タイトル"
)

// 本文コンテナの探索順。
var newsBodySelectors = []string{
	"section.main-text",
	"div.main-text",
	"div#main-text",
	"div.article-body",
}

// トップページから記事リンクを探すセレクタ。先に候補が見つかったものを使う。
var frontPageLinkSelectors = []string{
	"section.box-secondary article a",
	"a.index-link",
	"a",
}

const articlePathMarker = "/articles/"

func parseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTMLの解析に失敗しました: %w", err)
	}
	return doc, nil
}

// extractPage は任意のページから記事を取り出す。
// タイトルはh1、なければtitle。本文はarticle・main・div.contentの段落を空行区切りで連結し、
// どれもなければページ先頭の段落を使う。
func extractPage(doc *goquery.Document) (title, content string) {
	title = textOf(doc.Find("h1").First())
	if title == "" {
		title = textOf(doc.Find("title").First())
	}
	if title == "" {
		title = untitledPage
	}

	container := doc.Find("article").First()
	if container.Length() == 0 {
		container = doc.Find("main").First()
	}
	if container.Length() == 0 {
		container = doc.Find("div.content").First()
	}

	var paragraphs []string
	if container.Length() > 0 {
		paragraphs = paragraphTexts(container.Find("p"), 0, -1)
	} else {
		all := doc.Find("p")
		paragraphs = paragraphTexts(all.Slice(0, min(maxPageParagraphs, all.Length())), 0, -1)
	}
	return title, strings.Join(paragraphs, "\n\n")
}

// extractNews はニュースサイトの記事ページから記事を取り出す。
// 有料記事は(ok=false)で返す。本文が短すぎる場合もok=false。
func extractNews(doc *goquery.Document) (title, content string, ok bool) {
	title = textOf(doc.Find("h1").First())
	if title == "" {
		title = untitledNews
	}

	if doc.Find(".paywall, #paywall").Length() > 0 {
		return title, "", false
	}

	for _, sel := range newsBodySelectors {
		if body := doc.Find(sel).First(); body.Length() > 0 {
			if ps := paragraphTexts(body.Find("p"), 0, -1); len(ps) > 0 {
				content = strings.Join(ps, "\n")
			} else {
				content = textOf(body)
			}
			break
		}
	}

	if content == "" {
		long := paragraphTexts(doc.Find("p"), minParagraphLength, maxParagraphs)
		if len(long) >= minParagraphs {
			content = strings.Join(long, "\n")
		}
	}

	if utf8.RuneCountInString(content) <= MinContentLength {
		return title, content, false
	}
	return title, content, true
}

// paragraphTexts は空でない段落テキストを集める。
// minLenより長いものだけを対象にし、limitが0以上ならその件数で打ち切る。
func paragraphTexts(sel *goquery.Selection, minLen, limit int) []string {
	var out []string
	sel.EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := textOf(p)
		if text == "" || utf8.RuneCountInString(text) <= minLen {
			return true
		}
		out = append(out, text)
		return limit < 0 || len(out) < limit
	})
	return out
}

// articleLinks はトップページから記事へのリンクを重複なく集め、絶対URLにする。
func articleLinks(doc *goquery.Document, pageURL string) []string {
	for _, sel := range frontPageLinkSelectors {
		var hrefs []string
		doc.Find(sel).Each(func(_ int, a *goquery.Selection) {
			if href, ok := a.Attr("href"); ok && strings.Contains(href, articlePathMarker) {
				hrefs = append(hrefs, href)
			}
		})
		if len(hrefs) > 0 {
			return absoluteUnique(hrefs, pageURL)
		}
	}
	return nil
}

func textOf(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

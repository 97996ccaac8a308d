package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/newstalk/internal/security"
)

var goodBody = `<div class="main-text"><p>` + longSentence + `</p><p>` + longSentence + `</p></div>`

func newsPage(title, body string) string {
	return `<html><head><title>` + title + `</title></head><body><h1>` + title + `</h1>` + body + `</body></html>`
}

func rssFeed(links ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Flash</title>`)
	for i, l := range links {
		fmt.Fprintf(&b, `<item><title>Item %d</title><link>%s</link></item>`, i, l)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

// newsServer はパスごとの応答を返し、リクエストされたパスを記録する。
type newsServer struct {
	*httptest.Server
	mu    sync.Mutex
	pages map[string]page
	hits  []string
}

type page struct {
	contentType string
	status      int
	body        string
}

func newNewsServer(t *testing.T) *newsServer {
	t.Helper()
	ns := &newsServer{pages: map[string]page{}}
	ns.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ns.mu.Lock()
		ns.hits = append(ns.hits, r.URL.Path)
		p, ok := ns.pages[r.URL.Path]
		ns.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" || r.Header.Get("Accept-Language") == "" {
			t.Errorf("missing browser headers on %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", p.contentType)
		if p.status != 0 {
			w.WriteHeader(p.status)
		}
		io.WriteString(w, p.body)
	}))
	t.Cleanup(ns.Close)
	return ns
}

func (ns *newsServer) html(path, body string) {
	ns.pages[path] = page{contentType: "text/html; charset=utf-8", body: body}
}

func (ns *newsServer) rss(path string, links ...string) {
	ns.pages[path] = page{contentType: "application/rss+xml", body: rssFeed(links...)}
}

func (ns *newsServer) hitCount(prefix string) int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	n := 0
	for _, h := range ns.hits {
		if strings.HasPrefix(h, prefix) {
			n++
		}
	}
	return n
}

type mockFetchRecorder struct {
	mu      sync.Mutex
	sources []string
}

func (m *mockFetchRecorder) RecordArticleFetch(source string, err error, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, source)
}

type denyAll struct{}

func (denyAll) ValidateURL(string) error { return errors.New("blocked") }

func newTestSource(ns *newsServer, feeds ...string) (*Source, *mockFetchRecorder) {
	rec := &mockFetchRecorder{}
	src := NewSource(ns.Client(), nil, security.NewTextSanitizer(), Config{
		FeedURLs: feeds,
		Timeout:  5 * time.Second,
		CacheTTL: 30 * time.Minute,
	}, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return src, rec
}

func TestFetchByURL(t *testing.T) {
	ns := newNewsServer(t)
	ns.html("/story", `<html><head><title>Site</title></head><body><h1>Rates &amp; Prices</h1><article><p>First <b>point</b>.</p><p>Second point.</p></article></body></html>`)
	src, rec := newTestSource(ns)

	art, err := src.FetchByURL(context.Background(), ns.URL+"/story")
	if err != nil {
		t.Fatalf("FetchByURL returned error: %v", err)
	}
	if art == nil {
		t.Fatal("expected article")
	}
	if art.Title != "Rates & Prices" {
		t.Errorf("title = %q", art.Title)
	}
	if art.Content != "First point.\n\nSecond point." {
		t.Errorf("content = %q", art.Content)
	}
	if art.URL != ns.URL+"/story" {
		t.Errorf("url = %q", art.URL)
	}
	if len(rec.sources) != 1 || rec.sources[0] != "url" {
		t.Errorf("recorded sources = %v", rec.sources)
	}
}

func TestFetchByURL_NoContent(t *testing.T) {
	ns := newNewsServer(t)
	ns.html("/empty", `<html><body><h1>Nothing</h1></body></html>`)
	src, _ := newTestSource(ns)

	art, err := src.FetchByURL(context.Background(), ns.URL+"/empty")
	if err != nil || art != nil {
		t.Errorf("expected (nil, nil), got (%+v, %v)", art, err)
	}
}

func TestFetchByURL_BadStatus(t *testing.T) {
	ns := newNewsServer(t)
	src, _ := newTestSource(ns)

	if _, err := src.FetchByURL(context.Background(), ns.URL+"/missing"); !errors.Is(err, ErrBadStatus) {
		t.Errorf("err = %v, want ErrBadStatus", err)
	}
}

func TestFetchByURL_BlockedURL(t *testing.T) {
	ns := newNewsServer(t)
	ns.html("/story", newsPage("Story", goodBody))
	src, _ := newTestSource(ns)
	src.validator = denyAll{}

	if _, err := src.FetchByURL(context.Background(), ns.URL+"/story"); !errors.Is(err, ErrBlockedURL) {
		t.Errorf("err = %v, want ErrBlockedURL", err)
	}
	if n := ns.hitCount("/"); n != 0 {
		t.Errorf("expected no request to blocked URL, got %d", n)
	}
}

func TestFetchAutomatic_FromRSS(t *testing.T) {
	ns := newNewsServer(t)
	ns.rss("/rss", ns.URL+"/articles/paid", ns.URL+"/articles/good", ns.URL+"/articles/other")
	ns.html("/articles/paid", newsPage("Paid", `<div class="paywall"></div>`+goodBody))
	ns.html("/articles/good", newsPage("Good news", goodBody))
	ns.html("/articles/other", newsPage("Other", goodBody))
	src, rec := newTestSource(ns, ns.URL+"/rss")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil {
		t.Fatalf("FetchAutomatic returned error: %v", err)
	}
	if art == nil || art.Title != "Good news" || art.URL != ns.URL+"/articles/good" {
		t.Fatalf("unexpected article: %+v", art)
	}
	if art.Content != longSentence+"\n"+longSentence {
		t.Errorf("content = %q", art.Content)
	}
	if ns.hitCount("/articles/other") != 0 {
		t.Error("should stop after the first usable article")
	}
	if len(rec.sources) != 1 || rec.sources[0] != "auto" {
		t.Errorf("recorded sources = %v", rec.sources)
	}
}

func TestFetchAutomatic_UsesCache(t *testing.T) {
	ns := newNewsServer(t)
	ns.rss("/rss", ns.URL+"/articles/good")
	ns.html("/articles/good", newsPage("Good news", goodBody))
	src, _ := newTestSource(ns, ns.URL+"/rss")
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	first, _ := src.FetchAutomatic(context.Background())
	first.Title = "mutated"
	second, _ := src.FetchAutomatic(context.Background())

	if ns.hitCount("/rss") != 1 {
		t.Errorf("expected cached article, feed fetched %d times", ns.hitCount("/rss"))
	}
	if second.Title != "Good news" {
		t.Errorf("cached article should not share memory with callers, got %q", second.Title)
	}

	now = now.Add(31 * time.Minute)
	if _, err := src.FetchAutomatic(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ns.hitCount("/rss") != 2 {
		t.Errorf("expected refetch after TTL, feed fetched %d times", ns.hitCount("/rss"))
	}
}

func TestFetchAutomatic_TriesAtMostThree(t *testing.T) {
	ns := newNewsServer(t)
	var links []string
	for i := 0; i < 5; i++ {
		path := fmt.Sprintf("/articles/%d", i)
		links = append(links, ns.URL+path)
		ns.html(path, newsPage("Short", `<div class="main-text"><p>Too short.</p></div>`))
	}
	ns.rss("/rss", links...)
	src, rec := newTestSource(ns, ns.URL+"/rss")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil {
		t.Fatalf("FetchAutomatic returned error: %v", err)
	}
	if art == nil || *art != FallbackArticle {
		t.Fatalf("expected fallback article, got %+v", art)
	}
	if n := ns.hitCount("/articles/"); n != MaxCandidates {
		t.Errorf("expected %d article requests, got %d", MaxCandidates, n)
	}
	if len(rec.sources) != 1 || rec.sources[0] != "fallback" {
		t.Errorf("recorded sources = %v", rec.sources)
	}

	// 練習用の記事はキャッシュしない
	src.FetchAutomatic(context.Background())
	if ns.hitCount("/rss") != 2 {
		t.Error("fallback article should not be cached")
	}
}

func TestFetchAutomatic_NoSource(t *testing.T) {
	ns := newNewsServer(t)
	ns.pages["/rss"] = page{contentType: "text/plain", status: http.StatusInternalServerError, body: "down"}
	src, _ := newTestSource(ns, ns.URL+"/rss", ns.URL+"/missing")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil || art != nil {
		t.Errorf("expected (nil, nil), got (%+v, %v)", art, err)
	}
}

func TestFetchAutomatic_NextFeedWhenFirstFails(t *testing.T) {
	ns := newNewsServer(t)
	ns.rss("/rss", ns.URL+"/articles/good")
	ns.html("/articles/good", newsPage("Good news", goodBody))
	src, _ := newTestSource(ns, ns.URL+"/down", ns.URL+"/rss")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil || art == nil || art.Title != "Good news" {
		t.Errorf("unexpected result: %+v, %v", art, err)
	}
}

func TestFetchAutomatic_FollowsFeedLinkInHTML(t *testing.T) {
	ns := newNewsServer(t)
	ns.html("/", `<html><head><link rel="alternate" type="application/rss+xml" href="/rss/flash.rss"></head><body><a href="/articles/front">front</a></body></html>`)
	ns.rss("/rss/flash.rss", ns.URL+"/articles/from-feed")
	ns.html("/articles/from-feed", newsPage("From feed", goodBody))
	ns.html("/articles/front", newsPage("From front", goodBody))
	src, _ := newTestSource(ns, ns.URL+"/")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil || art == nil || art.Title != "From feed" {
		t.Errorf("unexpected result: %+v, %v", art, err)
	}
}

func TestFetchAutomatic_FrontPageLinks(t *testing.T) {
	ns := newNewsServer(t)
	ns.html("/", `<html><body><section class="box-secondary"><article><a href="/articles/top">top</a></article></section><a href="/articles/other">other</a></body></html>`)
	ns.html("/articles/top", newsPage("Top story", goodBody))
	src, _ := newTestSource(ns, ns.URL+"/")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil || art == nil || art.Title != "Top story" {
		t.Errorf("unexpected result: %+v, %v", art, err)
	}
}

func TestFetchAutomatic_TextXMLFeed(t *testing.T) {
	ns := newNewsServer(t)
	ns.pages["/feed"] = page{contentType: "text/xml; charset=utf-8", body: rssFeed(ns.URL + "/articles/a")}
	ns.html("/articles/a", newsPage("XML feed story", goodBody))
	src, _ := newTestSource(ns, ns.URL+"/feed")

	art, err := src.FetchAutomatic(context.Background())
	if err != nil || art == nil || art.Title != "XML feed story" {
		t.Errorf("unexpected result: %+v, %v", art, err)
	}
}

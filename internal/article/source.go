// Package article はニュース記事の取得と、記事をもとにした要約・問いかけの生成を提供する。
package article

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hitoshi/newstalk/internal/model"
	"github.com/mmcdole/gofeed"
)

const (
	// MaxCandidates は自動取得で本文の抽出を試す記事の最大数。
	MaxCandidates = 3

	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLanguage = "ja,en-US;q=0.9,en;q=0.8"
)

// FallbackArticle は候補記事がすべて使えなかったときに返す練習用の記事。
var FallbackArticle = model.Article{
	Title:   "Daily English Practice",
	Content: "Today we will focus on general conversation skills. English is a global language used in business, science, and tourism. Learning English opening doors to new opportunities and cultures. Practice speaking every day to improve your fluency and confidence.",
	URL:     "https://mainichi.jp/fallback",
}

var (
	// ErrBadStatus は取得先が2xx以外を返したことを表す。
	ErrBadStatus = errors.New("article: unexpected status")
	// ErrBlockedURL は取得先URLが安全性の検証を通らなかったことを表す。
	ErrBlockedURL = errors.New("article: blocked url")
)

// URLValidator は取得前にURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// TextSanitizer は抽出したテキストからマークアップを取り除く。
type TextSanitizer interface {
	SanitizeText(raw string) string
}

// FetchRecorder は記事取得の結果を記録する。
type FetchRecorder interface {
	RecordArticleFetch(source string, err error, duration time.Duration)
}

// Config は記事取得の設定。
type Config struct {
	FeedURLs    []string
	Timeout     time.Duration
	MaxBodySize int64
	CacheTTL    time.Duration
}

// Source はURL指定の記事取得と、ニュースフィードからの自動取得を行う。
// 自動取得で得た記事はCacheTTLの間プロセス内に保持する。
type Source struct {
	client    *http.Client
	validator URLValidator
	sanitizer TextSanitizer
	feeds     *gofeed.Parser
	config    Config
	recorder  FetchRecorder
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	cached   *model.Article
	cachedAt time.Time
}

// NewSource はSourceを生成する。clientにはSSRF防止付きのクライアントを渡す。
func NewSource(client *http.Client, validator URLValidator, sanitizer TextSanitizer, config Config, recorder FetchRecorder, logger *slog.Logger) *Source {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 5 * 1024 * 1024
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &Source{
		client:    client,
		validator: validator,
		sanitizer: sanitizer,
		feeds:     gofeed.NewParser(),
		config:    config,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// FetchByURL は指定されたページから記事を取得する。
// 本文が見つからない場合はnil, nilを返す。
func (s *Source) FetchByURL(ctx context.Context, rawURL string) (*model.Article, error) {
	start := s.now()
	art, err := s.fetchPage(ctx, rawURL)
	s.record("url", err, start)
	return art, err
}

func (s *Source) fetchPage(ctx context.Context, rawURL string) (*model.Article, error) {
	body, _, err := s.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}

	title, content := extractPage(doc)
	content = s.sanitizer.SanitizeText(content)
	if content == "" {
		s.logger.WarnContext(ctx, "記事本文を抽出できませんでした", slog.String("url", rawURL))
		return nil, nil
	}
	return &model.Article{
		Title:   s.sanitizer.SanitizeText(title),
		Content: content,
		URL:     rawURL,
	}, nil
}

// FetchAutomatic は設定されたニュースフィードから記事を1件選んで返す。
// 候補記事が見つかったのに本文を取得できなかった場合はFallbackArticleを返し、
// どのフィードからも候補を得られなかった場合はnil, nilを返す。
func (s *Source) FetchAutomatic(ctx context.Context) (*model.Article, error) {
	if art := s.fromCache(); art != nil {
		s.logger.DebugContext(ctx, "キャッシュ済みの記事を使います", slog.String("url", art.URL))
		return art, nil
	}

	start := s.now()
	sawCandidates := false
	var lastErr error

	for _, feedURL := range s.config.FeedURLs {
		links, err := s.candidateLinks(ctx, feedURL)
		if err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "ニュースフィードの取得に失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(links) == 0 {
			continue
		}
		sawCandidates = true

		for _, link := range links[:min(MaxCandidates, len(links))] {
			art, err := s.fetchNews(ctx, link)
			if err != nil {
				s.logger.WarnContext(ctx, "候補記事の取得に失敗しました",
					slog.String("url", link),
					slog.String("error", err.Error()),
				)
				continue
			}
			if art == nil {
				continue
			}
			s.record("auto", nil, start)
			s.store(art)
			return art, nil
		}
	}

	if sawCandidates {
		s.logger.WarnContext(ctx, "候補記事から本文を取得できなかったため練習用の記事を使います")
		s.record("fallback", nil, start)
		fallback := FallbackArticle
		return &fallback, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no article links")
	}
	s.record("auto", lastErr, start)
	return nil, nil
}

// candidateLinks はフィードURLから記事URLの候補を集める。
// RSS/Atomならアイテムのリンクを、HTMLならheadのフィードリンクをたどるか、
// ページ内の記事リンクを使う。
func (s *Source) candidateLinks(ctx context.Context, pageURL string) ([]string, error) {
	body, contentType, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if isFeedResponse(contentType, body) ||
		(!isHTMLResponse(contentType) && gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown) {
		return s.feedItemLinks(body, pageURL)
	}

	if feed := selectFeed(feedLinksFromHTML(body, pageURL), pageURL); feed != nil {
		feedBody, _, err := s.get(ctx, feed.URL)
		if err == nil {
			if links, err := s.feedItemLinks(feedBody, feed.URL); err == nil && len(links) > 0 {
				return links, nil
			}
		}
		s.logger.DebugContext(ctx, "ページ内のフィードを利用できませんでした", slog.String("feed_url", feed.URL))
	}

	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}
	return articleLinks(doc, pageURL), nil
}

func (s *Source) feedItemLinks(body []byte, feedURL string) ([]string, error) {
	feed, err := s.feeds.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードの解析に失敗しました: %w", err)
	}
	hrefs := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item != nil && item.Link != "" {
			hrefs = append(hrefs, item.Link)
		}
	}
	return absoluteUnique(hrefs, feedURL), nil
}

// fetchNews は記事ページを取得して本文を抽出する。
// 有料記事や本文が短すぎる記事はnil, nilを返す。
func (s *Source) fetchNews(ctx context.Context, link string) (*model.Article, error) {
	body, _, err := s.get(ctx, link)
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}

	title, content, ok := extractNews(doc)
	if !ok {
		s.logger.InfoContext(ctx, "有料記事または本文が短い記事をスキップしました",
			slog.String("url", link),
			slog.String("title", title),
		)
		return nil, nil
	}
	return &model.Article{
		Title:   s.sanitizer.SanitizeText(title),
		Content: s.sanitizer.SanitizeText(content),
		URL:     link,
	}, nil
}

// get はURLを検証してからGETし、ボディとContent-Typeを返す。
func (s *Source) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if s.validator != nil {
		if err := s.validator.ValidateURL(rawURL); err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBlockedURL, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Accept", "text/html, application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (s *Source) fromCache() *model.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil || s.config.CacheTTL <= 0 || s.now().Sub(s.cachedAt) >= s.config.CacheTTL {
		return nil
	}
	art := *s.cached
	return &art
}

func (s *Source) store(art *model.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *art
	s.cached = &cp
	s.cachedAt = s.now()
}

func (s *Source) record(source string, err error, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordArticleFetch(source, err, s.now().Sub(start))
	}
}

// absoluteUnique はリンクをbaseURL基準の絶対URLにし、出現順を保って重複を除く。
func absoluteUnique(hrefs []string, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, h := range hrefs {
		abs := resolveURL(base, h)
		if abs == "" {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}

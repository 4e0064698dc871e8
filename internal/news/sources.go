package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/warroom-labs/warroom/internal/httpx"
	"github.com/warroom-labs/warroom/internal/models"
)

// DefaultFeeds are the RSS sources polled every cycle.
var DefaultFeeds = []string{
	"https://feeds.reuters.com/reuters/businessNews",
	"https://feeds.bloomberg.com/markets/news.rss",
	"https://www.cnbc.com/id/100003114/device/rss/rss.html",
	"https://feeds.marketwatch.com/marketwatch/topstories/",
}

// DefaultSubreddits are the read-only social aggregation sources.
var DefaultSubreddits = []string{"wallstreetbets", "stocks", "investing"}

// Throttle is the slice of the rate limiter the fetcher needs.
type Throttle interface {
	WaitIfNeeded(ctx context.Context, endpoint string) error
	RecordRequest(endpoint string)
	TriggerBackoff(endpoint string) time.Duration
}

// Fetcher pulls articles from every configured source concurrently and
// joins the results. Individual source failures degrade to an empty
// contribution.
type Fetcher struct {
	http       *httpx.Client
	limiter    Throttle
	feeds      []string
	subreddits []string
	avKey      string
}

// NewFetcher builds a fetcher over the default source set. An empty Alpha
// Vantage key disables the paid sentiment feed.
func NewFetcher(client *httpx.Client, limiter Throttle, alphaVantageKey string) *Fetcher {
	return &Fetcher{
		http:       client,
		limiter:    limiter,
		feeds:      DefaultFeeds,
		subreddits: DefaultSubreddits,
		avKey:      alphaVantageKey,
	}
}

// FetchAll fans out to every source and joins. Never returns an error:
// a full outage yields an empty batch.
func (f *Fetcher) FetchAll(ctx context.Context) []models.Article {
	var mu sync.Mutex
	var all []models.Article

	g, ctx := errgroup.WithContext(ctx)
	for _, feed := range f.feeds {
		g.Go(func() error {
			articles, err := f.fetchRSS(ctx, feed)
			if err != nil {
				log.Warn().Err(err).Str("feed", feed).Msg("rss fetch failed")
				return nil
			}
			mu.Lock()
			all = append(all, articles...)
			mu.Unlock()
			return nil
		})
	}
	for _, sub := range f.subreddits {
		g.Go(func() error {
			articles, err := f.fetchReddit(ctx, sub)
			if err != nil {
				log.Warn().Err(err).Str("subreddit", sub).Msg("reddit fetch failed")
				return nil
			}
			mu.Lock()
			all = append(all, articles...)
			mu.Unlock()
			return nil
		})
	}
	if f.avKey != "" {
		g.Go(func() error {
			articles, err := f.fetchAlphaVantage(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("alphavantage news fetch failed")
				return nil
			}
			mu.Lock()
			all = append(all, articles...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return all
}

type avNewsFeed struct {
	Feed []avNewsItem `json:"feed"`
}

type avNewsItem struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	TimePublished string `json:"time_published"`
	Summary       string `json:"summary"`
	Source        string `json:"source"`
}

func (f *Fetcher) fetchAlphaVantage(ctx context.Context) ([]models.Article, error) {
	if err := f.limiter.WaitIfNeeded(ctx, "alphavantage"); err != nil {
		return nil, err
	}
	url := "https://www.alphavantage.co/query?function=NEWS_SENTIMENT&topics=financial_markets&sort=LATEST&limit=50&apikey=" + f.avKey
	var feed avNewsFeed
	if err := f.http.GetJSON(ctx, "alphavantage", url, nil, &feed); err != nil {
		f.limiter.TriggerBackoff("alphavantage")
		return nil, err
	}
	f.limiter.RecordRequest("alphavantage")
	return mapAVFeed(feed), nil
}

func mapAVFeed(feed avNewsFeed) []models.Article {
	out := make([]models.Article, 0, len(feed.Feed))
	for _, item := range feed.Feed {
		if item.Title == "" {
			continue
		}
		source := item.Source
		if source == "" {
			source = "alphavantage"
		}
		out = append(out, models.Article{
			Title:       strings.TrimSpace(item.Title),
			Description: truncateText(item.Summary, 500),
			Source:      source,
			URL:         item.URL,
			PublishedAt: parseAVTime(item.TimePublished),
		})
	}
	return out
}

// parseAVTime parses the compact Alpha Vantage timestamp (20060102T150405).
func parseAVTime(s string) time.Time {
	t, err := time.Parse("20060102T150405", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Description string `xml:"description"`
	Link        string `xml:"link"`
	PubDate     string `xml:"pubDate"`
}

func (f *Fetcher) fetchRSS(ctx context.Context, feedURL string) ([]models.Article, error) {
	if err := f.limiter.WaitIfNeeded(ctx, "rss"); err != nil {
		return nil, err
	}
	body, err := f.http.Get(ctx, "rss", feedURL, nil)
	if err != nil {
		f.limiter.TriggerBackoff("rss")
		return nil, err
	}
	f.limiter.RecordRequest("rss")
	return parseRSS(body, feedURL)
}

func parseRSS(body []byte, feedURL string) ([]models.Article, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse rss %s: %w", feedURL, err)
	}
	source := feed.Channel.Title
	if source == "" {
		source = feedURL
	}
	out := make([]models.Article, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		if item.Title == "" {
			continue
		}
		out = append(out, models.Article{
			Title:       strings.TrimSpace(item.Title),
			Description: stripTags(item.Description),
			Source:      source,
			URL:         strings.TrimSpace(item.Link),
			PublishedAt: parsePubDate(item.PubDate),
		})
	}
	return out, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Permalink  string  `json:"permalink"`
				CreatedUTC float64 `json:"created_utc"`
				Score      int     `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (f *Fetcher) fetchReddit(ctx context.Context, subreddit string) ([]models.Article, error) {
	if err := f.limiter.WaitIfNeeded(ctx, "reddit"); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://www.reddit.com/r/%s/hot.json?limit=15", subreddit)
	var listing redditListing
	if err := f.http.GetJSON(ctx, "reddit", url, nil, &listing); err != nil {
		f.limiter.TriggerBackoff("reddit")
		return nil, err
	}
	f.limiter.RecordRequest("reddit")

	out := make([]models.Article, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Title == "" || post.Score < 50 {
			continue
		}
		out = append(out, models.Article{
			Title:          post.Title,
			Description:    truncateText(post.Selftext, 500),
			Source:         "reddit/r/" + subreddit,
			URL:            "https://www.reddit.com" + post.Permalink,
			PublishedAt:    time.Unix(int64(post.CreatedUTC), 0).UTC(),
			RelevanceScore: float64(post.Score),
		})
	}
	return out, nil
}

var pubDateFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range pubDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

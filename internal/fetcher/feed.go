package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/document"
)

// SourceFeed labels feed requests in logs and metrics
const SourceFeed = "feed"

const publishedLayout = "2006-01-02T15:04:05Z"

// FeedFetcher pages through an arXiv style Atom query
type FeedFetcher struct {
	client *Client
	cfg    config.SourceConfig
	logger *logrus.Entry
}

func NewFeedFetcher(client *Client, cfg config.SourceConfig, logger *logrus.Entry) *FeedFetcher {
	if logger == nil {
		logger = logrus.WithField("component", "feed_fetcher")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &FeedFetcher{client: client, cfg: cfg, logger: logger}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// Fetch collects up to count entries about theme starting at feed
// position start. Entries with a summary shorter than the configured
// minimum are skipped. Source failures end the walk early; only a context
// error is returned.
func (f *FeedFetcher) Fetch(ctx context.Context, theme string, count, start int) ([]*document.Document, error) {
	var docs []*document.Document
	cursor := max(start, 0)
	logger := f.logger.WithField("theme", theme)

	for len(docs) < count {
		limit := min(count-len(docs), f.cfg.PageSize)
		body, err := f.client.Get(ctx, SourceFeed, f.pageURL(theme, cursor, limit))
		if err != nil {
			if ctx.Err() != nil {
				return docs, ctx.Err()
			}
			logger.WithError(err).Warn("Feed request failed, returning partial result")
			break
		}

		var feed atomFeed
		if err := xml.Unmarshal(body, &feed); err != nil {
			logger.WithError(err).Warn("Malformed feed, returning partial result")
			break
		}
		if len(feed.Entries) == 0 {
			logger.Debug("Feed exhausted")
			break
		}

		kept := 0
		for i, entry := range feed.Entries {
			if utf8.RuneCountInString(entry.Summary) < f.cfg.MinTextLength {
				continue
			}
			docs = append(docs, entry.toDocument(cursor+i))
			kept++
			if len(docs) == count {
				break
			}
		}
		f.client.metrics.AddFetched(SourceFeed, kept)
		cursor += len(feed.Entries)
	}

	return docs, nil
}

func (f *FeedFetcher) pageURL(theme string, start, maxResults int) string {
	q := url.Values{}
	q.Set("search_query", "all:"+theme)
	q.Set("start", strconv.Itoa(start))
	q.Set("max_results", strconv.Itoa(maxResults))
	return fmt.Sprintf("%s/api/query?%s", strings.TrimRight(f.cfg.BaseURL, "/"), q.Encode())
}

func (e atomEntry) toDocument(apiIndex int) *document.Document {
	var date time.Time
	if e.Published != "" {
		if t, err := time.Parse(publishedLayout, strings.TrimSpace(e.Published)); err == nil {
			date = t
		}
	}

	var author string
	var coAuthors []string
	for i, a := range e.Authors {
		if i == 0 {
			author = a.Name
			continue
		}
		coAuthors = append(coAuthors, a.Name)
	}

	return document.NewFeed(document.Fields{
		Title:  e.Title,
		Author: author,
		Date:   date,
		URL:    e.ID,
		Text:   e.Summary,
	}, coAuthors, apiIndex)
}

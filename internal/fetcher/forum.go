package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/document"
)

// SourceForum labels forum requests in logs and metrics
const SourceForum = "forum"

// ForumFetcher pages through the hot listing of a subreddit
type ForumFetcher struct {
	client *Client
	cfg    config.SourceConfig
	logger *logrus.Entry
}

func NewForumFetcher(client *Client, cfg config.SourceConfig, logger *logrus.Entry) *ForumFetcher {
	if logger == nil {
		logger = logrus.WithField("component", "forum_fetcher")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &ForumFetcher{client: client, cfg: cfg, logger: logger}
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	CreatedUTC   float64 `json:"created_utc"`
	URL          string  `json:"url"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	NumComments  int     `json:"num_comments"`
}

// Fetch collects up to count posts about theme, starting after the post
// whose fullname is after (empty for the top of the listing). Posts whose
// body is shorter than the configured minimum are skipped but still move
// the cursor. Source failures end the walk early; only a context error
// is returned.
func (f *ForumFetcher) Fetch(ctx context.Context, theme string, count int, after string) ([]*document.Document, error) {
	var docs []*document.Document
	cursor := after
	logger := f.logger.WithField("theme", theme)

	for len(docs) < count {
		limit := min(count-len(docs), f.cfg.PageSize)
		body, err := f.client.Get(ctx, SourceForum, f.pageURL(theme, limit, cursor))
		if err != nil {
			if ctx.Err() != nil {
				return docs, ctx.Err()
			}
			logger.WithError(err).Warn("Forum request failed, returning partial result")
			break
		}

		var page listing
		if err := json.Unmarshal(body, &page); err != nil {
			logger.WithError(err).Warn("Malformed forum listing, returning partial result")
			break
		}
		if len(page.Data.Children) == 0 {
			logger.Debug("Forum listing exhausted")
			break
		}

		kept := 0
		next := cursor
		for _, child := range page.Data.Children {
			p := child.Data
			if p.Name != "" {
				next = p.Name
			}
			text := p.Selftext
			if strings.TrimSpace(text) == "" && p.SelftextHTML != "" {
				text = extractText(p.SelftextHTML)
			}
			if utf8.RuneCountInString(text) < f.cfg.MinTextLength {
				continue
			}
			docs = append(docs, p.toDocument(text))
			kept++
			if len(docs) == count {
				break
			}
		}
		f.client.metrics.AddFetched(SourceForum, kept)

		if next == cursor {
			break
		}
		cursor = next
	}

	return docs, nil
}

func (f *ForumFetcher) pageURL(theme string, limit int, after string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	return fmt.Sprintf("%s/r/%s/hot.json?%s", strings.TrimRight(f.cfg.BaseURL, "/"), url.PathEscape(theme), q.Encode())
}

func (p post) toDocument(text string) *document.Document {
	var date time.Time
	if p.CreatedUTC > 0 {
		sec := int64(p.CreatedUTC)
		date = time.Unix(sec, int64((p.CreatedUTC-float64(sec))*1e9)).UTC()
	}
	return document.NewForum(document.Fields{
		Title:  p.Title,
		Author: p.Author,
		Date:   date,
		URL:    p.URL,
		Text:   text,
	}, p.NumComments, p.Name)
}

// extractText returns the visible text of an HTML fragment. The fragment
// may arrive entity-escaped, as in listing JSON without raw_json.
func extractText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		fragment = html.UnescapeString(fragment)
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	var textBuilder strings.Builder
	inScript := false
	inStyle := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() != io.EOF {
				return ""
			}
			return strings.Join(strings.Fields(textBuilder.String()), " ")

		case html.StartTagToken:
			switch tokenizer.Token().Data {
			case "script":
				inScript = true
			case "style":
				inStyle = true
			}

		case html.EndTagToken:
			switch tokenizer.Token().Data {
			case "script":
				inScript = false
			case "style":
				inStyle = false
			}

		case html.TextToken:
			if !inScript && !inStyle {
				textBuilder.WriteString(tokenizer.Token().Data)
				textBuilder.WriteString(" ")
			}
		}
	}
}

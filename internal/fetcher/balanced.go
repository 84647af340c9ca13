package fetcher

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/corpus/internal/config"
	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/metrics"
	"github.com/knowledge-engine/corpus/internal/politeness"
)

// Cursor is where a balanced fetch resumes in each source
type Cursor struct {
	// ForumAfter is the fullname of the last forum post already held
	ForumAfter string
	// FeedStart is the first feed position not yet held
	FeedStart int
}

// Fetcher splits a document budget between the forum and the feed
type Fetcher struct {
	forum  *ForumFetcher
	feed   *FeedFetcher
	logger *logrus.Entry
}

func New(forum *ForumFetcher, feed *FeedFetcher, logger *logrus.Entry) *Fetcher {
	if logger == nil {
		logger = logrus.WithField("component", "fetcher")
	}
	return &Fetcher{forum: forum, feed: feed, logger: logger}
}

// NewFromConfig wires both sources behind one shared client
func NewFromConfig(cfg *config.Config, pm *politeness.Manager, rec *metrics.Recorder, logger *logrus.Entry) *Fetcher {
	if logger == nil {
		logger = logrus.WithField("component", "fetcher")
	}
	client := NewClient(cfg, pm, rec, logger)
	return New(
		NewForumFetcher(client, cfg.Forum, logger.WithField("source", SourceForum)),
		NewFeedFetcher(client, cfg.Feed, logger.WithField("source", SourceFeed)),
		logger,
	)
}

// FetchBalanced asks the forum for count/2 documents and the feed for the
// rest. When exactly one side falls short, the other tops up the gap from
// where it stopped. Forum documents come first in the result.
func (f *Fetcher) FetchBalanced(ctx context.Context, theme string, count int, cursor Cursor) ([]*document.Document, error) {
	if count <= 0 {
		return nil, nil
	}
	forumWant := count / 2
	feedWant := count - forumWant
	logger := f.logger.WithFields(logrus.Fields{"theme": theme, "count": count})

	forumDocs, err := f.forum.Fetch(ctx, theme, forumWant, cursor.ForumAfter)
	if err != nil {
		return nil, err
	}
	feedDocs, err := f.feed.Fetch(ctx, theme, feedWant, cursor.FeedStart)
	if err != nil {
		return nil, err
	}

	switch {
	case len(forumDocs) < forumWant && len(feedDocs) == feedWant:
		logger.Info("Forum documents compensated by feed")
		more, err := f.feed.Fetch(ctx, theme, forumWant-len(forumDocs), nextFeedStart(feedDocs, cursor.FeedStart))
		if err != nil {
			return nil, err
		}
		feedDocs = append(feedDocs, more...)

	case len(feedDocs) < feedWant && len(forumDocs) == forumWant:
		logger.Info("Feed documents compensated by forum")
		more, err := f.forum.Fetch(ctx, theme, feedWant-len(feedDocs), nextForumAfter(forumDocs, cursor.ForumAfter))
		if err != nil {
			return nil, err
		}
		forumDocs = append(forumDocs, more...)
	}

	docs := make([]*document.Document, 0, len(forumDocs)+len(feedDocs))
	docs = append(docs, forumDocs...)
	docs = append(docs, feedDocs...)
	if len(docs) < count {
		logger.WithField("fetched", len(docs)).Warn("Not enough documents to fill corpus")
	}
	return docs, nil
}

func nextFeedStart(docs []*document.Document, start int) int {
	if len(docs) == 0 {
		return start
	}
	return docs[len(docs)-1].APIIndex() + 1
}

func nextForumAfter(docs []*document.Document, after string) string {
	if len(docs) == 0 {
		return after
	}
	return docs[len(docs)-1].SourceHandle()
}

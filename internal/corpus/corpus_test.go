package corpus_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/corpus/internal/corpus"
	"github.com/knowledge-engine/corpus/internal/document"
	"github.com/knowledge-engine/corpus/internal/fetcher"
	"github.com/knowledge-engine/corpus/internal/storage"
)

func init() {
	logrus.SetLevel(logrus.WarnLevel)
}

// Mocks

type MockAcquirer struct {
	mock.Mock
}

func (m *MockAcquirer) FetchBalanced(ctx context.Context, theme string, count int, cursor fetcher.Cursor) ([]*document.Document, error) {
	args := m.Called(ctx, theme, count, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*document.Document), args.Error(1)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Exists(name string) bool {
	return m.Called(name).Bool(0)
}

func (m *MockStore) Load(name string) ([]*document.Document, error) {
	args := m.Called(name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*document.Document), args.Error(1)
}

func (m *MockStore) Save(name string, docs []*document.Document) error {
	return m.Called(name, docs).Error(0)
}

var day = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

func forumDoc(handle, title, text string) *document.Document {
	return document.NewForum(document.Fields{Title: title, Author: "poster " + handle, Date: day, Text: text}, 0, handle)
}

func feedDoc(index int, author string, coAuthors []string, text string) *document.Document {
	return document.NewFeed(document.Fields{
		Title:  fmt.Sprintf("paper %d", index),
		Author: author,
		Date:   day.AddDate(0, 0, index),
		Text:   text,
	}, coAuthors, index)
}

func snapshotRows(n int) []*document.Document {
	docs := make([]*document.Document, n)
	for i := range docs {
		if i%2 == 0 {
			docs[i] = forumDoc(fmt.Sprintf("t3_%d", i), fmt.Sprintf("post %d", i), "goal keeper saves the match")
		} else {
			docs[i] = feedDoc(i, "Ada", nil, "graph theory of football passes")
		}
	}
	return docs
}

func TestLoad_FetchesWhenNoSnapshot(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	docs := []*document.Document{
		forumDoc("t3_a", "Derby", "the derby ended with a late goal"),
		forumDoc("t3_b", "Transfer", "a new striker joins the club"),
		feedDoc(0, "Ada", []string{"Bea"}, "expected goals model for football"),
		feedDoc(1, "Bea", nil, "passing networks in football"),
	}
	store.On("Exists", "football").Return(false)
	acq.On("FetchBalanced", mock.Anything, "football", 4, fetcher.Cursor{}).Return(docs, nil)

	c := corpus.New("football", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 4))

	assert.True(t, c.Loaded())
	assert.False(t, c.Persisted())
	assert.Equal(t, 4, c.DocumentCount())
	assert.Equal(t, 4, c.AuthorCount())
	assert.True(t, c.IsSame("football", 4))
	assert.False(t, c.IsSame("football", 5))
	assert.False(t, c.IsSame("chess", 4))

	bea, ok := c.Author("Bea")
	require.True(t, ok)
	assert.Equal(t, 2, bea.DocumentCount())

	first, ok := c.Document(0)
	require.True(t, ok)
	assert.Equal(t, "Derby", first.Title())
	_, ok = c.Document(4)
	assert.False(t, ok)

	store.On("Save", "football", mock.Anything).Return(nil)
	require.NoError(t, c.Save())
	assert.True(t, c.Persisted())

	acq.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestLoad_SnapshotLargeEnoughSkipsFetch(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	store.On("Exists", "football").Return(true)
	store.On("Load", "football").Return(snapshotRows(20), nil)

	c := corpus.New("football", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 20))

	assert.Equal(t, 20, c.DocumentCount())
	assert.True(t, c.Persisted())
	acq.AssertNotCalled(t, "FetchBalanced", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoad_SnapshotTruncatedToCount(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	rows := snapshotRows(20)
	store.On("Exists", "football").Return(true)
	store.On("Load", "football").Return(rows, nil)

	c := corpus.New("football", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 10))

	assert.Equal(t, 10, c.DocumentCount())
	assert.True(t, c.Persisted())
	last, _ := c.Document(9)
	assert.Same(t, rows[9], last)
	acq.AssertNotCalled(t, "FetchBalanced", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoad_TopsUpWithContinuationCursor(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	restored := []*document.Document{
		forumDoc("t3_a", "one", "first forum post"),
		feedDoc(4, "Ada", nil, "first paper"),
		forumDoc("t3_b", "two", "second forum post"),
		feedDoc(2, "Cy", nil, "earlier paper"),
	}
	fresh := []*document.Document{
		forumDoc("t3_c", "three", "third forum post"),
		feedDoc(5, "Dan", nil, "next paper"),
	}
	store.On("Exists", "football").Return(true)
	store.On("Load", "football").Return(restored, nil)
	acq.On("FetchBalanced", mock.Anything, "football", 2, fetcher.Cursor{ForumAfter: "t3_b", FeedStart: 5}).Return(fresh, nil)

	c := corpus.New("football", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 6))

	assert.Equal(t, 6, c.DocumentCount())
	assert.False(t, c.Persisted())
	doc, _ := c.Document(4)
	assert.Equal(t, "t3_c", doc.SourceHandle())
	doc, _ = c.Document(5)
	assert.Equal(t, 5, doc.APIIndex())
	acq.AssertExpectations(t)
}

func TestLoad_DropsDocumentsAlreadyHeld(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	restored := []*document.Document{forumDoc("t3_a", "one", "first forum post")}
	fresh := []*document.Document{
		forumDoc("t3_a", "one again", "first forum post"),
		feedDoc(0, "Ada", nil, "a paper"),
	}
	store.On("Exists", "football").Return(true)
	store.On("Load", "football").Return(restored, nil)
	acq.On("FetchBalanced", mock.Anything, "football", 2, fetcher.Cursor{ForumAfter: "t3_a"}).Return(fresh, nil)

	c := corpus.New("football", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 3))

	assert.Equal(t, 2, c.DocumentCount())
	first, _ := c.Document(0)
	assert.Equal(t, "one", first.Title())
}

func TestLoad_MalformedSnapshotLeavesCorpusUnchanged(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	store.On("Exists", "football").Return(true)
	store.On("Load", "football").Return(nil, storage.ErrMissingColumn)

	c := corpus.New("football", acq, store, nil)
	err := c.Load(context.Background(), 5)

	assert.ErrorIs(t, err, storage.ErrMissingColumn)
	assert.False(t, c.Loaded())
	assert.Zero(t, c.DocumentCount())
	acq.AssertNotCalled(t, "FetchBalanced", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLoad_ShortfallIsNotAnError(t *testing.T) {
	acq := new(MockAcquirer)
	docs := []*document.Document{forumDoc("t3_a", "one", "only post"), feedDoc(0, "Ada", nil, "only paper")}
	acq.On("FetchBalanced", mock.Anything, "chess", 10, fetcher.Cursor{}).Return(docs, nil)

	c := corpus.New("chess", acq, nil, nil)
	require.NoError(t, c.Load(context.Background(), 10))
	assert.Equal(t, 2, c.DocumentCount())
	assert.False(t, c.IsSame("chess", 10))
}

func TestLoad_FailureKeepsPreviousState(t *testing.T) {
	acq := new(MockAcquirer)
	first := []*document.Document{forumDoc("t3_a", "one", "only post")}
	acq.On("FetchBalanced", mock.Anything, "chess", 1, fetcher.Cursor{}).Return(first, nil).Once()
	acq.On("FetchBalanced", mock.Anything, "chess", 3, fetcher.Cursor{}).Return(nil, context.Canceled).Once()

	c := corpus.New("chess", acq, nil, nil)
	require.NoError(t, c.Load(context.Background(), 1))

	err := c.Load(context.Background(), 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, c.Loaded())
	assert.Equal(t, 1, c.DocumentCount())
}

func TestLoad_InvalidCount(t *testing.T) {
	c := corpus.New("chess", new(MockAcquirer), nil, nil)
	assert.Error(t, c.Load(context.Background(), 0))
	assert.Error(t, c.Load(context.Background(), -3))
}

func TestSave_RequiresLoad(t *testing.T) {
	c := corpus.New("chess", nil, new(MockStore), nil)
	assert.ErrorIs(t, c.Save(), corpus.ErrNotLoaded)
}

func TestSave_PropagatesStoreError(t *testing.T) {
	acq := new(MockAcquirer)
	store := new(MockStore)
	store.On("Exists", "chess").Return(false)
	store.On("Save", "chess", mock.Anything).Return(errors.New("disk full"))
	acq.On("FetchBalanced", mock.Anything, "chess", 1, fetcher.Cursor{}).Return([]*document.Document{forumDoc("t3_a", "t", "x")}, nil)

	c := corpus.New("chess", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 1))
	assert.Error(t, c.Save())
	assert.False(t, c.Persisted())
}

func TestLoad_RoundTripThroughCSVStore(t *testing.T) {
	store, err := storage.NewCSVStore(t.TempDir(), "\t")
	require.NoError(t, err)

	acq := new(MockAcquirer)
	acq.On("FetchBalanced", mock.Anything, "python", 20, fetcher.Cursor{}).Return(snapshotRows(20), nil).Once()

	c := corpus.New("python", acq, store, nil)
	require.NoError(t, c.Load(context.Background(), 20))
	require.NoError(t, c.Save())

	reloaded := corpus.New("python", acq, store, nil)
	require.NoError(t, reloaded.Load(context.Background(), 20))
	assert.True(t, reloaded.Persisted())
	assert.Equal(t, c.Texts(), reloaded.Texts())
	assert.Equal(t, c.Index().Size(), reloaded.Index().Size())
	acq.AssertNumberOfCalls(t, "FetchBalanced", 1)
}

func TestDocuments_SortOrders(t *testing.T) {
	acq := new(MockAcquirer)
	docs := []*document.Document{
		feedDoc(3, "Ada", nil, "c"),
		forumDoc("t3_a", "alpha", "a"),
		feedDoc(1, "Bea", nil, "b"),
	}
	acq.On("FetchBalanced", mock.Anything, "chess", 3, fetcher.Cursor{}).Return(docs, nil)

	c := corpus.New("chess", acq, nil, nil)
	require.NoError(t, c.Load(context.Background(), 3))

	titles := func(ds []*document.Document) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = d.Title()
		}
		return out
	}
	assert.Equal(t, []string{"paper 3", "alpha", "paper 1"}, titles(c.Documents(corpus.SortNone)))
	assert.Equal(t, []string{"alpha", "paper 1", "paper 3"}, titles(c.Documents(corpus.SortTitle)))
	assert.Equal(t, []string{"alpha", "paper 1", "paper 3"}, titles(c.Documents(corpus.SortDate)))
}

func TestRetrieval(t *testing.T) {
	acq := new(MockAcquirer)
	docs := []*document.Document{
		forumDoc("t3_a", "one", "the keeper saved a penalty in the final"),
		forumDoc("t3_b", "two", "a striker scored in the final minute"),
		feedDoc(0, "Ada", nil, "statistics of penalty kicks"),
	}
	acq.On("FetchBalanced", mock.Anything, "football", 3, fetcher.Cursor{}).Return(docs, nil)
	c := corpus.New("football", acq, nil, nil)

	_, _, err := c.Search("penalty", 5)
	assert.ErrorIs(t, err, corpus.ErrNotLoaded)
	_, err = c.FindContext("penalty", 2)
	assert.ErrorIs(t, err, corpus.ErrNotLoaded)
	_, _, err = c.TopTerms(3)
	assert.ErrorIs(t, err, corpus.ErrNotLoaded)

	require.NoError(t, c.Load(context.Background(), 3))

	results, matched, err := c.Search("penalty", 2)
	require.NoError(t, err)
	assert.True(t, matched)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].ID)
	assert.Equal(t, 2, results[1].ID)
	assert.Same(t, docs[0], results[0].Document)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	_, matched, err = c.Search("basketball", 2)
	require.NoError(t, err)
	assert.False(t, matched)

	rows, err := c.FindContext("penalty", 2)
	require.NoError(t, err)
	// the second occurrence lacks a full right window
	require.Len(t, rows, 1)
	assert.Equal(t, "saved a", rows[0].Left)
	assert.Equal(t, "in the", rows[0].Right)

	lines, err := c.Concordance("final")
	require.NoError(t, err)
	assert.Equal(t, []string{"in the final a striker", "in the final minute statistics"}, lines)

	size, terms, err := c.TopTerms(1)
	require.NoError(t, err)
	assert.Equal(t, c.Index().Size(), size)
	require.Len(t, terms, 1)
	assert.Equal(t, "the", terms[0].Word)

	weights, err := c.MeanTFIDF(2)
	require.NoError(t, err)
	assert.Len(t, weights, 2)
}

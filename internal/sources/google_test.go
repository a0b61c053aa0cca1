package sources

import (
	"context"
	"errors"
	"testing"

	"webstar/noturno-leadfinder-worker/internal/dto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	hits    []SearchHit
	err     error
	queries []string
	nums    []int
}

func (s *fakeSearcher) SearchWeb(_ context.Context, query string, num int) ([]SearchHit, error) {
	s.queries = append(s.queries, query)
	s.nums = append(s.nums, num)
	return s.hits, s.err
}

func TestGoogleAdapter_ListCandidates(t *testing.T) {
	s := &fakeSearcher{hits: []SearchHit{
		{Position: 1, Title: "How do I automate  Shopify emails?", Link: "https://community.shopify.com/c/t/123", Snippet: "I need help with flows"},
		{Position: 2, Title: "", Link: "https://community.shopify.com/c/t/empty"},
		{Position: 3, Title: "No link"},
	}}
	a := NewGoogleAdapter(s)
	assert.True(t, a.KeywordSearched())

	got, err := a.ListCandidates(context.Background(), []string{"need help with"}, "community.shopify.com", 50)
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, dto.PlatformGoogle, c.Platform)
	assert.Equal(t, "https://community.shopify.com/c/t/123", c.ExternalID)
	assert.Equal(t, "How do I automate Shopify emails?", c.Title)
	assert.Equal(t, "I need help with flows", c.BodyText)
	assert.Equal(t, "community.shopify.com", c.SourceLabel)
	assert.False(t, c.HasEngagement)

	assert.Equal(t, []string{`site:community.shopify.com "need help with"`}, s.queries)
	assert.Equal(t, []int{GoogleMaxResults}, s.nums)
}

func TestGoogleAdapter_Errors(t *testing.T) {
	_, err := NewGoogleAdapter(&fakeSearcher{}).ListCandidates(context.Background(), nil, "", 5)
	assert.Error(t, err)

	boom := errors.New("serpapi down")
	_, err = NewGoogleAdapter(&fakeSearcher{err: boom}).ListCandidates(context.Background(), []string{"x"}, "quora.com", 5)
	assert.ErrorIs(t, err, boom)
}

func TestBuildSiteQuery(t *testing.T) {
	assert.Equal(t, "site:quora.com", buildSiteQuery("quora.com", nil))
	assert.Equal(t, `site:quora.com "a" OR "b"`, buildSiteQuery("quora.com", []string{"a", " ", `"b"`}))
}

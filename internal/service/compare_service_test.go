package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leukemialens-go/internal/extractor"
	"leukemialens-go/pkg/pubmed"
)

type stubExtractor struct {
	md     extractor.Metadata
	err    error
	method string
}

func (s stubExtractor) Extract(context.Context, string) (extractor.Metadata, error) {
	return s.md, s.err
}

func (s stubExtractor) Method() string { return s.method }

type singleArticleSource struct {
	article  *pubmed.Article
	fetchErr error
}

func (s *singleArticleSource) Search(context.Context, string, int, int) (pubmed.SearchResult, error) {
	return pubmed.SearchResult{}, nil
}

func (s *singleArticleSource) FetchDetails(_ context.Context, ids []string) ([]pubmed.Article, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	if s.article == nil {
		return nil, nil
	}
	return []pubmed.Article{*s.article}, nil
}

func TestCompareComputesSetDifferences(t *testing.T) {
	source := &singleArticleSource{article: &pubmed.Article{PMID: "42", Title: "title", Abstract: "abstract"}}
	rule := stubExtractor{md: extractor.Metadata{
		Mutations:  []string{"FLT3", "NPM1"},
		Treatments: []string{"VEN-AZA"},
	}, method: extractor.MethodRegex}
	ai := stubExtractor{md: extractor.Metadata{
		Mutations:  []string{"NPM1", "TP53"},
		Treatments: []string{"VEN-AZA"},
	}, method: extractor.MethodAI}

	res, err := NewCompareService(source, rule, ai).Compare(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, "42", res.PMID)
	assert.Equal(t, "title", res.Title)

	mutations := res.Diff["mutations"]
	assert.Equal(t, []string{"NPM1"}, mutations.Shared)
	assert.Equal(t, []string{"FLT3"}, mutations.RuleOnly)
	assert.Equal(t, []string{"TP53"}, mutations.AIOnly)

	treatments := res.Diff["treatments"]
	assert.Equal(t, []string{"VEN-AZA"}, treatments.Shared)
	assert.Empty(t, treatments.RuleOnly)
	assert.Empty(t, treatments.AIOnly)
}

func TestCompareUnknownPMID(t *testing.T) {
	source := &singleArticleSource{}
	_, err := NewCompareService(source, stubExtractor{}, stubExtractor{}).Compare(context.Background(), "404")
	assert.Error(t, err)
}

func TestCompareAIFailureIsFatal(t *testing.T) {
	source := &singleArticleSource{article: &pubmed.Article{PMID: "42", Title: "t"}}
	ai := stubExtractor{err: errors.New("model unavailable")}

	_, err := NewCompareService(source, stubExtractor{}, ai).Compare(context.Background(), "42")
	assert.Error(t, err)
}

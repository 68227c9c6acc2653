package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	response string
	err      error
	called   bool
}

func (f *fakeCompleter) Complete(_ context.Context, _, _ string) (string, error) {
	f.called = true
	return f.response, f.err
}

func TestAIExtractorParsesModelResponse(t *testing.T) {
	llm := &fakeCompleter{response: `{
		"mutations": ["flt3", "NPM1", "FLT3"],
		"topics": ["Immunotherapy"],
		"disease_subtypes": ["aml"],
		"treatments": ["ven-aza"],
		"has_complex_karyotype": true,
		"transplant_context": false
	}`}

	md, err := NewAIExtractor(llm).Extract(context.Background(), "some abstract")
	require.NoError(t, err)

	// 基因与治疗代码统一为大写并去重
	assert.Equal(t, []string{"FLT3", "NPM1"}, md.Mutations)
	assert.Equal(t, []string{"Immunotherapy"}, md.Topics)
	assert.Equal(t, []string{"AML"}, md.DiseaseSubtypes)
	assert.Equal(t, []string{"VEN-AZA"}, md.Treatments)
	assert.True(t, md.HasComplexKaryotype)
	assert.False(t, md.TransplantContext)
}

func TestAIExtractorStripsCodeFence(t *testing.T) {
	llm := &fakeCompleter{response: "```json\n{\"mutations\":[\"TP53\"],\"topics\":[],\"disease_subtypes\":[],\"treatments\":[]}\n```"}

	md, err := NewAIExtractor(llm).Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"TP53"}, md.Mutations)
}

func TestAIExtractorPropagatesModelError(t *testing.T) {
	boom := errors.New("upstream unavailable")
	llm := &fakeCompleter{err: boom}

	_, err := NewAIExtractor(llm).Extract(context.Background(), "text")
	assert.ErrorIs(t, err, boom)
}

func TestAIExtractorRejectsNonJSONResponse(t *testing.T) {
	llm := &fakeCompleter{response: "I could not process this abstract."}

	_, err := NewAIExtractor(llm).Extract(context.Background(), "text")
	assert.Error(t, err)
}

func TestAIExtractorSkipsModelForEmptyText(t *testing.T) {
	llm := &fakeCompleter{}

	md, err := NewAIExtractor(llm).Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, Metadata{}, md)
	assert.False(t, llm.called)
}

func TestAIExtractorMethod(t *testing.T) {
	assert.Equal(t, MethodAI, NewAIExtractor(nil).Method())
}

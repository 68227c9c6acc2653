package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leukemialens-go/internal/model"
	"leukemialens-go/pkg/pubmed"
)

type fakeSource struct {
	searchResult pubmed.SearchResult
	searchErr    error
	fetchErr     error

	gotTerm   string
	gotLimit  int
	gotOffset int
	fetchedID []string
	fetched   bool
}

func (f *fakeSource) Search(_ context.Context, term string, limit, offset int) (pubmed.SearchResult, error) {
	f.gotTerm, f.gotLimit, f.gotOffset = term, limit, offset
	return f.searchResult, f.searchErr
}

func (f *fakeSource) FetchDetails(_ context.Context, ids []string) ([]pubmed.Article, error) {
	f.fetched = true
	f.fetchedID = ids
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	articles := make([]pubmed.Article, len(ids))
	for i, id := range ids {
		articles[i] = pubmed.Article{PMID: id, Title: "t" + id}
	}
	return articles, nil
}

type fakeRecordProcessor struct {
	failPMID  map[string]bool
	processed []string
	useAI     []bool
}

func (f *fakeRecordProcessor) Process(_ context.Context, article pubmed.Article, useAI bool) error {
	f.useAI = append(f.useAI, useAI)
	if f.failPMID[article.PMID] {
		return errors.New("processing failed")
	}
	f.processed = append(f.processed, article.PMID)
	return nil
}

type fakeStudyRepo struct {
	existing map[string]bool
	findErr  error
}

func (f *fakeStudyRepo) Upsert(*model.Study) error { return nil }
func (f *fakeStudyRepo) FindExistingSourceIDs(sourceIDs []string) (map[string]bool, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	out := map[string]bool{}
	for _, id := range sourceIDs {
		if f.existing[id] {
			out[id] = true
		}
	}
	return out, nil
}
func (f *fakeStudyRepo) ReplaceMutations(uint, []string) error  { return nil }
func (f *fakeStudyRepo) ReplaceTopics(uint, []string) error     { return nil }
func (f *fakeStudyRepo) ReplaceTreatments(uint, []uint) error   { return nil }
func (f *fakeStudyRepo) InsertLinkIfAbsent(*model.Link) error   { return nil }

type fakeCoverageRepo struct {
	upserts map[[2]int]int
	err     error
}

func (f *fakeCoverageRepo) Upsert(year, month, total int) error {
	if f.err != nil {
		return f.err
	}
	if f.upserts == nil {
		f.upserts = map[[2]int]int{}
	}
	f.upserts[[2]int{year, month}] = total
	return nil
}

func newService(source *fakeSource, proc *fakeRecordProcessor, studies *fakeStudyRepo, coverage *fakeCoverageRepo) *IngestService {
	return NewIngestService(source, proc, studies, coverage, 50)
}

func TestRunExplicitMonthWindow(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1", "2"}, Total: 321}}
	proc := &fakeRecordProcessor{}
	coverage := &fakeCoverageRepo{}
	s := newService(source, proc, &fakeStudyRepo{}, coverage)

	res, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 12, Limit: 20, Offset: 40})
	require.NoError(t, err)

	assert.Contains(t, source.gotTerm, `(Leukemia[Title/Abstract])`)
	assert.Contains(t, source.gotTerm, `"2024/12/01"[Date - Publication]`)
	assert.Contains(t, source.gotTerm, `"2024/12/31"[Date - Publication]`)
	assert.Equal(t, 20, source.gotLimit)
	assert.Equal(t, 40, source.gotOffset)

	assert.Equal(t, "2024/12", res.Window)
	assert.Equal(t, 321, res.Total)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 40, res.Offset)

	// 覆盖率指标记录上游命中总数
	assert.Equal(t, 321, coverage.upserts[[2]int{2024, 12}])
}

func TestRunComputesMonthLastDay(t *testing.T) {
	cases := []struct {
		year, month int
		wantEnd     string
	}{
		{2024, 2, `"2024/02/29"`},
		{2023, 2, `"2023/02/28"`},
		{2024, 4, `"2024/04/30"`},
		{2024, 1, `"2024/01/31"`},
	}
	for _, tc := range cases {
		source := &fakeSource{}
		s := newService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, &fakeCoverageRepo{})
		_, err := s.Run(context.Background(), IngestParams{Year: tc.year, Month: tc.month})
		require.NoError(t, err)
		assert.Contains(t, source.gotTerm, tc.wantEnd, "%d-%02d", tc.year, tc.month)
	}
}

func TestRunYearOnlyWindow(t *testing.T) {
	source := &fakeSource{}
	coverage := &fakeCoverageRepo{}
	s := newService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, coverage)

	res, err := s.Run(context.Background(), IngestParams{Year: 2023})
	require.NoError(t, err)

	assert.Contains(t, source.gotTerm, `"2023/01/01"`)
	assert.Contains(t, source.gotTerm, `"2023/12/31"`)
	assert.Equal(t, "2023", res.Window)
	// 整年窗口不写月度覆盖率
	assert.Empty(t, coverage.upserts)
}

func TestRunDefaultRollingWindow(t *testing.T) {
	source := &fakeSource{}
	s := newService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, &fakeCoverageRepo{})
	s.now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }

	_, err := s.Run(context.Background(), IngestParams{})
	require.NoError(t, err)

	assert.Contains(t, source.gotTerm, `"2025/01/01"[Date - Publication]`)
	assert.Contains(t, source.gotTerm, `"2050"[Date - Publication]`)
	// 未指定 Limit 时使用默认页大小
	assert.Equal(t, 50, source.gotLimit)
}

func TestRunSkipsExistingRecords(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1", "2", "3"}, Total: 3}}
	proc := &fakeRecordProcessor{}
	studies := &fakeStudyRepo{existing: map[string]bool{"PMID:2": true}}
	s := newService(source, proc, studies, &fakeCoverageRepo{})

	res, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, source.fetchedID)
	assert.Equal(t, []string{"1", "3"}, proc.processed)
	assert.Equal(t, 2, res.Ingested)
	assert.Equal(t, 3, res.Total)
}

func TestRunDegradesToUnfilteredWhenDedupFails(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1", "2"}, Total: 2}}
	proc := &fakeRecordProcessor{}
	studies := &fakeStudyRepo{findErr: errors.New("db unavailable")}
	s := newService(source, proc, studies, &fakeCoverageRepo{})

	res, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, source.fetchedID)
	assert.Equal(t, 2, res.Ingested)
}

func TestRunSkipsFetchWhenNothingNew(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1"}, Total: 10}}
	studies := &fakeStudyRepo{existing: map[string]bool{"PMID:1": true}}
	s := newService(source, &fakeRecordProcessor{}, studies, &fakeCoverageRepo{})

	res, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	require.NoError(t, err)

	assert.False(t, source.fetched)
	assert.Equal(t, 0, res.Ingested)
	assert.Equal(t, 10, res.Total)
}

func TestRunIsolatesPerRecordFailures(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1", "2", "3"}, Total: 3}}
	proc := &fakeRecordProcessor{failPMID: map[string]bool{"2": true}}
	s := newService(source, proc, &fakeStudyRepo{}, &fakeCoverageRepo{})

	res, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	require.NoError(t, err)

	// 失败的记录不计入 ingested，也不中断其余记录
	assert.Equal(t, []string{"1", "3"}, proc.processed)
	assert.Equal(t, 2, res.Ingested)
}

func TestRunSearchFailureIsFatal(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("esearch down")}
	s := newService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, &fakeCoverageRepo{})

	_, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	assert.Error(t, err)
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	source := &fakeSource{
		searchResult: pubmed.SearchResult{IDs: []string{"1"}, Total: 1},
		fetchErr:     errors.New("efetch down"),
	}
	s := newService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, &fakeCoverageRepo{})

	_, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	assert.Error(t, err)
}

func TestRunCoverageFailureIsNotFatal(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1"}, Total: 1}}
	coverage := &fakeCoverageRepo{err: errors.New("metrics table locked")}
	s := newService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, coverage)

	res, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ingested)
}

type pagingSource struct {
	pages  [][]string
	total  int
	calls  int
	offset []int
}

func (p *pagingSource) Search(_ context.Context, _ string, _, offset int) (pubmed.SearchResult, error) {
	p.offset = append(p.offset, offset)
	var ids []string
	if p.calls < len(p.pages) {
		ids = p.pages[p.calls]
	}
	p.calls++
	return pubmed.SearchResult{IDs: ids, Total: p.total}, nil
}

func (p *pagingSource) FetchDetails(_ context.Context, ids []string) ([]pubmed.Article, error) {
	articles := make([]pubmed.Article, len(ids))
	for i, id := range ids {
		articles[i] = pubmed.Article{PMID: id, Title: "t" + id}
	}
	return articles, nil
}

func TestRunAllPaginatesUntilExhausted(t *testing.T) {
	source := &pagingSource{pages: [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, total: 5}
	proc := &fakeRecordProcessor{}
	s := NewIngestService(source, proc, &fakeStudyRepo{}, &fakeCoverageRepo{}, 50)

	res, err := s.RunAll(context.Background(), IngestParams{Year: 2024, Month: 3, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, source.calls)
	assert.Equal(t, []int{0, 2, 4}, source.offset)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 5, res.Ingested)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, proc.processed)
}

func TestRunAllSinglePageWindow(t *testing.T) {
	source := &pagingSource{pages: [][]string{{"1"}}, total: 1}
	s := NewIngestService(source, &fakeRecordProcessor{}, &fakeStudyRepo{}, &fakeCoverageRepo{}, 50)

	res, err := s.RunAll(context.Background(), IngestParams{Year: 2024, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, 1, res.Ingested)
}

func TestRunForwardsUseAIFlag(t *testing.T) {
	source := &fakeSource{searchResult: pubmed.SearchResult{IDs: []string{"1"}, Total: 1}}
	proc := &fakeRecordProcessor{}
	s := newService(source, proc, &fakeStudyRepo{}, &fakeCoverageRepo{})

	_, err := s.Run(context.Background(), IngestParams{Year: 2024, Month: 1, UseAI: true})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, proc.useAI)
}

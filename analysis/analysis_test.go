package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasta-project/pasta-go/convo"
)

type stubAnalyzer struct {
	name          string
	activateErr   error
	analyseErr    error
	panicOnAnalyse bool
	seen          []int
}

func (s *stubAnalyzer) Name() string        { return s.name }
func (s *stubAnalyzer) Description() string { return "stub" }
func (s *stubAnalyzer) Activate() error     { return s.activateErr }
func (s *stubAnalyzer) Deactivate()         {}
func (s *stubAnalyzer) Analyse(c *convo.Conversation) error {
	if s.panicOnAnalyse {
		panic("boom")
	}
	s.seen = append(s.seen, c.ID)
	return s.analyseErr
}

func TestRunRemovesAnalyzerThatFailsActivate(t *testing.T) {
	bad := &stubAnalyzer{name: "bad", activateErr: errors.New("no can do")}
	good := &stubAnalyzer{name: "good"}
	p := NewPipeline([]Analyzer{bad, good}, nil)
	conversations := []*convo.Conversation{{ID: 1}}
	p.Run(conversations)
	assert.Empty(t, bad.seen)
	assert.Equal(t, []int{1}, good.seen)
}

func TestRunSurvivesNoMatch(t *testing.T) {
	a := &stubAnalyzer{name: "nomatch", analyseErr: NoMatch{Reason: "nothing here"}}
	p := NewPipeline([]Analyzer{a}, nil)
	conversations := []*convo.Conversation{{ID: 1}, {ID: 2}}
	assert.NotPanics(t, func() { p.Run(conversations) })
	assert.Equal(t, []int{1, 2}, a.seen)
}

func TestRunRecoversFromPanic(t *testing.T) {
	crashy := &stubAnalyzer{name: "crashy", panicOnAnalyse: true}
	after := &stubAnalyzer{name: "after"}
	p := NewPipeline([]Analyzer{crashy, after}, nil)
	conversations := []*convo.Conversation{{ID: 1}}
	assert.NotPanics(t, func() { p.Run(conversations) })
	assert.Equal(t, []int{1}, after.seen)
}

type stubPairAnalyzer struct {
	called     bool
	before     *stubAnalyzer
	seenBefore []int
}

func (s *stubPairAnalyzer) Name() string        { return "pair" }
func (s *stubPairAnalyzer) Description() string { return "stub pair" }
func (s *stubPairAnalyzer) AnalysePairs(conversations []*convo.Conversation) error {
	s.called = true
	if s.before != nil {
		s.seenBefore = append([]int(nil), s.before.seen...)
	}
	return nil
}

func TestRunInvokesPairAnalyzersAfterPerConversation(t *testing.T) {
	per := &stubAnalyzer{name: "per"}
	pa := &stubPairAnalyzer{before: per}
	p := NewPipeline([]Analyzer{per}, []PairAnalyzer{pa})
	p.Run([]*convo.Conversation{{ID: 1}})
	assert.True(t, pa.called)
	assert.Equal(t, []int{1}, pa.seenBefore)
}

func TestListReturnsAllAnalyzers(t *testing.T) {
	p := NewPipeline([]Analyzer{&stubAnalyzer{name: "a"}}, []PairAnalyzer{&stubPairAnalyzer{}})
	names := make([]string, 0)
	for _, entry := range p.List() {
		names = append(names, entry.Name)
	}
	require.ElementsMatch(t, []string{"a", "pair"}, names)
}

// Package analysis dispatches the fixed set of per-conversation and
// pair-level analyzers over a capture's conversations, isolating each
// analyzer's failures from the rest of the pipeline.
package analysis

import (
	"fmt"

	"github.com/pasta-project/pasta-go/convo"
	"github.com/pasta-project/pasta-go/printer"
)

// NoMatch is a soft, analyzer-local failure: the analyzer found nothing to
// report for this conversation, which is not an error in the pipeline.
type NoMatch struct{ Reason string }

func (e NoMatch) Error() string { return e.Reason }

// AnalyzerCrash wraps any non-NoMatch panic/error raised by an analyzer,
// so the pipeline can log it with the analyzer's name and class without
// aborting the run.
type AnalyzerCrash struct {
	Analyzer string
	Err      error
}

func (e *AnalyzerCrash) Error() string {
	return fmt.Sprintf("analyzer %s crashed: %v", e.Analyzer, e.Err)
}

func (e *AnalyzerCrash) Unwrap() error { return e.Err }

// Analyzer is the per-conversation plugin contract.
type Analyzer interface {
	Name() string
	Description() string
	Activate() error
	Deactivate()
	Analyse(c *convo.Conversation) error
}

// PairAnalyzer is the contract for analyzers that consume every
// conversation at once (component H), run after all per-conversation
// analyzers complete.
type PairAnalyzer interface {
	Name() string
	Description() string
	AnalysePairs(conversations []*convo.Conversation) error
}

// Pipeline runs a fixed, ordered analyzer list.
type Pipeline struct {
	analyzers     []Analyzer
	pairAnalyzers []PairAnalyzer
}

func NewPipeline(analyzers []Analyzer, pairAnalyzers []PairAnalyzer) *Pipeline {
	return &Pipeline{analyzers: analyzers, pairAnalyzers: pairAnalyzers}
}

// List returns (name, description) for every registered analyzer, for
// --list-plugins.
func (p *Pipeline) List() []struct{ Name, Description string } {
	var out []struct{ Name, Description string }
	for _, a := range p.analyzers {
		out = append(out, struct{ Name, Description string }{a.Name(), a.Description()})
	}
	for _, a := range p.pairAnalyzers {
		out = append(out, struct{ Name, Description string }{a.Name(), a.Description()})
	}
	return out
}

// Run applies every analyzer to every conversation in numeric order, then
// every pair analyzer to the full set.
func (p *Pipeline) Run(conversations []*convo.Conversation) {
	active := make([]Analyzer, 0, len(p.analyzers))
	for _, a := range p.analyzers {
		if err := safeActivate(a); err != nil {
			printer.Warningf("plugin %s failed to activate, removing from pipeline: %v\n", a.Name(), err)
			continue
		}
		active = append(active, a)
	}

	for _, c := range conversations {
		for _, a := range active {
			runOne(a, c)
		}
	}

	for _, a := range active {
		a.Deactivate()
	}

	for _, pa := range p.pairAnalyzers {
		if err := safeAnalysePairs(pa, conversations); err != nil {
			printer.Warningf("plugin %s crashed: %v\n", pa.Name(), err)
		}
	}
}

func safeActivate(a Analyzer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during activate: %v", r)
		}
	}()
	return a.Activate()
}

func runOne(a Analyzer, c *convo.Conversation) {
	defer func() {
		if r := recover(); r != nil {
			printer.Warningf("plugin %s crash on conversation %d: %v\n", a.Name(), c.ID, r)
		}
	}()
	if err := a.Analyse(c); err != nil {
		var nm NoMatch
		if asNoMatch(err, &nm) {
			printer.Debugf("plugin %s: no match for conversation %d: %v\n", a.Name(), c.ID, err)
			return
		}
		printer.Warningf("plugin %s: %v\n", a.Name(), &AnalyzerCrash{Analyzer: a.Name(), Err: err})
	}
}

func safeAnalysePairs(pa PairAnalyzer, conversations []*convo.Conversation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return pa.AnalysePairs(conversations)
}

func asNoMatch(err error, target *NoMatch) bool {
	if nm, ok := err.(NoMatch); ok {
		*target = nm
		return true
	}
	return false
}

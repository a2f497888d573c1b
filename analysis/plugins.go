package analysis

import (
	"github.com/pasta-project/pasta-go/algoselect"
	"github.com/pasta-project/pasta-go/classify"
	"github.com/pasta-project/pasta-go/convo"
	"github.com/pasta-project/pasta-go/idle"
	"github.com/pasta-project/pasta-go/steppingstone/onoff"
	"github.com/pasta-project/pasta-go/steppingstone/serverside"
)

// Default returns the built-in, compiled-in analyzer set in pipeline
// order: algorithm selection and idle/type analysis can run in any order
// relative to each other, server-side stepping-stone detection requires
// RTT to already be assigned, and the OFF-coincidence pair analyzer runs
// last, over the whole conversation set.
func Default() ([]Analyzer, []PairAnalyzer) {
	return []Analyzer{
			&algorithmsPlugin{},
			&idlePlugin{},
			&classifyPlugin{},
			&serverSidePlugin{},
		}, []PairAnalyzer{
			&offCoincidencePlugin{},
		}
}

type algorithmsPlugin struct{}

func (*algorithmsPlugin) Name() string        { return "algorithms" }
func (*algorithmsPlugin) Description() string { return "negotiated SSH algorithm selection" }
func (*algorithmsPlugin) Activate() error     { return nil }
func (*algorithmsPlugin) Deactivate()         {}
func (*algorithmsPlugin) Analyse(c *convo.Conversation) error {
	if !c.HasAlgorithms {
		return NoMatch{Reason: "no algorithm lists observed"}
	}
	selected := algoselect.Select(c)
	c.AlgorithmsSelected = &selected
	return nil
}

type idlePlugin struct{}

func (*idlePlugin) Name() string        { return "idle" }
func (*idlePlugin) Description() string { return "idle-time bucket fraction" }
func (*idlePlugin) Activate() error     { return nil }
func (*idlePlugin) Deactivate()         {}
func (*idlePlugin) Analyse(c *convo.Conversation) error {
	fraction, ok := idle.Compute(c)
	if !ok {
		return NoMatch{Reason: "empty conversation"}
	}
	c.IdleFraction = &fraction
	return nil
}

type classifyPlugin struct{}

func (*classifyPlugin) Name() string        { return "connection-type" }
func (*classifyPlugin) Description() string { return "traffic-shape classification" }
func (*classifyPlugin) Activate() error     { return nil }
func (*classifyPlugin) Deactivate()         {}
func (*classifyPlugin) Analyse(c *convo.Conversation) error {
	c.ConnType = classify.Classify(c)
	return nil
}

type serverSidePlugin struct{}

func (*serverSidePlugin) Name() string        { return "stepping-stone-server-side" }
func (*serverSidePlugin) Description() string { return "per-connection RTT/IAT and payload-size modality detector" }
func (*serverSidePlugin) Activate() error     { return nil }
func (*serverSidePlugin) Deactivate()         {}
func (*serverSidePlugin) Analyse(c *convo.Conversation) error {
	if !serverside.Applies(c) {
		return NoMatch{Reason: "too few packets or RTT not assigned"}
	}
	verdict, err := serverside.Detect(c)
	if err != nil {
		return NoMatch{Reason: err.Error()}
	}
	c.SteppingStoneServerSide = &verdict
	return nil
}

type offCoincidencePlugin struct{}

func (*offCoincidencePlugin) Name() string        { return "stepping-stone-onoff" }
func (*offCoincidencePlugin) Description() string { return "OFF-period coincidence correlation across all conversations" }
func (*offCoincidencePlugin) AnalysePairs(conversations []*convo.Conversation) error {
	pairs := onoff.Detect(conversations)
	byID := make(map[int]*convo.Conversation, len(conversations))
	for _, c := range conversations {
		byID[c.ID] = c
	}
	for _, pr := range pairs {
		if a, ok := byID[pr.A]; ok {
			a.OffCoincidencePartners = append(a.OffCoincidencePartners, pr.B)
		}
		if b, ok := byID[pr.B]; ok {
			b.OffCoincidencePartners = append(b.OffCoincidencePartners, pr.A)
		}
	}
	return nil
}

// Package onoff implements the OFF-period coincidence stepping-stone
// detector: Zhang & Paxson's inter-connection correlation across all
// conversation pairs.
package onoff

import (
	"time"

	"github.com/pasta-project/pasta-go/convo"
)

// Parameters from "Detecting Stepping Stones" (Zhang & Paxson).
const (
	TIdle      = 500 * time.Millisecond
	Delta      = 16 * time.Millisecond
	Gamma      = 0.45
	MinCSC     = 2
	GammaPrime = 0.02
)

// Pair is a surviving, correlated conversation pair.
type Pair struct {
	A, B int // conversation IDs, A < B
}

// OffEnds returns, for a conversation, the timestamps marking the close of
// each OFF-period: the timestamp of a payload-bearing packet whose gap
// from the previous payload-bearing packet is less than TIdle. The gap reference is seeded
// from the conversation's very first packet overall, payload or not, so a
// payload packet arriving shortly after a bare handshake ACK still closes
// an OFF-period; the first packet itself is never counted as an end.
func OffEnds(c *convo.Conversation) []time.Time {
	if len(c.Packets) == 0 {
		return nil
	}
	var ends []time.Time
	prev := c.Packets[0].Time
	for i, p := range c.Packets {
		if p.PayloadLen <= 0 {
			continue
		}
		if i != 0 && p.Time.Sub(prev) < TIdle {
			ends = append(ends, p.Time)
		}
		prev = p.Time
	}
	return ends
}

// Detect correlates OFF-end sequences across every unordered pair of
// conversations and returns the pairs surviving all three filters. An
// empty result is a valid, non-failure outcome.
func Detect(conversations []*convo.Conversation) []Pair {
	offs := make(map[int][]time.Time, len(conversations))
	for _, c := range conversations {
		offs[c.ID] = OffEnds(c)
	}

	var pairs []Pair
	for i := 0; i < len(conversations); i++ {
		for j := i + 1; j < len(conversations); j++ {
			x, y := conversations[i], conversations[j]
			coincident, maxRun := coincidences(offs[x.ID], offs[y.ID])
			minLen := min(len(offs[x.ID]), len(offs[y.ID]))
			if minLen == 0 {
				continue
			}
			if float64(coincident) < Gamma*float64(minLen) {
				continue
			}
			if maxRun < MinCSC {
				continue
			}
			if float64(maxRun) < GammaPrime*float64(minLen) {
				continue
			}
			a, b := x.ID, y.ID
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, Pair{A: a, B: b})
		}
	}
	return pairs
}

// coincidences marches two sorted OFF-end sequences in lockstep, counting
// total coincidences (absolute difference below Delta) and the longest
// run of strictly consecutive coincidences. A coincidence consumes one end
// from each side; otherwise the side with the smaller timestamp advances.
func coincidences(x, y []time.Time) (coincident int, maxRun int) {
	i, j := 0, 0
	run := 0
	for i < len(x) && j < len(y) {
		diff := x[i].Sub(y[j])
		if diff < 0 {
			diff = -diff
		}
		if diff < Delta {
			coincident++
			run++
			if run > maxRun {
				maxRun = run
			}
			i++
			j++
		} else {
			run = 0
			if x[i].Before(y[j]) {
				i++
			} else {
				j++
			}
		}
	}
	return coincident, maxRun
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

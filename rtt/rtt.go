// Package rtt reconstructs a per-packet round-trip-time estimate for a
// conversation via ACK-pairing followed by linear-interpolation gap
// filling.
package rtt

import (
	"time"

	"github.com/pasta-project/pasta-go/convo"
)

// way identifies one of the two directions of a conversation.
type way int

const (
	wayClient way = iota
	wayServer
)

func wayOf(d *convo.Datagram) way {
	if d.SentByClient {
		return wayClient
	}
	return wayServer
}

func other(w way) way {
	if w == wayClient {
		return wayServer
	}
	return wayClient
}

// seqLess reports whether a comes strictly before b in TCP sequence space,
// tolerant of 32-bit wraparound, the way a signed difference comparison
// handles it for any two sequence numbers that are within 2^31 of another.
func seqLess(a, b uint32) bool {
	return int32(a-b) < 0
}

// Reconstruct assigns an RTT to every packet of each direction that ends
// up with at least one RTT anchor, per the two-phase (ACK-pairing, then
// gap-filling) algorithm; packets of a direction with no anchor keep a nil
// RTT even when RTTAssigned is set. If no ACK pairing
// succeeds in either direction, RTTAssigned is left false and no packet is
// touched.
func Reconstruct(c *convo.Conversation) {
	packets := c.Packets
	n := len(packets)
	if n == 0 {
		return
	}

	// Phase 1: ACK pairing, traversed in reverse time order.
	var lastAcking [2]*convo.Datagram
	anyRTT := [2]bool{}

	for i := n - 1; i >= 0; i-- {
		p := packets[i]
		w := wayOf(p)

		if a := lastAcking[other(w)]; a != nil && a.Ack >= 0 && seqLess(p.Seq, uint32(a.Ack)) {
			rtt := a.Time.Sub(p.Time) * 2
			p.RTT = &rtt
			anyRTT[w] = true
			lastAcking[other(w)] = nil
		}
		if p.Ack >= 0 {
			lastAcking[w] = p
		}
	}

	// Phase 1b: one-way fallback. If exactly one direction produced any
	// RTT, walk the full packet stream in time order, remembering the RTT
	// of the most recent rttedWay packet (last, overwritten by every
	// rttedWay packet seen, including back to unset). The very next
	// otherWay packet consumes it once and the memory is cleared;
	// non-adjacent otherWay packets are left unassigned.
	if anyRTT[wayClient] != anyRTT[wayServer] {
		rttedWay := wayClient
		if anyRTT[wayServer] {
			rttedWay = wayServer
		}
		otherWay := other(rttedWay)
		var last *time.Duration
		for i := 0; i < n; i++ {
			p := packets[i]
			if wayOf(p) == rttedWay {
				last = p.RTT
				continue
			}
			if last == nil {
				continue
			}
			rtt := *last
			p.RTT = &rtt
			anyRTT[otherWay] = true
			last = nil
		}
	}

	if !anyRTT[wayClient] && !anyRTT[wayServer] {
		c.RTTAssigned = false
		return
	}

	// Phase 2: forward-scan gap filling, per way.
	var lastRTT [2]*time.Duration
	var pending [2][]*convo.Datagram

	for i := 0; i < n; i++ {
		p := packets[i]
		w := wayOf(p)
		if p.RTT == nil {
			pending[w] = append(pending[w], p)
			continue
		}
		fillGap(w, p, lastRTT[:], pending[:])
	}
	// Trailing queued packets take the last known RTT (flat extrapolation
	// at the back); if a way never got any RTT at all, leave it unset.
	for w := wayClient; w <= wayServer; w++ {
		if lastRTT[w] == nil {
			continue
		}
		for _, p := range pending[w] {
			rtt := *lastRTT[w]
			p.RTT = &rtt
		}
		pending[w] = nil
	}

	c.RTTAssigned = true
}

func fillGap(w way, d *convo.Datagram, lastRTT []*time.Duration, pending [][]*convo.Datagram) {
	q := pending[w]
	if len(q) == 0 {
		lastRTT[w] = d.RTT
		return
	}
	if lastRTT[w] == nil {
		// Flat extrapolation at the front: every queued packet gets D's
		// RTT, since there is no earlier anchor to interpolate from.
		for _, p := range q {
			rtt := *d.RTT
			p.RTT = &rtt
		}
	} else {
		k := len(q) + 1
		delta := (*d.RTT - *lastRTT[w]) / time.Duration(k)
		for i, p := range q {
			rtt := *lastRTT[w] + time.Duration(i+1)*delta
			p.RTT = &rtt
		}
	}
	pending[w] = pending[w][:0]
	lastRTT[w] = d.RTT
}

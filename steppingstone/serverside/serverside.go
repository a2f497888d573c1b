// Package serverside implements the per-connection stepping-stone
// detector: RTT-vs-inter-arrival-time divergence and client payload-size
// multi-modal clustering.
package serverside

import (
	"math"

	"github.com/pasta-project/pasta-go/convo"
)

// CloseEnough is the "close enough" fraction for predicate (A). The
// source carries both 0.5 and a 0.15 variant across revisions; this
// adopts 0.5, the latest.
const CloseEnough = 0.5

// DivergencePredicateMax (s <= this) is predicate (A)'s threshold on the
// fraction of RTT/IAT pairs that are close.
const DivergencePredicateMax = 0.01

// ClusterTolerance is the byte window (±) within which a new payload
// length joins an existing cluster.
const ClusterTolerance = 3

// DominantClusterMinShare is the minimum fraction of the total a cluster
// must hold to count toward predicate (B)'s dominant-cluster sum.
const DominantClusterMinShare = 0.10

// ModalityPredicateMin (sum > this) is predicate (B)'s threshold on the
// fraction of samples held by dominant clusters.
const ModalityPredicateMin = 0.98

// MinPackets is the minimum conversation size for the detector to apply.
const MinPackets = 20

// InsufficientData means the conversation doesn't have enough usable RTT/IAT
// entries for predicate (A).
type InsufficientData struct{}

func (InsufficientData) Error() string { return "insufficient RTT/IAT samples" }

// Applies reports whether the detector applies to c at all (size and RTT
// preconditions).
func Applies(c *convo.Conversation) bool {
	return len(c.Packets) >= MinPackets && c.RTTAssigned
}

// Detect returns whether c is flagged as a stepping stone: predicate (A)
// OR predicate (B).
func Detect(c *convo.Conversation) (bool, error) {
	a, err := divergence(c)
	if err != nil {
		return false, err
	}
	b := modality(c)
	return a || b, nil
}

// divergence implements predicate (A): build RTT[i] and IAT[i] sequences
// from client-sent payload-bearing packets (skipping the first for RTT),
// and count how often the normalized difference is within CloseEnough.
func divergence(c *convo.Conversation) (bool, error) {
	var clientPayload []*convo.Datagram
	for _, p := range c.Packets {
		if p.SentByClient && p.PayloadLen > 0 {
			clientPayload = append(clientPayload, p)
		}
	}
	if len(clientPayload) < MinPackets+1 {
		return false, InsufficientData{}
	}

	n := 0
	closeCount := 0
	for i := 1; i < len(clientPayload); i++ {
		cur := clientPayload[i]
		prev := clientPayload[i-1]
		if cur.RTT == nil {
			continue
		}
		rtt := float64(*cur.RTT)
		if rtt == 0 {
			continue
		}
		iat := float64(cur.Time.Sub(prev.Time))
		n++
		if math.Abs(rtt-iat)/rtt <= CloseEnough {
			closeCount++
		}
	}
	if n < MinPackets {
		return false, InsufficientData{}
	}
	s := float64(closeCount) / float64(n)
	return s <= DivergencePredicateMax, nil
}

type lengthCluster struct {
	center float64
	count  int
	sum    int
}

// modality implements predicate (B): online nearest-cluster assignment of
// client payload lengths within ±ClusterTolerance bytes, skipping a
// recenter when it would collide with another cluster's center (merge
// avoidance keeps membership split even though the center goes stale),
// then checks whether clusters exceeding 10% of the total jointly hold
// more than 98%.
func modality(c *convo.Conversation) bool {
	var lengths []int
	for _, p := range c.Packets {
		if p.SentByClient && p.PayloadLen > 0 {
			lengths = append(lengths, p.PayloadLen)
		}
	}
	if len(lengths) == 0 {
		return false
	}

	var clusters []*lengthCluster
	for _, l := range lengths {
		best := nearestCluster(clusters, float64(l))
		if best == nil {
			clusters = append(clusters, &lengthCluster{center: float64(l), count: 1, sum: l})
			continue
		}
		best.count++
		best.sum += l
		recenterUnlessColliding(clusters, best)
	}

	total := len(lengths)
	dominant := 0
	for _, cl := range clusters {
		if float64(cl.count) > DominantClusterMinShare*float64(total) {
			dominant += cl.count
		}
	}
	return float64(dominant)/float64(total) > ModalityPredicateMin
}

func nearestCluster(clusters []*lengthCluster, length float64) *lengthCluster {
	var best *lengthCluster
	bestDist := math.MaxFloat64
	for _, cl := range clusters {
		dist := math.Abs(cl.center - length)
		if dist <= ClusterTolerance && dist < bestDist {
			best = cl
			bestDist = dist
		}
	}
	return best
}

// recenterUnlessColliding recomputes moved's center from its updated
// count/sum, but only commits the new center if it would not land within
// ClusterTolerance of another cluster's center. Clusters are never merged:
// if the recentered value would collide, moved keeps its stale center
// while its count/sum (the sample that was just folded in) stay updated,
// so the two clusters' membership remains entirely separate.
func recenterUnlessColliding(clusters []*lengthCluster, moved *lengthCluster) {
	newCenter := float64(moved.sum) / float64(moved.count)
	for _, cl := range clusters {
		if cl == moved {
			continue
		}
		if math.Abs(cl.center-newCenter) <= ClusterTolerance {
			return
		}
	}
	moved.center = newCenter
}

// Package idle computes the fraction of fixed-width time buckets in a
// conversation's lifetime that contain no payload-bearing packet.
package idle

import (
	"time"

	"github.com/pasta-project/pasta-go/convo"
)

// BucketWidth is the fixed time-bucket width used to partition a
// conversation's [start, start+duration] interval.
const BucketWidth = 2 * time.Second

// Compute returns the idle fraction for c, or (0, false) for an empty
// (zero-duration) conversation, which leaves the result slot untouched.
func Compute(c *convo.Conversation) (float64, bool) {
	if c.Duration <= 0 || len(c.Packets) == 0 {
		return 0, false
	}

	position := c.StartTime // left limit of the current bucket
	idleBuckets := 0
	totalBuckets := 0

	for _, p := range c.Packets {
		if p.PayloadLen <= 0 {
			continue
		}
		if p.Time.Before(position) {
			// Already accounted for a packet in this bucket.
			continue
		}
		for !p.Time.Before(position) {
			idleBuckets++
			totalBuckets++
			position = position.Add(BucketWidth)
		}
		// The bucket this packet lands in is busy, not idle.
		idleBuckets--
	}

	if totalBuckets == 0 {
		return 0, false
	}
	return float64(idleBuckets) / float64(totalBuckets), true
}

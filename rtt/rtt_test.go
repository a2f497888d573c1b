package rtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasta-project/pasta-go/convo"
)

func at(seconds float64) time.Time {
	return time.Unix(0, 0).Add(time.Duration(seconds * float64(time.Second)))
}

func client(t float64, seq uint32) *convo.Datagram {
	return &convo.Datagram{SentByClient: true, Time: at(t), Seq: seq, Ack: -1, PayloadLen: 10, TotalLen: 50}
}

func serverAck(t float64, ack int64) *convo.Datagram {
	return &convo.Datagram{SentByClient: false, Time: at(t), Seq: 0, Ack: ack, PayloadLen: 0, TotalLen: 40}
}

// TestReconstructInterpolation mirrors the scenario of ACK pairing on
// packets 3 and 7 of one way (RTT 100ms and 200ms) with packets 4-6
// unpaired, expecting linear interpolation to 125/150/175ms.
func TestReconstructInterpolation(t *testing.T) {
	c := &convo.Conversation{
		Packets: []*convo.Datagram{
			client(0, 0),
			client(1, 10),
			client(2, 20),        // packet 3 (1-based)
			serverAck(2.05, 1000), // ACKs everything up to seq 1000
			client(3, 30),
			client(4, 40),
			client(5, 50),
			client(6, 60),         // packet 7 (1-based)
			serverAck(6.1, 1000),
		},
	}

	Reconstruct(c)

	require.True(t, c.RTTAssigned)

	clientPackets := make([]*convo.Datagram, 0, 7)
	for _, p := range c.Packets {
		if p.SentByClient {
			clientPackets = append(clientPackets, p)
		}
	}
	require.Len(t, clientPackets, 7)

	require.NotNil(t, clientPackets[2].RTT)
	assert.InDelta(t, 100*time.Millisecond, *clientPackets[2].RTT, float64(time.Millisecond))

	require.NotNil(t, clientPackets[6].RTT)
	assert.InDelta(t, 200*time.Millisecond, *clientPackets[6].RTT, float64(time.Millisecond))

	expected := []time.Duration{125 * time.Millisecond, 150 * time.Millisecond, 175 * time.Millisecond}
	for i, want := range expected {
		p := clientPackets[3+i]
		require.NotNil(t, p.RTT, "packet %d", 4+i)
		assert.InDelta(t, want, *p.RTT, float64(time.Millisecond))
	}
}

// TestOneWayFallbackIsAdjacentAndSingleUse exercises the [C(rtt), S(none),
// S(none), C(rtt), S(none)] shape: the one-way fallback must consume its
// remembered RTT only on the very next opposite-way packet, leaving
// non-adjacent opposite-way packets for phase 2's interpolation instead of
// copying a later client RTT straight across the gap.
func TestOneWayFallbackIsAdjacentAndSingleUse(t *testing.T) {
	c1 := client(0.00, 0)
	ackA := serverAck(0.05, 1000) // pairs with c1: RTT = (0.05-0.00)*2 = 100ms
	sFiller1 := &convo.Datagram{SentByClient: false, Time: at(0.10), Seq: 0, Ack: -1, PayloadLen: 10, TotalLen: 40}
	sFiller2 := &convo.Datagram{SentByClient: false, Time: at(0.15), Seq: 0, Ack: -1, PayloadLen: 10, TotalLen: 40}
	c2 := client(0.20, 10)
	ackB := serverAck(0.30, 1000) // pairs with c2: RTT = (0.30-0.20)*2 = 200ms
	sFiller3 := &convo.Datagram{SentByClient: false, Time: at(0.35), Seq: 0, Ack: -1, PayloadLen: 10, TotalLen: 40}

	c := &convo.Conversation{
		Packets: []*convo.Datagram{c1, ackA, sFiller1, sFiller2, c2, ackB, sFiller3},
	}

	Reconstruct(c)

	require.True(t, c.RTTAssigned)
	require.NotNil(t, ackA.RTT)
	assert.InDelta(t, 100*time.Millisecond, *ackA.RTT, float64(time.Millisecond))

	require.NotNil(t, ackB.RTT)
	assert.InDelta(t, 200*time.Millisecond, *ackB.RTT, float64(time.Millisecond))

	// sFiller1/sFiller2 were not adjacent to the client packet that set the
	// fallback memory, so they must come from phase 2's interpolation
	// between 100ms and 200ms, not a direct copy of either endpoint.
	require.NotNil(t, sFiller1.RTT)
	assert.InDelta(t, 133333333, int64(*sFiller1.RTT), float64(time.Millisecond))
	require.NotNil(t, sFiller2.RTT)
	assert.InDelta(t, 166666667, int64(*sFiller2.RTT), float64(time.Millisecond))

	// Trailing filler past the last RTTed server packet gets flat
	// extrapolation from the last known value.
	require.NotNil(t, sFiller3.RTT)
	assert.InDelta(t, 200*time.Millisecond, *sFiller3.RTT, float64(time.Millisecond))
}

func TestReconstructNoACKsLeavesUnassigned(t *testing.T) {
	c := &convo.Conversation{
		Packets: []*convo.Datagram{
			client(0, 0),
			client(1, 10),
		},
	}
	Reconstruct(c)
	assert.False(t, c.RTTAssigned)
	for _, p := range c.Packets {
		assert.Nil(t, p.RTT)
	}
}

func TestSeqLessHandlesWraparound(t *testing.T) {
	assert.True(t, seqLess(^uint32(0), 10))
	assert.False(t, seqLess(10, ^uint32(0)))
	assert.True(t, seqLess(5, 6))
}

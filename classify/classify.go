// Package classify labels a conversation's traffic shape from its payload
// asymmetry and RTT-normalized reply ratios.
package classify

import (
	"github.com/pasta-project/pasta-go/convo"
)

// The closed set of labels Classify returns.
const (
	BulkTransferServerToClient = "bulk-transfer-server-to-client"
	BulkTransferClientToServer = "bulk-transfer-client-to-server"
	InteractiveShell           = "interactive-shell"
	ReverseInteractiveShell    = "reverse-interactive-shell"
	Tunnel                     = "tunnel"
)

// Named configuration constants, exposed but not runtime-tunable.
const (
	bulkServerAsymmetry = 0.95
	bulkClientAsymmetry = 0.05
	replyRatioMax        = 0.7
	replyRatioMinClient  = 0.6
	replyRatioMinServer  = 0.6
)

// Classify returns the conversation's traffic-type label.
func Classify(c *convo.Conversation) string {
	rho := asymmetry(c)
	if rho > 0.5 && rho >= bulkServerAsymmetry {
		return BulkTransferServerToClient
	}
	if rho <= bulkClientAsymmetry {
		return BulkTransferClientToServer
	}

	rClient := replyRatio(c, true)
	rServer := replyRatio(c, false)

	if rClient >= replyRatioMinClient {
		return InteractiveShell
	}
	if rServer >= replyRatioMinServer {
		return ReverseInteractiveShell
	}
	return Tunnel
}

func asymmetry(c *convo.Conversation) float64 {
	total := c.ServerByteTotal + c.ClientByteTotal
	if total == 0 {
		return 0
	}
	return float64(c.ServerByteTotal) / float64(total)
}

// replyRatio computes r_W for way W = client (fromClient=true) or server.
// It enumerates payload-bearing packets in time order and, whenever a
// packet in the opposite direction immediately follows one in W with a
// non-zero RTT, records the normalized reply time Δt/RTT. r_W is the
// fraction of those replies at or below replyRatioMax.
func replyRatio(c *convo.Conversation, fromClient bool) float64 {
	var payload []*convo.Datagram
	for _, p := range c.Packets {
		if p.PayloadLen > 0 {
			payload = append(payload, p)
		}
	}

	total := 0
	within := 0
	for i := 1; i < len(payload); i++ {
		prev := payload[i-1]
		cur := payload[i]
		if prev.SentByClient != fromClient {
			continue
		}
		if cur.SentByClient == prev.SentByClient {
			continue
		}
		if prev.RTT == nil || *prev.RTT <= 0 {
			continue
		}
		total++
		dt := cur.Time.Sub(prev.Time)
		ratio := float64(dt) / float64(*prev.RTT)
		if ratio <= replyRatioMax {
			within++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(within) / float64(total)
}

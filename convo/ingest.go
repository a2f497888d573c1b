package convo

import (
	"context"

	"github.com/pasta-project/pasta-go/decoder"
)

// Selection controls which conversations Ingest returns. All/SSHOnly pick
// which streams pass-3 decodes; Ordinals is applied only at the end, to
// which already-decoded conversations are kept, so -n never widens or
// narrows the subprocess work itself.
type Selection struct {
	All      bool
	SSHOnly  bool
	Ordinals map[int]bool // nil/empty means "no ordinal filter"
}

func (s Selection) wantsOrdinal(ord int) bool {
	if len(s.Ordinals) == 0 {
		return true
	}
	return s.Ordinals[ord]
}

// Ingest runs the three-pass decoder protocol and returns conversations in
// first-seen (capture) order. Ordinals are assigned as streams are first
// observed in pass 1, so they are stable regardless of what pass 2/3
// subsequently report.
func Ingest(ctx context.Context, dec decoder.Decoder, captureFile string, sel Selection) ([]*Conversation, error) {
	ports, err := dec.Ports(ctx, captureFile)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(ports))
	byStream := make(map[string]*Conversation, len(ports))
	ordinalOf := make(map[string]int, len(ports))

	for _, p := range ports {
		if _, seen := byStream[p.StreamID]; seen {
			continue
		}
		ord := len(order) + 1
		order = append(order, p.StreamID)
		ordinalOf[p.StreamID] = ord
		c := &Conversation{
			ID:       ord,
			StreamID: p.StreamID,
			// Best-effort fallback per design notes: until a banner is
			// seen, the first packet's source is the client.
			Client: newEndpoint(p.SrcIP, p.SrcPort),
			Server: newEndpoint(p.DstIP, p.DstPort),
		}
		byStream[p.StreamID] = c
	}

	streams, err := dec.Streams(ctx, captureFile)
	if err != nil {
		return nil, err
	}

	sshStreams := make(map[string]bool)
	for _, m := range streams {
		c, ok := byStream[m.StreamID]
		if !ok {
			continue
		}
		if m.SSHMessageCode >= 0 || m.SSHBanner != "" {
			c.IsSSH = true
			sshStreams[m.StreamID] = true
		}
		if m.SSHBanner == "" {
			continue
		}
		// The first packet carrying a banner defines the server as its
		// sender and the client as its receiver.
		sender := newEndpoint(m.SrcIP, m.SrcPort)
		if !c.HasBanners {
			c.Server = sender
			c.Client = newEndpoint(m.DstIP, m.DstPort)
			c.ServerBanner = m.SSHBanner
			c.HasBanners = true
		} else if sender.String() == c.Server.String() {
			c.ServerBanner = m.SSHBanner
		} else {
			c.ClientBanner = m.SSHBanner
		}
		if hasAnyAlgorithm(m.Algorithms) {
			algos := algorithmsFromFields(m.Algorithms)
			if sender.String() == c.Server.String() {
				c.ServerAlgos = algos
			} else {
				c.ClientAlgos = algos
			}
			c.HasAlgorithms = true
		}
	}

	// Select which streams to fully decode: -a widens to all streams, the
	// default is SSH-only. -n does not narrow decoding, only reporting
	// (see the loop below), so a non-SSH-only run followed by -n still
	// decodes every candidate stream once.
	wanted := make([]string, 0, len(order))
	for _, sid := range order {
		if sel.All || sel.SSHOnly && sshStreams[sid] || !sel.SSHOnly {
			wanted = append(wanted, sid)
		}
	}

	packets, err := dec.Datagrams(ctx, captureFile, wanted)
	if err != nil {
		return nil, err
	}

	for _, p := range packets {
		c, ok := byStream[p.StreamID]
		if !ok {
			continue
		}
		appendDatagram(c, p)
	}

	result := make([]*Conversation, 0, len(order))
	for _, sid := range order {
		c := byStream[sid]
		ord := ordinalOf[sid]
		if !sel.wantsOrdinal(ord) {
			continue
		}
		if !sel.All && sel.SSHOnly && !c.IsSSH {
			continue
		}
		finalize(c)
		result = append(result, c)
	}
	return result, nil
}

func hasAnyAlgorithm(fields [8]string) bool {
	for _, f := range fields {
		if f != "" {
			return true
		}
	}
	return false
}

func appendDatagram(c *Conversation, p decoder.Packet) {
	d := &Datagram{
		SentByClient: newEndpoint(p.SrcIP, p.SrcPort).String() == c.Client.String(),
		Time:         p.Time,
		Seq:          p.Seq,
		Ack:          p.Ack,
		PayloadLen:   p.PayloadLen,
		TotalLen:     p.TotalLen,
	}
	c.Packets = append(c.Packets, d)
	if d.SentByClient {
		c.ClientPacketCount++
		c.ClientByteTotal += p.PayloadLen
	} else {
		c.ServerPacketCount++
		c.ServerByteTotal += p.PayloadLen
	}
}

func finalize(c *Conversation) {
	if len(c.Packets) == 0 {
		return
	}
	c.StartTime = c.Packets[0].Time
	last := c.Packets[len(c.Packets)-1].Time
	c.Duration = last.Sub(c.StartTime)
}

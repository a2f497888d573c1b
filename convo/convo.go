// Package convo reconstructs bidirectional SSH conversations from the flat
// packet stream produced by the decoder package: grouping by stream
// identifier, inferring client/server roles from SSH banner direction, and
// holding each conversation's banners, algorithm lists, and datagrams.
package convo

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/pasta-project/pasta-go/decoder"
)

// Endpoint pairs an IP literal with a port, exposed as gopacket types so
// conversations compose with gopacket's flow/endpoint algebra instead of a
// hand-rolled tuple type.
type Endpoint struct {
	IP   gopacket.Endpoint
	Port gopacket.Endpoint
}

func newEndpoint(ip string, port uint16) Endpoint {
	return Endpoint{
		IP:   layers.NewIPEndpoint(mustParseIP(ip)),
		Port: layers.NewTCPPortEndpoint(layers.TCPPort(port)),
	}
}

// Flow returns the gopacket.Flow oriented from this endpoint's IP to dst's.
func (e Endpoint) Flow(dst Endpoint) gopacket.Flow {
	return gopacket.NewFlow(e.IP.EndpointType(), e.IP.Raw(), dst.IP.Raw())
}

func (e Endpoint) String() string {
	return e.IP.String() + ":" + e.Port.String()
}

// Algorithms is the eight KEXINIT algorithm-preference lists, each a
// comma-separated name list as reported by the decoder, in RFC 4253
// section 7.1 order.
type Algorithms struct {
	KexAlgorithms                      string
	ServerHostKeyAlgorithms            string
	EncryptionAlgorithmsClientToServer string
	EncryptionAlgorithmsServerToClient string
	MacAlgorithmsClientToServer        string
	MacAlgorithmsServerToClient        string
	CompressionAlgorithmsClientToServer string
	CompressionAlgorithmsServerToClient string
}

func algorithmsFromFields(fields [8]string) Algorithms {
	return Algorithms{
		KexAlgorithms:                        fields[decoder.AlgoKex],
		ServerHostKeyAlgorithms:              fields[decoder.AlgoServerHostKey],
		EncryptionAlgorithmsClientToServer:   fields[decoder.AlgoEncryptionC2S],
		EncryptionAlgorithmsServerToClient:   fields[decoder.AlgoEncryptionS2C],
		MacAlgorithmsClientToServer:          fields[decoder.AlgoMacC2S],
		MacAlgorithmsServerToClient:          fields[decoder.AlgoMacS2C],
		CompressionAlgorithmsClientToServer:  fields[decoder.AlgoCompressionC2S],
		CompressionAlgorithmsServerToClient:  fields[decoder.AlgoCompressionS2C],
	}
}

// Datagram is a single packet record within a conversation. RTT is the only
// field legitimately mutated after construction (by the rtt package).
type Datagram struct {
	SentByClient bool
	Time         time.Time
	Seq          uint32
	Ack          int64 // -1 if absent
	PayloadLen   int
	TotalLen     int
	RTT          *time.Duration // nil until assigned
}

// Conversation holds everything known about one bidirectional TCP flow.
// Fields set during ingest (Client, Server, banners, algorithms, IsSSH,
// counters) are immutable afterward; the analysis slots below are each
// written at most once, by their owning analyzer.
type Conversation struct {
	ID       int // 1-based, stable, capture order
	StreamID string

	Client Endpoint
	Server Endpoint

	StartTime time.Time
	Duration  time.Duration

	ClientBanner string
	ServerBanner string
	HasBanners   bool

	ClientAlgos   Algorithms
	ServerAlgos   Algorithms
	HasAlgorithms bool

	IsSSH bool

	Packets []*Datagram

	ClientPacketCount int
	ServerPacketCount int
	ClientByteTotal   int
	ServerByteTotal   int

	// Analysis slots, written only by their owning analyzer: each scalar
	// slot at most once, OffCoincidencePartners once per surviving pair.
	RTTAssigned               bool
	IdleFraction              *float64
	ConnType                  string
	AlgorithmsSelected        *SelectedAlgorithms
	SteppingStoneServerSide   *bool
	OffCoincidencePartners    []int // conversation IDs of surviving OFF-coincidence pairs
}

// SelectedAlgorithms is the negotiated eight-tuple produced by the
// algoselect package; kept here to avoid an import cycle between convo and
// algoselect while still giving Conversation a typed result slot.
type SelectedAlgorithms struct {
	Kex                       string
	ServerHostKey             string
	EncryptionClientToServer  string
	EncryptionServerToClient  string
	MacClientToServer         string
	MacServerToClient         string
	CompressionClientToServer string
	CompressionServerToClient string
}

// Flow returns the conversation's client-to-server IP address pair as a
// gopacket.Flow; ports are not part of it.
func (c *Conversation) Flow() gopacket.Flow {
	return c.Client.Flow(c.Server)
}

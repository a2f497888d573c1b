package convo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasta-project/pasta-go/decoder"
)

type fakeDecoder struct {
	ports     []decoder.PortPair
	streams   []decoder.StreamMeta
	datagrams []decoder.Packet
}

func (f *fakeDecoder) Ports(ctx context.Context, captureFile string) ([]decoder.PortPair, error) {
	return f.ports, nil
}
func (f *fakeDecoder) Streams(ctx context.Context, captureFile string) ([]decoder.StreamMeta, error) {
	return f.streams, nil
}
func (f *fakeDecoder) Datagrams(ctx context.Context, captureFile string, streamIDs []string) ([]decoder.Packet, error) {
	return f.datagrams, nil
}

func TestIngestInfersRolesFromBanner(t *testing.T) {
	base := time.Unix(1700000000, 0)
	dec := &fakeDecoder{
		ports: []decoder.PortPair{
			{StreamID: "0", SrcIP: "10.0.0.1", SrcPort: 34000, DstIP: "10.0.0.2", DstPort: 22},
		},
		streams: []decoder.StreamMeta{
			{
				StreamID: "0", Time: base, SrcIP: "10.0.0.2", SrcPort: 22, DstIP: "10.0.0.1", DstPort: 34000,
				SSHBanner: "SSH-2.0-OpenSSH_7.4", SSHMessageCode: -1,
			},
			{
				StreamID: "0", Time: base.Add(time.Millisecond), SrcIP: "10.0.0.1", SrcPort: 34000, DstIP: "10.0.0.2", DstPort: 22,
				SSHBanner: "SSH-2.0-PuTTY_0.7", SSHMessageCode: -1,
			},
		},
		datagrams: []decoder.Packet{
			{StreamID: "0", Time: base, SrcIP: "10.0.0.2", SrcPort: 22, Seq: 1, Ack: -1, PayloadLen: 20, TotalLen: 60},
			{StreamID: "0", Time: base.Add(time.Millisecond), SrcIP: "10.0.0.1", SrcPort: 34000, Seq: 1, Ack: 21, PayloadLen: 0, TotalLen: 40},
		},
	}

	sel := Selection{SSHOnly: true}
	conversations, err := Ingest(context.Background(), dec, "fake.pcap", sel)
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	c := conversations[0]
	assert.Equal(t, 1, c.ID)
	assert.True(t, c.IsSSH)
	assert.Equal(t, "10.0.0.2:22", c.Server.String())
	assert.Equal(t, "10.0.0.1:34000", c.Client.String())
	assert.Equal(t, "SSH-2.0-OpenSSH_7.4", c.ServerBanner)
	assert.Equal(t, "SSH-2.0-PuTTY_0.7", c.ClientBanner)
	require.Len(t, c.Packets, 2)
	assert.True(t, c.Packets[0].SentByClient == false)
	assert.True(t, c.Packets[1].SentByClient)
}

func TestIngestSSHOnlyExcludesNonSSHStreams(t *testing.T) {
	base := time.Unix(1700000000, 0)
	dec := &fakeDecoder{
		ports: []decoder.PortPair{
			{StreamID: "0", SrcIP: "10.0.0.1", SrcPort: 1, DstIP: "10.0.0.2", DstPort: 80},
		},
		datagrams: []decoder.Packet{
			{StreamID: "0", Time: base, SrcIP: "10.0.0.1", SrcPort: 1, Seq: 1, Ack: -1, PayloadLen: 10, TotalLen: 50},
		},
	}
	sel := Selection{SSHOnly: true}
	conversations, err := Ingest(context.Background(), dec, "fake.pcap", sel)
	require.NoError(t, err)
	assert.Empty(t, conversations)
}

func TestIngestAllIncludesNonSSHStreams(t *testing.T) {
	base := time.Unix(1700000000, 0)
	dec := &fakeDecoder{
		ports: []decoder.PortPair{
			{StreamID: "0", SrcIP: "10.0.0.1", SrcPort: 1, DstIP: "10.0.0.2", DstPort: 80},
		},
		datagrams: []decoder.Packet{
			{StreamID: "0", Time: base, SrcIP: "10.0.0.1", SrcPort: 1, Seq: 1, Ack: -1, PayloadLen: 10, TotalLen: 50},
		},
	}
	sel := Selection{All: true}
	conversations, err := Ingest(context.Background(), dec, "fake.pcap", sel)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.False(t, conversations[0].IsSSH)
}

func TestIngestOrdinalFilter(t *testing.T) {
	dec := &fakeDecoder{
		ports: []decoder.PortPair{
			{StreamID: "0", SrcIP: "10.0.0.1", SrcPort: 1, DstIP: "10.0.0.2", DstPort: 22},
			{StreamID: "1", SrcIP: "10.0.0.3", SrcPort: 2, DstIP: "10.0.0.4", DstPort: 22},
		},
	}
	sel := Selection{All: true, Ordinals: map[int]bool{2: true}}
	conversations, err := Ingest(context.Background(), dec, "fake.pcap", sel)
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, 2, conversations[0].ID)
}

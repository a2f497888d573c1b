// Package decoder wraps the external packet decoder (a tshark-compatible
// binary) that turns a capture file into typed records. The decoder itself
// is never reimplemented here: it is invoked as a child process three
// times per capture and its tab-separated output is parsed into Go values.
package decoder

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultBinary is the decoder binary name used when --tshark is not set.
const DefaultBinary = "tshark"

// DecoderMissing means the configured decoder binary could not be found or
// executed at all (exit code 3 at the CLI layer: missing optional
// dependency).
type DecoderMissing struct {
	Binary string
	Err    error
}

func (e *DecoderMissing) Error() string {
	return fmt.Sprintf("decoder binary %q not found: %v", e.Binary, e.Err)
}

func (e *DecoderMissing) Unwrap() error { return e.Err }

// DecoderFailure means the decoder ran but exited non-zero.
type DecoderFailure struct {
	Binary   string
	Args     []string
	Stderr   string
	ExitCode int
}

func (e *DecoderFailure) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("decoder %s failed: %s", e.Binary, msg)
}

// BadField means a line of decoder output had a field that could not be
// parsed into the expected type.
type BadField struct {
	Field string
	Value string
	Err   error
}

func (e *BadField) Error() string {
	return fmt.Sprintf("bad decoder field %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *BadField) Unwrap() error { return e.Err }

// PortPair is one row of pass 1: the per-stream endpoint identity, used to
// enumerate every TCP conversation in the capture regardless of protocol.
type PortPair struct {
	StreamID string
	SrcIP    string
	SrcPort  uint16
	DstIP    string
	DstPort  uint16
}

// StreamMeta is one row of pass 2: a packet that the decoder recognized as
// carrying SSH protocol content, with the fields needed to infer
// client/server role and to record the version-exchange banner and KEXINIT
// algorithm lists.
type StreamMeta struct {
	StreamID       string
	Time           time.Time
	SrcIP          string
	SrcPort        uint16
	DstIP          string
	DstPort        uint16
	SSHBanner      string // ssh.protocol; empty if this row is not a banner line
	SSHMessageCode int    // -1 if absent
	Algorithms     [8]string
}

// Algorithm field indices into StreamMeta.Algorithms, matching RFC 4253
// section 7.1 order.
const (
	AlgoKex = iota
	AlgoServerHostKey
	AlgoEncryptionC2S
	AlgoEncryptionS2C
	AlgoMacC2S
	AlgoMacS2C
	AlgoCompressionC2S
	AlgoCompressionS2C
)

// Packet is one row of pass 3: a single datagram of a selected stream, with
// enough information to reconstruct RTT and payload statistics. Ack is -1
// when the packet carried no ACK flag.
type Packet struct {
	StreamID   string
	Time       time.Time
	SrcIP      string
	SrcPort    uint16
	Seq        uint32
	Ack        int64
	PayloadLen int
	TotalLen   int
}

// Decoder is the external collaborator contract: three subprocess
// invocations over the same capture file.
type Decoder interface {
	Ports(ctx context.Context, captureFile string) ([]PortPair, error)
	Streams(ctx context.Context, captureFile string) ([]StreamMeta, error)
	Datagrams(ctx context.Context, captureFile string, streamIDs []string) ([]Packet, error)
}

// Tshark invokes a tshark-compatible binary to implement Decoder.
type Tshark struct {
	Binary string
}

func New(binary string) *Tshark {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Tshark{Binary: binary}
}

func (t *Tshark) run(ctx context.Context, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, t.Binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to attach decoder stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, &DecoderMissing{Binary: t.Binary, Err: err}
	}

	var lines []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if waitErr != nil {
		exitCode := -1
		if exitError, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		}
		return nil, &DecoderFailure{
			Binary:   t.Binary,
			Args:     args,
			Stderr:   stderr.String(),
			ExitCode: exitCode,
		}
	}
	if scanErr != nil {
		return nil, errors.Wrap(scanErr, "failed to read decoder output")
	}
	return lines, nil
}

// Ports implements pass 1: "tshark -n -r FILE -q -z conv,tcp"-style port
// enumeration, one stream per conversation line.
func (t *Tshark) Ports(ctx context.Context, captureFile string) ([]PortPair, error) {
	lines, err := t.run(ctx, "-n", "-r", captureFile, "-q", "-z", "conv,tcp")
	if err != nil {
		return nil, err
	}
	return parsePortsLines(lines)
}

// parsePortsLines turns "conv,tcp" table lines into PortPairs. Each line is
// whitespace-fields shaped "SRC:PORT <-> DST:PORT ...totals...", where
// fields[1] is the literal "<->" arrow glyph, not an endpoint.
func parsePortsLines(lines []string) ([]PortPair, error) {
	pairs := make([]PortPair, 0, len(lines))
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		src, srcPort, err := splitHostPort(fields[0])
		if err != nil {
			return nil, &BadField{Field: "src", Value: fields[0], Err: err}
		}
		dst, dstPort, err := splitHostPort(fields[2])
		if err != nil {
			return nil, &BadField{Field: "dst", Value: fields[2], Err: err}
		}
		pairs = append(pairs, PortPair{
			StreamID: strconv.Itoa(i),
			SrcIP:    src,
			SrcPort:  srcPort,
			DstIP:    dst,
			DstPort:  dstPort,
		})
	}
	return pairs, nil
}

// streamFields is the -e field order used by Streams.
var streamFields = []string{
	"tcp.stream", "frame.time_epoch", "ip.src", "tcp.srcport",
	"ip.dst", "tcp.dstport", "ssh.protocol", "ssh.message_code",
	"ssh.kex_algorithms", "ssh.server_host_key_algorithms",
	"ssh.encryption_algorithms_client_to_server",
	"ssh.encryption_algorithms_server_to_client",
	"ssh.mac_algorithms_client_to_server",
	"ssh.mac_algorithms_server_to_client",
	"ssh.compression_algorithms_client_to_server",
	"ssh.compression_algorithms_server_to_client",
}

// Streams implements pass 2: enumerate SSH-bearing streams with banner and
// KEXINIT algorithm lists.
func (t *Tshark) Streams(ctx context.Context, captureFile string) ([]StreamMeta, error) {
	args := []string{"-n", "-r", captureFile, "-Y", "ssh", "-T", "fields"}
	for _, f := range streamFields {
		args = append(args, "-e", f)
	}
	lines, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	metas := make([]StreamMeta, 0, len(lines))
	for _, line := range lines {
		cols := strings.Split(line, "\t")
		if len(cols) < len(streamFields) {
			continue
		}
		ts, err := parseEpoch(cols[1])
		if err != nil {
			return nil, &BadField{Field: "frame.time_epoch", Value: cols[1], Err: err}
		}
		srcPort, err := parsePort(cols[3])
		if err != nil {
			return nil, &BadField{Field: "tcp.srcport", Value: cols[3], Err: err}
		}
		dstPort, err := parsePort(cols[5])
		if err != nil {
			return nil, &BadField{Field: "tcp.dstport", Value: cols[5], Err: err}
		}
		msgCode := -1
		if cols[7] != "" {
			msgCode, err = strconv.Atoi(cols[7])
			if err != nil {
				return nil, &BadField{Field: "ssh.message_code", Value: cols[7], Err: err}
			}
		}
		m := StreamMeta{
			StreamID:       cols[0],
			Time:           ts,
			SrcIP:          cols[2],
			SrcPort:        srcPort,
			DstIP:          cols[4],
			DstPort:        dstPort,
			SSHBanner:      cols[6],
			SSHMessageCode: msgCode,
		}
		copy(m.Algorithms[:], cols[8:16])
		metas = append(metas, m)
	}
	return metas, nil
}

var datagramFields = []string{
	"tcp.stream", "tcp.seq", "frame.time_epoch", "tcp.len", "frame.len", "tcp.ack", "ip.src", "tcp.srcport",
}

// Datagrams implements pass 3: extract every datagram of the given streams.
func (t *Tshark) Datagrams(ctx context.Context, captureFile string, streamIDs []string) ([]Packet, error) {
	filter := buildStreamFilter(streamIDs)
	args := []string{"-n", "-r", captureFile}
	if filter != "" {
		args = append(args, "-Y", filter)
	}
	args = append(args, "-T", "fields")
	for _, f := range datagramFields {
		args = append(args, "-e", f)
	}
	lines, err := t.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	packets := make([]Packet, 0, len(lines))
	for _, line := range lines {
		cols := strings.Split(line, "\t")
		if len(cols) < len(datagramFields) {
			continue
		}
		seq, err := strconv.ParseUint(cols[1], 10, 32)
		if err != nil {
			return nil, &BadField{Field: "tcp.seq", Value: cols[1], Err: err}
		}
		ts, err := parseEpoch(cols[2])
		if err != nil {
			return nil, &BadField{Field: "frame.time_epoch", Value: cols[2], Err: err}
		}
		payloadLen, err := strconv.Atoi(cols[3])
		if err != nil {
			return nil, &BadField{Field: "tcp.len", Value: cols[3], Err: err}
		}
		totalLen, err := strconv.Atoi(cols[4])
		if err != nil {
			return nil, &BadField{Field: "frame.len", Value: cols[4], Err: err}
		}
		ack := int64(-1)
		if cols[5] != "" {
			ack, err = strconv.ParseInt(cols[5], 10, 64)
			if err != nil {
				return nil, &BadField{Field: "tcp.ack", Value: cols[5], Err: err}
			}
		}
		srcPort, err := parsePort(cols[7])
		if err != nil {
			return nil, &BadField{Field: "tcp.srcport", Value: cols[7], Err: err}
		}
		packets = append(packets, Packet{
			StreamID:   cols[0],
			Time:       ts,
			SrcIP:      cols[6],
			SrcPort:    srcPort,
			Seq:        uint32(seq),
			Ack:        ack,
			PayloadLen: payloadLen,
			TotalLen:   totalLen,
		})
	}
	return packets, nil
}

func buildStreamFilter(streamIDs []string) string {
	if len(streamIDs) == 0 {
		return ""
	}
	terms := make([]string, len(streamIDs))
	for i, id := range streamIDs {
		terms[i] = fmt.Sprintf("tcp.stream==%s", id)
	}
	return strings.Join(terms, " || ")
}

func splitHostPort(s string) (string, uint16, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", 0, errors.Errorf("missing port separator in %q", s)
	}
	port, err := parsePort(s[idx+1:])
	if err != nil {
		return "", 0, err
	}
	return s[:idx], port, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func parseEpoch(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return time.Time{}, err
	}
	secs := int64(f)
	nsecs := int64((f - float64(secs)) * 1e9)
	return time.Unix(secs, nsecs).UTC(), nil
}

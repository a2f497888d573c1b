// Package banner parses the RFC 4253 section 4.2 SSH version-exchange
// line into its protocol, software, and optional comment fields.
package banner

import (
	"fmt"
	"strings"
)

// Banner is a parsed SSH version-exchange identification string.
type Banner struct {
	ProtocolVersion string
	SoftwareVersion string
	Comment         string
	HasComment      bool
}

// BadBanner means the input did not match SSH-<proto>-<soft>[ <comment>].
type BadBanner struct {
	Input string
}

func (e *BadBanner) Error() string {
	return fmt.Sprintf("malformed SSH version-exchange banner: %q", e.Input)
}

// Parse trims trailing CR/LF, splits on the first space into
// identification and comment, then splits identification on the first two
// hyphens into exactly three fields.
func Parse(line string) (Banner, error) {
	trimmed := strings.TrimRight(line, " \n\r")

	identification := trimmed
	comment := ""
	hasComment := false
	if idx := strings.IndexByte(trimmed, ' '); idx >= 0 {
		identification = trimmed[:idx]
		comment = trimmed[idx+1:]
		hasComment = true
	}

	parts := strings.SplitN(identification, "-", 3)
	if len(parts) != 3 || parts[0] != "SSH" {
		return Banner{}, &BadBanner{Input: line}
	}

	return Banner{
		ProtocolVersion: parts[1],
		SoftwareVersion: parts[2],
		Comment:         comment,
		HasComment:      hasComment,
	}, nil
}

// Format is the inverse of Parse, used by P9 (round-trip) testing.
func Format(b Banner) string {
	s := fmt.Sprintf("SSH-%s-%s", b.ProtocolVersion, b.SoftwareVersion)
	if b.HasComment {
		s += " " + b.Comment
	}
	return s
}

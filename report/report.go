// Package report formats analyzed conversations as plain text, an aligned
// table, or CSV. These formatters are thin by design: they read
// conversation state and never perform analysis themselves.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/gocarina/gocsv"

	"github.com/pasta-project/pasta-go/banner"
	"github.com/pasta-project/pasta-go/convo"
)

// Row is one conversation's reportable fields, tagged for gocsv.
type Row struct {
	ID           int     `csv:"id"`
	Client       string  `csv:"client"`
	Server       string  `csv:"server"`
	IsSSH        bool    `csv:"is_ssh"`
	ConnType     string  `csv:"conn_type"`
	IdleFraction string  `csv:"idle_fraction"`
	SteppingSide string  `csv:"stepping_stone_server_side"`
	OffPartners  string  `csv:"off_coincidence_partners"`
	DurationSecs float64 `csv:"duration_seconds"`
}

func toRow(c *convo.Conversation) Row {
	idleStr := "n/a"
	if c.IdleFraction != nil {
		idleStr = fmt.Sprintf("%.3f", *c.IdleFraction)
	}
	steppingStr := "n/a"
	if c.SteppingStoneServerSide != nil {
		steppingStr = fmt.Sprintf("%v", *c.SteppingStoneServerSide)
	}
	partners := make([]string, len(c.OffCoincidencePartners))
	for i, p := range c.OffCoincidencePartners {
		partners[i] = fmt.Sprintf("%d", p)
	}
	return Row{
		ID:           c.ID,
		Client:       c.Client.String(),
		Server:       c.Server.String(),
		IsSSH:        c.IsSSH,
		ConnType:     c.ConnType,
		IdleFraction: idleStr,
		SteppingSide: steppingStr,
		OffPartners:  strings.Join(partners, ","),
		DurationSecs: c.Duration.Seconds(),
	}
}

// Summary writes a one-line-per-conversation summary (the -s option).
func Summary(w io.Writer, conversations []*convo.Conversation) {
	for _, c := range conversations {
		fmt.Fprintf(w, "#%d %s -> %s  ssh=%v type=%s\n",
			c.ID, c.Client, c.Server, c.IsSSH, conversationTypeOrDash(c))
	}
}

// Full writes a multi-line detailed report per conversation (the -S option).
func Full(w io.Writer, conversations []*convo.Conversation) {
	for _, c := range conversations {
		fmt.Fprintf(w, "Conversation #%d\n", c.ID)
		fmt.Fprintf(w, "  client:   %s\n", c.Client)
		fmt.Fprintf(w, "  server:   %s\n", c.Server)
		fmt.Fprintf(w, "  ssh:      %v\n", c.IsSSH)
		fmt.Fprintf(w, "  duration: %s\n", c.Duration)
		fmt.Fprintf(w, "  type:     %s\n", conversationTypeOrDash(c))
		if c.IdleFraction != nil {
			fmt.Fprintf(w, "  idle:     %.3f\n", *c.IdleFraction)
		}
		if c.ServerBanner != "" {
			if b, err := banner.Parse(c.ServerBanner); err == nil {
				fmt.Fprintf(w, "  server sw: %s (protocol %s)\n", b.SoftwareVersion, b.ProtocolVersion)
			}
		}
		if c.AlgorithmsSelected != nil {
			a := c.AlgorithmsSelected
			fmt.Fprintf(w, "  kex:      %s\n", a.Kex)
			fmt.Fprintf(w, "  host key: %s\n", a.ServerHostKey)
		}
		if c.SteppingStoneServerSide != nil {
			fmt.Fprintf(w, "  stepping-stone (server-side): %v\n", *c.SteppingStoneServerSide)
		}
		if len(c.OffCoincidencePartners) > 0 {
			fmt.Fprintf(w, "  stepping-stone (onoff, with): %v\n", c.OffCoincidencePartners)
		}
		fmt.Fprintln(w)
	}
}

// Table writes an aligned table using the standard library's tabwriter.
// No table-rendering library exists in the retrieved example pack, so this
// formatter is the one ambient concern in this repository implemented on
// the standard library.
func Table(w io.Writer, conversations []*convo.Conversation) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLIENT\tSERVER\tSSH\tTYPE\tIDLE\tSTEPPING-STONE")
	for _, c := range conversations {
		idleStr := "-"
		if c.IdleFraction != nil {
			idleStr = fmt.Sprintf("%.3f", *c.IdleFraction)
		}
		steppingStr := "-"
		if c.SteppingStoneServerSide != nil {
			steppingStr = fmt.Sprintf("%v", *c.SteppingStoneServerSide)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%s\t%s\t%s\n",
			c.ID, c.Client, c.Server, c.IsSSH, conversationTypeOrDash(c), idleStr, steppingStr)
	}
	tw.Flush()
}

// CSV writes the conversation set as CSV via gocarina/gocsv.
func CSV(w io.Writer, conversations []*convo.Conversation) error {
	rows := make([]Row, len(conversations))
	for i, c := range conversations {
		rows[i] = toRow(c)
	}
	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func conversationTypeOrDash(c *convo.Conversation) string {
	if c.ConnType == "" {
		return "-"
	}
	return c.ConnType
}

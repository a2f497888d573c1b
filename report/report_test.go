package report

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pasta-project/pasta-go/convo"
)

func sampleConversation() *convo.Conversation {
	idle := 0.25
	steppingStone := true
	return &convo.Conversation{
		ID:                      1,
		Client:                  convo.Endpoint{},
		Server:                  convo.Endpoint{},
		IsSSH:                   true,
		ConnType:                "interactive-shell",
		IdleFraction:            &idle,
		SteppingStoneServerSide: &steppingStone,
		OffCoincidencePartners:  []int{2, 3},
	}
}

func TestToRowProjectsAnalysisSlots(t *testing.T) {
	c := sampleConversation()
	got := toRow(c)
	want := Row{
		ID:           1,
		Client:       c.Client.String(),
		Server:       c.Server.String(),
		IsSSH:        true,
		ConnType:     "interactive-shell",
		IdleFraction: "0.250",
		SteppingSide: "true",
		OffPartners:  "2,3",
		DurationSecs: 0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("toRow mismatch (-want +got):\n%s", diff)
	}
}

func TestToRowHandlesUnanalyzedConversation(t *testing.T) {
	c := &convo.Conversation{ID: 2}
	got := toRow(c)
	assert.Equal(t, "n/a", got.IdleFraction)
	assert.Equal(t, "n/a", got.SteppingSide)
	assert.Equal(t, "", got.OffPartners)
}

func TestCSVIncludesHeaderAndRow(t *testing.T) {
	var buf bytes.Buffer
	err := CSV(&buf, []*convo.Conversation{sampleConversation()})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "id,client,server")
	assert.Contains(t, out, "interactive-shell")
}

func TestTableWritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	Table(&buf, []*convo.Conversation{sampleConversation()})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "interactive-shell")
}

func TestSummaryOneLinePerConversation(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, []*convo.Conversation{{ID: 1}, {ID: 2}})
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

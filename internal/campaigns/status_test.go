package campaigns

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	allowed := [][2]Status{
		{StatusDraft, StatusActive},
		{StatusActive, StatusDraft},
		{StatusActive, StatusPaused},
		{StatusActive, StatusCompleted},
		{StatusPaused, StatusActive},
		{StatusPaused, StatusDraft},
	}
	for _, tr := range allowed {
		assert.NoError(t, Transition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	rejected := [][2]Status{
		{StatusDraft, StatusCompleted},
		{StatusDraft, StatusPaused},
		{StatusCompleted, StatusActive},
		{StatusCompleted, StatusDraft},
		{StatusPaused, StatusCompleted},
		{StatusActive, StatusActive},
		{Status("archived"), StatusActive},
	}
	for _, tr := range rejected {
		err := Transition(tr[0], tr[1])
		assert.True(t, errors.Is(err, ErrIllegalTransition), "%s -> %s", tr[0], tr[1])
	}
}

func TestRunnableAndResettable(t *testing.T) {
	assert.True(t, Runnable(StatusDraft))
	assert.True(t, Runnable(StatusPaused))
	assert.False(t, Runnable(StatusActive))
	assert.False(t, Runnable(StatusCompleted))

	assert.True(t, Resettable(StatusActive))
	assert.True(t, Resettable(StatusPaused))
	assert.False(t, Resettable(StatusDraft))
	assert.False(t, Resettable(StatusCompleted))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("paused")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, s)

	_, err = ParseStatus("running")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestSearchParameters_LegacyShape(t *testing.T) {
	raw := `{"location":"Austin, TX","salesTargets":["dentists","Dentists","clinics"],
		"numberOfLeads":10,"service":"scraping_calling","businessData":{"x":1},
		"scripts":{"CEO":{"firstMessage":"hi"}}}`

	var p SearchParameters
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, []string{"Austin, TX"}, p.AllLocations())
	assert.Equal(t, []string{"dentists", "clinics"}, p.AllKeywords())
	assert.True(t, p.CallingEnabled())
	assert.Equal(t, 10, p.Quota())
	assert.Equal(t, "hi", p.Scripts["CEO"].FirstMessage)
	assert.Len(t, p.Pairs(), 2)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Contains(t, back, "businessData")
	assert.Equal(t, "Austin, TX", back["location"])
}

func TestSearchParameters_PairsOrder(t *testing.T) {
	p := SearchParameters{Locations: []string{"A", "B"}, Keywords: []string{"x", "y"}}
	assert.Equal(t, []Pair{{"A", "x"}, {"A", "y"}, {"B", "x"}, {"B", "y"}}, p.Pairs())
	assert.Equal(t, DefaultNumberOfLeads, p.Quota())
	assert.Equal(t, ServiceScraping, p.EffectiveService())
	assert.False(t, p.CallingEnabled())
}

package qprof

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchLabel_ExactWinsOverSubstring(t *testing.T) {
	labels := []string{"", "FCO001 - Cobrança (novo)", "FCO001 - Cobrança", "Relatórios"}

	idx, ok := matchLabel(labels, "FCO001 - Cobrança")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestMatchLabel_FallsBackToSubstring(t *testing.T) {
	labels := []string{"Início", "FCO001 - Cobrança Bancária", "Sair"}

	idx, ok := matchLabel(labels, "FCO001 - Cobrança")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatchLabel_CaseSensitive(t *testing.T) {
	_, ok := matchLabel([]string{"cobrança"}, "COBRANÇA")
	assert.False(t, ok)
}

func TestMatchLabel_NotFound(t *testing.T) {
	_, ok := matchLabel([]string{"", "Relatórios"}, "Ret. Bancário")
	assert.False(t, ok)
}

func TestMatchContext_SkipsSelectedEntry(t *testing.T) {
	opts := []contextOption{
		{Text: "FLOW INVEST", Selected: true},
		{Text: "Flow Invest Securitizadora"},
	}

	idx, ok := matchContext(opts, "flow invest")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
}

func TestMatchContext_CaseInsensitive(t *testing.T) {
	opts := []contextOption{{Text: "ACME Securitizadora S.A."}}

	idx, ok := matchContext(opts, "acme securitizadora")
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestMatchContext_NotOffered(t *testing.T) {
	opts := []contextOption{
		{Text: "FLOW INVEST", Selected: true},
		{Text: ""},
	}

	_, ok := matchContext(opts, "FLOW INVEST")
	assert.False(t, ok)
}

func TestDumpLabels_CapsAndFilters(t *testing.T) {
	labels := []string{"", "   ", strings.Repeat("x", 60)}
	for i := 0; i < 30; i++ {
		labels = append(labels, "Menu")
	}

	dump := dumpLabels(labels)
	assert.Equal(t, maxLabelDump, strings.Count(dump, "Menu"))
	assert.NotContains(t, dump, "x")
}

func TestWaitFor_ConditionEventuallyMet(t *testing.T) {
	calls := 0
	err := waitFor(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitFor_Timeout(t *testing.T) {
	err := waitFor(context.Background(), 10*time.Millisecond, time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, errWaitTimeout)
}

func TestWaitFor_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := waitFor(context.Background(), time.Second, time.Millisecond, func(context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitFor(ctx, time.Second, time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

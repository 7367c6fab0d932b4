package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanTFTP/pkg/transfer"
)

func TestTransferModelKnownSize(t *testing.T) {
	m := NewTransferModel("Uploading report.pdf", 2048, nil)

	next, cmd := m.Update(progressMsg{Block: 2, Blocks: 2, Bytes: 1024, Total: 2048})
	m = next.(TransferModel)
	assert.NotNil(t, cmd, "bar animation should start")
	assert.InDelta(t, 0.5, m.Percent(), 0.001)
	assert.Contains(t, m.View(), "1 KB / 2 KB")
	assert.Contains(t, m.View(), "Press q to cancel")
}

func TestTransferModelUnknownSize(t *testing.T) {
	m := NewTransferModel("Downloading boot.img", -1, nil)

	next, cmd := m.Update(progressMsg{Block: 3, Blocks: 3, Bytes: 1536})
	m = next.(TransferModel)
	assert.Nil(t, cmd)
	assert.Zero(t, m.Percent())
	assert.Contains(t, m.View(), "1.5 KB received (block 3)")
}

func TestTransferModelDone(t *testing.T) {
	m := NewTransferModel("x", 10, nil)

	next, cmd := m.Update(doneMsg{stats: transfer.Stats{Bytes: 10, Blocks: 1, Duration: time.Second}})
	m = next.(TransferModel)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.View(), "Done: 10 B in 1 blocks")
	assert.NotContains(t, m.View(), "Press q")

	next, _ = m.Update(doneMsg{err: errors.New("peer error 1: File not found")})
	assert.Contains(t, next.View(), "Transfer failed: peer error 1: File not found")
}

func TestTransferModelCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewTransferModel("x", -1, cancel)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Contains(t, next.View(), "Canceled")
}

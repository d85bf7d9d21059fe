package tui

import (
	"context"
	"math/big"
	"testing"

	"nftmint/pkg/app"
	"nftmint/pkg/config"
	"nftmint/pkg/events"
	"nftmint/pkg/gallery"
	"nftmint/pkg/models"
	"nftmint/pkg/wallet"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	a := app.NewWithProvider(config.Default(), nil)
	m := initialModel(context.Background(), a)
	t.Cleanup(func() { a.Hub().Unsubscribe(m.sub) })
	return m
}

func TestGridColumns(t *testing.T) {
	assert.Equal(t, 1, gridColumns(0))
	assert.Equal(t, 1, gridColumns(40))
	assert.Equal(t, 2, gridColumns(2*cellWidth+4))
	assert.Equal(t, maxCols, gridColumns(500))
}

func TestMoveSelection(t *testing.T) {
	tests := []struct {
		sel, delta, n, want int
	}{
		{0, 1, 16, 1},
		{0, -1, 16, 0},
		{15, 1, 16, 15},
		{2, 4, 16, 6},
		{14, 4, 16, 15},
		{3, 1, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, moveSelection(tt.sel, tt.delta, tt.n))
	}
}

func TestVisibleRowRange(t *testing.T) {
	start, end := visibleRowRange(0, 4, 16, 10)
	assert.Equal(t, 0, start)
	assert.Equal(t, 4, end)

	// 16 items in 2 columns is 8 rows, 3 fit.
	start, end = visibleRowRange(0, 2, 16, 3)
	assert.Equal(t, []int{0, 3}, []int{start, end})
	start, end = visibleRowRange(9, 2, 16, 3)
	assert.Equal(t, []int{3, 6}, []int{start, end})
	start, end = visibleRowRange(15, 2, 16, 3)
	assert.Equal(t, []int{5, 8}, []int{start, end})

	start, end = visibleRowRange(5, 1, 16, 0)
	assert.Equal(t, 1, end-start)
}

func TestItemState(t *testing.T) {
	label, _ := itemState(models.ImageResult{}, false)
	assert.Equal(t, "loading…", label)

	label, _ = itemState(models.ImageResult{OK: true, URL: "https://ipfs.io/ipfs/Qm/1.jpg", Attempts: 1}, true)
	assert.Equal(t, "● ipfs.io", label)

	label, _ = itemState(models.ImageResult{OK: true, URL: "https://dweb.link/ipfs/Qm/1.jpg", Attempts: 3}, true)
	assert.Contains(t, label, "fallback")

	label, _ = itemState(models.ImageResult{OK: false, Attempts: 3}, true)
	assert.Equal(t, "✕ image unavailable", label)
}

func TestLatencyHelpers(t *testing.T) {
	samples := map[string][]float64{
		"ipfs.io":   {120, -1, 80},
		"dweb.link": {300},
	}
	assert.Equal(t, []string{"dweb.link", "ipfs.io"}, sortedHosts(samples))

	ok, failures := splitSamples(samples["ipfs.io"])
	assert.Equal(t, []float64{120, 80}, ok)
	assert.Equal(t, 1, failures)

	low, avg, high := sampleStats(ok)
	assert.Equal(t, 80.0, low)
	assert.Equal(t, 100.0, avg)
	assert.Equal(t, 120.0, high)

	host, found := busiestHost(samples)
	assert.True(t, found)
	assert.Equal(t, "ipfs.io", host)

	_, found = busiestHost(nil)
	assert.False(t, found)

	assert.Empty(t, renderLatencySparkline(nil))
	assert.Contains(t, renderLatencySparkline([]float64{-1, -1}), "×")
}

func TestOwnedLabel(t *testing.T) {
	assert.Equal(t, "-", ownedLabel(nil))
	assert.Equal(t, "3", ownedLabel(big.NewInt(3)))
}

func TestApplyEvent(t *testing.T) {
	m := newTestModel(t)

	text, isErr := m.applyEvent(events.Event{Type: events.EventNotice, Data: events.Notice{Level: events.LevelError, Text: "boom"}})
	assert.Equal(t, "boom", text)
	assert.True(t, isErr)

	text, _ = m.applyEvent(events.Event{Type: events.EventImageResolved, Data: models.ImageResult{Slot: 3, OK: true}})
	assert.Empty(t, text)
	assert.True(t, m.images[3].OK)

	m.applyEvent(events.Event{Type: events.EventMintStarted, Data: 3})
	assert.Equal(t, 3, m.mintingSlot)
	m.applyEvent(events.Event{Type: events.EventMintFinished})
	assert.Equal(t, -1, m.mintingSlot)

	m.applyEvent(events.Event{Type: events.EventReload})
	assert.Empty(t, m.images)
}

func TestUpdate_ConnectWithoutWallet(t *testing.T) {
	m := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.NotNil(t, cmd)
	mm := next.(model)
	assert.True(t, mm.connecting)

	// A second press while connecting is ignored.
	_, again := mm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	assert.Nil(t, again)

	done, ok := cmd().(connectDoneMsg)
	require.True(t, ok)
	assert.ErrorIs(t, done.err, wallet.ErrWalletUnavailable)

	next, _ = mm.Update(done)
	assert.False(t, next.(model).connecting)
}

func TestUpdate_Navigation(t *testing.T) {
	m := newTestModel(t)
	m.width = 2*cellWidth + 4
	m.items = make([]gallery.ItemView, 5)
	for i := range m.items {
		m.items[i] = gallery.ItemView{SlotIndex: i + 1, Name: "Item"}
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, next.(model).selected)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRight})
	assert.Equal(t, 3, next.(model).selected)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, next.(model).showDetail)
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, next.(model).showDetail)
}

func TestUpdate_MintSelected(t *testing.T) {
	m := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	assert.Nil(t, cmd, "nothing to mint without items")

	m.items = []gallery.ItemView{{SlotIndex: 1, Name: "Item #1"}}
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	require.NotNil(t, cmd)
	assert.Equal(t, 1, next.(model).mintingSlot)

	done, ok := cmd().(mintDoneMsg)
	require.True(t, ok)
	assert.Error(t, done.err)
	assert.Nil(t, done.res)
}

func TestView_Renders(t *testing.T) {
	m := newTestModel(t)
	assert.Equal(t, "Initializing...", m.View())

	m.width, m.height = 120, 40
	assert.Contains(t, m.View(), "No items to display.")

	m.items = []gallery.ItemView{
		{SlotIndex: 1, Name: "Piece 1", MetadataOK: true},
		{SlotIndex: 2, Name: "Item #2"},
	}
	m.images[1] = models.ImageResult{Slot: 1, OK: true, URL: "https://ipfs.io/ipfs/Qm/1.jpg", Attempts: 1}
	out := m.View()
	assert.Contains(t, out, "Piece 1")
	assert.Contains(t, out, "no metadata")
	assert.Contains(t, out, "not connected")

	m.showGateways = true
	assert.Contains(t, m.View(), "No image requests yet.")

	m.showGateways = false
	m.showHelp = true
	assert.Contains(t, m.View(), "Connect Wallet")
}

func TestBrowserCommand(t *testing.T) {
	name, args, err := browserCommand("linux", "https://sepolia.etherscan.io/tx/0xabc")
	require.NoError(t, err)
	assert.Equal(t, "xdg-open", name)
	assert.Equal(t, []string{"https://sepolia.etherscan.io/tx/0xabc"}, args)

	name, _, err = browserCommand("darwin", "https://sepolia.etherscan.io/tx/0xabc")
	require.NoError(t, err)
	assert.Equal(t, "open", name)

	name, args, err = browserCommand("windows", "https://sepolia.etherscan.io/tx/0xabc")
	require.NoError(t, err)
	assert.Equal(t, "rundll32", name)
	assert.Len(t, args, 2)

	for _, bad := range []string{"", "file:///etc/passwd", "javascript:alert(1)", "https://"} {
		_, _, err := browserCommand("linux", bad)
		assert.Error(t, err, bad)
	}
}

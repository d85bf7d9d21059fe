package tui

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"nftmint/pkg/app"
	"nftmint/pkg/events"
	"nftmint/pkg/gallery"
	"nftmint/pkg/models"
	"nftmint/pkg/utils"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	cellWidth = 28
	maxCols   = 4
)

func listenForEvents(sub events.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func connectCmd(ctx context.Context, a *app.App) tea.Cmd {
	return func() tea.Msg {
		return connectDoneMsg{err: a.Connect(ctx)}
	}
}

func mintCmd(ctx context.Context, a *app.App, slot int) tea.Cmd {
	return func() tea.Msg {
		res, err := a.Mint(ctx, slot)
		return mintDoneMsg{res: res, err: err}
	}
}

// gridColumns returns how many item cells fit side by side.
func gridColumns(width int) int {
	cols := (width - 4) / cellWidth
	if cols < 1 {
		return 1
	}
	if cols > maxCols {
		return maxCols
	}
	return cols
}

func moveSelection(sel, delta, n int) int {
	if n == 0 {
		return 0
	}
	sel += delta
	if sel < 0 {
		return 0
	}
	if sel >= n {
		return n - 1
	}
	return sel
}

// itemState describes where a slot's image stands: still probing, shown from
// a gateway, or unavailable once every candidate failed.
func itemState(res models.ImageResult, resolved bool) (string, lipgloss.Style) {
	switch {
	case !resolved:
		return "loading…", subtleStyle
	case res.OK:
		if res.Attempts > 1 {
			return "● " + utils.HostOf(res.URL) + " (fallback)", warnStyle
		}
		return "● " + utils.HostOf(res.URL), infoStyle
	}
	return "✕ image unavailable", errStyle
}

func sortedHosts(samples map[string][]float64) []string {
	hosts := make([]string, 0, len(samples))
	for h := range samples {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// splitSamples separates successful latency samples (ms) from failures,
// which are recorded as -1.
func splitSamples(samples []float64) ([]float64, int) {
	var ok []float64
	failures := 0
	for _, v := range samples {
		if v < 0 {
			failures++
			continue
		}
		ok = append(ok, v)
	}
	return ok, failures
}

func ownedLabel(n *big.Int) string {
	if n == nil {
		return "-"
	}
	return n.String()
}

func (m model) selectedItem() (gallery.ItemView, bool) {
	if m.selected < 0 || m.selected >= len(m.items) {
		return gallery.ItemView{}, false
	}
	return m.items[m.selected], true
}

func (m *model) updateDetailViewport() {
	item, ok := m.selectedItem()
	if !ok {
		m.viewport.SetContent("No item selected.")
		return
	}
	var sections []string

	if item.Description != "" {
		sections = append(sections, item.Description, "")
	}
	if !item.MetadataOK {
		sections = append(sections, errStyle.Render("Metadata unavailable"), "")
	}

	if len(item.Attributes) > 0 {
		var rows []string
		for _, a := range item.Attributes {
			rows = append(rows, fmt.Sprintf("  %-16s %v", a.TraitType, a.Value))
		}
		sections = append(sections, subtleStyle.Render("Attributes"), strings.Join(rows, "\n"), "")
	}

	var rows []string
	for i, c := range item.Candidates {
		marker := "  "
		if i == item.Cursor && !item.Exhausted {
			marker = "> "
		}
		rows = append(rows, marker+utils.TruncateString(c, 70))
	}
	sections = append(sections, subtleStyle.Render("Image candidates"), strings.Join(rows, "\n"))

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// applyEvent folds a hub event into the model and returns the status message
// it produced, if any.
func (m *model) applyEvent(ev events.Event) (string, bool) {
	switch ev.Type {
	case events.EventGalleryLoaded:
		m.items = m.app.Gallery()
		m.images = make(map[int]models.ImageResult)
		m.selected = moveSelection(m.selected, 0, len(m.items))
	case events.EventImageResolved:
		if res, ok := ev.Data.(models.ImageResult); ok {
			m.images[res.Slot] = res
		}
		m.items = m.app.Gallery()
	case events.EventReload:
		m.images = make(map[int]models.ImageResult)
	case events.EventMintStarted:
		if slot, ok := ev.Data.(int); ok {
			m.mintingSlot = slot
		}
	case events.EventMintFinished:
		m.mintingSlot = -1
	case events.EventNotice:
		if n, ok := ev.Data.(events.Notice); ok {
			m.status = m.app.Snapshot()
			return n.Text, n.Level == events.LevelError
		}
	}
	m.status = m.app.Snapshot()
	return "", false
}

// visibleRowRange returns the first and one-past-last grid row to draw so the
// row holding selected stays on screen.
func visibleRowRange(selected, cols, total, fit int) (int, int) {
	rows := (total + cols - 1) / cols
	if fit < 1 {
		fit = 1
	}
	if rows <= fit {
		return 0, rows
	}
	row := selected / cols
	start := row - fit/2
	if start < 0 {
		start = 0
	}
	if start+fit > rows {
		start = rows - fit
	}
	return start, start + fit
}

func sampleStats(samples []float64) (low, avg, high float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	low, high = samples[0], samples[0]
	sum := 0.0
	for _, v := range samples {
		if v < low {
			low = v
		}
		if v > high {
			high = v
		}
		sum += v
	}
	return low, sum / float64(len(samples)), high
}

// busiestHost returns the host with the most samples, ties broken by name.
func busiestHost(samples map[string][]float64) (string, bool) {
	best, n := "", 0
	for _, h := range sortedHosts(samples) {
		if len(samples[h]) > n {
			best, n = h, len(samples[h])
		}
	}
	return best, n > 0
}

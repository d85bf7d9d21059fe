package tui

import (
	"fmt"
	"strings"

	"nftmint/pkg/session"
	"nftmint/pkg/utils"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const cellHeight = 5

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if m.showHelp {
		return m.viewHelp()
	}
	if m.enteringPass {
		return m.viewPassword()
	}
	if m.showGateways {
		return m.viewGateways()
	}
	if m.showDetail {
		return m.viewDetail()
	}

	header := m.viewHeader()

	var content string
	if len(m.items) == 0 {
		if m.status.Loading {
			content = m.spinner.View() + " Loading gallery..."
		} else {
			content = "No items to display."
		}
	} else {
		content = m.viewGrid()
	}

	lines := []string{header, "", content}
	if last := m.status.LastMint; last != nil {
		mintLine := fmt.Sprintf("Last mint: tx %s", utils.ShortAddress(last.TxHash))
		if last.TokenID != nil {
			mintLine = fmt.Sprintf("Last mint: token #%s • tx %s", last.TokenID, utils.ShortAddress(last.TxHash))
		}
		if m.status.Explorer != "" {
			mintLine += subtleStyle.Render(" (o: open)")
		}
		lines = append(lines, "", mintLine)
		if last.TokenURI != "" {
			lines = append(lines, subtleStyle.Render(utils.TruncateString(last.TokenURI, 60)))
		}
	}
	lines = append(lines, "", m.viewStatusLine())

	footer := subtleStyle.Render("←/→/↑/↓: select • enter: details • c: connect • d: disconnect • m: mint • g: gateways • ?: help • q: quit")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, lines...)), "\n", footer),
	)
}

func (m model) viewHeader() string {
	title := titleStyle.Render(fmt.Sprintf("NFT Mint %s", Version))

	snap := m.status.Session
	var wallet string
	switch {
	case snap.Connected:
		wallet = infoStyle.Render("● " + utils.ShortAddress(snap.Account))
	case m.status.Guarding:
		wallet = warnStyle.Render(m.spinner.View() + " checking network")
	case m.connecting || snap.Status == session.Connecting.String():
		wallet = warnStyle.Render(m.spinner.View() + " connecting")
	case m.status.WalletError != "":
		wallet = errStyle.Render("no wallet")
	default:
		wallet = subtleStyle.Render("○ not connected")
	}

	info := fmt.Sprintf("%s • contract %s • owned %s",
		snap.Chain,
		utils.ShortAddress(m.status.Contract),
		ownedLabel(m.status.Owned),
	)
	return lipgloss.JoinVertical(lipgloss.Center, title, "", wallet, subtleStyle.Render(info))
}

func (m model) viewGrid() string {
	cols := gridColumns(m.width)
	fit := (m.height - 16) / cellHeight
	start, end := visibleRowRange(m.selected, cols, len(m.items), fit)

	var rows []string
	for r := start; r < end; r++ {
		var cells []string
		for c := 0; c < cols; c++ {
			idx := r*cols + c
			if idx >= len(m.items) {
				break
			}
			cells = append(cells, m.viewCell(idx))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	grid := lipgloss.JoinVertical(lipgloss.Left, rows...)

	total := (len(m.items) + cols - 1) / cols
	if start > 0 || end < total {
		grid = lipgloss.JoinVertical(lipgloss.Center, grid, subtleStyle.Render(fmt.Sprintf("rows %d-%d of %d", start+1, end, total)))
	}
	return grid
}

func (m model) viewCell(idx int) string {
	item := m.items[idx]
	name := utils.TruncateString(item.Name, cellWidth-6)

	res, resolved := m.images[item.SlotIndex]
	state, style := itemState(res, resolved)
	if m.mintingSlot == item.SlotIndex {
		state, style = m.spinner.View()+" minting…", warnStyle
	}

	meta := subtleStyle.Render(fmt.Sprintf("slot %d", item.SlotIndex))
	if !item.MetadataOK {
		meta = errStyle.Render(fmt.Sprintf("slot %d • no metadata", item.SlotIndex))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, name, meta, style.Render(utils.TruncateString(state, cellWidth-6)))
	if idx == m.selected {
		return selectedCellStyle.Render(body)
	}
	return cellStyle.Render(body)
}

func (m model) viewStatusLine() string {
	var prefix string
	if m.status.Loading || m.connecting || m.status.Minting || m.mintingSlot >= 0 {
		prefix = m.spinner.View() + " "
	}
	msg := m.statusMessage
	if msg == "" {
		msg = fmt.Sprintf("Last updated: %s", m.lastUpdate.Format("15:04:05"))
		return subtleStyle.Render(prefix + msg)
	}
	if m.statusErr {
		return prefix + errStyle.Render(msg)
	}
	return prefix + infoStyle.Render(msg)
}

func (m model) viewDetail() string {
	item, ok := m.selectedItem()
	if !ok {
		return "No item selected."
	}
	header := titleStyle.Render(fmt.Sprintf("%s (slot %d)", item.Name, item.SlotIndex))
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", m.viewport.View()))
	footer := subtleStyle.Render("↑/↓: scroll • m: mint • enter/esc/q: close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}

func (m model) viewGateways() string {
	header := titleStyle.Render("Gateway Latency")
	samples := m.app.Latencies()

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	var sections []string
	if len(samples) == 0 {
		sections = append(sections, "No image requests yet.")
	}
	for _, host := range sortedHosts(samples) {
		ok, failures := splitSamples(samples[host])
		line := fmt.Sprintf("%-32s %s", utils.TruncateString(host, 30), renderLatencySparkline(samples[host]))
		if len(ok) > 0 {
			low, avg, high := sampleStats(ok)
			line += subtleStyle.Render(fmt.Sprintf("  Low: %.0fms • Avg: %.0fms • High: %.0fms", low, avg, high))
		}
		if failures > 0 {
			line += errStyle.Render(fmt.Sprintf("  %d failed", failures))
		}
		sections = append(sections, line)
	}

	// Plot the busiest host when there is enough data for a line.
	if host, ok := busiestHost(samples); ok {
		series, _ := splitSamples(samples[host])
		if len(series) > 1 {
			graphWidth := targetBoxWidth - 14
			if graphWidth < 10 {
				graphWidth = 10
			}
			graphHeight := m.height - 16 - len(sections)
			if graphHeight < 1 {
				graphHeight = 1
			}
			sections = append(sections, "", asciigraph.Plot(series,
				asciigraph.Height(graphHeight),
				asciigraph.Width(graphWidth),
				asciigraph.Caption(fmt.Sprintf("%s latency (ms)", host)),
			))
		}
	}

	content := boxStyle.Width(targetBoxWidth).Align(lipgloss.Center).Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", strings.Join(sections, "\n")))
	footer := subtleStyle.Render("g/q/esc: back")

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewPassword() string {
	header := titleStyle.Render("Unlock Keystore")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", m.passwordInput.View()))
	footer := subtleStyle.Render("enter: save • esc: cancel")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	var title string
	var shortcuts []string

	if m.showGateways {
		title = "Gateway Latency"
		shortcuts = []string{"g/q/esc: Back"}
	} else if m.showDetail {
		title = "Item Details"
		shortcuts = []string{"↑/k: Scroll Up", "↓/j: Scroll Down", "m: Mint", "enter/esc/q: Close"}
	} else {
		title = "Gallery"
		shortcuts = []string{
			"←/h, →/l/Tab: Previous / Next Item",
			"↑/k, ↓/j: Row Up / Down",
			"enter: Show Details",
			"c: Connect Wallet",
			"d: Disconnect Wallet",
			"p: Keystore Passphrase",
			"m: Mint",
			"o: Open Last Mint in Explorer",
			"y: Copy Account",
			"g: Gateway Latency",
			"r: Reload Gallery",
			"q/esc: Quit",
			"?: Toggle Help",
		}
	}

	header := titleStyle.Render(fmt.Sprintf("Help: %s", title))
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}

func renderLatencySparkline(history []float64) string {
	if len(history) == 0 {
		return ""
	}
	var min, max float64
	first := true
	for _, v := range history {
		if v >= 0 {
			if first {
				min, max = v, v
				first = false
			} else {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
		}
	}
	if first {
		return strings.Repeat(errStyle.Render("×"), len(history))
	}

	chars := []string{" ", "▂", "▃", "▄", "▅", "▆", "▇", "█"}
	var sb strings.Builder
	for _, v := range history {
		if v < 0 {
			sb.WriteString(errStyle.Render("×"))
			continue
		}
		if max == min {
			sb.WriteString(subtleStyle.Render("▄"))
			continue
		}
		idx := int((v - min) * 7 / (max - min))
		sb.WriteString(subtleStyle.Render(chars[idx]))
	}
	return sb.String()
}

package tui

import (
	"time"

	"nftmint/pkg/events"
	"nftmint/pkg/session"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case events.Event:
		// Re-subscribe to next event
		cmds = append(cmds, listenForEvents(m.sub))
		if text, isErr := m.applyEvent(msg); text != "" {
			m.statusMessage, m.statusErr = text, isErr
			cmds = append(cmds, clearStatusAfter(4*time.Second))
		}
		m.lastUpdate = time.Now()
		if m.showDetail {
			m.updateDetailViewport()
		}

	case connectDoneMsg:
		m.connecting = false
		m.status = m.app.Snapshot()

	case mintDoneMsg:
		m.mintingSlot = -1
		m.status = m.app.Snapshot()

	case clearStatusMsg:
		m.statusMessage = ""
		m.statusErr = false

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 10
		m.viewport.Height = msg.Height - 12
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}

	case tea.KeyMsg:
		if m.enteringPass {
			return m.updatePassword(msg)
		}
		return m.updateKeys(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m model) updatePassword(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.enteringPass = false
		m.passwordInput.Blur()
		m.passwordInput.SetValue("")
		return m, nil
	case "enter":
		pw := m.passwordInput.Value()
		m.enteringPass = false
		m.passwordInput.Blur()
		m.passwordInput.SetValue("")
		if m.app.SetWalletPassword(pw) {
			m.statusMessage, m.statusErr = "Passphrase set. Press c to connect.", false
		} else {
			m.statusMessage, m.statusErr = "This wallet does not use a passphrase.", true
		}
		return m, clearStatusAfter(3 * time.Second)
	}
	var cmd tea.Cmd
	m.passwordInput, cmd = m.passwordInput.Update(msg)
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.showHelp {
		if key == "?" || key == "esc" || key == "q" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.showGateways {
		switch key {
		case "g", "q", "esc":
			m.showGateways = false
		case "?":
			m.showHelp = true
		}
		return m, nil
	}

	if m.showDetail {
		switch key {
		case "enter", "q", "esc":
			m.showDetail = false
			return m, nil
		case "m":
			return m.startMint()
		case "?":
			m.showHelp = true
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	cols := gridColumns(m.width)
	switch key {
	case "q", "esc":
		return m, tea.Quit
	case "?":
		m.showHelp = true
	case "g":
		m.showGateways = true
	case "left", "h":
		m.selected = moveSelection(m.selected, -1, len(m.items))
	case "right", "l", "tab":
		m.selected = moveSelection(m.selected, 1, len(m.items))
	case "up", "k":
		m.selected = moveSelection(m.selected, -cols, len(m.items))
	case "down", "j":
		m.selected = moveSelection(m.selected, cols, len(m.items))
	case "enter":
		if _, ok := m.selectedItem(); ok {
			m.showDetail = true
			m.viewport.GotoTop()
			m.updateDetailViewport()
		}
	case "c":
		if m.connecting || m.status.Session.Status == session.Connecting.String() {
			return m, nil
		}
		m.connecting = true
		m.statusMessage, m.statusErr = "Waiting for wallet…", false
		return m, connectCmd(m.ctx, m.app)
	case "d":
		if m.status.Session.Connected {
			m.app.Disconnect()
		}
	case "m":
		return m.startMint()
	case "p":
		m.enteringPass = true
		m.passwordInput.Focus()
		return m, nil
	case "r":
		m.statusMessage, m.statusErr = "Reloading gallery…", false
		go m.app.LoadGallery(m.ctx)
		return m, clearStatusAfter(2 * time.Second)
	case "y":
		if acct := m.app.Session().Account(); acct != nil {
			if err := clipboard.WriteAll(acct.Hex()); err != nil {
				m.statusMessage, m.statusErr = "Copy failed: "+err.Error(), true
			} else {
				m.statusMessage, m.statusErr = "Account copied to clipboard!", false
			}
			return m, clearStatusAfter(2 * time.Second)
		}
	case "o":
		if m.status.LastMint == nil {
			return m, nil
		}
		if url := m.app.TxURL(m.status.LastMint.TxHash); url != "" {
			if err := openTxInExplorer(url); err != nil {
				m.statusMessage, m.statusErr = "Could not open browser: "+err.Error(), true
				return m, clearStatusAfter(2 * time.Second)
			}
		}
	}
	return m, nil
}

func (m model) startMint() (tea.Model, tea.Cmd) {
	if m.mintingSlot >= 0 || m.status.Minting {
		return m, nil
	}
	item, ok := m.selectedItem()
	if !ok {
		return m, nil
	}
	m.mintingSlot = item.SlotIndex
	m.statusMessage, m.statusErr = "Confirm the mint in your wallet…", false
	return m, mintCmd(m.ctx, m.app, item.SlotIndex)
}

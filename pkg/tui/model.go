package tui

import (
	"context"
	"time"

	"nftmint/pkg/app"
	"nftmint/pkg/events"
	"nftmint/pkg/gallery"
	"nftmint/pkg/models"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

type connectDoneMsg struct{ err error }

type mintDoneMsg struct {
	res *models.MintResult
	err error
}

// --- Model ---

type model struct {
	ctx           context.Context
	app           *app.App
	sub           events.Subscriber
	width         int
	height        int
	spinner       spinner.Model
	viewport      viewport.Model
	passwordInput textinput.Model
	items         []gallery.ItemView
	images        map[int]models.ImageResult
	status        app.Status
	selected      int
	connecting    bool
	mintingSlot   int
	statusMessage string
	statusErr     bool
	showHelp      bool
	showDetail    bool
	showGateways  bool
	enteringPass  bool
	lastUpdate    time.Time
}

func initialModel(ctx context.Context, a *app.App) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	pi := textinput.New()
	pi.Placeholder = "keystore passphrase"
	pi.EchoMode = textinput.EchoPassword
	pi.EchoCharacter = '•'
	pi.Width = 40

	return model{
		ctx:           ctx,
		app:           a,
		sub:           a.Hub().Subscribe(),
		spinner:       s,
		viewport:      viewport.New(0, 0),
		passwordInput: pi,
		items:         a.Gallery(),
		images:        make(map[int]models.ImageResult),
		status:        a.Snapshot(),
		mintingSlot:   -1,
		lastUpdate:    time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	var cmds []tea.Cmd

	// Subscribe to app events
	cmds = append(cmds, listenForEvents(m.sub))
	cmds = append(cmds, m.spinner.Tick)
	cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))
	return tea.Batch(cmds...)
}

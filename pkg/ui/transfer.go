package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rescp17/lanTFTP/internal/style"
	"github.com/rescp17/lanTFTP/internal/util"
	"github.com/rescp17/lanTFTP/pkg/transfer"
)

type progressMsg transfer.Progress

type doneMsg struct {
	stats transfer.Stats
	err   error
}

type KeyMap struct {
	Quit key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit: key.NewBinding(key.WithKeys("ctrl+c", "q", "esc"), key.WithHelp("q", "cancel")),
}

// TransferModel shows a running transfer: a bar when the size is known,
// a spinner and byte count otherwise.
type TransferModel struct {
	title   string
	total   int64
	spinner spinner.Model
	bar     progress.Model
	cancel  context.CancelFunc

	last     transfer.Progress
	done     bool
	canceled bool
	stats    transfer.Stats
	err      error
}

func NewTransferModel(title string, total int64, cancel context.CancelFunc) TransferModel {
	return TransferModel{
		title:   title,
		total:   total,
		spinner: style.NewSpinner(),
		bar:     style.NewProgress(),
		cancel:  cancel,
	}
}

func (m TransferModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, DefaultKeyMap.Quit) {
			m.canceled = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case progressMsg:
		m.last = transfer.Progress(msg)
		if m.total > 0 {
			return m, m.bar.SetPercent(m.Percent())
		}
	case doneMsg:
		m.done = true
		m.stats = msg.stats
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// Percent is the acknowledged share of the file, 0 when the size is unknown.
func (m TransferModel) Percent() float64 {
	if m.total <= 0 {
		return 0
	}
	p := float64(m.last.Bytes) / float64(m.total)
	if p > 1 {
		p = 1
	}
	return p
}

func (m TransferModel) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(style.ErrorStyle.Render(fmt.Sprintf("Transfer failed: %v", m.err)))
	case m.done:
		b.WriteString(style.SuccessStyle.Render(fmt.Sprintf("Done: %s in %d blocks (%s)",
			util.FormatSize(m.stats.Bytes), m.stats.Blocks, m.stats.Duration.Round(time.Millisecond))))
	case m.canceled:
		b.WriteString(style.ErrorStyle.Render("Canceled"))
	case m.total > 0:
		b.WriteString(m.bar.View())
		b.WriteString(fmt.Sprintf("  %s / %s", util.FormatSize(m.last.Bytes), util.FormatSize(m.total)))
	default:
		b.WriteString(fmt.Sprintf("%s %s received (block %d)", m.spinner.View(), util.FormatSize(m.last.Bytes), m.last.Block))
	}

	if !m.done {
		b.WriteString("\n\n")
		b.WriteString(style.HelpStyle.Render("Press q to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// RunTransfer runs fn while rendering its progress and returns fn's result.
// Quitting the view cancels the context handed to fn.
func RunTransfer(ctx context.Context, title string, total int64, fn func(ctx context.Context, report func(transfer.Progress)) (transfer.Stats, error)) (transfer.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewTransferModel(title, total, cancel))
	result := make(chan doneMsg, 1)
	go func() {
		st, err := fn(ctx, func(pr transfer.Progress) { p.Send(progressMsg(pr)) })
		result <- doneMsg{stats: st, err: err}
		p.Send(doneMsg{stats: st, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-result
		return transfer.Stats{}, fmt.Errorf("progress view: %w", err)
	}
	cancel()
	r := <-result
	return r.stats, r.err
}

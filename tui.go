package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"parrot/api"
	"parrot/audio"
	"parrot/clipboard"
	"parrot/config"
	"parrot/encoder"
	"parrot/feedback"
	"parrot/log"
	"parrot/practice"
)

type tickMsg time.Time

const (
	meterWidth   = 20
	maxViewWidth = 100
	copiedFor    = 2 * time.Second
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	tabStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	tabActive     = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("42")).Bold(true).Padding(0, 1)
	sentenceBox   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	sentenceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	liveStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Italic(true)
	meterOn       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	meterOff      = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	errorBox      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("196")).Padding(0, 1)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

type tuiModel struct {
	ctl   *practice.Controller
	start func()

	state             practice.UIState
	frame             int
	recordingDuration float64
	audioLevel        float64
	width, height     int
	modeLine          string // "[wav | deepgram | openai/nova]"
	deviceLine        string
	copyStatus        string
	copyUntil         time.Time
}

func newTUIModel(ctl *practice.Controller, start func(), modeLine, deviceLine string) tuiModel {
	return tuiModel{
		ctl:        ctl,
		start:      start,
		state:      ctl.State(),
		modeLine:   modeLine,
		deviceLine: deviceLine,
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// action runs fn off the UI goroutine; its effects arrive as StateMsg.
func action(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m tuiModel) Init() tea.Cmd {
	if m.start == nil {
		return tuiTick()
	}
	return tea.Batch(tuiTick(), action(m.start))
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case StateMsg:
		if msg.State.Version < m.state.Version {
			return m, nil
		}
		if msg.State.Mode == practice.Recording && m.state.Mode != practice.Recording {
			m.recordingDuration = 0
		}
		if msg.State.Mode != practice.Recording {
			m.audioLevel = 0
		}
		m.state = msg.State

	case RecordingTickMsg:
		m.recordingDuration = msg.Duration

	case AudioLevelMsg:
		if m.state.Mode == practice.Recording {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case CopiedMsg:
		m.copyStatus = "✓ copied"
		if msg.Err != nil {
			m.copyStatus = "copy failed: " + msg.Err.Error()
			log.Warnf("clipboard: %v", msg.Err)
		}
		m.copyUntil = time.Now().Add(copiedFor)
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctl := m.ctl
	switch key := msg.String(); key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "r":
		if m.state.RecordVisible {
			return m, action(func() { ctl.Record() })
		}
	case " ", "x":
		if m.state.StopVisible {
			return m, action(ctl.Stop)
		}
	case "s":
		return m, action(ctl.Speak)
	case "n":
		return m, action(ctl.Next)
	case "p":
		if m.state.CanReplay {
			return m, action(func() {
				if err := ctl.Replay(); err != nil {
					log.Warnf("%v", err)
				}
			})
		}
	case "c":
		if text := m.copyText(); text != "" {
			return m, func() tea.Msg { return CopiedMsg{Err: clipboard.Copy(text)} }
		}
	case "esc":
		return m, action(ctl.Dismiss)
	case "tab", "shift+tab":
		step := 1
		if key == "shift+tab" {
			step = len(api.Levels) - 1
		}
		next := api.Levels[(levelIndex(m.state.Level)+step)%len(api.Levels)]
		return m, action(func() { ctl.SelectLevel(next) })
	case "1", "2", "3", "4":
		level := api.Levels[int(key[0]-'1')]
		return m, action(func() { ctl.SelectLevel(level) })
	}
	return m, nil
}

func (m tuiModel) copyText() string {
	if r := m.state.Report; r != nil && strings.TrimSpace(r.Recognized) != "" {
		return r.Recognized
	}
	return m.state.LiveText
}

func levelIndex(d api.Difficulty) int {
	for i, l := range api.Levels {
		if l == d {
			return i
		}
	}
	return 0
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	width := min(m.width, maxViewWidth)

	var b strings.Builder
	header := titleStyle.Render("parrot") + dimStyle.Render(" · pronunciation practice")
	if m.modeLine != "" {
		header += "  " + dimStyle.Render(m.modeLine)
	}
	b.WriteString(header + "\n\n")

	b.WriteString(m.renderTabs() + "\n")
	b.WriteString(m.renderSentence(width) + "\n")

	for _, line := range m.statusLines(width) {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")

	if results := m.renderResults(width); results != "" {
		b.WriteString(results + "\n\n")
	}

	b.WriteString(m.renderHelp() + "\n")
	footer := "parrot " + version
	if m.deviceLine != "" {
		footer = m.deviceLine + "  ·  " + footer
	}
	b.WriteString(helpStyle.Render(footer))
	return b.String()
}

func (m tuiModel) renderTabs() string {
	tabs := make([]string, len(api.Levels))
	for i, l := range api.Levels {
		label := fmt.Sprintf("%d %s", i+1, l.Label())
		if l == m.state.Level {
			tabs[i] = tabActive.Render(label)
		} else {
			tabs[i] = tabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m tuiModel) renderSentence(width int) string {
	s := m.state
	var text string
	switch {
	case s.SentenceLoading:
		text = dimStyle.Render(s.Sentence)
	case s.Sentence == practice.SentenceError:
		text = alertStyle.Render(s.Sentence)
	case s.Sentence == "":
		text = dimStyle.Render("press n for a sentence")
	default:
		text = sentenceStyle.Render(strings.Join(wrapText(s.Sentence, width-4), "\n"))
		if s.SentenceLevel != "" {
			text += "\n" + dimStyle.Render(api.Difficulty(s.SentenceLevel).Label())
		}
	}
	return sentenceBox.Width(width - 2).Render(text)
}

func (m tuiModel) statusLines(width int) []string {
	s := m.state
	var lines []string
	switch {
	case s.Mode == practice.Recording:
		lines = append(lines, recStyle.Render(fmt.Sprintf("● %s %.1fs", s.Indicator, m.recordingDuration))+"  "+renderMeter(m.audioLevel, meterWidth))
	case s.Mode == practice.Processing && s.Indicator != "":
		lines = append(lines, warnStyle.Render(m.spinner()+" "+s.Indicator))
	default:
		lines = append(lines, dimStyle.Render("○ ready"))
	}
	if s.NoVoice {
		lines = append(lines, warnStyle.Render("  ⚠ "+practice.NoVoiceWarning))
	}
	if s.LiveText != "" && s.Mode != practice.Results {
		for _, l := range wrapText("“"+s.LiveText+"”", width) {
			lines = append(lines, liveStyle.Render(l))
		}
	}
	if s.Alert != "" {
		lines = append(lines, alertStyle.Render(s.Alert))
	}
	if s.Notice != "" {
		lines = append(lines, warnStyle.Render("! "+s.Notice))
	}
	if m.copyStatus != "" && time.Now().Before(m.copyUntil) {
		lines = append(lines, okStyle.Render(m.copyStatus))
	}
	return lines
}

func (m tuiModel) renderResults(width int) string {
	s := m.state
	if !s.ResultsVisible {
		return ""
	}
	switch {
	case s.Loading:
		return warnStyle.Render(m.spinner() + " Analyzing your pronunciation...")
	case s.ErrorPanel:
		body := alertStyle.Render(practice.ErrorTitle) + "\n" + practice.ErrorBody
		return errorBox.Width(width - 2).Render(body)
	case s.Report != nil:
		return feedback.Render(*s.Report, width)
	}
	return ""
}

func (m tuiModel) renderHelp() string {
	s := m.state
	type hint struct{ key, what string }
	var hints []hint
	if s.RecordVisible {
		hints = append(hints, hint{"r", "record"})
	}
	if s.StopVisible {
		hints = append(hints, hint{"space", "stop"})
	}
	hints = append(hints, hint{"s", "speak"}, hint{"n", "next"})
	if s.CanReplay {
		hints = append(hints, hint{"p", "replay"})
	}
	if m.copyText() != "" {
		hints = append(hints, hint{"c", "copy"})
	}
	hints = append(hints, hint{"1-4/tab", "level"}, hint{"q", "quit"})

	parts := make([]string, len(hints))
	for i, h := range hints {
		parts[i] = helpKeyStyle.Render(h.key) + helpStyle.Render(" "+h.what)
	}
	return strings.Join(parts, helpStyle.Render(" · "))
}

func (m tuiModel) spinner() string {
	return spinnerFrames[m.frame%len(spinnerFrames)]
}

func renderMeter(level float64, width int) string {
	n := int(math.Min(1, level*8) * float64(width))
	n = max(0, min(n, width))
	return meterOn.Render(strings.Repeat("▮", n)) + meterOff.Render(strings.Repeat("▯", width-n))
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	var line string
	for _, w := range strings.Fields(text) {
		switch {
		case line == "":
			line = w
		case lipgloss.Width(line)+1+lipgloss.Width(w) > width:
			lines = append(lines, line)
			line = w
		default:
			line += " " + w
		}
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(format encoder.Format, svc *services) string {
	return fmt.Sprintf("[%s | %s | %s]", format, svc.recognizerName(), svc.voiceName())
}

func runTUI(ctx context.Context, cfg config.Config, format encoder.Format, level api.Difficulty, audioCtx audio.Context, device *audio.DeviceInfo, player audio.Player) int {
	svc, err := newServices(cfg, player)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	rec := audio.NewRecorder(audioCtx, device, captureConfig())
	ctl := svc.controller(ctx, cfg, rec, tuiSink{}, format, level)

	start := func() {
		svc.prime(ctx)
		ctl.Next()
	}
	m := newTUIModel(ctl, start, modeLineText(format, svc), deviceLineText(device))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	_, err = p.Run()

	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()

	ctl.Shutdown()
	log.SessionEnd(ctl.Evaluations())
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

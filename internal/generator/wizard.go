package generator

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/autopeer-io/denhub/pkg/device"
)

const (
	colorForeground = "#F8F8F2"
	colorCyan       = "#8BE9FD"
	colorGreen      = "#50FA7B"
	colorPink       = "#FF79C6"
	colorRed        = "#FF5555"
	colorComment    = "#6272A4"

	inputWidth = 48
)

type step int

const (
	stepFields step = iota
	stepConfirmWrite
	stepConfirmGenerate
	stepDone
)

type styles struct {
	title, label, help, err, preview lipgloss.Style
}

func newStyles() styles {
	return styles{
		title: lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan)).Bold(true),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color(colorPink)).Bold(true),
		help:  lipgloss.NewStyle().Foreground(lipgloss.Color(colorComment)),
		err:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)).Bold(true),
		preview: lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorGreen)).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorComment)).
			Padding(0, 1),
	}
}

type field struct {
	key      string
	hint     string
	validate func(string) error
	input    textinput.Model
}

// Wizard asks for the identity of a device and previews the resulting
// config.json. It is a bubbletea model; read the outcome after the program
// exits.
type Wizard struct {
	old     *device.Config
	fields  []field
	focus   int
	step    step
	err     error
	preview string
	answers Answers
	styles  styles

	// Write is true when the user confirmed writing the configuration.
	Write bool
	// Generate is true when the user asked for code generation afterwards.
	Generate bool
	// Aborted is true when the user quit early.
	Aborted bool
}

var _ tea.Model = (*Wizard)(nil)

// NewWizard returns a wizard whose defaults come from old.
func NewWizard(old *device.Config) *Wizard {
	defaults := AnswersFrom(old)
	w := &Wizard{old: old, styles: newStyles()}

	add := func(key, example, value string, validate func(string) error) {
		ti := textinput.New()
		ti.Placeholder = example
		ti.SetValue(value)
		ti.Width = inputWidth
		ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorCyan))
		ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorForeground))
		ti.PlaceholderStyle = w.styles.help
		w.fields = append(w.fields, field{key: key, hint: example, validate: validate, input: ti})
	}
	add(device.KeyDeviceName, "e.g. rccar-0", defaults.DeviceName, ValidateDeviceName)
	add(device.KeyDeviceType, "e.g. rccar", defaults.DeviceType, ValidateDeviceType)
	add(device.KeyDeviceToken, "if already issued by the server", defaults.DeviceToken, ValidateDeviceToken)
	add(device.KeyServerHost, "e.g. wss://example.com/", defaults.ServerHost, ValidateServerHost)

	w.fields[0].input.Focus()
	return w
}

// Answers returns the accepted answers.
func (w *Wizard) Answers() Answers { return w.answers }

// Preview returns the rendered configuration shown for confirmation.
func (w *Wizard) Preview() string { return w.preview }

func (*Wizard) Init() tea.Cmd {
	return textinput.Blink
}

func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		if w.step == stepFields {
			return w.updateInput(msg)
		}
		return w, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		w.Aborted = true
		w.step = stepDone
		return w, tea.Quit
	}

	switch w.step {
	case stepFields:
		return w.updateFields(keyMsg)
	case stepConfirmWrite:
		return w.confirmWrite(keyMsg)
	case stepConfirmGenerate:
		return w.confirmGenerate(keyMsg)
	default:
		return w, nil
	}
}

func (w *Wizard) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	w.fields[w.focus].input, cmd = w.fields[w.focus].input.Update(msg)
	return w, cmd
}

func (w *Wizard) updateFields(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "tab":
		f := &w.fields[w.focus]
		value := strings.TrimSpace(f.input.Value())
		if err := f.validate(value); err != nil {
			w.err = err
			return w, nil
		}
		f.input.SetValue(value)
		w.err = nil
		if w.focus == len(w.fields)-1 {
			return w.finishFields()
		}
		return w, w.moveFocus(w.focus + 1)
	case "shift+tab", "up":
		if w.focus > 0 {
			w.err = nil
			return w, w.moveFocus(w.focus - 1)
		}
		return w, nil
	default:
		return w.updateInput(msg)
	}
}

func (w *Wizard) moveFocus(i int) tea.Cmd {
	w.fields[w.focus].input.Blur()
	w.focus = i
	return w.fields[w.focus].input.Focus()
}

func (w *Wizard) finishFields() (tea.Model, tea.Cmd) {
	w.answers = Answers{
		DeviceName:  w.fields[0].input.Value(),
		DeviceType:  w.fields[1].input.Value(),
		DeviceToken: w.fields[2].input.Value(),
		ServerHost:  w.fields[3].input.Value(),
	}
	data, err := RenderConfig(w.old, w.answers)
	if err != nil {
		w.err = err
		return w, nil
	}
	w.preview = string(data)
	w.fields[w.focus].input.Blur()
	w.step = stepConfirmWrite
	return w, nil
}

func (w *Wizard) confirmWrite(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		w.Write = true
		w.step = stepConfirmGenerate
	case "n":
		// Start over with the current answers as defaults.
		w.step = stepFields
		w.preview = ""
		return w, w.moveFocus(0)
	}
	return w, nil
}

func (w *Wizard) confirmGenerate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "y", "enter":
		w.Generate = true
	case "n":
	default:
		return w, nil
	}
	w.step = stepDone
	return w, tea.Quit
}

func (w *Wizard) View() string {
	var b strings.Builder

	b.WriteString(w.styles.title.Render("denhub device configuration"))
	b.WriteString("\n\n")

	switch w.step {
	case stepFields:
		for i, f := range w.fields {
			label := f.key
			if i == w.focus {
				label = w.styles.label.Render(label)
			}
			fmt.Fprintf(&b, "%s ?\n%s\n\n", label, f.input.View())
		}
		if w.err != nil {
			b.WriteString(w.styles.err.Render(w.err.Error()))
			b.WriteString("\n\n")
		}
		b.WriteString(w.styles.help.Render("enter: next • shift+tab: back • esc: quit"))
	case stepConfirmWrite:
		b.WriteString(w.styles.preview.Render(strings.TrimRight(w.preview, "\n")))
		fmt.Fprintf(&b, "\n\nWrite it to %s ? (Y/n)", device.ConfigFileName)
	case stepConfirmGenerate:
		b.WriteString("Generate the source code now ? (Y/n)")
	case stepDone:
	}

	return b.String() + "\n"
}

// RunWizard runs the wizard on the given terminal streams.
func RunWizard(old *device.Config, in io.Reader, out io.Writer) (*Wizard, error) {
	p := tea.NewProgram(NewWizard(old), tea.WithInput(in), tea.WithOutput(out))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(*Wizard), nil
}

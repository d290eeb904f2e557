// Package ui implements the interactive terminal prompt: type text, pick a
// voice and format, and hear it spoken as the audio streams in.
package ui

import (
	"context"
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/steipete/elevenlabskit/internal/api"
	"github.com/steipete/elevenlabskit/internal/config"
	"github.com/steipete/elevenlabskit/internal/playback"
	"github.com/steipete/elevenlabskit/internal/service"
	"github.com/steipete/elevenlabskit/internal/voice"
)

const (
	HeaderHeight = 1
	FooterHeight = 1
	FieldWidth   = 0 // Full width

	helpText = " Enter speak │ Esc stop │ Ctrl-C quit"
)

// FormatOptions are the output formats offered by the format selector.
var FormatOptions = []string{"mp3_44100_128", "pcm_44100"}

type UI struct {
	app       *tview.Application
	client    *api.Client
	voices    *service.VoiceService
	router    *playback.Router
	config    *config.Config
	input     *tview.InputField
	voiceSel  *tview.DropDown
	formatSel *tview.DropDown
	status    *tview.TextView
	layout    *tview.Flex

	mu       sync.Mutex
	voiceIDs []string
	cancel   context.CancelFunc
}

func NewUI(client *api.Client, voices *service.VoiceService, router *playback.Router, cfg *config.Config) *UI {
	return &UI{
		app:    tview.NewApplication(),
		client: client,
		voices: voices,
		router: router,
		config: cfg,
	}
}

func (ui *UI) Run() error {
	ui.setupUI()
	go ui.loadVoices()
	return ui.app.Run()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.quit()
	})
}

func (ui *UI) setupUI() {
	header := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetText(fmt.Sprintf(" %s v%s", config.AppName, config.AppVersion))

	ui.input = tview.NewInputField().
		SetLabel(" Text: ").
		SetFieldWidth(FieldWidth)
	ui.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			ui.speak(ui.input.GetText())
		}
	})

	ui.voiceSel = tview.NewDropDown().
		SetLabel(" Voice: ").
		SetOptions([]string{"loading..."}, nil)

	ui.formatSel = tview.NewDropDown().
		SetLabel(" Format: ").
		SetOptions(FormatOptions, nil)
	ui.formatSel.SetCurrentOption(formatIndex(ui.config.OutputFormat))

	ui.status = tview.NewTextView().
		SetDynamicColors(true).
		SetText(" Ready")

	footer := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetText(helpText)

	ui.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.input, 1, 0, true).
		AddItem(ui.voiceSel, 1, 0, false).
		AddItem(ui.formatSel, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.status, 0, 1, false).
		AddItem(footer, FooterHeight, 0, false)

	ui.app.SetRoot(ui.layout, true)
	ui.app.SetInputCapture(ui.globalInputHandler)
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape:
		ui.stopSpeaking()
		return nil
	case tcell.KeyCtrlC:
		ui.quit()
		return nil
	case tcell.KeyTab:
		ui.cycleFocus()
		return nil
	}
	return event
}

func (ui *UI) cycleFocus() {
	order := []tview.Primitive{ui.input, ui.voiceSel, ui.formatSel}
	for i, p := range order {
		if p.HasFocus() {
			ui.app.SetFocus(order[(i+1)%len(order)])
			return
		}
	}
	ui.app.SetFocus(ui.input)
}

func (ui *UI) loadVoices() {
	voices, err := ui.voices.Voices(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load voices")
		ui.app.QueueUpdateDraw(func() {
			ui.setStatus(fmt.Sprintf(" [red]Failed to load voices: %v[-]", err))
		})
		return
	}

	labels := voiceLabels(voices)
	ids := make([]string, len(voices))
	for i := range voices {
		ids[i] = voices[i].ID
	}

	ui.mu.Lock()
	ui.voiceIDs = ids
	ui.mu.Unlock()

	selected := voice.FindByID(voices, ui.config.VoiceID)
	if selected < 0 {
		selected = 0
	}

	ui.app.QueueUpdateDraw(func() {
		ui.voiceSel.SetOptions(labels, nil)
		if len(labels) > 0 {
			ui.voiceSel.SetCurrentOption(selected)
		}
	})
}

func (ui *UI) selectedVoiceID() string {
	index, _ := ui.voiceSel.GetCurrentOption()

	ui.mu.Lock()
	defer ui.mu.Unlock()
	if index < 0 || index >= len(ui.voiceIDs) {
		return ""
	}
	return ui.voiceIDs[index]
}

func (ui *UI) selectedFormat() string {
	index, _ := ui.formatSel.GetCurrentOption()
	if index < 0 || index >= len(FormatOptions) {
		return ui.config.OutputFormat
	}
	return FormatOptions[index]
}

// speak starts a new synthesis round, replacing any round still playing.
func (ui *UI) speak(text string) {
	if text == "" {
		return
	}

	ui.mu.Lock()
	if ui.cancel != nil {
		ui.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	ui.cancel = cancel
	ui.mu.Unlock()

	ui.router.Stop()
	ui.setStatus(" Synthesizing...")

	voiceID := ui.selectedVoiceID()
	format := ui.selectedFormat()

	go func() {
		resolved, err := ui.voices.Resolve(ctx, voiceID)
		if err != nil {
			ui.reportStatus(fmt.Sprintf(" [red]No voice available: %v[-]", err))
			return
		}

		stream, err := ui.client.StreamSynthesize(ctx, resolved, api.Request{
			Text:         text,
			ModelID:      ui.config.ModelID,
			OutputFormat: format,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Synthesis request failed")
			ui.reportStatus(fmt.Sprintf(" [red]Synthesis failed: %v[-]", err))
			return
		}

		ui.reportStatus(" Speaking...")
		result := ui.router.Play(ctx, stream, format)
		stream.Close()
		ui.reportStatus(" " + resultStatus(result))
	}()
}

func (ui *UI) stopSpeaking() {
	ui.mu.Lock()
	if ui.cancel != nil {
		ui.cancel()
		ui.cancel = nil
	}
	ui.mu.Unlock()

	if pos := ui.router.Stop(); pos != nil {
		ui.setStatus(fmt.Sprintf(" Stopped at %.1fs", *pos))
	}
}

func (ui *UI) quit() {
	ui.stopSpeaking()
	ui.router.Close()
	ui.app.Stop()
}

func (ui *UI) setStatus(text string) {
	ui.status.SetText(text)
}

// reportStatus updates the status line from outside the event loop.
func (ui *UI) reportStatus(text string) {
	ui.app.QueueUpdateDraw(func() {
		ui.setStatus(text)
	})
}

// voiceLabels renders dropdown labels as "Name (id-prefix)".
func voiceLabels(voices []voice.Voice) []string {
	labels := make([]string, len(voices))
	for i := range voices {
		labels[i] = fmt.Sprintf("%s (%s)", voices[i].DisplayName(), shortID(voices[i].ID))
	}
	return labels
}

// shortID abbreviates a voice ID to its first eight characters.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// formatIndex returns the selector index of a format, defaulting to the first.
func formatIndex(format string) int {
	for i, option := range FormatOptions {
		if option == format {
			return i
		}
	}
	return 0
}

// resultStatus renders a finished playback round for the status line.
func resultStatus(result playback.Result) string {
	if result.Finished {
		return "Done"
	}
	if result.InterruptedAt != nil {
		return fmt.Sprintf("Stopped at %.1fs", *result.InterruptedAt)
	}
	return "Playback did not complete"
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/steipete/elevenlabskit/internal/api"
	"github.com/steipete/elevenlabskit/internal/cache"
	"github.com/steipete/elevenlabskit/internal/config"
	"github.com/steipete/elevenlabskit/internal/output"
	"github.com/steipete/elevenlabskit/internal/playback"
	"github.com/steipete/elevenlabskit/internal/service"
	"github.com/steipete/elevenlabskit/internal/ui"
	"github.com/steipete/elevenlabskit/internal/voice"
)

type options struct {
	voice       string
	model       string
	format      string
	latencyTier int
	outputPath  string
	noPlay      bool
	noStream    bool
	metrics     bool
	search      string
	limit       int
	debug       bool
	version     bool
}

func main() {
	command, args := splitCommand(os.Args[1:])

	flags := flag.NewFlagSet("elevenlabs", flag.ExitOnError)
	opts := &options{}
	flags.StringVar(&opts.voice, "voice", "", "Voice ID (defaults to config, env, then first listed voice)")
	flags.StringVar(&opts.model, "model", "", "Model ID (defaults to config)")
	flags.StringVar(&opts.format, "format", "", "Output format, e.g. mp3_44100_128 or pcm_44100")
	flags.IntVar(&opts.latencyTier, "latency-tier", -1, "Streaming latency tier 0-4")
	flags.StringVar(&opts.outputPath, "output", "", "Save audio to file while playing")
	flags.BoolVar(&opts.noPlay, "no-play", false, "Synthesize without playing")
	flags.BoolVar(&opts.noStream, "no-stream", false, "Use buffered synthesis instead of streaming")
	flags.BoolVar(&opts.metrics, "metrics", false, "Print timing metrics to stderr")
	flags.StringVar(&opts.search, "search", "", "Filter voices by name or ID")
	flags.IntVar(&opts.limit, "limit", 0, "Limit the number of voices listed")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&opts.version, "version", false, "Show version information")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [speak|voices|tui] [options] [text]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		os.Exit(2)
	}

	if opts.version {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	setupLogging(opts.debug, command == "tui")

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.DefaultConfig()
	}
	applyFlags(cfg, opts)

	if cfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: no API key; set ELEVENLABS_API_KEY or api_key in the config file")
		os.Exit(1)
	}

	client := api.NewClient(cfg.APIKey)
	voiceService := service.NewVoiceService(client)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var exitCode int
	switch command {
	case "voices":
		exitCode = runVoices(ctx, voiceService, opts)
	case "tui":
		exitCode = runTUI(client, voiceService, cfg)
	default:
		exitCode = runSpeak(ctx, client, voiceService, cfg, opts, flags.Args())
	}
	os.Exit(exitCode)
}

// splitCommand peels a leading subcommand off the argument list; everything
// else defaults to speak.
func splitCommand(args []string) (string, []string) {
	if len(args) > 0 {
		switch args[0] {
		case "speak", "voices", "tui":
			return args[0], args[1:]
		}
	}
	return "speak", args
}

func setupLogging(debug, tui bool) {
	if !debug {
		// Errors only; the TUI additionally discards them to keep the
		// screen clean.
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		if tui {
			logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
			if err == nil {
				log.Logger = log.Output(logFile)
			}
		} else {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	if !tui {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
}

// applyFlags folds command line overrides into the loaded config.
func applyFlags(cfg *config.Config, opts *options) {
	if opts.voice != "" {
		cfg.VoiceID = opts.voice
	}
	if opts.model != "" {
		cfg.ModelID = opts.model
	}
	if opts.latencyTier >= 0 {
		cfg.LatencyTier = opts.latencyTier
	}

	switch {
	case opts.format != "":
		cfg.OutputFormat = opts.format
	case opts.outputPath != "":
		if inferred := formatFromExtension(opts.outputPath); inferred != "" {
			cfg.OutputFormat = inferred
		}
	}
	if api.ValidatedOutputFormat(cfg.OutputFormat) == "" {
		cfg.OutputFormat = config.DefaultOutputFormat
	}
}

// formatFromExtension infers the output format from the save path.
func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "pcm_44100"
	case ".mp3":
		return "mp3_44100_128"
	}
	return ""
}

func runVoices(ctx context.Context, voiceService *service.VoiceService, opts *options) int {
	voices, err := voiceService.Voices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list voices: %v\n", err)
		return 1
	}

	voices = voice.Limit(voice.Filter(voices, opts.search), opts.limit)
	if len(voices) == 0 {
		fmt.Println("No voices found")
		return 0
	}

	fmt.Printf("%-24s %-20s %s\n", "VOICE ID", "NAME", "CATEGORY")
	for i := range voices {
		fmt.Printf("%-24s %-20s %s\n", voices[i].ID, voices[i].DisplayName(), voices[i].Category)
	}
	return 0
}

func runTUI(client *api.Client, voiceService *service.VoiceService, cfg *config.Config) int {
	router := newRouter(cfg)
	app := ui.NewUI(client, voiceService, router, cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		app.Shutdown()
	}()

	if err := app.Run(); err != nil {
		log.Error().Err(err).Msg("Error running UI")
		router.Close()
		return 1
	}
	return 0
}

func runSpeak(ctx context.Context, client *api.Client, voiceService *service.VoiceService, cfg *config.Config, opts *options, args []string) int {
	text, err := speechText(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	voiceID, err := voiceService.Resolve(ctx, cfg.VoiceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	req := api.Request{
		Text:         text,
		ModelID:      cfg.ModelID,
		OutputFormat: cfg.OutputFormat,
		LatencyTier:  api.ValidatedLatencyTier(&cfg.LatencyTier),
	}

	started := time.Now()
	stats := &speakStats{}

	var source playback.ChunkSource
	if opts.noStream {
		audio, err := client.Synthesize(ctx, voiceID, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: synthesis failed: %v\n", err)
			return 1
		}
		stats.firstChunk = time.Now()
		stats.bytes = len(audio)
		stats.downloaded = time.Now()
		source = &memorySource{data: audio}
	} else {
		stream, err := client.StreamSynthesize(ctx, voiceID, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: synthesis failed: %v\n", err)
			return 1
		}
		defer stream.Close()
		source = &measuredSource{inner: stream, stats: stats}
	}

	if opts.outputPath != "" {
		file, err := os.Create(opts.outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create output file: %v\n", err)
			return 1
		}
		defer file.Close()
		source = &teeSource{inner: source, sink: file}
	}

	if opts.noPlay {
		if err := drain(source); err != nil {
			fmt.Fprintf(os.Stderr, "Error: download failed: %v\n", err)
			return 1
		}
	} else {
		router := newRouter(cfg)
		defer router.Close()

		go func() {
			<-ctx.Done()
			router.Stop()
		}()

		playStarted := time.Now()
		result := router.Play(ctx, source, cfg.OutputFormat)
		stats.playback = time.Since(playStarted)

		switch {
		case result.Finished:
		case result.InterruptedAt != nil:
			fmt.Fprintf(os.Stderr, "Stopped at %.1fs\n", *result.InterruptedAt)
		default:
			fmt.Fprintln(os.Stderr, "Error: playback did not complete")
			return 1
		}
	}

	if opts.metrics {
		stats.print(started)
	}
	return 0
}

func newRouter(cfg *config.Config) *playback.Router {
	volume := config.ClampVolume(cfg.Volume)
	return playback.NewRouter(output.NewDeviceFactory(volume), output.NewNodeFactory(volume))
}

// speechText joins argv words, falling back to stdin.
func speechText(args []string) (string, error) {
	if text := strings.TrimSpace(strings.Join(args, " ")); text != "" {
		return text, nil
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read text from stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no text to speak; pass it as arguments or on stdin")
	}
	return text, nil
}

func drain(source playback.ChunkSource) error {
	for {
		_, err := source.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type speakStats struct {
	firstChunk time.Time
	downloaded time.Time
	bytes      int
	playback   time.Duration
}

func (s *speakStats) print(started time.Time) {
	ttfb := 0.0
	if !s.firstChunk.IsZero() {
		ttfb = s.firstChunk.Sub(started).Seconds()
	}
	download := 0.0
	if !s.downloaded.IsZero() {
		download = s.downloaded.Sub(started).Seconds()
	}
	fmt.Fprintf(os.Stderr, "ttfb=%.3fs download=%.3fs playback=%.3fs bytes=%d\n",
		ttfb, download, s.playback.Seconds(), s.bytes)
}

// measuredSource records time-to-first-chunk, total download time and byte
// count as the stream is consumed.
type measuredSource struct {
	inner playback.ChunkSource
	stats *speakStats
}

func (m *measuredSource) Next() ([]byte, error) {
	chunk, err := m.inner.Next()
	if len(chunk) > 0 {
		if m.stats.firstChunk.IsZero() {
			m.stats.firstChunk = time.Now()
		}
		m.stats.bytes += len(chunk)
	}
	if err == io.EOF {
		m.stats.downloaded = time.Now()
	}
	return chunk, err
}

// teeSource copies every chunk to a file while passing it downstream.
type teeSource struct {
	inner playback.ChunkSource
	sink  io.Writer
}

func (t *teeSource) Next() ([]byte, error) {
	chunk, err := t.inner.Next()
	if len(chunk) > 0 {
		if _, writeErr := t.sink.Write(chunk); writeErr != nil {
			log.Error().Err(writeErr).Msg("Failed to write output file")
		}
	}
	return chunk, err
}

// memorySource replays a fully buffered response in streaming-sized chunks.
type memorySource struct {
	data   []byte
	offset int
}

func (m *memorySource) Next() ([]byte, error) {
	if m.offset >= len(m.data) {
		return nil, io.EOF
	}
	end := m.offset + api.StreamChunkSize
	if end > len(m.data) {
		end = len(m.data)
	}
	chunk := m.data[m.offset:end]
	m.offset = end
	return chunk, nil
}

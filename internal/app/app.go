// Package app wires the lingobridge subsystems into a running service.
//
// New builds the translation journal, the translator, the speaker, the
// permission gate and the session controller from the config and serves
// them through internal/server. Run blocks until the context is cancelled or
// the listener fails; Shutdown tears everything down in reverse order.
//
// For tests, inject doubles through the functional options. Anything not
// injected is created from the config.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingobridge/internal/config"
	"github.com/MrWong99/lingobridge/internal/health"
	"github.com/MrWong99/lingobridge/internal/history"
	"github.com/MrWong99/lingobridge/internal/history/postgres"
	"github.com/MrWong99/lingobridge/internal/observe"
	"github.com/MrWong99/lingobridge/internal/permission"
	"github.com/MrWong99/lingobridge/internal/server"
	"github.com/MrWong99/lingobridge/internal/session"
	"github.com/MrWong99/lingobridge/internal/speech"
	"github.com/MrWong99/lingobridge/internal/transcript"
	"github.com/MrWong99/lingobridge/pkg/audio"
	"github.com/MrWong99/lingobridge/pkg/provider/translate"
	"github.com/MrWong99/lingobridge/pkg/provider/translate/llmtranslate"
	"github.com/MrWong99/lingobridge/pkg/types"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = "127.0.0.1:8765"

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	journal    history.Store
	translator translate.Provider
	gate       permission.Gate
	speaker    *speech.Speaker
	ctrl       *session.Controller
	handler    http.Handler

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	watcher        *config.Watcher
	listener       net.Listener

	httpServer *http.Server

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournal injects the translation history store.
func WithJournal(s history.Store) Option {
	return func(a *App) { a.journal = s }
}

// WithTranslator injects a translator instead of the LLM-backed one.
func WithTranslator(t translate.Provider) Option {
	return func(a *App) { a.translator = t }
}

// WithPermission injects the microphone permission gate.
func WithPermission(g permission.Gate) Option {
	return func(a *App) { a.gate = g }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithWatcher runs w alongside the server so config edits are applied live.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := providers.validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if err := a.initTranslator(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init translator: %w", err)
	}
	if err := a.initSpeaker(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init speaker: %w", err)
	}
	if err := a.initPermission(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init permission: %w", err)
	}
	if err := a.initController(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init controller: %w", err)
	}

	a.handler = server.New(a.ctrl,
		server.WithHistory(a.journal),
		server.WithHealth(health.New(a.checkers()...)),
		server.WithMetricsHandler(a.metricsHandler),
		server.WithMetrics(a.metrics),
	).Handler()
	return a, nil
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.ctrl }

// Handler returns the HTTP control surface.
func (a *App) Handler() http.Handler { return a.handler }

func (a *App) initJournal(ctx context.Context) error {
	if a.journal != nil {
		return nil
	}
	if dsn := a.cfg.History.PostgresDSN; dsn != "" {
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return err
		}
		a.journal = store
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		slog.Info("translation history stored in postgres")
		return nil
	}
	a.journal = history.NewMemStore(a.cfg.History.MaxEntries)
	return nil
}

func (a *App) initTranslator() error {
	if a.translator != nil {
		return nil
	}
	tc := a.cfg.Translation
	opts := []llmtranslate.Option{
		llmtranslate.WithWarmup(tc.Warmup),
		llmtranslate.WithPromptTemplate(tc.PromptTemplate),
	}
	if tc.Temperature != nil {
		opts = append(opts, llmtranslate.WithTemperature(*tc.Temperature))
	}
	if tc.MaxTokens > 0 {
		opts = append(opts, llmtranslate.WithMaxTokens(tc.MaxTokens))
	}
	t, err := llmtranslate.New(a.providers.LLM, opts...)
	if err != nil {
		return err
	}
	a.translator = t
	return nil
}

func (a *App) initSpeaker() error {
	if a.providers.TTS == nil || a.providers.Sink == nil {
		slog.Info("speech output disabled: no tts provider or audio sink")
		return nil
	}
	voices, fallback := voiceProfiles(a.cfg.Voices, a.providers.TTSName)
	book, err := speech.NewVoiceBook(voices, fallback)
	if err != nil {
		return err
	}
	name := a.providers.TTSName
	if name == "" {
		name = "tts"
	}
	a.speaker = speech.New(a.providers.TTS, a.providers.Sink, book,
		speech.WithMetrics(a.metrics),
		speech.WithProviderName(name),
	)
	a.closers = append(a.closers, a.speaker.Close)
	return nil
}

func (a *App) initPermission() error {
	if a.gate != nil {
		return nil
	}
	binary := a.cfg.Permission.Binary
	if binary == "" {
		binary = a.cfg.Audio.FFmpeg
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	g, err := permission.FromMode(a.cfg.Permission.Mode, binary)
	if err != nil {
		return err
	}
	a.gate = g
	return nil
}

func (a *App) initController() error {
	deps := session.Deps{
		Audio:      a.providers.Audio,
		Recognizer: a.providers.STT,
		Translator: a.translator,
		Permission: a.gate,
		Journal:    a.journal,
	}
	if a.speaker != nil {
		deps.Speaker = a.speaker
	}
	if sc := a.cfg.Session; sc.CorrectKeywords && len(sc.Keywords) > 0 {
		deps.Corrector = transcript.NewCorrector(sc.Keywords)
	}
	ctrl, err := session.New(sessionConfig(a.cfg), deps, session.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.ctrl = ctrl
	a.closers = append(a.closers, ctrl.Close)
	return nil
}

// checkers lists the readiness probes.
func (a *App) checkers() []health.Checker {
	pair := a.ctrl.Pair()
	cs := []health.Checker{{
		Name: "translation_sessions",
		Check: func(context.Context) error {
			st := a.ctrl.Snapshot()
			for _, d := range []session.Direction{session.SourceToTarget, session.TargetToSource} {
				if route := pair.Route(d); !st.Ready(route) {
					return fmt.Errorf("%s not provisioned", route)
				}
			}
			return nil
		},
	}}
	if p, ok := a.journal.(interface{ Ping(context.Context) error }); ok {
		cs = append(cs, health.Checker{Name: "history", Check: p.Ping})
	}
	return cs
}

// Run serves the control surface until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		addr := a.cfg.Server.ListenAddr
		if addr == "" {
			addr = DefaultListenAddr
		}
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
	}
	if t := a.cfg.Server.TLS; t != nil {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			ln.Close()
			return fmt.Errorf("app: load tls certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
	}

	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	useTLS := a.cfg.Server.TLS != nil
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("control surface listening", "addr", ln.Addr().String(), "tls", useTLS)
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	return g.Wait()
}

// ApplyConfig applies the hot-reloadable part of a config change and logs
// the sections that need a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MutedChanged {
		a.ctrl.SetMuted(d.NewMuted)
	}
	if d.MessagesChanged {
		a.ctrl.SetMessages(new.Messages)
		slog.Info("user-facing messages reloaded")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// Shutdown tears down all subsystems in reverse-init order. If ctx expires
// before all closers finish, the remaining ones are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.httpServer != nil {
			if err := a.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Warn("http shutdown error", "err", err)
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = err
				return
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what a failed New already opened.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// SlogLevel converts a config level to a [slog.Level]. Unknown levels map to
// info.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	keywords := make([]types.KeywordBoost, 0, len(cfg.Session.Keywords))
	for _, k := range cfg.Session.Keywords {
		keywords = append(keywords, types.KeywordBoost{Keyword: k, Boost: keywordBoost})
	}
	return session.Config{
		Pair:             cfg.Languages.Pair(),
		SettleDelay:      cfg.Session.SettleDelay,
		NoSpeechTimeout:  cfg.Session.NoSpeechTimeout,
		TranslateTimeout: cfg.Session.TranslateTimeout,
		CaptureFormat:    audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels},
		Keywords:         keywords,
		Messages:         cfg.Messages,
		StartMuted:       cfg.Session.StartMuted,
	}
}

// keywordBoost is the intensity given to configured recognition keywords.
const keywordBoost = 2

// voiceProfiles converts configured voices. The voice marked default, if
// any, also serves locales no other voice matches.
func voiceProfiles(vcs []config.VoiceConfig, provider string) ([]types.VoiceProfile, *types.VoiceProfile) {
	voices := make([]types.VoiceProfile, 0, len(vcs))
	var fallback *types.VoiceProfile
	for _, vc := range vcs {
		v := types.VoiceProfile{
			ID:          vc.VoiceID,
			Name:        vc.Name,
			Provider:    provider,
			Language:    vc.Locale,
			SpeedFactor: vc.SpeedFactor,
		}
		voices = append(voices, v)
		if vc.Default {
			fb := v
			fallback = &fb
		}
	}
	return voices, fallback
}

// Command mediscribe runs the clinical documentation server and the
// command-line recorder.
//
// Subcommands:
//
//	mediscribe serve  -config config.yaml
//	mediscribe record -config config.yaml -patient <id> -user <id>
//
// Without a subcommand the server is started.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/s4nfs/mediscribe/internal/config"
	"github.com/s4nfs/mediscribe/internal/document"
	"github.com/s4nfs/mediscribe/internal/health"
	"github.com/s4nfs/mediscribe/internal/observe"
	"github.com/s4nfs/mediscribe/internal/server"
	"github.com/s4nfs/mediscribe/internal/session"
	"github.com/s4nfs/mediscribe/pkg/audio"
	paudio "github.com/s4nfs/mediscribe/pkg/audio/portaudio"
	"github.com/s4nfs/mediscribe/pkg/provider/embeddings"
	oaembed "github.com/s4nfs/mediscribe/pkg/provider/embeddings/openai"
	"github.com/s4nfs/mediscribe/pkg/provider/llm"
	"github.com/s4nfs/mediscribe/pkg/provider/llm/anyllm"
	oallm "github.com/s4nfs/mediscribe/pkg/provider/llm/openai"
	"github.com/s4nfs/mediscribe/pkg/provider/stt"
	"github.com/s4nfs/mediscribe/pkg/provider/stt/deepgram"
	"github.com/s4nfs/mediscribe/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		return runServe(args)
	case "record":
		return runRecord(args)
	default:
		fmt.Fprintf(os.Stderr, "mediscribe: unknown command %q (expected serve or record)\n", cmd)
		return 2
	}
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	_ = fs.Parse(args)

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("mediscribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	printStartupSummary(cfg)

	opts := []server.Option{
		server.WithHealth(health.New(health.StoreChecker(st.Ping))),
		server.WithLogger(logger),
	}
	if providers.LLM != nil {
		opts = append(opts, server.WithGenerator(document.NewGenerator(providers.LLM)))
	}
	if providers.Embeddings != nil {
		opts = append(opts, server.WithEmbedder(providers.Embeddings))
	}

	srv := server.New(server.Stores{
		Consultations: st.Consultations(),
		Patients:      st.Patients(),
		Documents:     st.Documents(),
		Index:         st.Semantic(),
	}, opts...)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── record ────────────────────────────────────────────────────────────────────

func runRecord(args []string) int {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	userID := fs.String("user", "", "user recording the consultation")
	patientID := fs.String("patient", "", "patient the consultation is for")
	ctype := fs.String("type", "", "consultation type (default general-consult)")
	resumeID := fs.String("resume", "", "consultation ID to resume instead of creating a new one")
	_ = fs.Parse(args)

	if *userID == "" || *patientID == "" {
		fmt.Fprintln(os.Stderr, "mediscribe record: -user and -patient are required")
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProv, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		slog.Error("failed to create stt provider", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	sessCfg := session.Config{
		UserID:           *userID,
		PatientID:        *patientID,
		ConsultationType: *ctype,
		AutosaveInterval: cfg.Session.AutosaveInterval.Std(),
		Live: stt.LiveConfig{
			SampleRate:     cfg.Session.SampleRate,
			Language:       cfg.Session.Language,
			Diarize:        true,
			InterimResults: true,
			Punctuate:      true,
		},
	}
	if *resumeID != "" {
		cons, err := st.Consultations().Get(ctx, *userID, *resumeID)
		if err != nil {
			slog.Error("failed to load consultation to resume", "id", *resumeID, "err", err)
			return 1
		}
		sessCfg.ResumeID = cons.ID
		sessCfg.ResumeTranscript = cons.Transcript
		sessCfg.ResumeDuration = cons.DurationSeconds
	}

	capture, err := newCapture(cfg, &sessCfg.Live)
	if err != nil {
		slog.Error("failed to set up audio capture", "err", err)
		return 1
	}

	ctrl := session.New(sessCfg, sttProv, capture, st.Consultations(), session.WithLogger(logger))
	if err := ctrl.Start(ctx); err != nil {
		slog.Error("failed to start session", "err", err)
		return 1
	}

	fmt.Fprintln(os.Stderr, "recording — press Ctrl+C to finish")
	watchTranscript(ctx, ctrl)

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.CloseTimeout.Std()+15*time.Second)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		slog.Error("failed to finalize consultation", "err", err)
		return 1
	}

	if id := ctrl.RecordID(); id != "" {
		fmt.Printf("consultation %s saved (%ds)\n", id, ctrl.ElapsedSeconds())
	} else {
		fmt.Println("nothing transcribed, no consultation saved")
	}
	return 0
}

// watchTranscript echoes transcript growth to stdout until ctx is cancelled
// or the session leaves its live states.
func watchTranscript(ctx context.Context, ctrl *session.Controller) {
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			switch ctrl.State() {
			case session.StateConnecting, session.StateRecording, session.StatePaused:
			default:
				return
			}
			if text := ctrl.DisplayText(); text != last {
				fmt.Println(text)
				last = text
			}
		}
	}
}

// newCapture builds the microphone capture for the configured sample rate.
// At 48kHz the chunks are Opus-compressed before upload; other rates stream
// raw PCM.
func newCapture(cfg *config.Config, live *stt.LiveConfig) (audio.Capture, error) {
	format := audio.Format{SampleRate: cfg.Session.SampleRate, Channels: 1}
	interval := cfg.Session.ChunkInterval.Std()

	if cfg.Session.SampleRate == audio.OpusSampleRate {
		enc, err := audio.NewOpusEncoder()
		if err != nil {
			return nil, err
		}
		live.Encoding = "opus"
		return paudio.New(format, interval, paudio.WithEncoder(enc)), nil
	}

	live.Encoding = "linear16"
	return paudio.New(format, interval), nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providers holds the instantiated provider set. Absent providers stay nil
// and the server degrades the matching endpoints.
type providers struct {
	STT        stt.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai uses the native client; anthropic, gemini, deepseek, mistral,
	// groq and llamacpp share the any-llm-go pattern of optional APIKey +
	// optional BaseURL.

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	return ps, nil
}

// ── Shared setup ──────────────────────────────────────────────────────────────

func loadConfig(path string) (*config.Config, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mediscribe: config file %q not found — copy configs/example.yaml to get started\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "mediscribe: %v\n", err)
		}
		return nil, false
	}
	return cfg, true
}

func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	dsn := cfg.Store.PostgresDSN
	if dsn == "" {
		return nil, errors.New("store.postgres_dsn must be set")
	}
	dims := cfg.Store.EmbeddingDimensions
	if dims == 0 {
		dims = 1536
	}
	return postgres.NewStore(ctx, dsn, dims)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       mediscribe — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Store           : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Store           : %-19s ║\n", "(unconfigured)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	val := name
	if val == "" {
		val = "(none)"
	} else if model != "" {
		val = fmt.Sprintf("%s/%s", name, model)
	}
	fmt.Printf("║  %-15s : %-19s ║\n", kind, val)
}

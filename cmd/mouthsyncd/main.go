package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normanking/mouthsync/internal/audio"
	"github.com/normanking/mouthsync/internal/bus"
	"github.com/normanking/mouthsync/internal/config"
	"github.com/normanking/mouthsync/internal/logging"
	"github.com/normanking/mouthsync/internal/mouthsync"
	"github.com/normanking/mouthsync/internal/server"
	"github.com/normanking/mouthsync/internal/viseme"
)

func main() {
	var (
		wavPath  = flag.String("wav", "", "WAV clip to play (PCM16)")
		meshPath = flag.String("mesh", "", "glTF mesh to derive the viseme palette from")
		addr     = flag.String("addr", "", "stream server address (overrides config)")
		debug    = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *wavPath == "" {
		fmt.Fprintln(os.Stderr, "usage: mouthsyncd -wav <clip.wav> [-mesh <avatar.glb>] [-addr host:port]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *meshPath != "" {
		cfg.Viseme.MeshPath = *meshPath
	}

	logCfg := logging.DefaultConfig()
	if *debug {
		logCfg.Level = logging.LevelDebug
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Component("main")

	palette := viseme.Default()
	if cfg.Viseme.MeshPath != "" {
		palette, err = viseme.FromGLTF(cfg.Viseme.MeshPath)
		if err != nil {
			log.Fatal().Err(err).Str("mesh", cfg.Viseme.MeshPath).Msg("Failed to load palette mesh")
		}
		if palette.Size() == 0 && palette.HasFallback() {
			log.Info().Msg("Mesh has no discrete visemes; using continuous mouth-open fallback")
		}
	}

	f, err := os.Open(*wavPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open clip")
	}
	clip, err := audio.DecodeWAV(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode clip")
	}
	log.Info().
		Int("sample_rate", clip.SampleRate).
		Int("channels", clip.Channels).
		Dur("duration", clip.Duration()).
		Msg("Clip loaded")

	player, err := audio.NewPlayer(clip, cfg.Engine.WindowSize, logger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create player")
	}

	eventBus := bus.NewEventBus()
	eventBus.SubscribeMultiple([]bus.EventType{
		bus.EventTypePlaybackStarted,
		bus.EventTypePlaybackPaused,
		bus.EventTypePlaybackEnded,
		bus.EventTypeSamplingStarted,
		bus.EventTypeSamplingStopped,
		bus.EventTypeVisemeChanged,
		bus.EventTypeVisemeCleared,
		bus.EventTypeConfigReloaded,
	}, func(ev bus.Event) {
		log.Debug().Str("event", string(ev.Type)).Msg("Bus event")
	})

	engine := mouthsync.New(mouthsync.Options{
		WindowSize: cfg.Engine.WindowSize,
		Gain:       cfg.Engine.Gain,
		Scheduler:  mouthsync.NewTickScheduler(cfg.Engine.FrameRate),
		EventBus:   eventBus,
		Logger:     logger.Zerolog(),
	})

	hub := server.NewHub(palette.Names(), logger.Zerolog())

	anim := newAnimator(palette, selectorParams(cfg), hub, eventBus)
	detach := engine.Attach(player, anim.onMouth, anim.onViseme)
	defer detach()
	defer engine.Close()

	// Config edits re-tune the running engine and selector.
	config.Watch(func(next *config.Config) {
		engine.SetGain(next.Engine.Gain)
		anim.setParams(selectorParams(next))
		eventBus.Publish(bus.Event{Type: bus.EventTypeConfigReloaded})
		log.Info().Float64("gain", next.Engine.Gain).Msg("Configuration reloaded")
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Stream server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Stream server failed")
		}
	}()

	done := make(chan struct{})
	cancelEnd := player.Subscribe(func(ev audio.Event) {
		if ev == audio.EventEnded {
			close(done)
		}
	})
	defer cancelEnd()

	player.Play()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-done:
		log.Info().Msg("Clip finished")
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutting down")
		player.Pause()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	httpSrv.Shutdown(ctx)
}

func selectorParams(cfg *config.Config) viseme.Params {
	return viseme.Params{
		Smoothing:     cfg.Viseme.Smoothing,
		TalkThreshold: cfg.Viseme.TalkThreshold,
		QuietInterval: cfg.Viseme.QuietInterval,
		LoudInterval:  cfg.Viseme.LoudInterval,
	}
}

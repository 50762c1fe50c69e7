package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/audio"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/beacon"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/config"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/emergency"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/events"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/httpserver"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/knowledge"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/llm"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/metrics"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/rag"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/selector"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/speech"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/stt"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/turn"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000"})

	cfg := config.Load(log)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	metrics.Init()

	gate := emergency.NewGate(cfg.SOSKeywords, cfg.HighUrgencyKeywords)

	// Curated FAQ is required: running without it would silently degrade
	// the crisis answers.
	faq, err := knowledge.LoadStore(cfg.FAQPath, log)
	if err != nil {
		log.WithError(err).Fatal("cannot load emergency FAQ")
	}

	// The retrieval index is optional per component: its absence is loud
	// in the logs but the FAQ and free-form generation still work.
	var retriever selector.Retriever
	var embedder rag.Embedder
	ragDocs := 0
	index, err := rag.LoadIndex(cfg.RAGIndexPath, cfg.RAGMetadataPath, log)
	if err != nil {
		log.WithError(err).Error("retrieval index unavailable, continuing without retrieval-augmented answers")
	} else {
		retriever = index
		embedder = rag.NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.EmbedModel)
		ragDocs = index.Len()
	}

	ollama := llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = ollama.HealthCheck(probeCtx)
	probeCancel()
	if err != nil {
		log.WithError(err).Fatalf("cannot connect to Ollama, start it with: ollama serve (model: %s)", cfg.OllamaModel)
	}
	log.Info("Ollama is running")

	sel := selector.New(gate, faq, retriever, embedder, ollama, log)
	sel.OnLatency(func(d time.Duration) { metrics.SelectorLatency.Observe(d.Seconds()) })

	speaker := speech.NewController(func() (speech.Renderer, error) {
		return speech.NewEspeakRenderer(cfg.TTSVolume, log)
	}, cfg.TTSRate, log)
	speaker.OnChunkRendered(func(d time.Duration) { metrics.SpeechChunkTime.Observe(d.Seconds()) })

	recognizer, err := stt.NewVoskRecognizer(cfg.VoskModelPath, cfg.SampleRate, log)
	if err != nil {
		log.WithError(err).Fatal("cannot initialize speech recognition")
	}
	defer recognizer.Close()

	mic := audio.NewMic(cfg.SampleRate, cfg.BlockSize, speaker.IsSpeaking, log)

	hub := events.NewHub()
	if cfg.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.WithError(err).Warn("event broker unavailable, continuing without it")
		} else {
			hub.SetSink(pub.Publish)
			defer pub.Close()
		}
	}

	trigger := beacon.NewTrigger(cfg.BLEDeviceName, cfg.BLECharacteristic, log)
	trigger.OnOutcome(metrics.ObserveBeacon)

	controller := turn.NewController(recognizer, mic.Frames(), gate, sel, speaker, trigger, hub, log)

	status := func() httpserver.Status {
		return httpserver.Status{
			State:       controller.State().String(),
			Speaking:    speaker.IsSpeaking(),
			FAQEntries:  faq.Len(),
			RAGDocs:     ragDocs,
			RAGEnabled:  retriever != nil,
			OllamaModel: cfg.OllamaModel,
		}
	}
	srv := httpserver.New(status, hub, log)
	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("http server listening on %s", cfg.HTTPAddress)
		serverErrors <- srv.Start(cfg.HTTPAddress)
	}()

	if err := mic.Start(); err != nil {
		log.WithError(err).Fatal("cannot start microphone capture")
	}
	defer mic.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	controllerDone := make(chan error, 1)
	go func() {
		log.Info("crisis voice assistant is now active, say 'stop listening' to pause")
		controllerDone <- controller.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.WithError(err).Error("http server failed")
	case err := <-controllerDone:
		if err != nil && err != context.Canceled {
			log.WithError(err).Error("turn controller stopped")
		} else {
			log.Info("turn controller stopped")
		}
	case sig := <-sigChan:
		log.Infof("shutdown signal received: %v", sig)
		cancel()
	}

	speaker.StopCurrent()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
		_ = srv.Close()
	}
	log.Info("crisis voice assistant stopped, stay safe")
}

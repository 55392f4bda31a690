package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"whatsapp-relay/handlers"
	"whatsapp-relay/persistence"
	"whatsapp-relay/qr"
	"whatsapp-relay/session"
	"whatsapp-relay/utils"
	"whatsapp-relay/webhook"
	"whatsapp-relay/whatsapp"
)

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}).
		Level(lvl).
		With().Timestamp().Logger()
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON configuration file")
	flag.Parse()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Carica la configurazione
	config, err := utils.LoadConfig(*configPath)
	if err != nil {
		bootLog := newLogger("info")
		bootLog.Fatal().Err(err).Msg("❌ Invalid configuration")
	}

	log := newLogger(config.LogLevel)
	if config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Database SQLite per le sessioni whatsmeow
	dbContainer, err := sqlstore.New("sqlite3", config.WhatsApp.GetDSN(), waLog.Zerolog(log.With().Str("component", "sqlstore").Logger()))
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Could not open session store")
	}

	history, err := persistence.NewHistory(config.WhatsApp.HistoryDB, config.WhatsApp.HistoryLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Could not open chat history")
	}
	defer history.Close()

	client, err := whatsapp.NewClient(dbContainer, history, log)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Could not create WhatsApp client")
	}

	clientTimeout := time.Duration(config.WhatsApp.ClientTimeout)
	state := session.NewState()
	hub := handlers.NewHub(log.With().Str("component", "ws").Logger())
	state.Watch(hub.BroadcastSession)

	var terminal io.Writer
	if config.WhatsApp.PrintQR {
		terminal = os.Stdout
	}
	renderer := qr.NewRenderer(terminal)
	forwarder := webhook.NewForwarder(config.Webhook.URL, time.Duration(config.Webhook.Timeout), log.With().Str("component", "webhook").Logger())
	if config.Webhook.URL == "" {
		log.Warn().Msg("⚠️ No webhook URL configured, inbound messages will not be forwarded")
	}

	relay := handlers.NewEventRelay(client, state, renderer, forwarder, clientTimeout, log.With().Str("component", "events").Logger())
	client.SetEventHandler(relay)

	api := handlers.NewAPI(client, state, hub, clientTimeout, log.With().Str("component", "api").Logger())
	router := handlers.SetupRoutes(api, log.With().Str("component", "http").Logger())

	server := &http.Server{
		Addr:    config.Server.Address(),
		Handler: router,
	}

	// Avvia il server HTTP in una goroutine
	go func() {
		log.Info().Str("addr", server.Addr).Msg("🚀 HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ HTTP server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("❌ Could not start WhatsApp client")
	}

	// Gestisci chiusura corretta
	<-ctx.Done()
	log.Info().Msg("Disconnessione...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	client.Disconnect()
}

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wenli/memekeeper/internal/config"
	"github.com/wenli/memekeeper/internal/logger"
	"github.com/wenli/memekeeper/internal/metrics"
	"github.com/wenli/memekeeper/internal/telegram"
	"github.com/wenli/memekeeper/pkg/admin"
	"github.com/wenli/memekeeper/pkg/ingest"
	"github.com/wenli/memekeeper/pkg/llm"
	"github.com/wenli/memekeeper/pkg/retrieval"
	"github.com/wenli/memekeeper/pkg/store"
)

// orphanSweepSchedule runs the payload janitor nightly
const orphanSweepSchedule = "0 3 * * *"

// Daemon wires the meme repository, the retrieval engine, the ingestion
// pipeline and the two surfaces (Telegram and admin panel) into one service
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger
	tunables   *config.Tunables
	metrics    *metrics.Metrics

	// Core modules
	store    *store.Store
	engine   *retrieval.Engine
	pipeline *ingest.Pipeline
	provider llm.Provider

	// Services
	adminServer   *admin.Server
	telegramBot   *telegram.Bot
	telegramCmd   *telegram.Commands
	configWatcher *config.Watcher
	cronService   *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes the daemon's runtime state
type Status struct {
	Running bool    `json:"running"`
	Uptime  float64 `json:"uptime_seconds"`
	Records int     `json:"records"`
}

// New creates a new daemon instance
func New(cfg *config.Config, configPath string, log *logger.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		logger:     log,
		tunables:   config.NewTunables(cfg),
		metrics:    metrics.NewMetrics(),
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return d, nil
}

// initializeCoreModules initializes the repository, retrieval and ingestion
// modules in dependency order
func (d *Daemon) initializeCoreModules() error {
	st, err := store.Open(d.config.DataDir, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	d.store = st
	d.logger.Info().Int("records", st.Count()).Str("data_dir", d.config.DataDir).Msg("Store opened")

	d.metrics.RecordsTotal.Set(float64(st.Count()))
	st.OnChange(func() {
		d.metrics.RecordsTotal.Set(float64(st.Count()))
	})

	d.engine = retrieval.New(st)
	d.logger.Info().Msg("Retrieval engine initialized")

	provider, err := llm.New(d.config.AI.Provider, d.config.AI.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create llm provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().Str("provider", provider.Name()).Msg("LLM provider initialized")

	gate := ingest.NewGate(d.tunables.Cooldown())
	fetchTimeout := time.Duration(d.config.Ingest.FetchTimeoutSeconds) * time.Second
	classifyTimeout := time.Duration(d.config.Ingest.ClassifyTimeoutSeconds) * time.Second

	d.pipeline = ingest.New(
		st,
		gate,
		ingest.NewHTTPFetcher(fetchTimeout),
		ingest.NewLLMClassifier(provider, d.config.AI.ClassifierModel),
		ingest.Options{
			FetchTimeout:    fetchTimeout,
			ClassifyTimeout: classifyTimeout,
			Observer:        d.observeIngest,
		},
		d.logger.GetZerolog(),
	)
	d.logger.Info().
		Dur("cooldown", d.tunables.Cooldown()).
		Str("model", d.config.AI.ClassifierModel).
		Msg("Ingestion pipeline initialized")

	return nil
}

// initializeServices initializes the admin server, the Telegram bot, the
// config watcher and the janitor
func (d *Daemon) initializeServices() error {
	if d.config.Admin.Enabled {
		adminServer, err := admin.NewServer(admin.ServerOptions{
			Host: d.config.Admin.Host,
			Port: d.config.Admin.Port,
			Observer: func(endpoint string, status int) {
				d.metrics.AdminRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
			},
		}, d.store, &configBridge{daemon: d}, d.metrics.Handler(), d.logger.GetZerolog())
		if err != nil {
			return fmt.Errorf("failed to create admin server: %w", err)
		}
		d.adminServer = adminServer
		d.logger.Info().Msg("Admin server initialized")
	}

	if d.config.Telegram.Enabled {
		if err := d.initializeTelegram(); err != nil {
			return fmt.Errorf("failed to initialize telegram: %w", err)
		}
	}

	if d.configPath != "" {
		watcher, err := config.NewWatcher(d.configPath, d.logger.GetZerolog(), d.handleConfigReload)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to start config watcher, live reload disabled")
		} else {
			d.configWatcher = watcher
			d.logger.Info().Str("path", d.configPath).Msg("Config watcher initialized")
		}
	}

	d.cronService = cron.New()
	if _, err := d.cronService.AddFunc(orphanSweepSchedule, d.sweepOrphans); err != nil {
		return fmt.Errorf("failed to schedule orphan sweep: %w", err)
	}
	d.logger.Info().Str("schedule", orphanSweepSchedule).Msg("Orphan sweep scheduled")

	return nil
}

// initializeTelegram builds the bot and its handlers
func (d *Daemon) initializeTelegram() error {
	bot, err := telegram.New(&d.config.Telegram, d.logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}
	d.telegramBot = bot

	media := telegram.NewMedia(bot)

	handler, err := telegram.NewHandler(telegram.HandlerParams{
		Bot:      bot,
		Store:    d.store,
		Engine:   d.engine,
		Pipeline: d.pipeline,
		Media:    media,
		Provider: d.provider,
		Model:    d.config.AI.ReplyModel,
		Tunables: d.tunables,
		Metrics:  d.metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create telegram handler: %w", err)
	}

	d.telegramCmd = telegram.NewCommands(bot, d.store, d.engine, media, d.metrics)

	bot.SetMessageHandler(handler)
	bot.SetMediaHandler(handler)
	bot.SetCommandHandler(d.telegramCmd)

	d.logger.Info().Msg("Telegram bot initialized")
	return nil
}

// Start starts the daemon
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting memekeeper daemon")

	if d.adminServer != nil {
		go func() {
			if err := d.adminServer.Start(); err != nil {
				d.logger.Error().Err(err).Msg("Admin server failed")
			}
		}()
		d.logger.Info().
			Str("host", d.config.Admin.Host).
			Int("port", d.config.Admin.Port).
			Msg("Admin server started")
	}

	d.cronService.Start()
	d.logger.Info().Msg("Cron service started")

	if d.telegramBot != nil {
		if err := d.telegramBot.Start(); err != nil {
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
		d.logger.Info().Msg("Telegram bot started")
	}

	d.logger.Info().Msg("Memekeeper daemon started")
	return nil
}

// Stop stops the daemon
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping memekeeper daemon")

	if d.telegramBot != nil && d.telegramBot.IsRunning() {
		if err := d.telegramBot.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop telegram bot")
		}
	}

	if d.adminServer != nil {
		if err := d.adminServer.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop admin server")
		}
	}

	cronCtx := d.cronService.Stop()
	select {
	case <-cronCtx.Done():
	case <-time.After(10 * time.Second):
		d.logger.Warn().Msg("Timed out waiting for running cron jobs")
	}

	if d.configWatcher != nil {
		if err := d.configWatcher.Stop(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	d.cancel()

	d.logger.Info().Msg("Memekeeper daemon stopped")
	return nil
}

// Wait blocks until an interrupt or termination signal arrives, then stops
// the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// Status returns the daemon's runtime state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
		Records: d.store.Count(),
	}
	if d.running {
		status.Uptime = time.Since(d.startTime).Seconds()
	}
	return status
}

// GetStore returns the meme store
func (d *Daemon) GetStore() *store.Store {
	return d.store
}

// GetEngine returns the retrieval engine
func (d *Daemon) GetEngine() *retrieval.Engine {
	return d.engine
}

// GetPipeline returns the ingestion pipeline
func (d *Daemon) GetPipeline() *ingest.Pipeline {
	return d.pipeline
}

// GetTelegramBot returns the Telegram bot, nil when disabled
func (d *Daemon) GetTelegramBot() *telegram.Bot {
	return d.telegramBot
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// observeIngest feeds pipeline outcomes into the metrics registry
func (d *Daemon) observeIngest(outcome ingest.Outcome) {
	d.metrics.IngestAttemptsTotal.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case ingest.OutcomeAccepted:
		d.metrics.RecordsSavedTotal.WithLabelValues(string(store.SourceAuto)).Inc()
		d.metrics.ClassifierVerdictsTotal.WithLabelValues("accept").Inc()
	case ingest.OutcomeRejected:
		d.metrics.ClassifierVerdictsTotal.WithLabelValues("reject").Inc()
	}
}

// sweepOrphans removes payload files no index entry references
func (d *Daemon) sweepOrphans() {
	removed, err := d.store.SweepOrphans()
	if err != nil {
		d.logger.Error().Err(err).Msg("Orphan sweep failed")
		return
	}
	if removed > 0 {
		d.logger.Info().Int("removed", removed).Msg("Orphan sweep completed")
	}
}

// handleConfigReload applies settings from a changed config file
func (d *Daemon) handleConfigReload(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		d.logger.Warn().Err(err).Msg("Reloaded config is invalid, keeping previous settings")
		return
	}

	d.mu.Lock()
	d.config = cfg
	d.mu.Unlock()

	d.applyTunables(cfg)
	d.logger.Info().Msg("Config reloaded and applied")
}

// applyTunables pushes the live-adjustable settings into the running
// components
func (d *Daemon) applyTunables(cfg *config.Config) {
	d.tunables.Apply(cfg)
	d.pipeline.Gate().SetCooldown(d.tunables.Cooldown())
}

// configBridge adapts the daemon's configuration handling to the admin
// server's ConfigProvider interface
type configBridge struct {
	daemon *Daemon
}

func (b *configBridge) Snapshot() (json.RawMessage, error) {
	b.daemon.mu.RLock()
	cfg := b.daemon.config
	b.daemon.mu.RUnlock()

	return json.MarshalIndent(cfg, "", "  ")
}

func (b *configBridge) Update(raw json.RawMessage) error {
	// Merge the submitted document onto the current config so partial
	// updates keep unmentioned settings
	b.daemon.mu.RLock()
	updated := *b.daemon.config
	b.daemon.mu.RUnlock()

	if err := json.Unmarshal(raw, &updated); err != nil {
		return fmt.Errorf("invalid config document: %w", err)
	}

	if err := updated.Validate(); err != nil {
		return err
	}

	if err := config.NewLoader(b.daemon.configPath).Save(&updated); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}

	b.daemon.mu.Lock()
	b.daemon.config = &updated
	b.daemon.mu.Unlock()

	b.daemon.applyTunables(&updated)
	return nil
}

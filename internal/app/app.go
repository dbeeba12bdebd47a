package app

import (
	"time"

	"github.com/rs/zerolog"

	"speech-insights-service/internal/config"
	"speech-insights-service/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application and initializes logging from cfg.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Speech insights service application created")
	return a
}

// setupLogger configures the global zerolog logger.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	if a.Cfg != nil {
		if a.Cfg.Observability.LogLevel != "" {
			lc.Level = a.Cfg.Observability.LogLevel
		}
		if a.Cfg.Observability.LogFormat != "" {
			lc.Format = a.Cfg.Observability.LogFormat
		}
		if a.Cfg.Service.Env == "dev" && a.Cfg.Observability.LogFormat == "" {
			lc.Format = "console"
		}
		if a.Cfg.Service.Name != "" {
			lc.Service = a.Cfg.Service.Name
		}
	}
	logging.Init(lc)

	a.Logger = logging.WithComponent("application")
	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", lc.Format).
		Str("environment", a.env()).
		Msg("Logger setup completed")
}

func (a *Application) env() string {
	if a.Cfg == nil {
		return ""
	}
	return a.Cfg.Service.Env
}

// Start records the startup time.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Speech insights service starting")

	return nil
}

// Uptime returns the time since Start.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", a.Uptime()).
		Msg("Speech insights service shutting down")
}

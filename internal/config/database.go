package config

import (
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

func NewPostgresDB(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// NewListener opens the dedicated LISTEN connection. The driver reconnects on
// its own between the configured bounds and reports state changes to logger.
func NewListener(cfg *Config, logger *zap.Logger) *pq.Listener {
	return pq.NewListener(cfg.DatabaseURL, cfg.ListenerMinReconnect, cfg.ListenerMaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnected:
				logger.Info("realtime.listener_connected")
			case pq.ListenerEventDisconnected:
				logger.Warn("realtime.listener_disconnected", zap.Error(err))
			case pq.ListenerEventReconnected:
				logger.Info("realtime.listener_reconnected")
			case pq.ListenerEventConnectionAttemptFailed:
				logger.Warn("realtime.listener_connect_failed", zap.Error(err))
			}
		})
}

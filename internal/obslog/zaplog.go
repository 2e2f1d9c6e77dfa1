package obslog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZap builds a zap.SugaredLogger for the high-frequency state-machine
// loggers (health monitor, circuit breaker). Kept separate from Logger
// (logrus) deliberately: these two components emit many small structured
// events per second and benefit from zap's allocation profile, while the
// rest of the daemon favors logrus's friendlier entry API.
func NewZap(component string, cfg Config) *zap.SugaredLogger {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "text") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(strings.ToLower(cfg.Level)))
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar().With("component", component)
}

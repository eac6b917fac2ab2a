package app

import (
	"strings"

	"github.com/karunahq/CarePing/internal/models"
	"github.com/karunahq/CarePing/internal/util"
)

// ChannelTuningFromEnv builds a channel's retry and rate tuning from
// environment variables prefixed with the upper-cased channel name, e.g.
// WHATSAPP_MAX_RETRIES, WHATSAPP_RETRY_DELAY, WHATSAPP_BACKOFF_MULTIPLIER,
// WHATSAPP_RATE_PER_SECOND. Unset variables keep the defaults.
func ChannelTuningFromEnv(name string, kind models.ChannelKind) models.ChannelConfig {
	prefix := strings.ToUpper(name) + "_"
	cfg := models.DefaultChannelConfig(name, kind)
	cfg.MaxRetries = util.ParseIntEnv(prefix+"MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelay = util.ParseDurationEnv(prefix+"RETRY_DELAY", cfg.RetryDelay)
	cfg.BackoffMultiplier = util.ParseFloatEnv(prefix+"BACKOFF_MULTIPLIER", cfg.BackoffMultiplier)
	cfg.RatePerSecond = util.ParseFloatEnv(prefix+"RATE_PER_SECOND", cfg.RatePerSecond)
	return cfg
}

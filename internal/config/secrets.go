package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Subscriptions != nil {
		out.Subscriptions = make([]SubscriptionConfig, len(cfg.Subscriptions))
		copy(out.Subscriptions, cfg.Subscriptions)
	}
	if cfg.Backtest.Data != nil {
		out.Backtest.Data = make([]DataFileConfig, len(cfg.Backtest.Data))
		copy(out.Backtest.Data, cfg.Backtest.Data)
	}

	return out
}

// redact overwrites s with "***" when it is non-empty. Empty values stay
// empty so the redacted output still shows which settings are unset.
func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}

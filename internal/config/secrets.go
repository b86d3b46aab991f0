package config

import "maps"

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Server.APIKey)

	// Copy maps so mutations to the redacted copy do not affect the original.
	out.Fees.VenueFeePct = maps.Clone(cfg.Fees.VenueFeePct)
	out.Fees.VenueFixedCostUSD = maps.Clone(cfg.Fees.VenueFixedCostUSD)
	out.Risk.VenueRegulatory = maps.Clone(cfg.Risk.VenueRegulatory)

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

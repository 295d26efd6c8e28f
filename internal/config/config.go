package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port           int
	DatabaseURL    string
	MigrationsPath string
	LogLevel       string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	ExtractionModel    string
	TranscriptionModel string

	TwilioAccountSID string
	TwilioAuthToken  string
	WhatsAppNumber   string

	NatsURL   string
	NatsToken string
}

func Load() Config {
	return Config{
		Port:           envInt("LOGBOOK_PORT", 8000),
		DatabaseURL:    envStr("DATABASE_URL", ""),
		MigrationsPath: envStr("MIGRATIONS_PATH", "migrations"),
		LogLevel:       envStr("LOG_LEVEL", "info"),

		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      envStr("OPENAI_BASE_URL", ""),
		ExtractionModel:    envStr("EXTRACTION_MODEL", "gpt-4o"),
		TranscriptionModel: envStr("TRANSCRIPTION_MODEL", "whisper-1"),

		TwilioAccountSID: envStr("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  envStr("TWILIO_AUTH_TOKEN", ""),
		WhatsAppNumber:   envStr("TWILIO_WHATSAPP_NUMBER", "whatsapp:+14155238886"),

		NatsURL:   envStr("NATS_URL", ""),
		NatsToken: envStr("NATS_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

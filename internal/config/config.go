package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                        string
	ListenAddr                 string
	ServiceName                string
	DatabaseURL                string
	RedisURL                   string
	PresenceTTL                time.Duration
	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string
	DefaultTranscribeLanguage  string
	AudioCodec                 string
	HistoryLimit               int
	TranscriptLimit            int
	TranslationConcurrency     int
	PersistTimeout             time.Duration
	WSReadLimit                int64
	WSWriteTimeout             time.Duration
	WSPingInterval             time.Duration
	WSPongTimeout              time.Duration
	SessionWebhookURL          string
	TranscriptTimezone         string
	OTLPEndpoint               string
}

const (
	AudioCodecPCM16 = "pcm16"
	AudioCodecOpus  = "opus"
)

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	switch c.AudioCodec {
	case AudioCodecPCM16, AudioCodecOpus:
	default:
		return fmt.Errorf("AUDIO_CODEC must be %q or %q, got %q", AudioCodecPCM16, AudioCodecOpus, c.AudioCodec)
	}
	for _, pos := range c.positiveIntChecks() {
		if pos.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", pos.name, pos.value)
		}
	}
	if c.WSReadLimit <= 0 {
		return fmt.Errorf("WS_READ_LIMIT must be positive, got %d", c.WSReadLimit)
	}
	for _, d := range c.positiveDurationChecks() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.WSPongTimeout <= c.WSPingInterval {
		return fmt.Errorf("WS_PONG_TIMEOUT (%s) must be longer than WS_PING_INTERVAL (%s)", c.WSPongTimeout, c.WSPingInterval)
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "LISTEN_ADDR", value: c.ListenAddr},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "GOOGLE_CLOUD_PROJECT_ID", value: c.GoogleCloudProjectID},
		{name: "GOOGLE_CLOUD_CREDENTIALS_JSON", value: c.GoogleCloudCredentialsJSON},
		{name: "DEFAULT_TRANSCRIBE_LANGUAGE", value: c.DefaultTranscribeLanguage},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

type positiveIntField struct {
	name  string
	value int
}

func (c *Config) positiveIntChecks() []positiveIntField {
	return []positiveIntField{
		{name: "HISTORY_LIMIT", value: c.HistoryLimit},
		{name: "TRANSCRIPT_LIMIT", value: c.TranscriptLimit},
		{name: "TRANSLATION_CONCURRENCY", value: c.TranslationConcurrency},
	}
}

type positiveDurationField struct {
	name  string
	value time.Duration
}

func (c *Config) positiveDurationChecks() []positiveDurationField {
	return []positiveDurationField{
		{name: "PRESENCE_TTL", value: c.PresenceTTL},
		{name: "PERSIST_TIMEOUT", value: c.PersistTimeout},
		{name: "WS_WRITE_TIMEOUT", value: c.WSWriteTimeout},
		{name: "WS_PING_INTERVAL", value: c.WSPingInterval},
		{name: "WS_PONG_TIMEOUT", value: c.WSPongTimeout},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// TranscriptLocation falls back to UTC when the zone cannot be loaded.
func (c *Config) TranscriptLocation() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

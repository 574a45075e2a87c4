package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/multilingo/internal/config"
)

type envConfig struct {
	Env                        string        `env:"ENV" envDefault:"production"`
	ListenAddr                 string        `env:"LISTEN_ADDR" envDefault:":8000"`
	ServiceName                string        `env:"SERVICE_NAME" envDefault:"multilingo"`
	DatabaseURL                string        `env:"DATABASE_URL,required"`
	RedisURL                   string        `env:"REDIS_URL"`
	PresenceTTL                time.Duration `env:"PRESENCE_TTL" envDefault:"90s"`
	GoogleCloudProjectID       string        `env:"GOOGLE_CLOUD_PROJECT_ID,required"`
	GoogleCloudCredentialsJSON string        `env:"GOOGLE_CLOUD_CREDENTIALS_JSON,required"`
	GoogleCloudSpeechLocation  string        `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string        `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"short"`
	DefaultTranscribeLanguage  string        `env:"DEFAULT_TRANSCRIBE_LANGUAGE" envDefault:"en"`
	AudioCodec                 string        `env:"AUDIO_CODEC" envDefault:"pcm16"`
	HistoryLimit               int           `env:"HISTORY_LIMIT" envDefault:"100"`
	TranscriptLimit            int           `env:"TRANSCRIPT_LIMIT" envDefault:"50"`
	TranslationConcurrency     int           `env:"TRANSLATION_CONCURRENCY" envDefault:"4"`
	PersistTimeout             time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`
	WSReadLimit                int64         `env:"WS_READ_LIMIT" envDefault:"1048576"`
	WSWriteTimeout             time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSPingInterval             time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSPongTimeout              time.Duration `env:"WS_PONG_TIMEOUT" envDefault:"75s"`
	SessionWebhookURL          string        `env:"SESSION_WEBHOOK_URL"`
	TranscriptTimezone         string        `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
	OTLPEndpoint               string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		ListenAddr:                 raw.ListenAddr,
		ServiceName:                raw.ServiceName,
		DatabaseURL:                raw.DatabaseURL,
		RedisURL:                   raw.RedisURL,
		PresenceTTL:                raw.PresenceTTL,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		DefaultTranscribeLanguage:  raw.DefaultTranscribeLanguage,
		AudioCodec:                 raw.AudioCodec,
		HistoryLimit:               raw.HistoryLimit,
		TranscriptLimit:            raw.TranscriptLimit,
		TranslationConcurrency:     raw.TranslationConcurrency,
		PersistTimeout:             raw.PersistTimeout,
		WSReadLimit:                raw.WSReadLimit,
		WSWriteTimeout:             raw.WSWriteTimeout,
		WSPingInterval:             raw.WSPingInterval,
		WSPongTimeout:              raw.WSPongTimeout,
		SessionWebhookURL:          raw.SessionWebhookURL,
		TranscriptTimezone:         raw.TranscriptTimezone,
		OTLPEndpoint:               raw.OTLPEndpoint,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

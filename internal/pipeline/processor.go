package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/foxseedlab/multilingo/internal/audio"
	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/logging"
	"github.com/foxseedlab/multilingo/internal/protocol"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/transcriber"
	"github.com/foxseedlab/multilingo/internal/translator"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/foxseedlab/multilingo/internal/pipeline")

// Store is the slice of persistence the pipeline writes to.
type Store interface {
	repository.TranscriptRepository
	repository.MessageRepository
}

// Sessions resolves who is in a room and delivers to one of them.
type Sessions interface {
	Roster(ctx context.Context, roomID domain.RoomID) ([]repository.Participant, error)
	Deliver(ctx context.Context, roomID domain.RoomID, userID domain.UserID, payload any) error
}

type Processor struct {
	cfg         *config.Config
	decoders    audio.DecoderFactory
	transcriber transcriber.Transcriber
	translator  translator.Translator
	store       Store
	sessions    Sessions
}

func NewProcessor(cfg *config.Config, decoders audio.DecoderFactory, tr transcriber.Transcriber, tl translator.Translator, store Store, sessions Sessions) *Processor {
	return &Processor{
		cfg:         cfg,
		decoders:    decoders,
		transcriber: tr,
		translator:  tl,
		store:       store,
		sessions:    sessions,
	}
}

// Stream turns one connection's audio frames into transcriptions. Frames
// must be fed from a single goroutine.
type Stream struct {
	p       *Processor
	roomID  domain.RoomID
	speaker domain.UserID
	decoder audio.Decoder
}

func (p *Processor) NewStream(roomID domain.RoomID, speaker domain.UserID) (*Stream, error) {
	dec, err := p.decoders()
	if err != nil {
		return nil, fmt.Errorf("create audio decoder: %w", err)
	}
	return &Stream{p: p, roomID: roomID, speaker: speaker, decoder: dec}, nil
}

func (s *Stream) Close() {
	s.decoder.Close()
}

type utterance struct {
	roomID          domain.RoomID
	speaker         repository.Participant
	text            string
	language        string
	confidence      *float32
	transcriptionID *int64
	timestamp       time.Time
}

// Process handles one binary frame. Every failure is contained here so the
// next frame is processed regardless.
func (s *Stream) Process(ctx context.Context, frame []byte) {
	ctx, span := tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(
		attribute.String("room_id", string(s.roomID)),
		attribute.Int64("speaker_id", int64(s.speaker)),
		attribute.Int("frame_bytes", len(frame)),
	))
	defer span.End()

	samples, err := s.decoder.Decode(frame)
	if err != nil {
		span.RecordError(err)
		slog.Warn("failed to decode audio frame", logging.Room(s.roomID), logging.User(s.speaker), logging.Err(err))
		return
	}
	if len(samples) == 0 {
		return
	}

	roster, err := s.p.sessions.Roster(ctx, s.roomID)
	if err != nil {
		span.RecordError(err)
		slog.Warn("failed to load roster for audio", logging.Room(s.roomID), logging.User(s.speaker), logging.Err(err))
		return
	}
	speaker, ok := findParticipant(roster, s.speaker)
	if !ok {
		slog.Warn("audio from a user outside the roster dropped", logging.Room(s.roomID), logging.User(s.speaker))
		return
	}

	hint := translator.NormalizeLanguage(speaker.MainLanguage)
	if hint == "" {
		hint = s.p.cfg.DefaultTranscribeLanguage
	}
	res, err := s.p.transcribe(ctx, samples, hint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcription failed")
		slog.Warn("transcription failed", logging.Room(s.roomID), logging.User(s.speaker), logging.Err(err))
		return
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		slog.Debug("no speech recognized", logging.Room(s.roomID), logging.User(s.speaker))
		return
	}

	u := utterance{
		roomID:     s.roomID,
		speaker:    speaker,
		text:       text,
		language:   translator.NormalizeLanguage(res.Language),
		confidence: res.Confidence,
		timestamp:  time.Now().UTC(),
	}
	if u.language == "" || u.language == transcriber.UnknownLanguage {
		u.language = hint
	}
	u.transcriptionID = s.p.persistTranscription(ctx, u, transcriber.DurationMs(samples))

	translations := s.p.translateAll(ctx, u, targetLanguages(roster, speaker.UserID, u.language))
	s.p.fanOut(ctx, u, roster, translations)
	span.SetStatus(codes.Ok, "delivered")
}

func (p *Processor) transcribe(ctx context.Context, samples []byte, hint string) (transcriber.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Transcribe", trace.WithAttributes(
		attribute.String("language_hint", hint),
		attribute.Int64("audio_ms", transcriber.DurationMs(samples)),
	))
	defer span.End()
	res, err := p.transcriber.Transcribe(ctx, samples, hint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recognize failed")
	}
	return res, err
}

func (p *Processor) persistTranscription(ctx context.Context, u utterance, durationMs int64) *int64 {
	ctx, cancel := p.persistContext(ctx)
	defer cancel()
	t, err := p.store.CreateTranscription(ctx, repository.CreateTranscriptionInput{
		RoomID:           u.roomID,
		UserID:           u.speaker.UserID,
		OriginalText:     u.text,
		DetectedLanguage: u.language,
		ConfidenceScore:  u.confidence,
		AudioDurationMs:  &durationMs,
		Timestamp:        u.timestamp,
	})
	if err != nil {
		slog.Error("failed to save transcription", logging.Room(u.roomID), logging.User(u.speaker.UserID), logging.Err(err))
		return nil
	}
	return &t.ID
}

type translation struct {
	language string
	text     string
	ok       bool
}

// translateAll translates u once per language, bounded by the configured
// concurrency. Failed languages are absent from the result.
func (p *Processor) translateAll(ctx context.Context, u utterance, languages []string) map[string]string {
	out := make(map[string]string, len(languages))
	if len(languages) == 0 {
		return out
	}

	workers := max(1, p.cfg.TranslationConcurrency)
	tp := pool.NewWithResults[translation]().WithMaxGoroutines(workers)
	for _, lang := range languages {
		tp.Go(func() translation {
			return p.translateOne(ctx, u, lang)
		})
	}
	for _, r := range tp.Wait() {
		if r.ok {
			out[r.language] = r.text
		}
	}
	return out
}

func (p *Processor) translateOne(ctx context.Context, u utterance, lang string) translation {
	ctx, span := tracer.Start(ctx, "pipeline.Translate", trace.WithAttributes(
		attribute.String("source_language", u.language),
		attribute.String("target_language", lang),
	))
	defer span.End()

	text, err := p.translator.Translate(ctx, u.text, u.language, lang)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "translate failed")
		slog.Warn("translation failed; delivering original text", logging.Room(u.roomID), logging.Language(lang), logging.Err(err))
		return translation{language: lang}
	}

	if u.transcriptionID != nil {
		pctx, cancel := p.persistContext(ctx)
		defer cancel()
		if _, err := p.store.AddTranslation(pctx, repository.AddTranslationInput{
			TranscriptionID:    *u.transcriptionID,
			TargetLanguage:     lang,
			TranslatedText:     text,
			TranslationService: p.translator.Name(),
		}); err != nil {
			slog.Error("failed to save translation", logging.Room(u.roomID), logging.Language(lang), logging.Err(err))
		}
	}
	return translation{language: lang, text: text, ok: true}
}

func (p *Processor) fanOut(ctx context.Context, u utterance, roster []repository.Participant, translations map[string]string) {
	delivered := 0
	for _, recipient := range roster {
		frame, in := resolveFor(u, recipient, translations)

		pctx, cancel := p.persistContext(ctx)
		msg, err := p.store.CreateMessage(pctx, in)
		cancel()
		if err != nil {
			slog.Error("failed to save message", logging.Room(u.roomID), logging.User(recipient.UserID), logging.Err(err))
		} else {
			frame.MessageID = msg.ID
		}

		if err := p.sessions.Deliver(ctx, u.roomID, recipient.UserID, frame); err != nil {
			slog.Warn("failed to deliver transcription", logging.Room(u.roomID), logging.User(recipient.UserID), logging.Err(err))
			continue
		}
		delivered++
	}
	slog.Debug("transcription fanned out", logging.Room(u.roomID), logging.User(u.speaker.UserID), logging.Language(u.language), "recipients", len(roster), "delivered", delivered, "translations", len(translations))
}

// resolveFor picks what recipient reads: the speaker and anyone reading the
// spoken language get the original, everyone else their translation, or the
// original when it failed.
func resolveFor(u utterance, recipient repository.Participant, translations map[string]string) (protocol.Transcription, repository.CreateMessageInput) {
	target := u.language
	if recipient.UserID != u.speaker.UserID {
		target = readingLanguage(recipient, u.language)
	}

	var translated *string
	if !translator.SameLanguage(target, u.language) {
		if text, ok := translations[target]; ok {
			translated = &text
		}
	}

	frame := protocol.Transcription{
		Type:             protocol.TypeTranscription,
		SpeakerID:        int64(u.speaker.UserID),
		SpeakerName:      u.speaker.Name,
		OriginalText:     u.text,
		OriginalLanguage: u.language,
		Text:             u.text,
		Language:         target,
		IsTranslated:     translated != nil,
		Confidence:       u.confidence,
		Timestamp:        u.timestamp,
	}
	if translated != nil {
		frame.Text = *translated
	}
	if u.transcriptionID != nil {
		frame.TranscriptionID = *u.transcriptionID
	}

	in := repository.CreateMessageInput{
		RoomID:           u.roomID,
		TranscriptionID:  u.transcriptionID,
		SpeakerID:        u.speaker.UserID,
		RecipientID:      recipient.UserID,
		SpeakerName:      u.speaker.Name,
		OriginalText:     u.text,
		OriginalLanguage: u.language,
		TranslatedText:   translated,
		TargetLanguage:   target,
		MessageType:      repository.MessageTypeTranscription,
		Timestamp:        u.timestamp,
	}
	return frame, in
}

func readingLanguage(p repository.Participant, fallback string) string {
	if lang := translator.NormalizeLanguage(p.TranslateToLanguage); lang != "" {
		return lang
	}
	if lang := translator.NormalizeLanguage(p.MainLanguage); lang != "" {
		return lang
	}
	return fallback
}

// targetLanguages lists, sorted and without duplicates, the languages other
// participants read that differ from the spoken one.
func targetLanguages(roster []repository.Participant, speaker domain.UserID, spoken string) []string {
	var out []string
	for _, p := range roster {
		if p.UserID == speaker {
			continue
		}
		lang := readingLanguage(p, spoken)
		if translator.SameLanguage(lang, spoken) || slices.Contains(out, lang) {
			continue
		}
		out = append(out, lang)
	}
	slices.Sort(out)
	return out
}

func (p *Processor) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.PersistTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.PersistTimeout)
}

func findParticipant(roster []repository.Participant, userID domain.UserID) (repository.Participant, bool) {
	for _, p := range roster {
		if p.UserID == userID {
			return p, true
		}
	}
	return repository.Participant{}, false
}

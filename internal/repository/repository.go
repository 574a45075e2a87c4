package repository

import (
	"context"
	"errors"
	"time"

	"github.com/foxseedlab/multilingo/internal/domain"
)

type AddParticipantInput struct {
	RoomID              domain.RoomID
	UserID              domain.UserID
	MainLanguage        string
	TranslateToLanguage string
}

type UpdateParticipantLanguagesInput struct {
	RoomID domain.RoomID
	UserID domain.UserID
	// Empty fields keep the stored value.
	MainLanguage        string
	TranslateToLanguage string
}

type CreateTranscriptionInput struct {
	RoomID           domain.RoomID
	UserID           domain.UserID
	OriginalText     string
	DetectedLanguage string
	ConfidenceScore  *float32
	AudioDurationMs  *int64
	Timestamp        time.Time
}

type AddTranslationInput struct {
	TranscriptionID    int64
	TargetLanguage     string
	TranslatedText     string
	TranslationService string
}

type CreateMessageInput struct {
	RoomID           domain.RoomID
	TranscriptionID  *int64
	SpeakerID        domain.UserID
	RecipientID      domain.UserID
	SpeakerName      string
	OriginalText     string
	OriginalLanguage string
	TranslatedText   *string
	TargetLanguage   string
	MessageType      string
	Timestamp        time.Time
}

type RoomRepository interface {
	// GetRoom returns nil, nil when the room does not exist.
	GetRoom(ctx context.Context, roomID domain.RoomID) (*Room, error)
	GetUser(ctx context.Context, userID domain.UserID) (*User, error)
	GetRoomParticipants(ctx context.Context, roomID domain.RoomID) ([]Participant, error)
	// AddParticipant reports false when the user was already a participant.
	AddParticipant(ctx context.Context, input AddParticipantInput) (bool, error)
	UpdateParticipantLanguages(ctx context.Context, input UpdateParticipantLanguagesInput) error
}

type TranscriptRepository interface {
	CreateTranscription(ctx context.Context, input CreateTranscriptionInput) (*Transcription, error)
	AddTranslation(ctx context.Context, input AddTranslationInput) (*Translation, error)
	// GetRoomTranscriptions lists the newest transcriptions first.
	GetRoomTranscriptions(ctx context.Context, roomID domain.RoomID, limit int) ([]Transcription, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, input CreateMessageInput) (*Message, error)
	// GetRoomMessages lists the newest messages first.
	GetRoomMessages(ctx context.Context, roomID domain.RoomID, limit int) ([]Message, error)
}

type Repository interface {
	RoomRepository
	TranscriptRepository
	MessageRepository
	Ping(ctx context.Context) error
}

// ErrNotFound is returned by writes that reference a missing room or participant.
var ErrNotFound = errors.New("not found")

package repository

import (
	"time"

	"github.com/foxseedlab/multilingo/internal/domain"
)

const MessageTypeTranscription = "transcription"

type User struct {
	ID           domain.UserID
	Name         string
	Email        string
	Profession   string
	MainLanguage string
	CreatedAt    time.Time
}

type Room struct {
	ID          int64
	RoomID      domain.RoomID
	Name        string
	Description string
	CreatedBy   domain.UserID
	CreatedAt   time.Time
}

// Participant is a user's membership in a room with their language
// preferences. MainLanguage is what they speak, TranslateToLanguage what
// they want to read.
type Participant struct {
	UserID              domain.UserID
	Name                string
	MainLanguage        string
	TranslateToLanguage string
	IsCreator           bool
	JoinedAt            time.Time
}

type Transcription struct {
	ID               int64
	RoomID           domain.RoomID
	UserID           domain.UserID
	SpeakerName      string
	OriginalText     string
	DetectedLanguage string
	ConfidenceScore  *float32
	AudioDurationMs  *int64
	Timestamp        time.Time
}

type Translation struct {
	ID                 int64
	TranscriptionID    int64
	TargetLanguage     string
	TranslatedText     string
	TranslationService string
	CreatedAt          time.Time
}

// Message is one utterance as delivered to one recipient.
type Message struct {
	ID               int64
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

// Text returns what the recipient reads.
func (m Message) Text() string {
	if m.TranslatedText != nil {
		return *m.TranslatedText
	}
	return m.OriginalText
}

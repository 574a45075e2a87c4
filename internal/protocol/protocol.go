package protocol

import (
	"encoding/json"
	"time"
)

// Server to client message types.
const (
	TypeParticipantsList  = "participants_list"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeTranscription     = "transcription"
	TypeSpeakingStatus    = "speaking_status"
	TypeSessionEnded      = "session_ended"
	TypeError             = "error"
)

// Client to server control types.
const (
	ControlJoin           = "join"
	ControlEndSession     = "end_session"
	ControlLeave          = "leave"
	ControlSpeakingStatus = "speaking_status"
	ControlLanguageChange = "language_change"
)

// Error codes carried by TypeError frames.
const (
	ErrCodeRoomNotFound = "room_not_found"
	ErrCodeRoomClosing  = "room_closing"
	ErrCodeNotCreator   = "not_creator"
	ErrCodeInternal     = "internal_error"
)

type Participant struct {
	UserID              int64  `json:"user_id"`
	Name                string `json:"name"`
	MainLanguage        string `json:"main_language"`
	TranslateToLanguage string `json:"translate_to_language"`
	IsCreator           bool   `json:"is_creator"`
	Online              bool   `json:"online"`
}

type ParticipantsList struct {
	Type         string        `json:"type"`
	RoomID       string        `json:"room_id"`
	CreatorID    int64         `json:"creator_id"`
	Participants []Participant `json:"participants"`
}

// ParticipantEvent is sent for joins and leaves.
type ParticipantEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

type Transcription struct {
	Type             string    `json:"type"`
	MessageID        int64     `json:"message_id,omitempty"`
	TranscriptionID  int64     `json:"transcription_id,omitempty"`
	SpeakerID        int64     `json:"speaker_id"`
	SpeakerName      string    `json:"speaker_name"`
	OriginalText     string    `json:"original_text"`
	OriginalLanguage string    `json:"original_language"`
	Text             string    `json:"text"`
	Language         string    `json:"language"`
	IsTranslated     bool      `json:"is_translated"`
	Confidence       *float32  `json:"confidence,omitempty"`
	History          bool      `json:"history,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type SpeakingStatus struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	Name       string `json:"name,omitempty"`
	IsSpeaking bool   `json:"is_speaking"`
}

type SessionEnded struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id"`
	EndedBy int64  `json:"ended_by"`
	Reason  string `json:"reason"`
}

type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewError(code, message string) Error {
	return Error{Type: TypeError, Code: code, Message: message}
}

// Envelope is the part shared by every inbound control frame.
type Envelope struct {
	Type string `json:"type"`
}

type SpeakingStatusRequest struct {
	IsSpeaking bool `json:"is_speaking"`
}

type LanguageChangeRequest struct {
	MainLanguage        string `json:"main_language"`
	TranslateToLanguage string `json:"translate_to_language"`
}

// ParseEnvelope reads the type discriminator of a control frame.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

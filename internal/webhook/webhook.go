package webhook

import (
	"context"
	"time"
)

type SessionParticipant struct {
	UserID              int64  `json:"user_id"`
	Name                string `json:"name"`
	MainLanguage        string `json:"main_language"`
	TranslateToLanguage string `json:"translate_to_language"`
	IsCreator           bool   `json:"is_creator"`
}

// SessionTranscriptPayload is posted once a room's live session is over.
type SessionTranscriptPayload struct {
	RoomID             string               `json:"room_id"`
	RoomName           string               `json:"room_name"`
	Reason             string               `json:"reason"`
	EndedBy            *int64               `json:"ended_by,omitempty"`
	EndedAt            time.Time            `json:"ended_at"`
	Timezone           string               `json:"timezone"`
	Participants       []SessionParticipant `json:"participants"`
	TranscriptionCount int                  `json:"transcription_count"`
	TranscriptFilename string               `json:"transcript_filename"`
	TranscriptText     string               `json:"transcript_text"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload SessionTranscriptPayload) error
}

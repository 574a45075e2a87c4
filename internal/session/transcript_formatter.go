package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/webhook"
)

const (
	transcriptTimeLayout     = "2006-01-02 15:04:05"
	transcriptLineTimeLayout = "15:04:05"
	transcriptFileTimeLayout = "20060102-1504"
)

// buildTranscriptText renders transcriptions, oldest first, as a plain-text
// transcript with a short header.
func buildTranscriptText(room repository.Room, participants []repository.Participant, endedAt time.Time, timezone string, loc *time.Location, transcriptions []repository.Transcription) string {
	loc = safeLocation(loc)
	names := make([]string, 0, len(participants))
	for _, p := range canonicalParticipants(participants) {
		names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.MainLanguage))
	}

	startedAt := endedAt
	if len(transcriptions) > 0 {
		startedAt = transcriptions[0].Timestamp
	}

	lines := []string{
		fmt.Sprintf("Room: %s (%s)", room.Name, room.RoomID),
		fmt.Sprintf("Period: %s ~ %s (%s)", startedAt.In(loc).Format(transcriptTimeLayout), endedAt.In(loc).Format(transcriptTimeLayout), timezone),
		fmt.Sprintf("Participants: %s", strings.Join(names, ", ")),
		"",
	}
	for _, t := range transcriptions {
		lines = append(lines, fmt.Sprintf("[%s] %s (%s): %s",
			t.Timestamp.In(loc).Format(transcriptLineTimeLayout), speakerLabel(t), t.DetectedLanguage, t.OriginalText))
	}
	return strings.Join(lines, "\n")
}

func buildSessionTranscriptPayload(room repository.Room, participants []repository.Participant, reason string, endedBy *domain.UserID, endedAt time.Time, timezone string, loc *time.Location, transcriptions []repository.Transcription) webhook.SessionTranscriptPayload {
	details := make([]webhook.SessionParticipant, 0, len(participants))
	for _, p := range canonicalParticipants(participants) {
		details = append(details, webhook.SessionParticipant{
			UserID:              int64(p.UserID),
			Name:                p.Name,
			MainLanguage:        p.MainLanguage,
			TranslateToLanguage: p.TranslateToLanguage,
			IsCreator:           p.IsCreator,
		})
	}

	payload := webhook.SessionTranscriptPayload{
		RoomID:             string(room.RoomID),
		RoomName:           room.Name,
		Reason:             reason,
		EndedAt:            endedAt.In(safeLocation(loc)),
		Timezone:           timezone,
		Participants:       details,
		TranscriptionCount: len(transcriptions),
		TranscriptFilename: fmt.Sprintf("%s_%s.txt", room.RoomID, endedAt.In(safeLocation(loc)).Format(transcriptFileTimeLayout)),
		TranscriptText:     buildTranscriptText(room, participants, endedAt, timezone, loc, transcriptions),
	}
	if endedBy != nil {
		id := int64(*endedBy)
		payload.EndedBy = &id
	}
	return payload
}

func canonicalParticipants(participants []repository.Participant) []repository.Participant {
	byUserID := make(map[domain.UserID]repository.Participant, len(participants))
	for _, p := range participants {
		if p.UserID == domain.NoUser {
			continue
		}
		if strings.TrimSpace(p.Name) == "" {
			p.Name = p.UserID.String()
		}
		byUserID[p.UserID] = p
	}
	list := make([]repository.Participant, 0, len(byUserID))
	for _, p := range byUserID {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		in := strings.ToLower(list[i].Name)
		jn := strings.ToLower(list[j].Name)
		if in != jn {
			return in < jn
		}
		return list[i].UserID < list[j].UserID
	})
	return list
}

func speakerLabel(t repository.Transcription) string {
	if t.SpeakerName != "" {
		return t.SpeakerName
	}
	return t.UserID.String()
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

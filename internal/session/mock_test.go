package session

import (
	"context"
	"sync"
	"time"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/presence"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/webhook"
)

type mockRepository struct {
	mu             sync.Mutex
	rooms          map[domain.RoomID]repository.Room
	users          map[domain.UserID]repository.User
	participants   map[domain.RoomID][]repository.Participant
	messages       []repository.Message
	transcriptions []repository.Transcription
	addCalls       []repository.AddParticipantInput
	updateCalls    []repository.UpdateParticipantLanguagesInput
	getRosterCalls int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		rooms:        make(map[domain.RoomID]repository.Room),
		users:        make(map[domain.UserID]repository.User),
		participants: make(map[domain.RoomID][]repository.Participant),
	}
}

func (m *mockRepository) addUser(id domain.UserID, name, lang string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = repository.User{ID: id, Name: name, MainLanguage: lang}
}

func (m *mockRepository) addRoom(id domain.RoomID, createdBy domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[id] = repository.Room{RoomID: id, Name: "Room " + string(id), CreatedBy: createdBy}
}

func (m *mockRepository) addMember(roomID domain.RoomID, userID domain.UserID, mainLang, translateTo string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[roomID] = append(m.participants[roomID], repository.Participant{
		UserID:              userID,
		Name:                m.users[userID].Name,
		MainLanguage:        mainLang,
		TranslateToLanguage: translateTo,
	})
}

func (m *mockRepository) Ping(context.Context) error { return nil }

func (m *mockRepository) GetRoom(_ context.Context, roomID domain.RoomID) (*repository.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

func (m *mockRepository) GetUser(_ context.Context, userID domain.UserID) (*repository.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *mockRepository) GetRoomParticipants(_ context.Context, roomID domain.RoomID) ([]repository.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getRosterCalls++
	room := m.rooms[roomID]
	out := make([]repository.Participant, 0, len(m.participants[roomID]))
	for _, p := range m.participants[roomID] {
		p.IsCreator = p.UserID == room.CreatedBy
		out = append(out, p)
	}
	return out, nil
}

func (m *mockRepository) AddParticipant(_ context.Context, input repository.AddParticipantInput) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls = append(m.addCalls, input)
	for _, p := range m.participants[input.RoomID] {
		if p.UserID == input.UserID {
			return false, nil
		}
	}
	m.participants[input.RoomID] = append(m.participants[input.RoomID], repository.Participant{
		UserID:              input.UserID,
		Name:                m.users[input.UserID].Name,
		MainLanguage:        input.MainLanguage,
		TranslateToLanguage: input.TranslateToLanguage,
	})
	return true, nil
}

func (m *mockRepository) UpdateParticipantLanguages(_ context.Context, input repository.UpdateParticipantLanguagesInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, input)
	list := m.participants[input.RoomID]
	for i := range list {
		if list[i].UserID != input.UserID {
			continue
		}
		if input.MainLanguage != "" {
			list[i].MainLanguage = input.MainLanguage
		}
		if input.TranslateToLanguage != "" {
			list[i].TranslateToLanguage = input.TranslateToLanguage
		}
		return nil
	}
	return repository.ErrNotFound
}

func (m *mockRepository) CreateTranscription(_ context.Context, input repository.CreateTranscriptionInput) (*repository.Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := repository.Transcription{
		ID:               int64(len(m.transcriptions) + 1),
		RoomID:           input.RoomID,
		UserID:           input.UserID,
		SpeakerName:      m.users[input.UserID].Name,
		OriginalText:     input.OriginalText,
		DetectedLanguage: input.DetectedLanguage,
		Timestamp:        input.Timestamp,
	}
	m.transcriptions = append(m.transcriptions, t)
	return &t, nil
}

func (m *mockRepository) AddTranslation(_ context.Context, input repository.AddTranslationInput) (*repository.Translation, error) {
	return &repository.Translation{TranscriptionID: input.TranscriptionID, TargetLanguage: input.TargetLanguage}, nil
}

func (m *mockRepository) GetRoomTranscriptions(_ context.Context, roomID domain.RoomID, limit int) ([]repository.Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Transcription
	for i := len(m.transcriptions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.transcriptions[i].RoomID == roomID {
			out = append(out, m.transcriptions[i])
		}
	}
	return out, nil
}

func (m *mockRepository) CreateMessage(_ context.Context, input repository.CreateMessageInput) (*repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := repository.Message{
		ID:               int64(len(m.messages) + 1),
		RoomID:           input.RoomID,
		TranscriptionID:  input.TranscriptionID,
		SpeakerID:        input.SpeakerID,
		RecipientID:      input.RecipientID,
		SpeakerName:      input.SpeakerName,
		OriginalText:     input.OriginalText,
		OriginalLanguage: input.OriginalLanguage,
		TranslatedText:   input.TranslatedText,
		TargetLanguage:   input.TargetLanguage,
		MessageType:      repository.MessageTypeTranscription,
		Timestamp:        input.Timestamp,
	}
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *mockRepository) GetRoomMessages(_ context.Context, roomID domain.RoomID, limit int) ([]repository.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []repository.Message
	for i := len(m.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if m.messages[i].RoomID == roomID {
			out = append(out, m.messages[i])
		}
	}
	return out, nil
}

type mockPresence struct {
	presence.NoopStore
	mu      sync.Mutex
	touched []domain.UserID
	removed []domain.UserID
	cleared []domain.RoomID
}

func (p *mockPresence) Touch(_ context.Context, _ domain.RoomID, userID domain.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touched = append(p.touched, userID)
	return nil
}

func (p *mockPresence) Remove(_ context.Context, _ domain.RoomID, userID domain.UserID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, userID)
	return nil
}

func (p *mockPresence) Clear(_ context.Context, roomID domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, roomID)
	return nil
}

type mockWebhook struct {
	mu    sync.Mutex
	calls []webhook.SessionTranscriptPayload
}

func (w *mockWebhook) SendTranscript(_ context.Context, payload webhook.SessionTranscriptPayload) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, payload)
	return nil
}

func (w *mockWebhook) Calls() []webhook.SessionTranscriptPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]webhook.SessionTranscriptPayload(nil), w.calls...)
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultTranscribeLanguage: "en",
		HistoryLimit:              100,
		TranscriptLimit:           50,
		TranscriptTimezone:        "UTC",
	}
}

type fixture struct {
	repo     *mockRepository
	registry *registry.Registry
	presence *mockPresence
	webhook  *mockWebhook
	manager  *Manager
	cfg      *config.Config
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepository(),
		registry: registry.New(),
		presence: &mockPresence{},
		webhook:  &mockWebhook{},
		cfg:      testConfig(),
	}
	f.manager = NewManager(f.cfg, f.repo, f.registry, f.presence, f.webhook)
	return f
}

func ptr[T any](v T) *T { return &v }

var testTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/foxseedlab/multilingo/internal/config"
	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/logging"
	"github.com/foxseedlab/multilingo/internal/presence"
	"github.com/foxseedlab/multilingo/internal/protocol"
	"github.com/foxseedlab/multilingo/internal/registry"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/foxseedlab/multilingo/internal/translator"
	"github.com/foxseedlab/multilingo/internal/webhook"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomClosing  = errors.New("room is closing")
	ErrNotCreator   = errors.New("only the room creator can end the session")
	ErrUserNotFound = errors.New("user not found")
)

const (
	closeReasonSessionEnded = "Session ended by host"

	endReasonByCreator = "ended_by_creator"
	endReasonRoomEmpty = "all_participants_left"

	finalizeTimeout = 30 * time.Second
)

type roomState struct {
	room    repository.Room
	roster  []repository.Participant
	closing bool
	endedBy domain.UserID
}

// roomSnapshot is a lock-free copy of roomState. roster slices are replaced,
// never mutated, so sharing them is safe.
type roomSnapshot struct {
	room   repository.Room
	roster []repository.Participant
}

func (s roomSnapshot) participant(userID domain.UserID) (repository.Participant, bool) {
	return findParticipant(s.roster, userID)
}

// Manager drives the lifecycle of rooms: joins, leaves, ending a session
// and language preferences. It keeps a roster cache per active room that is
// dropped once the room has no connections left.
type Manager struct {
	cfg      *config.Config
	repo     repository.Repository
	registry *registry.Registry
	presence presence.Store
	webhook  webhook.Sender

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomState

	finalizing sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.Repository, reg *registry.Registry, ps presence.Store, wh webhook.Sender) *Manager {
	m := &Manager{
		cfg:      cfg,
		repo:     repo,
		registry: reg,
		presence: ps,
		webhook:  wh,
		rooms:    make(map[domain.RoomID]*roomState),
	}
	reg.OnEvict(m.handleEvicted)
	reg.OnRoomEmpty(m.handleRoomEmpty)
	return m
}

// Join admits conn into the room for userID, announces the user to the
// members already present, then sends the joiner the roster and the history
// in their reading language.
func (m *Manager) Join(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn) error {
	if m.isClosing(roomID) {
		return ErrRoomClosing
	}
	room, err := m.repo.GetRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("get room %s: %w", roomID, err)
	}
	if room == nil {
		return ErrRoomNotFound
	}

	roster, err := m.ensureParticipant(ctx, roomID, userID)
	if err != nil {
		return err
	}
	snap := m.store(*room, roster)
	joiner, ok := snap.participant(userID)
	if !ok {
		return fmt.Errorf("user %d missing from roster of room %s after join", userID, roomID)
	}

	// A reconnecting user's previous connection is about to be superseded.
	previous, _ := m.registry.UserConn(roomID, userID)
	m.broadcast(ctx, roomID, previous, protocol.ParticipantEvent{
		Type:   protocol.TypeParticipantJoined,
		UserID: int64(userID),
		Name:   joiner.Name,
	})
	m.registry.Connect(roomID, conn, userID)
	if err := m.presence.Touch(ctx, roomID, userID); err != nil {
		slog.Warn("failed to record presence", logging.Room(roomID), logging.User(userID), logging.Err(err))
	}

	if err := m.Deliver(ctx, roomID, userID, m.participantsList(ctx, snap)); err != nil {
		slog.Warn("failed to send participants snapshot", logging.Room(roomID), logging.User(userID), logging.Err(err))
		return nil
	}
	m.replayHistory(ctx, roomID, joiner)
	slog.Info("participant joined", logging.Room(roomID), logging.User(userID), logging.Conn(conn.ID()), "translate_to", joiner.TranslateToLanguage)
	return nil
}

func (m *Manager) ensureParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) ([]repository.Participant, error) {
	roster, err := m.repo.GetRoomParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get participants of %s: %w", roomID, err)
	}
	if _, ok := findParticipant(roster, userID); ok {
		return roster, nil
	}

	user, err := m.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	lang := translator.NormalizeLanguage(user.MainLanguage)
	if lang == "" {
		lang = m.cfg.DefaultTranscribeLanguage
	}
	added, err := m.repo.AddParticipant(ctx, repository.AddParticipantInput{
		RoomID:              roomID,
		UserID:              userID,
		MainLanguage:        lang,
		TranslateToLanguage: lang,
	})
	if err != nil {
		return nil, fmt.Errorf("add participant %d to %s: %w", userID, roomID, err)
	}
	if added {
		slog.Info("added user as room participant", logging.Room(roomID), logging.User(userID), logging.Language(lang))
	}

	roster, err = m.repo.GetRoomParticipants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get participants of %s: %w", roomID, err)
	}
	return roster, nil
}

func (m *Manager) replayHistory(ctx context.Context, roomID domain.RoomID, joiner repository.Participant) {
	msgs, err := m.repo.GetRoomMessages(ctx, roomID, m.cfg.HistoryLimit)
	if err != nil {
		slog.Warn("failed to load history", logging.Room(roomID), logging.User(joiner.UserID), logging.Err(err))
		return
	}
	replay := filterHistory(msgs, joiner.TranslateToLanguage)
	for _, msg := range replay {
		if err := m.Deliver(ctx, roomID, joiner.UserID, historyFrame(msg)); err != nil {
			slog.Warn("history replay aborted", logging.Room(roomID), logging.User(joiner.UserID), logging.Err(err))
			return
		}
	}
	slog.Debug("history replayed", logging.Room(roomID), logging.User(joiner.UserID), "messages", len(replay))
}

// filterHistory keeps messages in the reader's language, one per
// utterance, oldest first. msgs must be newest first.
func filterHistory(msgs []repository.Message, language string) []repository.Message {
	seen := make(map[int64]struct{})
	var out []repository.Message
	for _, msg := range msgs {
		if !translator.SameLanguage(msg.TargetLanguage, language) {
			continue
		}
		if msg.TranscriptionID != nil {
			if _, dup := seen[*msg.TranscriptionID]; dup {
				continue
			}
			seen[*msg.TranscriptionID] = struct{}{}
		}
		out = append(out, msg)
	}
	slices.Reverse(out)
	return out
}

func historyFrame(msg repository.Message) protocol.Transcription {
	f := protocol.Transcription{
		Type:             protocol.TypeTranscription,
		MessageID:        msg.ID,
		SpeakerID:        int64(msg.SpeakerID),
		SpeakerName:      msg.SpeakerName,
		OriginalText:     msg.OriginalText,
		OriginalLanguage: msg.OriginalLanguage,
		Text:             msg.Text(),
		Language:         msg.TargetLanguage,
		IsTranslated:     msg.TranslatedText != nil,
		History:          true,
		Timestamp:        msg.Timestamp,
	}
	if msg.TranscriptionID != nil {
		f.TranscriptionID = *msg.TranscriptionID
	}
	return f
}

// Leave is the graceful counterpart of Disconnect.
func (m *Manager) Leave(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn) {
	slog.Info("participant requested leave", logging.Room(roomID), logging.User(userID))
	m.Disconnect(ctx, roomID, userID, conn)
}

// Disconnect removes conn from the room. The rest of the room hears about
// it once, and only when the user has no other live connection.
func (m *Manager) Disconnect(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn) {
	if !m.registry.Disconnect(roomID, conn, userID) {
		return
	}
	m.announceLeft(ctx, roomID, userID)
}

// handleEvicted runs the leave path for a user whose connection was dropped
// after a failed send. The connection's own read loop ends later and finds
// nothing left to remove.
func (m *Manager) handleEvicted(roomID domain.RoomID, userID domain.UserID) {
	slog.Info("participant connection lost", logging.Room(roomID), logging.User(userID))
	m.announceLeft(context.Background(), roomID, userID)
}

func (m *Manager) announceLeft(ctx context.Context, roomID domain.RoomID, userID domain.UserID) {
	if userID == domain.NoUser || m.registry.IsOnline(roomID, userID) {
		return
	}
	name := ""
	if p, ok := m.cachedParticipant(roomID, userID); ok {
		name = p.Name
	}
	if err := m.presence.Remove(ctx, roomID, userID); err != nil {
		slog.Warn("failed to clear presence", logging.Room(roomID), logging.User(userID), logging.Err(err))
	}
	m.broadcast(ctx, roomID, nil, protocol.ParticipantEvent{
		Type:   protocol.TypeParticipantLeft,
		UserID: int64(userID),
		Name:   name,
	})
}

// EndSession closes the room for everyone. Only the room creator may do so;
// anyone else gets an error frame and the room is left untouched.
func (m *Manager) EndSession(ctx context.Context, roomID domain.RoomID, requester domain.UserID) error {
	snap, err := m.snapshot(ctx, roomID)
	if err != nil {
		return err
	}
	if snap.room.CreatedBy != requester {
		slog.Warn("end_session rejected", logging.Room(roomID), logging.User(requester), "creator_id", int64(snap.room.CreatedBy))
		m.sendError(ctx, roomID, requester, protocol.ErrCodeNotCreator, "Only the room creator can end the session")
		return ErrNotCreator
	}

	m.mu.Lock()
	if st, ok := m.rooms[roomID]; ok {
		st.closing = true
		st.endedBy = requester
	}
	m.mu.Unlock()

	m.broadcast(ctx, roomID, nil, protocol.SessionEnded{
		Type:    protocol.TypeSessionEnded,
		RoomID:  string(roomID),
		EndedBy: int64(requester),
		Reason:  closeReasonSessionEnded,
	})
	if closed := m.registry.CloseRoom(roomID, closeReasonSessionEnded); closed == 0 {
		m.handleRoomEmpty(roomID)
	}
	slog.Info("session ended", logging.Room(roomID), logging.User(requester))
	return nil
}

// ChangeLanguage stores new preferences for userID and pushes the refreshed
// roster to the room. Empty values keep what is stored.
func (m *Manager) ChangeLanguage(ctx context.Context, roomID domain.RoomID, userID domain.UserID, mainLanguage, translateTo string) error {
	mainLanguage = translator.NormalizeLanguage(mainLanguage)
	translateTo = translator.NormalizeLanguage(translateTo)
	if mainLanguage != "" || translateTo != "" {
		if err := m.repo.UpdateParticipantLanguages(ctx, repository.UpdateParticipantLanguagesInput{
			RoomID:              roomID,
			UserID:              userID,
			MainLanguage:        mainLanguage,
			TranslateToLanguage: translateTo,
		}); err != nil {
			return fmt.Errorf("update languages of %d in %s: %w", userID, roomID, err)
		}
	}

	snap, err := m.load(ctx, roomID)
	if err != nil {
		return err
	}
	m.broadcast(ctx, roomID, nil, m.participantsList(ctx, snap))
	slog.Info("participant languages changed", logging.Room(roomID), logging.User(userID), "main_language", mainLanguage, "translate_to", translateTo)
	return nil
}

// AnnouncePresence repeats the joined notice for userID to everyone else.
func (m *Manager) AnnouncePresence(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn) {
	name := ""
	if p, ok := m.cachedParticipant(roomID, userID); ok {
		name = p.Name
	}
	m.broadcast(ctx, roomID, conn, protocol.ParticipantEvent{
		Type:   protocol.TypeParticipantJoined,
		UserID: int64(userID),
		Name:   name,
	})
}

func (m *Manager) SpeakingStatus(ctx context.Context, roomID domain.RoomID, userID domain.UserID, conn registry.Conn, speaking bool) {
	name := ""
	if p, ok := m.cachedParticipant(roomID, userID); ok {
		name = p.Name
	}
	m.broadcast(ctx, roomID, conn, protocol.SpeakingStatus{
		Type:       protocol.TypeSpeakingStatus,
		UserID:     int64(userID),
		Name:       name,
		IsSpeaking: speaking,
	})
}

func (m *Manager) Heartbeat(ctx context.Context, roomID domain.RoomID, userID domain.UserID) {
	if err := m.presence.Touch(ctx, roomID, userID); err != nil {
		slog.Debug("presence heartbeat failed", logging.Room(roomID), logging.User(userID), logging.Err(err))
	}
}

// Roster returns the room's participants. The cache is reloaded when a
// connected user is missing from it.
func (m *Manager) Roster(ctx context.Context, roomID domain.RoomID) ([]repository.Participant, error) {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	var roster []repository.Participant
	if ok {
		roster = st.roster
	}
	m.mu.Unlock()

	if ok && !m.missingConnected(roomID, roster) {
		return slices.Clone(roster), nil
	}
	snap, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(snap.roster), nil
}

func (m *Manager) missingConnected(roomID domain.RoomID, roster []repository.Participant) bool {
	for _, uid := range m.registry.Users(roomID) {
		if _, ok := findParticipant(roster, uid); !ok {
			return true
		}
	}
	return false
}

// Deliver sends payload to userID's connection. Offline recipients are not
// an error.
func (m *Manager) Deliver(ctx context.Context, roomID domain.RoomID, userID domain.UserID, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	online, err := m.registry.SendToUser(ctx, roomID, userID, b)
	if err != nil {
		return err
	}
	if !online {
		slog.Debug("recipient offline; message not delivered", logging.Room(roomID), logging.User(userID))
	}
	return nil
}

func (m *Manager) sendError(ctx context.Context, roomID domain.RoomID, userID domain.UserID, code, message string) {
	if err := m.Deliver(ctx, roomID, userID, protocol.NewError(code, message)); err != nil {
		slog.Warn("failed to send error frame", logging.Room(roomID), logging.User(userID), "code", code, logging.Err(err))
	}
}

func (m *Manager) broadcast(ctx context.Context, roomID domain.RoomID, except registry.Conn, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to encode broadcast", logging.Room(roomID), logging.Err(err))
		return
	}
	var res registry.BroadcastResult
	if except != nil {
		res = m.registry.BroadcastExcept(ctx, roomID, except, b)
	} else {
		res = m.registry.Broadcast(ctx, roomID, b)
	}
	if res.Failed > 0 {
		slog.Warn("broadcast dropped broken connections", logging.Room(roomID), "delivered", res.Delivered, "failed", res.Failed)
	}
}

func (m *Manager) participantsList(ctx context.Context, snap roomSnapshot) protocol.ParticipantsList {
	online := m.onlineUsers(ctx, snap.room.RoomID)
	list := protocol.ParticipantsList{
		Type:         protocol.TypeParticipantsList,
		RoomID:       string(snap.room.RoomID),
		CreatorID:    int64(snap.room.CreatedBy),
		Participants: make([]protocol.Participant, 0, len(snap.roster)),
	}
	for _, p := range snap.roster {
		_, isOnline := online[p.UserID]
		list.Participants = append(list.Participants, protocol.Participant{
			UserID:              int64(p.UserID),
			Name:                p.Name,
			MainLanguage:        p.MainLanguage,
			TranslateToLanguage: p.TranslateToLanguage,
			IsCreator:           p.IsCreator,
			Online:              isOnline,
		})
	}
	return list
}

func (m *Manager) onlineUsers(ctx context.Context, roomID domain.RoomID) map[domain.UserID]struct{} {
	online := make(map[domain.UserID]struct{})
	for _, uid := range m.registry.Users(roomID) {
		online[uid] = struct{}{}
	}
	shared, err := m.presence.Online(ctx, roomID)
	if err != nil {
		slog.Warn("failed to read shared presence", logging.Room(roomID), logging.Err(err))
		return online
	}
	for _, uid := range shared {
		online[uid] = struct{}{}
	}
	return online
}

func (m *Manager) isClosing(roomID domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[roomID]
	return ok && st.closing
}

func (m *Manager) cachedParticipant(roomID domain.RoomID, userID domain.UserID) (repository.Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[roomID]
	if !ok {
		return repository.Participant{}, false
	}
	return findParticipant(st.roster, userID)
}

func (m *Manager) snapshot(ctx context.Context, roomID domain.RoomID) (roomSnapshot, error) {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	var snap roomSnapshot
	if ok {
		snap = roomSnapshot{room: st.room, roster: st.roster}
	}
	m.mu.Unlock()
	if ok {
		return snap, nil
	}
	return m.load(ctx, roomID)
}

func (m *Manager) load(ctx context.Context, roomID domain.RoomID) (roomSnapshot, error) {
	room, err := m.repo.GetRoom(ctx, roomID)
	if err != nil {
		return roomSnapshot{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	if room == nil {
		return roomSnapshot{}, ErrRoomNotFound
	}
	roster, err := m.repo.GetRoomParticipants(ctx, roomID)
	if err != nil {
		return roomSnapshot{}, fmt.Errorf("get participants of %s: %w", roomID, err)
	}
	return m.store(*room, roster), nil
}

func (m *Manager) store(room repository.Room, roster []repository.Participant) roomSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.rooms[room.RoomID]
	if !ok {
		st = &roomState{}
		m.rooms[room.RoomID] = st
	}
	st.room = room
	st.roster = roster
	return roomSnapshot{room: room, roster: roster}
}

func (m *Manager) handleRoomEmpty(roomID domain.RoomID) {
	m.mu.Lock()
	st, ok := m.rooms[roomID]
	delete(m.rooms, roomID)
	var ended roomState
	if ok {
		ended = *st
	}
	m.mu.Unlock()

	if err := m.presence.Clear(context.Background(), roomID); err != nil {
		slog.Warn("failed to clear room presence", logging.Room(roomID), logging.Err(err))
	}
	if !ok || m.cfg.SessionWebhookURL == "" {
		return
	}
	m.finalizing.Add(1)
	go func() {
		defer m.finalizing.Done()
		m.finalizeSession(ended, time.Now())
	}()
}

// Shutdown waits for session exports still in flight.
func (m *Manager) Shutdown() {
	m.finalizing.Wait()
}

func (m *Manager) finalizeSession(st roomState, endedAt time.Time) {
	roomID := st.room.RoomID
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	transcriptions, err := m.repo.GetRoomTranscriptions(ctx, roomID, m.cfg.TranscriptLimit)
	if err != nil {
		slog.Error("failed to load transcriptions for session export", logging.Room(roomID), logging.Err(err))
		return
	}
	if len(transcriptions) == 0 {
		slog.Debug("nothing was said; skipping session export", logging.Room(roomID))
		return
	}
	slices.Reverse(transcriptions)

	reason := endReasonRoomEmpty
	var endedBy *domain.UserID
	if st.closing {
		reason = endReasonByCreator
		endedBy = &st.endedBy
	}
	payload := buildSessionTranscriptPayload(st.room, st.roster, reason, endedBy, endedAt, m.cfg.TranscriptTimezone, m.cfg.TranscriptLocation(), transcriptions)
	if err := m.webhook.SendTranscript(ctx, payload); err != nil {
		slog.Error("failed to send session transcript webhook", logging.Room(roomID), logging.Err(err))
		return
	}
	slog.Info("session transcript exported", logging.Room(roomID), "transcriptions", len(transcriptions), "reason", reason)
}

func findParticipant(roster []repository.Participant, userID domain.UserID) (repository.Participant, bool) {
	for _, p := range roster {
		if p.UserID == userID {
			return p, true
		}
	}
	return repository.Participant{}, false
}

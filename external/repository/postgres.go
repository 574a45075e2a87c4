package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/multilingo/internal/domain"
	"github.com/foxseedlab/multilingo/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Shutdown() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) GetRoom(ctx context.Context, roomID domain.RoomID) (*repository.Room, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, room_id, name, COALESCE(description, ''), created_by, created_at
		 FROM rooms WHERE room_id = $1`,
		string(roomID))
	var room repository.Room
	var externalID string
	var createdBy int64
	err := row.Scan(&room.ID, &externalID, &room.Name, &room.Description, &createdBy, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.RoomID = domain.RoomID(externalID)
	room.CreatedBy = domain.UserID(createdBy)
	return &room, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, userID domain.UserID) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, email, COALESCE(profession, ''), main_language, created_at
		 FROM users WHERE id = $1`,
		int64(userID))
	var u repository.User
	var id int64
	err := row.Scan(&id, &u.Name, &u.Email, &u.Profession, &u.MainLanguage, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.ID = domain.UserID(id)
	return &u, nil
}

func (r *PostgresRepository) GetRoomParticipants(ctx context.Context, roomID domain.RoomID) ([]repository.Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.name,
		        COALESCE(NULLIF(rp.preferred_language, ''), u.main_language),
		        COALESCE(NULLIF(rp.translate_to_language, ''), NULLIF(rp.preferred_language, ''), u.main_language),
		        u.id = r.created_by,
		        rp.joined_at
		 FROM room_participants rp
		 JOIN rooms r ON r.id = rp.room_id
		 JOIN users u ON u.id = rp.user_id
		 WHERE r.room_id = $1
		 ORDER BY rp.joined_at ASC, u.id ASC`,
		string(roomID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Participant
	for rows.Next() {
		var p repository.Participant
		var id int64
		if err := rows.Scan(&id, &p.Name, &p.MainLanguage, &p.TranslateToLanguage, &p.IsCreator, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.UserID = domain.UserID(id)
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) AddParticipant(ctx context.Context, input repository.AddParticipantInput) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO room_participants (room_id, user_id, preferred_language, translate_to_language)
		 SELECT r.id, $2, $3, $4 FROM rooms r WHERE r.room_id = $1
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		string(input.RoomID), int64(input.UserID), input.MainLanguage, input.TranslateToLanguage)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) UpdateParticipantLanguages(ctx context.Context, input repository.UpdateParticipantLanguagesInput) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE room_participants rp
		 SET preferred_language = COALESCE(NULLIF($3, ''), rp.preferred_language),
		     translate_to_language = COALESCE(NULLIF($4, ''), rp.translate_to_language)
		 FROM rooms r
		 WHERE r.id = rp.room_id AND r.room_id = $1 AND rp.user_id = $2`,
		string(input.RoomID), int64(input.UserID), input.MainLanguage, input.TranslateToLanguage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %d in room %s: %w", input.UserID, input.RoomID, repository.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepository) CreateTranscription(ctx context.Context, input repository.CreateTranscriptionInput) (*repository.Transcription, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO transcriptions (room_id, user_id, original_text, detected_language, confidence_score, audio_duration_ms, timestamp)
		 SELECT r.id, $2, $3, $4, $5, $6, $7 FROM rooms r WHERE r.room_id = $1
		 RETURNING id, timestamp`,
		string(input.RoomID), int64(input.UserID), input.OriginalText, input.DetectedLanguage,
		input.ConfidenceScore, input.AudioDurationMs, input.Timestamp)
	t := repository.Transcription{
		RoomID:           input.RoomID,
		UserID:           input.UserID,
		OriginalText:     input.OriginalText,
		DetectedLanguage: input.DetectedLanguage,
		ConfidenceScore:  input.ConfidenceScore,
		AudioDurationMs:  input.AudioDurationMs,
	}
	if err := row.Scan(&t.ID, &t.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", input.RoomID, repository.ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) AddTranslation(ctx context.Context, input repository.AddTranslationInput) (*repository.Translation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO translations (transcription_id, target_language, translated_text, translation_service)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		input.TranscriptionID, input.TargetLanguage, input.TranslatedText, input.TranslationService)
	t := repository.Translation{
		TranscriptionID:    input.TranscriptionID,
		TargetLanguage:     input.TargetLanguage,
		TranslatedText:     input.TranslatedText,
		TranslationService: input.TranslationService,
	}
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) GetRoomTranscriptions(ctx context.Context, roomID domain.RoomID, limit int) ([]repository.Transcription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT t.id, t.user_id, u.name, t.original_text, t.detected_language,
		        t.confidence_score, t.audio_duration_ms, t.timestamp
		 FROM transcriptions t
		 JOIN rooms r ON r.id = t.room_id
		 JOIN users u ON u.id = t.user_id
		 WHERE r.room_id = $1
		 ORDER BY t.timestamp DESC, t.id DESC
		 LIMIT $2`,
		string(roomID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Transcription
	for rows.Next() {
		t := repository.Transcription{RoomID: roomID}
		var userID int64
		if err := rows.Scan(&t.ID, &userID, &t.SpeakerName, &t.OriginalText, &t.DetectedLanguage,
			&t.ConfidenceScore, &t.AudioDurationMs, &t.Timestamp); err != nil {
			return nil, err
		}
		t.UserID = domain.UserID(userID)
		list = append(list, t)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, input repository.CreateMessageInput) (*repository.Message, error) {
	messageType := input.MessageType
	if messageType == "" {
		messageType = repository.MessageTypeTranscription
	}
	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO messages (room_id, transcription_id, speaker_id, recipient_id, speaker_name,
		                       original_text, original_language, translated_text, target_language,
		                       message_type, timestamp)
		 SELECT r.id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11 FROM rooms r WHERE r.room_id = $1
		 RETURNING id`,
		string(input.RoomID), input.TranscriptionID, int64(input.SpeakerID), int64(input.RecipientID),
		input.SpeakerName, input.OriginalText, input.OriginalLanguage, input.TranslatedText,
		input.TargetLanguage, messageType, timestamp)
	m := repository.Message{
		RoomID:           input.RoomID,
		TranscriptionID:  input.TranscriptionID,
		SpeakerID:        input.SpeakerID,
		RecipientID:      input.RecipientID,
		SpeakerName:      input.SpeakerName,
		OriginalText:     input.OriginalText,
		OriginalLanguage: input.OriginalLanguage,
		TranslatedText:   input.TranslatedText,
		TargetLanguage:   input.TargetLanguage,
		MessageType:      messageType,
		Timestamp:        timestamp,
	}
	if err := row.Scan(&m.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", input.RoomID, repository.ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}

func (r *PostgresRepository) GetRoomMessages(ctx context.Context, roomID domain.RoomID, limit int) ([]repository.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.transcription_id, m.speaker_id, m.recipient_id, m.speaker_name,
		        m.original_text, m.original_language, m.translated_text, m.target_language,
		        m.message_type, m.timestamp
		 FROM messages m
		 JOIN rooms r ON r.id = m.room_id
		 WHERE r.room_id = $1
		 ORDER BY m.timestamp DESC, m.id DESC
		 LIMIT $2`,
		string(roomID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Message
	for rows.Next() {
		m := repository.Message{RoomID: roomID}
		var speakerID, recipientID int64
		if err := rows.Scan(&m.ID, &m.TranscriptionID, &speakerID, &recipientID, &m.SpeakerName,
			&m.OriginalText, &m.OriginalLanguage, &m.TranslatedText, &m.TargetLanguage,
			&m.MessageType, &m.Timestamp); err != nil {
			return nil, err
		}
		m.SpeakerID = domain.UserID(speakerID)
		m.RecipientID = domain.UserID(recipientID)
		list = append(list, m)
	}
	return list, rows.Err()
}

package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaydesk/relaydesk/db"
)

// ChannelFilterColumns is the allow-list for the channels endpoint.
var ChannelFilterColumns = map[string]string{
	"id":   "ch.external_uuid",
	"name": "ch.name",
	"type": "ch.type",
}

const channelSelect = `
	SELECT ch.id, ch.external_uuid, ch.name, ch.type, ch.config
	FROM channel ch
	WHERE NOT ch.deleted AND `

// ChannelService implements the channel repository. The channel type must
// exist in the available_channel_type catalog; the config blob is stored
// verbatim. Soft-deleted channels are excluded from every read.
type ChannelService struct {
	PG       *sql.DB
	Resolver *Resolver
}

func NewChannelService(pg *sql.DB, resolver *Resolver) *ChannelService {
	return &ChannelService{PG: pg, Resolver: resolver}
}

// List returns one page of channels matching the translated filter fragment.
func (s *ChannelService) List(where string, args []interface{}, limit, offset int) ([]db.Channel, error) {
	query := fmt.Sprintf("%s(%s) ORDER BY ch.id LIMIT $%d OFFSET $%d",
		channelSelect, where, len(args)+1, len(args)+2)
	rows, err := s.PG.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []db.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// Get returns the channel addressed by its external UUID.
func (s *ChannelService) Get(externalUUID string) (db.Channel, error) {
	rows, err := s.PG.Query(channelSelect+"ch.external_uuid = $1", externalUUID)
	if err != nil {
		return db.Channel{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return db.Channel{}, err
		}
		return db.Channel{}, ErrNotFound
	}
	return scanChannel(rows)
}

// Create inserts a new channel.
func (s *ChannelService) Create(req db.ChannelRequest) (db.Channel, error) {
	if err := validateChannel(req); err != nil {
		return db.Channel{}, err
	}

	var id int64
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRow(channelExistsQuery, *req.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return unprocessablef("channel %q already exists", *req.ID)
		}
		var err error
		id, err = s.insertChannel(tx, req)
		return err
	})
	if err != nil {
		return db.Channel{}, mapConstraintError(err, "channel")
	}
	return db.Channel{ID: id, UUID: *req.ID, Name: *req.Name, Type: *req.Type, Config: req.Config}, nil
}

// Upsert implements PUT semantics; see ContactService.Upsert.
func (s *ChannelService) Upsert(identifier string, req db.ChannelRequest) (bool, error) {
	if req.ID == nil {
		req.ID = &identifier
	}
	if *req.ID != identifier {
		return false, validationf("identifier mismatch: payload id %q does not match URL identifier %q", *req.ID, identifier)
	}
	if err := validateChannel(req); err != nil {
		return false, err
	}

	created := false
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var channelID int64
		err := tx.QueryRow(channelIDQuery, identifier).Scan(&channelID)
		if err == sql.ErrNoRows {
			created = true
			_, err := s.insertChannel(tx, req)
			return err
		}
		if err != nil {
			return err
		}
		return s.updateChannel(tx, channelID, req)
	})
	if err != nil {
		return false, mapConstraintError(err, "channel")
	}
	return created, nil
}

// Replace implements POST-with-identifier semantics; see
// ContactService.Replace.
func (s *ChannelService) Replace(identifier string, req db.ChannelRequest) (bool, error) {
	if err := validateChannel(req); err != nil {
		return false, err
	}
	moved := *req.ID != identifier

	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var channelID int64
		err := tx.QueryRow(channelIDQuery, identifier).Scan(&channelID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if moved {
			var taken bool
			if err := tx.QueryRow(channelExistsQuery, *req.ID).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return unprocessablef("channel %q already exists", *req.ID)
			}
			if _, err := tx.Exec("UPDATE channel SET external_uuid = $2 WHERE id = $1", channelID, *req.ID); err != nil {
				return err
			}
		}
		return s.updateChannel(tx, channelID, req)
	})
	if err != nil {
		return false, mapConstraintError(err, "channel")
	}
	if moved {
		s.Resolver.Forget(tableChannel, identifier)
	}
	return moved, nil
}

// Delete hard-deletes the channel. A channel still referenced as some
// contact's default channel cannot be removed; the foreign key violation is
// reported as a business-rule error rather than leaking SQL detail.
func (s *ChannelService) Delete(externalUUID string) error {
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var channelID int64
		err := tx.QueryRow(channelIDQuery, externalUUID).Scan(&channelID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec("DELETE FROM channel WHERE id = $1", channelID)
		return err
	})
	if err != nil {
		return mapConstraintError(err, "channel")
	}
	s.Resolver.Forget(tableChannel, externalUUID)
	return nil
}

// ListTypes returns one page of the available channel type catalog.
func (s *ChannelService) ListTypes(limit, offset int) ([]db.ChannelType, error) {
	rows, err := s.PG.Query(`
		SELECT type, name, version, author, config_attrs
		FROM available_channel_type
		ORDER BY type
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := []db.ChannelType{}
	for rows.Next() {
		var t db.ChannelType
		var attrs []byte
		if err := rows.Scan(&t.Type, &t.Name, &t.Version, &t.Author, &attrs); err != nil {
			return nil, err
		}
		t.ConfigAttrs = json.RawMessage(attrs)
		types = append(types, t)
	}
	return types, rows.Err()
}

const (
	channelIDQuery     = "SELECT id FROM channel WHERE external_uuid = $1 AND NOT deleted"
	channelExistsQuery = "SELECT EXISTS (SELECT 1 FROM channel WHERE external_uuid = $1 AND NOT deleted)"
)

func (s *ChannelService) insertChannel(tx *sql.Tx, req db.ChannelRequest) (int64, error) {
	if err := s.checkType(tx, *req.Type); err != nil {
		return 0, err
	}
	var channelID int64
	err := tx.QueryRow(`
		INSERT INTO channel (external_uuid, name, type, config)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, *req.ID, *req.Name, *req.Type, configValue(req.Config)).Scan(&channelID)
	return channelID, err
}

func (s *ChannelService) updateChannel(tx *sql.Tx, channelID int64, req db.ChannelRequest) error {
	if err := s.checkType(tx, *req.Type); err != nil {
		return err
	}
	_, err := tx.Exec(`
		UPDATE channel
		SET name = $2, type = $3, config = $4, changed_at = NOW()
		WHERE id = $1
	`, channelID, *req.Name, *req.Type, configValue(req.Config))
	return err
}

func (s *ChannelService) checkType(tx *sql.Tx, channelType string) error {
	var known bool
	err := tx.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM available_channel_type WHERE type = $1)
	`, channelType).Scan(&known)
	if err != nil {
		return err
	}
	if !known {
		return unprocessablef("channel type %q does not exist", channelType)
	}
	return nil
}

func scanChannel(rows *sql.Rows) (db.Channel, error) {
	var ch db.Channel
	var config []byte
	if err := rows.Scan(&ch.ID, &ch.UUID, &ch.Name, &ch.Type, &config); err != nil {
		return db.Channel{}, err
	}
	if len(config) > 0 {
		ch.Config = json.RawMessage(config)
	}
	return ch, nil
}

// configValue passes the config blob through, storing NULL for an absent or
// JSON null config.
func configValue(config json.RawMessage) interface{} {
	trimmed := bytes.TrimSpace(config)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return []byte(config)
}

func validateChannel(req db.ChannelRequest) error {
	var bad []string
	if req.ID == nil || !isUUID(*req.ID) {
		bad = append(bad, "id")
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		bad = append(bad, "name")
	}
	if req.Type == nil || strings.TrimSpace(*req.Type) == "" {
		bad = append(bad, "type")
	}
	if trimmed := bytes.TrimSpace(req.Config); len(trimmed) > 0 &&
		!bytes.Equal(trimmed, []byte("null")) && trimmed[0] != '{' {
		bad = append(bad, "config")
	}
	if len(bad) > 0 {
		return validationf("missing or invalid fields: %s", strings.Join(bad, ", "))
	}
	return nil
}

package services

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/relaydesk/relaydesk/db"
)

// ContactFilterColumns is the allow-list of filterable logical columns for
// the contacts endpoint, mapped to their physical columns. The logical "id"
// is always the external UUID, never the surrogate key.
var ContactFilterColumns = map[string]string{
	"id":        "c.external_uuid",
	"full_name": "c.full_name",
	"username":  "c.username",
}

const contactSelect = `
	SELECT c.id, c.external_uuid, c.full_name, COALESCE(c.username, ''), ch.external_uuid
	FROM contact c
	JOIN channel ch ON ch.id = c.default_channel_id
	WHERE NOT c.deleted AND `

// ContactService implements the contact repository: upsert-by-identifier,
// full replacement of dependent address and membership rows, hard delete.
// Soft-deleted rows are excluded from every read this repository performs.
type ContactService struct {
	PG       *sql.DB
	Resolver *Resolver
}

func NewContactService(pg *sql.DB, resolver *Resolver) *ContactService {
	return &ContactService{PG: pg, Resolver: resolver}
}

// List returns one page of contacts matching the translated filter fragment.
// where and args come straight from filter.ToSQL; group UUIDs and the address
// map are resolved per row.
func (s *ContactService) List(where string, args []interface{}, limit, offset int) ([]db.Contact, error) {
	query := fmt.Sprintf("%s(%s) ORDER BY c.id LIMIT $%d OFFSET $%d",
		contactSelect, where, len(args)+1, len(args)+2)
	rows, err := s.PG.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []db.Contact{}
	for rows.Next() {
		var c db.Contact
		if err := rows.Scan(&c.ID, &c.UUID, &c.FullName, &c.Username, &c.DefaultChannel); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range contacts {
		if err := s.attachDependents(s.PG, &contacts[i]); err != nil {
			return nil, err
		}
	}
	return contacts, nil
}

// Get returns the contact addressed by its external UUID.
func (s *ContactService) Get(externalUUID string) (db.Contact, error) {
	var c db.Contact
	err := s.PG.QueryRow(contactSelect+"c.external_uuid = $1", externalUUID).
		Scan(&c.ID, &c.UUID, &c.FullName, &c.Username, &c.DefaultChannel)
	if err == sql.ErrNoRows {
		return db.Contact{}, ErrNotFound
	}
	if err != nil {
		return db.Contact{}, err
	}
	if err := s.attachDependents(s.PG, &c); err != nil {
		return db.Contact{}, err
	}
	return c, nil
}

// Create inserts a new contact together with its addresses and group
// memberships in one transaction. The payload identifier must not resolve to
// an existing contact.
func (s *ContactService) Create(req db.ContactRequest) (db.Contact, error) {
	if err := validateContact(req); err != nil {
		return db.Contact{}, err
	}

	var id int64
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRow(contactExistsQuery, *req.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return unprocessablef("contact %q already exists", *req.ID)
		}
		var err error
		id, err = s.insertContact(tx, req)
		return err
	})
	if err != nil {
		return db.Contact{}, mapConstraintError(err, "contact")
	}
	return contactFromRequest(id, req), nil
}

// Upsert implements PUT semantics: create the contact if the identifier is
// free, fully replace it otherwise. The payload id must match the URL
// identifier; a mismatch is rejected before the database is touched.
func (s *ContactService) Upsert(identifier string, req db.ContactRequest) (bool, error) {
	if req.ID == nil {
		req.ID = &identifier
	}
	if *req.ID != identifier {
		return false, validationf("identifier mismatch: payload id %q does not match URL identifier %q", *req.ID, identifier)
	}
	if err := validateContact(req); err != nil {
		return false, err
	}

	created := false
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var contactID int64
		err := tx.QueryRow(contactIDQuery, identifier).Scan(&contactID)
		if err == sql.ErrNoRows {
			created = true
			_, err := s.insertContact(tx, req)
			return err
		}
		if err != nil {
			return err
		}
		return s.replaceContact(tx, contactID, req)
	})
	if err != nil {
		return false, mapConstraintError(err, "contact")
	}
	return created, nil
}

// Replace implements POST-with-identifier semantics: the addressed contact
// must exist and is fully replaced by the payload. A payload id differing
// from the URL identifier moves the contact to that identifier, which must
// still be free. Returns whether the identifier changed.
func (s *ContactService) Replace(identifier string, req db.ContactRequest) (bool, error) {
	if err := validateContact(req); err != nil {
		return false, err
	}
	moved := *req.ID != identifier

	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var contactID int64
		err := tx.QueryRow(contactIDQuery, identifier).Scan(&contactID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if moved {
			var taken bool
			if err := tx.QueryRow(contactExistsQuery, *req.ID).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return unprocessablef("contact %q already exists", *req.ID)
			}
			if _, err := tx.Exec("UPDATE contact SET external_uuid = $2 WHERE id = $1", contactID, *req.ID); err != nil {
				return err
			}
		}
		return s.replaceContact(tx, contactID, req)
	})
	if err != nil {
		return false, mapConstraintError(err, "contact")
	}
	if moved {
		s.Resolver.Forget(tableContact, identifier)
	}
	return moved, nil
}

// Delete hard-deletes the contact and all its dependent rows in one
// transaction.
func (s *ContactService) Delete(externalUUID string) error {
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var contactID int64
		err := tx.QueryRow(contactIDQuery, externalUUID).Scan(&contactID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM contactgroup_member WHERE contact_id = $1", contactID); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM contact_address WHERE contact_id = $1", contactID); err != nil {
			return err
		}
		_, err = tx.Exec("DELETE FROM contact WHERE id = $1", contactID)
		return err
	})
	if err != nil {
		return mapConstraintError(err, "contact")
	}
	s.Resolver.Forget(tableContact, externalUUID)
	return nil
}

const (
	contactIDQuery     = "SELECT id FROM contact WHERE external_uuid = $1 AND NOT deleted"
	contactExistsQuery = "SELECT EXISTS (SELECT 1 FROM contact WHERE external_uuid = $1 AND NOT deleted)"
)

// insertContact writes the owning row plus all dependent rows. Runs inside
// the caller's transaction.
func (s *ContactService) insertContact(tx *sql.Tx, req db.ContactRequest) (int64, error) {
	username := requestUsername(req)
	if err := s.checkUsername(tx, username, 0); err != nil {
		return 0, err
	}

	channelID, err := s.resolveChannel(tx, *req.DefaultChannel)
	if err != nil {
		return 0, err
	}

	var contactID int64
	err = tx.QueryRow(`
		INSERT INTO contact (external_uuid, full_name, username, default_channel_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, *req.ID, *req.FullName, nullIfEmpty(username), channelID).Scan(&contactID)
	if err != nil {
		return 0, err
	}

	return contactID, s.insertDependents(tx, contactID, req)
}

// replaceContact updates the scalar columns and fully replaces the dependent
// rows: delete-all-then-insert-new, never a diff-and-patch.
func (s *ContactService) replaceContact(tx *sql.Tx, contactID int64, req db.ContactRequest) error {
	username := requestUsername(req)
	if err := s.checkUsername(tx, username, contactID); err != nil {
		return err
	}

	channelID, err := s.resolveChannel(tx, *req.DefaultChannel)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		UPDATE contact
		SET full_name = $2, username = $3, default_channel_id = $4, changed_at = NOW()
		WHERE id = $1
	`, contactID, *req.FullName, nullIfEmpty(username), channelID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM contact_address WHERE contact_id = $1", contactID); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM contactgroup_member WHERE contact_id = $1", contactID); err != nil {
		return err
	}
	return s.insertDependents(tx, contactID, req)
}

func (s *ContactService) insertDependents(tx *sql.Tx, contactID int64, req db.ContactRequest) error {
	for _, addrType := range sortedKeys(req.Addresses) {
		_, err := tx.Exec(`
			INSERT INTO contact_address (contact_id, type, address)
			VALUES ($1, $2, $3)
		`, contactID, addrType, req.Addresses[addrType])
		if err != nil {
			return err
		}
	}

	for _, groupUUID := range req.Groups {
		groupID, err := s.Resolver.ID(tx, tableContactgroup, groupUUID)
		if errors.Is(err, ErrNotFound) {
			return unprocessablef("contact group %q does not exist", groupUUID)
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			INSERT INTO contactgroup_member (contactgroup_id, contact_id)
			VALUES ($1, $2)
		`, groupID, contactID)
		if err != nil {
			return err
		}
	}
	return nil
}

// checkUsername enforces the global username uniqueness rule, excluding the
// contact's own row on updates. Reported as a conflict, distinct from
// identifier conflicts.
func (s *ContactService) checkUsername(tx *sql.Tx, username string, selfID int64) error {
	if username == "" {
		return nil
	}
	var taken bool
	err := tx.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM contact WHERE username = $1 AND NOT deleted AND id != $2)
	`, username, selfID).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return conflictf("username already exists")
	}
	return nil
}

func (s *ContactService) resolveChannel(tx *sql.Tx, channelUUID string) (int64, error) {
	channelID, err := s.Resolver.ID(tx, tableChannel, channelUUID)
	if errors.Is(err, ErrNotFound) {
		return 0, unprocessablef("channel %q does not exist", channelUUID)
	}
	return channelID, err
}

func (s *ContactService) attachDependents(q runner, c *db.Contact) error {
	c.Groups = []string{}
	rows, err := q.Query(`
		SELECT g.external_uuid
		FROM contactgroup_member m
		JOIN contactgroup g ON g.id = m.contactgroup_id
		WHERE m.contact_id = $1 AND NOT g.deleted
		ORDER BY g.external_uuid
	`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var groupUUID string
		if err := rows.Scan(&groupUUID); err != nil {
			return err
		}
		c.Groups = append(c.Groups, groupUUID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	c.Addresses = map[string]string{}
	addrRows, err := q.Query(`
		SELECT type, address FROM contact_address WHERE contact_id = $1 ORDER BY type
	`, c.ID)
	if err != nil {
		return err
	}
	defer addrRows.Close()
	for addrRows.Next() {
		var addrType, address string
		if err := addrRows.Scan(&addrType, &address); err != nil {
			return err
		}
		c.Addresses[addrType] = address
	}
	return addrRows.Err()
}

// validateContact checks field presence and well-formedness eagerly, before
// any database work, and reports the complete problem set in one message.
func validateContact(req db.ContactRequest) error {
	var bad []string
	if req.ID == nil || !isUUID(*req.ID) {
		bad = append(bad, "id")
	}
	if req.FullName == nil || strings.TrimSpace(*req.FullName) == "" {
		bad = append(bad, "full_name")
	}
	if req.DefaultChannel == nil || !isUUID(*req.DefaultChannel) {
		bad = append(bad, "default_channel")
	}
	for _, groupUUID := range req.Groups {
		if !isUUID(groupUUID) {
			bad = append(bad, "groups")
			break
		}
	}
	for addrType := range req.Addresses {
		if strings.TrimSpace(addrType) == "" {
			bad = append(bad, "addresses")
			break
		}
	}
	if len(bad) > 0 {
		return validationf("missing or invalid fields: %s", strings.Join(bad, ", "))
	}
	return nil
}

func requestUsername(req db.ContactRequest) string {
	if req.Username == nil {
		return ""
	}
	return strings.TrimSpace(*req.Username)
}

func contactFromRequest(id int64, req db.ContactRequest) db.Contact {
	c := db.Contact{
		ID:             id,
		UUID:           *req.ID,
		FullName:       *req.FullName,
		Username:       requestUsername(req),
		DefaultChannel: *req.DefaultChannel,
		Groups:         req.Groups,
		Addresses:      req.Addresses,
	}
	if c.Groups == nil {
		c.Groups = []string{}
	}
	if c.Addresses == nil {
		c.Addresses = map[string]string{}
	}
	return c
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/relaydesk/relaydesk/db"
)

// ContactgroupFilterColumns is the allow-list for the contact-groups
// endpoint.
var ContactgroupFilterColumns = map[string]string{
	"id":   "g.external_uuid",
	"name": "g.name",
}

const contactgroupSelect = `
	SELECT g.id, g.external_uuid, g.name
	FROM contactgroup g
	WHERE NOT g.deleted AND `

// ContactgroupService implements the contact group repository. Membership
// rows are fully replaced on every update, inside the same transaction as
// the owning row. Soft-deleted groups are excluded from every read.
type ContactgroupService struct {
	PG       *sql.DB
	Resolver *Resolver
}

func NewContactgroupService(pg *sql.DB, resolver *Resolver) *ContactgroupService {
	return &ContactgroupService{PG: pg, Resolver: resolver}
}

// List returns one page of groups matching the translated filter fragment,
// with member contact UUIDs resolved per row.
func (s *ContactgroupService) List(where string, args []interface{}, limit, offset int) ([]db.Contactgroup, error) {
	query := fmt.Sprintf("%s(%s) ORDER BY g.id LIMIT $%d OFFSET $%d",
		contactgroupSelect, where, len(args)+1, len(args)+2)
	rows, err := s.PG.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []db.Contactgroup{}
	for rows.Next() {
		var g db.Contactgroup
		if err := rows.Scan(&g.ID, &g.UUID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		if err := s.attachMembers(s.PG, &groups[i]); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// Get returns the group addressed by its external UUID.
func (s *ContactgroupService) Get(externalUUID string) (db.Contactgroup, error) {
	var g db.Contactgroup
	err := s.PG.QueryRow(contactgroupSelect+"g.external_uuid = $1", externalUUID).
		Scan(&g.ID, &g.UUID, &g.Name)
	if err == sql.ErrNoRows {
		return db.Contactgroup{}, ErrNotFound
	}
	if err != nil {
		return db.Contactgroup{}, err
	}
	if err := s.attachMembers(s.PG, &g); err != nil {
		return db.Contactgroup{}, err
	}
	return g, nil
}

// Create inserts a new group and its membership rows in one transaction.
func (s *ContactgroupService) Create(req db.ContactgroupRequest) (db.Contactgroup, error) {
	if err := validateContactgroup(req); err != nil {
		return db.Contactgroup{}, err
	}

	var id int64
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRow(contactgroupExistsQuery, *req.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return unprocessablef("contact group %q already exists", *req.ID)
		}
		var err error
		id, err = s.insertGroup(tx, req)
		return err
	})
	if err != nil {
		return db.Contactgroup{}, mapConstraintError(err, "contact group")
	}

	g := db.Contactgroup{ID: id, UUID: *req.ID, Name: *req.Name, Users: req.Users}
	if g.Users == nil {
		g.Users = []string{}
	}
	return g, nil
}

// Upsert implements PUT semantics; see ContactService.Upsert.
func (s *ContactgroupService) Upsert(identifier string, req db.ContactgroupRequest) (bool, error) {
	if req.ID == nil {
		req.ID = &identifier
	}
	if *req.ID != identifier {
		return false, validationf("identifier mismatch: payload id %q does not match URL identifier %q", *req.ID, identifier)
	}
	if err := validateContactgroup(req); err != nil {
		return false, err
	}

	created := false
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var groupID int64
		err := tx.QueryRow(contactgroupIDQuery, identifier).Scan(&groupID)
		if err == sql.ErrNoRows {
			created = true
			_, err := s.insertGroup(tx, req)
			return err
		}
		if err != nil {
			return err
		}
		return s.replaceGroup(tx, groupID, req)
	})
	if err != nil {
		return false, mapConstraintError(err, "contact group")
	}
	return created, nil
}

// Replace implements POST-with-identifier semantics; see
// ContactService.Replace.
func (s *ContactgroupService) Replace(identifier string, req db.ContactgroupRequest) (bool, error) {
	if err := validateContactgroup(req); err != nil {
		return false, err
	}
	moved := *req.ID != identifier

	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var groupID int64
		err := tx.QueryRow(contactgroupIDQuery, identifier).Scan(&groupID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if moved {
			var taken bool
			if err := tx.QueryRow(contactgroupExistsQuery, *req.ID).Scan(&taken); err != nil {
				return err
			}
			if taken {
				return unprocessablef("contact group %q already exists", *req.ID)
			}
			if _, err := tx.Exec("UPDATE contactgroup SET external_uuid = $2 WHERE id = $1", groupID, *req.ID); err != nil {
				return err
			}
		}
		return s.replaceGroup(tx, groupID, req)
	})
	if err != nil {
		return false, mapConstraintError(err, "contact group")
	}
	if moved {
		s.Resolver.Forget(tableContactgroup, identifier)
	}
	return moved, nil
}

// Delete hard-deletes the group and its membership rows in one transaction.
func (s *ContactgroupService) Delete(externalUUID string) error {
	err := withSerializable(s.PG, func(tx *sql.Tx) error {
		var groupID int64
		err := tx.QueryRow(contactgroupIDQuery, externalUUID).Scan(&groupID)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM contactgroup_member WHERE contactgroup_id = $1", groupID); err != nil {
			return err
		}
		_, err = tx.Exec("DELETE FROM contactgroup WHERE id = $1", groupID)
		return err
	})
	if err != nil {
		return mapConstraintError(err, "contact group")
	}
	s.Resolver.Forget(tableContactgroup, externalUUID)
	return nil
}

const (
	contactgroupIDQuery     = "SELECT id FROM contactgroup WHERE external_uuid = $1 AND NOT deleted"
	contactgroupExistsQuery = "SELECT EXISTS (SELECT 1 FROM contactgroup WHERE external_uuid = $1 AND NOT deleted)"
)

func (s *ContactgroupService) insertGroup(tx *sql.Tx, req db.ContactgroupRequest) (int64, error) {
	var groupID int64
	err := tx.QueryRow(`
		INSERT INTO contactgroup (external_uuid, name)
		VALUES ($1, $2)
		RETURNING id
	`, *req.ID, *req.Name).Scan(&groupID)
	if err != nil {
		return 0, err
	}
	return groupID, s.insertMembers(tx, groupID, req.Users)
}

func (s *ContactgroupService) replaceGroup(tx *sql.Tx, groupID int64, req db.ContactgroupRequest) error {
	_, err := tx.Exec(`
		UPDATE contactgroup SET name = $2, changed_at = NOW() WHERE id = $1
	`, groupID, *req.Name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM contactgroup_member WHERE contactgroup_id = $1", groupID); err != nil {
		return err
	}
	return s.insertMembers(tx, groupID, req.Users)
}

func (s *ContactgroupService) insertMembers(tx *sql.Tx, groupID int64, users []string) error {
	for _, contactUUID := range users {
		contactID, err := s.Resolver.ID(tx, tableContact, contactUUID)
		if errors.Is(err, ErrNotFound) {
			return unprocessablef("contact %q does not exist", contactUUID)
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

func (s *ContactgroupService) attachMembers(q runner, g *db.Contactgroup) error {
	g.Users = []string{}
	rows, err := q.Query(`
		SELECT c.external_uuid
		FROM contactgroup_member m
		JOIN contact c ON c.id = m.contact_id
		WHERE m.contactgroup_id = $1 AND NOT c.deleted
		ORDER BY c.external_uuid
	`, g.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var contactUUID string
		if err := rows.Scan(&contactUUID); err != nil {
			return err
		}
		g.Users = append(g.Users, contactUUID)
	}
	return rows.Err()
}

func validateContactgroup(req db.ContactgroupRequest) error {
	var bad []string
	if req.ID == nil || !isUUID(*req.ID) {
		bad = append(bad, "id")
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		bad = append(bad, "name")
	}
	for _, contactUUID := range req.Users {
		if !isUUID(contactUUID) {
			bad = append(bad, "users")
			break
		}
	}
	if len(bad) > 0 {
		return validationf("missing or invalid fields: %s", strings.Join(bad, ", "))
	}
	return nil
}

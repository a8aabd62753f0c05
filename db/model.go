package db

import "encoding/json"

// ===========================
// NOTIFICATION CONFIG MODELS
// ===========================

// Contact represents a person that can be notified.
// The surrogate key never leaves the API; callers only ever see the UUID.
type Contact struct {
	ID             int64             `json:"-"`
	UUID           string            `json:"id"`
	FullName       string            `json:"full_name"`
	Username       string            `json:"username,omitempty"`
	DefaultChannel string            `json:"default_channel"` // channel UUID
	Groups         []string          `json:"groups"`          // contactgroup UUIDs
	Addresses      map[string]string `json:"addresses"`       // channel type -> address
}

// Contactgroup represents a named set of contacts.
type Contactgroup struct {
	ID    int64    `json:"-"`
	UUID  string   `json:"id"`
	Name  string   `json:"name"`
	Users []string `json:"users"` // contact UUIDs
}

// Channel represents a configured notification channel (email, webhook, ...).
// Config is an opaque, type-specific JSON blob; the API stores it verbatim.
type Channel struct {
	ID     int64           `json:"-"`
	UUID   string          `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ChannelType is one entry of the available channel type catalog.
type ChannelType struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Version     string          `json:"version,omitempty"`
	Author      string          `json:"author,omitempty"`
	ConfigAttrs json.RawMessage `json:"config_attrs,omitempty"`
}

// ===========================
// REQUEST MODELS
// ===========================

// Required scalar fields are pointers so that "absent" and "empty" can be told
// apart during validation; the services report the whole missing/invalid field
// set in a single error.

// ContactRequest is the write payload for POST/PUT on /contacts.
type ContactRequest struct {
	ID             *string           `json:"id"`
	FullName       *string           `json:"full_name"`
	Username       *string           `json:"username"`
	DefaultChannel *string           `json:"default_channel"`
	Groups         []string          `json:"groups"`
	Addresses      map[string]string `json:"addresses"`
}

// ContactgroupRequest is the write payload for POST/PUT on /contact-groups.
type ContactgroupRequest struct {
	ID    *string  `json:"id"`
	Name  *string  `json:"name"`
	Users []string `json:"users"`
}

// ChannelRequest is the write payload for POST/PUT on /channels.
type ChannelRequest struct {
	ID     *string         `json:"id"`
	Name   *string         `json:"name"`
	Type   *string         `json:"type"`
	Config json.RawMessage `json:"config"`
}

package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the publication state of an announcement.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Announcement is one exam announcement. Version counts applied mutations;
// each applied mutation also snapshots a Revision.
type Announcement struct {
	ID          string
	Title       string
	Body        string
	ExamDate    *time.Time
	Status      Status
	Version     int32
	CreatedBy   string
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Revision is an immutable snapshot of an announcement at one version.
type Revision struct {
	ID             string
	AnnouncementID string
	Version        int32
	Title          string
	Body           string
	ExamDate       *time.Time
	Status         Status
	CreatedAt      time.Time
}

// Mutation is the JSON payload of a create or update. Nil fields are left
// unchanged; this is also the shape stored on an approval request and
// replayed at execute time.
type Mutation struct {
	Title    *string    `json:"title,omitempty"`
	Body     *string    `json:"body,omitempty"`
	ExamDate *time.Time `json:"examDate,omitempty"`
	Status   *Status    `json:"status,omitempty"`
}

var ErrNotFound = errors.New("announcement not found")
var ErrRevisionNotFound = errors.New("announcement revision not found")
var ErrVersionConflict = errors.New("announcement modified concurrently")

// ValidStatus reports whether s is a known status value.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Sensitive reports whether applying m to an announcement currently in
// current status touches published content: the target either is published
// or would become published.
func (m Mutation) Sensitive(current Status) bool {
	if current == StatusPublished {
		return true
	}
	return m.Status != nil && *m.Status == StatusPublished
}

// Encode returns the mutation as its stored JSON form.
func (m Mutation) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMutation parses a stored mutation payload.
func DecodeMutation(payload string) (Mutation, error) {
	var m Mutation
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Mutation{}, err
	}
	if m.Status != nil && !ValidStatus(*m.Status) {
		return Mutation{}, errors.New("invalid status in mutation payload")
	}
	return m, nil
}

// Apply copies the mutation's set fields onto a, stamps PublishedAt on a
// draft-to-published transition, and bumps the version.
func (a *Announcement) Apply(m Mutation, now time.Time) {
	if m.Title != nil {
		a.Title = *m.Title
	}
	if m.Body != nil {
		a.Body = *m.Body
	}
	if m.ExamDate != nil {
		a.ExamDate = m.ExamDate
	}
	if m.Status != nil {
		if *m.Status == StatusPublished && a.Status != StatusPublished {
			published := now
			a.PublishedAt = &published
		}
		a.Status = *m.Status
	}
	a.Version++
	a.UpdatedAt = now
}

// Snapshot returns the revision capturing the announcement's current content.
func (a *Announcement) Snapshot(revisionID string, now time.Time) *Revision {
	return &Revision{
		ID:             revisionID,
		AnnouncementID: a.ID,
		Version:        a.Version,
		Title:          a.Title,
		Body:           a.Body,
		ExamDate:       a.ExamDate,
		Status:         a.Status,
		CreatedAt:      now,
	}
}

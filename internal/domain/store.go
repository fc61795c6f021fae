package domain

import (
	"context"
	"time"
)

// NoteFilter narrows a note search to one entity. Zero value means no filter.
type NoteFilter struct {
	EntityType EntityType
	EntityID   int64
}

// ContactStore reads and writes contacts and their companies.
type ContactStore interface {
	SearchContacts(ctx context.Context, query string, limit int) ([]Contact, error)
	CreateContact(ctx context.Context, c Contact) (Contact, error)
	// FindCompanies returns companies whose name contains name (case-insensitive).
	FindCompanies(ctx context.Context, name string, limit int) ([]Company, error)
	CreateCompany(ctx context.Context, c Company) (Company, error)
}

// NoteStore reads and writes notes.
type NoteStore interface {
	SearchNotes(ctx context.Context, query string, filter NoteFilter, limit int) ([]Note, error)
	AddNote(ctx context.Context, n Note) (Note, error)
	// RecentNotes returns the newest notes for an entity, newest first.
	RecentNotes(ctx context.Context, entity EntityType, id int64, limit int) ([]Note, error)
}

// DealStore reads and writes deals.
type DealStore interface {
	CreateDeal(ctx context.Context, d Deal) (Deal, error)
	GetDeal(ctx context.Context, id int64) (Deal, error)
	UpdateDealStage(ctx context.Context, id int64, stage string) (Deal, error)
	// DealsCreatedBetween returns deals with from <= created_at < to.
	DealsCreatedBetween(ctx context.Context, from, to time.Time) ([]Deal, error)
}

// StageStore reads the configurable stage sets.
type StageStore interface {
	StageSet(ctx context.Context, kind DealKind) ([]StageEntry, error)
	AllStageSets(ctx context.Context) ([]StageEntry, error)
}

// CRMStore is the full relational store the assistant works against.
type CRMStore interface {
	ContactStore
	NoteStore
	DealStore
	StageStore
}

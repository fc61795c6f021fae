package tool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Majhi12/atomic-crm/internal/domain"
)

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// spyStore is an in-memory CRMStore that counts writes.
type spyStore struct {
	mu        sync.Mutex
	nextID    int64
	companies []domain.Company
	contacts  []domain.Contact
	notes     []domain.Note
	deals     []domain.Deal
	stages    map[domain.DealKind][]string
	writes    int

	noteErr  error
	stageErr error
	now      time.Time
}

func newSpyStore() *spyStore {
	return &spyStore{
		stages: map[domain.DealKind][]string{
			domain.DealKindSales:       {"Lead", "Qualified", "Proposal", "Won", "Lost"},
			domain.DealKindProcurement: {"Sourcing", "RFQ", "Negotiation", "Ordered", "Received"},
			domain.DealKindPartnership: {"Intro", "Exploration", "Agreement", "Active"},
		},
		now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
}

func (s *spyStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *spyStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *spyStore) SearchContacts(_ context.Context, query string, limit int) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	out := []domain.Contact{}
	for _, c := range s.contacts {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(c.FirstName+" "+c.LastName+" "+c.Email), q) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *spyStore) CreateContact(_ context.Context, c domain.Contact) (domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	c.ID = s.id()
	c.CreatedAt = s.now
	s.contacts = append(s.contacts, c)
	return c, nil
}

func (s *spyStore) FindCompanies(_ context.Context, name string, limit int) ([]domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Company{}
	for _, c := range s.companies {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *spyStore) CreateCompany(_ context.Context, c domain.Company) (domain.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	c.ID = s.id()
	c.CreatedAt = s.now
	s.companies = append(s.companies, c)
	return c, nil
}

func (s *spyStore) SearchNotes(_ context.Context, query string, filter domain.NoteFilter, limit int) ([]domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Note{}
	for _, n := range s.notes {
		if filter.EntityType != "" && n.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != 0 && n.EntityID != filter.EntityID {
			continue
		}
		if strings.Contains(strings.ToLower(n.Text), strings.ToLower(query)) && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *spyStore) AddNote(_ context.Context, n domain.Note) (domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteErr != nil {
		return domain.Note{}, s.noteErr
	}
	s.writes++
	n.ID = s.id()
	n.CreatedAt = s.now
	s.notes = append(s.notes, n)
	return n, nil
}

func (s *spyStore) RecentNotes(_ context.Context, entity domain.EntityType, id int64, limit int) ([]domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Note{}
	for i := len(s.notes) - 1; i >= 0 && len(out) < limit; i-- {
		if n := s.notes[i]; n.EntityType == entity && n.EntityID == id {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *spyStore) CreateDeal(_ context.Context, d domain.Deal) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	d.ID = s.id()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now
	}
	s.deals = append(s.deals, d)
	return d, nil
}

func (s *spyStore) GetDeal(_ context.Context, id int64) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deals {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.Deal{}, domain.NewSubSystemError("deal", "Store.GetDeal", domain.ErrNotFound, "deal")
}

func (s *spyStore) UpdateDealStage(_ context.Context, id int64, stage string) (domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.deals {
		if d.ID == id {
			s.writes++
			s.deals[i].Stage = stage
			return s.deals[i], nil
		}
	}
	return domain.Deal{}, domain.NewSubSystemError("deal", "Store.UpdateDealStage", domain.ErrNotFound, "deal")
}

func (s *spyStore) DealsCreatedBetween(_ context.Context, from, to time.Time) ([]domain.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Deal{}
	for _, d := range s.deals {
		if !d.CreatedAt.Before(from) && d.CreatedAt.Before(to) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *spyStore) StageSet(_ context.Context, kind domain.DealKind) ([]domain.StageEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stageErr != nil {
		return nil, s.stageErr
	}
	var out []domain.StageEntry
	for i, st := range s.stages[kind] {
		out = append(out, domain.StageEntry{Kind: kind, Stage: st, Position: i})
	}
	return out, nil
}

func (s *spyStore) AllStageSets(ctx context.Context) ([]domain.StageEntry, error) {
	var out []domain.StageEntry
	for _, k := range domain.DealKinds {
		entries, err := s.StageSet(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// fakeLLM records requests and replies with a fixed message.
type fakeLLM struct {
	mu       sync.Mutex
	requests []domain.ChatRequest
	reply    string
	err      error
}

func (f *fakeLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: f.reply}}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Log(_ context.Context, e domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *recordingAudit) Close() error { return nil }

// fakeBackend is a SearchBackend with scripted results.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int
	results []SearchResult
	err     error
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Search(_ context.Context, _ string, maxResults int) ([]SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.results[:min(len(b.results), maxResults)], nil
}

var errBoom = errors.New("boom")

func newTestExecutor(store *spyStore) *Executor {
	return NewExecutor(ExecutorDeps{
		Store:  store,
		Logger: newTestLogger(),
		Now:    func() time.Time { return store.now },
	})
}

func mustRegistry(caps Capabilities) *Registry {
	r, err := NewRegistry(ListTools(caps))
	if err != nil {
		panic(err)
	}
	return r
}

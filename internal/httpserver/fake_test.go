package httpserver

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"webmail/internal/apperr"
	"webmail/internal/mailbox"
	"webmail/internal/model"
	"webmail/pkg/outbox"
)

// memUsers backs the auth, user and directory services.
type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[int64]*model.User{}}
}

func (m *memUsers) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.users {
		if strings.EqualFold(o.Email, u.Email) {
			return apperr.ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindActiveByEmails(_ context.Context, emails []string) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.User
	for _, u := range m.users {
		if u.IsActive && slices.Contains(emails, strings.ToLower(u.Email)) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUsers) FindByIDs(_ context.Context, ids []int64) ([]model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Participant
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

func (m *memUsers) List(_ context.Context, search string, limit, offset int) ([]*model.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.User
	for _, u := range m.users {
		if search == "" || strings.Contains(u.Email, strings.ToLower(search)) {
			cp := *u
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return []*model.User{}, len(all), nil
	}
	return all[offset:min(offset+limit, len(all))], len(all), nil
}

func (m *memUsers) UpdateProfile(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) SetActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) SetRole(_ context.Context, id int64, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Role = role
	return nil
}

// memMessages evaluates mailbox filters in memory.
type memMessages struct {
	mu       sync.Mutex
	nextID   int64
	clock    time.Time
	messages map[int64]*model.Message
	failAll  error
}

func newMemMessages() *memMessages {
	return &memMessages{messages: map[int64]*model.Message{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func copyMessage(m *model.Message) *model.Message {
	c := *m
	c.To = slices.Clone(m.To)
	c.Cc = slices.Clone(m.Cc)
	c.Bcc = slices.Clone(m.Bcc)
	c.Labels = slices.Clone(m.Labels)
	return &c
}

func (s *memMessages) CreateWithEvent(_ context.Context, m *model.Message, build outbox.Builder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.nextID++
	s.clock = s.clock.Add(time.Minute)
	m.ID, m.Version, m.CreatedAt, m.UpdatedAt = s.nextID, 1, s.clock, s.clock
	s.messages[m.ID] = copyMessage(m)
	if build != nil {
		build(m.ID)
	}
	return nil
}

func (s *memMessages) FindByID(_ context.Context, id int64) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	m, ok := s.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyMessage(m), nil
}

func (s *memMessages) match(f mailbox.Filter) []*model.Message {
	var out []*model.Message
	for _, m := range s.messages {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *memMessages) List(_ context.Context, q mailbox.Query, limit, offset int) ([]*model.Message, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.match(q.Filter)
	page := []*model.Message{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		page = append(page, copyMessage(all[i]))
	}
	return page, len(all), nil
}

func (s *memMessages) Count(_ context.Context, f mailbox.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.match(f)), nil
}

func (s *memMessages) MarkRead(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsRead {
		return false, nil
	}
	m.IsRead = true
	m.Version++
	return true, nil
}

func (s *memMessages) UpdateFlags(_ context.Context, id int64, p model.FlagPatch, expected *int64) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || (expected != nil && *expected != m.Version) {
		return nil, pgx.ErrNoRows
	}
	if p.IsRead != nil {
		m.IsRead = *p.IsRead
	}
	if p.IsImportant != nil {
		m.IsImportant = *p.IsImportant
	}
	m.Version++
	return copyMessage(m), nil
}

func (s *memMessages) SoftDelete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.IsDeleted = true
	m.Labels = []string{model.LabelTrash}
	m.Version++
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubReplayer struct {
	replayed []int64
}

func (r *stubReplayer) ReplayEvent(_ context.Context, id int64) error {
	if id == 404 {
		return outbox.ErrEventNotFound
	}
	r.replayed = append(r.replayed, id)
	return nil
}

func (r *stubReplayer) ReplayFailedEvents(_ context.Context, limit int) (int, error) {
	return min(limit, 3), nil
}

var errDown = errors.New("connection refused")

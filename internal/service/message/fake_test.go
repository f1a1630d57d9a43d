package message

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"webmail/internal/apperr"
	"webmail/internal/mailbox"
	"webmail/internal/model"
	"webmail/pkg/outbox"
)

type publishedEvent struct {
	routingKey string
	payload    any
}

// memStore is an in-memory MessageStore that evaluates filters with Filter.Match.
type memStore struct {
	messages map[int64]*model.Message
	nextID   int64
	clock    time.Time
	writes   int
	events   []publishedEvent
	failNext error
}

func newMemStore() *memStore {
	return &memStore{messages: map[int64]*model.Message{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func clone(m *model.Message) *model.Message {
	c := *m
	c.To = slices.Clone(m.To)
	c.Cc = slices.Clone(m.Cc)
	c.Bcc = slices.Clone(m.Bcc)
	c.Labels = slices.Clone(m.Labels)
	c.Attachments = slices.Clone(m.Attachments)
	return &c
}

func (s *memStore) CreateWithEvent(ctx context.Context, m *model.Message, build outbox.Builder) error {
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	s.nextID++
	s.clock = s.clock.Add(time.Minute)
	m.ID = s.nextID
	m.Version = 1
	m.CreatedAt = s.clock
	m.UpdatedAt = s.clock
	s.messages[m.ID] = clone(m)
	s.writes++
	if build != nil {
		key, payload := build(m.ID)
		s.events = append(s.events, publishedEvent{routingKey: key, payload: payload})
	}
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return clone(m), nil
}

func (s *memStore) match(f mailbox.Filter) []*model.Message {
	var out []*model.Message
	for _, m := range s.messages {
		if f.Match(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *memStore) List(ctx context.Context, q mailbox.Query, limit, offset int) ([]*model.Message, int, error) {
	all := s.match(q.Filter)
	page := []*model.Message{}
	for i := offset; i < len(all) && i < offset+limit; i++ {
		page = append(page, clone(all[i]))
	}
	return page, len(all), nil
}

func (s *memStore) Count(ctx context.Context, f mailbox.Filter) (int, error) {
	return len(s.match(f)), nil
}

func (s *memStore) MarkRead(ctx context.Context, id int64) (bool, error) {
	m, ok := s.messages[id]
	if !ok || m.IsRead {
		return false, nil
	}
	m.IsRead = true
	m.Version++
	s.writes++
	return true, nil
}

func (s *memStore) UpdateFlags(ctx context.Context, id int64, p model.FlagPatch, expected *int64) (*model.Message, error) {
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
	s.writes++
	return clone(m), nil
}

func (s *memStore) SoftDelete(ctx context.Context, id int64) error {
	m, ok := s.messages[id]
	if !ok {
		return pgx.ErrNoRows
	}
	m.IsDeleted = true
	m.Labels = []string{model.LabelTrash}
	m.Version++
	s.writes++
	return nil
}

// memDirectory resolves against a fixed user list.
type memDirectory struct {
	users []model.User
}

func (d *memDirectory) ResolveEmails(ctx context.Context, emails []string) (map[string]int64, error) {
	out := map[string]int64{}
	var missing []string
	for _, e := range mailbox.NormalizeEmails(emails) {
		found := false
		for _, u := range d.users {
			if u.IsActive && strings.EqualFold(u.Email, e) {
				out[e] = u.ID
				found = true
			}
		}
		if !found {
			missing = append(missing, e)
		}
	}
	if len(missing) > 0 {
		return nil, &apperr.UnresolvedRecipientError{Emails: missing}
	}
	return out, nil
}

func (d *memDirectory) Participants(ctx context.Context, ids []int64) (map[int64]model.Participant, error) {
	out := map[int64]model.Participant{}
	for _, u := range d.users {
		if slices.Contains(ids, u.ID) {
			out[u.ID] = u.Summary()
		}
	}
	return out, nil
}

var errStoreDown = errors.New("store unavailable")

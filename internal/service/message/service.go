package message

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	mqcontracts "webmail/contracts/mq"
	"webmail/internal/apperr"
	"webmail/internal/mailbox"
	"webmail/internal/model"
	"webmail/pkg/logger"
	"webmail/pkg/metrics"
	"webmail/pkg/outbox"
	"webmail/pkg/trace"
)

// 创建类型，用于指标和事件
const (
	KindSend    = "send"
	KindDraft   = "draft"
	KindReply   = "reply"
	KindForward = "forward"
)

// MessageStore is the persistence the service needs. Lookups of a missing
// row return pgx.ErrNoRows.
type MessageStore interface {
	CreateWithEvent(ctx context.Context, m *model.Message, build outbox.Builder) error
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	List(ctx context.Context, q mailbox.Query, limit, offset int) ([]*model.Message, int, error)
	Count(ctx context.Context, f mailbox.Filter) (int, error)
	MarkRead(ctx context.Context, id int64) (bool, error)
	UpdateFlags(ctx context.Context, id int64, patch model.FlagPatch, expectedVersion *int64) (*model.Message, error)
	SoftDelete(ctx context.Context, id int64) error
}

// UserDirectory resolves addresses to active users and ids to summaries.
type UserDirectory interface {
	ResolveEmails(ctx context.Context, emails []string) (map[string]int64, error)
	Participants(ctx context.Context, ids []int64) (map[int64]model.Participant, error)
}

type Service struct {
	store  MessageStore
	dir    UserDirectory
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store MessageStore, dir UserDirectory, logger *zap.Logger) *Service {
	return &Service{store: store, dir: dir, logger: logger, now: time.Now}
}

type ListParams struct {
	Label  string
	Page   int
	Limit  int
	Search string
}

type ListResult struct {
	Messages   []*model.MessageView `json:"messages"`
	Pagination mailbox.Page         `json:"pagination"`
}

type CreateInput struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	IsDraft     bool
	Attachments []model.Attachment
}

type ForwardInput struct {
	To  []string
	Cc  []string
	Bcc []string
	// Body replaces the quoted original when non-blank.
	Body string
}

func (s *Service) load(ctx context.Context, id int64) (*model.Message, error) {
	m, err := s.store.FindByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load message %d: %w", id, err)
	}
	return m, nil
}

// List returns one page of the requested mailbox view, newest first.
func (s *Service) List(ctx context.Context, userID int64, p ListParams) (*ListResult, error) {
	page, limit := mailbox.NormalizePaging(p.Page, p.Limit)
	q := mailbox.BuildQuery(p.Label, userID, p.Search)

	msgs, total, err := s.store.List(ctx, q, limit, mailbox.Offset(page, limit))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.Label, err)
	}

	views, err := s.views(ctx, userID, msgs)
	if err != nil {
		return nil, err
	}
	return &ListResult{Messages: views, Pagination: mailbox.NewPage(page, limit, total)}, nil
}

// Get returns a message the user participates in. A to-recipient fetching an
// unread message marks it read; later fetches write nothing.
func (s *Service) Get(ctx context.Context, userID, id int64) (*model.MessageView, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mailbox.CanRead(m, userID) {
		return nil, apperr.ErrForbidden
	}

	if mailbox.ShouldMarkRead(m, userID) {
		marked, err := s.store.MarkRead(ctx, id)
		if err != nil {
			return nil, err
		}
		if marked {
			metrics.IncrementReadMarked()
			m.Version++
		}
		m.IsRead = true
	}
	return s.view(ctx, userID, m)
}

// Create sends a message or saves a draft. Recipients must all resolve to
// active users or nothing is written.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*model.MessageView, error) {
	v := &apperr.ValidationError{}
	to := mailbox.NormalizeEmails(in.To)
	cc := mailbox.NormalizeEmails(in.Cc)
	bcc := mailbox.NormalizeEmails(in.Bcc)
	if len(to) == 0 && !in.IsDraft {
		v.Add("to", "At least one recipient is required")
	}
	mailbox.CheckAddresses(v, "to", to)
	mailbox.CheckAddresses(v, "cc", cc)
	mailbox.CheckAddresses(v, "bcc", bcc)
	subject := mailbox.CheckSubject(v, in.Subject)
	body := mailbox.CheckBody(v, "body", in.Body)
	for i, a := range in.Attachments {
		if a.Filename == "" || a.Size < 0 {
			v.Add(fmt.Sprintf("attachments[%d]", i), "Attachment needs a filename and a non-negative size")
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	rcpt, err := s.resolve(ctx, to, cc, bcc)
	if err != nil {
		return nil, err
	}

	m := &model.Message{
		From:        userID,
		To:          rcpt.To,
		Cc:          rcpt.Cc,
		Bcc:         rcpt.Bcc,
		Subject:     subject,
		Body:        body,
		Attachments: in.Attachments,
		IsDraft:     in.IsDraft,
		Labels:      []string{model.LabelSent},
	}
	kind := KindSend
	if in.IsDraft {
		kind = KindDraft
		m.Labels = []string{model.LabelDraft}
	}

	return s.persist(ctx, userID, m, kind)
}

// Reply answers a message the user received (to or cc).
func (s *Service) Reply(ctx context.Context, userID, id int64, body string) (*model.MessageView, error) {
	v := &apperr.ValidationError{}
	body = mailbox.CheckBody(v, "body", body)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	orig, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mailbox.CanReply(orig, userID) {
		return nil, apperr.ErrForbidden
	}

	return s.persist(ctx, userID, mailbox.DeriveReply(orig, userID, body), KindReply)
}

// Forward re-sends a message the user participates in to new recipients.
func (s *Service) Forward(ctx context.Context, userID, id int64, in ForwardInput) (*model.MessageView, error) {
	v := &apperr.ValidationError{}
	to := mailbox.NormalizeEmails(in.To)
	cc := mailbox.NormalizeEmails(in.Cc)
	bcc := mailbox.NormalizeEmails(in.Bcc)
	if len(to) == 0 {
		v.Add("to", "At least one recipient is required")
	}
	mailbox.CheckAddresses(v, "to", to)
	mailbox.CheckAddresses(v, "cc", cc)
	mailbox.CheckAddresses(v, "bcc", bcc)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	orig, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mailbox.CanForward(orig, userID) {
		return nil, apperr.ErrForbidden
	}

	rcpt, err := s.resolve(ctx, to, cc, bcc)
	if err != nil {
		return nil, err
	}

	people, err := s.dir.Participants(ctx, append([]int64{orig.From}, orig.To...))
	if err != nil {
		return nil, err
	}
	origTo := make([]model.Participant, len(orig.To))
	for i, id := range orig.To {
		origTo[i] = people[id]
	}
	quote := mailbox.ForwardQuote(people[orig.From], origTo, orig.Subject, orig.Body)

	return s.persist(ctx, userID, mailbox.DeriveForward(orig, userID, rcpt, in.Body, quote), KindForward)
}

// Update applies a flag patch. A supplied version must match the stored one.
func (s *Service) Update(ctx context.Context, userID, id int64, p Patch) (*model.MessageView, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mailbox.CanWrite(m, userID) {
		return nil, apperr.ErrForbidden
	}
	if p.Version != nil && *p.Version != m.Version {
		return nil, apperr.ErrConflict
	}
	if p.Flags.Empty() {
		return s.view(ctx, userID, m)
	}

	updated, err := s.store.UpdateFlags(ctx, id, p.Flags, p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		// the row existed a moment ago, so only a concurrent version bump can miss it
		return nil, apperr.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update message %d: %w", id, err)
	}
	return s.view(ctx, userID, updated)
}

// Delete moves the message to trash. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	m, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !mailbox.CanWrite(m, userID) {
		return apperr.ErrForbidden
	}
	if m.IsDeleted {
		return nil
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("delete message %d: %w", id, err)
	}

	logger.WithTrace(ctx, s.logger).Info("Message moved to trash",
		zap.Int64("message_id", id),
		zap.Int64("user_id", userID),
	)
	return nil
}

// Stats counts the dashboard views for a user.
func (s *Service) Stats(ctx context.Context, userID int64) (*model.MessageStats, error) {
	st := &model.MessageStats{}
	counters := []struct {
		filter mailbox.Filter
		dst    *int
	}{
		{mailbox.Inbox(userID), &st.Inbox},
		{mailbox.Inbox(userID).Unread(), &st.Unread},
		{mailbox.Sent(userID), &st.Sent},
		{mailbox.Drafts(userID), &st.Drafts},
		{mailbox.Important(userID), &st.Important},
		{mailbox.Trash(userID), &st.Trash},
	}
	for _, c := range counters {
		n, err := s.store.Count(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("message stats: %w", err)
		}
		*c.dst = n
	}
	return st, nil
}

func (s *Service) resolve(ctx context.Context, to, cc, bcc []string) (mailbox.Recipients, error) {
	all := make([]string, 0, len(to)+len(cc)+len(bcc))
	all = append(append(append(all, to...), cc...), bcc...)

	resolved, err := s.dir.ResolveEmails(ctx, all)
	if err != nil {
		return mailbox.Recipients{}, err
	}
	lookup := func(emails []string) []int64 {
		out := make([]int64, 0, len(emails))
		for _, e := range emails {
			out = append(out, resolved[e])
		}
		return out
	}
	return mailbox.Recipients{To: lookup(to), Cc: lookup(cc), Bcc: lookup(bcc)}, nil
}

// persist stores m and, unless it is a draft, its message.sent event.
func (s *Service) persist(ctx context.Context, userID int64, m *model.Message, kind string) (*model.MessageView, error) {
	var build outbox.Builder
	if !m.IsDraft {
		traceID := trace.FromContext(ctx)
		sentAt := s.now().UTC()
		build = func(id int64) (string, any) {
			return mqcontracts.RoutingKeyMessageSent, mqcontracts.MessageSentPayload{
				MessageID:    id,
				FromUserID:   m.From,
				RecipientIDs: recipientSet(m),
				Subject:      m.Subject,
				Kind:         kind,
				SentAt:       sentAt,
				TraceID:      traceID,
			}
		}
	}

	if err := s.store.CreateWithEvent(ctx, m, build); err != nil {
		return nil, fmt.Errorf("store %s: %w", kind, err)
	}
	metrics.IncrementMessageCreated(kind)

	logger.WithTrace(ctx, s.logger).Info("Message created",
		zap.Int64("message_id", m.ID),
		zap.Int64("user_id", userID),
		zap.String("kind", kind),
		zap.Int("recipients", len(m.To)+len(m.Cc)+len(m.Bcc)),
	)
	return s.view(ctx, userID, m)
}

func recipientSet(m *model.Message) []int64 {
	seen := make(map[int64]struct{})
	var out []int64
	for _, list := range [][]int64{m.To, m.Cc, m.Bcc} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

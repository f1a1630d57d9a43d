package message

import (
	"context"

	"webmail/internal/mailbox"
	"webmail/internal/model"
)

// views resolves participants for a page of messages with one directory call.
func (s *Service) views(ctx context.Context, viewer int64, msgs []*model.Message) ([]*model.MessageView, error) {
	var ids []int64
	for _, m := range msgs {
		ids = append(ids, m.From)
		ids = append(ids, m.To...)
		ids = append(ids, m.Cc...)
		if mailbox.CanSeeBcc(m, viewer) {
			ids = append(ids, m.Bcc...)
		}
	}

	people, err := s.dir.Participants(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toView(m, viewer, people))
	}
	return out, nil
}

func (s *Service) view(ctx context.Context, viewer int64, m *model.Message) (*model.MessageView, error) {
	views, err := s.views(ctx, viewer, []*model.Message{m})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

func toView(m *model.Message, viewer int64, people map[int64]model.Participant) *model.MessageView {
	resolve := func(ids []int64) []model.Participant {
		out := make([]model.Participant, 0, len(ids))
		for _, id := range ids {
			p, ok := people[id]
			if !ok {
				p = model.Participant{ID: id}
			}
			out = append(out, p)
		}
		return out
	}

	bcc := []model.Participant{}
	if mailbox.CanSeeBcc(m, viewer) {
		bcc = resolve(m.Bcc)
	}
	from, ok := people[m.From]
	if !ok {
		from = model.Participant{ID: m.From}
	}
	attachments := m.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	labels := m.Labels
	if labels == nil {
		labels = []string{}
	}

	return &model.MessageView{
		ID:            m.ID,
		From:          from,
		To:            resolve(m.To),
		Cc:            resolve(m.Cc),
		Bcc:           bcc,
		Subject:       m.Subject,
		Body:          m.Body,
		Attachments:   attachments,
		IsRead:        m.IsRead,
		IsImportant:   m.IsImportant,
		IsDraft:       m.IsDraft,
		IsDeleted:     m.IsDeleted,
		Labels:        labels,
		ReplyTo:       m.ReplyTo,
		ForwardedFrom: m.ForwardedFrom,
		Version:       m.Version,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

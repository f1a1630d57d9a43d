package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"

	mqcontracts "webmail/contracts/mq"
	"webmail/internal/apperr"
	"webmail/internal/model"
	"webmail/pkg/trace"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
	dave  int64 = 4
	eve   int64 = 5
	frank int64 = 6
)

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	dir := &memDirectory{users: []model.User{
		{ID: alice, Email: "alice@example.com", FirstName: "Alice", LastName: "Smith", IsActive: true},
		{ID: bob, Email: "bob@example.com", FirstName: "Bob", LastName: "Jones", IsActive: true},
		{ID: carol, Email: "carol@example.com", FirstName: "Carol", LastName: "King", IsActive: true},
		{ID: dave, Email: "dave@example.com", FirstName: "Dave", LastName: "Lee", IsActive: true},
		{ID: eve, Email: "eve@example.com", FirstName: "Eve", LastName: "Moss", IsActive: true},
		{ID: frank, Email: "frank@example.com", FirstName: "Frank", LastName: "Off", IsActive: false},
	}}
	return NewService(store, dir, zap.NewNop()), store
}

func send(t *testing.T, s *Service, from int64, in CreateInput) *model.MessageView {
	t.Helper()
	if in.Subject == "" {
		in.Subject = "Hello"
	}
	if in.Body == "" {
		in.Body = "Hi there"
	}
	v, err := s.Create(context.Background(), from, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return v
}

func TestCreate_ResolvesParticipants(t *testing.T) {
	s, store := newTestService()
	ctx := trace.WithContext(context.Background(), "trace-1")

	v, err := s.Create(ctx, alice, CreateInput{
		To:      []string{"Bob@Example.com"},
		Cc:      []string{"carol@example.com"},
		Bcc:     []string{"dave@example.com"},
		Subject: "  Lunch  ",
		Body:    " Noon? ",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if v.From.Email != "alice@example.com" || v.To[0].ID != bob || v.Cc[0].ID != carol || v.Bcc[0].ID != dave {
		t.Errorf("participants not resolved: %+v", v)
	}
	if v.Subject != "Lunch" || v.Body != "Noon?" {
		t.Errorf("subject/body not trimmed: %q / %q", v.Subject, v.Body)
	}
	if !slices.Equal(v.Labels, []string{model.LabelSent}) {
		t.Errorf("Labels = %v, want [sent]", v.Labels)
	}

	if len(store.events) != 1 || store.events[0].routingKey != mqcontracts.RoutingKeyMessageSent {
		t.Fatalf("events = %+v, want one message.sent", store.events)
	}
	payload := store.events[0].payload.(mqcontracts.MessageSentPayload)
	if payload.MessageID != v.ID || payload.TraceID != "trace-1" || payload.Kind != KindSend {
		t.Errorf("payload = %+v", payload)
	}
	if !slices.Equal(payload.RecipientIDs, []int64{bob, carol, dave}) {
		t.Errorf("RecipientIDs = %v", payload.RecipientIDs)
	}
}

func TestCreate_DraftHasNoEvent(t *testing.T) {
	s, store := newTestService()
	v := send(t, s, alice, CreateInput{IsDraft: true})

	if !v.IsDraft || !slices.Equal(v.Labels, []string{model.LabelDraft}) {
		t.Errorf("draft = %+v", v)
	}
	if len(store.events) != 0 {
		t.Errorf("drafts must not publish, got %v", store.events)
	}
}

func TestCreate_GhostRecipientPersistsNothing(t *testing.T) {
	s, store := newTestService()

	_, err := s.Create(context.Background(), alice, CreateInput{
		To:      []string{"bob@example.com", "ghost@nowhere.test"},
		Subject: "Hi",
		Body:    "Body",
	})
	var unresolved *apperr.UnresolvedRecipientError
	if !errors.As(err, &unresolved) {
		t.Fatalf("error = %v, want UnresolvedRecipientError", err)
	}
	if !slices.Equal(unresolved.Emails, []string{"ghost@nowhere.test"}) {
		t.Errorf("Emails = %v", unresolved.Emails)
	}
	if len(store.messages) != 0 || store.writes != 0 || len(store.events) != 0 {
		t.Errorf("store must be untouched, got %d messages", len(store.messages))
	}
}

func TestCreate_InactiveRecipientRejected(t *testing.T) {
	s, store := newTestService()
	_, err := s.Create(context.Background(), alice, CreateInput{
		To: []string{"frank@example.com"}, Subject: "Hi", Body: "Body",
	})
	var unresolved *apperr.UnresolvedRecipientError
	if !errors.As(err, &unresolved) || len(store.messages) != 0 {
		t.Errorf("error = %v, messages = %d", err, len(store.messages))
	}
}

func TestCreate_Validation(t *testing.T) {
	s, store := newTestService()
	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"no recipients", CreateInput{Subject: "s", Body: "b"}, "to"},
		{"blank subject", CreateInput{To: []string{"bob@example.com"}, Subject: "  ", Body: "b"}, "subject"},
		{"long subject", CreateInput{To: []string{"bob@example.com"}, Subject: strings.Repeat("x", 201), Body: "b"}, "subject"},
		{"blank body", CreateInput{To: []string{"bob@example.com"}, Subject: "s", Body: "\n"}, "body"},
		{"bad address", CreateInput{To: []string{"not-an-address"}, Subject: "s", Body: "b"}, "to"},
		{"bad attachment", CreateInput{To: []string{"bob@example.com"}, Subject: "s", Body: "b",
			Attachments: []model.Attachment{{Filename: ""}}}, "attachments[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), alice, tt.in)
			var verr *apperr.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if verr.Fields[0].Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Fields[0].Field, tt.field)
			}
		})
	}
	if store.writes != 0 {
		t.Errorf("validation failures wrote %d times", store.writes)
	}
}

func TestCreate_DraftMayOmitRecipients(t *testing.T) {
	s, _ := newTestService()
	v := send(t, s, alice, CreateInput{IsDraft: true})
	if len(v.To) != 0 {
		t.Errorf("To = %v", v.To)
	}
}

func TestCreate_StoreFailure(t *testing.T) {
	s, store := newTestService()
	store.failNext = errStoreDown
	_, err := s.Create(context.Background(), alice, CreateInput{To: []string{"bob@example.com"}, Subject: "s", Body: "b"})
	if !errors.Is(err, errStoreDown) {
		t.Errorf("error = %v, want wrapped store error", err)
	}
}

func TestGet_MarksReadExactlyOnce(t *testing.T) {
	s, store := newTestService()
	sent := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Cc: []string{"carol@example.com"}})
	writes := store.writes

	v, err := s.Get(context.Background(), bob, sent.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !v.IsRead {
		t.Error("first fetch by to-recipient should mark read")
	}
	if store.writes != writes+1 {
		t.Errorf("writes = %d, want exactly one new write", store.writes-writes)
	}

	v, err = s.Get(context.Background(), bob, sent.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !v.IsRead || store.writes != writes+1 {
		t.Errorf("second fetch wrote again (writes=%d) or lost the flag", store.writes-writes)
	}
}

func TestGet_NonToParticipantsDoNotMarkRead(t *testing.T) {
	s, store := newTestService()
	sent := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Cc: []string{"carol@example.com"}})
	writes := store.writes

	for _, u := range []int64{alice, carol} {
		v, err := s.Get(context.Background(), u, sent.ID)
		if err != nil {
			t.Fatalf("Get(user %d) error = %v", u, err)
		}
		if v.IsRead {
			t.Errorf("user %d flipped isRead", u)
		}
	}
	if store.writes != writes {
		t.Errorf("writes = %d, want none", store.writes-writes)
	}
}

func TestGet_NotFoundAndForbidden(t *testing.T) {
	s, _ := newTestService()
	sent := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})

	if _, err := s.Get(context.Background(), bob, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing message error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(context.Background(), eve, sent.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("outsider error = %v, want ErrForbidden", err)
	}
}

func TestGet_BccHiddenFromRecipients(t *testing.T) {
	s, _ := newTestService()
	sent := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Bcc: []string{"dave@example.com"}})

	asBob, _ := s.Get(context.Background(), bob, sent.ID)
	if len(asBob.Bcc) != 0 {
		t.Errorf("bob sees bcc: %v", asBob.Bcc)
	}
	asDave, err := s.Get(context.Background(), dave, sent.ID)
	if err != nil {
		t.Fatalf("bcc recipient should read the message: %v", err)
	}
	if len(asDave.Bcc) != 0 {
		t.Errorf("dave sees bcc: %v", asDave.Bcc)
	}
	asAlice, _ := s.Get(context.Background(), alice, sent.ID)
	if len(asAlice.Bcc) != 1 || asAlice.Bcc[0].ID != dave {
		t.Errorf("sender bcc = %v", asAlice.Bcc)
	}
}

func TestList_Pagination(t *testing.T) {
	s, _ := newTestService()
	for i := 0; i < 25; i++ {
		send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Subject: fmt.Sprintf("msg %02d", i)})
	}

	page1, err := s.List(context.Background(), bob, ListParams{Label: "inbox", Page: 1, Limit: 20})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page1.Messages) != 20 || page1.Pagination.Pages != 2 || page1.Pagination.Total != 25 || page1.Pagination.Current != 1 {
		t.Errorf("page 1 = %d items, pagination %+v", len(page1.Messages), page1.Pagination)
	}
	if page1.Messages[0].Subject != "msg 24" {
		t.Errorf("newest first expected, got %q", page1.Messages[0].Subject)
	}

	page2, _ := s.List(context.Background(), bob, ListParams{Label: "inbox", Page: 2, Limit: 20})
	if len(page2.Messages) != 5 || page2.Pagination.Current != 2 {
		t.Errorf("page 2 = %d items, pagination %+v", len(page2.Messages), page2.Pagination)
	}
	if page2.Messages[4].Subject != "msg 00" {
		t.Errorf("last item = %q, want oldest", page2.Messages[4].Subject)
	}

	page9, _ := s.List(context.Background(), bob, ListParams{Label: "inbox", Page: 9, Limit: 20})
	if len(page9.Messages) != 0 || page9.Pagination.Total != 25 {
		t.Errorf("out-of-range page = %d items, pagination %+v", len(page9.Messages), page9.Pagination)
	}

	capped, _ := s.List(context.Background(), bob, ListParams{Label: "inbox", Page: 1, Limit: 500})
	if len(capped.Messages) != 25 || capped.Pagination.Limit != 100 || capped.Pagination.Pages != 1 {
		t.Errorf("capped page = %d items, pagination %+v", len(capped.Messages), capped.Pagination)
	}
}

func TestList_DefaultsApplied(t *testing.T) {
	s, _ := newTestService()
	res, err := s.List(context.Background(), bob, ListParams{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Pagination.Current != 1 || res.Messages == nil {
		t.Errorf("List() = %+v", res)
	}
}

func TestList_SearchIsANDedWithLabel(t *testing.T) {
	s, _ := newTestService()
	send(t, s, bob, CreateInput{To: []string{"alice@example.com"}, Subject: "Budget review"})
	send(t, s, alice, CreateInput{To: []string{"carol@example.com"}, Subject: "Holiday"})

	sent, _ := s.List(context.Background(), alice, ListParams{Label: "sent", Search: "budget"})
	if sent.Pagination.Total != 0 {
		t.Errorf("sent search matched inbox-only message: %d results", sent.Pagination.Total)
	}
	inbox, _ := s.List(context.Background(), alice, ListParams{Label: "inbox", Search: "BUDGET"})
	if inbox.Pagination.Total != 1 {
		t.Errorf("inbox search = %d results, want 1", inbox.Pagination.Total)
	}
}

func TestDelete_SoftDeleteMovesToTrash(t *testing.T) {
	s, store := newTestService()
	sent := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Cc: []string{"carol@example.com"}})

	if err := s.Delete(context.Background(), bob, sent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	stored := store.messages[sent.ID]
	if !stored.IsDeleted || !slices.Equal(stored.Labels, []string{model.LabelTrash}) {
		t.Errorf("stored = deleted:%v labels:%v", stored.IsDeleted, stored.Labels)
	}

	for _, u := range []int64{alice, bob, carol} {
		for _, label := range []string{"inbox", "sent", "drafts"} {
			res, _ := s.List(context.Background(), u, ListParams{Label: label})
			if res.Pagination.Total != 0 {
				t.Errorf("user %d still sees deleted message in %s", u, label)
			}
		}
		trash, _ := s.List(context.Background(), u, ListParams{Label: "trash"})
		if trash.Pagination.Total != 1 {
			t.Errorf("user %d trash = %d, want 1", u, trash.Pagination.Total)
		}
	}
	eveTrash, _ := s.List(context.Background(), eve, ListParams{Label: "trash"})
	if eveTrash.Pagination.Total != 0 {
		t.Error("non-participant sees the message in trash")
	}

	writes := store.writes
	if err := s.Delete(context.Background(), alice, sent.ID); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
	if store.writes != writes {
		t.Error("deleting an already-deleted message should not write")
	}
}

func TestDelete_Forbidden(t *testing.T) {
	s, _ := newTestService()
	sent := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})
	if err := s.Delete(context.Background(), eve, sent.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
	if err := s.Delete(context.Background(), alice, 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestReply(t *testing.T) {
	s, store := newTestService()
	orig := send(t, s, alice, CreateInput{
		To: []string{"bob@example.com"}, Cc: []string{"carol@example.com", "eve@example.com"}, Subject: "Hello",
	})

	r, err := s.Reply(context.Background(), carol, orig.ID, "Sounds good")
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if r.Subject != "Re: Hello" {
		t.Errorf("Subject = %q", r.Subject)
	}
	if len(r.To) != 1 || r.To[0].ID != alice {
		t.Errorf("To = %v, want original sender", r.To)
	}
	if len(r.Cc) != 1 || r.Cc[0].ID != eve {
		t.Errorf("Cc = %v, want original cc minus replier", r.Cc)
	}
	if r.ReplyTo == nil || *r.ReplyTo != orig.ID || r.ForwardedFrom != nil {
		t.Errorf("ReplyTo = %v ForwardedFrom = %v", r.ReplyTo, r.ForwardedFrom)
	}

	rr, err := s.Reply(context.Background(), alice, r.ID, "again")
	if err != nil {
		t.Fatalf("Reply() to reply error = %v", err)
	}
	if rr.Subject != "Re: Hello" {
		t.Errorf("prefix accumulated: %q", rr.Subject)
	}

	last := store.events[len(store.events)-1].payload.(mqcontracts.MessageSentPayload)
	if last.Kind != KindReply {
		t.Errorf("event kind = %q", last.Kind)
	}
}

func TestReply_Rules(t *testing.T) {
	s, _ := newTestService()
	orig := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Bcc: []string{"dave@example.com"}})

	if _, err := s.Reply(context.Background(), alice, orig.ID, "self"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("sender reply error = %v, want ErrForbidden", err)
	}
	if _, err := s.Reply(context.Background(), dave, orig.ID, "bcc"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("bcc reply error = %v, want ErrForbidden", err)
	}
	var verr *apperr.ValidationError
	if _, err := s.Reply(context.Background(), bob, orig.ID, "   "); !errors.As(err, &verr) {
		t.Errorf("blank body error = %v, want ValidationError", err)
	}
	if _, err := s.Reply(context.Background(), bob, 999, "hi"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing original error = %v, want ErrNotFound", err)
	}
}

func TestForward_QuoteAndOverride(t *testing.T) {
	s, _ := newTestService()
	orig := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}, Subject: "Plans", Body: "See you at 5"})

	f, err := s.Forward(context.Background(), bob, orig.ID, ForwardInput{To: []string{"eve@example.com"}})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	want := "--- Forwarded message ---\n" +
		"From: Alice Smith <alice@example.com>\n" +
		"To: Bob Jones <bob@example.com>\n" +
		"Subject: Plans\n\n" +
		"See you at 5"
	if f.Body != want {
		t.Errorf("Body =\n%s\nwant\n%s", f.Body, want)
	}
	if f.Subject != "Fwd: Plans" || f.ForwardedFrom == nil || *f.ForwardedFrom != orig.ID || f.ReplyTo != nil {
		t.Errorf("forward = %+v", f)
	}

	f2, err := s.Forward(context.Background(), eve, f.ID, ForwardInput{To: []string{"carol@example.com"}, Body: "FYI"})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if f2.Body != "FYI" || f2.Subject != "Fwd: Plans" {
		t.Errorf("second forward = %q / %q", f2.Subject, f2.Body)
	}
}

func TestForward_Rules(t *testing.T) {
	s, store := newTestService()
	orig := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})
	before := len(store.messages)

	if _, err := s.Forward(context.Background(), eve, orig.ID, ForwardInput{To: []string{"carol@example.com"}}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("outsider forward error = %v", err)
	}
	var verr *apperr.ValidationError
	if _, err := s.Forward(context.Background(), bob, orig.ID, ForwardInput{}); !errors.As(err, &verr) {
		t.Errorf("empty to error = %v", err)
	}
	var unresolved *apperr.UnresolvedRecipientError
	if _, err := s.Forward(context.Background(), alice, orig.ID, ForwardInput{To: []string{"ghost@nowhere.test"}}); !errors.As(err, &unresolved) {
		t.Errorf("ghost forward error = %v", err)
	}
	if len(store.messages) != before {
		t.Error("failed forwards must persist nothing")
	}
}

func TestUpdate(t *testing.T) {
	s, _ := newTestService()
	orig := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})

	p, err := ParsePatch(map[string]json.RawMessage{"isImportant": json.RawMessage("true")})
	if err != nil {
		t.Fatalf("ParsePatch() error = %v", err)
	}
	v, err := s.Update(context.Background(), bob, orig.ID, p)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !v.IsImportant || v.Version != 2 {
		t.Errorf("updated = important:%v version:%d", v.IsImportant, v.Version)
	}

	important, _ := s.List(context.Background(), bob, ListParams{Label: "important"})
	if important.Pagination.Total != 1 {
		t.Errorf("important view = %d, want 1", important.Pagination.Total)
	}
}

func TestUpdate_VersionConflict(t *testing.T) {
	s, _ := newTestService()
	orig := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})

	stale := int64(1)
	read := true
	if _, err := s.Update(context.Background(), bob, orig.ID, Patch{Flags: model.FlagPatch{IsRead: &read}, Version: &stale}); err != nil {
		t.Fatalf("first Update() error = %v", err)
	}
	if _, err := s.Update(context.Background(), bob, orig.ID, Patch{Flags: model.FlagPatch{IsRead: &read}, Version: &stale}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale version error = %v, want ErrConflict", err)
	}
}

func TestUpdate_AccessAndEmptyPatch(t *testing.T) {
	s, store := newTestService()
	orig := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})

	if _, err := s.Update(context.Background(), eve, orig.ID, Patch{}); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("outsider update error = %v", err)
	}
	if _, err := s.Update(context.Background(), bob, 999, Patch{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing update error = %v", err)
	}
	writes := store.writes
	if _, err := s.Update(context.Background(), alice, orig.ID, Patch{}); err != nil || store.writes != writes {
		t.Errorf("empty patch: err = %v, writes = %d", err, store.writes-writes)
	}
}

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch(map[string]json.RawMessage{
		"isRead":  json.RawMessage("false"),
		"version": json.RawMessage("3"),
	})
	if err != nil {
		t.Fatalf("ParsePatch() error = %v", err)
	}
	if p.Flags.IsRead == nil || *p.Flags.IsRead || p.Flags.IsImportant != nil || *p.Version != 3 {
		t.Errorf("patch = %+v", p)
	}

	bad := []map[string]json.RawMessage{
		{"from": json.RawMessage("9")},
		{"labels": json.RawMessage(`["inbox"]`)},
		{"isRead": json.RawMessage(`"yes"`)},
		{"isImportant": json.RawMessage("null")},
		{"version": json.RawMessage("0")},
	}
	for _, raw := range bad {
		var verr *apperr.ValidationError
		if _, err := ParsePatch(raw); !errors.As(err, &verr) {
			t.Errorf("ParsePatch(%v) error = %v, want ValidationError", raw, err)
		}
	}
}

func TestStats(t *testing.T) {
	s, _ := newTestService()
	a := send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})
	send(t, s, alice, CreateInput{To: []string{"bob@example.com"}})
	send(t, s, bob, CreateInput{IsDraft: true})
	if _, err := s.Get(context.Background(), bob, a.ID); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(context.Background(), bob)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := model.MessageStats{Inbox: 2, Unread: 1, Sent: 0, Drafts: 1}
	if *st != want {
		t.Errorf("Stats() = %+v, want %+v", *st, want)
	}
}

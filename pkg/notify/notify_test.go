package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordingChannel struct {
	name string
	err  error
	got  []Notification
}

func (r *recordingChannel) Name() string { return r.name }
func (r *recordingChannel) Send(ctx context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestDispatcherSendFansOutToAllChannels(t *testing.T) {
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	d := NewDispatcher(nil, a, b)

	d.Send(context.Background(), Notification{Title: "pool activated"})

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected both channels to receive the notification, got a=%d b=%d", len(a.got), len(b.got))
	}
}

func TestDispatcherSendContinuesPastChannelError(t *testing.T) {
	failing := &recordingChannel{name: "failing", err: errors.New("webhook down")}
	ok := &recordingChannel{name: "ok"}
	d := NewDispatcher(nil, failing, ok)

	// Must not panic, and the healthy channel must still receive the event.
	d.Send(context.Background(), Notification{Title: "x"})

	if len(ok.got) != 1 {
		t.Fatal("expected the healthy channel to still receive the notification after a sibling channel errored")
	}
}

func TestDiscordChannelUnconfiguredIsNoOp(t *testing.T) {
	ch := NewDiscordChannel("")
	if err := ch.Send(context.Background(), Notification{Title: "x"}); err != nil {
		t.Fatalf("expected an unconfigured webhook channel to no-op, got %v", err)
	}
}

func TestSlackChannelPostsToWebhookURL(t *testing.T) {
	var gotMethod, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewSlackChannel(srv.URL)
	if err := ch.Send(context.Background(), Notification{Title: "t", Body: "b", Severity: "warning"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Fatalf("expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected application/json content type, got %s", gotContentType)
	}
}

func TestWebhookChannelReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL)
	if err := ch.Send(context.Background(), Notification{Title: "x"}); err == nil {
		t.Fatal("expected an error for a non-2xx webhook response")
	}
}

func TestEmailChannelAlwaysSucceeds(t *testing.T) {
	ch := NewEmailChannel(nil)
	if err := ch.Send(context.Background(), Notification{UserID: "u1", Title: "t"}); err != nil {
		t.Fatalf("expected the email stub to never error, got %v", err)
	}
}

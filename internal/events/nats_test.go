package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"speech-transcript-service/internal/models"
)

// runServer starts an in-process NATS server on a random port.
func runServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestNewNATS_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  *NATSConfig
	}{
		{"nil", nil},
		{"disabled", &NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222"}},
		{"no url", &NATSConfig{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewNATS(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.conn != nil {
				t.Error("expected no connection when disabled")
			}
			if !p.Healthy() {
				t.Error("expected log-only publisher to be healthy")
			}
			if err := p.PublishFinal(context.Background(), "k", map[string]string{"text": "x"}); err != nil {
				t.Errorf("expected no error when disabled, got %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("expected no error on close, got %v", err)
			}
		})
	}
}

func TestNewNATS_ConnectFails(t *testing.T) {
	_, err := NewNATS(&NATSConfig{
		Enabled:        true,
		URL:            "nats://127.0.0.1:1",
		ConnectTimeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected connect error")
	}
}

func TestNATSPublisher_InvalidJSON(t *testing.T) {
	p, _ := NewNATS(nil)
	if err := p.PublishPartial(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	ns := runServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer sub.Close()

	msgs, err := sub.SubscribeSync("test.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Flush()

	p, err := NewNATS(&NATSConfig{
		Enabled:       true,
		URL:           ns.ClientURL(),
		SubjectPrefix: "test",
		Principal:     "test-svc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()

	if !p.Healthy() {
		t.Error("expected connected publisher to be healthy")
	}

	ctx := context.Background()
	p.PublishPartial(ctx, "sess-1", models.TranscriptPartial{EventType: models.EventTypePartial, SessionID: "sess-1", Text: "hel"})
	p.PublishFinal(ctx, "sess-1", models.TranscriptFinal{EventType: models.EventTypeFinal, SessionID: "sess-1", Text: "hello "})
	p.PublishSessionEnded(ctx, "sess-1", models.SessionEnded{EventType: models.EventTypeSessionEnded, SessionID: "sess-1"})

	want := []struct {
		subject   string
		eventType string
	}{
		{"test.partial", TypePartial},
		{"test.final", TypeFinal},
		{"test.session", TypeSessionEnded},
	}
	for _, w := range want {
		msg, err := msgs.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatalf("waiting for %s: %v", w.subject, err)
		}
		if msg.Subject != w.subject {
			t.Errorf("expected subject %s, got %s", w.subject, msg.Subject)
		}
		if got := msg.Header.Get("eventType"); got != w.eventType {
			t.Errorf("expected eventType header %s, got %s", w.eventType, got)
		}
		if got := msg.Header.Get("key"); got != "sess-1" {
			t.Errorf("expected key header sess-1, got %s", got)
		}
		if got := msg.Header.Get("principal"); got != "test-svc" {
			t.Errorf("expected principal header test-svc, got %s", got)
		}

		var body map[string]any
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if body["sessionId"] != "sess-1" {
			t.Errorf("expected sessionId in payload, got %v", body["sessionId"])
		}
	}
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	p, _ := NewNATS(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.PublishFinal(ctx, "k", map[string]string{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

package natsprovider

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/eternisai/enchanted-push/internal/logger"
	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/nats-io/nats.go"
)

var testConfig = push.Config{
	ProjectID:      "client-device-notification",
	AppID:          "1:257800168511:web:test",
	SenderID:       "257800168511",
	VAPIDPublicKey: "BHVX-test-key",
}

func TestSubjects(t *testing.T) {
	s := NewSubjects("", push.Config{ProjectID: "my.project"})

	if got := s.Issue(); got != "push.my_project.tokens.issue" {
		t.Errorf("unexpected issue subject %q", got)
	}
	if got := s.Revoke(); got != "push.my_project.tokens.revoke" {
		t.Errorf("unexpected revoke subject %q", got)
	}
	if got := s.Deliver("abc.def>"); got != "push.my_project.deliver.abc_def_" {
		t.Errorf("unexpected deliver subject %q", got)
	}
}

func TestRegistrarIssueAndRevoke(t *testing.T) {
	r := NewRegistrar(nil, NewSubjects("", testConfig), logger.Discard())

	first := r.Issue("device-1")
	if first == "" || r.Issue("device-1") != first {
		t.Fatal("expected a stable token per device")
	}
	if r.Issue("device-2") == first {
		t.Error("expected distinct tokens per device")
	}

	if !r.Revoke(first) {
		t.Error("expected revoke to find the token")
	}
	if r.Revoke(first) {
		t.Error("expected second revoke to report false")
	}
	if r.Issue("device-1") == first {
		t.Error("expected a fresh token after revocation")
	}
}

func TestToMessageUsesHeaderID(t *testing.T) {
	m := nats.NewMsg("push.x.deliver.t")
	m.Header.Set(HeaderMessageID, "m1")
	m.Data = []byte(`{"data":{}}`)

	msg := toMessage(m)
	if msg.ID != "m1" || string(msg.Data) != `{"data":{}}` {
		t.Errorf("unexpected message %+v", msg)
	}

	if generated := toMessage(&nats.Msg{Subject: "s"}); generated.ID == "" {
		t.Error("expected a generated message id")
	}
}

// TestRoundTrip needs a running server, e.g. NATS_URL=nats://127.0.0.1:4222.
func TestRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()

	subjects := NewSubjects("test-"+time.Now().Format("150405"), testConfig)
	registrar := NewRegistrar(nc, subjects, logger.Discard())
	go registrar.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	provider := NewProvider(Options{URL: url, Prefix: subjects.prefix}, logger.Discard())
	client, err := provider.Bootstrap(ctx, testConfig)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer client.Close()

	token, err := client.GetToken(ctx, push.TokenRequest{DeviceID: "device-1"})
	if err != nil || token == "" {
		t.Fatalf("get token: %q %v", token, err)
	}

	received := make(chan push.Message, 1)
	go client.Listen(ctx, func(ctx context.Context, msg push.Message) { received <- msg })
	time.Sleep(100 * time.Millisecond)

	if err := Publish(ctx, nc, subjects, token, []byte(`{"data":{}}`), "m1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-received:
		if msg.ID != "m1" {
			t.Errorf("expected m1, got %s", msg.ID)
		}
	case <-ctx.Done():
		t.Fatal("message not received")
	}

	deleted, err := client.DeleteToken(ctx)
	if err != nil || !deleted {
		t.Errorf("expected delete to succeed, got %v %v", deleted, err)
	}
}

package turntaking

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-voice/core/transport"
)

func TestTransportChannelFansOutToSubscribers(t *testing.T) {
	client := &fakeTransport{}
	channel := NewTransportChannel(client)

	var first, second []string
	unsubscribe := channel.Subscribe(transport.Handler{OnReply: func(r transport.Reply) { first = append(first, r.Text) }})
	channel.Subscribe(transport.Handler{OnReply: func(r transport.Reply) { second = append(second, r.Text) }})

	if err := channel.Connect(context.Background()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	client.setConnectivity(transport.Connected)
	if channel.Connectivity() != transport.Connected {
		t.Fatalf("expected connectivity to be tracked, got %q", channel.Connectivity())
	}

	client.reply(transport.Reply{Text: "one"})
	unsubscribe()
	unsubscribe()
	client.reply(transport.Reply{Text: "two"})

	if len(first) != 1 || first[0] != "one" {
		t.Fatalf("expected first subscriber to stop after unsubscribe, got %v", first)
	}
	if len(second) != 2 {
		t.Fatalf("expected second subscriber to get both replies, got %v", second)
	}
}

func TestTransportChannelSendBuildsMessage(t *testing.T) {
	client := &fakeTransport{}
	channel := NewTransportChannel(client)

	input := &fakeInput{devices: &devices{}}
	capture := NewAudioCaptureSession(input)
	if err := capture.Start(context.Background(), epoch); err != nil {
		t.Fatalf("expected capture to start, got %v", err)
	}
	input.feed(pcmFrame(500, 160))
	utterance, _ := capture.Stop(epoch)

	session, _ := NewSessionContext(WithAutoDetect(false), WithLanguage("gu-IN"))

	if err := channel.Send(utterance, session.Snapshot(), nil); !errors.Is(err, ErrTransportDisconnected) {
		t.Fatalf("expected ErrTransportDisconnected while down, got %v", err)
	}

	client.up.Store(true)
	var result error = errors.New("not called")
	if err := channel.Send(utterance, session.Snapshot(), func(err error) { result = err }); err != nil {
		t.Fatalf("expected send to be queued, got %v", err)
	}
	client.completeSend(nil)
	if result != nil {
		t.Fatalf("expected done(nil), got %v", result)
	}

	sent := client.sent()
	if len(sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sent))
	}
	if sent[0].Language != "gu-IN" || sent[0].AutoDetect || sent[0].SessionID != session.ID() {
		t.Fatalf("unexpected message metadata: %+v", sent[0])
	}
	if len(sent[0].Audio) != 44+320 {
		t.Fatalf("expected header plus 320 bytes, got %d", len(sent[0].Audio))
	}

	if err := channel.Send(nil, session.Snapshot(), nil); !errors.Is(err, ErrTransportSendFailed) {
		t.Fatalf("expected empty utterance to be refused, got %v", err)
	}
}

func TestTransportChannelWithoutClient(t *testing.T) {
	channel := NewTransportChannel(nil)
	if channel.Connected() {
		t.Fatalf("expected no connection")
	}
	if err := channel.Connect(context.Background()); !errors.Is(err, ErrTransportDisconnected) {
		t.Fatalf("expected ErrTransportDisconnected, got %v", err)
	}
	if err := channel.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
}

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"accessgate/cmd/access"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func sampleAttempt() access.AttemptLog {
	codeID := "01HZZZZZZZZZZZZZZZZZZZZZZZ"
	ip := "203.0.113.7"
	return access.AttemptLog{
		ID:           "01J00000000000000000000000",
		AccessCodeID: &codeID,
		Success:      false,
		Reason:       access.ReasonInvalidCode,
		PhoneNumber:  "+821012345678",
		Channel:      access.ChannelKakao,
		IPAddress:    &ip,
		CreatedAt:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w}

	if err := p.Publish(context.Background(), FromAttempt(sampleAttempt())); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages=%d want 1", len(w.msgs))
	}

	msg := w.msgs[0]
	if string(msg.Key) != "+821012345678" {
		t.Fatalf("key=%q", msg.Key)
	}
	if msg.Topic != "" {
		t.Fatalf("topic must come from the writer, got %q", msg.Topic)
	}

	var got map[string]any
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["reason"] != "INVALID_CODE" || got["channel"] != "KAKAO" || got["success"] != false {
		t.Fatalf("unexpected payload: %v", got)
	}
	if _, ok := got["userAgent"]; ok {
		t.Fatalf("nil user agent should be omitted: %v", got)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers[headerEventType] != eventType || headers[headerReason] != "INVALID_CODE" {
		t.Fatalf("headers=%v", headers)
	}
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := &KafkaPublisher{w: &recordingWriter{err: boom}}

	err := p.Publish(context.Background(), FromAttempt(sampleAttempt()))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &recordingWriter{}
	p := &KafkaPublisher{w: w}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: err=%v closed=%v", err, w.closed)
	}

	var nilPub *KafkaPublisher
	if err := nilPub.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{" ", ""}}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}, nil)
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	kw, ok := p.w.(*kafka.Writer)
	if !ok {
		t.Fatalf("writer type %T", p.w)
	}
	if kw.Topic != DefaultTopic {
		t.Fatalf("topic=%q want %q", kw.Topic, DefaultTopic)
	}
	_ = p.Close()
}

func TestNopPublisher(t *testing.T) {
	if err := (NopPublisher{}).Publish(context.Background(), Event{}); err != nil {
		t.Fatalf("NopPublisher: %v", err)
	}
}

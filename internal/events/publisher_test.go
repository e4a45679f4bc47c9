package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisherSendsEnvelope(t *testing.T) {
	client := &fakeSQS{}
	pub := NewSQSPublisher(client, "https://sqs.local/orders")
	entry := OutboxEntry{ID: uuid.New(), Aggregate: "order:r1", Type: "order_paid.v1", Payload: json.RawMessage(`{"order_id":"r1"}`)}

	if err := pub.Handle(context.Background(), entry); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("expected one message, got %d", len(client.inputs))
	}
	in := client.inputs[0]
	if aws.ToString(in.QueueUrl) != "https://sqs.local/orders" {
		t.Fatalf("unexpected queue %s", aws.ToString(in.QueueUrl))
	}
	var env Envelope
	if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &env); err != nil {
		t.Fatalf("body is not an envelope: %v", err)
	}
	if env.EventID != entry.ID || env.EventType != "order_paid.v1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if aws.ToString(in.MessageAttributes["event_type"].StringValue) != "order_paid.v1" {
		t.Fatalf("missing event_type attribute")
	}

	client.err = errors.New("throttled")
	if err := pub.Handle(context.Background(), entry); err == nil {
		t.Fatal("expected send error")
	}
}

func TestFanOutAndForTypes(t *testing.T) {
	var paid, all int
	fan := FanOut{
		HandlerFunc(func(context.Context, OutboxEntry) error { all++; return nil }),
		ForTypes(HandlerFunc(func(context.Context, OutboxEntry) error { paid++; return nil }), "order_paid.v1"),
		nil,
	}
	ctx := context.Background()
	_ = fan.Handle(ctx, OutboxEntry{Type: "order_submitted.v1"})
	_ = fan.Handle(ctx, OutboxEntry{Type: "order_paid.v1"})
	if all != 2 || paid != 1 {
		t.Fatalf("all=%d paid=%d", all, paid)
	}

	failing := FanOut{HandlerFunc(func(context.Context, OutboxEntry) error { return errors.New("boom") })}
	if err := failing.Handle(ctx, OutboxEntry{}); err == nil {
		t.Fatal("expected joined error")
	}
}

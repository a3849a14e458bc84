package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func sampleEvent() IngestEvent {
	return IngestEvent{
		Version:    EventVersion,
		RunID:      "run-1",
		Collection: "geo_features",
		Endpoint:   "http://localhost:7200/repositories/geo",
		QueryHash:  QueryHash("SELECT * WHERE { ?s ?p ?o }"),
		Rows:       5,
		Written:    3,
		Rejected:   2,
		TS:         time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestQueryHash_Stable(t *testing.T) {
	a := QueryHash("SELECT 1")
	if a == "" || a != QueryHash("SELECT 1") {
		t.Fatalf("hash not stable: %q", a)
	}
	if a == QueryHash("SELECT 2") {
		t.Fatalf("different queries must hash differently")
	}
}

func TestIngestEvent_Validate(t *testing.T) {
	if err := sampleEvent().Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	cases := map[string]func(*IngestEvent){
		"version":    func(e *IngestEvent) { e.Version = 2 },
		"collection": func(e *IngestEvent) { e.Collection = " " },
		"hash":       func(e *IngestEvent) { e.QueryHash = "" },
		"ts":         func(e *IngestEvent) { e.TS = time.Time{} },
		"negative":   func(e *IngestEvent) { e.Rejected = -1 },
		"overflow":   func(e *IngestEvent) { e.Written = 6 },
	}
	for name, mut := range cases {
		e := sampleEvent()
		mut(&e)
		if err := e.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	sp := mocks.NewSyncProducer(t, cfg)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "geo-ingest" {
			return fmt.Errorf("topic=%q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "geo_features" {
			return fmt.Errorf("key=%q err=%v", key, err)
		}
		val, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev IngestEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Written != 3 || ev.Rejected != 2 || ev.RunID != "run-1" {
			return fmt.Errorf("event=%+v", ev)
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(sp, "", nil)
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	boom := errors.New("broker down")
	sp.ExpectSendMessageAndFail(boom)

	p := NewKafkaPublisherWithProducer(sp, "events", nil)
	err := p.Publish(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	_ = p.Close()
}

func TestKafkaPublisher_InvalidEventNotSent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisherWithProducer(sp, "events", nil)

	ev := sampleEvent()
	ev.Collection = ""
	if err := p.Publish(context.Background(), ev); err == nil {
		t.Fatalf("expected validation error")
	}
	// no expectations were set, so Close reports any stray send
	_ = p.Close()
}

func TestNewKafkaPublisher_NoBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(Config{Topic: "x"}, nil); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), IngestEvent{}); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
}

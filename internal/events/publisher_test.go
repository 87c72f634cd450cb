package events

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	p.PublishItemReported(context.Background(), ItemEvent{ItemID: "item_1"})
	p.PublishClaimResolved(context.Background(), ClaimEvent{ClaimID: "claim_1"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close on nil publisher: %v", err)
	}
	if err := p.HealthCheck(); err != nil {
		t.Fatalf("HealthCheck on nil publisher: %v", err)
	}
}

func TestPublishWhileChannelSwapsIsSafe(t *testing.T) {
	p := &Publisher{exchange: "findr.events", url: "amqp://localhost"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.PublishClaimSubmitted(context.Background(), ClaimEvent{ClaimID: "claim_1", At: time.Now()})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			p.mu.Lock()
			p.channel = nil
			p.mu.Unlock()
		}
	}()
	wg.Wait()

	if err := p.HealthCheck(); err == nil {
		t.Fatal("expected health check to fail without a connection")
	}
}

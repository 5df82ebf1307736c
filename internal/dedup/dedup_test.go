package dedup

import (
	"testing"
	"time"
)

func TestAcquireSecondCallerIsRejectedWhileProcessing(t *testing.T) {
	idx := New(Options{})
	ok1, release := idx.Acquire("k1")
	if !ok1 {
		t.Fatalf("expected first acquire to succeed")
	}
	ok2, _ := idx.Acquire("k1")
	if ok2 {
		t.Fatalf("expected second acquire to be rejected while processing")
	}
	release()
	ok3, _ := idx.Acquire("k1")
	if !ok3 {
		t.Fatalf("expected acquire to succeed again after release")
	}
}

func TestMarkProcessedBlocksRetransmission(t *testing.T) {
	idx := New(Options{TTL: time.Minute})
	ok, release := idx.Acquire("msg-1")
	if !ok {
		t.Fatalf("expected acquire to succeed")
	}
	idx.MarkProcessed("msg-1")
	release()

	ok2, _ := idx.Acquire("msg-1")
	if ok2 {
		t.Fatalf("expected retransmission to be rejected after MarkProcessed")
	}
}

func TestTTLExpiryAllowsReprocessing(t *testing.T) {
	clock := time.Unix(1000, 0)
	idx := New(Options{TTL: time.Minute, Now: func() time.Time { return clock }})

	ok, release := idx.Acquire("msg-1")
	if !ok {
		t.Fatalf("expected acquire to succeed")
	}
	idx.MarkProcessed("msg-1")
	release()

	clock = clock.Add(2 * time.Minute)
	ok2, _ := idx.Acquire("msg-1")
	if !ok2 {
		t.Fatalf("expected reprocessing to be allowed after TTL expiry")
	}
}

func TestKeyUsesMessageIDWhenPresent(t *testing.T) {
	k1 := Key("telegram", "chat-1", "msg-1", "hello", 1000)
	k2 := Key("telegram", "chat-1", "msg-1", "different text", 2000)
	if k1 != k2 {
		t.Fatalf("expected same key when messageID matches regardless of text/timestamp")
	}
}

func TestKeySynthesizesHashWithoutMessageID(t *testing.T) {
	k1 := Key("telegram", "chat-1", "", "hello", 1000)
	k2 := Key("telegram", "chat-1", "", "hello", 2000)
	if k1 == k2 {
		t.Fatalf("expected distinct synthesized keys for distinct timestamps")
	}
}

func TestS1DuplicateMessageIDProcessedOnlyOnce(t *testing.T) {
	idx := New(Options{TTL: 5 * time.Minute})
	key := Key("discord", "chat-1", "evt-42", "hi", 1000)

	processed := 0
	for i := 0; i < 2; i++ {
		if ok, release := idx.Acquire(key); ok {
			processed++
			idx.MarkProcessed(key)
			release()
		}
	}
	if processed != 1 {
		t.Fatalf("expected exactly one processed event for duplicate messageId, got %d", processed)
	}
}

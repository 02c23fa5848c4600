package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduperAddRemove(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "owner", "k1")
	if err != nil || !added {
		t.Fatalf("first add = %v, %v", added, err)
	}
	added, err = deduper.Add(ctx, "owner", "k1")
	if err != nil || added {
		t.Fatalf("duplicate add = %v, %v", added, err)
	}
	added, err = deduper.Add(ctx, "other", "k1")
	if err != nil || !added {
		t.Fatalf("keys must be scoped per owner, got %v, %v", added, err)
	}
	if ttl := m.TTL("idem:owner:k1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := deduper.Remove(ctx, "owner", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err = deduper.Add(ctx, "owner", "k1")
	if err != nil || !added {
		t.Fatalf("add after remove = %v, %v", added, err)
	}

	m.FastForward(2 * time.Minute)
	if m.Exists("idem:other:k1") {
		t.Fatal("expected key to expire after ttl")
	}
}

package services

import (
	"errors"
	"sync"
	"testing"

	"github.com/chachabrian/mooveit-freight/internal/logger"
)

type fakeSub struct {
	id   string
	mu   sync.Mutex
	msgs [][]byte
	fail bool
}

func (f *fakeSub) ID() string { return f.id }

func (f *fakeSub) Send(msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("closed")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestRegistrySubscribePublish(t *testing.T) {
	r := NewChannelRegistry(logger.Discard())
	a, b := &fakeSub{id: "a"}, &fakeSub{id: "b"}

	r.Subscribe("booking:1", a)
	r.Subscribe("booking:1", a)
	r.Subscribe("booking:1", b)
	r.Subscribe("booking:2", b)

	if n := r.Count("booking:1"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	if chs := r.Channels(b); len(chs) != 2 {
		t.Fatalf("b channels = %v, want 2", chs)
	}
	if n := r.Publish("booking:1", []byte("x")); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	if a.count() != 1 {
		t.Fatalf("a received %d frames, want 1", a.count())
	}

	r.Unsubscribe("booking:1", a)
	r.Unsubscribe("booking:9", a)
	if n := r.Publish("booking:1", []byte("y")); n != 1 {
		t.Fatalf("delivered = %d after unsubscribe, want 1", n)
	}

	r.UnsubscribeAll(b)
	if r.Count("booking:1") != 0 || r.Count("booking:2") != 0 {
		t.Fatal("expected b removed from every channel")
	}
}

func TestRegistryReapsDeadSubscribers(t *testing.T) {
	r := NewChannelRegistry(logger.Discard())
	live, dead := &fakeSub{id: "live"}, &fakeSub{id: "dead", fail: true}
	r.Subscribe("admins", live)
	r.Subscribe("admins", dead)
	r.Subscribe("public", dead)

	if n := r.Publish("admins", []byte("x")); n != 1 {
		t.Fatalf("delivered = %d, want 1", n)
	}
	if r.Count("admins") != 1 || r.Count("public") != 0 {
		t.Fatal("dead subscriber should be reaped from every channel")
	}
}

func TestRegistryClose(t *testing.T) {
	r := NewChannelRegistry(logger.Discard())
	s := &fakeSub{id: "s"}
	r.Subscribe("public", s)
	r.Close()
	if r.Count("public") != 0 {
		t.Fatal("expected registry emptied on close")
	}
	if r.Subscribe("public", s) {
		t.Fatal("subscribe after close should fail")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewChannelRegistry(logger.Discard())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &fakeSub{id: string(rune('A' + i%26)) + string(rune('a'+i/26))}
			r.Subscribe("booking:1", s)
			r.Publish("booking:1", []byte("x"))
			r.UnsubscribeAll(s)
		}(i)
	}
	wg.Wait()
	if r.Count("booking:1") != 0 {
		t.Fatalf("count = %d, want 0", r.Count("booking:1"))
	}
}

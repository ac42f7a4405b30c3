package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chatspace/notify-server/internal/event"
)

func testEvent(id int64) *event.AppEvent {
	return &event.AppEvent{
		Type:    event.TypeNewMessage,
		Message: &event.Message{ID: id, ChatID: 1, SenderID: 2, Content: fmt.Sprintf("msg-%d", id)},
	}
}

func mustNext(t *testing.T, rc *Receiver) *event.AppEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := rc.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	return ev
}

func TestPublishWithoutSubscriberIsNoOp(t *testing.T) {
	r := New(0)

	// Should not panic or block.
	r.Publish(42, testEvent(1))

	if n := r.Receivers(42); n != 0 {
		t.Fatalf("expected no receivers, got %d", n)
	}
}

func TestSubscribeThenReceive(t *testing.T) {
	r := New(0)
	rc := r.Subscribe(7)
	defer rc.Close()

	r.Publish(7, testEvent(1))

	ev := mustNext(t, rc)
	if ev.Message.ID != 1 {
		t.Fatalf("expected message 1, got %d", ev.Message.ID)
	}
}

func TestTwoSessionsSameUserBothReceive(t *testing.T) {
	r := New(0)
	a := r.Subscribe(7)
	defer a.Close()
	b := r.Subscribe(7)
	defer b.Close()

	ev := testEvent(1)
	r.Publish(7, ev)

	gotA := mustNext(t, a)
	gotB := mustNext(t, b)

	// Both sessions see the same shared event instance, not a copy.
	if gotA != ev || gotB != ev {
		t.Fatal("both receivers should get the shared event instance")
	}
}

func TestNoBacklogForLateSubscriber(t *testing.T) {
	r := New(0)
	early := r.Subscribe(7)
	defer early.Close()

	r.Publish(7, testEvent(1))

	late := r.Subscribe(7)
	defer late.Close()

	// The early receiver has the event, the late one must not.
	mustNext(t, early)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := late.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("late subscriber should see nothing, got err=%v", err)
	}
}

func TestPerRecipientOrdering(t *testing.T) {
	r := New(0)
	rc := r.Subscribe(7)
	defer rc.Close()

	for i := int64(1); i <= 10; i++ {
		r.Publish(7, testEvent(i))
	}

	for i := int64(1); i <= 10; i++ {
		ev := mustNext(t, rc)
		if ev.Message.ID != i {
			t.Fatalf("expected message %d, got %d", i, ev.Message.ID)
		}
	}
}

func TestOverflowDropsOldestAndFlagsLagged(t *testing.T) {
	r := New(4)
	rc := r.Subscribe(7)
	defer rc.Close()

	for i := int64(1); i <= 6; i++ {
		r.Publish(7, testEvent(i))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := rc.Next(ctx); !errors.Is(err, ErrLagged) {
		t.Fatalf("expected ErrLagged after overflow, got %v", err)
	}
}

func TestSlowSubscriberDoesNotAffectOthers(t *testing.T) {
	r := New(2)
	slow := r.Subscribe(7)
	defer slow.Close()
	fast := r.Subscribe(7)
	defer fast.Close()

	// Overflow the slow receiver while draining the fast one.
	for i := int64(1); i <= 5; i++ {
		r.Publish(7, testEvent(i))
		ev := mustNext(t, fast)
		if ev.Message.ID != i {
			t.Fatalf("fast receiver: expected %d, got %d", i, ev.Message.ID)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := slow.Next(ctx); !errors.Is(err, ErrLagged) {
		t.Fatalf("slow receiver should be lagged, got %v", err)
	}
}

func TestCloseDetachesButKeepsEntry(t *testing.T) {
	r := New(0)
	rc := r.Subscribe(7)
	rc.Close()

	if n := r.Receivers(7); n != 0 {
		t.Fatalf("expected 0 receivers after close, got %d", n)
	}

	// Publishing to the now-empty entry is a no-op, not an error.
	r.Publish(7, testEvent(1))

	// A reconnect reuses the entry and receives fresh events.
	again := r.Subscribe(7)
	defer again.Close()
	r.Publish(7, testEvent(2))
	if ev := mustNext(t, again); ev.Message.ID != 2 {
		t.Fatalf("expected message 2, got %d", ev.Message.ID)
	}
}

func TestCloseIsIdempotentAndWakesNext(t *testing.T) {
	r := New(0)
	rc := r.Subscribe(7)

	done := make(chan error, 1)
	go func() {
		_, err := rc.Next(context.Background())
		done <- err
	}()

	// Give Next a moment to block.
	time.Sleep(20 * time.Millisecond)
	rc.Close()
	rc.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up after Close")
	}
}

func TestNextHonorsContextCancellation(t *testing.T) {
	r := New(0)
	rc := r.Subscribe(7)
	defer rc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := rc.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrentSubscribeSameUser(t *testing.T) {
	r := New(0)

	const n = 32
	var wg sync.WaitGroup
	receivers := make([]*Receiver, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receivers[i] = r.Subscribe(7)
		}(i)
	}
	wg.Wait()

	if got := r.Receivers(7); got != n {
		t.Fatalf("expected %d receivers on one shared entry, got %d", n, got)
	}

	r.Publish(7, testEvent(1))
	for _, rc := range receivers {
		mustNext(t, rc)
		rc.Close()
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	r := New(0)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Publisher hammers a range of users.
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := int64(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			i++
			r.Publish(i%8, testEvent(i))
		}
	}()

	// Subscribers churn concurrently.
	for u := int64(0); u < 8; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rc := r.Subscribe(u)
				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
				_, _ = rc.Next(ctx)
				cancel()
				rc.Close()
			}
		}(u)
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()
}

package docstore

import (
	"io"
	"log/slog"
	"testing"
)

func TestHubPublishCoalesces(t *testing.T) {
	h := NewHub()
	sub := h.subscribe("rex/entries")
	other := h.subscribe("rex/weights")

	h.Publish("rex/entries")
	h.Publish("rex/entries", "rex/entries/a")

	select {
	case <-sub.signal:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-sub.signal:
		t.Fatal("burst should collapse into one signal")
	default:
	}
	select {
	case <-other.signal:
		t.Fatal("unrelated topic was signalled")
	default:
	}

	if n := h.SubscriberCount(); n != 2 {
		t.Errorf("subscribers = %d, want 2", n)
	}
	h.unsubscribe(sub)
	h.unsubscribe(other)
	if n := h.SubscriberCount(); n != 0 {
		t.Errorf("subscribers after unsubscribe = %d, want 0", n)
	}
}

func TestRedisRelayHandle(t *testing.T) {
	h := NewHub()
	sub := h.subscribe("rex/entries")
	r := NewRedisRelay(nil, h, "pawlog:changes", slog.New(slog.NewTextHandler(io.Discard, nil)))

	r.handle(`{"origin":"` + r.origin + `","topics":["rex/entries"]}`)
	select {
	case <-sub.signal:
		t.Fatal("own message should be ignored")
	default:
	}

	r.handle(`not json`)
	r.handle(`{"origin":"another-process","topics":["rex/entries"]}`)
	select {
	case <-sub.signal:
	default:
		t.Fatal("foreign message should signal local watchers")
	}
}

package websocket

import (
	"context"
	"testing"
	"time"
)

func recvFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case f := <-c.send:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame queued")
		return frame{}
	}
}

func TestSwitchViewDropsFramesFromOldView(t *testing.T) {
	c := mockClient(NewHub(quietLogger(), nil))
	c.logger = quietLogger()

	streams := map[string]chan Message{
		"2024-05": make(chan Message, 1),
		"2024-06": make(chan Message, 1),
	}
	c.subscribe = func(_ context.Context, req Request) (<-chan Message, error) {
		return streams[req.Month], nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.switchView(ctx, Request{Month: "2024-05"})
	streams["2024-05"] <- Message{Type: TypeCalendar, Data: "may"}
	may := recvFrame(t, c)
	if !c.current(may) {
		t.Fatal("frame of the active view was dropped")
	}

	// May's frame is still queued when the client moves on to June.
	c.switchView(ctx, Request{Month: "2024-06"})
	if c.current(may) {
		t.Error("frame of the previous view would still be written")
	}

	streams["2024-06"] <- Message{Type: TypeCalendar, Data: "june"}
	if june := recvFrame(t, c); !c.current(june) {
		t.Error("frame of the new view was dropped")
	}
}

func TestFramesOutsideViewsAlwaysWritten(t *testing.T) {
	c := mockClient(NewHub(quietLogger(), nil))
	c.view.Store(7)
	if !c.current(frame{data: []byte(`{"type":"notice"}`)}) {
		t.Error("notice frame was dropped")
	}
}

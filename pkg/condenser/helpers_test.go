package condenser

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"contextcore/pkg/event"
	"contextcore/pkg/eventlog"
	"contextcore/pkg/view"
)

// convo is a log plus its current view.
type convo struct {
	t   *testing.T
	log *eventlog.Log
}

func newConvo(t *testing.T, events ...*event.Event) *convo {
	t.Helper()
	c := &convo{t: t, log: eventlog.New()}
	c.add(events...)
	return c
}

func (c *convo) add(events ...*event.Event) {
	c.t.Helper()
	for _, ev := range events {
		_, err := c.log.Append(ev)
		require.NoError(c.t, err)
	}
}

func (c *convo) commit(cond *event.Condensation) {
	c.t.Helper()
	ev, err := event.NewCondensation(*cond)
	require.NoError(c.t, err)
	c.add(ev)
}

func (c *convo) view() *view.View {
	c.t.Helper()
	all, err := c.log.All()
	require.NoError(c.t, err)
	return view.FromEvents(all)
}

func sys(id string) *event.Event {
	return event.Must(event.NewSystemPrompt("you are an agent", event.WithID(id)))
}

func user(id string) *event.Event {
	return event.Must(event.NewMessage(event.RoleUser, "msg "+id, event.WithID(id)))
}

func assistant(id, content string) *event.Event {
	return event.Must(event.NewMessage(event.RoleAssistant, content, event.WithID(id)))
}

func action(id, callID string) *event.Event {
	return event.Must(event.NewAction(event.Action{ToolName: "run", ToolCallID: callID, Arguments: map[string]any{"cmd": "make"}}, event.WithID(id)))
}

func batchAction(id, callID, batch string) *event.Event {
	return event.Must(event.NewAction(event.Action{ToolName: "run", ToolCallID: callID, BatchID: batch}, event.WithID(id)))
}

func observation(id, callID string) *event.Event {
	return event.Must(event.NewObservation("run", callID, "output of "+callID, event.WithID(id)))
}

func request(id string) *event.Event {
	return event.Must(event.NewCondensationRequest("user asked", event.WithID(id)))
}

// messages returns n user messages with ids prefix0..prefixN-1.
func messages(prefix string, n int) []*event.Event {
	out := make([]*event.Event, n)
	for i := range out {
		out[i] = user(fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func ids(v *view.View) []string {
	out := make([]string, 0, v.Len())
	for _, ev := range v.Events() {
		out = append(out, ev.ID)
	}
	return out
}

func texts(v *view.View) []string {
	out := make([]string, 0, v.Len())
	for _, ev := range v.Events() {
		out = append(out, ev.Text())
	}
	return out
}

func set(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

type recorded struct {
	condenser string
	outcome   string
	forgotten int
}

type fakeRecorder struct {
	obs []recorded
	mu  sync.Mutex
}

func (f *fakeRecorder) ObserveCondensation(condenser, outcome string, forgotten int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, recorded{condenser, outcome, forgotten})
}

package clocktower

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type push struct {
	connID string
	view   View
}

// recorder is a Pusher that keeps every projection it is handed.
type recorder struct {
	mu     sync.Mutex
	pushes []push
}

func (r *recorder) Push(connID string, view View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pushes = append(r.pushes, push{connID: connID, view: view})
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pushes = nil
}

func (r *recorder) all() []push {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]push, len(r.pushes))
	copy(out, r.pushes)
	return out
}

func (r *recorder) last(connID string) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.pushes) - 1; i >= 0; i-- {
		if r.pushes[i].connID == connID {
			return r.pushes[i].view, true
		}
	}
	return View{}, false
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// scriptedIDs hands out codes in order, then falls back to a counter.
// Participant ids always come from the counter.
func scriptedIDs(codes ...string) IDGenerator {
	var mu sync.Mutex
	n := 0
	return func(size int) (string, error) {
		mu.Lock()
		defer mu.Unlock()

		if size == CodeLength && len(codes) > 0 {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}
		n++
		return fmt.Sprintf("%0*d", size, n), nil
	}
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *recorder) {
	t.Helper()

	rec := &recorder{}
	opts = append([]Option{WithPusher(rec)}, opts...)
	return NewStore(DefaultCatalog(), opts...), rec
}

// hostedSession creates a session hosted by "host" with the given players
// joined in order, and clears recorded pushes.
func hostedSession(t *testing.T, s *Store, rec *recorder, players ...string) string {
	t.Helper()

	sess, err := s.Create("host", "Alice", []string{"Imp", "Baron"})
	require.NoError(t, err)

	for _, conn := range players {
		_, err := s.Join(sess.Code(), conn, "")
		require.NoError(t, err)
	}

	rec.reset()
	return sess.Code()
}

func playerID(t *testing.T, s *Store, code, connID string) string {
	t.Helper()

	v, err := s.View(code, connID)
	require.NoError(t, err)
	for _, p := range v.Players {
		if p.ConnectionID == connID {
			return p.ID
		}
	}
	t.Fatalf("no participant for connection %q", connID)
	return ""
}

func logTexts(v View) []string {
	out := make([]string, 0, len(v.Log))
	for _, e := range v.Log {
		out = append(out, e.Text)
	}
	return out
}

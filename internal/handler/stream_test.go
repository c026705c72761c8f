package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/quickeats/internal/domain/order"
)

type sseEvent struct {
	name string
	data string
}

type sseReader struct {
	t  *testing.T
	br *bufio.Reader
}

func openStream(t *testing.T, e *testEnv, path, token string) *sseReader {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return &sseReader{t: t, br: bufio.NewReader(resp.Body)}
}

// next returns the next event, skipping heartbeats.
func (s *sseReader) next() sseEvent {
	s.t.Helper()
	var ev sseEvent
	for {
		line, err := s.br.ReadString('\n')
		require.NoError(s.t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event: "):
			ev.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

// until reads events until one named name satisfies ok.
func (s *sseReader) until(name string, ok func(data string) bool) {
	s.t.Helper()
	for {
		ev := s.next()
		if ev.name == name && ok(ev.data) {
			return
		}
	}
}

func statusIs(want order.Status) func(string) bool {
	return func(data string) bool {
		var orders []order.Order
		if err := json.Unmarshal([]byte(data), &orders); err != nil || len(orders) != 1 {
			return false
		}
		return orders[0].Status == want
	}
}

func TestStreamMyOrders_Tracking(t *testing.T) {
	e := newTestEnv(t)
	placed, _ := placeOrder(t, e)

	stream := openStream(t, e, "/api/orders/stream?id="+placed.ID, "")
	stream.until("orders", statusIs(order.StatusConfirmed))

	resp := e.do(t, call{method: http.MethodPost, path: "/api/owner/orders/" + placed.ID + "/advance", token: "maddur"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream.until("orders", statusIs(order.StatusPreparing))
}

func TestStreamMyOrders_RequiresValidToken(t *testing.T) {
	e := newTestEnv(t)

	requireError(t, e.do(t, call{method: http.MethodGet, path: "/api/orders/stream", token: "bogus"}),
		http.StatusUnauthorized, "unauthenticated")
}

func TestStreamOwnerOrders_FollowsAssignments(t *testing.T) {
	e := newTestEnv(t)
	placed, _ := placeOrder(t, e)

	stream := openStream(t, e, "/api/owner/orders/stream", "swadh")
	stream.until("restaurants", func(data string) bool { return data == "[]" })

	resp := e.do(t, call{method: http.MethodPost, path: "/api/assign-owner", token: "admin",
		body: AssignOwnerRequest{RestaurantID: "Maddur Tiffins", Email: "boss@swadh.in"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stream.until("restaurants", func(data string) bool { return data == `["maddur-tiffins"]` })
	stream.until("orders", func(data string) bool {
		var orders []order.Order
		return json.Unmarshal([]byte(data), &orders) == nil && len(orders) == 1 && orders[0].ID == placed.ID
	})
}

func TestStreamOwnerOrders_Unauthenticated(t *testing.T) {
	e := newTestEnv(t)

	requireError(t, e.do(t, call{method: http.MethodGet, path: "/api/owner/orders/stream"}),
		http.StatusUnauthorized, "unauthenticated")
}

func TestCloseStreams(t *testing.T) {
	e := newTestEnv(t)
	stream := openStream(t, e, "/api/orders/stream", "customer")
	stream.until("orders", func(data string) bool { return data == "[]" })

	e.handler.CloseStreams()
	e.handler.CloseStreams()

	_, err := io.ReadAll(stream.br)
	require.NoError(t, err, "server ends the stream cleanly")
}

func TestEventStream_CoalescesPerEvent(t *testing.T) {
	s := newEventStream(nil)
	s.offer("orders", 1)
	s.offer("restaurants", "a")
	s.offer("orders", 2)

	queue, pending := s.take()
	assert.Equal(t, []string{"orders", "restaurants"}, queue)
	assert.Equal(t, 2, pending["orders"])

	queue, _ = s.take()
	assert.Empty(t, queue)
}

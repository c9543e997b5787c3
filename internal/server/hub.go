package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 16
	writeWait        = 10 * time.Second
)

// hub раздает события комментариев подписчикам поста
type hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan models.CommentEvent]struct{}
	closed      bool
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[string]map[chan models.CommentEvent]struct{}),
	}
}

// subscribe returns the event channel of postID and a function releasing it.
// The channel is closed on release or when the hub shuts down.
func (h *hub) subscribe(postID string) (<-chan models.CommentEvent, func()) {
	ch := make(chan models.CommentEvent, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if h.subscribers[postID] == nil {
		h.subscribers[postID] = make(map[chan models.CommentEvent]struct{})
	}
	h.subscribers[postID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subscribers[postID][ch]; !ok {
				return
			}
			delete(h.subscribers[postID], ch)
			if len(h.subscribers[postID]) == 0 {
				delete(h.subscribers, postID)
			}
			close(ch)
		})
	}
}

// publish never blocks: a subscriber with a full buffer misses the event.
func (h *hub) publish(ev models.CommentEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[ev.PostID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for postID, chans := range h.subscribers {
		for ch := range chans {
			close(ch)
		}
		delete(h.subscribers, postID)
	}
}

func (s *Server) postEvents(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["postId"]
	if _, err := s.storage.GetPost(r.Context(), postID); err != nil {
		s.fail(w, r, missing(err, "Post not found"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.log.Debug("Websocket upgrade failed", "post_id", postID, "error", err)
		return
	}
	defer conn.Close()

	events, release := s.hub.subscribe(postID)
	defer release()

	// Чтение нужно только для обнаружения закрытия соединения
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.log.Debug("Subscriber connected", "post_id", postID)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("Subscriber write failed", "post_id", postID, "error", err)
				return
			}
		case <-gone:
			s.log.Debug("Subscriber disconnected", "post_id", postID)
			return
		}
	}
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/metagraph-dev/metagraph/internal/web/response"
	"github.com/metagraph-dev/metagraph/internal/web/stream"
	"github.com/metagraph-dev/metagraph/internal/web/websocket"
	"github.com/metagraph-dev/metagraph/runtime/registry"
)

// keepAlive is how often an idle event stream gets a comment line
var keepAlive = 30 * time.Second

// events streams snapshot swaps as Server-Sent Events. The current
// snapshot is sent first. A slow client only sees the latest swap.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	updates := make(chan *registry.Snapshot, 1)
	unsubscribe := a.reg.Subscribe(func(snap *registry.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	s, err := stream.NewSSE(w)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	send := func(snap *registry.Snapshot) error {
		id := strconv.FormatUint(snap.Version(), 10)
		return s.WriteJSON(id, websocket.TypeSnapshot, newSnapshotEvent(snap))
	}
	if err := send(a.reg.Snapshot()); err != nil {
		return
	}

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-updates:
			if err := send(snap); err != nil {
				a.logger.Debug("event stream closed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := s.Comment("ping"); err != nil {
				return
			}
		}
	}
}

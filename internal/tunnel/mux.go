package tunnel

import (
	"context"
	"sync"

	"github.com/nullwave/edgetun/internal/mux"
)

// runMux feeds every WebSocket message into a fresh Mux engine for the
// life of the tunnel, draining the engine's outbound frame queue on a
// dedicated writer goroutine so frame order on the wire matches enqueue
// order.
func (s *session) runMux(initial []byte, responsePrefix []byte) {
	queue := mux.NewWriteQueue(responsePrefix)
	engine := mux.New(mux.Config{
		MaxSubrequests: s.d.cfg.MaxSubrequests,
		DoHEndpoint:    s.d.cfg.DoHEndpoint,
		ResponsePrefix: responsePrefix,
	}, queue, s.log)
	defer engine.Close()

	ctx, cancel := sessionContext()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.pumpMuxWrites(ctx, queue)
	}()

	if len(initial) > 0 {
		if err := engine.Feed(ctx, initial); err != nil {
			s.log.Warn("tunnel: mux feed failed", "error", err)
			cancel()
			wg.Wait()
			s.recordMuxTraffic(engine)
			return
		}
	}

	for {
		chunk, err := s.conn.ReadChunk()
		if err != nil {
			break
		}
		if feedErr := engine.Feed(ctx, chunk); feedErr != nil {
			s.log.Warn("tunnel: mux feed failed", "error", feedErr)
			break
		}
	}

	cancel()
	wg.Wait()
	s.recordMuxTraffic(engine)
}

// pumpMuxWrites drains the engine's write queue onto the WebSocket as each
// frame becomes available, stopping once ctx is cancelled or the WebSocket
// write fails.
func (s *session) pumpMuxWrites(ctx context.Context, queue *mux.WriteQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-queue.Signal:
		}

		for {
			frame, ok := queue.Dequeue()
			if !ok {
				break
			}
			if err := s.conn.WriteChunk(frame); err != nil {
				return
			}
		}
	}
}

func (s *session) recordMuxTraffic(engine *mux.Engine) {
	up, down := engine.TrafficTotals()
	s.addUplink(up)
	s.addDownlink(down)

	s.mu.Lock()
	s.rejected = engine.RejectedByBudget()
	s.mu.Unlock()
}

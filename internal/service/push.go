package service

import (
	"go-direct-chat/internal/apperr"
	"go-direct-chat/internal/codec"
	"go-direct-chat/internal/interfaces"
	"go-direct-chat/pkg/logger"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// pushAll queues data on every client concurrently and waits for all attempts. A failing client
// is logged and skipped; it never affects the others. Returns the number of accepted pushes.
func pushAll(clients []interfaces.Client, data []byte, event codec.EventType) int {
	var wg sync.WaitGroup
	var accepted atomic.Int32

	for _, client := range clients {
		wg.Add(1)
		go func(client interfaces.Client) {
			defer wg.Done()
			if err := client.QueueBytes(data); err != nil {
				logger.L.Warn("Live push failed",
					zap.String("event", string(event)),
					zap.Error(&apperr.PushError{ConnID: client.GetID(), UserID: client.GetUserID(), Err: err}))
				return
			}
			accepted.Add(1)
		}(client)
	}

	wg.Wait()
	return int(accepted.Load())
}

package relay

import (
	"context"
	"log"
	"time"
)

const sweepInterval = 60 * time.Second

// StartSweeper runs a background loop that reclaims rooms older than
// RoomTTL. Room teardown is otherwise lazy (leave only marks the terminal
// state), so the sweeper is what actually frees abandoned records.
func StartSweeper(ctx context.Context, rooms *Rooms, buffer *MessageBuffer) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] stopped")
			return
		case <-ticker.C:
			SweepExpired(ctx, rooms, buffer)
		}
	}
}

// SweepExpired deletes all rooms whose creation time is older than RoomTTL,
// along with their message buffers. Returns the number of rooms removed.
func SweepExpired(ctx context.Context, rooms *Rooms, buffer *MessageBuffer) int {
	cutoff := time.Now().Add(-RoomTTL)

	roomIDs, err := rooms.ExpiredBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[sweeper] list expired rooms: %v", err)
		return 0
	}

	removed := 0
	for _, roomID := range roomIDs {
		if err := rooms.Delete(ctx, roomID); err != nil {
			log.Printf("[sweeper] delete room %s: %v", roomID, err)
			continue
		}
		if buffer != nil {
			buffer.Remove(roomID)
		}
		removed++
	}

	if removed > 0 {
		log.Printf("[sweeper] reclaimed %d expired rooms", removed)
	}
	return removed
}

// The sweeper reclaims chat rooms that outlived their TTL. Room teardown
// in the protocol is lazy (leave_room only marks the terminal state), so
// a single sweeper instance per deployment does the actual deletion.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/backend/internal/relay"
)

func main() {
	log.Println("Starting Veilchat room sweeper...")

	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	rooms := relay.NewRooms(rdb)

	log.Printf("Veilchat room sweeper running")
	log.Printf("  redis_addr: %s", redisAddr)
	log.Printf("  room_ttl:   %s", relay.RoomTTL)

	ctx, stop := context.WithCancel(context.Background())
	go relay.StartSweeper(ctx, rooms, nil)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stop()
	_ = rdb.Close()
}

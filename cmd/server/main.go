package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilchat/backend/internal/abuse"
	"github.com/veilchat/backend/internal/audit"
	"github.com/veilchat/backend/internal/gateway"
	"github.com/veilchat/backend/internal/match"
	"github.com/veilchat/backend/internal/messaging"
	"github.com/veilchat/backend/internal/metrics"
	"github.com/veilchat/backend/internal/presence"
	"github.com/veilchat/backend/internal/queue"
	"github.com/veilchat/backend/internal/quota"
	"github.com/veilchat/backend/internal/ratelimit"
	"github.com/veilchat/backend/internal/relay"
	"github.com/veilchat/backend/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- Redis ---
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

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}
	natsConfig.Name = "veilchat-server"

	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Postgres (optional audit log) ---
	var auditStore *audit.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		auditStore, err = audit.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open audit store: %v", err)
		}
	}

	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "veilchat-1"
	}

	// --- Component wiring ---
	abuseRegistry := abuse.NewRegistry(rdb)
	queueStore := queue.NewStore(rdb, abuseRegistry)
	engine := match.NewEngine(queueStore)
	quotaTracker := quota.NewTracker(rdb)
	rooms := relay.NewRooms(rdb)
	buffer := relay.NewMessageBuffer()
	presenceStore := presence.NewStore(rdb, serverName)
	limiter := ratelimit.NewLimiter(rdb)

	gw := gateway.New(gateway.Config{
		Bus:      natsClient,
		Queue:    queueStore,
		Engine:   engine,
		Quota:    quotaTracker,
		Abuse:    abuseRegistry,
		Rooms:    rooms,
		Buffer:   buffer,
		Presence: presenceStore,
		Limiter:  limiter,
		Audit:    auditStore,
	})

	dispatcher := ws.NewMessageDispatcher(nil)
	gw.RegisterHandlers(dispatcher)

	server := ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)
	gw.SetEmitter(server)
	server.SetOnDisconnect(gw.HandleDisconnect)

	log.Printf("Veilchat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  server_name:     %s", serverName)
	log.Printf("  audit_store:     %v", auditStore != nil)

	gaugeCtx, stopGauges := context.WithCancel(context.Background())
	go pollGauges(gaugeCtx, queueStore, rooms)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)

		stopGauges()
		if err := server.Shutdown(); err != nil {
			log.Printf("server shutdown: %v", err)
		}
		natsClient.Close()
		if auditStore != nil {
			_ = auditStore.Close()
		}
		_ = rdb.Close()
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// pollGauges periodically refreshes the queue depth and room count gauges.
func pollGauges(ctx context.Context, queueStore *queue.Store, rooms *relay.Rooms) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	prefs := []queue.Preference{queue.PrefMale, queue.PrefFemale, queue.PrefAny}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, g := range queue.Genders {
				for _, p := range prefs {
					size, err := queueStore.Size(ctx, g, p)
					if err != nil {
						continue
					}
					metrics.QueueSize.WithLabelValues(string(g) + ":" + string(p)).Set(float64(size))
				}
			}

			count, err := rooms.ActiveCount(ctx)
			if err != nil {
				continue
			}
			metrics.ActiveRooms.Set(float64(count))
		}
	}
}

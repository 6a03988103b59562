package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"printshop/internal/audit"
	"printshop/internal/blob"
	"printshop/internal/cache"
	"printshop/internal/config"
	"printshop/internal/db"
	"printshop/internal/feed"
	"printshop/internal/identity"
	"printshop/internal/lifecycle"
	"printshop/internal/outbox"
	"printshop/internal/pricing"
	"printshop/internal/repository"
	"printshop/internal/server"
	"printshop/internal/store"
)

func main() {
	cfg := config.LoadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.NewDB(cfg.DSN, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("Error in connection to db: %v", err)
	}
	defer database.Close()

	orderRepo := repository.NewOrderRepository(database)
	shopRepo := repository.NewShopRepository(database)
	outboxRepo := repository.NewPostgresOutboxRepository(database)

	auditPool := audit.NewPool(
		audit.PoolConfig{BatchSize: 10, Timeout: 2 * time.Second, ChannelSize: 256},
		audit.NewDBProcessor(database),
		&audit.StdoutProcessor{},
	)
	auditPool.Start(ctx, 2)

	publisher, err := feed.NewSaramaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Fatalf("Error creating feed publisher: %v", err)
	}
	defer publisher.Close()

	poller := outbox.NewPoller(outboxRepo, publisher, time.Second, 100)
	go poller.Start(ctx)

	orders := store.New("")
	if err := orders.Load(ctx, orderRepo); err != nil {
		log.Fatalf("Error loading order snapshot: %v", err)
	}

	saramaCfg := sarama.NewConfig()
	go func() {
		err := feed.Subscribe(ctx, saramaCfg, cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic,
			orders.ApplyChange,
			func(error) { orders.MarkDegraded() },
		)
		if err != nil {
			log.Printf("Feed subscription ended: %v", err)
			orders.MarkDegraded()
		}
	}()

	files, err := blob.NewDiskStore(cfg.UploadDir, "/files", []byte(cfg.SignSecret))
	if err != nil {
		log.Fatalf("Error creating upload store: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	urlCache := cache.NewURLCache(redisClient, time.Hour)

	provider := identity.NewStaticProvider(cfg.AuthTokens)
	engine := lifecycle.NewEngine(orderRepo, shopRepo, pricing.NewService(), outbox.NewEnqueuer(outboxRepo), auditPool)

	srv := server.NewServer(engine, orders, shopRepo, files, urlCache, provider, auditPool, cfg)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.Handle("/files/", files.Handler("/files/"))

	log.Printf("Server listen on %s...", cfg.Addr())
	if err := http.ListenAndServe(cfg.Addr(), mux); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

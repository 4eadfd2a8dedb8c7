package config

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock returns the distributed lock client used to serialize batch
// jobs per scope. Nil until ConnectRedisWithRetry succeeds.
func GetRedisLock() *redislock.Client {
	return locker
}

const maxRedisAttempts = 5

// ConnectRedisWithRetry connects and sets the global redis client + lock
// client. Call from main() after the HTTP server is listening. Redis is
// optional: after maxRedisAttempts the clients stay nil and job locks
// degrade to best-effort.
func ConnectRedisWithRetry() {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		log.Printf("REDIS_ADDRESS not set; defaulting to %s", redisAddr)
	}

	ctx := context.Background()
	for attempt := 1; attempt <= maxRedisAttempts; attempt++ {
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			PoolSize: 100,
		})
		if err := client.Ping(ctx).Err(); err == nil {
			rdb = client
			locker = redislock.New(client)
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		} else {
			_ = client.Close()
			sleep := time.Second * time.Duration(1<<min(attempt, 5))
			if sleep > 30*time.Second {
				sleep = 30 * time.Second
			}
			log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
			time.Sleep(sleep)
		}
	}
	log.Printf("redis unavailable after %d attempts; continuing without job locks", maxRedisAttempts)
}

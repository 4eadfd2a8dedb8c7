package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var db *gorm.DB

// GetDB returns the process-wide handle set by ConnectDatabaseWithRetry.
// Components receive this handle by constructor injection; only main and the
// readiness gate consult the global.
func GetDB() *gorm.DB {
	return db
}

func init() {
	// Load env from .env. Do not block startup here waiting for the DB; the
	// HTTP server must start listening before dependencies are ready.
	godotenv.Load()
}

// ConnectDatabaseWithRetry connects and sets the global DB handle.
// Call from main() after the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		dbUser, dbPassword, dbHost, dbPort, dbName)

	var attempt int
	for {
		attempt++
		conn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err == nil {
			if err := conn.Use(otelgorm.NewPlugin()); err != nil {
				log.Printf("otelgorm plugin: %v", err)
			}
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				sqlDB.SetMaxOpenConns(envInt("DB_MAX_OPEN_CONNS", 50))
				sqlDB.SetMaxIdleConns(envInt("DB_MAX_IDLE_CONNS", 25))
				sqlDB.SetConnMaxLifetime(time.Duration(envInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second)
			}
			db = conn
			log.Printf("connected to database (attempt=%d host=%s db=%s)", attempt, dbHost, dbName)
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// SetDB overrides the global handle. Used by tests and one-off tooling.
func SetDB(conn *gorm.DB) {
	db = conn
}

// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/goldrush-io/goldrush/internal/auth"
	"github.com/goldrush-io/goldrush/internal/game"
	"github.com/goldrush-io/goldrush/internal/handlers"
	"github.com/goldrush-io/goldrush/internal/store"
)

func main() {
	if priv, pub := os.Getenv("SESSION_PRIVATE_KEY_FILE"), os.Getenv("SESSION_PUBLIC_KEY_FILE"); priv != "" && pub != "" {
		if err := auth.InitFromPath(priv, pub); err != nil {
			log.Fatalf("failed to load session keys: %v", err)
		}
	} else {
		auth.Init()
	}

	logger := logrus.New()
	if os.Getenv("DEBUG") != "" {
		logger.SetLevel(logrus.DebugLevel)
	}

	var st store.Store
	if os.Getenv("STORE") == "memory" {
		// Single-process mode; games do not survive a restart.
		st = store.NewMemory()
	} else {
		redisStore, err := store.ConnectRedis(context.Background())
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		st = redisStore
	}

	svc := game.NewService(st, logger)
	srv := handlers.NewServer(svc, logger)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, srv.Routes()); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/hust/bookingclient/adapters/tokenizer"
	"github.com/hust/bookingclient/config"
	"github.com/hust/bookingclient/logging"
	"github.com/hust/bookingclient/transport/http"
)

func main() {
	cfg, err := config.LoadFakeAPI()
	if err != nil {
		logging.New("error", os.Stderr).Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, os.Stderr)

	// Generate a new ECDSA key pair; tokens do not survive a restart
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		log.Error("failed to generate signing key", "error", err)
		os.Exit(1)
	}

	users := http.NewUserDirectory()
	if cfg.SeedEmail != "" {
		if _, err := users.Register(cfg.SeedEmail, "", "Demo User", cfg.SeedPassword); err != nil {
			log.Error("failed to seed user", "error", err)
			os.Exit(1)
		}
		log.Info("seeded user", "email", cfg.SeedEmail)
	}

	api := http.NewBookingAPI(tokenizer.NewJWTTokenizer(privateKey), users, http.Options{
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := http.SetupRouter(api)

	log.Info("booking api listening", "addr", cfg.Addr, "access_ttl", cfg.AccessTTL.String())
	if err := router.Run(cfg.Addr); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}

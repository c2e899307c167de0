package main

import (
	"github.com/cppla/forum/config"
	"github.com/cppla/forum/repository"
	"github.com/cppla/forum/routes"
	"github.com/cppla/forum/services"
	"github.com/cppla/forum/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	// Opens the store and runs the one-time migration
	db := config.InitDatabase()
	store := repository.NewStore(db, cfg.QueryTimeout)

	// Redis is optional: without it revocations live in memory and caching is off
	rc := utils.NewRedis(cfg)
	sessions := services.NewSessionManager(
		utils.NewTokenIssuer(cfg.JWTSecret),
		cfg.SessionTTL,
		utils.NewTokenBlacklist(rc),
		store.Users,
	)
	svc := services.NewForumService(store, sessions, utils.NewPasswordHasher(cfg.BcryptCost), services.Options{
		AvatarMaxBytes: cfg.AvatarMaxBytes,
		Cache:          utils.NewCache(rc),
	})

	r := routes.SetupRouter(cfg, svc)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

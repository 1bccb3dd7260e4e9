package main

import (
	"shopchat/internal/config"
	"shopchat/internal/db"
	clog "shopchat/internal/log"
	"shopchat/internal/server"
	"shopchat/internal/service"
	"shopchat/internal/store"
	"shopchat/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 负责加载配置、初始化日志、连接存储并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	generalLog, err := store.NewRedisGeneralLog(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.GeneralHistoryLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer generalLog.Close()

	msgLog := store.NewGormMessageLog(gdb)
	hub := ws.NewHub(msgLog, cfg.HistoryLimit, cfg.RetentionDays)
	presence := ws.NewPresenceActor(generalLog)
	go presence.Run()

	r := server.SetupRouter(cfg, hub, presence, service.NewHistoryService(msgLog))
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}

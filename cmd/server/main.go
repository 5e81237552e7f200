package main

import (
	"github.com/WIZARD3022/Crown-Fight/internal/config"
	"github.com/WIZARD3022/Crown-Fight/internal/db"
	clog "github.com/WIZARD3022/Crown-Fight/internal/log"
	"github.com/WIZARD3022/Crown-Fight/internal/server"
	"github.com/WIZARD3022/Crown-Fight/internal/store"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	st := store.NewGormStore(gdb, cfg.StoreTimeout)
	r := server.SetupRouter(cfg, st)
	log.Info().Str("bind", cfg.Bind).Str("port", cfg.Port).Msg("server starting")
	if err := r.Run(cfg.Bind + ":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}

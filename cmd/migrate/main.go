// Command migrate runs the legacy-to-canonical migration once and exits.
// Safe to re-run: already-migrated records are left untouched.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"go.uber.org/zap"

	"marketchat/internal/chat/repository"
	"marketchat/internal/config"
	"marketchat/internal/dbmongo"
	"marketchat/internal/dbmysql"
	"marketchat/internal/migrate"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "c", "./config.yml", "config file path")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("load config failed", zap.Error(err))
	}

	db, err := dbmysql.NewMySQL(cfg)
	if err != nil {
		log.Fatal("mysql init failed", zap.Error(err))
	}

	mc, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		log.Fatal("mongo init failed", zap.Error(err))
	}
	defer mc.Close(context.Background())

	engine := migrate.NewEngine(dbmongo.NewLegacySource(mc, cfg), repository.NewChatRepository(db), log)
	summary := engine.MigrateAll(context.Background())

	_ = json.NewEncoder(os.Stdout).Encode(summary)
}

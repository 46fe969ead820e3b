package main

import (
	"context"
	"fmt"
	"os"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	logsvc "github.com/onlineimmigrant/move-plan-next-sub025/services/logger"
	"github.com/onlineimmigrant/move-plan-next-sub025/storage/database"
	sqlxrepos "github.com/onlineimmigrant/move-plan-next-sub025/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	ctx := context.Background()

	logger := logsvc.NewRollbarLogger(logsvc.NewZap(conf), conf)
	defer logger.Sync()

	// set up DB
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	cli := &commandLine{
		db:      db.DB,
		usrRepo: sqlxrepos.NewUserRepository(db),
		orgRepo: sqlxrepos.NewOrgRepository(db),
		logger:  logger,
	}
	err = cli.root().ExecuteContext(ctx)
	_ = db.Close()
	if err != nil {
		os.Exit(1)
	}
}

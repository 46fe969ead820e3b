package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/onlineimmigrant/move-plan-next-sub025/apps/api/echo"
	"github.com/onlineimmigrant/move-plan-next-sub025/core"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/billing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/blog"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/campaign"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/file"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/meeting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/org"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/pricing"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/quiz"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/setting"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/table"
	"github.com/onlineimmigrant/move-plan-next-sub025/core/user"
	appfs "github.com/onlineimmigrant/move-plan-next-sub025/fs"
	cachesvc "github.com/onlineimmigrant/move-plan-next-sub025/services/cache"
	emailsvc "github.com/onlineimmigrant/move-plan-next-sub025/services/email"
	logsvc "github.com/onlineimmigrant/move-plan-next-sub025/services/logger"
	mediasvc "github.com/onlineimmigrant/move-plan-next-sub025/services/media"
	"github.com/onlineimmigrant/move-plan-next-sub025/services/metrics"
	paymentsvc "github.com/onlineimmigrant/move-plan-next-sub025/services/payment"
	searchsvc "github.com/onlineimmigrant/move-plan-next-sub025/services/search"
	storagesvc "github.com/onlineimmigrant/move-plan-next-sub025/services/storage"
	videosvc "github.com/onlineimmigrant/move-plan-next-sub025/services/video"
	"github.com/onlineimmigrant/move-plan-next-sub025/storage/database"
	sqlxrepos "github.com/onlineimmigrant/move-plan-next-sub025/storage/database/sqlx"
)

// TODO:
// - APM/Tracing
// - CSRF on the cookie based frontend
func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	logger := logsvc.NewRollbarLogger(logsvc.NewZap(conf), conf)
	defer logger.Sync()

	// set up DB
	db, err := setUpDB(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	cache, closeCache := cachesvc.New(ctx, conf, logger)
	defer func() { _ = closeCache() }()

	// set up external services
	mailSvc, err := emailsvc.New(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up email service: %v", err), err)
	}
	mailSvc = metrics.InstrumentEmail(mailSvc, logger)

	blobs, err := storagesvc.NewAzureStorage(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	if err = blobs.EnsureContainer(ctx); err != nil {
		logger.Warn(fmt.Sprintf("file storage container: %v", err), err)
	}

	var indexer blog.Indexer
	if len(conf.Search.Addresses) > 0 {
		es, err := searchsvc.NewClient(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up search: %v", err), err)
		}
		indexer = searchsvc.NewPostIndex(es, conf)
	}

	// set up services
	pricingSvc := pricing.NewService(sqlxrepos.NewPricingRepository(db))
	deps := echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     user.NewService(sqlxrepos.NewUserRepository(db), mailSvc, conf, logger),
		OrgSvc:      org.NewService(sqlxrepos.NewOrgRepository(db)),
		SettingSvc:  setting.NewService(sqlxrepos.NewSettingRepository(db)),
		PricingSvc:  pricingSvc,
		BillingSvc:  billing.NewService(sqlxrepos.NewBillingRepository(db), paymentsvc.NewStripeGateway(conf, nil), pricingSvc, logger),
		BlogSvc:     blog.NewService(sqlxrepos.NewBlogRepository(db), indexer, logger),
		QuizSvc:     quiz.NewService(sqlxrepos.NewQuizRepository(db), logger),
		CampaignSvc: campaign.NewService(sqlxrepos.NewCampaignRepository(db), mailSvc, cache, conf, logger, campaign.OnBatch(metrics.ObserveBatch)),
		MeetingSvc:  meeting.NewService(sqlxrepos.NewMeetingRepository(db), videosvc.NewDailyProvider(conf), conf, logger),
		FileSvc:     file.NewService(sqlxrepos.NewFileRepository(db), blobs, mediasvc.NewFFmpegTrimmer(conf, logger), conf, logger),
		TableSvc:    table.NewService(sqlxrepos.NewTableRepository(db), cache, conf, logger),
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	deps.Validate = validator.New()
	deps.Translator = newTranslator()
	core.InitValidators(deps.Validate, deps.Translator)
	user.InitValidators(deps.Validate, deps.Translator)

	core.ParseEmailTemplates(appfs.FS, "templates/email", conf, logger)

	user.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt", logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus collectors of services/metrics.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(deps)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, found := uni.GetTranslator("en")
	if !found {
		log.Fatal("english translator not found")
	}
	return translator
}

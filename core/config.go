package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName                   string
		Build                     string
		Env                       string // DEV (local; default), TEST, QA, PROD
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		DefaultFromEmail          string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string

		Server    ServerConfig
		Database  DatabaseConfig
		Log       LogConfig
		Email     EmailConfig
		Redis     RedisConfig
		Stripe    StripeConfig
		Video     VideoConfig
		Storage   StorageConfig
		Search    SearchConfig
		Media     MediaConfig
		Admin     AdminConfig
		RateLimit RateLimitConfig
	}

	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
		// TrustProxy takes client IPs from X-Forwarded-For set by a proxy on a private network.
		TrustProxy bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	LogConfig struct {
		Level      string // debug, info, warn, error
		Format     string // console, json
		File       string // optional rotating file sink
		MaxSizeMB  int
		MaxBackups int
	}

	EmailConfig struct {
		Provider          string // console, sendgrid, ses
		SendgridAPIKey    string
		SESRegion         string
		CampaignBatchSize int
	}

	RedisConfig struct {
		Address        string // empty disables redis
		Password       string
		DB             int
		SchemaCacheTTL time.Duration
	}

	StripeConfig struct {
		SecretKey     string
		WebhookSecret string
	}

	VideoConfig struct {
		BaseURL string
		APIKey  string
		RoomTTL time.Duration
	}

	StorageConfig struct {
		ConnectionString string
		Container        string
		MaxShareTTL      time.Duration
	}

	SearchConfig struct {
		Addresses []string // empty disables post indexing
		Username  string
		Password  string
		PostIndex string
	}

	MediaConfig struct {
		FFmpegPath      string
		MaxTrimDuration time.Duration
	}

	AdminConfig struct {
		Tables []string // tables exposed by the generic admin CRUD
	}

	RateLimitConfig struct {
		RPS   float64
		Burst int
	}
)

// Address returns the host:port of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// FromAddress parses DefaultFromEmail; an invalid value falls back to a bare address.
func (c *Config) FromAddress() mail.Address {
	addr, err := mail.ParseAddress(c.DefaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// NewConfig loads the configuration of the current ENV from defaults, the optional
// config/.env.<env> file and the environment (prefixed with the env name, eg. DEV_DEBUG).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return fromViper(v, env)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("appName", "MovePlan")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "k2v!7w$-ox^8ts%c0z+q3r)nmd6@b4y_#h9je1agp5(lfu")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.trustProxy", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "moveplan")
	v.SetDefault("database.user", "moveplan")
	v.SetDefault("database.password", "moveplan")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 100)
	v.SetDefault("log.maxBackups", 5)

	v.SetDefault("email.provider", "console")
	v.SetDefault("email.sendgridAPIKey", "")
	v.SetDefault("email.sesRegion", "us-east-1")
	v.SetDefault("email.campaignBatchSize", 50)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.schemaCacheTTL", 5*time.Minute)

	v.SetDefault("stripe.secretKey", "")
	v.SetDefault("stripe.webhookSecret", "")

	v.SetDefault("video.baseURL", "https://api.daily.co/v1")
	v.SetDefault("video.apiKey", "")
	v.SetDefault("video.roomTTL", 3*time.Hour)

	// azurite
	v.SetDefault("storage.connectionString", "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;"+
		"AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;"+
		"BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;")
	v.SetDefault("storage.container", "files")
	v.SetDefault("storage.maxShareTTL", 7*24*time.Hour)

	v.SetDefault("search.addresses", []string{})
	v.SetDefault("search.username", "")
	v.SetDefault("search.password", "")
	v.SetDefault("search.postIndex", "posts")

	v.SetDefault("media.ffmpegPath", "ffmpeg")
	v.SetDefault("media.maxTrimDuration", 30*time.Minute)

	v.SetDefault("admin.tables", []string{
		"organizations", "settings", "products", "plans", "features", "plan_features",
		"posts", "quizzes", "questions", "choices", "email_templates", "campaigns",
		"meeting_rooms", "files", "transactions", "subscriptions",
	})

	v.SetDefault("rateLimit.rps", 1.0)
	v.SetDefault("rateLimit.burst", 5)
}

func fromViper(v *viper.Viper, env string) *Config {
	return &Config{
		AppName:                   v.GetString("appName"),
		Build:                     v.GetString("build"),
		Env:                       env,
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          v.GetString("defaultFromEmail"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
			TrustProxy:                v.GetBool("server.trustProxy"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.maxSizeMB"),
			MaxBackups: v.GetInt("log.maxBackups"),
		},
		Email: EmailConfig{
			Provider:          strings.ToLower(v.GetString("email.provider")),
			SendgridAPIKey:    v.GetString("email.sendgridAPIKey"),
			SESRegion:         v.GetString("email.sesRegion"),
			CampaignBatchSize: v.GetInt("email.campaignBatchSize"),
		},
		Redis: RedisConfig{
			Address:        v.GetString("redis.address"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			SchemaCacheTTL: v.GetDuration("redis.schemaCacheTTL"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secretKey"),
			WebhookSecret: v.GetString("stripe.webhookSecret"),
		},
		Video: VideoConfig{
			BaseURL: strings.TrimRight(v.GetString("video.baseURL"), "/"),
			APIKey:  v.GetString("video.apiKey"),
			RoomTTL: v.GetDuration("video.roomTTL"),
		},
		Storage: StorageConfig{
			ConnectionString: v.GetString("storage.connectionString"),
			Container:        v.GetString("storage.container"),
			MaxShareTTL:      v.GetDuration("storage.maxShareTTL"),
		},
		Search: SearchConfig{
			Addresses: v.GetStringSlice("search.addresses"),
			Username:  v.GetString("search.username"),
			Password:  v.GetString("search.password"),
			PostIndex: v.GetString("search.postIndex"),
		},
		Media: MediaConfig{
			FFmpegPath:      v.GetString("media.ffmpegPath"),
			MaxTrimDuration: v.GetDuration("media.maxTrimDuration"),
		},
		Admin: AdminConfig{
			Tables: v.GetStringSlice("admin.tables"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("rateLimit.rps"),
			Burst: v.GetInt("rateLimit.burst"),
		},
	}
}

// String hides secrets; used when logging the startup configuration.
func (c *Config) String() string {
	return fmt.Sprintf("app=%s build=%s env=%s debug=%t addr=%s db=%s/%s email=%s",
		c.AppName, c.Build, c.Env, c.Debug, c.Server.Address, c.Database.Address(), c.Database.Name, c.Email.Provider)
}

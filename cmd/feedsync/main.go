package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/logutils"
	"github.com/hellofresh/health-go/v5"
	"github.com/kelseyhightower/envconfig"
	_ "github.com/mattn/go-sqlite3"
	"github.com/piraces/feedsync/internal/handlers"
	"github.com/piraces/feedsync/pkg/custom_cache"
	"github.com/piraces/feedsync/pkg/feed"
	"github.com/piraces/feedsync/pkg/helpers"
	"github.com/piraces/feedsync/pkg/new/adapters"
	"github.com/piraces/feedsync/pkg/new/adapters/listeners"
	"github.com/piraces/feedsync/pkg/new/adapters/pubsub"
	"github.com/piraces/feedsync/pkg/new/app"
	"github.com/piraces/feedsync/pkg/new/domain"
	"github.com/piraces/feedsync/pkg/new/domain/entity"
	domainfeed "github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/piraces/feedsync/pkg/new/ports"
	portspubsub "github.com/piraces/feedsync/pkg/new/ports/pubsub"
	"github.com/piraces/feedsync/scripts"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command line flags.
var (
	dsn = flag.String("dsn", "", "datasource name")
)

const (
	defaultCallbackPath = "/push"
	shutdownTimeout     = 30 * time.Second
)

type Config struct {
	ServiceURL         string        `envconfig:"SERVICE_URL" required:"true"`
	DocumentFeedPath   string        `envconfig:"DOCUMENT_FEED_PATH" default:"feeds/documents"`
	AttachmentFeedPath string        `envconfig:"ATTACHMENT_FEED_PATH" default:"feeds/attachments"`
	CommentFeedPath    string        `envconfig:"COMMENT_FEED_PATH" default:"feeds/comments"`
	ListenAddress      string        `envconfig:"LISTEN_ADDRESS" default:":8080"`
	CallbackURL        string        `envconfig:"CALLBACK_URL" required:"true"`
	HubURL             string        `envconfig:"HUB_URL" default:""`
	HubSecret          string        `envconfig:"HUB_SECRET" default:""`
	LeaseSeconds       int           `envconfig:"LEASE_SECONDS" default:"86400"`
	HubFailureFallback bool          `envconfig:"HUB_FAILURE_FALLBACK" default:"true"`
	PaginationSize     int           `envconfig:"PAGINATION_SIZE" default:"0"`
	MaxCrawlPages      int           `envconfig:"MAX_CRAWL_PAGES" default:"100"`
	CrawlTimeout       time.Duration `envconfig:"CRAWL_TIMEOUT" default:"5m"`
	BackfillWindow     time.Duration `envconfig:"BACKFILL_WINDOW" default:"0s"`
	DispatchWorkers    int           `envconfig:"DISPATCH_WORKERS" default:"1"`
	CatchUpOnStart     bool          `envconfig:"CATCH_UP_ON_START" default:"true"`
	CatchUpInterval    time.Duration `envconfig:"CATCH_UP_INTERVAL" default:"30m"`
	DatabaseDirectory  string        `envconfig:"DB_DIR" default:"db/feedsync.sqlite"`
	RedisAddress       string        `envconfig:"REDIS_ADDRESS" default:""`
	HubCacheTTL        time.Duration `envconfig:"HUB_CACHE_TTL" default:"24h"`
	HTTPTimeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	HTTPMaxRetries     int           `envconfig:"HTTP_MAX_RETRIES" default:"3"`
	Version            string        `envconfig:"VERSION" default:"unknown"`
}

func CreateHealthCheck(version string, intents *adapters.IntentStorage) *health.Health {
	h, err := health.New(health.WithComponent(health.Component{
		Name:    "feedsync",
		Version: version,
	}), health.WithChecks(health.Config{
		Name:      "self",
		Timeout:   time.Second * 5,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			return nil
		},
	}, health.Config{
		Name:      "sqlite",
		Timeout:   time.Second * 5,
		SkipOnErr: false,
		Check: func(ctx context.Context) error {
			return intents.Ping()
		},
	},
	))
	if err != nil {
		log.Fatalf("[FATAL] failed to create the health check: %v", err)
	}
	return h
}

func ConfigureLogging() {
	filter := &logutils.LevelFilter{
		Levels:   []logutils.LogLevel{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"},
		MinLevel: logutils.LogLevel(os.Getenv("LOG_LEVEL")),
		Writer:   os.Stderr,
	}
	log.SetOutput(filter)
}

func main() {
	flag.Parse()
	ConfigureLogging()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("[FATAL] couldn't process envconfig: %v", err)
	}
	log.Printf("[INFO] Running VERSION %s:\n - DSN=%s\n - DB_DIR=%s\n - SERVICE_URL=%s\n\n", config.Version, *dsn, config.DatabaseDirectory, config.ServiceURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

func run(ctx context.Context, config Config) error {
	db := InitDatabase(config)
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			log.Printf("[ERROR] failed to close the database connection: %v", err)
		}
	}(db)

	intents := adapters.NewIntentStorage(db)
	healthCheck := CreateHealthCheck(config.Version, intents)

	downloader := feed.NewDownloader(&http.Client{Timeout: config.HTTPTimeout}, config.HTTPMaxRetries)

	subscriptions, err := buildSubscriptions(config)
	if err != nil {
		return errors.Wrap(err, "invalid feed configuration")
	}

	callback, err := domainfeed.NewAddress(config.CallbackURL)
	if err != nil {
		return errors.Wrap(err, "invalid CALLBACK_URL")
	}

	var secret domain.Secret
	if config.HubSecret != "" {
		secret, err = domain.NewSecret(config.HubSecret)
		if err != nil {
			return errors.Wrap(err, "invalid HUB_SECRET")
		}
	}

	var hubOverride domainfeed.Address
	if config.HubURL != "" {
		hubOverride, err = domainfeed.NewAddress(config.HubURL)
		if err != nil {
			return errors.Wrap(err, "invalid HUB_URL")
		}
	}

	hubCache, err := newHubCache(ctx, config)
	if err != nil {
		return errors.Wrap(err, "error creating the hub cache")
	}

	registry := listeners.NewRegistry()
	dispatcher := listeners.NewDispatcher(registry, config.DispatchWorkers)
	defer dispatcher.Close()

	engine, err := app.NewEngine(
		app.EngineConfig{
			Subscriptions:      subscriptions,
			PageSize:           resolvePaginationSize(ctx, config, downloader),
			HubFailureFallback: config.HubFailureFallback,
			StartTime:          time.Now().Add(-config.BackfillWindow),
			MaxCrawlPages:      config.MaxCrawlPages,
			CrawlTimeout:       config.CrawlTimeout,
		},
		feed.NewTransport(downloader),
		adapters.NewCursorStorage(),
		entity.NewFactory(),
		registry,
		dispatcher,
	)
	if err != nil {
		return errors.Wrap(err, "error creating the engine")
	}

	discovery := feed.NewDiscovery(downloader, hubOverride, hubCache)
	subscriber := adapters.NewWebSubSubscriber(&http.Client{Timeout: config.HTTPTimeout}, callback, secret, config.LeaseSeconds, intents)

	application := app.App{
		Engine:           engine,
		SubscribeFeeds:   app.NewHandlerSubscribeFeeds(engine.Subscriptions(), discovery, subscriber),
		UnsubscribeFeeds: app.NewHandlerUnsubscribeFeeds(engine.Subscriptions(), discovery, subscriber),
	}

	listener := newLoggingListener()
	for _, kind := range domainfeed.Kinds {
		if err := application.Engine.AddListener(kind, listener); err != nil {
			return errors.Wrapf(err, "error adding the %s listener", kind)
		}
	}
	defer application.Engine.RemoveListener(listener)

	deliveries := pubsub.NewDeliveryReceivedPubSub()

	router := mux.NewRouter()
	router.Path(callbackPath(callback)).HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		handlers.HandlePush(writer, request, intents, secret, deliveries)
	})
	router.Path("/healthz").HandlerFunc(healthCheck.HandlerFunc)
	router.Path("/metrics").Handler(promhttp.Handler())

	server := &http.Server{
		Addr:              config.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("[INFO] listening on %s", config.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] server terminated: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		portspubsub.NewReceivedDeliverySubscriber(deliveries, application.Engine).Run(ctx)
	}()

	if err := application.SubscribeFeeds.Handle(ctx); err != nil {
		log.Printf("[WARN] not all feeds are subscribed, entries of those feeds are only found by catching up: %v", err)
	}

	if config.CatchUpOnStart {
		if err := application.Engine.CatchUpAll(ctx); err != nil {
			log.Printf("[ERROR] initial catch up failed: %v", err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		ports.NewCatchUpTimer(application.Engine, config.CatchUpInterval).Run(ctx)
	}()

	<-ctx.Done()
	log.Printf("[INFO] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.UnsubscribeFeeds.Handle(shutdownCtx); err != nil {
		log.Printf("[WARN] unsubscribing failed: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] failed to shut down the server: %v", err)
	}

	wg.Wait()
	return nil
}

func buildSubscriptions(config Config) ([]domainfeed.Subscription, error) {
	paths := []struct {
		kind domainfeed.Kind
		path string
	}{
		{domainfeed.KindDocument, config.DocumentFeedPath},
		{domainfeed.KindAttachment, config.AttachmentFeedPath},
		{domainfeed.KindComment, config.CommentFeedPath},
	}

	var subscriptions []domainfeed.Subscription
	for _, p := range paths {
		if p.path == "" {
			log.Printf("[INFO] no path configured for the %s feed, skipping it", p.kind)
			continue
		}

		rawAddress, err := helpers.UrlJoin(config.ServiceURL, p.path)
		if err != nil {
			return nil, errors.Wrapf(err, "error joining the %s feed path", p.kind)
		}

		address, err := domainfeed.NewAddress(rawAddress)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s feed address", p.kind)
		}

		subscription, err := domainfeed.NewSubscription(p.kind, address)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}

// resolvePaginationSize uses the configured page size or asks the service for
// it. The page size is read only once, if the service changes it while
// running incomplete deliveries may be detected wrongly.
func resolvePaginationSize(ctx context.Context, config Config, downloader *feed.Downloader) int {
	if !config.HubFailureFallback || config.PaginationSize > 0 {
		return config.PaginationSize
	}

	size, err := feed.FetchPaginationSize(ctx, downloader, config.ServiceURL)
	if err != nil {
		log.Printf("[WARN] failed to get the pagination size, incomplete deliveries won't be detected: %v", err)
		return 0
	}

	log.Printf("[INFO] using pagination size %d of the service", size)
	return size
}

func newHubCache(ctx context.Context, config Config) (feed.HubCache, error) {
	if config.RedisAddress != "" {
		return custom_cache.NewRedisCache(config.RedisAddress, config.HubCacheTTL), nil
	}
	return custom_cache.NewMemoryCache(ctx, config.HubCacheTTL)
}

func callbackPath(callback domainfeed.Address) string {
	u, err := url.Parse(callback.String())
	if err != nil || u.Path == "" || u.Path == "/" {
		return defaultCallbackPath
	}
	return u.Path
}

func InitDatabase(config Config) *sql.DB {
	finalConnection := dsn
	if *dsn == "" {
		log.Print("[INFO] dsn required is not present... defaulting to DB_DIR")
		finalConnection = &config.DatabaseDirectory
	}

	// Create empty dir if not exists
	dbPath := path.Dir(*finalConnection)
	err := os.MkdirAll(dbPath, 0770)
	if err != nil {
		log.Printf("[INFO] unable to initialize DB_DIR at: %s. Error: %v", dbPath, err)
	}

	// Connect to SQLite database.
	sqlDb, err := sql.Open("sqlite3", *finalConnection)
	if err != nil {
		log.Fatalf("[FATAL] open db: %v", err)
	}

	log.Printf("[INFO] database opened at %s", *finalConnection)

	// Run migrations
	if _, err := sqlDb.Exec(scripts.SchemaSQL); err != nil {
		log.Fatalf("[FATAL] cannot migrate schema: %v", err)
	}

	return sqlDb
}

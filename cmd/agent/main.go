package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"rakshak/internal/audio"
	"rakshak/internal/backend"
	"rakshak/internal/config"
	"rakshak/internal/feed"
	"rakshak/internal/handlers"
	"rakshak/internal/location"
	"rakshak/internal/media"
	"rakshak/internal/middleware"
	"rakshak/internal/notify"
	"rakshak/internal/permissions"
	"rakshak/internal/photo"
	"rakshak/internal/sos"
	"rakshak/internal/store"
	"rakshak/internal/voice"
	"rakshak/pkg/kvstore"
	"rakshak/pkg/logger"
	"rakshak/pkg/sms"
	"rakshak/pkg/storage"
	"rakshak/pkg/websocket"
	"rakshak/routes"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appLogger); err != nil {
		appLogger.WithError(err).Fatal("Agent stopped with error")
	}
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) error {
	kv, err := newKVStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()
	sessionStore := store.NewSessionStore(kv)

	perms := permissions.NewStaticGateway(cfg.Device.GrantedPermissions)

	provider, err := newLocationProvider(cfg)
	if err != nil {
		return err
	}
	locations := location.NewStream(provider, location.Options{
		Timeout: cfg.SOS.LocationTimeout,
		MaxAge:  cfg.SOS.LocationMaxAge,
	}, appLogger)

	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, appLogger)

	sink, evidence, closeSink, err := newMediaSink(ctx, cfg, backendClient)
	if err != nil {
		return err
	}
	defer closeSink()
	uploader := media.NewRetrying(sink, media.RetryPolicy{
		MaxAttempts:    cfg.Media.MaxAttempts,
		InitialBackoff: cfg.Media.InitialBackoff,
		MaxBackoff:     cfg.Media.MaxBackoff,
		KeepLocal:      cfg.Media.KeepLocal,
	}, appLogger)

	recorder, err := audio.NewCommandRecorder(cfg.Device.RecorderCommand, cfg.Device.CaptureDir)
	if err != nil {
		return fmt.Errorf("failed to create audio recorder: %w", err)
	}
	audioStream := audio.NewStream(recorder, uploader, audio.Options{
		Limit: cfg.SOS.AudioLimit,
		Tick:  cfg.SOS.AudioTick,
	}, appLogger)

	camera, err := photo.NewCommandCamera(cfg.Device.CameraCommand, cfg.Device.CaptureDir)
	if err != nil {
		return fmt.Errorf("failed to create camera: %w", err)
	}
	photoLoop := photo.NewLoop(camera, uploader, photo.Options{
		MaxBytes:     cfg.Device.PhotoMaxBytes,
		MaxDimension: cfg.Device.PhotoMaxDimension,
	}, appLogger)

	var listener sos.VoiceListener = voice.Disabled{}
	if len(cfg.Device.RecognizerCommand) > 0 {
		recognizer, err := voice.NewCommandRecognizer(cfg.Device.RecognizerCommand)
		if err != nil {
			return fmt.Errorf("failed to create speech recognizer: %w", err)
		}
		l := voice.NewListener(recognizer, voice.Matcher{Phonetic: cfg.Device.PhoneticMatching}, voice.DefaultBackoffs, appLogger)
		defer l.Close()
		listener = l
	} else {
		appLogger.Warn("No speech recognizer configured, voice trigger disabled")
	}

	smsProvider, err := newSMSProvider(ctx, cfg)
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(smsProvider, perms, nil, notify.Options{
		LinkBase:    cfg.Backend.LinkBase,
		CountryCode: cfg.SOS.DefaultCountryCode,
		From:        cfg.SMS.SenderName,
		Concurrency: cfg.SMS.Concurrency,
	}, appLogger)

	controller := sos.NewController(sos.Deps{
		Backend:     backendClient,
		Store:       sessionStore,
		Permissions: perms,
		Location:    locations,
		Audio:       audioStream,
		Photo:       photoLoop,
		Voice:       listener,
		Notifier:    dispatcher,
	}, sos.Options{
		PushInterval:     cfg.SOS.LocationPushInterval,
		PhotoInterval:    cfg.SOS.PhotoInterval,
		VoiceSettleDelay: cfg.SOS.VoiceSettleDelay,
		NotifyTimeout:    cfg.SOS.NotifyTimeout,
	}, appLogger)

	hub := websocket.NewHub(appLogger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	// Subscribe before Init so a restored session reaches the feed.
	snapshots, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	var watcher feed.Watcher
	if ok, _ := perms.Check(ctx, permissions.Location); ok {
		watcher = locations
	}
	bridge := feed.NewBridge(hub, watcher, location.WatchOptions{
		MinDistanceMeters: cfg.SOS.WatchMinDistanceMeters,
		MinInterval:       cfg.SOS.WatchMinInterval,
		MaxAccuracyMeters: cfg.SOS.WatchMaxAccuracyMeters,
	}, appLogger)
	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		bridge.Run(snapshots)
	}()

	if err := controller.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialise SOS controller: %w", err)
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.CORSMiddleware(cfg.WebSocket.AllowedOrigins))

	wsHandler := websocket.NewHandler(hub, websocket.Options{
		ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		PingInterval:     cfg.WebSocket.PingInterval,
		PongTimeout:      cfg.WebSocket.PongTimeout,
		MaxConnections:   cfg.WebSocket.MaxConnections,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
	}, func() interface{} { return controller.Snapshot() })

	sosHandler := handlers.NewSOSHandler(controller, evidence, cfg.SOS.DefaultCountryCode, appLogger)
	auth := middleware.TokenRequired(cfg.App.ControlToken)
	if cfg.App.ControlJWTSecret != "" {
		auth = middleware.JWTRequired(cfg.App.ControlJWTSecret)
	}
	routes.SetupSOSRoutes(router, auth, sosHandler, wsHandler, cfg.WebSocket.Path)
	routes.SetupHealthRoutes(router, handlers.NewHealthHandler(cfg.App.Version, hub.ClientCount))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.WithField("addr", server.Addr).Info("Control API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down")
	case err := <-serverErr:
		runErr = fmt.Errorf("control API failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Control API did not shut down cleanly")
	}
	// Close leaves an active session persisted so the next start resumes it.
	if err := controller.Close(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("SOS controller did not close cleanly")
	}
	<-bridgeDone
	stopHub()

	return runErr
}

func newKVStore(ctx context.Context, cfg *config.Config) (kvstore.Store, error) {
	switch cfg.Store.Provider {
	case config.StoreProviderRedis:
		r := cfg.Store.Redis
		return kvstore.NewRedisStore(ctx, &kvstore.RedisConfig{
			URL:       r.URL,
			KeyPrefix: r.KeyPrefix,
			PoolSize:  r.PoolSize,
			Timeout:   r.Timeout,
		})
	case config.StoreProviderMongo:
		m := cfg.Store.Mongo
		return kvstore.NewMongoStore(ctx, &kvstore.MongoConfig{
			URI:        m.URI,
			Database:   m.Database,
			Collection: m.Collection,
			Timeout:    m.Timeout,
		})
	default:
		return kvstore.NewFileStore(cfg.Store.FilePath)
	}
}

func newLocationProvider(cfg *config.Config) (location.Provider, error) {
	switch cfg.Device.LocationProvider {
	case "static":
		return location.StaticProvider{Lat: cfg.Device.StaticLatitude, Lng: cfg.Device.StaticLongitude}, nil
	case "google":
		gm := cfg.Maps.GoogleMaps
		p, err := location.NewGoogleProvider(gm.APIKey, gm.ConsiderIP, gm.RadioType)
		if err != nil {
			return nil, fmt.Errorf("failed to create google location provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", cfg.Device.LocationProvider)
	}
}

// newMediaSink returns the uploader for captured evidence and, for object
// storage sinks, a lister the control API can query.
func newMediaSink(ctx context.Context, cfg *config.Config, client *backend.Client) (media.Uploader, handlers.EvidenceLister, func(), error) {
	noop := func() {}
	if cfg.Media.Sink == config.MediaSinkBackend {
		return media.NewBackendUploader(client), nil, noop, nil
	}

	var (
		provider storage.StorageProvider
		closer   = noop
	)
	switch cfg.Storage.Provider {
	case "aws":
		a := cfg.Storage.AWS
		s3, err := storage.NewAWSS3Storage(ctx, &storage.AWSS3Config{
			Region:          a.Region,
			Bucket:          a.Bucket,
			AccessKeyID:     a.AccessKeyID,
			SecretAccessKey: a.SecretAccessKey,
			CDNDomain:       a.CDNDomain,
		})
		if err != nil {
			return nil, nil, noop, err
		}
		provider = s3
	case "gcp":
		g := cfg.Storage.GCP
		gcs, err := storage.NewGCPStorage(ctx, g.ProjectID, g.Bucket, g.CredentialsFile, g.CDNDomain)
		if err != nil {
			return nil, nil, noop, err
		}
		provider = gcs
		closer = func() { gcs.Close() }
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.Local.BasePath, cfg.Storage.Local.BaseURL)
		if err != nil {
			return nil, nil, noop, err
		}
		provider = local
	}

	u := media.NewStorageUploader(provider)
	return u, u, closer, nil
}

// newSMSProvider returns nil when no gateway is configured; the dispatcher
// then falls back to the user-mediated message composer.
func newSMSProvider(ctx context.Context, cfg *config.Config) (sms.SMSProvider, error) {
	switch cfg.SMS.Provider {
	case config.SMSProviderTwilio:
		t := cfg.SMS.Twilio
		return sms.NewTwilioProvider(t.AccountSID, t.AuthToken, t.FromNumber), nil
	case config.SMSProviderSNS:
		a := cfg.SMS.SNS
		p, err := sms.NewAWSSNSProvider(ctx, &sms.AWSSNSConfig{
			Region:          a.Region,
			AccessKeyID:     a.AccessKeyID,
			SecretAccessKey: a.SecretAccessKey,
			SenderID:        cfg.SMS.SenderName,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}

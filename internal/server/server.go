package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/simlive/internal/api"
	"github.com/victornm/simlive/internal/archive"
	"github.com/victornm/simlive/internal/console"
	"github.com/victornm/simlive/internal/delivery"
	"github.com/victornm/simlive/internal/domain"
	"github.com/victornm/simlive/internal/event"
	"github.com/victornm/simlive/internal/fingerprint"
	"github.com/victornm/simlive/internal/session"
	"github.com/victornm/simlive/internal/store"
	"github.com/victornm/simlive/internal/store/memory"
	"github.com/victornm/simlive/internal/store/postgres"
	"github.com/victornm/simlive/internal/telemetry"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Store struct {
		// Driver is postgres or memory.
		Driver string
	}

	Redis struct {
		Fingerprint struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Session struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}

	// AMQP is optional. Reports are not handed off when URL is empty.
	AMQP struct {
		URL        string
		Exchange   string
		RoutingKey string
	}

	// MinIO is optional. Reports are not archived to object storage when Endpoint is empty.
	MinIO struct {
		Endpoint  string
		AccessID  string
		SecretKey string
		Bucket    string
		Secure    bool
	}

	// Scenarios lists JSON scenario files loaded at startup.
	Scenarios struct {
		Files []string
	}

	// Sync configures viewers started by the watch command and the console stream.
	Sync struct {
		Interval time.Duration
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			fingerprint redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			session *pgxpool.Pool
		}

		amqp  *amqp.Connection
		store store.Store
	}

	service struct {
		session     *session.Service
		fingerprint *fingerprint.Service
		archive     *archive.Service
		delivery    *delivery.Publisher
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if s.c.AMQP.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		conn, err := delivery.Dial(ctx, s.c.AMQP.URL)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		s.infra.amqp = conn
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		if len(addrs) == 0 {
			return nil, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.fingerprint, err = connect(s.c.Redis.Fingerprint.Addrs, s.c.Redis.Fingerprint.Pass)
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Store.Driver {
	case StoreDriverMemory:
		slog.Warn("server: using the in-memory store, sessions are lost on restart")
		s.infra.store = memory.New()
		return nil

	case StoreDriverPostgres, "":
		db, err := s.connectPostgres()
		if err != nil {
			return fmt.Errorf("postgres: session: %w", err)
		}
		s.infra.postgres.session = db

		st := postgres.New(postgres.Config{DB: db})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}

		s.infra.store = st
		return nil
	}

	return fmt.Errorf("unknown driver %q", s.c.Store.Driver)
}

func (s *Server) connectPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pc := s.c.Postgres.Session
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() error {
	s.service.session = session.NewService(session.Config{
		Store:    s.infra.store,
		EventBus: s.eb,
	})

	if s.infra.redis.fingerprint != nil {
		s.service.fingerprint = fingerprint.NewService(fingerprint.Config{
			EventBus: s.eb,
			Source:   s.service.session,
			Redis:    s.infra.redis.fingerprint,
			Prefix:   s.c.Redis.Fingerprint.Prefix,
			TTL:      s.c.Redis.Fingerprint.TTL,
		})
	}

	if s.c.MinIO.Endpoint != "" {
		client, err := archive.NewMinIO(archive.MinIOConfig{
			Endpoint:  s.c.MinIO.Endpoint,
			AccessID:  s.c.MinIO.AccessID,
			SecretKey: s.c.MinIO.SecretKey,
			Secure:    s.c.MinIO.Secure,
		})
		if err != nil {
			return err
		}

		s.service.archive = archive.NewService(archive.Config{
			EventBus: s.eb,
			Storage:  client,
			Bucket:   s.c.MinIO.Bucket,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.service.archive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	if s.infra.amqp != nil {
		ch, err := s.infra.amqp.Channel()
		if err != nil {
			return fmt.Errorf("amqp: open channel: %w", err)
		}

		s.service.delivery, err = delivery.NewPublisher(delivery.Config{
			EventBus:   s.eb,
			Channel:    ch,
			Exchange:   s.c.AMQP.Exchange,
			RoutingKey: s.c.AMQP.RoutingKey,
		})
		if err != nil {
			return fmt.Errorf("delivery: %w", err)
		}
	}

	return s.loadScenarios()
}

func (s *Server) loadScenarios() error {
	ctx := context.Background()

	for _, file := range s.c.Scenarios.Files {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read scenario %s: %w", file, err)
		}

		var sc domain.Scenario
		if err := json.Unmarshal(b, &sc); err != nil {
			return fmt.Errorf("decode scenario %s: %w", file, err)
		}

		if err := s.service.session.PutScenario(ctx, &sc); err != nil {
			return fmt.Errorf("store scenario %s: %w", file, err)
		}
	}

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())

	c := api.Config{
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Session:      s.service.session,
		Fingerprint:  s.service.fingerprint,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	}
	if s.infra.redis.pubsub != nil {
		c.Redis = s.infra.redis.pubsub
	}

	api.New(c).RegisterHTTP(e)

	console.New(console.Config{
		Session:      s.service.session,
		EventBus:     s.eb,
		Fingerprints: s.service.fingerprint,
		Interval:     s.c.Sync.Interval,
	}).RegisterHTTP(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Handlers still running may publish to Redis and AMQP, so stop the bus first.
	s.eb.Stop()

	for name, r := range map[string]redis.UniversalClient{
		"fingerprint": s.infra.redis.fingerprint,
		"pubsub":      s.infra.redis.pubsub,
	} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "redis", name, "error", err)
		}
	}

	if s.infra.amqp != nil {
		if err := s.infra.amqp.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close amqp failed", "error", err)
		}
	}
	if s.infra.postgres.session != nil {
		s.infra.postgres.session.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}

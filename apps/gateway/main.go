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

	cartservice "go-storefront/apps/cart/service"
	"go-storefront/apps/gateway/handler"
	"go-storefront/apps/inventory"
	orderservice "go-storefront/apps/order/service"
	productservice "go-storefront/apps/product/service"
	userservice "go-storefront/apps/user/service"
	"go-storefront/pkg/audit"
	"go-storefront/pkg/config"
	"go-storefront/pkg/database"
	"go-storefront/pkg/discovery"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/payment"
	"go-storefront/pkg/queue"
	"go-storefront/pkg/ratelimit"
	"go-storefront/pkg/store"
	"go-storefront/pkg/store/gormstore"
	"go-storefront/pkg/store/memstore"
	"go-storefront/pkg/tracer"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// 进程退出时按注册的逆序执行
type closers []func()

func (c *closers) add(f func()) { *c = append(*c, f) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func main() {
	// 1. 加载配置
	c, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := c.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	lg, err := logger.New(c.Service.Name, c.Service.Env, c.Log.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer lg.Sync()

	var cleanup closers
	defer cleanup.run()

	// 2. 链路追踪，未配置地址时不上报
	if c.Tracer.Endpoint != "" {
		shutdown, err := tracer.InitTracer(c.Service.Name, c.Tracer.Endpoint, c.Service.Env)
		if err != nil {
			lg.Fatal("init tracer", zap.Error(err))
		}
		cleanup.add(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 3. 存储
	st, err := openStore(c, lg)
	if err != nil {
		lg.Fatal("open store", zap.Error(err))
	}

	// 4. 审计日志，未配置 Mongo 时只保存在内存
	var sink audit.Sink = audit.NewMemorySink()
	if c.Mongo.URI != "" {
		ms, err := audit.NewMongoSink(context.Background(), c.Mongo.URI, c.Mongo.Database, c.Mongo.Collection, lg)
		if err != nil {
			lg.Fatal("connect mongo", zap.Error(err))
		}
		cleanup.add(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Close(ctx)
		})
		sink = ms
	}

	// 5. 订单确认队列：配置了 RabbitMQ 时交给 notifier 消费，否则进程内处理
	var dedupe queue.Deduper = queue.NewMemoryDeduper()
	if c.Redis.Address != "" {
		rdb, err := database.InitRedis(c.Redis, lg)
		if err != nil {
			lg.Fatal("connect redis", zap.Error(err))
		}
		cleanup.add(func() { _ = rdb.Close() })
		dedupe = queue.NewRedisDeduper(rdb, 24*time.Hour)
	}

	var confirm queue.Handler
	var publisher queue.Publisher
	var local *queue.LocalQueue
	if c.RabbitMQ.URL != "" {
		mq, err := queue.DialRabbitMQ(c.RabbitMQ.URL, c.RabbitMQ.Queue, lg)
		if err != nil {
			lg.Fatal("connect rabbitmq", zap.Error(err))
		}
		cleanup.add(func() { _ = mq.Close() })
		publisher = mq
	} else {
		local = queue.NewLocalQueue(256, func(ctx context.Context, msg queue.Message) error {
			return confirm(ctx, msg)
		}, lg)
		cleanup.add(local.Close)
		publisher = local
	}

	// 6. 业务服务
	tokens := jwt.NewManager(c.JWT.Secret, c.JWT.AccessTTL, c.JWT.RefreshTTL)
	users := userservice.New(st, tokens, lg, userservice.Options{})
	orders := orderservice.New(orderservice.Deps{
		Store:     st,
		Reactor:   inventory.New(lg, m),
		Provider:  newProvider(c),
		Publisher: publisher,
		Audit:     sink,
		Metrics:   m,
		Log:       lg,
	}, orderservice.Options{PaymentTimeout: c.Payment.Timeout})
	confirm = orders.ConfirmationHandler(dedupe)
	if local != nil {
		local.Start(context.Background())
	}

	if c.Bootstrap.AdminEmail != "" {
		if err := users.EnsureAdmin(context.Background(), c.Bootstrap.AdminEmail, c.Bootstrap.AdminPassword); err != nil {
			lg.Fatal("bootstrap admin", zap.Error(err))
		}
	}

	// 7. 限流
	if err := ratelimit.Init(c.RateLimit); err != nil {
		lg.Fatal("init sentinel", zap.Error(err))
	}
	lg.Info("flow rules loaded",
		zap.Float64("order_create_qps", c.RateLimit.OrderCreateQPS),
		zap.Float64("order_pay_qps", c.RateLimit.OrderPayQPS))

	if c.Service.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.Deps{
		ServiceName:   c.Service.Name,
		Users:         users,
		Catalog:       productservice.New(st, lg),
		Carts:         cartservice.New(st, lg),
		Orders:        orders,
		Metrics:       m,
		Gatherer:      reg,
		Log:           lg,
		WebhookSecret: c.Payment.WebhookSecret,
		RateLimit:     true,
	})

	// 8. 启动 HTTP 服务
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.Service.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	// 注册到 Consul
	if c.Consul.Address != "" {
		deregister, err := discovery.RegisterService(c.Service.Name, c.Service.Port, c.Consul.Address, lg)
		if err != nil {
			lg.Error("consul register failed", zap.Error(err))
		} else {
			cleanup.add(func() { _ = deregister() })
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
}

func openStore(c *config.Config, lg *zap.Logger) (store.Store, error) {
	if c.Storage.Driver != "mysql" {
		lg.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), nil
	}
	db, err := database.InitMySQL(c.Mysql, lg)
	if err != nil {
		return nil, err
	}
	gs := gormstore.New(db)
	if c.Storage.AutoMigrate {
		if err := gs.AutoMigrate(context.Background()); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return gs, nil
}

func newProvider(c *config.Config) payment.Provider {
	if c.Payment.Provider == "chapa" {
		ch := c.Payment.Chapa
		return payment.NewChapa(payment.ChapaConfig{
			BaseURL:     ch.BaseURL,
			SecretKey:   ch.SecretKey,
			Currency:    ch.Currency,
			CallbackURL: ch.CallbackURL,
			ReturnURL:   ch.ReturnURL,
			Timeout:     c.Payment.Timeout,
		})
	}
	return payment.Demo{CheckoutBase: fmt.Sprintf("http://localhost:%d/checkout/", c.Service.Port)}
}

// Command notifier consumes order confirmation messages from RabbitMQ and
// records one notification per order.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	orderservice "go-storefront/apps/order/service"
	"go-storefront/pkg/config"
	"go-storefront/pkg/database"
	"go-storefront/pkg/logger"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/queue"
	"go-storefront/pkg/store/gormstore"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// 去重键保留时间，超过后重复投递会再次查库
const dedupeTTL = 24 * time.Hour

func main() {
	// 1. 加载配置
	c, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if c.RabbitMQ.URL == "" {
		log.Fatal("rabbitmq.url is required")
	}
	if c.Mysql.Host == "" || c.Mysql.DbName == "" {
		log.Fatal("mysql.host and mysql.dbname are required")
	}

	lg, err := logger.New("storefront-notifier", c.Service.Env, c.Log.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer lg.Sync()

	// 2. 初始化数据库，与 gateway 共用订单表
	db, err := database.InitMySQL(c.Mysql, lg)
	if err != nil {
		lg.Fatal("init mysql", zap.Error(err))
	}
	st := gormstore.New(db)

	// 3. 去重：优先 Redis，多个 notifier 实例共享
	var dedupe queue.Deduper = queue.NewMemoryDeduper()
	if c.Redis.Address != "" {
		rdb, err := database.InitRedis(c.Redis, lg)
		if err != nil {
			lg.Fatal("connect redis", zap.Error(err))
		}
		defer rdb.Close()
		dedupe = queue.NewRedisDeduper(rdb, dedupeTTL)
	} else {
		lg.Warn("redis not configured, dedupe keys are per process")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	orders := orderservice.New(orderservice.Deps{Store: st, Metrics: m, Log: lg}, orderservice.Options{})

	mq, err := queue.DialRabbitMQ(c.RabbitMQ.URL, c.RabbitMQ.Queue, lg)
	if err != nil {
		lg.Fatal("connect rabbitmq", zap.Error(err))
	}
	defer mq.Close()

	// 4. 指标端口沿用 service.port
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: fmt.Sprintf(":%d", c.Service.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("notifier consuming", zap.String("queue", c.RabbitMQ.Queue))
	if err := mq.Consume(ctx, c.RabbitMQ.Prefetch, orders.ConfirmationHandler(dedupe)); err != nil {
		lg.Error("consume stopped", zap.Error(err))
	}
	lg.Info("notifier stopped")
}

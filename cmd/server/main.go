// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"leukemialens-go/internal/config"
	"leukemialens-go/internal/extractor"
	"leukemialens-go/internal/handler"
	"leukemialens-go/internal/middleware"
	"leukemialens-go/internal/model"
	"leukemialens-go/internal/pipeline"
	"leukemialens-go/internal/repository"
	"leukemialens-go/internal/service"
	"leukemialens-go/pkg/database"
	"leukemialens-go/pkg/embedding"
	"leukemialens-go/pkg/es"
	"leukemialens-go/pkg/kafka"
	"leukemialens-go/pkg/llm"
	"leukemialens-go/pkg/log"
	"leukemialens-go/pkg/pubmed"
	"leukemialens-go/pkg/ratelimit"
	"leukemialens-go/pkg/storage"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与 ES
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("数据库表结构同步失败: %v", err)
	}
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository 并播种治疗参考表
	studyRepo := repository.NewStudyRepository(database.DB)
	treatmentRepo := repository.NewTreatmentRepository(database.DB)
	coverageRepo := repository.NewCoverageRepository(database.DB)

	ruleExtractor := extractor.NewRuleExtractor()
	var seed []model.RefTreatment
	for _, info := range ruleExtractor.TreatmentCatalog() {
		seed = append(seed, model.RefTreatment{Code: info.Code, Name: info.Name, Type: info.Type})
	}
	if err := treatmentRepo.EnsureSeeded(seed); err != nil {
		log.Fatalf("治疗参考表初始化失败: %v", err)
	}

	// 5. 初始化外部客户端 (依赖注入)
	// NCBI 限速: 无 API Key 3 req/s，有 API Key 10 req/s
	rps := 3
	if cfg.Pubmed.APIKey != "" {
		rps = 10
	}
	limiter := ratelimit.New(rps)
	pubmedClient := pubmed.NewClient(cfg.Pubmed, limiter).
		WithArchiver(&storage.RawResponseArchiver{BucketName: cfg.MinIO.BucketName})

	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	aiExtractor := extractor.NewAIExtractor(llmClient)

	// 6. 初始化采集管道与服务
	processor := pipeline.NewProcessor(
		studyRepo,
		treatmentRepo,
		ruleExtractor,
		aiExtractor,
		embeddingClient,
		&es.StudyChunkIndexer{IndexName: cfg.Elasticsearch.IndexName},
		cfg.Embedding.Model,
	)
	ingestService := service.NewIngestService(pubmedClient, processor, studyRepo, coverageRepo, cfg.Ingest.PageSize)
	compareService := service.NewCompareService(pubmedClient, ruleExtractor, aiExtractor)
	backfillService := service.NewBackfillService(kafka.Producer{}, cfg.Ingest.PageSize)

	// 7. 启动后台 Kafka 消费者处理回填任务
	go kafka.StartConsumer(cfg.Kafka, service.NewTaskWorker(ingestService))

	// 7.1 定时采集：按配置的 cron 表达式用默认滚动窗口扫描新文献
	scheduler := cron.New()
	if cfg.Ingest.Schedule != "" {
		_, err := scheduler.AddFunc(cfg.Ingest.Schedule, func() {
			res, err := ingestService.Run(context.Background(), service.IngestParams{})
			if err != nil {
				log.Errorf("定时采集失败: %v", err)
				return
			}
			log.Infof("定时采集完成: 窗口 %s, 总数 %d, 落库 %d", res.Window, res.Total, res.Ingested)
		})
		if err != nil {
			log.Fatalf("注册定时采集任务失败: %v", err)
		}
		scheduler.Start()
		log.Infof("定时采集已启用: %s", cfg.Ingest.Schedule)
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	ingestHandler := handler.NewIngestHandler(ingestService, compareService, backfillService)
	apiV1 := r.Group("/api/v1")
	{
		ingest := apiV1.Group("/ingest")
		{
			ingest.GET("", ingestHandler.Ingest)
			ingest.GET("/compare", ingestHandler.Compare)
			ingest.POST("/backfill", middleware.AdminAuth(cfg.Server.AdminToken), ingestHandler.Backfill)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	scheduler.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

package service

import (
	"context"
	"fmt"

	"leukemialens-go/pkg/log"
	"leukemialens-go/pkg/tasks"
)

// TaskProducer 把采集任务投递到消息队列。
type TaskProducer interface {
	PublishIngestionTask(ctx context.Context, task tasks.IngestionTask) error
}

// BackfillService 把一整年的历史回填拆成 12 个按月任务异步投递，
// 由消费者逐月执行，避免一次 HTTP 请求内做全年采集。
type BackfillService struct {
	producer TaskProducer
	pageSize int
}

func NewBackfillService(producer TaskProducer, pageSize int) *BackfillService {
	return &BackfillService{producer: producer, pageSize: pageSize}
}

// EnqueueYear 为指定年份投递 12 个按月采集任务，返回成功投递的任务数。
// 某个月投递失败时立即停止，已投递的任务不回收。
func (s *BackfillService) EnqueueYear(ctx context.Context, year int, useAI bool) (int, error) {
	if year < 1900 || year > 2100 {
		return 0, fmt.Errorf("非法的回填年份: %d", year)
	}

	for month := 1; month <= 12; month++ {
		task := tasks.IngestionTask{
			Year:   year,
			Month:  month,
			Limit:  s.pageSize,
			UseAI:  useAI,
		}
		if err := s.producer.PublishIngestionTask(ctx, task); err != nil {
			return month - 1, fmt.Errorf("投递 %d-%02d 采集任务失败: %w", year, month, err)
		}
	}

	log.Infof("[BackfillService] 已投递 %d 年全年 12 个采集任务", year)
	return 12, nil
}

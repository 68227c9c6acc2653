package service

import (
	"context"

	"leukemialens-go/pkg/tasks"
)

// TaskWorker 把队列里的按月采集任务转交给采集服务，实现 kafka.TaskProcessor。
type TaskWorker struct {
	ingest *IngestService
}

func NewTaskWorker(ingest *IngestService) *TaskWorker {
	return &TaskWorker{ingest: ingest}
}

// Process 对任务窗口做完整的翻页采集，一个任务吃完一个月。
func (w *TaskWorker) Process(ctx context.Context, task tasks.IngestionTask) error {
	_, err := w.ingest.RunAll(ctx, IngestParams{
		Year:   task.Year,
		Month:  task.Month,
		Offset: task.Offset,
		Limit:  task.Limit,
		UseAI:  task.UseAI,
	})
	return err
}

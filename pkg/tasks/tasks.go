// Package tasks 定义了经由消息队列投递的异步任务载荷。
package tasks

// IngestionTask 是一次按月采集任务。Year/Month 为 0 时表示使用默认滚动窗口。
type IngestionTask struct {
	Year   int  `json:"year"`
	Month  int  `json:"month"`
	Offset int  `json:"offset"`
	Limit  int  `json:"limit"`
	UseAI  bool `json:"use_ai"`
}

package models

// DeliveryResult 尽力而为的外部调用结果，调用方只用于记录日志
type DeliveryResult struct {
	Delivered  bool
	Skipped    bool // 未配置或熔断中，没有发出请求
	StatusCode int
	Err        error
}

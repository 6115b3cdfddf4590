package events

// EventBus 进程内事件总线
// 上传目录变更与任务状态变更都经由它广播给订阅方
type EventBus interface {
	// Subscribe 订阅单一类型的事件，返回取消订阅函数
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())

	// SubscribeMultiple 一次订阅多个类型的事件
	// 返回的函数取消全部订阅
	SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func())

	// Publish 异步发布事件，分发到所有匹配的订阅者
	Publish(event Event)

	// Close 关闭总线，停止接收新事件并等待在途事件分发完成
	Close()
}

// Handler 事件处理器
// 返回的 error 只用于记录日志，不会触发重试
type Handler interface {
	HandleEvent(event Event) error
}

// HandlerFunc 把普通函数适配成 Handler
type HandlerFunc func(event Event) error

// HandleEvent 实现 Handler 接口
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

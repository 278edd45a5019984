package usecase

// Metrics receives counters from the feed and match paths.
type Metrics interface {
	TickProcessed(symbol string)
	AlertsTriggered(count int)
	FeedReconnect()
	FeedConnected(connected bool)
	SubscribedChannels(count int)
	NotificationFailed()
}

type NopMetrics struct{}

func (NopMetrics) TickProcessed(string) {}
func (NopMetrics) AlertsTriggered(int) {}
func (NopMetrics) FeedReconnect() {}
func (NopMetrics) FeedConnected(bool) {}
func (NopMetrics) SubscribedChannels(int) {}
func (NopMetrics) NotificationFailed() {}

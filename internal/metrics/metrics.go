package metrics

import "time"

// IMetrics records the service counters. Implementations never block and
// never return errors.
type IMetrics interface {
	EventAppended(eventType string)
	EventRejected(reason string)
	AppendDuration(d time.Duration)
	SubscriptionsActive(n int)

	AutomationAction(kind string, ok bool)

	SuccessFetchChanges(table string, n int)
	FailedFetchChanges(table string)
	SuccessPushChange(table string)
	FailedPushChange(table string)
	DeadLetter(table string)
}

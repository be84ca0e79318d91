package metrics

import "time"

// Noop is used when metrics are disabled and in tests.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (Noop) EventAppended(string)            {}
func (Noop) EventRejected(string)            {}
func (Noop) AppendDuration(time.Duration)    {}
func (Noop) SubscriptionsActive(int)         {}
func (Noop) AutomationAction(string, bool)   {}
func (Noop) SuccessFetchChanges(string, int) {}
func (Noop) FailedFetchChanges(string)       {}
func (Noop) SuccessPushChange(string)        {}
func (Noop) FailedPushChange(string)         {}
func (Noop) DeadLetter(string)               {}

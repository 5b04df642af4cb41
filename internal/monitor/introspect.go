package monitor

import (
	"github.com/hibiken/asynq"
)

// BrokerIntrospector is the read-only slice of the broker's inspection
// API the monitor depends on. *asynq.Inspector satisfies it; tests
// substitute a fake.
type BrokerIntrospector interface {
	Servers() ([]*asynq.ServerInfo, error)
	Queues() ([]string, error)
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListActiveTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

var _ BrokerIntrospector = (*asynq.Inspector)(nil)

package client

import (
	"github.com/golang/glog"
)

// local state is mutated before the server confirms. on failure the revert
// restores the exact snapshot captured before the mutation, not a
// recomputed approximation

type OptimisticOperation[K comparable, V any] struct {
	store    *Store[K, V]
	snapshot map[K]V
}

func BeginOptimistic[K comparable, V any](store *Store[K, V]) *OptimisticOperation[K, V] {
	return &OptimisticOperation[K, V]{
		store:    store,
		snapshot: store.Snapshot(),
	}
}

func (self *OptimisticOperation[K, V]) Revert() {
	self.store.SetAll(self.snapshot)
}

// captures a snapshot, applies `mutate`, and hands `confirm` a completion
// callback. a failed confirmation reverts and surfaces a toast
func RunOptimistic[K comparable, V any](
	store *Store[K, V],
	toasts *ToastSink,
	failMessage string,
	mutate func(),
	confirm func(complete func(err error)),
) {
	operation := BeginOptimistic(store)
	mutate()
	confirm(func(err error) {
		if err == nil {
			return
		}
		glog.Infof("[opt]revert = %s\n", err)
		operation.Revert()
		if toasts != nil {
			toasts.Post(ToastSeverityError, ToastKindOperation, failMessage)
		}
	})
}

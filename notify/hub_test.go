package notify_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/notify"
)

func TestHub_DeliversToMatchingTypeOnly(t *testing.T) {
	// GIVEN: Handlers for two different event types
	// WHEN: Publishing a FundUpdated
	// THEN: Only the FundUpdated handler fires

	hub := notify.NewHub()
	defer hub.Close()

	var fundEvents, txEvents int
	sub1 := notify.Subscribe(hub, func(budget.FundUpdated) { fundEvents++ })
	defer sub1.Unsubscribe()
	sub2 := notify.Subscribe(hub, func(budget.TransactionCreated) { txEvents++ })
	defer sub2.Unsubscribe()

	notify.Publish(hub, budget.FundUpdated{FundCode: "PS-2025-001"})

	assert.Equal(t, 1, fundEvents)
	assert.Equal(t, 0, txEvents)
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := notify.NewHub()
	defer hub.Close()

	var got int
	sub := notify.Subscribe(hub, func(budget.DashboardRefresh) { got++ })

	notify.Publish(hub, budget.DashboardRefresh{RefreshFunds: true})
	sub.Unsubscribe()
	notify.Publish(hub, budget.DashboardRefresh{RefreshFunds: true})

	assert.Equal(t, 1, got)

	// Idempotent
	sub.Unsubscribe()
}

func TestHub_SubscriberPanicDoesNotReachPublisher(t *testing.T) {
	// GIVEN: One panicking and one healthy subscriber
	// WHEN: Publishing
	// THEN: Publish returns and the healthy subscriber still fires

	hub := notify.NewHub()
	defer hub.Close()

	sub1 := notify.Subscribe(hub, func(budget.FundUpdated) { panic("boom") })
	defer sub1.Unsubscribe()

	var got int
	sub2 := notify.Subscribe(hub, func(budget.FundUpdated) { got++ })
	defer sub2.Unsubscribe()

	assert.NotPanics(t, func() {
		notify.Publish(hub, budget.FundUpdated{})
	})
	assert.Equal(t, 1, got)
}

func TestHub_PublishAfterClose_NoOp(t *testing.T) {
	hub := notify.NewHub()

	var got int
	notify.Subscribe(hub, func(budget.FundUpdated) { got++ })

	hub.Close()
	notify.Publish(hub, budget.FundUpdated{})

	assert.Equal(t, 0, got)
}

func TestHub_ConcurrentPublishAndSubscribe(t *testing.T) {
	hub := notify.NewHub()
	defer hub.Close()

	var mu sync.Mutex
	seen := 0
	sub := notify.Subscribe(hub, func(budget.FundUpdated) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			notify.Publish(hub, budget.FundUpdated{})
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 20, seen)
}

package recorder

import (
	"sync"
	"testing"
)

func TestIDPoolBasicOperation(t *testing.T) {
	factory := func() string { return "test-id" }
	pool := NewIDPool(10, factory)
	defer pool.Close()

	id := pool.Get()
	if id != "test-id" {
		t.Errorf("Expected 'test-id', got %s", id)
	}
}

func TestIDPoolEmpty(t *testing.T) {
	var callCount int
	var mu sync.Mutex
	factory := func() string {
		mu.Lock()
		defer mu.Unlock()
		callCount++
		return "direct-id"
	}

	// Very small pool that will be empty.
	pool := NewIDPool(1, factory)
	defer pool.Close()

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = pool.Get()
	}

	mu.Lock()
	finalCount := callCount
	mu.Unlock()
	if finalCount < 2 {
		t.Errorf("Expected factory to be called multiple times, got %d", finalCount)
	}

	for _, id := range ids {
		if id != "direct-id" {
			t.Errorf("Expected 'direct-id', got %s", id)
		}
	}
}

func TestIDPoolConcurrentAccess(t *testing.T) {
	counter := 0
	mu := sync.Mutex{}
	factory := func() string {
		mu.Lock()
		defer mu.Unlock()
		counter++
		return "concurrent-id"
	}

	pool := NewIDPool(50, factory)
	defer pool.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if id := pool.Get(); id != "concurrent-id" {
					t.Errorf("Expected 'concurrent-id', got %s", id)
				}
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	finalCounter := counter
	mu.Unlock()
	if finalCounter == 0 {
		t.Error("Factory was never called")
	}
}

func TestIDPoolCleanShutdown(t *testing.T) {
	pool := NewIDPool(10, func() string { return "shutdown-test" })

	pool.Close()

	// Get falls back to the factory once the pool is drained.
	for i := 0; i < 20; i++ {
		if id := pool.Get(); id != "shutdown-test" {
			t.Errorf("Expected 'shutdown-test', got %s", id)
		}
	}

	// Multiple closes should be safe.
	pool.Close()
}

func TestIDPoolZeroCapacity(t *testing.T) {
	pool := NewIDPool(0, func() string { return "id" })
	defer pool.Close()

	if id := pool.Get(); id != "id" {
		t.Errorf("Expected 'id', got %s", id)
	}
}

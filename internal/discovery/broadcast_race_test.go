package discovery

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hammer every public entry point at once; run with -race.
func TestBroadcastManagerRaceHarness(t *testing.T) {
	m := newTestManager(t, Config{RefreshInterval: 5 * time.Millisecond})
	require.NoError(t, m.Initialize())

	stop := make(chan struct{})
	var wg sync.WaitGroup

	drain := func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-m.Incoming():
			}
		}
	}
	wg.Add(1)
	go drain()

	const workers = 4
	for i := 0; i < workers; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.SendMessage("ping")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.Interfaces()
				_ = m.BroadcastInterfaceCount()
				_ = m.IsInitialized()
				_ = m.LocalAddr()
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if (i+j)%2 == 0 {
					_ = m.Initialize()
				} else {
					_ = m.Shutdown()
				}
			}
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(stop)
	wg.Wait()

	require.NoError(t, m.Close())
	assert.False(t, m.IsInitialized())
}

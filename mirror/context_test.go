package mirror

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineContextFlagsSetOnce(t *testing.T) {
	pctx := NewPipelineContext()
	assert.False(t, pctx.ShuttingDown())
	assert.False(t, pctx.ExitingOnSendFailure())

	var shutdownWins, failureWins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pctx.BeginShutdown() {
				shutdownWins.Add(1)
			}
			if pctx.SignalSendFailure() {
				failureWins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), shutdownWins.Load())
	assert.Equal(t, int32(1), failureWins.Load())
	assert.True(t, pctx.ShuttingDown())
	assert.True(t, pctx.ExitingOnSendFailure())
}

func TestPipelineContextDropCounter(t *testing.T) {
	pctx := NewPipelineContext()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 7; j++ {
				pctx.RecordDrop()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(70), pctx.Dropped())
}

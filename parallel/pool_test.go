package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	for _, workers := range []int{0, 1, 4} {
		pool := Start(workers)

		var sum atomic.Int64
		for i := range 100 {
			pool.Go(func() error {
				sum.Add(int64(i))
				return nil
			})
		}

		assert.NoError(t, pool.Wait(), "workers %d", workers)
		assert.Equal(t, int64(4950), sum.Load(), "workers %d", workers)

		// reusable after Wait
		pool.Go(func() error {
			sum.Add(1)
			return nil
		})
		assert.NoError(t, pool.Wait())
		assert.Equal(t, int64(4951), sum.Load())

		pool.Close()
		pool.Close()
	}
}

func TestPoolErrors(t *testing.T) {
	errOdd := errors.New("odd")
	pool := Start(3)
	defer pool.Close()

	for i := range 10 {
		pool.Go(func() error {
			if i%2 == 1 {
				return errOdd
			}
			return nil
		})
	}

	err := pool.Wait()
	assert.ErrorIs(t, err, errOdd)
	assert.Len(t, err.(interface{ Unwrap() []error }).Unwrap(), 5)

	assert.NoError(t, pool.Wait())
}

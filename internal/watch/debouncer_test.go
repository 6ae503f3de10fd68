package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) add(files []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, files)
}

func (b *batches) snapshot() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.got...)
}

func TestDebouncer_CoalescesChanges(t *testing.T) {
	var b batches
	d := NewDebouncer(30 * time.Millisecond)
	d.SetCallback(b.add)
	defer d.Stop()

	d.Add("b.avsc")
	d.Add("a.avsc")
	d.Add("b.avsc")

	require.Eventually(t, func() bool { return len(b.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a.avsc", "b.avsc"}, b.snapshot()[0])

	// A later change starts a new batch
	d.Add("c.avsc")
	require.Eventually(t, func() bool { return len(b.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"c.avsc"}, b.snapshot()[1])
}

func TestDebouncer_StopDropsPending(t *testing.T) {
	var b batches
	d := NewDebouncer(20 * time.Millisecond)
	d.SetCallback(b.add)

	d.Add("a.avsc")
	d.Stop()
	d.Stop()
	d.Add("b.avsc")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, b.snapshot())
}

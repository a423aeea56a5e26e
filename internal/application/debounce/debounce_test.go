package debounce_test

import (
	"sync"
	"testing"
	"time"

	"confreg/internal/application/debounce"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestVirtualClock_RunsAfterDelay(t *testing.T) {
	c := debounce.NewVirtualClock(start)
	ran := 0
	c.Schedule("city", 300*time.Millisecond, func() { ran++ })

	c.Advance(299 * time.Millisecond)
	assert.Equal(t, 0, ran)
	c.Advance(time.Millisecond)
	assert.Equal(t, 1, ran)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, start.Add(300*time.Millisecond), c.Now())
}

func TestVirtualClock_LastWriteWins(t *testing.T) {
	c := debounce.NewVirtualClock(start)
	var got []string
	c.Schedule("zip", 300*time.Millisecond, func() { got = append(got, "first") })
	c.Advance(200 * time.Millisecond)
	c.Schedule("zip", 300*time.Millisecond, func() { got = append(got, "second") })

	c.Advance(200 * time.Millisecond)
	assert.Empty(t, got, "reschedule resets the idle window")
	c.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"second"}, got)
}

func TestVirtualClock_IndependentKeysRunInDueOrder(t *testing.T) {
	c := debounce.NewVirtualClock(start)
	var got []string
	c.Schedule("b", 200*time.Millisecond, func() { got = append(got, "b") })
	c.Schedule("a", 100*time.Millisecond, func() { got = append(got, "a") })
	c.Schedule("c", 200*time.Millisecond, func() { got = append(got, "c") })

	c.Advance(time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestVirtualClock_CancelAndStop(t *testing.T) {
	c := debounce.NewVirtualClock(start)
	ran := false
	c.Schedule("x", time.Millisecond, func() { ran = true })
	c.Cancel("x")
	c.Schedule("y", time.Millisecond, func() { ran = true })
	c.Stop()
	c.Advance(time.Second)
	assert.False(t, ran)
}

func TestVirtualClock_TaskCanReschedule(t *testing.T) {
	c := debounce.NewVirtualClock(start)
	runs := 0
	var tick func()
	tick = func() {
		runs++
		if runs < 3 {
			c.Schedule("tick", 100*time.Millisecond, tick)
		}
	}
	c.Schedule("tick", 100*time.Millisecond, tick)
	c.Advance(time.Second)
	assert.Equal(t, 3, runs)
}

func TestRealScheduler_Supersedes(t *testing.T) {
	s := debounce.NewRealScheduler()
	defer s.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	for i := 1; i <= 3; i++ {
		i := i
		s.Schedule("field", 20*time.Millisecond, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			close(done)
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("debounced task did not run")
	}
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3}, got)
}

func TestRealScheduler_StopRejects(t *testing.T) {
	s := debounce.NewRealScheduler()
	ran := make(chan struct{}, 1)
	s.Schedule("a", 10*time.Millisecond, func() { ran <- struct{}{} })
	s.Stop()
	s.Schedule("b", time.Millisecond, func() { ran <- struct{}{} })

	select {
	case <-ran:
		t.Fatal("task ran after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

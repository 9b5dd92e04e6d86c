package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	early := f.NewTimer(time.Minute)
	late := f.NewTimer(time.Hour)
	assert.Equal(t, 2, f.Pending())

	f.Advance(2 * time.Minute)
	select {
	case got := <-early.C():
		assert.Equal(t, start.Add(2*time.Minute), got)
	default:
		t.Fatal("early timer did not fire")
	}
	select {
	case <-late.C():
		t.Fatal("late timer fired too soon")
	default:
	}
	assert.Equal(t, 1, f.Pending())

	assert.True(t, late.Stop())
	assert.False(t, late.Stop())
	assert.Equal(t, 0, f.Pending())
}

func TestFake_ZeroDurationFiresImmediately(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tm := f.NewTimer(0)
	select {
	case <-tm.C():
	default:
		t.Fatal("zero timer did not fire")
	}
}

func TestReal_NowIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}

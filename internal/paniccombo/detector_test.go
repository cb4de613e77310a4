package paniccombo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gildo/accentd/internal/evdevcodes"
)

func TestComboWithinWindowFires(t *testing.T) {
	d := New()
	base := time.Now()

	assert.False(t, d.Observe(evdevcodes.KeyBackspace, base))
	assert.False(t, d.Observe(evdevcodes.KeyEsc, base.Add(100*time.Millisecond)))
	assert.True(t, d.Observe(evdevcodes.KeyEnter, base.Add(300*time.Millisecond)))
}

func TestComboOutsideWindowDoesNotFire(t *testing.T) {
	d := New()
	base := time.Now()

	d.Observe(evdevcodes.KeyBackspace, base)
	d.Observe(evdevcodes.KeyEsc, base.Add(200*time.Millisecond))
	assert.False(t, d.Observe(evdevcodes.KeyEnter, base.Add(600*time.Millisecond)))
}

func TestUnrelatedKeysDoNotFire(t *testing.T) {
	d := New()
	base := time.Now()

	assert.False(t, d.Observe(evdevcodes.KeyA, base))
	assert.False(t, d.Observe(evdevcodes.KeyBackspace, base.Add(10*time.Millisecond)))
	assert.False(t, d.Observe(evdevcodes.KeyA, base.Add(20*time.Millisecond)))
	assert.False(t, d.Observe(evdevcodes.KeyEsc, base.Add(30*time.Millisecond)))
}

func TestWrongOrderDoesNotFire(t *testing.T) {
	d := New()
	base := time.Now()

	d.Observe(evdevcodes.KeyEnter, base)
	d.Observe(evdevcodes.KeyEsc, base.Add(10*time.Millisecond))
	assert.False(t, d.Observe(evdevcodes.KeyBackspace, base.Add(20*time.Millisecond)))
}

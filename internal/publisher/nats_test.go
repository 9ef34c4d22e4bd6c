package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateSubject(t *testing.T) {
	assert.Equal(t, "states.sensor.gent_zuid", stateSubject("states", "sensor.gent_zuid"))
	assert.Equal(t, "states.binary_sensor.hall_1", stateSubject("states", "binary_sensor.hall_1"))
	assert.Equal(t, "states.orphan", stateSubject("states", "orphan"))
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "a_b_c", subjectToken(" a b.c "))
	assert.Equal(t, "x__", subjectToken("x*>"))
	assert.Equal(t, "_", subjectToken("   "))
}

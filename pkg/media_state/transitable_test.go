package media_state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		state   TransitableState[MediaExchange]
		desired MediaExchange
		want    TransitableState[MediaExchange]
	}{
		{"stable same", NewStable(Enabled), Enabled, NewStable(Enabled)},
		{"stable other", NewStable(Enabled), Disabled, NewTransition(Enabled, Disabled)},
		{"transition same target", NewTransition(Enabled, Disabled), Disabled, NewTransition(Enabled, Disabled)},
		{"transition reversed", NewTransition(Enabled, Disabled), Enabled, NewTransition(Enabled, Enabled)},
		{"reversal reversed again", NewTransition(Enabled, Enabled), Disabled, NewTransition(Enabled, Disabled)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.TransitionTo(tt.desired))
		})
	}
}

func TestTransitableStateAccessors(t *testing.T) {
	st := NewTransition(Unmuted, Muted)

	assert.False(t, st.IsStable())
	tr, ok := st.Transition()
	assert.True(t, ok)
	assert.Equal(t, Transition[Mute]{From: Unmuted, To: Muted}, tr)
	assert.Equal(t, Muted, st.Intended())
	assert.Equal(t, Unmuted, st.Current())
	assert.Equal(t, NewStable(Unmuted), st.CancelTransition())
	assert.Equal(t, "transition(unmuted -> muted)", st.String())
}

func TestMediaState(t *testing.T) {
	ex := NewMediaExchange(Enabled)
	v, ok := ex.MediaExchange()
	assert.True(t, ok)
	assert.Equal(t, Enabled, v)
	_, ok = ex.Mute()
	assert.False(t, ok)
	assert.True(t, ex.IsEnabling())
	assert.Equal(t, NewMediaExchange(Disabled), ex.Opposite())

	m := NewMute(Muted)
	assert.Equal(t, KindMute, m.Kind())
	assert.True(t, m.IsDisabling())
	assert.Equal(t, NewMute(Unmuted), m.Opposite())
	assert.Equal(t, "mute(muted)", m.String())

	assert.Equal(t, NewMediaExchange(Disabled), MediaState{})
}

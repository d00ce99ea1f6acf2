package peer

import (
	"context"
	"time"

	"github.com/arzzra/webrtc_client/pkg/media_state"
	"github.com/arzzra/webrtc_client/pkg/signaling"
)

// mediaControllers контроллеры обмена медиа и заглушения одного трека
type mediaControllers struct {
	exchange *media_state.MediaExchangeController
	mute     *media_state.MuteController
}

func newMediaControllers(enabled, muted bool, timeout time.Duration) mediaControllers {
	return mediaControllers{
		exchange: media_state.NewController(media_state.MediaExchangeFromBool(enabled), timeout),
		mute:     media_state.NewController(media_state.MuteFromBool(muted), timeout),
	}
}

// MediaExchangeState текущее состояние обмена медиа
func (c mediaControllers) MediaExchangeState() media_state.TransitableState[media_state.MediaExchange] {
	return c.exchange.State()
}

// MuteState текущее состояние заглушения
func (c mediaControllers) MuteState() media_state.TransitableState[media_state.Mute] {
	return c.mute.State()
}

// MediaExchangeController контроллер обмена медиа
func (c mediaControllers) MediaExchangeController() *media_state.MediaExchangeController {
	return c.exchange
}

// MuteController контроллер заглушения
func (c mediaControllers) MuteController() *media_state.MuteController {
	return c.mute
}

func (c mediaControllers) transitionTo(state media_state.MediaState) {
	if v, ok := state.MediaExchange(); ok {
		c.exchange.TransitionTo(v)
		return
	}
	if v, ok := state.Mute(); ok {
		c.mute.TransitionTo(v)
	}
}

// WhenMediaStateStable ждет стабилизации в state
func (c mediaControllers) WhenMediaStateStable(ctx context.Context, state media_state.MediaState) error {
	if v, ok := state.MediaExchange(); ok {
		return c.exchange.WhenMediaStateStable(ctx, v)
	}
	v, _ := state.Mute()
	return c.mute.WhenMediaStateStable(ctx, v)
}

// IsSubscriptionNeeded true если трек в переходе или стабилен в другом состоянии
func (c mediaControllers) IsSubscriptionNeeded(state media_state.MediaState) bool {
	return !c.InMediaState(state)
}

// InMediaState true если трек стабилен в state
func (c mediaControllers) InMediaState(state media_state.MediaState) bool {
	if v, ok := state.MediaExchange(); ok {
		cur, stable := c.exchange.State().Stable()
		return stable && cur == v
	}
	v, _ := state.Mute()
	cur, stable := c.mute.State().Stable()
	return stable && cur == v
}

// StopMediaStateTransitionTimeout приостанавливает таймеры обоих контроллеров
func (c mediaControllers) StopMediaStateTransitionTimeout() {
	c.exchange.StopTransitionTimeout()
	c.mute.StopTransitionTimeout()
}

// ResetMediaStateTransitionTimeout перезапускает таймеры обоих контроллеров
func (c mediaControllers) ResetMediaStateTransitionTimeout() {
	c.exchange.ResetTransitionTimeout()
	c.mute.ResetTransitionTimeout()
}

// pendingIntentions намерения для контроллеров, находящихся в переходе
func (c mediaControllers) pendingIntentions(id signaling.TrackID) []signaling.TrackPatchCommand {
	var out []signaling.TrackPatchCommand
	if tr, ok := c.exchange.State().Transition(); ok {
		out = append(out, signaling.TrackPatchCommand{ID: id, Enabled: signaling.Bool(tr.To.IsEnabled())})
	}
	if tr, ok := c.mute.State().Transition(); ok {
		out = append(out, signaling.TrackPatchCommand{ID: id, Muted: signaling.Bool(tr.To.IsMuted())})
	}
	return out
}

func (c mediaControllers) close() {
	c.exchange.Close()
	c.mute.Close()
}

package signaling

import (
	"encoding/json"
	"fmt"
)

type eventEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type commandEnvelope struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// EncodeEvent кодирует событие сервера в JSON конверт {"event", "data"}
func EncodeEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(eventEnvelope{Event: ev.EventName(), Data: data})
}

// DecodeEvent декодирует событие сервера
func DecodeEvent(b []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var ev Event
	switch env.Event {
	case EventPeerCreated:
		ev = &PeerCreated{}
	case EventPeerUpdated:
		ev = &PeerUpdated{}
	case EventPeersRemoved:
		ev = &PeersRemoved{}
	case EventConnectionQualityUpdated:
		ev = &ConnectionQualityUpdated{}
	case EventStateSynchronized:
		ev = &StateSynchronized{}
	default:
		return nil, fmt.Errorf("unknown event %q", env.Event)
	}
	if err := json.Unmarshal(env.Data, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return deref(ev), nil
}

// EncodeCommand кодирует команду клиента
func EncodeCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.CommandName(), err)
	}
	return json.Marshal(commandEnvelope{Command: cmd.CommandName(), Data: data})
}

// DecodeCommand декодирует команду клиента
func DecodeCommand(b []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode command envelope: %w", err)
	}

	switch env.Command {
	case CommandUpdateTracks:
		var cmd UpdateTracks
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Command, err)
		}
		return cmd, nil
	case CommandSynchronizeMe:
		var cmd SynchronizeMe
		if err := json.Unmarshal(env.Data, &cmd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Command, err)
		}
		return cmd, nil
	}
	return nil, fmt.Errorf("unknown command %q", env.Command)
}

// deref возвращает события по значению, как их создает сервер
func deref(ev Event) Event {
	switch e := ev.(type) {
	case *PeerCreated:
		return *e
	case *PeerUpdated:
		return *e
	case *PeersRemoved:
		return *e
	case *ConnectionQualityUpdated:
		return *e
	case *StateSynchronized:
		return *e
	}
	return ev
}

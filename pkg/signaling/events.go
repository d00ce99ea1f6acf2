package signaling

// Event событие от сервера
type Event interface {
	EventName() string
}

// Command команда клиента
type Command interface {
	CommandName() string
}

const (
	EventPeerCreated              = "PeerCreated"
	EventPeerUpdated              = "PeerUpdated"
	EventPeersRemoved             = "PeersRemoved"
	EventConnectionQualityUpdated = "ConnectionQualityUpdated"
	EventStateSynchronized        = "StateSynchronized"

	CommandUpdateTracks  = "UpdateTracks"
	CommandSynchronizeMe = "SynchronizeMe"
)

// PeerCreated сервер создал peer connection
type PeerCreated struct {
	PeerID     PeerID      `json:"peer_id"`
	Tracks     []Track     `json:"tracks"`
	IceServers []IceServer `json:"ice_servers"`
	ForceRelay bool        `json:"force_relay"`
}

func (PeerCreated) EventName() string { return EventPeerCreated }

// PeerUpdated изменения треков peer
type PeerUpdated struct {
	PeerID  PeerID       `json:"peer_id"`
	Updates []PeerUpdate `json:"updates"`
}

func (PeerUpdated) EventName() string { return EventPeerUpdated }

// PeersRemoved peer connections закрыты сервером
type PeersRemoved struct {
	PeerIDs []PeerID `json:"peer_ids"`
}

func (PeersRemoved) EventName() string { return EventPeersRemoved }

// ConnectionQualityUpdated качество соединения с участником изменилось
type ConnectionQualityUpdated struct {
	PartnerMemberID MemberID               `json:"partner_member_id"`
	QualityScore    ConnectionQualityScore `json:"quality_score"`
}

func (ConnectionQualityUpdated) EventName() string { return EventConnectionQualityUpdated }

// StateSynchronized авторитетное состояние комнаты в ответ на SynchronizeMe
type StateSynchronized struct {
	State RoomState `json:"state"`
}

func (StateSynchronized) EventName() string { return EventStateSynchronized }

// UpdateTracks намерение клиента изменить треки peer
type UpdateTracks struct {
	PeerID        PeerID              `json:"peer_id"`
	TracksPatches []TrackPatchCommand `json:"tracks_patches"`
}

func (UpdateTracks) CommandName() string { return CommandUpdateTracks }

// SynchronizeMe запрос синхронизации после восстановления соединения
type SynchronizeMe struct {
	State RoomState `json:"state"`
}

func (SynchronizeMe) CommandName() string { return CommandSynchronizeMe }

package signaling

// RoomState снимок состояния комнаты
type RoomState struct {
	Peers map[PeerID]PeerState `json:"peers"`
}

// PeerState снимок состояния peer
type PeerState struct {
	Senders    map[TrackID]SenderState   `json:"senders"`
	Receivers  map[TrackID]ReceiverState `json:"receivers"`
	IceServers []IceServer               `json:"ice_servers"`
	ForceRelay bool                      `json:"force_relay"`
	RestartIce bool                      `json:"restart_ice"`
}

// SenderState снимок исходящего трека
type SenderState struct {
	ID                TrackID    `json:"id"`
	Mid               string     `json:"mid,omitempty"`
	MediaType         MediaType  `json:"media_type"`
	Receivers         []MemberID `json:"receivers"`
	EnabledIndividual bool       `json:"enabled_individual"`
	EnabledGeneral    bool       `json:"enabled_general"`
	Muted             bool       `json:"muted"`
}

// ReceiverState снимок входящего трека
type ReceiverState struct {
	ID                TrackID   `json:"id"`
	Mid               string    `json:"mid,omitempty"`
	MediaType         MediaType `json:"media_type"`
	SenderID          MemberID  `json:"sender_id"`
	EnabledIndividual bool      `json:"enabled_individual"`
	EnabledGeneral    bool      `json:"enabled_general"`
	Muted             bool      `json:"muted"`
}

// NewRoomState создает пустой снимок
func NewRoomState() RoomState {
	return RoomState{Peers: make(map[PeerID]PeerState)}
}

// TrackFromSender восстанавливает описание трека из снимка
func TrackFromSender(s SenderState) Track {
	return Track{
		ID:                s.ID,
		Direction:         DirectionSend,
		Receivers:         s.Receivers,
		Mid:               s.Mid,
		MediaType:         s.MediaType,
		EnabledIndividual: s.EnabledIndividual,
		EnabledGeneral:    s.EnabledGeneral,
		Muted:             s.Muted,
	}
}

// TrackFromReceiver восстанавливает описание трека из снимка
func TrackFromReceiver(r ReceiverState) Track {
	return Track{
		ID:                r.ID,
		Direction:         DirectionRecv,
		Sender:            r.SenderID,
		Mid:               r.Mid,
		MediaType:         r.MediaType,
		EnabledIndividual: r.EnabledIndividual,
		EnabledGeneral:    r.EnabledGeneral,
		Muted:             r.Muted,
	}
}

package component

import (
	scenebridge "github.com/wippyai/scene-bridge"
)

// Well-known component ids shared with the scene runtime.
const (
	IDTransform          scenebridge.ComponentID = 1
	IDEngineInfo         scenebridge.ComponentID = 1048
	IDPointerEventResult scenebridge.ComponentID = 1063
	IDRaycastResult      scenebridge.ComponentID = 1068
	IDAvatarBase         scenebridge.ComponentID = 1087
	IDAvatarEmoteCommand scenebridge.ComponentID = 1088
	IDPlayerIdentityData scenebridge.ComponentID = 1089
	IDRealmInfo          scenebridge.ComponentID = 1106
)

// PlayerIdentityData binds a player entity to its external identity.
type PlayerIdentityData struct {
	Address string `json:"address"`
	IsGuest bool   `json:"isGuest"`
}

// AvatarBase is the visible profile of a player.
type AvatarBase struct {
	Name         string `json:"name"`
	BodyShapeURN string `json:"bodyShapeUrn"`
	SkinColor    string `json:"skinColor,omitempty"`
	EyesColor    string `json:"eyesColor,omitempty"`
	HairColor    string `json:"hairColor,omitempty"`
}

// AvatarEmoteCommand is appended every time a player triggers an emote.
type AvatarEmoteCommand struct {
	EmoteURN  string `json:"emoteUrn"`
	Loop      bool   `json:"loop"`
	Timestamp uint32 `json:"timestamp"`
}

// EngineInfo is written by the host every frame once the scene is running.
type EngineInfo struct {
	FrameNumber  uint32  `json:"frameNumber"`
	TotalRuntime float64 `json:"totalRuntime"`
	TickNumber   uint32  `json:"tickNumber"`
}

// RealmInfo describes the realm the scene is connected to.
type RealmInfo struct {
	BaseURL      string `json:"baseUrl"`
	RealmName    string `json:"realmName"`
	CommsAdapter string `json:"commsAdapter,omitempty"`
	NetworkID    int    `json:"networkId"`
	IsPreview    bool   `json:"isPreview"`
}

const playerIdentitySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["address"],
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "isGuest": {"type": "boolean"}
  }
}`

const avatarEmoteSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["emoteUrn"],
  "properties": {
    "emoteUrn": {"type": "string", "minLength": 1},
    "loop": {"type": "boolean"},
    "timestamp": {"type": "integer", "minimum": 0}
  }
}`

// RegisterWellKnown registers codecs for every well-known component.
func RegisterWellKnown(r *Registry) error {
	identity, err := NewJSONCodecWithSchema[PlayerIdentityData]("player-identity-data", playerIdentitySchema)
	if err != nil {
		return err
	}
	emote, err := NewJSONCodecWithSchema[AvatarEmoteCommand]("avatar-emote-command", avatarEmoteSchema)
	if err != nil {
		return err
	}

	regs := []struct {
		codec Codec
		name  string
		id    scenebridge.ComponentID
	}{
		{RawCodec{}, "core::Transform", IDTransform},
		{NewJSONCodec[EngineInfo](), "core::EngineInfo", IDEngineInfo},
		{RawCodec{}, "core::PointerEventsResult", IDPointerEventResult},
		{RawCodec{}, "core::RaycastResult", IDRaycastResult},
		{NewJSONCodec[AvatarBase](), "core::AvatarBase", IDAvatarBase},
		{emote, "core::AvatarEmoteCommand", IDAvatarEmoteCommand},
		{identity, "core::PlayerIdentityData", IDPlayerIdentityData},
		{NewJSONCodec[RealmInfo](), "core::RealmInfo", IDRealmInfo},
	}
	for _, reg := range regs {
		if err := r.Register(reg.id, reg.name, reg.codec); err != nil {
			return err
		}
	}
	return nil
}

package observable

import (
	"sync"
	"testing"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/worldsync"
)

func newDeriver(t *testing.T, ids ...EventID) *Deriver {
	t.Helper()
	reg := component.NewRegistry()
	if err := component.RegisterWellKnown(reg); err != nil {
		t.Fatal(err)
	}
	d, err := New(NewRegistry(ids...), reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func commit(e scenebridge.EntityID, c scenebridge.ComponentID, change worldsync.Change, v any) worldsync.Committed {
	return worldsync.Committed{Entity: e, Component: c, Change: change, Value: v}
}

func ids(events []Event) []EventID {
	out := make([]EventID, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestValidateRoutes(t *testing.T) {
	if err := validateRoutes(routes, nil); err != nil {
		t.Fatalf("static routes invalid: %v", err)
	}

	tests := []struct {
		name  string
		table map[scenebridge.ComponentID]route
	}{
		{"nil handler", map[scenebridge.ComponentID]route{
			component.IDRealmInfo: {emits: AllEvents},
		}},
		{"missing event", map[scenebridge.ComponentID]route{
			component.IDRealmInfo: {handle: (*Deriver).onRealmInfo, emits: []EventID{EventRealmChanged}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRoutes(tt.table, nil)
			if errors.PhaseOf(err) != errors.PhaseConfig {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestNew_RequiresWellKnownCodecs(t *testing.T) {
	if _, err := New(NewRegistry(), component.NewRegistry()); errors.KindOf(err) != errors.KindNotFound {
		t.Errorf("err = %v, want not found", err)
	}
	if _, err := New(nil, nil); err == nil {
		t.Errorf("nil subscriptions accepted")
	}
}

func TestDeriver_EnterAndLeave(t *testing.T) {
	d := newDeriver(t, EventEnterScene, EventLeaveScene)
	player := scenebridge.NewEntityID(32, 0)

	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeAdded,
		component.PlayerIdentityData{Address: "0xabc"}))

	id, ok := d.Identity(player)
	if !ok || id.Address != "0xabc" {
		t.Fatalf("identity = %+v, %v", id, ok)
	}

	// Same identity rewritten: no new event.
	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeUpdated,
		&component.PlayerIdentityData{Address: "0xabc"}))

	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeRemoved, nil))
	if _, ok := d.Identity(player); ok {
		t.Errorf("identity kept after removal")
	}

	got := d.Drain()
	want := []EventID{EventEnterScene, EventLeaveScene}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", ids(got), want)
	}
	for i := range want {
		if got[i].ID != want[i] || got[i].Address != "0xabc" || got[i].Entity != player {
			t.Errorf("event %d = %+v", i, got[i])
		}
	}
	if len(d.Drain()) != 0 {
		t.Errorf("Drain did not clear")
	}
}

func TestDeriver_AddressChangeIsLeaveThenEnter(t *testing.T) {
	d := newDeriver(t, EventEnterScene, EventLeaveScene)
	player := scenebridge.NewEntityID(32, 0)

	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeAdded, component.PlayerIdentityData{Address: "a"}))
	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeUpdated, component.PlayerIdentityData{Address: "b"}))

	got := d.Drain()
	if len(got) != 3 || got[1].ID != EventLeaveScene || got[1].Address != "a" || got[2].Address != "b" {
		t.Errorf("events = %+v", got)
	}
}

func TestDeriver_EntityDeletedLeaves(t *testing.T) {
	d := newDeriver(t, EventLeaveScene)
	player := scenebridge.NewEntityID(32, 0)
	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeAdded, component.PlayerIdentityData{Address: "a"}))
	d.Observe(worldsync.Committed{Entity: player, Change: worldsync.ChangeEntityDeleted})
	d.Observe(worldsync.Committed{Entity: player, Change: worldsync.ChangeEntityDeleted})

	got := d.Drain()
	if len(got) != 1 || got[0].ID != EventLeaveScene {
		t.Errorf("events = %+v", got)
	}
}

func TestDeriver_OnlySubscribedEvents(t *testing.T) {
	d := newDeriver(t, EventLeaveScene)
	player := scenebridge.NewEntityID(32, 0)
	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeAdded, component.PlayerIdentityData{Address: "a"}))

	if got := d.Drain(); len(got) != 0 {
		t.Errorf("unsubscribed events emitted: %v", ids(got))
	}
	if _, ok := d.Identity(player); !ok {
		t.Errorf("index must be kept without subscriptions")
	}
}

func TestDeriver_ProfileAndExpression(t *testing.T) {
	d := newDeriver(t, AllEvents...)
	player := scenebridge.NewEntityID(32, 0)
	stranger := scenebridge.NewEntityID(33, 0)

	d.Observe(commit(stranger, component.IDAvatarBase, worldsync.ChangeAdded, component.AvatarBase{Name: "ghost"}))
	d.Observe(commit(player, component.IDPlayerIdentityData, worldsync.ChangeAdded, component.PlayerIdentityData{Address: "0x1"}))
	d.Observe(commit(player, component.IDAvatarBase, worldsync.ChangeUpdated, component.AvatarBase{Name: "alice"}))
	d.Observe(commit(player, component.IDAvatarEmoteCommand, worldsync.ChangeAppended, component.AvatarEmoteCommand{EmoteURN: "wave"}))
	d.Observe(commit(player, component.IDAvatarBase, worldsync.ChangeAdded, "wrong type"))

	got := d.Drain()
	want := []EventID{EventEnterScene, EventProfileChanged, EventPlayerExpression}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", ids(got), want)
	}
	if got[1].Data.(component.AvatarBase).Name != "alice" || got[1].Address != "0x1" {
		t.Errorf("profile = %+v", got[1])
	}
	if got[2].Data.(component.AvatarEmoteCommand).EmoteURN != "wave" {
		t.Errorf("expression = %+v", got[2])
	}
}

func TestDeriver_SceneReadyOneShot(t *testing.T) {
	d := newDeriver(t, EventSceneReady, EventRealmChanged)
	info := component.EngineInfo{TickNumber: 1}

	for i := 0; i < 3; i++ {
		d.Observe(commit(0, component.IDEngineInfo, worldsync.ChangeUpdated, info))
	}
	d.Observe(commit(0, component.IDRealmInfo, worldsync.ChangeAdded, component.RealmInfo{RealmName: "main"}))

	got := d.Drain()
	if len(got) != 2 || got[0].ID != EventSceneReady || got[1].ID != EventRealmChanged {
		t.Fatalf("events = %v", ids(got))
	}
	if !d.Ready() {
		t.Errorf("Ready = false")
	}

	d.Reset()
	if d.Ready() {
		t.Errorf("Reset kept ready flag")
	}
	d.Observe(commit(0, component.IDEngineInfo, worldsync.ChangeUpdated, info))
	if got := d.Drain(); len(got) != 1 {
		t.Errorf("ready did not fire after Reset: %v", ids(got))
	}
}

func TestDeriver_ReadyNotReplayedToLateSubscriber(t *testing.T) {
	subs := NewRegistry()
	d, err := New(subs, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.Observe(commit(0, component.IDEngineInfo, worldsync.ChangeAdded, component.EngineInfo{}))
	subs.Subscribe(EventSceneReady)
	d.Observe(commit(0, component.IDEngineInfo, worldsync.ChangeUpdated, component.EngineInfo{}))

	if got := d.Drain(); len(got) != 0 {
		t.Errorf("events = %v", ids(got))
	}
}

func TestDeriver_IdentityReadsAreConcurrent(t *testing.T) {
	d := newDeriver(t)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = d.Identity(scenebridge.NewEntityID(1, 0))
					_ = len(d.Identities())
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		e := scenebridge.NewEntityID(uint16(i%16), 0)
		d.Observe(commit(e, component.IDPlayerIdentityData, worldsync.ChangeAdded, component.PlayerIdentityData{Address: "x"}))
		d.Observe(commit(e, component.IDPlayerIdentityData, worldsync.ChangeRemoved, nil))
	}
	close(stop)
	wg.Wait()

	if n := len(d.Identities()); n != 0 {
		t.Errorf("index has %d entries", n)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(EventSceneReady)
	r.Subscribe(EventEnterScene)
	r.Unsubscribe(EventSceneReady)
	got := r.IDs()
	if len(got) != 1 || got[0] != EventEnterScene {
		t.Errorf("IDs = %v", got)
	}
}

package worldsync

import (
	stderrors "errors"
	"testing"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/component"
	"github.com/wippyai/scene-bridge/crdt"
	"github.com/wippyai/scene-bridge/errors"
	"github.com/wippyai/scene-bridge/world"
)

const (
	compRaw   scenebridge.ComponentID = 2000
	compOther scenebridge.ComponentID = 2001
)

func newRegistry(t *testing.T) *component.Registry {
	t.Helper()
	reg := component.NewRegistry()
	if err := component.RegisterWellKnown(reg); err != nil {
		t.Fatalf("RegisterWellKnown: %v", err)
	}
	if err := reg.Register(compRaw, "test.raw", component.RawCodec{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(compOther, "test.other", component.RawCodec{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func put(e scenebridge.EntityID, c scenebridge.ComponentID, ts uint32, payload string) crdt.Message {
	return crdt.Message{Entity: e, Component: c, Timestamp: ts, Kind: crdt.KindPut, Payload: []byte(payload)}
}

// failingWorld rejects or panics on one key.
type failingWorld struct {
	*world.Memory
	failOn  scenebridge.Key
	doPanic bool
}

func (f *failingWorld) check(e scenebridge.EntityID, c scenebridge.ComponentID) error {
	if (scenebridge.Key{Entity: e, Component: c}) != f.failOn {
		return nil
	}
	if f.doPanic {
		panic("boom")
	}
	return stderrors.New("rejected by host")
}

func (f *failingWorld) AddComponent(e scenebridge.EntityID, c scenebridge.ComponentID, v any) error {
	if err := f.check(e, c); err != nil {
		return err
	}
	return f.Memory.AddComponent(e, c, v)
}

func (f *failingWorld) UpdateComponent(e scenebridge.EntityID, c scenebridge.ComponentID, v any) error {
	if err := f.check(e, c); err != nil {
		return err
	}
	return f.Memory.UpdateComponent(e, c, v)
}

func TestSyncCRDTMessage_Mapping(t *testing.T) {
	e := scenebridge.NewEntityID(512, 0)
	tests := []struct {
		name   string
		kind   crdt.Kind
		effect crdt.Effect
		want   Op
		staged bool
	}{
		{"put applied", crdt.KindPut, crdt.EffectApplied, OpPut, true},
		{"put obsolete", crdt.KindPut, crdt.EffectObsoleteIgnored, 0, false},
		{"delete deleted", crdt.KindDelete, crdt.EffectDeleted, OpRemove, true},
		{"delete obsolete", crdt.KindDelete, crdt.EffectObsoleteIgnored, 0, false},
		{"delete entity", crdt.KindDeleteEntity, crdt.EffectDeleted, OpEntityDeleted, true},
		{"append", crdt.KindAppend, crdt.EffectApplied, OpAppend, true},
	}

	s := NewSyncer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := s.GetSyncCommandBuffer()
			defer s.Recycle(buf)

			msg := crdt.Message{Entity: e, Component: compRaw, Timestamp: 1, Kind: tt.kind}
			staged, err := buf.SyncCRDTMessage(msg, tt.effect)
			if err != nil {
				t.Fatalf("SyncCRDTMessage: %v", err)
			}
			if staged != tt.staged {
				t.Fatalf("staged = %v, want %v", staged, tt.staged)
			}
			if !tt.staged {
				if buf.Len() != 0 {
					t.Errorf("buffer has %d commands", buf.Len())
				}
				return
			}
			if got := buf.Commands()[0].Op; got != tt.want {
				t.Errorf("op = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSyncCRDTMessage_DoesNotTouchWorld(t *testing.T) {
	w := world.NewMemory()
	buf := NewSyncer().GetSyncCommandBuffer()
	e := scenebridge.NewEntityID(512, 0)

	if _, err := buf.SyncCRDTMessage(put(e, compRaw, 1, "x"), crdt.EffectApplied); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 0 {
		t.Errorf("staging mutated the world")
	}
}

func TestFinalizeAndDeserialize_DropsOnlyBadCommands(t *testing.T) {
	reg := newRegistry(t)
	buf := NewSyncer().GetSyncCommandBuffer()
	e := scenebridge.NewEntityID(512, 0)

	msgs := []crdt.Message{
		put(e, compRaw, 1, "good"),
		put(e, 9999, 1, "unknown component"),
		put(e, component.IDPlayerIdentityData, 1, `{"address":""}`),
		put(e, component.IDAvatarBase, 1, `{not json`),
		{Entity: e, Component: compOther, Timestamp: 2, Kind: crdt.KindDelete},
	}
	for _, m := range msgs {
		effect := crdt.EffectApplied
		if m.Kind == crdt.KindDelete {
			effect = crdt.EffectDeleted
		}
		if _, err := buf.SyncCRDTMessage(m, effect); err != nil {
			t.Fatal(err)
		}
	}

	var reported []error
	dropped := buf.FinalizeAndDeserialize(reg, func(err error) { reported = append(reported, err) })
	if dropped != 3 || len(reported) != 3 {
		t.Fatalf("dropped = %d, reported = %d, want 3", dropped, len(reported))
	}
	if errors.KindOf(reported[0]) != errors.KindUnknownComponent {
		t.Errorf("first report kind = %s", errors.KindOf(reported[0]))
	}
	for _, err := range reported {
		if errors.PhaseOf(err) != errors.PhaseDeserialize {
			t.Errorf("report phase = %s, want deserialize", errors.PhaseOf(err))
		}
	}

	cmds := buf.Commands()
	if len(cmds) != 2 {
		t.Fatalf("remaining = %d, want 2", len(cmds))
	}
	if cmds[0].Component != compRaw || string(cmds[0].Value.([]byte)) != "good" {
		t.Errorf("cmd 0 = %+v", cmds[0])
	}
	if cmds[0].Payload != nil {
		t.Errorf("payload kept after finalize")
	}
	if cmds[1].Op != OpRemove {
		t.Errorf("cmd 1 op = %s", cmds[1].Op)
	}

	if _, err := buf.SyncCRDTMessage(put(e, compRaw, 5, "late"), crdt.EffectApplied); err == nil {
		t.Errorf("staging after finalize should fail")
	}
}

func TestApply_ResolvesPutAndCommits(t *testing.T) {
	reg := newRegistry(t)
	w := world.NewMemory()
	e := scenebridge.NewEntityID(512, 0)
	w.Set(e, compOther, []byte("existing"))

	buf := NewSyncer().GetSyncCommandBuffer()
	stage := []struct {
		msg    crdt.Message
		effect crdt.Effect
	}{
		{put(e, compRaw, 1, "new"), crdt.EffectApplied},
		{put(e, compOther, 1, "changed"), crdt.EffectApplied},
		{crdt.Message{Entity: e, Component: compRaw, Timestamp: 2, Kind: crdt.KindAppend, Payload: []byte("ping")}, crdt.EffectApplied},
		{crdt.Message{Entity: e, Component: compOther, Timestamp: 3, Kind: crdt.KindDelete}, crdt.EffectDeleted},
		{crdt.Message{Entity: e, Component: 4242, Timestamp: 3, Kind: crdt.KindDelete}, crdt.EffectDeleted},
	}
	for _, s := range stage {
		if _, err := buf.SyncCRDTMessage(s.msg, s.effect); err != nil {
			t.Fatal(err)
		}
	}
	buf.FinalizeAndDeserialize(reg, nil)

	committed, err := buf.Apply(w)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []Change{ChangeAdded, ChangeUpdated, ChangeAppended, ChangeRemoved}
	if len(committed) != len(want) {
		t.Fatalf("committed = %+v", committed)
	}
	for i, c := range want {
		if committed[i].Change != c {
			t.Errorf("commit %d = %s, want %s", i, committed[i].Change, c)
		}
		if committed[i].Origin != OriginScript {
			t.Errorf("commit %d origin = %s", i, committed[i].Origin)
		}
	}
	if string(committed[3].Value.([]byte)) != "changed" {
		t.Errorf("removed commit should carry the previous value, got %v", committed[3].Value)
	}

	if v, ok := w.Component(e, compRaw); !ok || string(v.([]byte)) != "new" {
		t.Errorf("world compRaw = %v, %v", v, ok)
	}
	if w.HasComponent(e, compOther) {
		t.Errorf("compOther should be removed")
	}
	appended := w.DrainAppended()[scenebridge.Key{Entity: e, Component: compRaw}]
	if len(appended) != 1 {
		t.Errorf("appended = %v", appended)
	}

	if _, err := buf.Apply(w); err == nil {
		t.Errorf("second Apply should fail")
	}
}

func TestApply_RequiresFinalize(t *testing.T) {
	buf := NewSyncer().GetSyncCommandBuffer()
	if _, err := buf.Apply(world.NewMemory()); errors.KindOf(err) != errors.KindInvalidInput {
		t.Errorf("err = %v", err)
	}
}

func TestApply_EntityDeleted(t *testing.T) {
	reg := newRegistry(t)
	w := world.NewMemory()
	e := scenebridge.NewEntityID(600, 0)
	w.Set(e, compRaw, []byte("a"))
	w.Set(e, compOther, []byte("b"))

	buf := NewSyncer().GetSyncCommandBuffer()
	msg := crdt.Message{Entity: e, Timestamp: 1, Kind: crdt.KindDeleteEntity}
	if _, err := buf.SyncCRDTMessage(msg, crdt.EffectDeleted); err != nil {
		t.Fatal(err)
	}
	buf.FinalizeAndDeserialize(reg, nil)

	committed, err := buf.Apply(w)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(committed) != 1 || committed[0].Change != ChangeEntityDeleted {
		t.Fatalf("committed = %+v", committed)
	}
	if w.Len() != 0 {
		t.Errorf("entity not deleted")
	}
}

func TestApply_RollsBackOnFailure(t *testing.T) {
	for _, doPanic := range []bool{false, true} {
		name := "error"
		if doPanic {
			name = "panic"
		}
		t.Run(name, func(t *testing.T) {
			reg := newRegistry(t)
			mem := world.NewMemory()
			e := scenebridge.NewEntityID(512, 0)
			victim := scenebridge.NewEntityID(513, 0)
			mem.Set(e, compOther, []byte("before"))
			mem.Set(victim, compRaw, []byte("victim"))

			w := &failingWorld{
				Memory:  mem,
				failOn:  scenebridge.Key{Entity: e, Component: compRaw},
				doPanic: doPanic,
			}

			buf := NewSyncer().GetSyncCommandBuffer()
			stage := []struct {
				msg    crdt.Message
				effect crdt.Effect
			}{
				{put(e, compOther, 2, "after"), crdt.EffectApplied},
				{crdt.Message{Entity: victim, Timestamp: 2, Kind: crdt.KindDeleteEntity}, crdt.EffectDeleted},
				{put(scenebridge.NewEntityID(514, 0), compRaw, 2, "added"), crdt.EffectApplied},
				{put(e, compRaw, 2, "fails"), crdt.EffectApplied},
				{put(e, compRaw+1, 2, "never reached"), crdt.EffectApplied},
			}
			for _, s := range stage {
				if _, err := buf.SyncCRDTMessage(s.msg, s.effect); err != nil {
					t.Fatal(err)
				}
			}
			buf.FinalizeAndDeserialize(reg, nil)

			committed, err := buf.Apply(w)
			if err == nil {
				t.Fatal("Apply should fail")
			}
			if errors.PhaseOf(err) != errors.PhaseApply {
				t.Errorf("phase = %s", errors.PhaseOf(err))
			}
			if doPanic && errors.KindOf(err) != errors.KindPanic {
				t.Errorf("kind = %s, want panic", errors.KindOf(err))
			}
			if committed != nil {
				t.Errorf("committed = %+v, want nil", committed)
			}

			if v, _ := mem.Component(e, compOther); string(v.([]byte)) != "before" {
				t.Errorf("update not rolled back: %s", v)
			}
			if v, ok := mem.Component(victim, compRaw); !ok || string(v.([]byte)) != "victim" {
				t.Errorf("entity delete not rolled back")
			}
			if mem.Len() != 2 {
				t.Errorf("world has %d components, want 2", mem.Len())
			}
		})
	}
}

func TestSyncer_RecycleResets(t *testing.T) {
	s := NewSyncer()
	buf := s.GetSyncCommandBuffer()
	e := scenebridge.NewEntityID(512, 0)
	_, _ = buf.SyncCRDTMessage(put(e, compRaw, 1, "x"), crdt.EffectApplied)
	s.Recycle(buf)

	next := s.GetSyncCommandBuffer()
	if next.Len() != 0 {
		t.Errorf("recycled buffer not empty")
	}
	if _, err := next.SyncCRDTMessage(put(e, compRaw, 2, "y"), crdt.EffectApplied); err != nil {
		t.Errorf("recycled buffer not staging: %v", err)
	}
}

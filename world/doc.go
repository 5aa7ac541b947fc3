// Package world defines the host world contract the bridge mutates and an
// in-memory implementation of it.
//
// The host world has a single writer discipline: whoever mutates it holds its
// lock. The bridge only mutates it from gate.Apply, which takes the lock for
// the whole cycle; host systems take the same lock while they run.
//
// # Two write paths
//
// World methods (AddComponent, UpdateComponent, ...) are the bridge's path:
// they apply changes that originated in the script and do not notify
// observers. The host path (Set, Remove, Destroy, Emit) is for host systems;
// it notifies observers so host-authored changes can be sent back to the
// script:
//
//	w := world.NewMemory()
//	w.Subscribe(collectorObserver)
//
//	w.Lock()
//	w.Set(player, component.IDPlayerIdentityData, identity)
//	w.Unlock()
//
// Memory methods never lock on their own. Callers hold Lock for both paths.
package world

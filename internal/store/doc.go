// Package store provides the durable key/value namespaces used by basecamp.
//
// The device keeps two independent namespaces: the health namespace, which
// holds the boot counter, and the configuration namespace, which holds the
// network configuration and device identifiers. Each is a small YAML map on
// flash.
//
// # Sessions
//
// A namespace is only touched through a scoped Session:
//
//	s, err := ns.Begin(false)
//	if err != nil {
//	    return err
//	}
//	defer s.End()
//	_ = s.PutUint("bootcounter", 0)
//
// Begin reads the file, End writes it back with a tmp+fsync+rename sequence
// and releases the namespace. Sessions on one namespace are serialized, so a
// read-modify-write never loses another writer's keys.
//
// # Restarts
//
// Quiesced reports whether any session is still open. Drain waits for the
// open sessions to end and keeps new ones out while a restart is issued; a
// restart with an open session would lose writes.
//
// # Factory reset
//
// Format empties a storage root. It is used for the configuration
// filesystem only; the health namespace lives outside of it.
package store

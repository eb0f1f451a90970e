// Package place implements place ownership and the referential-integrity
// protocol between places and their owning users.
//
// A Place is created and deleted only through the Coordinator, which keeps
// Place.OwnerID and User.PlaceIDs mutually consistent by running both writes
// in one store transaction. The Guard restricts mutation to the owner. The
// Service is the public facade: it validates input, calls the Coordinator,
// and turns every error into a *Failure with a stable kind and message.
//
// Store implementations live in repository/postgres/, repository/mongo/
// and repository/memory/.
package place

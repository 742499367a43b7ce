package model

// ActorKind identifies who requested a status change.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorAdmin  ActorKind = "admin"
	ActorSystem ActorKind = "system"
)

// Actor is the caller of an order operation.
type Actor struct {
	Kind   ActorKind
	UserID string
}

// SystemActor is used by payment reconciliation.
var SystemActor = Actor{Kind: ActorSystem}

// UserActor returns an actor for an authenticated customer.
func UserActor(userID string) Actor {
	return Actor{Kind: ActorUser, UserID: userID}
}

// AdminActor returns an actor for an administrator.
func AdminActor(userID string) Actor {
	return Actor{Kind: ActorAdmin, UserID: userID}
}

// Privileged reports whether the actor may see and change any order.
func (a Actor) Privileged() bool {
	return a.Kind == ActorAdmin || a.Kind == ActorSystem
}

// ActorMayTransition applies the actor policy on top of CanTransition.
// Users may only cancel pending orders. System reconciliation may confirm or
// cancel pending orders. Admins may take any lifecycle edge.
func ActorMayTransition(actor Actor, from, to OrderStatus) bool {
	switch actor.Kind {
	case ActorAdmin:
		return true
	case ActorSystem:
		return from == StatusPending && (to == StatusConfirmed || to == StatusCancelled)
	case ActorUser:
		return from == StatusPending && to == StatusCancelled
	default:
		return false
	}
}

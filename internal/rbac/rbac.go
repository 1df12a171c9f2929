// Package rbac decides which actions a user may take on a post or account,
// based on whether they own it.
package rbac

type Relation string
type Action string

const (
	RelationOwner Relation = "owner"
	RelationOther Relation = "other"
)

const (
	ActionRead   Action = "read"
	ActionReply  Action = "reply"
	ActionRate   Action = "rate"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

func Can(rel Relation, action Action) bool {
	switch rel {
	case RelationOwner:
		return true
	case RelationOther:
		return action == ActionRead || action == ActionReply || action == ActionRate
	default:
		return false
	}
}

// RelationOf reports how actorID relates to a resource owned by ownerID.
func RelationOf(actorID, ownerID string) Relation {
	if actorID != "" && actorID == ownerID {
		return RelationOwner
	}
	return RelationOther
}

// Policy applies deployment overrides on top of Can.
type Policy struct {
	// OpenEditing lets any confirmed user edit or delete any post.
	OpenEditing bool
}

func (p Policy) Allows(actorID, ownerID string, action Action) bool {
	if actorID == "" {
		return false
	}
	if p.OpenEditing && (action == ActionEdit || action == ActionDelete) {
		return true
	}
	return Can(RelationOf(actorID, ownerID), action)
}

package event

// AffectedUsers computes the set of users that must be told about a chat
// change described by its before/after states.
//
// Both present: equal member sets mean the membership did not change (e.g. a
// rename) and nobody needs a notification; otherwise the union of both sets
// is returned so that users who lost access and users who gained access are
// all told. Only old (deletion) returns old's members; only new (creation)
// returns new's members. Neither present returns the empty set.
//
// The union is intentional: on any membership change every member of either
// side is notified, including members present in both. That over-notifies
// unchanged members but keeps the contract simple.
func AffectedUsers(old, new *Chat) map[int64]struct{} {
	switch {
	case old != nil && new != nil:
		oldSet := memberSet(old.Members)
		newSet := memberSet(new.Members)
		if equalSets(oldSet, newSet) {
			return map[int64]struct{}{}
		}
		for id := range newSet {
			oldSet[id] = struct{}{}
		}
		return oldSet
	case old != nil:
		return memberSet(old.Members)
	case new != nil:
		return memberSet(new.Members)
	default:
		return map[int64]struct{}{}
	}
}

func memberSet(members []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(members))
	for _, id := range members {
		set[id] = struct{}{}
	}
	return set
}

func equalSets(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

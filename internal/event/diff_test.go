package event

import (
	"sort"
	"testing"
)

func chatWithMembers(members ...int64) *Chat {
	return &Chat{ID: 1, WsID: 1, Type: ChatTypeGroup, Members: members}
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestAffectedUsersEqualSets(t *testing.T) {
	old := chatWithMembers(1, 2, 3)
	new := chatWithMembers(3, 2, 1) // same set, different order

	got := AffectedUsers(old, new)
	if len(got) != 0 {
		t.Fatalf("expected empty set for unchanged membership, got %v", sortedIDs(got))
	}
}

func TestAffectedUsersRenameOnly(t *testing.T) {
	name := "general"
	old := chatWithMembers(1, 2)
	new := chatWithMembers(1, 2)
	new.Name = &name

	got := AffectedUsers(old, new)
	if len(got) != 0 {
		t.Fatalf("rename without membership change should notify nobody, got %v", sortedIDs(got))
	}
}

func TestAffectedUsersUnion(t *testing.T) {
	tests := []struct {
		name string
		old  []int64
		new  []int64
		want []int64
	}{
		{"member swapped", []int64{1, 2}, []int64{1, 3}, []int64{1, 2, 3}},
		{"member added", []int64{1, 2}, []int64{1, 2, 3}, []int64{1, 2, 3}},
		{"member removed", []int64{1, 2, 3}, []int64{1, 2}, []int64{1, 2, 3}},
		{"disjoint", []int64{1, 2}, []int64{3, 4}, []int64{1, 2, 3, 4}},
		{"overlapping change", []int64{1, 2}, []int64{2, 3}, []int64{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sortedIDs(AffectedUsers(chatWithMembers(tt.old...), chatWithMembers(tt.new...)))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestAffectedUsersCreation(t *testing.T) {
	got := sortedIDs(AffectedUsers(nil, chatWithMembers(4, 5)))
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("expected [4 5], got %v", got)
	}
}

func TestAffectedUsersDeletion(t *testing.T) {
	got := sortedIDs(AffectedUsers(chatWithMembers(7, 8, 9), nil))
	if len(got) != 3 || got[0] != 7 || got[1] != 8 || got[2] != 9 {
		t.Fatalf("expected [7 8 9], got %v", got)
	}
}

func TestAffectedUsersNeitherPresent(t *testing.T) {
	got := AffectedUsers(nil, nil)
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %v", sortedIDs(got))
	}
}

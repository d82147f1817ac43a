package room

import (
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	public := &Room{ID: "r1", Visibility: Public, OwnerID: "owner", AllowList: []string{"member"}}
	private := &Room{ID: "r2", Visibility: Private, OwnerID: "owner", AllowList: []string{"member"}}

	tests := []struct {
		name   string
		room   *Room
		actor  string
		action Action
		want   error
	}{
		{"public read anonymous", public, "", ActionRead, nil},
		{"public read stranger", public, "stranger", ActionRead, nil},
		{"public write anonymous", public, "", ActionWrite, ErrAuthRequired},
		{"public write stranger", public, "stranger", ActionWrite, nil},
		{"public manage anonymous", public, "", ActionManage, ErrAuthRequired},
		{"public manage stranger", public, "stranger", ActionManage, ErrForbidden},
		{"public manage owner", public, "owner", ActionManage, nil},

		{"private read anonymous", private, "", ActionRead, ErrAuthRequired},
		{"private read stranger", private, "stranger", ActionRead, ErrForbidden},
		{"private read member", private, "member", ActionRead, nil},
		{"private read owner", private, "owner", ActionRead, nil},
		{"private write anonymous", private, "", ActionWrite, ErrAuthRequired},
		{"private write stranger", private, "stranger", ActionWrite, ErrForbidden},
		{"private write member", private, "member", ActionWrite, nil},
		{"private manage member", private, "member", ActionManage, ErrForbidden},
		{"private manage owner", private, "owner", ActionManage, nil},
		{"unknown action", public, "owner", Action("delete-everything"), ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.room, tt.actor, tt.action)
			if tt.want == nil {
				if got != nil {
					t.Errorf("Decide() = %v, want allow", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecide_OwnerWithoutAllowList(t *testing.T) {
	r := &Room{Visibility: Private, OwnerID: "owner"}
	if err := Decide(r, "owner", ActionRead); err != nil {
		t.Errorf("owner must be allowed regardless of allow-list: %v", err)
	}
}

func TestDecide_UnknownVisibilityFailsClosed(t *testing.T) {
	r := &Room{Visibility: Visibility("secret"), OwnerID: "owner"}
	if err := Decide(r, "", ActionRead); !errors.Is(err, ErrAuthRequired) {
		t.Errorf("Decide(anonymous) = %v, want ErrAuthRequired", err)
	}
	if err := Decide(r, "stranger", ActionRead); !errors.Is(err, ErrForbidden) {
		t.Errorf("Decide(stranger) = %v, want ErrForbidden", err)
	}
}

func TestAuthRequiredAndForbiddenAreDistinct(t *testing.T) {
	if errors.Is(ErrAuthRequired, ErrForbidden) || errors.Is(ErrForbidden, ErrAuthRequired) {
		t.Fatal("ErrAuthRequired and ErrForbidden must be distinct")
	}
}

func TestNormalizeAllowList(t *testing.T) {
	got := normalizeAllowList([]string{"b", "a", "", "b", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("normalizeAllowList() = %v, want [a b]", got)
	}
}

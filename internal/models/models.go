package models

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/samber/lo"
)

// RoomKind is the closed set of room variants.
type RoomKind int

const (
	KindDirect RoomKind = iota
	KindGroup
)

func (k RoomKind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "direct"
}

type RoomFilter string

const (
	FilterAll    RoomFilter = "all"
	FilterGroup  RoomFilter = "group"
	FilterDirect RoomFilter = "direct"
)

func ParseRoomFilter(s string) (RoomFilter, error) {
	switch RoomFilter(strings.ToLower(s)) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterGroup:
		return FilterGroup, nil
	case FilterDirect:
		return FilterDirect, nil
	}
	return "", apperr.Validation("unknown room filter %q", s)
}

type Room struct {
	ID        string
	Name      string
	OwnerID   string
	MemberIDs []string
	Kind      RoomKind
	IsDeleted bool
	CreatedAt time.Time
}

// NewDirectRoom builds a two-member room owned by the caller.
func NewDirectRoom(id, ownerID, peerID string, now time.Time) (Room, error) {
	if ownerID == "" || peerID == "" {
		return Room{}, apperr.Validation("direct chat needs two members")
	}
	if ownerID == peerID {
		return Room{}, apperr.Validation("cannot open a direct chat with yourself")
	}
	return Room{
		ID:        id,
		OwnerID:   ownerID,
		MemberIDs: []string{ownerID, peerID},
		Kind:      KindDirect,
		CreatedAt: now,
	}, nil
}

// NewGroupRoom builds a named room; the owner is always a member.
func NewGroupRoom(id, ownerID, name string, memberIDs []string, now time.Time) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, apperr.Validation("group name is required")
	}
	members := lo.Uniq(append(lo.Compact(memberIDs), ownerID))
	if len(members) < 2 {
		return Room{}, apperr.Validation("at least one member required for group chat")
	}
	return Room{
		ID:        id,
		Name:      name,
		OwnerID:   ownerID,
		MemberIDs: members,
		Kind:      KindGroup,
		CreatedAt: now,
	}, nil
}

func (r Room) IsGroup() bool { return r.Kind == KindGroup }

func (r Room) IsOwner(accountID string) bool { return r.OwnerID == accountID }

func (r Room) HasMember(accountID string) bool { return lo.Contains(r.MemberIDs, accountID) }

// Peer returns the other member of a direct room, or "" if there is none.
func (r Room) Peer(accountID string) string {
	peer, _ := lo.Find(r.MemberIDs, func(m string) bool { return m != accountID })
	return peer
}

// DirectKey is the canonical, order-independent key for a pair of accounts.
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0] + "\x1f" + pair[1]
}

// SameMembers reports set equality, ignoring order and duplicates.
func SameMembers(a, b []string) bool {
	left, right := lo.Difference(lo.Uniq(a), lo.Uniq(b))
	return len(left) == 0 && len(right) == 0
}

// GroupName synthesizes a label for a group built from a member list.
func GroupName(members []string) string {
	unique := lo.Uniq(members)
	switch len(unique) {
	case 0:
		return "New Group"
	case 1:
		return unique[0]
	case 2:
		return unique[0] + " & " + unique[1]
	default:
		return unique[0] + " + " + unique[1] + " + " + strconv.Itoa(len(unique)-2) + " others"
	}
}

package chat

import (
	"context"
	"fmt"

	"github.com/pliu/chatcore/internal/apperr"
	"github.com/pliu/chatcore/internal/models"
	"github.com/pliu/chatcore/internal/store"
	"github.com/samber/lo"
)

// Guard answers the authorization questions shared by room and message
// operations. It holds no state besides the contacts collaborator.
type Guard struct {
	contacts store.Contacts
}

func NewGuard(contacts store.Contacts) *Guard {
	return &Guard{contacts: contacts}
}

func (g *Guard) AssertMember(room *models.Room, accountID string) error {
	if !room.HasMember(accountID) {
		return apperr.Forbidden("you are not a member of this chat room")
	}
	return nil
}

func (g *Guard) AssertOwner(room *models.Room, accountID string) error {
	if !room.IsOwner(accountID) {
		return apperr.Forbidden("only the room owner can do this")
	}
	return nil
}

// AssertKnownContacts fails with *apperr.UnknownContactsError naming, in
// input order, every candidate that is not a contact of accountID.
func (g *Guard) AssertKnownContacts(ctx context.Context, accountID string, candidates []string) error {
	if len(candidates) == 0 {
		return nil
	}
	known, err := g.contacts.ContactsOf(ctx, accountID)
	if err != nil {
		return fmt.Errorf("load contacts of %s: %w", accountID, err)
	}
	knownSet := lo.SliceToMap(known, func(id string) (string, struct{}) {
		return NormalizeID(id), struct{}{}
	})
	unknown := lo.Filter(candidates, func(id string, _ int) bool {
		_, ok := knownSet[NormalizeID(id)]
		return !ok
	})
	if len(unknown) > 0 {
		return &apperr.UnknownContactsError{Members: unknown}
	}
	return nil
}

package sync

import (
	"context"

	"github.com/klauern/blocksync/internal/model"
)

// Confirmer decides whether an import that introduces new identities may
// proceed. Confirm blocks until the operator decides or ctx is done.
type Confirmer interface {
	Confirm(ctx context.Context, newIdentities []model.Identity) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, newIdentities []model.Identity) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, ids []model.Identity) (bool, error) {
	return f(ctx, ids)
}

// AlwaysConfirm proceeds without asking.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, []model.Identity) (bool, error) {
	return true, nil
})

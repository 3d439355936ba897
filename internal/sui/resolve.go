package sui

import (
	"context"
	"fmt"

	"imaigine-lab/internal/ptb"
)

// ResolveObjects fills every unresolved object input of tx with the current
// version and digest from the node. Shared objects are passed mutably.
func ResolveObjects(ctx context.Context, rpc RPCClient, tx *ptb.Transaction) error {
	ids := tx.UnresolvedObjects()
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	objs, err := rpc.MultiGetObjects(ctx, strs)
	if err != nil {
		return fmt.Errorf("resolve objects: %w", err)
	}
	if len(objs) != len(ids) {
		return fmt.Errorf("resolve objects: asked for %d, got %d", len(ids), len(objs))
	}

	for i, obj := range objs {
		if obj == nil {
			return fmt.Errorf("resolve %s: %w", strs[i], ErrObjectNotFound)
		}
		tx.Resolve(ids[i], objectArg(ids[i], obj))
	}
	return nil
}

func objectArg(id ptb.Address, obj *Object) ptb.ObjectArg {
	if obj.Owner.Kind == OwnerShared {
		return ptb.ObjectArg{
			Kind:                 ptb.ObjectShared,
			Ref:                  ptb.ObjectRef{ObjectID: id},
			InitialSharedVersion: obj.Owner.InitialSharedVersion,
			Mutable:              true,
		}
	}
	return ptb.ObjectArg{
		Kind: ptb.ObjectImmOrOwned,
		Ref:  ptb.ObjectRef{ObjectID: id, Version: obj.Version, Digest: obj.Digest},
	}
}

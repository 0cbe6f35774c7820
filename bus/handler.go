package bus

import (
	"context"

	"github.com/agentmesh/substrate/types"
)

// Handler is the subscriber capability: given a Message, it reports success
// or failure. Handlers are invoked concurrently for distinct messages to the
// same participant (the bus does not serialize per-recipient delivery) and
// must be reentrant or guard their own state, per spec.md §5.
type Handler interface {
	Handle(ctx context.Context, msg types.Message) error
}

// HandlerFunc adapts a plain function to Handler.
//
// Subscribe/Unsubscribe idempotency (spec.md §4.1) compares handlers with
// ==, which works for pointer-backed Handler implementations but panics for
// uncomparable dynamic types such as a bare func. safeHandlerEqual below
// recovers from that panic and treats two HandlerFunc values as always
// distinct — re-subscribing the same closure adds a second delivery-set
// member rather than being a no-op. Prefer a pointer-receiver Handler when
// idempotent re-subscription matters.
type HandlerFunc func(ctx context.Context, msg types.Message) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg types.Message) error {
	return f(ctx, msg)
}

func safeHandlerEqual(a, b Handler) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

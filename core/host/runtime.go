// Package host runs entry points as atomic units of work and forwards calls
// to registered downstream components.
package host

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/pyropy/chunkloader/core/ledger"
	"github.com/pyropy/chunkloader/core/model"
	"github.com/pyropy/chunkloader/lib/cmap"
	"github.com/pyropy/chunkloader/lib/logger"
)

var log, _ = logger.New("host")

// MaxInvokeDepth bounds nested forwarded calls.
const MaxInvokeDepth = 4

var (
	ErrUnknownComponent    = errors.New("unknown component")
	ErrComponentExists     = errors.New("component already registered")
	ErrPrivilegeEscalation = errors.New("forwarded signer privilege not held by caller")
	ErrCallDepth           = errors.New("forwarded call depth exceeded")
)

// Instruction is a call to a downstream component.
type Instruction struct {
	Program  model.Address
	Accounts []model.AccountMeta
	Data     []byte
}

// Call is what a component sees when it is invoked.
type Call struct {
	Tx       *ledger.Tx
	Program  model.Address
	Accounts []model.AccountMeta
	Data     []byte
	Invoker  Invoker
}

type Component interface {
	Invoke(ctx context.Context, call *Call) error
}

type ComponentFunc func(ctx context.Context, call *Call) error

func (f ComponentFunc) Invoke(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// Invoker forwards an instruction synchronously inside the caller's tx.
type Invoker interface {
	Invoke(ctx context.Context, tx *ledger.Tx, ix Instruction) error
}

type Runtime struct {
	// serialises units of work so each account has a single writer
	mu         sync.Mutex
	store      *ledger.Store
	components *cmap.Map[model.Address, Component]
}

func NewRuntime(store *ledger.Store) *Runtime {
	return &Runtime{
		store:      store,
		components: cmap.NewMap[model.Address, Component](),
	}
}

func (r *Runtime) Store() *ledger.Store {
	return r.store
}

func (r *Runtime) Register(program model.Address, c Component) error {
	if !r.components.SetIfAbsent(program, c) {
		return errors.Wrapf(ErrComponentExists, "%s", program)
	}
	log.Infow("register", "status", "component registered", "program", program.String())

	return nil
}

// Execute runs fn as one unit of work. Every change fn makes through tx is
// committed together, or none is when fn or the commit fails.
func (r *Runtime) Execute(ctx context.Context, signers []model.Address, fn func(ctx context.Context, tx *ledger.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := r.store.Begin(signers...)
	if err := fn(ctx, tx); err != nil {
		tx.Discard()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		tx.Discard()
		return err
	}

	return nil
}

type depthKey struct{}

// Invoke calls the component registered for ix.Program. The component's
// error is returned as is.
func (r *Runtime) Invoke(ctx context.Context, tx *ledger.Tx, ix Instruction) error {
	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= MaxInvokeDepth {
		return errors.Wrapf(ErrCallDepth, "depth %d", depth)
	}

	c, ok := r.components.Get(ix.Program)
	if !ok {
		return errors.Wrapf(ErrUnknownComponent, "%s", ix.Program)
	}

	forwarded := make([]model.Address, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		if !meta.IsSigner {
			continue
		}
		if !tx.IsSigner(meta.Address) {
			return errors.Wrapf(ErrPrivilegeEscalation, "%s", meta.Address)
		}
		forwarded = append(forwarded, meta.Address)
	}

	// the component signs only with what was forwarded to it
	call := &Call{
		Tx:       tx.WithSigners(forwarded),
		Program:  ix.Program,
		Accounts: ix.Accounts,
		Data:     ix.Data,
		Invoker:  r,
	}

	err := c.Invoke(context.WithValue(ctx, depthKey{}, depth+1), call)
	if err != nil {
		log.Infow("invoke", "status", "component failed", "program", ix.Program.String(), "error", err)
		return err
	}

	log.Debugw("invoke", "status", "component succeeded", "program", ix.Program.String(), "len", len(ix.Data))
	return nil
}

package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"
)

// Store persists the game record and the custody ledger. Commit must apply
// everything in a Commit atomically or not at all.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Registry(ctx context.Context) (string, error)
	ContractInfo(ctx context.Context) (ContractInfo, error)
	Balance(ctx context.Context, address, denom string) (*uint256.Int, error)
	Commit(ctx context.Context, c *Commit) error
}

// NameResolver looks up the names an address owns in an external registry.
type NameResolver interface {
	Names(ctx context.Context, registry, address string) ([]string, error)
}

// Commit is the unit of persistence for one successful operation.
type Commit struct {
	Action string
	Sender string
	// Round the operation acted on, before any reset.
	Round    uint64
	State    *State
	Registry *string
	Info     *ContractInfo
	// Funds attached by Sender, moved into custody.
	Funds []Coin
	// Transfers debited from custody and queued for settlement.
	Transfers []Transfer
}

// CommitCallback runs after a commit is durable, outside the engine lock.
// Callbacks of concurrent operations may overlap.
type CommitCallback func(c *Commit, resp *Response)

// ExecuteMsg selects exactly one operation.
type ExecuteMsg struct {
	Deposit     *struct{}     `json:"deposit,omitempty"`
	Claim       *struct{}     `json:"claim,omitempty"`
	UnlockStale *struct{}     `json:"unlock_stale,omitempty"`
	Pause       *struct{}     `json:"pause,omitempty"`
	Unpause     *struct{}     `json:"unpause,omitempty"`
	Configure   *ConfigureMsg `json:"configure,omitempty"`
}

type ConfigureMsg struct {
	Msg ConfigurePatch `json:"msg"`
}

func (m ExecuteMsg) count() int {
	n := 0
	for _, set := range []bool{
		m.Deposit != nil, m.Claim != nil, m.UnlockStale != nil,
		m.Pause != nil, m.Unpause != nil, m.Configure != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Options configures deployment constants.
type Options struct {
	// Denom is the only currency deposits are accepted in.
	Denom string
	// Custody is the ledger address that holds the pool.
	Custody string
	Version string
}

// Engine hosts a single game. It serializes operations so that
// load, validate, mutate, persist and emit happen as one step.
type Engine struct {
	store    Store
	resolver NameResolver
	opts     Options
	logger   *slog.Logger
	onCommit CommitCallback
	mu       sync.Mutex
}

func NewEngine(store Store, resolver NameResolver, opts Options, logger *slog.Logger, onCommit CommitCallback) *Engine {
	if opts.Version == "" {
		opts.Version = ContractVersion
	}
	return &Engine{
		store:    store,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		onCommit: onCommit,
	}
}

func (e *Engine) Denom() string   { return e.opts.Denom }
func (e *Engine) Custody() string { return e.opts.Custody }

// Instantiate creates the game. Funds attached here seed the first pool.
func (e *Engine) Instantiate(ctx context.Context, call Call, p InstantiateParams) (*Response, error) {
	return e.notify(e.instantiate(ctx, call, p))
}

func (e *Engine) instantiate(ctx context.Context, call Call, p InstantiateParams) (*Commit, *Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.Load(ctx); err == nil {
		return nil, nil, ErrAlreadyInstantiated
	} else if !errors.Is(err, ErrNotInstantiated) {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}

	st, resp, err := Instantiate(call, p)
	if err != nil {
		return nil, nil, err
	}
	c := &Commit{
		Action:   resp.Action,
		Sender:   call.Sender,
		Round:    st.Round,
		State:    st,
		Registry: p.Registry,
		Info:     &ContractInfo{Contract: ContractName, Version: e.opts.Version},
		Funds:    call.Funds,
	}
	return e.commit(ctx, c, resp)
}

// Execute applies one operation against the persisted state.
func (e *Engine) Execute(ctx context.Context, call Call, msg ExecuteMsg) (*Response, error) {
	if msg.count() != 1 {
		return nil, ErrInvalidInput
	}
	return e.notify(e.execute(ctx, call, msg))
}

func (e *Engine) execute(ctx context.Context, call Call, msg ExecuteMsg) (*Commit, *Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	next := st.Clone()
	c := &Commit{Sender: call.Sender, Round: st.Round, State: next, Funds: call.Funds}

	var resp *Response
	switch {
	case msg.Deposit != nil:
		gate, gerr := e.gate(ctx)
		if gerr != nil {
			return nil, nil, gerr
		}
		resp, err = next.Deposit(ctx, call, e.opts.Denom, gate)
	case msg.Claim != nil:
		pool, perr := e.pool(ctx, call.Funds)
		if perr != nil {
			return nil, nil, perr
		}
		resp, err = next.Claim(call, pool)
	case msg.UnlockStale != nil:
		resp, err = next.UnlockStale(call)
	case msg.Pause != nil:
		resp, err = next.Pause(call)
	case msg.Unpause != nil:
		resp, err = next.Unpause(call)
	case msg.Configure != nil:
		resp, err = next.Configure(call, msg.Configure.Msg)
		c.Registry = msg.Configure.Msg.Registry
	}
	if err != nil {
		e.logger.Debug("operation rejected", "sender", call.Sender, "round", st.Round, "err", err)
		return nil, nil, err
	}

	c.Action = resp.Action
	c.Transfers = resp.Transfers
	return e.commit(ctx, c, resp)
}

// Migrate bumps the persisted version marker while the game is paused.
func (e *Engine) Migrate(ctx context.Context, call Call, version string) (*Response, error) {
	return e.notify(e.migrate(ctx, call, version))
}

func (e *Engine) migrate(ctx context.Context, call Call, version string) (*Commit, *Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.store.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	info, err := e.store.ContractInfo(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load contract info: %w", err)
	}
	migrated, resp, err := Migrate(st, call, info, version)
	if err != nil {
		return nil, nil, err
	}
	c := &Commit{
		Action: resp.Action,
		Sender: call.Sender,
		Round:  st.Round,
		State:  st,
		Info:   &migrated,
	}
	return e.commit(ctx, c, resp)
}

// commit persists c. Callers hold e.mu.
func (e *Engine) commit(ctx context.Context, c *Commit, resp *Response) (*Commit, *Response, error) {
	if err := e.store.Commit(ctx, c); err != nil {
		return nil, nil, fmt.Errorf("commit %s: %w", c.Action, err)
	}
	e.logger.Info("operation committed",
		"action", c.Action,
		"sender", c.Sender,
		"round", c.Round,
		"expiration", c.State.Expiration,
		"transfers", len(c.Transfers),
	)
	return c, resp, nil
}

// notify runs the commit callback once the lock is released.
func (e *Engine) notify(c *Commit, resp *Response, err error) (*Response, error) {
	if err != nil {
		return nil, err
	}
	if e.onCommit != nil {
		e.onCommit(c, resp)
	}
	return resp, nil
}

// Game returns the current state. Read-only.
func (e *Engine) Game(ctx context.Context) (*State, error) {
	return e.store.Load(ctx)
}

// Pool returns the custodied balance in the game denomination.
func (e *Engine) Pool(ctx context.Context) (Coin, error) {
	return e.pool(ctx, nil)
}

// Version returns the persisted version marker.
func (e *Engine) Version(ctx context.Context) (ContractInfo, error) {
	return e.store.ContractInfo(ctx)
}

// pool is the custody balance plus any funds attached to the current call,
// which land in custody as part of the same commit.
func (e *Engine) pool(ctx context.Context, attached []Coin) (Coin, error) {
	bal, err := e.store.Balance(ctx, e.opts.Custody, e.opts.Denom)
	if err != nil {
		return Coin{}, fmt.Errorf("query custody balance: %w", err)
	}
	total := new(uint256.Int).Set(bal)
	total.Add(total, AmountOf(attached, e.opts.Denom))
	return Coin{Denom: e.opts.Denom, Amount: total}, nil
}

func (e *Engine) gate(ctx context.Context) (IdentityGate, error) {
	registry, err := e.store.Registry(ctx)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if registry == "" {
		return nil, nil
	}
	return &registryGate{resolver: e.resolver, registry: registry}, nil
}

type registryGate struct {
	resolver NameResolver
	registry string
}

func (g *registryGate) Check(ctx context.Context, address string) error {
	if g.resolver == nil {
		return fmt.Errorf("no name resolver configured: %w", ErrIdentityRequired)
	}
	names, err := g.resolver.Names(ctx, g.registry, address)
	if err != nil {
		return fmt.Errorf("resolve address: %w", err)
	}
	if len(names) == 0 {
		return ErrIdentityRequired
	}
	return nil
}

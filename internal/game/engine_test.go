package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const custody = "fomo_contract"

// memStore is an in-memory Store. Commit applies all or nothing.
type memStore struct {
	state     *State
	registry  string
	info      ContractInfo
	balances  map[string]*uint256.Int
	commits   []*Commit
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[string]*uint256.Int)}
}

func (m *memStore) Load(ctx context.Context) (*State, error) {
	if m.state == nil {
		return nil, ErrNotInstantiated
	}
	return m.state.Clone(), nil
}

func (m *memStore) Registry(ctx context.Context) (string, error) { return m.registry, nil }

func (m *memStore) ContractInfo(ctx context.Context) (ContractInfo, error) { return m.info, nil }

func (m *memStore) Balance(ctx context.Context, address, denom string) (*uint256.Int, error) {
	if v, ok := m.balances[address+"/"+denom]; ok {
		return v.Clone(), nil
	}
	return new(uint256.Int), nil
}

func (m *memStore) mint(address string, amount uint64) {
	m.balances[address+"/"+denom] = uint256.NewInt(amount)
}

func (m *memStore) Commit(ctx context.Context, c *Commit) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	next := make(map[string]*uint256.Int, len(m.balances))
	for k, v := range m.balances {
		next[k] = v.Clone()
	}
	move := func(from, to string, coin Coin) error {
		fk, tk := from+"/"+coin.Denom, to+"/"+coin.Denom
		if next[fk] == nil || next[fk].Lt(coin.Amount) {
			return errors.New("insufficient balance")
		}
		next[fk] = new(uint256.Int).Sub(next[fk], coin.Amount)
		if next[tk] == nil {
			next[tk] = new(uint256.Int)
		}
		next[tk] = new(uint256.Int).Add(next[tk], coin.Amount)
		return nil
	}
	for _, f := range c.Funds {
		if err := move(c.Sender, custody, f); err != nil {
			return err
		}
	}
	for _, tr := range c.Transfers {
		// settlement is immediate in memory
		if err := move(custody, tr.To, tr.Amount); err != nil {
			return err
		}
	}
	m.balances = next
	m.state = c.State.Clone()
	if c.Registry != nil {
		m.registry = *c.Registry
	}
	if c.Info != nil {
		m.info = *c.Info
	}
	m.commits = append(m.commits, c)
	return nil
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Names(ctx context.Context, registry, address string) ([]string, error) {
	args := m.Called(ctx, registry, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func newTestEngine(t *testing.T, store *memStore, resolver NameResolver) (*Engine, *[]*Response) {
	t.Helper()
	var seen []*Response
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEngine(store, resolver, Options{Denom: denom, Custody: custody}, logger, func(c *Commit, resp *Response) {
		seen = append(seen, resp)
	})
	return e, &seen
}

func instantiated(t *testing.T, store *memStore, resolver NameResolver, registry *string) *Engine {
	t.Helper()
	e, _ := newTestEngine(t, store, resolver)
	_, err := e.Instantiate(context.Background(), Call{Sender: "owner", Now: 0}, InstantiateParams{
		Registry:    registry,
		Expiration:  120,
		MinDeposit:  uint256.NewInt(10),
		Extensions:  30,
		Stale:       600,
		ResetLength: 600,
	})
	require.NoError(t, err)
	return e
}

func depositMsg() ExecuteMsg { return ExecuteMsg{Deposit: &struct{}{}} }
func claimMsg() ExecuteMsg   { return ExecuteMsg{Claim: &struct{}{}} }
func unlockMsg() ExecuteMsg  { return ExecuteMsg{UnlockStale: &struct{}{}} }
func pauseMsg() ExecuteMsg   { return ExecuteMsg{Pause: &struct{}{}} }
func unpauseMsg() ExecuteMsg { return ExecuteMsg{Unpause: &struct{}{}} }

func TestEngineInstantiateOnce(t *testing.T) {
	store := newMemStore()
	e := instantiated(t, store, nil, nil)

	info, err := e.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ContractName, info.Contract)
	assert.Equal(t, ContractVersion, info.Version)

	_, err = e.Instantiate(context.Background(), Call{Sender: "owner"}, InstantiateParams{})
	assert.ErrorIs(t, err, ErrAlreadyInstantiated)
}

func TestEngineSeedFundsCarryIntoPool(t *testing.T) {
	store := newMemStore()
	store.mint("owner", 500)
	e, _ := newTestEngine(t, store, nil)
	_, err := e.Instantiate(context.Background(), Call{Sender: "owner", Funds: pay(500)}, InstantiateParams{Expiration: 10})
	require.NoError(t, err)

	pool, err := e.Pool(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), pool.Amount.Uint64())
}

func TestEngineClaimPaysWholePool(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.mint("alice", 100)
	store.mint("bob", 100)
	e := instantiated(t, store, nil, nil)

	_, err := e.Execute(ctx, Call{Sender: "alice", Funds: pay(10), Now: 1}, depositMsg())
	require.NoError(t, err)
	_, err = e.Execute(ctx, Call{Sender: "bob", Funds: pay(10), Now: 2}, depositMsg())
	require.NoError(t, err)

	_, err = e.Execute(ctx, Call{Sender: "alice", Now: 500}, claimMsg())
	assert.ErrorIs(t, err, ErrUnauthorized)

	preClaim, _ := store.Balance(ctx, "bob", denom)
	pool, _ := e.Pool(ctx)
	resp, err := e.Execute(ctx, Call{Sender: "bob", Now: 500}, claimMsg())
	require.NoError(t, err)
	require.Len(t, resp.Transfers, 1)
	assert.Equal(t, uint64(20), resp.Transfers[0].Amount.Amount.Uint64())

	after, _ := e.Pool(ctx)
	assert.True(t, after.IsZero(), "custody should be empty after claim")
	bal, _ := store.Balance(ctx, "bob", denom)
	assert.Equal(t, preClaim.Uint64()+pool.Amount.Uint64(), bal.Uint64())

	st, err := e.Game(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.Round)
}

func TestEngineUnlockStaleKeepsPool(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.mint("alice", 100)
	e := instantiated(t, store, nil, nil)

	_, err := e.Execute(ctx, Call{Sender: "alice", Funds: pay(10), Now: 1}, depositMsg())
	require.NoError(t, err)

	_, err = e.Execute(ctx, Call{Sender: "random", Now: 300}, unlockMsg())
	assert.ErrorIs(t, err, ErrNotStale)

	resp, err := e.Execute(ctx, Call{Sender: "random", Now: 150 + 600}, unlockMsg())
	require.NoError(t, err)
	assert.Empty(t, resp.Transfers)

	pool, _ := e.Pool(ctx)
	assert.Equal(t, uint64(10), pool.Amount.Uint64())
	st, _ := e.Game(ctx)
	assert.Equal(t, "random", st.LastDepositor)
	assert.Equal(t, uint64(2), st.Round)
}

func TestEngineRejectedOperationLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.mint("alice", 100)
	e := instantiated(t, store, nil, nil)
	before := len(store.commits)

	_, err := e.Execute(ctx, Call{Sender: "alice", Funds: pay(5), Now: 1}, depositMsg())
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Len(t, store.commits, before)

	bal, _ := store.Balance(ctx, "alice", denom)
	assert.Equal(t, uint64(100), bal.Uint64(), "attached funds must not move on failure")
}

func TestEngineCommitFailureEmitsNothing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.mint("alice", 100)
	e, seen := newTestEngine(t, store, nil)
	_, err := e.Instantiate(ctx, Call{Sender: "owner"}, InstantiateParams{Expiration: 100, Extensions: 10})
	require.NoError(t, err)
	require.Len(t, *seen, 1)

	store.commitErr = errors.New("connection reset")
	_, err = e.Execute(ctx, Call{Sender: "alice", Funds: pay(1), Now: 1}, depositMsg())
	require.Error(t, err)
	assert.Len(t, *seen, 1, "callback must not fire for a failed commit")

	st, _ := e.Game(ctx)
	assert.Equal(t, "owner", st.LastDepositor)
}

func TestEngineCallbackRunsUnlocked(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.mint("alice", 100)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var (
		e         *Engine
		calls     int
		reentrant error
	)
	e = NewEngine(store, nil, Options{Denom: denom, Custody: custody}, logger, func(c *Commit, resp *Response) {
		calls++
		if c.Action != ActionDeposit {
			return
		}
		// a slow or re-entrant subscriber must not hold up the next operation
		_, reentrant = e.Execute(ctx, Call{Sender: "owner", Now: 2}, pauseMsg())
	})
	_, err := e.Instantiate(ctx, Call{Sender: "owner"}, InstantiateParams{Expiration: 100, Extensions: 10})
	require.NoError(t, err)

	_, err = e.Execute(ctx, Call{Sender: "alice", Funds: pay(1), Now: 1}, depositMsg())
	require.NoError(t, err)
	require.NoError(t, reentrant)
	assert.Equal(t, 3, calls)

	st, err := e.Game(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsPaused())
}

func TestEngineRequiresExactlyOneOperation(t *testing.T) {
	e := instantiated(t, newMemStore(), nil, nil)
	_, err := e.Execute(context.Background(), Call{Sender: "owner"}, ExecuteMsg{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = e.Execute(context.Background(), Call{Sender: "owner"}, ExecuteMsg{Pause: &struct{}{}, Claim: &struct{}{}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineIdentityGate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.mint("alice", 100)
	registry := "archid_registry"
	resolver := &mockResolver{}
	resolver.On("Names", mock.Anything, registry, "alice").Return(nil, nil).Once()
	resolver.On("Names", mock.Anything, registry, "alice").Return([]string{"alice.arch"}, nil).Once()

	e := instantiated(t, store, resolver, &registry)

	_, err := e.Execute(ctx, Call{Sender: "alice", Funds: pay(10), Now: 1}, depositMsg())
	assert.ErrorIs(t, err, ErrIdentityRequired)

	_, err = e.Execute(ctx, Call{Sender: "alice", Funds: pay(10), Now: 2}, depositMsg())
	assert.NoError(t, err)
	resolver.AssertExpectations(t)
}

func TestEngineResolverFailure(t *testing.T) {
	store := newMemStore()
	registry := "archid_registry"
	resolver := &mockResolver{}
	resolver.On("Names", mock.Anything, registry, "alice").Return(nil, errors.New("registry down"))
	e := instantiated(t, store, resolver, &registry)

	_, err := e.Execute(context.Background(), Call{Sender: "alice", Funds: pay(10), Now: 1}, depositMsg())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIdentityRequired)
}

func TestEngineConfigureRegistry(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := instantiated(t, store, nil, nil)

	registry := "new_registry"
	_, err := e.Execute(ctx, Call{Sender: "owner"}, ExecuteMsg{Configure: &ConfigureMsg{Msg: ConfigurePatch{Registry: &registry}}})
	require.NoError(t, err)
	assert.Equal(t, registry, store.registry)

	// no resolver configured: gated deposits fail closed
	store.mint("alice", 100)
	_, err = e.Execute(ctx, Call{Sender: "alice", Funds: pay(10), Now: 1}, depositMsg())
	assert.ErrorIs(t, err, ErrIdentityRequired)
}

func TestEngineMigrateWhilePaused(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	e := instantiated(t, store, nil, nil)

	_, err := e.Migrate(ctx, Call{Sender: "owner", Now: 5}, "0.4.0")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.Execute(ctx, Call{Sender: "owner", Now: 5}, pauseMsg())
	require.NoError(t, err)
	before, _ := e.Game(ctx)

	resp, err := e.Migrate(ctx, Call{Sender: "owner", Now: 6}, "0.4.0")
	require.NoError(t, err)
	v, _ := resp.Attr("to_version")
	assert.Equal(t, "0.4.0", v)

	after, _ := e.Game(ctx)
	assert.Equal(t, before.Expiration, after.Expiration)
	info, _ := e.Version(ctx)
	assert.Equal(t, "0.4.0", info.Version)

	_, err = e.Execute(ctx, Call{Sender: "owner", Now: 20}, unpauseMsg())
	require.NoError(t, err)
	after, _ = e.Game(ctx)
	assert.Equal(t, before.Expiration+15, after.Expiration)
}

func TestEngineNotInstantiated(t *testing.T) {
	e, _ := newTestEngine(t, newMemStore(), nil)
	_, err := e.Execute(context.Background(), Call{Sender: "alice"}, depositMsg())
	assert.ErrorIs(t, err, ErrNotInstantiated)
	assert.Equal(t, "not_instantiated", Kind(err))
}

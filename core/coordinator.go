// Package core composes the staking, delegation and governance engines behind
// a single entry point that serialises mutations per account and keeps the
// read cache consistent with persisted state.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"golang.org/x/sync/singleflight"

	stakeerrors "stakegov/core/errors"
	"stakegov/native/common"
	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
	"stakegov/storage/cache"
)

// Cache key families. Metrics are labelled by family, never by full key.
const (
	FamilyAccount    = "account"
	FamilyValidators = "validators"
	FamilyDelegate   = "delegate"
	FamilyProposal   = "proposal"
	FamilyProposals  = "proposals"
)

// TTLs bounds the staleness of every cached key family.
type TTLs struct {
	Account    time.Duration
	Validators time.Duration
	Delegate   time.Duration
	Proposal   time.Duration
}

// DefaultTTLs returns the production cache lifetimes.
func DefaultTTLs() TTLs {
	return TTLs{
		Account:    60 * time.Second,
		Validators: 5 * time.Minute,
		Delegate:   60 * time.Second,
		Proposal:   30 * time.Second,
	}
}

// Metrics receives coordinator telemetry. The observability registry
// implements it.
type Metrics interface {
	RecordCacheHit(family string)
	RecordCacheMiss(family string)
	RecordCacheError(op string)
	ObserveOperation(op, outcome string, elapsed time.Duration)
}

// Engines groups the components the coordinator drives.
type Engines struct {
	Staking    *staking.Engine
	Delegation *delegation.Engine
	Governance *governance.Engine
	Locks      *conviction.Manager
}

// Coordinator is the process-wide entry point for engine operations.
type Coordinator struct {
	engines Engines
	cache   cache.Store
	ttls    TTLs
	logger  *slog.Logger
	metrics Metrics
	nowFn   func() time.Time

	accounts  *keyedMutex
	proposals *keyedMutex
	group     singleflight.Group
	gens      generations
}

var errCoordinatorNotConfigured = errors.New("core: coordinator not configured")

// NewCoordinator wires the engines to a cache store. A nil store disables
// caching entirely.
func NewCoordinator(engines Engines, store cache.Store, ttls TTLs) *Coordinator {
	return &Coordinator{
		engines:   engines,
		cache:     store,
		ttls:      ttls,
		logger:    slog.Default(),
		nowFn:     time.Now,
		accounts:  newKeyedMutex(),
		proposals: newKeyedMutex(),
	}
}

// SetLogger overrides the coordinator logger.
func (c *Coordinator) SetLogger(logger *slog.Logger) {
	if c == nil || logger == nil {
		return
	}
	c.logger = logger
}

// SetMetrics installs the telemetry sink.
func (c *Coordinator) SetMetrics(metrics Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

// SetNowFunc overrides the clock used to age cache entries.
func (c *Coordinator) SetNowFunc(now func() time.Time) {
	if c == nil || now == nil {
		return
	}
	c.nowFn = now
}

func (c *Coordinator) now() time.Time { return c.nowFn().UTC() }

// Engines exposes the wired engines for read paths that bypass the cache.
func (c *Coordinator) Engines() Engines { return c.engines }

func (c *Coordinator) ready() error {
	if c == nil || c.engines.Staking == nil || c.engines.Delegation == nil ||
		c.engines.Governance == nil || c.engines.Locks == nil {
		return errCoordinatorNotConfigured
	}
	return nil
}

func accountKey(account, suffix string) string {
	return "account:" + account + ":" + suffix
}

func accountPrefix(account string) string { return "account:" + account + ":" }

func delegateKey(delegate string) string { return "delegate:" + delegate + ":power" }

func proposalPrefix(id uint64) string { return "proposal:" + strconv.FormatUint(id, 10) + ":" }

const activeProposalsKey = "proposals:active"

// outcome buckets an error for operation metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, stakeerrors.ErrReconciliationRequired):
		return "reconcile"
	case errors.Is(err, stakeerrors.ErrLedgerSubmissionFailed):
		return "ledger_error"
	case errors.Is(err, stakeerrors.ErrInvalidArgument), errors.Is(err, stakeerrors.ErrNotFound):
		return "invalid"
	case errors.Is(err, common.ErrModulePaused):
		return "paused"
	case stakeerrors.IsBusinessRule(err):
		return "rejected"
	default:
		return "error"
	}
}

// persisted reports whether local state may have changed, in which case the
// cache must be invalidated. A reconciliation error still invalidates because
// the ledger moved even though the local write failed.
func persisted(err error) bool {
	return err == nil || errors.Is(err, stakeerrors.ErrReconciliationRequired)
}

// track times an operation; the returned func reads the final error.
func (c *Coordinator) track(op string, err *error) func() {
	started := time.Now()
	return func() {
		if c.metrics != nil {
			c.metrics.ObserveOperation(op, outcome(*err), time.Since(started))
		}
	}
}

func (c *Coordinator) lockAccount(raw string) (string, func(), error) {
	account, err := common.NormalizeAccount(raw)
	if err != nil {
		return "", nil, err
	}
	return account, c.accounts.Lock(account), nil
}

type envelope struct {
	WrittenAt time.Time       `json:"written_at"`
	Payload   json.RawMessage `json:"payload"`
}

func (c *Coordinator) cacheError(ctx context.Context, op, key string, err error) {
	if c.metrics != nil {
		c.metrics.RecordCacheError(op)
	}
	c.logger.WarnContext(ctx, "cache degraded; serving from persisted state",
		slog.String("op", op),
		slog.String("key", key),
		slog.String("error", fmt.Errorf("%w: %v", stakeerrors.ErrCacheUnavailable, err).Error()),
	)
}

// lookup returns the cached payload when it is younger than ttl.
func (c *Coordinator) lookup(ctx context.Context, family, key string, ttl time.Duration) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.cacheError(ctx, "get", key, err)
		}
		c.recordMiss(family)
		return nil, false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.cacheError(ctx, "decode", key, err)
		c.recordMiss(family)
		return nil, false
	}
	if c.now().Sub(env.WrittenAt) >= ttl {
		c.recordMiss(family)
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(family)
	}
	return env.Payload, true
}

func (c *Coordinator) recordMiss(family string) {
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(family)
	}
}

func (c *Coordinator) store(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(envelope{WrittenAt: c.now(), Payload: payload})
	if err != nil {
		c.cacheError(ctx, "encode", key, err)
		return
	}
	if err := c.cache.Set(ctx, key, raw, ttl); err != nil {
		c.cacheError(ctx, "set", key, err)
	}
}

// fetch implements get-or-compute. Concurrent misses for one key share a
// single load; each caller decodes its own copy of the result. Loads are
// tagged with the scope generation so a load that overlaps an invalidation
// is neither joined by later callers nor left in the cache.
func fetch[T any](ctx context.Context, c *Coordinator, family, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var out T
	payload, ok := c.lookup(ctx, family, key, ttl)
	if !ok {
		gen := c.gens.current(key)
		shared, err, _ := c.group.Do(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
			value, err := load(ctx)
			if err != nil {
				return nil, err
			}
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("core: encode %s: %w", key, err)
			}
			if c.gens.current(key) == gen {
				c.store(ctx, key, encoded, ttl)
				// An invalidation that raced the write may have deleted
				// before it landed.
				if c.gens.current(key) != gen {
					c.drop(ctx, key)
				}
			}
			return encoded, nil
		})
		if err != nil {
			return out, err
		}
		payload = shared.([]byte)
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("core: decode %s: %w", key, err)
	}
	return out, nil
}

type invalidation struct {
	keys     []string
	prefixes []string
}

func (inv *invalidation) account(accounts ...string) {
	for _, account := range accounts {
		if account != "" {
			inv.prefixes = append(inv.prefixes, accountPrefix(account))
		}
	}
}

func (inv *invalidation) delegate(delegates ...string) {
	for _, delegate := range delegates {
		if delegate != "" {
			inv.keys = append(inv.keys, delegateKey(delegate))
		}
	}
}

func (inv *invalidation) validators() {
	inv.prefixes = append(inv.prefixes, "validators:")
}

func (inv *invalidation) proposal(id uint64) {
	inv.prefixes = append(inv.prefixes, proposalPrefix(id))
	inv.keys = append(inv.keys, activeProposalsKey)
}

func (c *Coordinator) drop(ctx context.Context, key string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Delete(ctx, key); err != nil {
		c.cacheError(ctx, "delete", key, err)
	}
}

// invalidate bumps the generation of every touched scope before deleting so
// in-flight loads started earlier cannot repopulate the cache.
func (c *Coordinator) invalidate(ctx context.Context, inv invalidation) {
	for _, key := range inv.keys {
		c.gens.bump(scopeOf(key))
	}
	for _, prefix := range inv.prefixes {
		c.gens.bump(prefix)
	}
	if c.cache == nil {
		return
	}
	if len(inv.keys) > 0 {
		if err := c.cache.Delete(ctx, inv.keys...); err != nil {
			c.cacheError(ctx, "delete", inv.keys[0], err)
		}
	}
	for _, prefix := range inv.prefixes {
		if err := c.cache.DeletePattern(ctx, prefix); err != nil {
			c.cacheError(ctx, "delete_pattern", prefix, err)
		}
	}
}

// --- staking ---

// Stake bonds funds for the requesting account.
func (c *Coordinator) Stake(ctx context.Context, req staking.StakeRequest) (res *staking.StakeResult, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("stake", &err)()
	account, unlock, err := c.lockAccount(req.Account)
	if err != nil {
		return nil, err
	}
	defer unlock()
	req.Account = account
	res, err = c.engines.Staking.Stake(ctx, req)
	if persisted(err) {
		var inv invalidation
		inv.account(account)
		inv.validators()
		c.invalidate(ctx, inv)
	}
	return res, err
}

// Unstake moves amount of a position into the unbonding queue.
func (c *Coordinator) Unstake(ctx context.Context, account, positionID string, amount sdkmath.Int) (entry *staking.UnbondingEntry, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("unstake", &err)()
	owner, unlock, err := c.lockAccount(account)
	if err != nil {
		return nil, err
	}
	defer unlock()
	entry, err = c.engines.Staking.Unstake(ctx, owner, positionID, amount)
	if persisted(err) {
		var inv invalidation
		inv.account(owner)
		inv.validators()
		c.invalidate(ctx, inv)
	}
	return entry, err
}

// WithdrawUnbonded pays out every matured unbonding entry of the account.
func (c *Coordinator) WithdrawUnbonded(ctx context.Context, account string) (res *staking.WithdrawResult, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("withdraw", &err)()
	owner, unlock, err := c.lockAccount(account)
	if err != nil {
		return nil, err
	}
	defer unlock()
	res, err = c.engines.Staking.WithdrawUnbonded(ctx, owner)
	if persisted(err) {
		var inv invalidation
		inv.account(owner)
		c.invalidate(ctx, inv)
	}
	return res, err
}

// ClaimRewards pays out accrued rewards.
func (c *Coordinator) ClaimRewards(ctx context.Context, account string) (res *staking.ClaimResult, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("claim", &err)()
	owner, unlock, err := c.lockAccount(account)
	if err != nil {
		return nil, err
	}
	defer unlock()
	res, err = c.engines.Staking.ClaimRewards(ctx, owner)
	if persisted(err) {
		var inv invalidation
		inv.account(owner)
		c.invalidate(ctx, inv)
	}
	return res, err
}

// RecordReward credits a ledger reward to a position.
func (c *Coordinator) RecordReward(ctx context.Context, reward staking.RewardEvent) (pos *staking.Position, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("record_reward", &err)()
	owner, unlock, err := c.lockAccount(reward.Account)
	if err != nil {
		return nil, err
	}
	defer unlock()
	reward.Account = owner
	pos, err = c.engines.Staking.RecordReward(ctx, reward)
	if err == nil {
		var inv invalidation
		inv.account(owner)
		if pos != nil && pos.AutoCompound {
			inv.validators()
		}
		c.invalidate(ctx, inv)
	}
	return pos, err
}

// StakingSummary returns the cached staking overview of account.
func (c *Coordinator) StakingSummary(ctx context.Context, account string) (*staking.Summary, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, c, FamilyAccount, accountKey(owner, "summary"), c.ttls.Account,
		func(ctx context.Context) (*staking.Summary, error) {
			return c.engines.Staking.Summary(ctx, owner)
		})
}

// Validators returns the cached validator directory in the requested order.
func (c *Coordinator) Validators(ctx context.Context, sortBy string) ([]*staking.Validator, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if sortBy == "" {
		sortBy = staking.SortByAPY
	}
	return fetch(ctx, c, FamilyValidators, "validators:"+sortBy, c.ttls.Validators,
		func(ctx context.Context) ([]*staking.Validator, error) {
			return c.engines.Staking.Validators(ctx, sortBy)
		})
}

// Validator returns the cached detail view of one validator.
func (c *Coordinator) Validator(ctx context.Context, address string) (*staking.Validator, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	addr, err := common.NormalizeAccount(address)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, c, FamilyValidators, "validators:detail:"+addr, c.ttls.Validators,
		func(ctx context.Context) (*staking.Validator, error) {
			return c.engines.Staking.Validator(ctx, addr)
		})
}

// InvalidateValidators drops every cached directory view. The directory is
// refreshed out of band so importers call this after writing.
func (c *Coordinator) InvalidateValidators(ctx context.Context) {
	if c == nil {
		return
	}
	var inv invalidation
	inv.validators()
	c.invalidate(ctx, inv)
}

// --- conviction ---

// LockFunds creates a standalone conviction lock.
func (c *Coordinator) LockFunds(ctx context.Context, account string, amount sdkmath.Int, level conviction.Level) (id string, err error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	defer c.track("lock", &err)()
	owner, unlock, err := c.lockAccount(account)
	if err != nil {
		return "", err
	}
	defer unlock()
	id, err = c.engines.Locks.Lock(ctx, owner, amount, level)
	if err == nil {
		var inv invalidation
		inv.account(owner)
		c.invalidate(ctx, inv)
	}
	return id, err
}

// ReleaseExpired frees expired conviction locks of account.
func (c *Coordinator) ReleaseExpired(ctx context.Context, account string) (released int, err error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	defer c.track("release_expired", &err)()
	owner, unlock, err := c.lockAccount(account)
	if err != nil {
		return 0, err
	}
	defer unlock()
	released, err = c.engines.Locks.ReleaseExpired(ctx, owner)
	if err == nil && released > 0 {
		var inv invalidation
		inv.account(owner)
		c.invalidate(ctx, inv)
	}
	return released, err
}

// Locks returns the cached active conviction locks of account.
func (c *Coordinator) Locks(ctx context.Context, account string) ([]*conviction.Lock, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, c, FamilyAccount, accountKey(owner, "locks"), c.ttls.Account,
		func(ctx context.Context) ([]*conviction.Lock, error) {
			return c.engines.Locks.Locks(ctx, owner)
		})
}

// --- delegation ---

// Delegate lends voting power, replacing any existing delegation.
func (c *Coordinator) Delegate(ctx context.Context, delegator, delegate string, amount sdkmath.Int, level conviction.Level) (d *delegation.Delegation, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("delegate", &err)()
	from, unlock, err := c.lockAccount(delegator)
	if err != nil {
		return nil, err
	}
	defer unlock()
	var previous string
	if current, getErr := c.engines.Delegation.Get(ctx, from); getErr == nil {
		previous = current.Delegate
	}
	d, err = c.engines.Delegation.Delegate(ctx, from, delegate, amount, level)
	if persisted(err) {
		var inv invalidation
		target := delegate
		if d != nil {
			target = d.Delegate
		}
		inv.account(from, previous, target)
		inv.delegate(previous, target)
		c.invalidate(ctx, inv)
	}
	return d, err
}

// Undelegate removes the delegation of delegator once its lock has expired.
func (c *Coordinator) Undelegate(ctx context.Context, delegator string) (d *delegation.Delegation, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("undelegate", &err)()
	from, unlock, err := c.lockAccount(delegator)
	if err != nil {
		return nil, err
	}
	defer unlock()
	d, err = c.engines.Delegation.Undelegate(ctx, from)
	if persisted(err) {
		var inv invalidation
		inv.account(from)
		if d != nil {
			inv.account(d.Delegate)
			inv.delegate(d.Delegate)
		}
		c.invalidate(ctx, inv)
	}
	return d, err
}

// Delegation returns the cached active delegation of delegator.
func (c *Coordinator) Delegation(ctx context.Context, delegator string) (*delegation.Delegation, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	from, err := common.NormalizeAccount(delegator)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, c, FamilyAccount, accountKey(from, "delegation"), c.ttls.Account,
		func(ctx context.Context) (*delegation.Delegation, error) {
			return c.engines.Delegation.Get(ctx, from)
		})
}

// DelegatedPower returns the cached conviction-weighted power delegated to
// delegate.
func (c *Coordinator) DelegatedPower(ctx context.Context, delegate string) (sdkmath.LegacyDec, error) {
	if err := c.ready(); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	target, err := common.NormalizeAccount(delegate)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return fetch(ctx, c, FamilyDelegate, delegateKey(target), c.ttls.Delegate,
		func(ctx context.Context) (sdkmath.LegacyDec, error) {
			return c.engines.Delegation.DelegatedPower(ctx, target)
		})
}

// VotingPower returns the cached effective voting power of account at the
// supplied own-conviction level.
func (c *Coordinator) VotingPower(ctx context.Context, account string, level conviction.Level) (*delegation.VotingPower, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	owner, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, stakeerrors.InvalidArgument("conviction level %d out of range", level)
	}
	key := accountKey(owner, "power:"+strconv.Itoa(int(level)))
	return fetch(ctx, c, FamilyAccount, key, c.ttls.Account,
		func(ctx context.Context) (*delegation.VotingPower, error) {
			return c.engines.Delegation.EffectivePower(ctx, owner, level)
		})
}

// --- governance ---

// CreateProposal registers a proposal.
func (c *Coordinator) CreateProposal(ctx context.Context, req governance.ProposalRequest) (p *governance.Proposal, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("create_proposal", &err)()
	proposer, unlock, err := c.lockAccount(req.Proposer)
	if err != nil {
		return nil, err
	}
	defer unlock()
	req.Proposer = proposer
	p, err = c.engines.Governance.CreateProposal(ctx, req)
	if err == nil {
		var inv invalidation
		inv.proposal(p.ID)
		c.invalidate(ctx, inv)
	}
	return p, err
}

// Vote casts or replaces a ballot. The account lock is taken before the
// proposal lock.
func (c *Coordinator) Vote(ctx context.Context, req governance.VoteRequest) (v *governance.Vote, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("vote", &err)()
	voter, unlock, err := c.lockAccount(req.Account)
	if err != nil {
		return nil, err
	}
	defer unlock()
	unlockProposal := c.proposals.Lock(strconv.FormatUint(req.ProposalID, 10))
	defer unlockProposal()
	req.Account = voter
	v, err = c.engines.Governance.Vote(ctx, req)
	if persisted(err) {
		var inv invalidation
		inv.account(voter)
		inv.proposal(req.ProposalID)
		c.invalidate(ctx, inv)
	}
	return v, err
}

// Finalize records the outcome of a proposal whose voting window has closed.
func (c *Coordinator) Finalize(ctx context.Context, id uint64) (p *governance.Proposal, err error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	defer c.track("finalize", &err)()
	unlock := c.proposals.Lock(strconv.FormatUint(id, 10))
	defer unlock()
	p, err = c.engines.Governance.Finalize(ctx, id)
	if err == nil {
		var inv invalidation
		inv.proposal(id)
		// Voters' histories carry the proposal result.
		voters, listErr := c.engines.Governance.Voters(ctx, id)
		if listErr != nil {
			c.logger.WarnContext(ctx, "list voters for history invalidation",
				slog.Uint64("proposal", id), slog.String("error", listErr.Error()))
		}
		for _, voter := range voters {
			inv.keys = append(inv.keys, accountKey(voter, "votes"))
		}
		c.invalidate(ctx, inv)
	}
	return p, err
}

// VoteHistory returns the cached ballots of account, most recent first.
func (c *Coordinator) VoteHistory(ctx context.Context, account string) ([]*governance.VoteHistoryEntry, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	voter, err := common.NormalizeAccount(account)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, c, FamilyAccount, accountKey(voter, "votes"), c.ttls.Account,
		func(ctx context.Context) ([]*governance.VoteHistoryEntry, error) {
			return c.engines.Governance.VoteHistory(ctx, voter)
		})
}

// Proposal returns the cached view of a proposal as seen by viewer.
func (c *Coordinator) Proposal(ctx context.Context, id uint64, viewer string) (*governance.ProposalView, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	suffix := "-"
	if viewer != "" {
		normalized, err := common.NormalizeAccount(viewer)
		if err != nil {
			return nil, err
		}
		viewer, suffix = normalized, normalized
	}
	return fetch(ctx, c, FamilyProposal, proposalPrefix(id)+suffix, c.ttls.Proposal,
		func(ctx context.Context) (*governance.ProposalView, error) {
			return c.engines.Governance.Proposal(ctx, id, viewer)
		})
}

// ActiveProposals returns the cached list of proposals accepting votes.
func (c *Coordinator) ActiveProposals(ctx context.Context) ([]*governance.ProposalView, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return fetch(ctx, c, FamilyProposals, activeProposalsKey, c.ttls.Proposal,
		func(ctx context.Context) ([]*governance.ProposalView, error) {
			return c.engines.Governance.ActiveProposals(ctx)
		})
}

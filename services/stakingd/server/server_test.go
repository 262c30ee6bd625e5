package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stakegov/core"
	"stakegov/ledger/ledgertest"
	"stakegov/native/common"
	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
	"stakegov/storage/memstore"
)

type fixture struct {
	handler http.Handler
	store   *memstore.Store
	ledger  *ledgertest.Fake
	engines core.Engines
}

func newFixture(t *testing.T, limit RateLimit) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memstore.New(), ledger: ledgertest.New()}
	require.NoError(t, f.store.UpsertValidator(ctx, &staking.Validator{Address: "val-a", Name: "Alpha", APY: 14, Active: true}))
	f.ledger.SetBalance("alice", 1000)
	f.ledger.SetHeight(10)

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	locks := conviction.NewManager(f.store, f.ledger)
	locks.SetNowFunc(clock)
	stake := staking.NewEngine(f.store, f.store, f.ledger, staking.DefaultConfig())
	stake.SetNowFunc(clock)
	stake.SetReporter(&common.Reporter{})
	f.engines = core.Engines{
		Staking:    stake,
		Delegation: delegation.NewEngine(f.store, locks, f.ledger),
		Governance: governance.NewEngine(f.store, locks, f.ledger, governance.DefaultPolicy()),
		Locks:      locks,
	}
	coord := core.NewCoordinator(f.engines, nil, core.DefaultTTLs())
	f.handler = New(Config{Coordinator: coord, RateLimit: limit}).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, RateLimit{})
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStakeAndSummary(t *testing.T) {
	f := newFixture(t, RateLimit{})
	rec := f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "100", "validator": "val-a"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[staking.StakeResult](t, rec)
	require.Len(t, res.Positions, 1)

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/staking", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[staking.Summary](t, rec)
	require.Equal(t, "100", summary.TotalStaked.String())

	rec = f.do(t, http.MethodPost, "/v1/staking/unstake", map[string]any{"account": "alice", "position_id": res.Positions[0].ID, "amount": "500"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "exceeds_staked_amount", decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/v1/staking/withdraw", map[string]any{"account": "alice"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "nothing_to_withdraw", decode[errorBody](t, rec).Code)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, RateLimit{})

	rec := f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "ten"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_argument", decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "1", "bogus": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/v1/delegations/alice", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	f.ledger.FailNext(errors.New("node unreachable"))
	rec = f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "10", "validator": "val-a"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "ledger_unavailable", decode[errorBody](t, rec).Code)

	f.store.FailNextWrite(errors.New("disk full"))
	rec = f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "10", "validator": "val-a"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorBody](t, rec)
	require.Equal(t, "reconciliation_required", body.Code)
	require.NotEmpty(t, body.TxID)

	f.engines.Staking.SetPauses(common.NewStaticPauses([]string{common.ModuleStaking}))
	rec = f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "10", "validator": "val-a"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGovernanceRoutes(t *testing.T) {
	f := newFixture(t, RateLimit{})

	rec := f.do(t, http.MethodPost, "/v1/proposals", map[string]any{"title": "Cap", "proposer": "council", "end_block": 20})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[governance.Proposal](t, rec)

	rec = f.do(t, http.MethodPost, "/v1/proposals/"+itoa(p.ID)+"/votes", map[string]any{"account": "alice", "choice": "yes", "amount": "100", "conviction": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/proposals/"+itoa(p.ID)+"?viewer=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[governance.ProposalView](t, rec)
	require.NotNil(t, view.UserVote)

	rec = f.do(t, http.MethodPost, "/v1/proposals/"+itoa(p.ID)+"/finalize", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.ledger.SetHeight(25)
	rec = f.do(t, http.MethodPost, "/v1/proposals/"+itoa(p.ID)+"/votes", map[string]any{"account": "alice", "choice": "no", "amount": "100"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "proposal_closed", decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/v1/proposals/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoteHistoryAndValidatorDetail(t *testing.T) {
	f := newFixture(t, RateLimit{})

	rec := f.do(t, http.MethodPost, "/v1/staking/stake", map[string]any{"account": "alice", "amount": "100", "validator": "val-a"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/validators/val-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[staking.Validator](t, rec)
	require.Equal(t, "Alpha", v.Name)
	require.Equal(t, "100", v.DelegatedStake.String())
	require.Equal(t, 1, v.Nominators)

	rec = f.do(t, http.MethodGet, "/v1/validators/val-z", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not_found", decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/votes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]governance.VoteHistoryEntry](t, rec))

	rec = f.do(t, http.MethodPost, "/v1/proposals", map[string]any{"title": "Cap", "proposer": "council", "end_block": 20})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[governance.Proposal](t, rec)
	rec = f.do(t, http.MethodPost, "/v1/proposals/"+itoa(p.ID)+"/votes", map[string]any{"account": "alice", "choice": "yes", "amount": "100", "conviction": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/votes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]governance.VoteHistoryEntry](t, rec)
	require.Len(t, history, 1)
	require.Equal(t, p.ID, history[0].ProposalID)
	require.Equal(t, "Cap", history[0].ProposalTitle)
	require.Equal(t, governance.VoteChoiceYes, history[0].Choice)
	require.Equal(t, conviction.Level(1), history[0].Level)
	require.Equal(t, governance.ProposalStatusActive, history[0].Result)

	f.ledger.SetHeight(25)
	rec = f.do(t, http.MethodPost, "/v1/proposals/"+itoa(p.ID)+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/votes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history = decode[[]governance.VoteHistoryEntry](t, rec)
	require.Equal(t, governance.ProposalStatusPassed, history[0].Result)
}

func TestLockAndDelegationUseSnakeCase(t *testing.T) {
	f := newFixture(t, RateLimit{})

	rec := f.do(t, http.MethodPost, "/v1/delegations", map[string]any{"delegator": "alice", "delegate": "bob", "amount": "200", "conviction": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/delegation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[map[string]any](t, rec)
	require.Equal(t, "bob", d["delegate"])
	require.Equal(t, "200", d["amount"])
	require.EqualValues(t, 3, d["conviction"])
	require.NotContains(t, d, "Delegate")

	rec = f.do(t, http.MethodGet, "/v1/accounts/alice/locks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	locks := decode[[]map[string]any](t, rec)
	require.Len(t, locks, 1)
	require.Equal(t, "delegation", locks[0]["source"])
	require.Contains(t, locks[0], "unlock_at")
	require.NotContains(t, locks[0], "UnlockAt")
}

func TestEstimateAndLevels(t *testing.T) {
	f := newFixture(t, RateLimit{})
	rec := f.do(t, http.MethodGet, "/v1/estimate?amount=1000&apy=12.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 125.0, decode[map[string]float64](t, rec)["yearly"], 1e-9)

	rec = f.do(t, http.MethodGet, "/v1/conviction/levels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]conviction.LevelInfo](t, rec), int(conviction.MaxLevel)+1)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, RateLimit{RequestsPerMinute: 1, Burst: 2})
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/conviction/levels", nil).Code)
	}
	rec := f.do(t, http.MethodGet, "/v1/conviction/levels", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/go-chi/chi/v5"

	stakeerrors "stakegov/core/errors"
	"stakegov/native/conviction"
	"stakegov/native/governance"
	"stakegov/native/rewards"
	"stakegov/native/staking"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return stakeerrors.InvalidArgument("malformed request body: %v", err)
	}
	return nil
}

func parseAmount(field, raw string) (sdkmath.Int, error) {
	amount, ok := sdkmath.NewIntFromString(strings.TrimSpace(raw))
	if !ok {
		return sdkmath.Int{}, stakeerrors.InvalidArgument("%s must be an integer amount", field)
	}
	return amount, nil
}

func parseLevel(raw string) (conviction.Level, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, stakeerrors.InvalidArgument("conviction must be an integer")
	}
	return conviction.ParseLevel(n)
}

func parseProposalID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, stakeerrors.InvalidArgument("proposal id must be a positive integer")
	}
	return id, nil
}

func parseDecimal(field, raw string) (sdkmath.LegacyDec, error) {
	if strings.TrimSpace(raw) == "" {
		return sdkmath.LegacyDec{}, nil
	}
	v, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(raw))
	if err != nil {
		return sdkmath.LegacyDec{}, stakeerrors.InvalidArgument("%s must be a decimal", field)
	}
	return v, nil
}

func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := strconv.ParseFloat(query.Get("amount"), 64)
	if err != nil {
		s.writeError(w, r, stakeerrors.InvalidArgument("amount must be a number"))
		return
	}
	apy := rewards.DefaultConfig().DefaultAPY
	if raw := query.Get("apy"); raw != "" {
		if apy, err = strconv.ParseFloat(raw, 64); err != nil {
			s.writeError(w, r, stakeerrors.InvalidArgument("apy must be a number"))
			return
		}
	}
	estimate, err := rewards.Project(amount, apy)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) convictionLevels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, conviction.Levels())
}

func (s *Server) validators(w http.ResponseWriter, r *http.Request) {
	list, err := s.coord.Validators(r.Context(), r.URL.Query().Get("sort"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) validator(w http.ResponseWriter, r *http.Request) {
	v, err := s.coord.Validator(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) voteHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.coord.VoteHistory(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) stakingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.coord.StakingSummary(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) votingPower(w http.ResponseWriter, r *http.Request) {
	level, err := parseLevel(r.URL.Query().Get("conviction"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	power, err := s.coord.VotingPower(r.Context(), chi.URLParam(r, "account"), level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, power)
}

func (s *Server) locks(w http.ResponseWriter, r *http.Request) {
	locks, err := s.coord.Locks(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, locks)
}

type lockRequest struct {
	Amount     string `json:"amount"`
	Conviction int    `json:"conviction"`
}

func (s *Server) lockFunds(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	level, err := conviction.ParseLevel(req.Conviction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := s.coord.LockFunds(r.Context(), chi.URLParam(r, "account"), amount, level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"lock_id": id})
}

func (s *Server) releaseExpired(w http.ResponseWriter, r *http.Request) {
	released, err := s.coord.ReleaseExpired(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}

func (s *Server) delegation(w http.ResponseWriter, r *http.Request) {
	d, err := s.coord.Delegation(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type stakeRequest struct {
	Account      string `json:"account"`
	Amount       string `json:"amount"`
	Validator    string `json:"validator"`
	AutoCompound bool   `json:"auto_compound"`
}

func (s *Server) stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.coord.Stake(r.Context(), staking.StakeRequest{
		Account:      req.Account,
		Amount:       amount,
		Validator:    req.Validator,
		AutoCompound: req.AutoCompound,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type unstakeRequest struct {
	Account    string `json:"account"`
	PositionID string `json:"position_id"`
	Amount     string `json:"amount"`
}

func (s *Server) unstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.coord.Unstake(r.Context(), req.Account, req.PositionID, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type accountRequest struct {
	Account string `json:"account"`
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.coord.WithdrawUnbonded(r.Context(), req.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.coord.ClaimRewards(r.Context(), req.Account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rewardRequest struct {
	ID         string    `json:"id"`
	Account    string    `json:"account"`
	PositionID string    `json:"position_id"`
	Amount     string    `json:"amount"`
	TxID       string    `json:"tx_id"`
	At         time.Time `json:"at"`
}

func (s *Server) recordReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pos, err := s.coord.RecordReward(r.Context(), staking.RewardEvent{
		ID:         req.ID,
		Account:    req.Account,
		PositionID: req.PositionID,
		Amount:     amount,
		TxID:       req.TxID,
		At:         req.At,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type delegateRequest struct {
	Delegator  string `json:"delegator"`
	Delegate   string `json:"delegate"`
	Amount     string `json:"amount"`
	Conviction int    `json:"conviction"`
}

func (s *Server) delegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	level, err := conviction.ParseLevel(req.Conviction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.coord.Delegate(r.Context(), req.Delegator, req.Delegate, amount, level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) undelegate(w http.ResponseWriter, r *http.Request) {
	d, err := s.coord.Undelegate(r.Context(), chi.URLParam(r, "delegator"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) delegatedPower(w http.ResponseWriter, r *http.Request) {
	delegate := chi.URLParam(r, "delegate")
	power, err := s.coord.DelegatedPower(r.Context(), delegate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delegate": delegate, "power": power})
}

func (s *Server) activeProposals(w http.ResponseWriter, r *http.Request) {
	views, err := s.coord.ActiveProposals(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

type proposalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Proposer    string `json:"proposer"`
	Quorum      string `json:"quorum"`
	Threshold   string `json:"threshold"`
	StartBlock  uint64 `json:"start_block"`
	EndBlock    uint64 `json:"end_block"`
}

func (s *Server) createProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	quorum, err := parseDecimal("quorum", req.Quorum)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	threshold, err := parseDecimal("threshold", req.Threshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.coord.CreateProposal(r.Context(), governance.ProposalRequest{
		Title:       req.Title,
		Description: req.Description,
		Proposer:    req.Proposer,
		Quorum:      quorum,
		Threshold:   threshold,
		StartBlock:  req.StartBlock,
		EndBlock:    req.EndBlock,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) proposal(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.coord.Proposal(r.Context(), id, r.URL.Query().Get("viewer"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type voteRequest struct {
	Account    string `json:"account"`
	Choice     string `json:"choice"`
	Amount     string `json:"amount"`
	Conviction int    `json:"conviction"`
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	level, err := conviction.ParseLevel(req.Conviction)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.coord.Vote(r.Context(), governance.VoteRequest{
		Account:    req.Account,
		ProposalID: id,
		Choice:     req.Choice,
		Amount:     amount,
		Level:      level,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	id, err := parseProposalID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.coord.Finalize(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

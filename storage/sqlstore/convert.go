package sqlstore

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
)

func intString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func decString(v sdkmath.LegacyDec) string {
	if v.IsNil() {
		return sdkmath.LegacyZeroDec().String()
	}
	return v.String()
}

func parseInt(field, raw string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("sqlstore: malformed %s %q", field, raw)
	}
	return v, nil
}

func parseDec(field, raw string) (sdkmath.LegacyDec, error) {
	v, err := sdkmath.LegacyNewDecFromStr(raw)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("sqlstore: malformed %s %q: %w", field, raw, err)
	}
	return v, nil
}

func fromLock(l *conviction.Lock) lockRecord {
	return lockRecord{
		ID:        l.ID,
		Account:   l.Account,
		Amount:    intString(l.Amount),
		Level:     uint8(l.Level),
		Source:    string(l.Source),
		Reference: l.Reference,
		CreatedAt: l.CreatedAt.UTC(),
		UnlockAt:  l.UnlockAt.UTC(),
	}
}

func (r lockRecord) toLock() (*conviction.Lock, error) {
	amount, err := parseInt("lock amount", r.Amount)
	if err != nil {
		return nil, err
	}
	return &conviction.Lock{
		ID:        r.ID,
		Account:   r.Account,
		Amount:    amount,
		Level:     conviction.Level(r.Level),
		Source:    conviction.Source(r.Source),
		Reference: r.Reference,
		CreatedAt: r.CreatedAt.UTC(),
		UnlockAt:  r.UnlockAt.UTC(),
	}, nil
}

func fromDelegation(d *delegation.Delegation) delegationRecord {
	return delegationRecord{
		Delegator: d.Delegator,
		Delegate:  d.Delegate,
		Amount:    intString(d.Amount),
		Level:     uint8(d.Level),
		LockID:    d.LockID,
		TxID:      d.TxID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (r delegationRecord) toDelegation() (*delegation.Delegation, error) {
	amount, err := parseInt("delegation amount", r.Amount)
	if err != nil {
		return nil, err
	}
	return &delegation.Delegation{
		Delegator: r.Delegator,
		Delegate:  r.Delegate,
		Amount:    amount,
		Level:     conviction.Level(r.Level),
		LockID:    r.LockID,
		TxID:      r.TxID,
		CreatedAt: r.CreatedAt.UTC(),
	}, nil
}

func fromPosition(p *staking.Position) positionRecord {
	return positionRecord{
		ID:           p.ID,
		Account:      p.Account,
		Validator:    p.Validator,
		Principal:    intString(p.Principal),
		Accrued:      intString(p.Accrued),
		AutoCompound: p.AutoCompound,
		Status:       string(p.Status),
		TxID:         p.TxID,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

func (r positionRecord) toPosition() (*staking.Position, error) {
	principal, err := parseInt("principal", r.Principal)
	if err != nil {
		return nil, err
	}
	accrued, err := parseInt("accrued", r.Accrued)
	if err != nil {
		return nil, err
	}
	return &staking.Position{
		ID:           r.ID,
		Account:      r.Account,
		Validator:    r.Validator,
		Principal:    principal,
		Accrued:      accrued,
		AutoCompound: r.AutoCompound,
		Status:       staking.Status(r.Status),
		TxID:         r.TxID,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}, nil
}

func toPositions(recs []positionRecord) ([]*staking.Position, error) {
	out := make([]*staking.Position, 0, len(recs))
	for _, rec := range recs {
		p, err := rec.toPosition()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func fromEntry(e *staking.UnbondingEntry) unbondingRecord {
	return unbondingRecord{
		ID:         e.ID,
		PositionID: e.PositionID,
		Account:    e.Account,
		Amount:     intString(e.Amount),
		UnlockAt:   e.UnlockAt.UTC(),
		TxID:       e.TxID,
		CreatedAt:  e.CreatedAt.UTC(),
	}
}

func (r unbondingRecord) toEntry() (*staking.UnbondingEntry, error) {
	amount, err := parseInt("unbonding amount", r.Amount)
	if err != nil {
		return nil, err
	}
	return &staking.UnbondingEntry{
		ID:         r.ID,
		PositionID: r.PositionID,
		Account:    r.Account,
		Amount:     amount,
		UnlockAt:   r.UnlockAt.UTC(),
		TxID:       r.TxID,
		CreatedAt:  r.CreatedAt.UTC(),
	}, nil
}

func fromReward(e *staking.RewardEvent) rewardRecord {
	return rewardRecord{
		ID:         e.ID,
		Account:    e.Account,
		PositionID: e.PositionID,
		Amount:     intString(e.Amount),
		Compounded: e.Compounded,
		TxID:       e.TxID,
		At:         e.At.UTC(),
	}
}

func (r rewardRecord) toReward() (*staking.RewardEvent, error) {
	amount, err := parseInt("reward amount", r.Amount)
	if err != nil {
		return nil, err
	}
	return &staking.RewardEvent{
		ID:         r.ID,
		Account:    r.Account,
		PositionID: r.PositionID,
		Amount:     amount,
		Compounded: r.Compounded,
		TxID:       r.TxID,
		At:         r.At.UTC(),
	}, nil
}

func fromProposal(p *governance.Proposal) proposalRecord {
	rec := proposalRecord{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Proposer:    p.Proposer,
		Yes:         decString(p.Tally.Yes),
		No:          decString(p.Tally.No),
		Abstain:     decString(p.Tally.Abstain),
		Quorum:      decString(p.Quorum),
		Threshold:   decString(p.Threshold),
		StartBlock:  p.StartBlock,
		EndBlock:    p.EndBlock,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt.UTC(),
	}
	if !p.FinalizedAt.IsZero() {
		at := p.FinalizedAt.UTC()
		rec.FinalizedAt = &at
	}
	return rec
}

func (r proposalRecord) toProposal() (*governance.Proposal, error) {
	var (
		decs [5]sdkmath.LegacyDec
		err  error
	)
	for i, raw := range []string{r.Yes, r.No, r.Abstain, r.Quorum, r.Threshold} {
		if decs[i], err = parseDec("proposal decimal", raw); err != nil {
			return nil, err
		}
	}
	var finalized time.Time
	if r.FinalizedAt != nil {
		finalized = r.FinalizedAt.UTC()
	}
	return &governance.Proposal{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Proposer:    r.Proposer,
		Tally:       governance.Tally{Yes: decs[0], No: decs[1], Abstain: decs[2]},
		Quorum:      decs[3],
		Threshold:   decs[4],
		StartBlock:  r.StartBlock,
		EndBlock:    r.EndBlock,
		Status:      governance.ProposalStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		FinalizedAt: finalized,
	}, nil
}

func fromVote(v *governance.Vote) voteRecord {
	return voteRecord{
		ProposalID: v.ProposalID,
		Voter:      v.Voter,
		Choice:     string(v.Choice),
		Amount:     intString(v.Amount),
		Level:      uint8(v.Level),
		Weight:     decString(v.Weight),
		LockID:     v.LockID,
		TxID:       v.TxID,
		CastAt:     v.CastAt.UTC(),
	}
}

func (r voteRecord) toVote() (*governance.Vote, error) {
	amount, err := parseInt("vote amount", r.Amount)
	if err != nil {
		return nil, err
	}
	weight, err := parseDec("vote weight", r.Weight)
	if err != nil {
		return nil, err
	}
	return &governance.Vote{
		ProposalID: r.ProposalID,
		Voter:      r.Voter,
		Choice:     governance.VoteChoice(r.Choice),
		Amount:     amount,
		Level:      conviction.Level(r.Level),
		Weight:     weight,
		LockID:     r.LockID,
		TxID:       r.TxID,
		CastAt:     r.CastAt.UTC(),
	}, nil
}

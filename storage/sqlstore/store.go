// Package sqlstore persists engine state through gorm. PostgreSQL is the
// production dialect; SQLite serves development and tests.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"stakegov/native/conviction"
	"stakegov/native/delegation"
	"stakegov/native/governance"
	"stakegov/native/staking"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Store implements every engine state contract on a SQL database.
type Store struct {
	db *gorm.DB
}

var (
	_ conviction.State  = (*Store)(nil)
	_ delegation.State  = (*Store)(nil)
	_ staking.State     = (*Store)(nil)
	_ staking.Directory = (*Store)(nil)
	_ governance.State  = (*Store)(nil)
)

// Open connects to the database and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverPostgres, "postgresql":
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return New(db), nil
}

// New wraps an already migrated gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func upsert(tx *gorm.DB, value any) error {
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(value).Error
}

func notFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }

// --- conviction locks ---

func (s *Store) PutLock(ctx context.Context, lock *conviction.Lock) error {
	rec := fromLock(lock)
	return upsert(s.db.WithContext(ctx), &rec)
}

func (s *Store) GetLock(ctx context.Context, id string) (*conviction.Lock, bool, error) {
	var rec lockRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	lock, err := rec.toLock()
	if err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

func (s *Store) ListLocks(ctx context.Context, account string) ([]*conviction.Lock, error) {
	var recs []lockRecord
	if err := s.db.WithContext(ctx).Where("account = ?", account).Order("unlock_at, id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*conviction.Lock, 0, len(recs))
	for _, rec := range recs {
		lock, err := rec.toLock()
		if err != nil {
			return nil, err
		}
		out = append(out, lock)
	}
	return out, nil
}

func (s *Store) DeleteLocks(ctx context.Context, account string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("account = ? AND id IN ?", account, ids).Delete(&lockRecord{}).Error
}

// --- delegations ---

func (s *Store) GetDelegation(ctx context.Context, delegator string) (*delegation.Delegation, bool, error) {
	var rec delegationRecord
	if err := s.db.WithContext(ctx).First(&rec, "delegator = ?", delegator).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	d, err := rec.toDelegation()
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (s *Store) ListDelegationsTo(ctx context.Context, delegate string) ([]*delegation.Delegation, error) {
	var recs []delegationRecord
	if err := s.db.WithContext(ctx).Where("delegate = ?", delegate).Order("delegator").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*delegation.Delegation, 0, len(recs))
	for _, rec := range recs {
		d, err := rec.toDelegation()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) ReplaceDelegation(ctx context.Context, d *delegation.Delegation, lock *conviction.Lock) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("delegator = ?", d.Delegator).Delete(&delegationRecord{}).Error; err != nil {
			return err
		}
		rec := fromDelegation(d)
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if lock == nil {
			return nil
		}
		lockRec := fromLock(lock)
		return upsert(tx, &lockRec)
	})
}

func (s *Store) DeleteDelegation(ctx context.Context, delegator string) error {
	return s.db.WithContext(ctx).Where("delegator = ?", delegator).Delete(&delegationRecord{}).Error
}

// --- staking ---

func (s *Store) GetPosition(ctx context.Context, id string) (*staking.Position, bool, error) {
	var rec positionRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	p, err := rec.toPosition()
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *Store) ListPositions(ctx context.Context, account string) ([]*staking.Position, error) {
	var recs []positionRecord
	if err := s.db.WithContext(ctx).Where("account = ?", account).Order("created_at, id").Find(&recs).Error; err != nil {
		return nil, err
	}
	return toPositions(recs)
}

func (s *Store) ListUnbonding(ctx context.Context, account string) ([]*staking.UnbondingEntry, error) {
	var recs []unbondingRecord
	if err := s.db.WithContext(ctx).Where("account = ?", account).Order("unlock_at, id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*staking.UnbondingEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := rec.toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) ListRewards(ctx context.Context, account string, since time.Time) ([]*staking.RewardEvent, error) {
	var recs []rewardRecord
	if err := s.db.WithContext(ctx).Where("account = ? AND at >= ?", account, since.UTC()).Order("at").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*staking.RewardEvent, 0, len(recs))
	for _, rec := range recs {
		reward, err := rec.toReward()
		if err != nil {
			return nil, err
		}
		out = append(out, reward)
	}
	return out, nil
}

func (s *Store) StakeByValidator(ctx context.Context) (map[string]staking.ValidatorStake, error) {
	var recs []positionRecord
	if err := s.db.WithContext(ctx).Select("account", "validator", "principal").
		Where("status = ?", string(staking.StatusActive)).Find(&recs).Error; err != nil {
		return nil, err
	}
	nominators := make(map[string]map[string]struct{})
	out := make(map[string]staking.ValidatorStake)
	for _, rec := range recs {
		amount, err := parseInt("principal", rec.Principal)
		if err != nil {
			return nil, err
		}
		agg, ok := out[rec.Validator]
		if !ok {
			agg.Amount = amount
			nominators[rec.Validator] = make(map[string]struct{})
		} else {
			agg.Amount = agg.Amount.Add(amount)
		}
		nominators[rec.Validator][rec.Account] = struct{}{}
		agg.Nominators = len(nominators[rec.Validator])
		out[rec.Validator] = agg
	}
	return out, nil
}

func (s *Store) SavePositions(ctx context.Context, positions []*staking.Position) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range positions {
			rec := fromPosition(p)
			if err := upsert(tx, &rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ApplyUnbond(ctx context.Context, position *staking.Position, entry *staking.UnbondingEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := fromPosition(position)
		if err := upsert(tx, &rec); err != nil {
			return err
		}
		entryRec := fromEntry(entry)
		return tx.Create(&entryRec).Error
	})
}

func (s *Store) ApplyWithdraw(ctx context.Context, account string, entryIDs []string, positions []*staking.Position) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entryIDs) > 0 {
			if err := tx.Where("account = ? AND id IN ?", account, entryIDs).Delete(&unbondingRecord{}).Error; err != nil {
				return err
			}
		}
		for _, p := range positions {
			rec := fromPosition(p)
			if err := upsert(tx, &rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ApplyReward(ctx context.Context, position *staking.Position, reward *staking.RewardEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := fromPosition(position)
		if err := upsert(tx, &rec); err != nil {
			return err
		}
		rewardRec := fromReward(reward)
		return tx.Create(&rewardRec).Error
	})
}

// UpsertValidator adds or replaces a validator directory entry.
func (s *Store) UpsertValidator(ctx context.Context, v *staking.Validator) error {
	rec := validatorRecord{
		Address:       v.Address,
		Name:          v.Name,
		CommissionBps: v.CommissionBps,
		APY:           v.APY,
		Active:        v.Active,
		UpdatedAt:     time.Now().UTC(),
	}
	return upsert(s.db.WithContext(ctx), &rec)
}

func (s *Store) GetValidator(ctx context.Context, address string) (*staking.Validator, bool, error) {
	var rec validatorRecord
	if err := s.db.WithContext(ctx).First(&rec, "address = ?", address).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &staking.Validator{
		Address:       rec.Address,
		Name:          rec.Name,
		CommissionBps: rec.CommissionBps,
		APY:           rec.APY,
		Active:        rec.Active,
	}, true, nil
}

func (s *Store) ListActiveValidators(ctx context.Context) ([]*staking.Validator, error) {
	var recs []validatorRecord
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("address").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*staking.Validator, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &staking.Validator{
			Address:       rec.Address,
			Name:          rec.Name,
			CommissionBps: rec.CommissionBps,
			APY:           rec.APY,
			Active:        rec.Active,
		})
	}
	return out, nil
}

// --- governance ---

func (s *Store) InsertProposal(ctx context.Context, p *governance.Proposal) (uint64, error) {
	rec := fromProposal(p)
	rec.ID = 0
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (s *Store) GetProposal(ctx context.Context, id uint64) (*governance.Proposal, bool, error) {
	var rec proposalRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	p, err := rec.toProposal()
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *Store) ListProposals(ctx context.Context, status governance.ProposalStatus) ([]*governance.Proposal, error) {
	query := s.db.WithContext(ctx).Order("id")
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var recs []proposalRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*governance.Proposal, 0, len(recs))
	for _, rec := range recs {
		p, err := rec.toProposal()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdateProposalStatus(ctx context.Context, id uint64, status governance.ProposalStatus, at time.Time) error {
	finalized := at.UTC()
	res := s.db.WithContext(ctx).Model(&proposalRecord{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "finalized_at": &finalized})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sqlstore: proposal %d not found", id)
	}
	return nil
}

func (s *Store) GetVote(ctx context.Context, proposalID uint64, voter string) (*governance.Vote, bool, error) {
	var rec voteRecord
	if err := s.db.WithContext(ctx).First(&rec, "proposal_id = ? AND voter = ?", proposalID, voter).Error; err != nil {
		if notFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	v, err := rec.toVote()
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) ListVotesByVoter(ctx context.Context, voter string) ([]*governance.Vote, error) {
	var recs []voteRecord
	if err := s.db.WithContext(ctx).Where("voter = ?", voter).Order("proposal_id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*governance.Vote, 0, len(recs))
	for _, rec := range recs {
		v, err := rec.toVote()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) ListVoters(ctx context.Context, proposalID uint64) ([]string, error) {
	var voters []string
	if err := s.db.WithContext(ctx).Model(&voteRecord{}).Where("proposal_id = ?", proposalID).
		Order("voter").Pluck("voter", &voters).Error; err != nil {
		return nil, err
	}
	return voters, nil
}

func (s *Store) RecordVote(ctx context.Context, vote *governance.Vote, lock *conviction.Lock, tally governance.Tally) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := fromVote(vote)
		if err := upsert(tx, &rec); err != nil {
			return err
		}
		if lock != nil {
			lockRec := fromLock(lock)
			if err := upsert(tx, &lockRec); err != nil {
				return err
			}
		}
		res := tx.Model(&proposalRecord{}).Where("id = ?", vote.ProposalID).Updates(map[string]any{
			"yes":     decString(tally.Yes),
			"no":      decString(tally.No),
			"abstain": decString(tally.Abstain),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("sqlstore: proposal %d not found", vote.ProposalID)
		}
		return nil
	})
}

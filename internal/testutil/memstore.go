// Package testutil contains in-memory implementations of the repository
// contracts, used by application and service tests. The fakes honor the same
// concurrency guards as the PostgreSQL layer: version CAS on aggregates,
// decision CAS on approvals, status CAS on redemptions and referrals, the
// stock guard on rewards and the unlock uniqueness constraint. A MemStore
// transaction snapshots the whole store and restores it when the body fails,
// so hook rollback behaves like a real storage transaction.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/classpoints/points-engine/internal/application/command"
	"github.com/classpoints/points-engine/internal/domain/achievement"
	"github.com/classpoints/points-engine/internal/domain/approval"
	"github.com/classpoints/points-engine/internal/domain/ledger"
	"github.com/classpoints/points-engine/internal/domain/ranking"
	"github.com/classpoints/points-engine/internal/domain/referral"
	"github.com/classpoints/points-engine/internal/domain/reward"
	"github.com/classpoints/points-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMORY STORE
// ══════════════════════════════════════════════════════════════════════════════

// MemStore is an in-memory database implementing command.UnitOfWork.
// Stored entities are never mutated in place: every write replaces the stored
// pointer with a fresh copy and every read returns a copy, so a shallow map
// snapshot is a correct rollback.
type MemStore struct {
	mu sync.Mutex

	txs     map[string]*ledger.Transaction
	txOrder []string

	aggs         map[string]*ranking.Aggregate
	approvals    map[string]*approval.PendingApproval
	achievements map[string]*achievement.Achievement
	unlocks      map[string]*achievement.StudentAchievement
	rewards      map[string]*reward.Reward
	redemptions  map[string]*reward.Redemption
	referrals    map[string]*referral.ReferralRecord
	campaigns    map[string]*referral.Campaign

	// SaveErrs is a FIFO of errors returned by Aggregates.Save before the
	// normal CAS logic runs. Tests script lost races with it.
	SaveErrs []error
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		txs:          make(map[string]*ledger.Transaction),
		aggs:         make(map[string]*ranking.Aggregate),
		approvals:    make(map[string]*approval.PendingApproval),
		achievements: make(map[string]*achievement.Achievement),
		unlocks:      make(map[string]*achievement.StudentAchievement),
		rewards:      make(map[string]*reward.Reward),
		redemptions:  make(map[string]*reward.Redemption),
		referrals:    make(map[string]*referral.ReferralRecord),
		campaigns:    make(map[string]*referral.Campaign),
	}
}

// Run executes fn against the store under a single lock and rolls the store
// back to its pre-transaction state when fn returns an error.
func (s *MemStore) Run(ctx context.Context, fn func(ctx context.Context, repos command.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, s.repos(true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Repos returns repositories for non-transactional reads.
func (s *MemStore) Repos() command.Repos {
	return s.repos(false)
}

func (s *MemStore) repos(locked bool) command.Repos {
	return command.Repos{
		Ledger:       &memLedgerRepo{s: s, locked: locked},
		Aggregates:   &memRankingRepo{s: s, locked: locked},
		Approvals:    &memApprovalRepo{s: s, locked: locked},
		Achievements: &memAchievementRepo{s: s, locked: locked},
		Rewards:      &memRewardRepo{s: s, locked: locked},
		Referrals:    &memReferralRepo{s: s, locked: locked},
	}
}

// enter acquires the store lock unless the caller already holds it via Run.
func (s *MemStore) enter(locked bool) func() {
	if locked {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshotState struct {
	txs          map[string]*ledger.Transaction
	txOrder      []string
	aggs         map[string]*ranking.Aggregate
	approvals    map[string]*approval.PendingApproval
	achievements map[string]*achievement.Achievement
	unlocks      map[string]*achievement.StudentAchievement
	rewards      map[string]*reward.Reward
	redemptions  map[string]*reward.Redemption
	referrals    map[string]*referral.ReferralRecord
	campaigns    map[string]*referral.Campaign
}

func (s *MemStore) snapshot() snapshotState {
	return snapshotState{
		txs:          copyMap(s.txs),
		txOrder:      append([]string(nil), s.txOrder...),
		aggs:         copyMap(s.aggs),
		approvals:    copyMap(s.approvals),
		achievements: copyMap(s.achievements),
		unlocks:      copyMap(s.unlocks),
		rewards:      copyMap(s.rewards),
		redemptions:  copyMap(s.redemptions),
		referrals:    copyMap(s.referrals),
		campaigns:    copyMap(s.campaigns),
	}
}

func (s *MemStore) restore(snap snapshotState) {
	s.txs = snap.txs
	s.txOrder = snap.txOrder
	s.aggs = snap.aggs
	s.approvals = snap.approvals
	s.achievements = snap.achievements
	s.unlocks = snap.unlocks
	s.rewards = snap.rewards
	s.redemptions = snap.redemptions
	s.referrals = snap.referrals
	s.campaigns = snap.campaigns
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func aggKey(studentID shared.StudentID, tenantID shared.TenantID) string {
	return string(studentID) + "|" + string(tenantID)
}

func unlockKey(studentID shared.StudentID, achievementID string) string {
	return string(studentID) + "|" + achievementID
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY COPIES
// Pointer fields are duplicated so stored state cannot alias caller state.
// ══════════════════════════════════════════════════════════════════════════════

func cloneTx(t *ledger.Transaction) *ledger.Transaction {
	c := *t
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		c.DeletedAt = &at
	}
	return &c
}

func cloneApproval(a *approval.PendingApproval) *approval.PendingApproval {
	c := *a
	if a.DecidedBy != nil {
		by := *a.DecidedBy
		c.DecidedBy = &by
	}
	if a.DecidedAt != nil {
		at := *a.DecidedAt
		c.DecidedAt = &at
	}
	return &c
}

func cloneRedemption(r *reward.Redemption) *reward.Redemption {
	c := *r
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

func cloneReferral(r *referral.ReferralRecord) *referral.ReferralRecord {
	c := *r
	if r.Reward != nil {
		bd := *r.Reward
		c.Reward = &bd
	}
	if r.ContactedAt != nil {
		at := *r.ContactedAt
		c.ContactedAt = &at
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	return &c
}

func cloneCampaign(c *referral.Campaign) *referral.Campaign {
	out := *c
	out.Tiers = append([]referral.Tier(nil), c.Tiers...)
	return &out
}

func cloneReward(r *reward.Reward) *reward.Reward {
	c := *r
	return &c
}

func cloneAchievement(a *achievement.Achievement) *achievement.Achievement {
	c := *a
	return &c
}

func cloneUnlock(sa *achievement.StudentAchievement) *achievement.StudentAchievement {
	c := *sa
	return &c
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

type memLedgerRepo struct {
	s      *MemStore
	locked bool
}

func (r *memLedgerRepo) Append(ctx context.Context, tx *ledger.Transaction) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.txs[tx.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.txs[tx.ID] = cloneTx(tx)
	r.s.txOrder = append(r.s.txOrder, tx.ID)
	return nil
}

func (r *memLedgerRepo) GetByID(ctx context.Context, id string) (*ledger.Transaction, error) {
	defer r.s.enter(r.locked)()

	tx, ok := r.s.txs[id]
	if !ok {
		return nil, shared.ErrTransactionNotFound
	}
	return cloneTx(tx), nil
}

func (r *memLedgerRepo) filter(studentID shared.StudentID, tenantID shared.TenantID, opts ledger.ListOptions) []*ledger.Transaction {
	var out []*ledger.Transaction
	for _, id := range r.s.txOrder {
		tx := r.s.txs[id]
		if tx.StudentID != studentID || tx.TenantID != tenantID {
			continue
		}
		if tx.IsDeleted() && !opts.IncludeDeleted {
			continue
		}
		if opts.Kind != "" && tx.Kind != opts.Kind {
			continue
		}
		if opts.Category != "" && tx.Category != opts.Category {
			continue
		}
		if !opts.Range.IsZero() && !opts.Range.Contains(tx.CreatedAt) {
			continue
		}
		out = append(out, cloneTx(tx))
	}
	return out
}

func (r *memLedgerRepo) ListByStudent(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, opts ledger.ListOptions) ([]*ledger.Transaction, error) {
	defer r.s.enter(r.locked)()

	txs := r.filter(studentID, tenantID, opts)
	if opts.NewestFirst {
		for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
			txs[i], txs[j] = txs[j], txs[i]
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(txs) {
			return nil, nil
		}
		txs = txs[opts.Offset:]
	}
	if opts.Limit > 0 && len(txs) > opts.Limit {
		txs = txs[:opts.Limit]
	}
	return txs, nil
}

func (r *memLedgerRepo) CountByStudent(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, opts ledger.ListOptions) (int, error) {
	defer r.s.enter(r.locked)()
	return len(r.filter(studentID, tenantID, opts)), nil
}

func (r *memLedgerRepo) SoftDelete(ctx context.Context, id, actor string) error {
	defer r.s.enter(r.locked)()

	tx, ok := r.s.txs[id]
	if !ok || tx.IsDeleted() {
		return shared.ErrTransactionNotFound
	}
	c := cloneTx(tx)
	now := time.Now().UTC()
	c.DeletedAt = &now
	c.DeletedBy = actor
	r.s.txs[id] = c
	return nil
}

func (r *memLedgerRepo) Replay(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (ledger.ReplayResult, error) {
	defer r.s.enter(r.locked)()

	txs := r.filter(studentID, tenantID, ledger.ListOptions{IncludeDeleted: true})
	return ledger.Replay(txs), nil
}

func (r *memLedgerRepo) CountByCategory(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (map[ledger.Category]int, error) {
	defer r.s.enter(r.locked)()

	counts := make(map[ledger.Category]int)
	for _, tx := range r.filter(studentID, tenantID, ledger.ListOptions{}) {
		counts[tx.Category]++
	}
	return counts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

type memRankingRepo struct {
	s      *MemStore
	locked bool
}

func (r *memRankingRepo) Get(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (*ranking.Aggregate, error) {
	defer r.s.enter(r.locked)()

	agg, ok := r.s.aggs[aggKey(studentID, tenantID)]
	if !ok {
		return nil, shared.ErrAggregateNotFound
	}
	return agg.Clone(), nil
}

func (r *memRankingRepo) Save(ctx context.Context, agg *ranking.Aggregate) error {
	defer r.s.enter(r.locked)()

	if len(r.s.SaveErrs) > 0 {
		err := r.s.SaveErrs[0]
		r.s.SaveErrs = r.s.SaveErrs[1:]
		if err != nil {
			return err
		}
	}

	key := aggKey(agg.StudentID, agg.TenantID)
	cur, exists := r.s.aggs[key]

	if agg.Version == 0 {
		if exists {
			return shared.ErrAggregateConflict
		}
		stored := agg.Clone()
		stored.Version = 1
		r.s.aggs[key] = stored
		agg.Version = 1
		return nil
	}

	if !exists || cur.Version != agg.Version {
		return shared.ErrAggregateConflict
	}
	stored := agg.Clone()
	stored.Version = agg.Version.Next()
	r.s.aggs[key] = stored
	agg.Version = agg.Version.Next()
	return nil
}

func (r *memRankingRepo) sorted(tenantID shared.TenantID) []*ranking.Aggregate {
	var aggs []*ranking.Aggregate
	for _, agg := range r.s.aggs {
		if agg.TenantID == tenantID {
			aggs = append(aggs, agg.Clone())
		}
	}
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TotalPoints != aggs[j].TotalPoints {
			return aggs[i].TotalPoints > aggs[j].TotalPoints
		}
		return aggs[i].StudentID < aggs[j].StudentID
	})
	return aggs
}

func (r *memRankingRepo) GetRanked(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]ranking.RankedEntry, error) {
	defer r.s.enter(r.locked)()

	page = page.Normalize(20, 100)
	entries := ranking.DenseRank(r.sorted(tenantID))
	if page.Offset >= len(entries) {
		return nil, nil
	}
	entries = entries[page.Offset:]
	if len(entries) > page.Limit {
		entries = entries[:page.Limit]
	}
	return entries, nil
}

func (r *memRankingRepo) GetStudentRank(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) (*ranking.RankedEntry, error) {
	defer r.s.enter(r.locked)()

	for _, entry := range ranking.DenseRank(r.sorted(tenantID)) {
		if entry.StudentID == studentID {
			e := entry
			return &e, nil
		}
	}
	return nil, shared.ErrAggregateNotFound
}

func (r *memRankingRepo) CountStudents(ctx context.Context, tenantID shared.TenantID) (int, error) {
	defer r.s.enter(r.locked)()

	count := 0
	for _, agg := range r.s.aggs {
		if agg.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func (r *memRankingRepo) ListStale(ctx context.Context, tenantID shared.TenantID, updatedBefore time.Time, limit int) ([]*ranking.Aggregate, error) {
	defer r.s.enter(r.locked)()

	var out []*ranking.Aggregate
	for _, agg := range r.s.aggs {
		if agg.TenantID != tenantID || !agg.UpdatedAt.Before(updatedBefore) {
			continue
		}
		out = append(out, agg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPROVALS
// ══════════════════════════════════════════════════════════════════════════════

type memApprovalRepo struct {
	s      *MemStore
	locked bool
}

func (r *memApprovalRepo) Create(ctx context.Context, a *approval.PendingApproval) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.approvals[a.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (r *memApprovalRepo) GetByID(ctx context.Context, id string) (*approval.PendingApproval, error) {
	defer r.s.enter(r.locked)()

	a, ok := r.s.approvals[id]
	if !ok {
		return nil, shared.ErrApprovalNotFound
	}
	return cloneApproval(a), nil
}

func (r *memApprovalRepo) Decide(ctx context.Context, a *approval.PendingApproval) error {
	defer r.s.enter(r.locked)()

	cur, ok := r.s.approvals[a.ID]
	if !ok {
		return shared.ErrApprovalNotFound
	}
	if cur.Decision != approval.DecisionPending {
		return shared.ErrApprovalAlreadyDecided
	}
	r.s.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (r *memApprovalRepo) ListPending(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]*approval.PendingApproval, error) {
	defer r.s.enter(r.locked)()

	var out []*approval.PendingApproval
	for _, a := range r.s.approvals {
		if a.TenantID == tenantID && a.Decision == approval.DecisionPending {
			out = append(out, cloneApproval(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return pageSlice(out, page), nil
}

func (r *memApprovalRepo) CountPending(ctx context.Context, tenantID shared.TenantID) (int, error) {
	defer r.s.enter(r.locked)()

	count := 0
	for _, a := range r.s.approvals {
		if a.TenantID == tenantID && a.Decision == approval.DecisionPending {
			count++
		}
	}
	return count, nil
}

func (r *memApprovalRepo) ListDecidedSince(ctx context.Context, tenantID shared.TenantID, since time.Time, page shared.Page) ([]*approval.PendingApproval, error) {
	defer r.s.enter(r.locked)()

	var out []*approval.PendingApproval
	for _, a := range r.s.approvals {
		if a.TenantID != tenantID || a.Decision == approval.DecisionPending {
			continue
		}
		if a.DecidedAt == nil || a.DecidedAt.Before(since) {
			continue
		}
		out = append(out, cloneApproval(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DecidedAt.After(*out[j].DecidedAt) })
	return pageSlice(out, page), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

type memAchievementRepo struct {
	s      *MemStore
	locked bool
}

func (r *memAchievementRepo) CreateAchievement(ctx context.Context, a *achievement.Achievement) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.achievements[a.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.achievements[a.ID] = cloneAchievement(a)
	return nil
}

func (r *memAchievementRepo) GetAchievement(ctx context.Context, id string) (*achievement.Achievement, error) {
	defer r.s.enter(r.locked)()

	a, ok := r.s.achievements[id]
	if !ok {
		return nil, shared.ErrAchievementNotFound
	}
	return cloneAchievement(a), nil
}

func (r *memAchievementRepo) ListActive(ctx context.Context, tenantID shared.TenantID) ([]*achievement.Achievement, error) {
	defer r.s.enter(r.locked)()

	var out []*achievement.Achievement
	for _, a := range r.s.achievements {
		if a.TenantID == tenantID && a.Active {
			out = append(out, cloneAchievement(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memAchievementRepo) SetActive(ctx context.Context, id string, active bool) error {
	defer r.s.enter(r.locked)()

	a, ok := r.s.achievements[id]
	if !ok {
		return shared.ErrAchievementNotFound
	}
	c := cloneAchievement(a)
	c.Active = active
	r.s.achievements[id] = c
	return nil
}

func (r *memAchievementRepo) RecordUnlock(ctx context.Context, sa *achievement.StudentAchievement) error {
	defer r.s.enter(r.locked)()

	key := unlockKey(sa.StudentID, sa.AchievementID)
	if _, ok := r.s.unlocks[key]; ok {
		return shared.ErrAlreadyUnlocked
	}
	r.s.unlocks[key] = cloneUnlock(sa)
	return nil
}

func (r *memAchievementRepo) ListUnlocked(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) ([]string, error) {
	defer r.s.enter(r.locked)()

	var ids []string
	for _, sa := range r.s.unlocks {
		if sa.StudentID == studentID && sa.TenantID == tenantID {
			ids = append(ids, sa.AchievementID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memAchievementRepo) ListUnlocks(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID) ([]*achievement.StudentAchievement, error) {
	defer r.s.enter(r.locked)()

	var out []*achievement.StudentAchievement
	for _, sa := range r.s.unlocks {
		if sa.StudentID == studentID && sa.TenantID == tenantID {
			out = append(out, cloneUnlock(sa))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockedAt.After(out[j].UnlockedAt) })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARDS
// ══════════════════════════════════════════════════════════════════════════════

type memRewardRepo struct {
	s      *MemStore
	locked bool
}

func (r *memRewardRepo) CreateReward(ctx context.Context, rw *reward.Reward) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.rewards[rw.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.rewards[rw.ID] = cloneReward(rw)
	return nil
}

func (r *memRewardRepo) GetReward(ctx context.Context, id string) (*reward.Reward, error) {
	defer r.s.enter(r.locked)()

	rw, ok := r.s.rewards[id]
	if !ok {
		return nil, shared.ErrRewardNotFound
	}
	return cloneReward(rw), nil
}

func (r *memRewardRepo) ListActive(ctx context.Context, tenantID shared.TenantID, page shared.Page) ([]*reward.Reward, error) {
	defer r.s.enter(r.locked)()

	var out []*reward.Reward
	for _, rw := range r.s.rewards {
		if rw.TenantID == tenantID && rw.IsRedeemable() {
			out = append(out, cloneReward(rw))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CoinCost != out[j].CoinCost {
			return out[i].CoinCost < out[j].CoinCost
		}
		return out[i].Name < out[j].Name
	})
	return pageSlice(out, page), nil
}

func (r *memRewardRepo) UpdateReward(ctx context.Context, rw *reward.Reward) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.rewards[rw.ID]; !ok {
		return shared.ErrRewardNotFound
	}
	r.s.rewards[rw.ID] = cloneReward(rw)
	return nil
}

func (r *memRewardRepo) DecrementStock(ctx context.Context, id string) error {
	defer r.s.enter(r.locked)()

	rw, ok := r.s.rewards[id]
	if !ok {
		return shared.ErrRewardNotFound
	}
	if rw.Stock == reward.StockUnlimited {
		return nil
	}
	if rw.Stock <= 0 {
		return shared.ErrRewardInactive
	}
	c := cloneReward(rw)
	c.Stock--
	r.s.rewards[id] = c
	return nil
}

func (r *memRewardRepo) CreateRedemption(ctx context.Context, rd *reward.Redemption) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.redemptions[rd.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.redemptions[rd.ID] = cloneRedemption(rd)
	return nil
}

func (r *memRewardRepo) GetRedemption(ctx context.Context, id string) (*reward.Redemption, error) {
	defer r.s.enter(r.locked)()

	rd, ok := r.s.redemptions[id]
	if !ok {
		return nil, shared.ErrRedemptionNotFound
	}
	return cloneRedemption(rd), nil
}

func (r *memRewardRepo) UpdateRedemptionStatus(ctx context.Context, rd *reward.Redemption) error {
	defer r.s.enter(r.locked)()

	cur, ok := r.s.redemptions[rd.ID]
	if !ok {
		return shared.ErrRedemptionNotFound
	}
	if cur.Status.IsTerminal() {
		return shared.ErrTerminalState
	}
	r.s.redemptions[rd.ID] = cloneRedemption(rd)
	return nil
}

func (r *memRewardRepo) ListRedemptions(ctx context.Context, studentID shared.StudentID, tenantID shared.TenantID, page shared.Page) ([]*reward.Redemption, error) {
	defer r.s.enter(r.locked)()

	var out []*reward.Redemption
	for _, rd := range r.s.redemptions {
		if rd.StudentID == studentID && rd.TenantID == tenantID {
			out = append(out, cloneRedemption(rd))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return pageSlice(out, page), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REFERRALS
// ══════════════════════════════════════════════════════════════════════════════

type memReferralRepo struct {
	s      *MemStore
	locked bool
}

func (r *memReferralRepo) Create(ctx context.Context, rec *referral.ReferralRecord) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.referrals[rec.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.referrals[rec.ID] = cloneReferral(rec)
	return nil
}

func (r *memReferralRepo) GetByID(ctx context.Context, id string) (*referral.ReferralRecord, error) {
	defer r.s.enter(r.locked)()

	rec, ok := r.s.referrals[id]
	if !ok {
		return nil, shared.ErrReferralNotFound
	}
	return cloneReferral(rec), nil
}

func (r *memReferralRepo) Transition(ctx context.Context, rec *referral.ReferralRecord, from referral.Status) error {
	defer r.s.enter(r.locked)()

	cur, ok := r.s.referrals[rec.ID]
	if !ok {
		return shared.ErrReferralNotFound
	}
	if cur.Status != from {
		return shared.ErrReferralTerminal
	}
	r.s.referrals[rec.ID] = cloneReferral(rec)
	return nil
}

func (r *memReferralRepo) ListByReferrer(ctx context.Context, referrerID shared.StudentID, tenantID shared.TenantID, page shared.Page) ([]*referral.ReferralRecord, error) {
	defer r.s.enter(r.locked)()

	var out []*referral.ReferralRecord
	for _, rec := range r.s.referrals {
		if rec.ReferrerID == referrerID && rec.TenantID == tenantID {
			out = append(out, cloneReferral(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return pageSlice(out, page), nil
}

func (r *memReferralRepo) CountEnrolled(ctx context.Context, referrerID shared.StudentID, tenantID shared.TenantID) (int, error) {
	defer r.s.enter(r.locked)()

	count := 0
	for _, rec := range r.s.referrals {
		if rec.ReferrerID == referrerID && rec.TenantID == tenantID && rec.Status == referral.StatusEnrolled {
			count++
		}
	}
	return count, nil
}

func (r *memReferralRepo) ListOpenOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*referral.ReferralRecord, error) {
	defer r.s.enter(r.locked)()

	var out []*referral.ReferralRecord
	for _, rec := range r.s.referrals {
		if rec.Status.IsTerminal() || !rec.SubmittedAt.Before(cutoff) {
			continue
		}
		out = append(out, cloneReferral(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memReferralRepo) FunnelStats(ctx context.Context, tenantID shared.TenantID) (map[referral.Status]int, error) {
	defer r.s.enter(r.locked)()

	stats := make(map[referral.Status]int)
	for _, rec := range r.s.referrals {
		if rec.TenantID == tenantID {
			stats[rec.Status]++
		}
	}
	return stats, nil
}

func (r *memReferralRepo) CreateCampaign(ctx context.Context, c *referral.Campaign) error {
	defer r.s.enter(r.locked)()

	if _, ok := r.s.campaigns[c.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *memReferralRepo) GetCampaign(ctx context.Context, id string) (*referral.Campaign, error) {
	defer r.s.enter(r.locked)()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, shared.ErrCampaignNotFound
	}
	return cloneCampaign(c), nil
}

func (r *memReferralRepo) GetActiveCampaign(ctx context.Context, tenantID shared.TenantID, at time.Time) (*referral.Campaign, error) {
	defer r.s.enter(r.locked)()

	for _, c := range r.s.campaigns {
		if c.TenantID == tenantID && c.Covers(at) {
			return cloneCampaign(c), nil
		}
	}
	return nil, shared.ErrCampaignNotFound
}

func pageSlice[T any](items []T, page shared.Page) []T {
	page = page.Normalize(20, 100)
	if page.Offset >= len(items) {
		return nil
	}
	items = items[page.Offset:]
	if len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}

package memstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/arenadesk/platform/internal/domain"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/google/uuid"
)

type userRepo struct{ s *Store }

func (r *userRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.User, error) {
	var out *domain.User
	r.s.read(func(st *state) {
		if u, ok := st.users[id]; ok {
			out = &u
		}
	})
	return out, nil
}

func (r *userRepo) LockForUpdate(ctx context.Context, db repository.DBTX, id uuid.UUID) (*domain.User, error) {
	return r.FindByID(ctx, db, id)
}

func (r *userRepo) Create(_ context.Context, _ repository.DBTX, user *domain.User) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.users[user.ID]; ok {
			return fmt.Errorf("insert user: duplicate id %s", user.ID)
		}
		u := *user
		if u.CreatedAt.IsZero() {
			u.CreatedAt = r.s.now()
			u.UpdatedAt = u.CreatedAt
		}
		st.users[u.ID] = u
		return nil
	})
}

func (r *userRepo) AddBalance(_ context.Context, _ repository.DBTX, id uuid.UUID, delta int64) (*domain.User, error) {
	var out domain.User
	err := r.s.write(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.ErrUserNotFound(id.String())
		}
		u.Balance += delta
		u.UpdatedAt = r.s.now()
		st.users[id] = u
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *userRepo) List(_ context.Context, _ repository.DBTX, after *uuid.UUID, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var out []domain.User
	r.s.read(func(st *state) {
		for _, u := range st.users {
			if after != nil && u.ID.String() <= after.String() {
				continue
			}
			out = append(out, u)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type transactionRepo struct{ s *Store }

func (r *transactionRepo) Insert(_ context.Context, _ repository.DBTX, params domain.PostLedgerEntryParams, balanceAfter int64) (*domain.Transaction, error) {
	meta := params.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}
	tx := domain.Transaction{
		ID:            uuid.New(),
		UserID:        params.UserID,
		Type:          params.Type,
		Amount:        params.Amount,
		BalanceAfter:  balanceAfter,
		Currency:      params.Currency,
		Description:   params.Description,
		ReferenceType: params.ReferenceType,
		ReferenceID:   params.ReferenceID,
		Metadata:      meta,
		CreatedAt:     r.s.now(),
	}
	err := r.s.write(func(st *state) error {
		if tx.ReferenceType != nil && tx.ReferenceID != nil {
			for _, existing := range st.transactions {
				if existing.UserID == tx.UserID && existing.ReferenceType != nil && existing.ReferenceID != nil &&
					*existing.ReferenceType == *tx.ReferenceType && *existing.ReferenceID == *tx.ReferenceID {
					return fmt.Errorf("insert transaction: duplicate reference %s:%s", *tx.ReferenceType, *tx.ReferenceID)
				}
			}
		}
		st.transactions = append(st.transactions, tx)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Transaction, error) {
	var out *domain.Transaction
	r.s.read(func(st *state) {
		for i := range st.transactions {
			if st.transactions[i].ID == id {
				tx := st.transactions[i]
				out = &tx
				return
			}
		}
	})
	return out, nil
}

func (r *transactionRepo) ListByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID, cursor *string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 101 {
		limit = 20
	}
	var out []domain.Transaction
	r.s.read(func(st *state) {
		started := cursor == nil
		for i := len(st.transactions) - 1; i >= 0 && len(out) < limit; i-- {
			tx := st.transactions[i]
			if tx.UserID != userID {
				continue
			}
			if !started {
				if tx.ID.String() != *cursor {
					continue
				}
				started = true
			}
			out = append(out, tx)
		}
	})
	return out, nil
}

func (r *transactionRepo) SumByUser(_ context.Context, _ repository.DBTX, userID uuid.UUID) (int64, error) {
	var sum int64
	r.s.read(func(st *state) {
		for _, tx := range st.transactions {
			if tx.UserID == userID {
				sum += tx.Amount
			}
		}
	})
	return sum, nil
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Insert(_ context.Context, _ repository.DBTX, draft domain.OutboxDraft) error {
	return r.s.write(func(st *state) error {
		st.outboxSeq++
		draft.SeqID = st.outboxSeq
		st.outbox = append(st.outbox, draft)
		return nil
	})
}

func (r *outboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, limit int) ([]domain.OutboxDraft, error) {
	var out []domain.OutboxDraft
	r.s.read(func(st *state) {
		for _, d := range st.outbox {
			if len(out) >= limit {
				return
			}
			if !st.published[d.SeqID] {
				out = append(out, d)
			}
		}
	})
	return out, nil
}

func (r *outboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, seqIDs []int64) error {
	return r.s.write(func(st *state) error {
		for _, id := range seqIDs {
			st.published[id] = true
		}
		return nil
	})
}

type tournamentRepo struct{ s *Store }

func (r *tournamentRepo) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.Tournament, error) {
	var out *domain.Tournament
	r.s.read(func(st *state) {
		if t, ok := st.tournaments[id]; ok {
			t.PrizeDistributionRule = copyRule(t.PrizeDistributionRule)
			out = &t
		}
	})
	return out, nil
}

func (r *tournamentRepo) LockForUpdate(ctx context.Context, db repository.DBTX, id uuid.UUID) (*domain.Tournament, error) {
	return r.FindByID(ctx, db, id)
}

func (r *tournamentRepo) Create(_ context.Context, _ repository.DBTX, t *domain.Tournament) error {
	return r.s.write(func(st *state) error {
		if _, ok := st.tournaments[t.ID]; ok {
			return fmt.Errorf("insert tournament: duplicate id %s", t.ID)
		}
		c := *t
		c.PrizeDistributionRule = copyRule(t.PrizeDistributionRule)
		if c.CreatedAt.IsZero() {
			c.CreatedAt = r.s.now()
			c.UpdatedAt = c.CreatedAt
		}
		st.tournaments[c.ID] = c
		return nil
	})
}

func (r *tournamentRepo) UpdatePrizeRule(_ context.Context, _ repository.DBTX, id uuid.UUID, rule *domain.PrizeDistributionRule) error {
	return r.s.write(func(st *state) error {
		t, ok := st.tournaments[id]
		if !ok {
			return domain.ErrNotFound("tournament", id.String())
		}
		t.PrizeDistributionRule = copyRule(rule)
		t.UpdatedAt = r.s.now()
		st.tournaments[id] = t
		return nil
	})
}

func (r *tournamentRepo) MarkDistributed(_ context.Context, _ repository.DBTX, id uuid.UUID, total int64, at time.Time) (bool, error) {
	var swapped bool
	err := r.s.write(func(st *state) error {
		t, ok := st.tournaments[id]
		if !ok || t.PrizesDistributed {
			return nil
		}
		t.PrizesDistributed = true
		t.PrizesDistributedAt = &at
		t.TotalDistributed = total
		t.UpdatedAt = r.s.now()
		st.tournaments[id] = t
		swapped = true
		return nil
	})
	return swapped, err
}

func (r *tournamentRepo) ListDistributed(_ context.Context, _ repository.DBTX, after *uuid.UUID, limit int) ([]domain.Tournament, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Tournament
	r.s.read(func(st *state) {
		for _, t := range st.tournaments {
			if t.PrizesDistributed {
				t.PrizeDistributionRule = copyRule(t.PrizeDistributionRule)
				out = append(out, t)
			}
		}
	})
	newer := func(a, b domain.Tournament) bool {
		if !a.PrizesDistributedAt.Equal(*b.PrizesDistributedAt) {
			return a.PrizesDistributedAt.After(*b.PrizesDistributedAt)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) > 0
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })

	if after != nil {
		pos := len(out)
		for i, t := range out {
			if t.ID == *after {
				pos = i + 1
				break
			}
		}
		out = out[pos:]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type registrationRepo struct{ s *Store }

func (r *registrationRepo) Create(_ context.Context, _ repository.DBTX, reg *domain.Registration) error {
	return r.s.write(func(st *state) error {
		c := *reg
		if c.CreatedAt.IsZero() {
			c.CreatedAt = r.s.now()
		}
		st.registrations = append(st.registrations, c)
		return nil
	})
}

func (r *registrationRepo) ListByTournament(_ context.Context, _ repository.DBTX, tournamentID uuid.UUID) ([]domain.Registration, error) {
	var out []domain.Registration
	r.s.read(func(st *state) {
		for _, reg := range st.registrations {
			if reg.TournamentID == tournamentID {
				out = append(out, reg)
			}
		}
	})
	return out, nil
}

type resultRepo struct{ s *Store }

func (r *resultRepo) Create(_ context.Context, _ repository.DBTX, res *domain.Result) error {
	return r.s.write(func(st *state) error {
		c := *res
		if c.RewardStatus == "" {
			c.RewardStatus = domain.RewardUnpaid
		}
		c.UpdatedAt = r.s.now()
		st.results = append(st.results, c)
		return nil
	})
}

func (r *resultRepo) ListByTournament(_ context.Context, _ repository.DBTX, tournamentID uuid.UUID) ([]domain.Result, error) {
	var out []domain.Result
	r.s.read(func(st *state) {
		for _, res := range st.results {
			if res.TournamentID == tournamentID {
				out = append(out, res)
			}
		}
	})
	return out, nil
}

func (r *resultRepo) ApplyRewards(_ context.Context, _ repository.DBTX, rewards []domain.ResultReward) error {
	return r.s.write(func(st *state) error {
		index := make(map[uuid.UUID]int, len(st.results))
		for i, res := range st.results {
			index[res.ID] = i
		}
		for _, rw := range rewards {
			i, ok := index[rw.ResultID]
			if !ok {
				return fmt.Errorf("update result %s: no row", rw.ResultID)
			}
			st.results[i].Reward = rw.Reward
			st.results[i].RewardStatus = rw.RewardStatus
			st.results[i].UpdatedAt = r.s.now()
		}
		return nil
	})
}

type distributionRepo struct{ s *Store }

func (r *distributionRepo) InsertBatch(_ context.Context, _ repository.DBTX, records []domain.DistributionRecord) error {
	return r.s.write(func(st *state) error {
		for _, rec := range records {
			for _, existing := range st.distributions {
				if existing.TournamentID == rec.TournamentID && existing.ResultID == rec.ResultID {
					return fmt.Errorf("insert distribution for result %s: duplicate", rec.ResultID)
				}
			}
			st.distributions = append(st.distributions, rec)
		}
		return nil
	})
}

func (r *distributionRepo) ListByTournament(_ context.Context, _ repository.DBTX, tournamentID uuid.UUID) ([]domain.DistributionRecord, error) {
	var out []domain.DistributionRecord
	r.s.read(func(st *state) {
		for _, rec := range st.distributions {
			if rec.TournamentID == tournamentID {
				out = append(out, rec)
			}
		}
	})
	return out, nil
}

func (r *distributionRepo) SumByTournament(_ context.Context, _ repository.DBTX, tournamentID uuid.UUID) (int64, error) {
	var sum int64
	r.s.read(func(st *state) {
		for _, rec := range st.distributions {
			if rec.TournamentID == tournamentID {
				sum += rec.PrizeAmount
			}
		}
	})
	return sum, nil
}

func copyRule(rule *domain.PrizeDistributionRule) *domain.PrizeDistributionRule {
	if rule == nil {
		return nil
	}
	c := *rule
	c.OverrideDistribution = append([]domain.OverrideEntry(nil), rule.OverrideDistribution...)
	return &c
}

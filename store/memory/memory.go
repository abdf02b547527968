// Package memory provides an in-memory Store implementation (tests/dev).
// It mirrors the uniqueness and ordering guarantees of store/sqlite so tests
// exercise the same contract production runs against.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/illeiva2/cuentas-bot/ledger"
	"github.com/illeiva2/cuentas-bot/queue"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex

	holders      map[ledger.HolderID]ledger.Holder
	accounts     map[ledger.AccountID]ledger.Account
	transactions map[ledger.AccountID][]ledger.Transaction
	statements   map[ledger.AccountID][]ledger.Statement
	cases        map[ledger.CaseID]ledger.Case
	jobs         map[queue.JobID]queue.Job

	// FailSumFor simulates a store fault for one account. Tests use it to
	// exercise partial-failure isolation in bulk closes.
	FailSumFor map[ledger.AccountID]error
}

func New() *Store {
	return &Store{
		holders:      make(map[ledger.HolderID]ledger.Holder),
		accounts:     make(map[ledger.AccountID]ledger.Account),
		transactions: make(map[ledger.AccountID][]ledger.Transaction),
		statements:   make(map[ledger.AccountID][]ledger.Statement),
		cases:        make(map[ledger.CaseID]ledger.Case),
		jobs:         make(map[queue.JobID]queue.Job),
		FailSumFor:   make(map[ledger.AccountID]error),
	}
}

// =============================================================================
// HOLDERS
// =============================================================================

func (s *Store) CreateHolder(_ context.Context, h ledger.Holder, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.holders {
		if existing.NationalID == h.NationalID || existing.Code == h.Code {
			return ledger.ErrConflict
		}
		if h.Address != "" && existing.Address == h.Address {
			return ledger.ErrConflict
		}
	}
	s.holders[h.ID] = h
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) Holder(_ context.Context, id ledger.HolderID) (ledger.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holders[id]
	if !ok {
		return ledger.Holder{}, ledger.ErrNotFound
	}
	return h, nil
}

func (s *Store) HolderByAddress(_ context.Context, address string) (ledger.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if address == "" {
		return ledger.Holder{}, ledger.ErrNotFound
	}
	for _, h := range s.holders {
		if h.Address == address {
			return h, nil
		}
	}
	return ledger.Holder{}, ledger.ErrNotFound
}

func (s *Store) HolderByNationalID(_ context.Context, nationalID string) (ledger.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.holders {
		if h.NationalID == nationalID {
			return h, nil
		}
	}
	return ledger.Holder{}, ledger.ErrNotFound
}

func (s *Store) HolderByCode(_ context.Context, code string) (ledger.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.holders {
		if h.Code == code {
			return h, nil
		}
	}
	return ledger.Holder{}, ledger.ErrNotFound
}

func (s *Store) UpdateHolder(_ context.Context, h ledger.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holders[h.ID]; !ok {
		return ledger.ErrNotFound
	}
	if h.Address != "" {
		for id, other := range s.holders {
			if id != h.ID && other.Address == h.Address {
				return ledger.ErrConflict
			}
		}
	}
	s.holders[h.ID] = h
	return nil
}

func (s *Store) ListHolders(_ context.Context) ([]ledger.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Holder, 0, len(s.holders))
	for _, h := range s.holders {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) Account(_ context.Context, id ledger.AccountID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountByHolder(_ context.Context, holderID ledger.HolderID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.HolderID == holderID {
			return a, nil
		}
	}
	return ledger.Account{}, ledger.ErrNotFound
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateLastClosing(_ context.Context, id ledger.AccountID, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	t := closedAt
	a.LastClosingAt = &t
	s.accounts[id] = a
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *Store) AddTransaction(_ context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.transactions[tx.AccountID]
	// Insert sorted by PostedAt so range loads stay ordered.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].PostedAt.After(tx.PostedAt)
	})
	txs = append(txs, ledger.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	s.transactions[tx.AccountID] = txs
	return nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txs := s.transactions[tx.AccountID]
	for i := range txs {
		if txs[i].ID == tx.ID {
			txs[i] = tx
			return nil
		}
	}
	return ledger.ErrNotFound
}

func (s *Store) TransactionsInRange(_ context.Context, id ledger.AccountID, after, until time.Time) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Transaction
	for _, tx := range s.transactions[id] {
		if !after.IsZero() && !tx.PostedAt.After(after) {
			continue
		}
		if !until.IsZero() && tx.PostedAt.After(until) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) SumCents(_ context.Context, id ledger.AccountID, until *time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err, ok := s.FailSumFor[id]; ok {
		return 0, err
	}
	var sum int64
	for _, tx := range s.transactions[id] {
		if until != nil && tx.PostedAt.After(*until) {
			continue
		}
		sum += tx.AmountCents
	}
	return sum, nil
}

// =============================================================================
// STATEMENTS
// =============================================================================

func (s *Store) AddStatement(_ context.Context, st ledger.Statement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statements[st.AccountID] = append(s.statements[st.AccountID], st)
	sort.Slice(s.statements[st.AccountID], func(i, j int) bool {
		return s.statements[st.AccountID][i].PeriodEnd.Before(s.statements[st.AccountID][j].PeriodEnd)
	})
	return nil
}

func (s *Store) AttachStatementDocument(_ context.Context, id ledger.StatementID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for accID, sts := range s.statements {
		for i := range sts {
			if sts[i].ID == id {
				sts[i].DocumentURL = url
				s.statements[accID] = sts
				return nil
			}
		}
	}
	return ledger.ErrNotFound
}

func (s *Store) LatestStatement(_ context.Context, id ledger.AccountID) (ledger.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sts := s.statements[id]
	if len(sts) == 0 {
		return ledger.Statement{}, ledger.ErrNotFound
	}
	return sts[len(sts)-1], nil
}

func (s *Store) ListStatements(_ context.Context, id ledger.AccountID) ([]ledger.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Statement, len(s.statements[id]))
	copy(out, s.statements[id])
	return out, nil
}

// =============================================================================
// CASES
// =============================================================================

func (s *Store) CreateCase(_ context.Context, c ledger.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c
	return nil
}

func (s *Store) Case(_ context.Context, id ledger.CaseID) (ledger.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return ledger.Case{}, ledger.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateCase(_ context.Context, c ledger.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; !ok {
		return ledger.ErrNotFound
	}
	s.cases[c.ID] = c
	return nil
}

func (s *Store) ListCases(_ context.Context, status *ledger.CaseStatus) ([]ledger.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Case
	for _, c := range s.cases {
		if status != nil && c.Status != *status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// JOBS (queue.JobStore)
// =============================================================================

func (s *Store) EnqueueJob(_ context.Context, j queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *Store) ClaimDueJobs(_ context.Context, now time.Time, limit int) ([]queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []queue.Job
	for _, j := range s.jobs {
		if j.Status == queue.StatusPending && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		due[i].Status = queue.StatusRunning
		due[i].UpdatedAt = now
		s.jobs[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *Store) MarkJobDone(_ context.Context, id queue.JobID) error {
	return s.setJobStatus(id, func(j *queue.Job) {
		j.Status = queue.StatusDone
	})
}

func (s *Store) MarkJobRetry(_ context.Context, id queue.JobID, attempts int, runAt time.Time, lastError string) error {
	return s.setJobStatus(id, func(j *queue.Job) {
		j.Status = queue.StatusPending
		j.Attempts = attempts
		j.RunAt = runAt
		j.LastError = lastError
	})
}

func (s *Store) MarkJobFailed(_ context.Context, id queue.JobID, attempts int, lastError string) error {
	return s.setJobStatus(id, func(j *queue.Job) {
		j.Status = queue.StatusFailed
		j.Attempts = attempts
		j.LastError = lastError
	})
}

func (s *Store) setJobStatus(id queue.JobID, mutate func(*queue.Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ledger.ErrNotFound
	}
	mutate(&j)
	j.UpdatedAt = time.Now().UTC()
	s.jobs[id] = j
	return nil
}

// Job returns a job by id (test helper).
func (s *Store) Job(id queue.JobID) (queue.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	return j, ok
}

// Package financefake provides an in-memory ledger world for service tests.
// Every transaction works on a copy of the state that is published only when
// the callback succeeds, so rollbacks behave like the database.
package financefake

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting"
	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/periods"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/cashier"
	platformshared "github.com/saraya-erp/saraya-erp/internal/shared"
)

// Account is a chart of accounts row.
type Account struct {
	ID         int64
	HospitalID int64
	Code       string
	Active     bool
}

type mappingKey struct {
	hospitalID int64
	key        mappings.Key
}

type paymentKey struct {
	hospitalID int64
	id         int64
}

type state struct {
	years    map[int64]periods.Year
	periods  []periods.Period
	accounts map[int64]Account
	mappings map[mappingKey]int64
	entries  []accounting.JournalEntry
	invoices map[int64]billing.Invoice
	stays    []billing.BedOccupancy
	payments map[paymentKey]cashier.Payment
	closings []cashier.ShiftClosing
	nextID   int64
	numbers  map[int64]int64
}

func (s *state) clone() *state {
	out := *s
	out.years = maps.Clone(s.years)
	out.periods = slices.Clone(s.periods)
	out.accounts = maps.Clone(s.accounts)
	out.mappings = maps.Clone(s.mappings)
	out.entries = slices.Clone(s.entries)
	out.invoices = maps.Clone(s.invoices)
	out.stays = slices.Clone(s.stays)
	out.payments = maps.Clone(s.payments)
	out.closings = slices.Clone(s.closings)
	out.numbers = maps.Clone(s.numbers)
	return &out
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// World is the shared in-memory store. The zero value is not usable; call New.
type World struct {
	mu        sync.Mutex
	committed *state
	conflicts int
	audit     []platformshared.AuditLog
	now       func() time.Time
}

// New returns an empty world.
func New() *World {
	return &World{
		committed: &state{
			years:    map[int64]periods.Year{},
			accounts: map[int64]Account{},
			mappings: map[mappingKey]int64{},
			invoices: map[int64]billing.Invoice{},
			payments: map[paymentKey]cashier.Payment{},
			numbers:  map[int64]int64{},
		},
		now: time.Now,
	}
}

func (w *World) run(fn func(tx *Tx) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx := &Tx{world: w, st: w.committed.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	w.committed = tx.st
	return nil
}

func (w *World) read(fn func(st *state)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.committed)
}

// WithTx implements accounting.RepositoryPort.
func (w *World) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return w.run(func(tx *Tx) error { return fn(ctx, tx) })
}

// Billing returns a billing.UnitOfWork over the world.
func (w *World) Billing() billing.UnitOfWork { return billingUoW{w: w} }

// Cashier returns a cashier.UnitOfWork over the world.
func (w *World) Cashier() cashier.UnitOfWork { return cashierUoW{w: w} }

type billingUoW struct{ w *World }

func (u billingUoW) Do(ctx context.Context, fn func(context.Context, billing.Tx) error) error {
	return u.w.run(func(tx *Tx) error { return fn(ctx, tx) })
}

type cashierUoW struct{ w *World }

func (u cashierUoW) Do(ctx context.Context, fn func(context.Context, cashier.Tx) error) error {
	return u.w.run(func(tx *Tx) error { return fn(ctx, tx) })
}

// SimulateConcurrentWinner makes the next sourced InsertEntry lose the
// uniqueness race: a committed copy appears and the insert fails with
// ErrDuplicateSource.
func (w *World) SimulateConcurrentWinner() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conflicts++
}

// Record implements the audit ports.
func (w *World) Record(_ context.Context, log platformshared.AuditLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.audit = append(w.audit, log)
	return nil
}

// AuditActions lists recorded audit actions in order.
func (w *World) AuditActions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.audit))
	for _, l := range w.audit {
		out = append(out, l.Action)
	}
	return out
}

// SeedAccount adds an account and returns its id.
func (w *World) SeedAccount(hospitalID int64, code string, active bool) int64 {
	var id int64
	_ = w.run(func(tx *Tx) error {
		id = tx.st.id()
		tx.st.accounts[id] = Account{ID: id, HospitalID: hospitalID, Code: code, Active: active}
		return nil
	})
	return id
}

// SetAccountActive toggles an account.
func (w *World) SetAccountActive(id int64, active bool) {
	_ = w.run(func(tx *Tx) error {
		acct := tx.st.accounts[id]
		acct.Active = active
		tx.st.accounts[id] = acct
		return nil
	})
}

// Map points a system key at an account.
func (w *World) Map(hospitalID int64, key mappings.Key, accountID int64) {
	_ = w.run(func(tx *Tx) error {
		tx.st.mappings[mappingKey{hospitalID, key}] = accountID
		return nil
	})
}

// Unmap removes a system key mapping.
func (w *World) Unmap(hospitalID int64, key mappings.Key) {
	_ = w.run(func(tx *Tx) error {
		delete(tx.st.mappings, mappingKey{hospitalID, key})
		return nil
	})
}

// SeedChart creates one active account per system key and maps it.
func (w *World) SeedChart(hospitalID int64) map[mappings.Key]int64 {
	out := make(map[mappings.Key]int64)
	for _, key := range mappings.AllKeys() {
		id := w.SeedAccount(hospitalID, string(key), true)
		w.Map(hospitalID, key, id)
		out[key] = id
	}
	return out
}

// SeedPeriod adds a period, creating its year on demand.
func (w *World) SeedPeriod(hospitalID int64, start, end time.Time, open bool) periods.Period {
	var p periods.Period
	_ = w.run(func(tx *Tx) error {
		yearID := tx.st.id()
		tx.st.years[yearID] = periods.Year{
			ID: yearID, HospitalID: hospitalID, Code: start.Format("2006"),
			StartDate: periods.DateOnly(start), EndDate: periods.DateOnly(end), Status: periods.YearStatusOpen,
		}
		p = periods.Period{
			ID: tx.st.id(), YearID: yearID, HospitalID: hospitalID, Seq: 1,
			Name:      start.Format("2006-01"),
			StartDate: periods.DateOnly(start), EndDate: periods.DateOnly(end), IsOpen: open,
		}
		tx.st.periods = append(tx.st.periods, p)
		return nil
	})
	return p
}

// OpenMonth seeds an open monthly period.
func (w *World) OpenMonth(hospitalID int64, year int, month time.Month) periods.Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return w.SeedPeriod(hospitalID, start, start.AddDate(0, 1, -1), true)
}

// ClosePeriod marks a period closed.
func (w *World) ClosePeriod(periodID int64) {
	_ = w.run(func(tx *Tx) error {
		for i := range tx.st.periods {
			if tx.st.periods[i].ID == periodID {
				tx.st.periods[i].IsOpen = false
			}
		}
		return nil
	})
}

// SeedInvoice stores an invoice as is.
func (w *World) SeedInvoice(inv billing.Invoice) {
	_ = w.run(func(tx *Tx) error {
		tx.st.invoices[inv.ID] = inv
		return nil
	})
}

// Invoice returns the committed invoice.
func (w *World) Invoice(id int64) (billing.Invoice, bool) {
	var (
		inv billing.Invoice
		ok  bool
	)
	w.read(func(st *state) { inv, ok = st.invoices[id] })
	return inv, ok
}

// SeedStay adds a bed occupancy.
func (w *World) SeedStay(b billing.BedOccupancy) {
	_ = w.run(func(tx *Tx) error {
		tx.st.stays = append(tx.st.stays, b)
		return nil
	})
}

// SeedPayment stores a payment without posting it.
func (w *World) SeedPayment(p cashier.Payment) {
	_ = w.run(func(tx *Tx) error {
		tx.st.payments[paymentKey{p.HospitalID, p.ID}] = p
		return nil
	})
}

// Entries returns committed entries of a hospital in posting order.
func (w *World) Entries(hospitalID int64) []accounting.JournalEntry {
	var out []accounting.JournalEntry
	w.read(func(st *state) {
		for _, e := range st.entries {
			if e.HospitalID == hospitalID {
				out = append(out, e)
			}
		}
	})
	return out
}

// Balance returns debit minus credit of an account over committed entries.
func (w *World) Balance(accountID int64) decimal.Decimal {
	total := decimal.Zero
	w.read(func(st *state) {
		for _, e := range st.entries {
			for _, l := range e.Lines {
				if l.AccountID == accountID {
					total = total.Add(l.Debit).Sub(l.Credit)
				}
			}
		}
	})
	return total
}

// Payments returns committed payments of a hospital ordered by id.
func (w *World) Payments(hospitalID int64) []cashier.Payment {
	var out []cashier.Payment
	w.read(func(st *state) {
		for k, p := range st.payments {
			if k.hospitalID == hospitalID {
				out = append(out, p)
			}
		}
	})
	slices.SortFunc(out, func(a, b cashier.Payment) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Closings returns committed shift closings.
func (w *World) Closings() []cashier.ShiftClosing {
	var out []cashier.ShiftClosing
	w.read(func(st *state) { out = slices.Clone(st.closings) })
	return out
}

// Tx is one in-flight transaction. It implements the ledger, invoice and
// cashier stores at once.
type Tx struct {
	world *World
	st    *state
}

func (t *Tx) Ledger() accounting.TxRepository { return t }
func (t *Tx) Invoices() billing.Store         { return t }
func (t *Tx) Cash() cashier.CashStore         { return t }

func (t *Tx) ResolveOpenPeriod(_ context.Context, hospitalID int64, date time.Time) (periods.OpenPeriod, error) {
	for _, p := range t.st.periods {
		if p.HospitalID == hospitalID && p.Covers(date) {
			if !p.IsOpen {
				break
			}
			return periods.OpenPeriod{Year: t.st.years[p.YearID], Period: p}, nil
		}
	}
	return periods.OpenPeriod{}, fmt.Errorf("resolve period for %s: %w", periods.DateOnly(date).Format(time.DateOnly), shared.ErrPeriodNotOpen)
}

func (t *Tx) ResolveAccount(_ context.Context, hospitalID int64, key mappings.Key) (int64, error) {
	id, ok := t.st.mappings[mappingKey{hospitalID, key}]
	if !ok {
		return 0, mappings.Missing(hospitalID, key)
	}
	if acct := t.st.accounts[id]; !acct.Active {
		return 0, mappings.Inactive(hospitalID, key, id)
	}
	return id, nil
}

func (t *Tx) EnsureAccountsActive(_ context.Context, hospitalID int64, accountIDs []int64) error {
	for _, id := range accountIDs {
		acct, ok := t.st.accounts[id]
		if !ok || acct.HospitalID != hospitalID {
			return fmt.Errorf("%w: account %d", shared.ErrAccountNotFound, id)
		}
		if !acct.Active {
			return fmt.Errorf("%w: account %d", shared.ErrAccountInactive, id)
		}
	}
	return nil
}

func (t *Tx) FindEntryBySource(_ context.Context, hospitalID int64, module accounting.SourceModule, sourceID uuid.UUID, purpose string) (accounting.JournalEntry, bool, error) {
	for _, e := range t.st.entries {
		if e.HospitalID == hospitalID && e.SourceModule == module && e.SourceID == sourceID && e.Purpose == purpose {
			return e, true, nil
		}
	}
	return accounting.JournalEntry{}, false, nil
}

func (t *Tx) FindReversal(_ context.Context, entryID int64) (accounting.JournalEntry, bool, error) {
	for _, e := range t.st.entries {
		if e.ReversesEntryID != nil && *e.ReversesEntryID == entryID {
			return e, true, nil
		}
	}
	return accounting.JournalEntry{}, false, nil
}

func (t *Tx) GetEntry(_ context.Context, hospitalID, entryID int64) (accounting.JournalEntry, error) {
	for _, e := range t.st.entries {
		if e.HospitalID == hospitalID && e.ID == entryID {
			return e, nil
		}
	}
	return accounting.JournalEntry{}, shared.ErrEntryNotFound
}

func (t *Tx) ListEntries(_ context.Context, filter accounting.EntryFilter) ([]accounting.JournalEntry, error) {
	var out []accounting.JournalEntry
	for i := len(t.st.entries) - 1; i >= 0; i-- {
		e := t.st.entries[i]
		if e.HospitalID != filter.HospitalID || e.Date.Before(filter.From) || e.Date.After(filter.To) {
			continue
		}
		if filter.SourceModule != "" && e.SourceModule != filter.SourceModule {
			continue
		}
		e.Lines = nil
		out = append(out, e)
	}
	return out, nil
}

func (t *Tx) InsertEntry(_ context.Context, entry accounting.JournalEntry) (accounting.JournalEntry, error) {
	for _, e := range t.st.entries {
		sameSource := entry.SourceID != uuid.Nil && e.HospitalID == entry.HospitalID &&
			e.SourceModule == entry.SourceModule && e.SourceID == entry.SourceID && e.Purpose == entry.Purpose
		sameReversal := entry.ReversesEntryID != nil && e.ReversesEntryID != nil && *e.ReversesEntryID == *entry.ReversesEntryID
		if sameSource || sameReversal {
			return accounting.JournalEntry{}, shared.ErrDuplicateSource
		}
	}
	if entry.SourceID != uuid.Nil && t.world.conflicts > 0 {
		t.world.conflicts--
		winner := entry
		winner.ID = t.world.committed.id()
		t.world.committed.numbers[entry.HospitalID]++
		winner.Number = t.world.committed.numbers[entry.HospitalID]
		winner.PostedAt = t.world.now()
		t.world.committed.entries = append(t.world.committed.entries, winner)
		return accounting.JournalEntry{}, shared.ErrDuplicateSource
	}
	entry.ID = t.st.id()
	t.st.numbers[entry.HospitalID]++
	entry.Number = t.st.numbers[entry.HospitalID]
	entry.PostedAt = t.world.now()
	t.st.entries = append(t.st.entries, entry)
	return entry, nil
}

func (t *Tx) InsertLines(_ context.Context, entryID int64, lines []accounting.JournalLine) ([]accounting.JournalLine, error) {
	idx := slices.IndexFunc(t.st.entries, func(e accounting.JournalEntry) bool { return e.ID == entryID })
	if idx < 0 {
		return nil, shared.ErrEntryNotFound
	}
	out := make([]accounting.JournalLine, 0, len(lines))
	for _, l := range lines {
		l.ID = t.st.id()
		l.EntryID = entryID
		out = append(out, l)
	}
	t.st.entries[idx].Lines = append(slices.Clone(t.st.entries[idx].Lines), out...)
	return out, nil
}

func (t *Tx) GetInvoice(_ context.Context, hospitalID, id int64) (billing.Invoice, error) {
	inv, ok := t.st.invoices[id]
	if !ok || inv.HospitalID != hospitalID {
		return billing.Invoice{}, shared.ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *Tx) LockInvoices(_ context.Context, hospitalID int64, ids []int64) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, id := range ids {
		if inv, ok := t.st.invoices[id]; ok && inv.HospitalID == hospitalID {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b billing.Invoice) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *Tx) SaveIssued(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	if existing, ok := t.st.invoices[inv.ID]; ok && existing.Status != billing.InvoiceDraft {
		return existing, nil
	}
	inv.PaidAmount = decimal.Zero
	t.st.invoices[inv.ID] = inv
	return inv, nil
}

func (t *Tx) UpdateStatus(_ context.Context, id int64, status billing.InvoiceStatus, claim billing.ClaimStatus, _ time.Time) error {
	inv, ok := t.st.invoices[id]
	if !ok {
		return shared.ErrInvoiceNotFound
	}
	inv.Status = status
	inv.ClaimStatus = claim
	t.st.invoices[id] = inv
	return nil
}

func (t *Tx) ApplyPayment(_ context.Context, id int64, paid decimal.Decimal, status billing.InvoiceStatus) error {
	inv, ok := t.st.invoices[id]
	if !ok {
		return shared.ErrInvoiceNotFound
	}
	inv.PaidAmount = paid
	inv.Status = status
	t.st.invoices[id] = inv
	return nil
}

func (t *Tx) ListBedOccupancy(_ context.Context, day time.Time) ([]billing.BedOccupancy, error) {
	d := periods.DateOnly(day)
	var out []billing.BedOccupancy
	for _, b := range t.st.stays {
		if periods.DateOnly(b.AdmittedAt).After(d) {
			continue
		}
		if b.DischargedAt != nil && !periods.DateOnly(*b.DischargedAt).After(d) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (t *Tx) InsertPayment(_ context.Context, p cashier.Payment) (bool, error) {
	k := paymentKey{p.HospitalID, p.ID}
	if _, ok := t.st.payments[k]; ok {
		return false, nil
	}
	t.st.payments[k] = p
	return true, nil
}

func (t *Tx) GetPayment(_ context.Context, hospitalID, id int64) (cashier.Payment, error) {
	p, ok := t.st.payments[paymentKey{hospitalID, id}]
	if !ok {
		return cashier.Payment{}, fmt.Errorf("%w: payment %d not found", shared.ErrInvalidInput, id)
	}
	return p, nil
}

func (t *Tx) Totals(_ context.Context, hospitalID, operatorID int64, start, end time.Time) ([]cashier.MethodTotal, error) {
	sums := map[cashier.Method]*cashier.MethodTotal{}
	for k, p := range t.st.payments {
		if k.hospitalID != hospitalID || p.ReceivedBy != operatorID {
			continue
		}
		if p.ReceivedAt.Before(start) || !p.ReceivedAt.Before(end) {
			continue
		}
		mt, ok := sums[p.Method]
		if !ok {
			mt = &cashier.MethodTotal{Method: p.Method, Total: decimal.Zero}
			sums[p.Method] = mt
		}
		mt.Total = mt.Total.Add(p.Amount)
		mt.Count++
	}
	out := make([]cashier.MethodTotal, 0, len(sums))
	for _, mt := range sums {
		out = append(out, *mt)
	}
	slices.SortFunc(out, func(a, b cashier.MethodTotal) int {
		return cmp.Compare(a.Method, b.Method)
	})
	return out, nil
}

func (t *Tx) LockOperator(context.Context, int64, int64) error { return nil }

func (t *Tx) HasOverlap(_ context.Context, hospitalID, operatorID int64, start, end time.Time) (bool, error) {
	for _, c := range t.st.closings {
		if c.HospitalID == hospitalID && c.OperatorID == operatorID && cashier.Overlaps(c.RangeStart, c.RangeEnd, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tx) InsertClosing(ctx context.Context, c cashier.ShiftClosing) (cashier.ShiftClosing, error) {
	if overlap, _ := t.HasOverlap(ctx, c.HospitalID, c.OperatorID, c.RangeStart, c.RangeEnd); overlap {
		return cashier.ShiftClosing{}, shared.ErrShiftOverlap
	}
	c.ID = t.st.id()
	t.st.closings = append(t.st.closings, c)
	return c, nil
}

func (t *Tx) ListClosings(_ context.Context, hospitalID, operatorID int64, limit int) ([]cashier.ShiftClosing, error) {
	var out []cashier.ShiftClosing
	for _, c := range t.st.closings {
		if c.HospitalID == hospitalID && c.OperatorID == operatorID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b cashier.ShiftClosing) int { return b.RangeStart.Compare(a.RangeStart) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

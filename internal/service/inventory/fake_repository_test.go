package inventory

import (
	"context"
	"database/sql/driver"
	"sort"
	"sync"
	"time"

	"github.com/uma-arai/sbcntr-inventory/internal/model"
)

type recordKey struct {
	roomID string
	day    model.DayKey
}

// fakeAvailabilityRepository はトランザクションを模したメモリ上の台帳です
// ひとつのロックの中で検証と更新を行うため、各操作は直列化されます
type fakeAvailabilityRepository struct {
	mu      sync.Mutex
	records map[recordKey]model.AvailabilityRecord
	events  []model.LedgerEvent

	// transientFailures 回だけ読み取りが一時的な障害で失敗します
	transientFailures int
	readCalls         int
	// scanFailAfter 件渡した後に一度だけ失敗します（0なら無効）
	scanFailAfter int
	mutateErr     error
}

func newFakeRepository() *fakeAvailabilityRepository {
	return &fakeAvailabilityRepository{records: map[recordKey]model.AvailabilityRecord{}}
}

func (f *fakeAvailabilityRepository) readFault() error {
	f.readCalls++
	if f.transientFailures > 0 {
		f.transientFailures--
		return driver.ErrBadConn
	}
	return nil
}

func (f *fakeAvailabilityRepository) put(rec model.AvailabilityRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[recordKey{rec.RoomID, rec.Date}] = rec
}

func (f *fakeAvailabilityRepository) snapshot(roomID string) []model.AvailabilityRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []model.AvailabilityRecord
	for k, rec := range f.records {
		if k.roomID == roomID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (f *fakeAvailabilityRepository) auditTrail() []model.LedgerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LedgerEvent(nil), f.events...)
}

func (f *fakeAvailabilityRepository) Get(ctx context.Context, roomID string, day model.DayKey) (model.AvailabilityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.readFault(); err != nil {
		return model.AvailabilityRecord{}, err
	}
	rec, ok := f.records[recordKey{roomID, day}]
	if !ok {
		return model.AvailabilityRecord{}, model.NewNotFoundError(roomID, day)
	}
	return rec, nil
}

func (f *fakeAvailabilityRepository) FirstMissingDay(ctx context.Context, roomID string, r model.DateRange) (model.DayKey, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.readFault(); err != nil {
		return model.DayKey{}, false, err
	}
	for _, day := range r.Days() {
		if _, ok := f.records[recordKey{roomID, day}]; !ok {
			return day, true, nil
		}
	}
	return model.DayKey{}, false, nil
}

func (f *fakeAvailabilityRepository) ScanRange(ctx context.Context, roomID string, r model.DateRange, fn func(model.AvailabilityRecord) bool) error {
	f.mu.Lock()
	if err := f.readFault(); err != nil {
		f.mu.Unlock()
		return err
	}
	var rows []model.AvailabilityRecord
	for _, day := range r.Days() {
		if rec, ok := f.records[recordKey{roomID, day}]; ok {
			rows = append(rows, rec)
		}
	}
	failAfter := f.scanFailAfter
	f.scanFailAfter = 0
	f.mu.Unlock()

	for i, rec := range rows {
		if failAfter > 0 && i == failAfter {
			return driver.ErrBadConn
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

func (f *fakeAvailabilityRepository) MaxDate(ctx context.Context, roomID string) (model.DayKey, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.readFault(); err != nil {
		return model.DayKey{}, false, err
	}
	var (
		last  model.DayKey
		found bool
	)
	for k := range f.records {
		if k.roomID == roomID && (!found || k.day.After(last)) {
			last, found = k.day, true
		}
	}
	return last, found, nil
}

func (f *fakeAvailabilityRepository) InsertRange(ctx context.Context, roomID string, r model.DateRange, totalSlots int, now time.Time, audit *model.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mutateErr != nil {
		return f.mutateErr
	}
	for _, day := range r.Days() {
		if _, ok := f.records[recordKey{roomID, day}]; ok {
			return model.NewRangeConflictError(roomID, r, nil)
		}
	}
	for _, day := range r.Days() {
		f.records[recordKey{roomID, day}] = model.NewAvailabilityRecord(roomID, day, totalSlots, now)
	}
	f.appendEvent(audit)
	return nil
}

func (f *fakeAvailabilityRepository) InsertMissingRange(ctx context.Context, roomID string, r model.DateRange, totalSlots int, now time.Time, audit *model.LedgerEvent) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mutateErr != nil {
		return 0, f.mutateErr
	}
	inserted := 0
	for _, day := range r.Days() {
		if _, ok := f.records[recordKey{roomID, day}]; ok {
			continue
		}
		f.records[recordKey{roomID, day}] = model.NewAvailabilityRecord(roomID, day, totalSlots, now)
		inserted++
	}
	if inserted > 0 {
		f.appendEvent(audit)
	}
	return inserted, nil
}

func (f *fakeAvailabilityRepository) lockRange(intent model.ReservationIntent) ([]model.AvailabilityRecord, error) {
	var locked []model.AvailabilityRecord
	for _, day := range intent.Range.Days() {
		rec, ok := f.records[recordKey{intent.RoomID, day}]
		if !ok {
			return nil, model.NewIncompleteRangeError(intent.RoomID, day)
		}
		locked = append(locked, rec)
	}
	return locked, nil
}

func (f *fakeAvailabilityRepository) ReserveRange(ctx context.Context, intent model.ReservationIntent, now time.Time, audit *model.LedgerEvent) ([]model.AvailabilityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	locked, err := f.lockRange(intent)
	if err != nil {
		return nil, err
	}
	for _, rec := range locked {
		if rec.AvailableSlots < intent.Quantity {
			return nil, model.NewInsufficientAvailabilityError(intent.RoomID, rec.Date, intent.Quantity, rec.AvailableSlots)
		}
	}
	return f.apply(locked, -intent.Quantity, now, audit), nil
}

func (f *fakeAvailabilityRepository) ReleaseRange(ctx context.Context, intent model.ReservationIntent, now time.Time, audit *model.LedgerEvent) ([]model.AvailabilityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mutateErr != nil {
		return nil, f.mutateErr
	}
	locked, err := f.lockRange(intent)
	if err != nil {
		return nil, err
	}
	for _, rec := range locked {
		if intent.Quantity > rec.TotalSlots-rec.AvailableSlots {
			return nil, model.NewReleaseOverflowError(intent.RoomID, rec.Date, intent.Quantity, rec.AvailableSlots, rec.TotalSlots)
		}
	}
	return f.apply(locked, intent.Quantity, now, audit), nil
}

func (f *fakeAvailabilityRepository) apply(locked []model.AvailabilityRecord, delta int, now time.Time, audit *model.LedgerEvent) []model.AvailabilityRecord {
	updated := make([]model.AvailabilityRecord, 0, len(locked))
	for _, rec := range locked {
		rec.AvailableSlots += delta
		rec.UpdatedAt = now
		f.records[recordKey{rec.RoomID, rec.Date}] = rec
		updated = append(updated, rec)
	}
	f.appendEvent(audit)
	return updated
}

func (f *fakeAvailabilityRepository) appendEvent(audit *model.LedgerEvent) {
	if audit == nil {
		return
	}
	audit.ID = int64(len(f.events) + 1)
	f.events = append(f.events, *audit)
}

// recordingPublisher は発行されたイベントを記録します
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event model.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) published() []model.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.LedgerEvent(nil), p.events...)
}

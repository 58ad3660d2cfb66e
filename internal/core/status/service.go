package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

const (
	systemReasonDismissed  = "employee dismissed"
	systemReasonSuperseded = "superseded by %s"

	defaultSweepWorkers = 4
)

// Service は社員ステータスのライフサイクルに関するユースケースをまとめます。
type Service struct {
	repo      Repository
	history   HistoryRepository
	employees EmployeeDirectory
	divisions DivisionDirectory
	notifier  Notifier
	clock     Clock
	tx        TransactionManager
	rules     Rules
	location  *time.Location
	workers   int
	log       *logrus.Entry
	newID     func() string
}

// UseCase はステータスユースケースの公開インターフェースです。
type UseCase interface {
	CreateStatus(ctx context.Context, in CreateStatusInput) (*Record, error)
	UpdatePlannedStatus(ctx context.Context, in UpdatePlannedStatusInput) (*Record, error)
	ExtendStatus(ctx context.Context, in ExtendStatusInput) (*Record, error)
	TerminateStatusEarly(ctx context.Context, in TerminateStatusInput) (*Record, error)
	CancelStatus(ctx context.Context, in CancelStatusInput) (*Record, error)
	OnEmployeeDismissed(ctx context.Context, employeeID string, dismissalDate time.Time) ([]*Record, error)
	GetStatus(ctx context.Context, id string) (*Record, error)
	CurrentStatus(ctx context.Context, employeeID string, asOf time.Time) (Type, error)
	StatusHistory(ctx context.Context, employeeID string, from, to time.Time) ([]*Record, error)
	ListChanges(ctx context.Context, statusID string) ([]*HistoryEntry, error)
	ApplyPlannedStatuses(ctx context.Context, asOf time.Time) (*SweepResult, error)
	CompleteExpiredStatuses(ctx context.Context, asOf time.Time) (*SweepResult, error)
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithClock は時刻の供給元を差し替えます。
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTransactionManager はトランザクション制御を設定します。
func WithTransactionManager(tx TransactionManager) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// WithDivisionDirectory は部署参照を設定します。
func WithDivisionDirectory(d DivisionDirectory) Option {
	return func(s *Service) { s.divisions = d }
}

// WithNotifier は通知の送出口を設定します。
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithRules は検証設定を設定します。
func WithRules(r Rules) Option {
	return func(s *Service) { s.rules = r }
}

// WithLocation は「今日」を判定するタイムゾーンを設定します。
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithSweepWorkers はバッチ処理で並行に扱う社員数の上限を設定します。
func WithSweepWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithIDGenerator はレコード ID の採番方法を差し替えます。
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService は Service を生成します。
func NewService(repo Repository, history HistoryRepository, employees EmployeeDirectory, opts ...Option) *Service {
	nop := logrus.New()
	nop.SetLevel(logrus.PanicLevel)

	s := &Service{
		repo:      repo,
		history:   history,
		employees: employees,
		notifier:  noopNotifier{},
		clock:     realClock{},
		tx:        noopTransactionManager{},
		location:  time.UTC,
		workers:   defaultSweepWorkers,
		log:       logrus.NewEntry(nop),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateStatusInput はステータス登録時の入力です。
type CreateStatusInput struct {
	EmployeeID        string
	Type              Type
	StartDate         time.Time
	EndDate           *time.Time
	Comment           string
	Location          string
	RelatedDivisionID *string
	ActorID           *string
}

// UpdatePlannedStatusInput は予定ステータス変更時の入力です。
type UpdatePlannedStatusInput struct {
	ID                 string
	StartDate          *time.Time
	EndDate            *time.Time
	EndDateSet         bool
	Comment            *string
	Location           *string
	RelatedDivisionID  *string
	RelatedDivisionSet bool
	ActorID            *string
}

// ExtendStatusInput は延長時の入力です。
type ExtendStatusInput struct {
	ID         string
	NewEndDate time.Time
	ActorID    *string
}

// TerminateStatusInput は早期終了時の入力です。
type TerminateStatusInput struct {
	ID              string
	TerminationDate time.Time
	Reason          string
	ActorID         *string
}

// CancelStatusInput は取消時の入力です。
type CancelStatusInput struct {
	ID      string
	Reason  string
	ActorID *string
}

// CreateStatus は新しいステータスを登録します。状態は日付から導出されます。
func (s *Service) CreateStatus(ctx context.Context, in CreateStatusInput) (*Record, error) {
	employeeID, err := normalizeEmployeeID(in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if !isValidType(in.Type) {
		return nil, ErrInvalidType
	}
	if in.StartDate.IsZero() {
		return nil, fmt.Errorf("start_date: %w", ErrInvalidDate)
	}

	divisionID, err := s.resolveDivision(ctx, in.Type, in.RelatedDivisionID)
	if err != nil {
		return nil, err
	}
	actor := normalizeActor(in.ActorID)

	var created *Record
	if err := s.withinEmployee(ctx, employeeID, func(txCtx context.Context, cs *changeSet) error {
		emp, err := s.loadEmployee(txCtx, employeeID, true)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		today := s.today()
		rec := &Record{
			ID:                s.newID(),
			EmployeeID:        employeeID,
			Type:              in.Type,
			StartDate:         truncateDate(in.StartDate),
			EndDate:           NormalizeDate(in.EndDate),
			Comment:           strings.TrimSpace(in.Comment),
			Location:          strings.TrimSpace(in.Location),
			RelatedDivisionID: divisionID,
			CreatedBy:         actor,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		rec.State = DeriveState(rec.StartDate, rec.EndDate, nil, today)

		if err := s.rules.ValidateRecord(rec, emp); err != nil {
			return err
		}
		if err := s.claimWindow(txCtx, rec, today, now); err != nil {
			return err
		}

		result, err := s.insert(txCtx, rec, actor)
		if err != nil {
			return err
		}
		cs.notify(NotifyStatusCreated, result)
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// UpdatePlannedStatus は予定状態のステータスの日付や付帯情報を変更します。
func (s *Service) UpdatePlannedStatus(ctx context.Context, in UpdatePlannedStatusInput) (*Record, error) {
	actor := normalizeActor(in.ActorID)

	var updated *Record
	if err := s.withinRecord(ctx, in.ID, func(txCtx context.Context, cs *changeSet, rec *Record) error {
		if rec.State != StatePlanned {
			return ErrNotPlanned
		}

		before := snapshotOf(rec)
		next := cloneRecord(rec)

		if in.StartDate != nil {
			if in.StartDate.IsZero() {
				return fmt.Errorf("start_date: %w", ErrInvalidDate)
			}
			next.StartDate = truncateDate(*in.StartDate)
		}
		if in.EndDateSet {
			next.EndDate = NormalizeDate(in.EndDate)
		}
		if in.Comment != nil {
			next.Comment = strings.TrimSpace(*in.Comment)
		}
		if in.Location != nil {
			next.Location = strings.TrimSpace(*in.Location)
		}
		if in.RelatedDivisionSet {
			divisionID, err := s.resolveDivision(txCtx, next.Type, in.RelatedDivisionID)
			if err != nil {
				return err
			}
			next.RelatedDivisionID = divisionID
		}

		emp, err := s.loadEmployee(txCtx, rec.EmployeeID, true)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		today := s.today()
		next.State = DeriveState(next.StartDate, next.EndDate, next.ActualEndDate, today)
		next.UpdatedAt = now

		if err := s.rules.ValidateRecord(next, emp); err != nil {
			return err
		}
		if err := s.claimWindow(txCtx, next, today, now); err != nil {
			return err
		}

		result, err := s.save(txCtx, next, ChangeModified, before, actor)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	return updated, nil
}

// ExtendStatus は適用中のステータスの終了日を後ろへ延ばします。
func (s *Service) ExtendStatus(ctx context.Context, in ExtendStatusInput) (*Record, error) {
	if in.NewEndDate.IsZero() {
		return nil, fmt.Errorf("new_end_date: %w", ErrInvalidDate)
	}
	newEnd := truncateDate(in.NewEndDate)
	actor := normalizeActor(in.ActorID)

	var extended *Record
	if err := s.withinRecord(ctx, in.ID, func(txCtx context.Context, cs *changeSet, rec *Record) error {
		if rec.State != StateActive {
			return ErrNotActive
		}
		if rec.Type == TypeInService {
			return ErrEndDateNotAllowed
		}
		if rec.EndDate == nil || !newEnd.After(*rec.EndDate) {
			return ErrEndDateNotAdvanced
		}

		before := snapshotOf(rec)
		next := cloneRecord(rec)
		next.EndDate = &newEnd

		now := s.clock.Now()
		today := s.today()
		next.State = DeriveState(next.StartDate, next.EndDate, next.ActualEndDate, today)
		next.UpdatedAt = now

		if err := s.rules.ValidateRecord(next, nil); err != nil {
			return err
		}
		if err := s.claimWindow(txCtx, next, today, now); err != nil {
			return err
		}

		result, err := s.save(txCtx, next, ChangeExtended, before, actor)
		if err != nil {
			return err
		}
		cs.notify(NotifyStatusExtended, result)
		extended = result
		return nil
	}); err != nil {
		return nil, err
	}

	return extended, nil
}

// TerminateStatusEarly は適用中のステータスを予定より前に終了させ、翌日からの在籍ステータスを補います。
func (s *Service) TerminateStatusEarly(ctx context.Context, in TerminateStatusInput) (*Record, error) {
	if in.TerminationDate.IsZero() {
		return nil, fmt.Errorf("termination_date: %w", ErrInvalidDate)
	}
	date := truncateDate(in.TerminationDate)
	actor := normalizeActor(in.ActorID)

	var terminated *Record
	if err := s.withinRecord(ctx, in.ID, func(txCtx context.Context, cs *changeSet, rec *Record) error {
		if rec.State != StateActive {
			return ErrNotActive
		}
		if date.Before(rec.StartDate) {
			return ErrTerminationBeforeStart
		}
		if end := rec.EffectiveEnd(); end != nil && !date.Before(*end) {
			return ErrTerminationAfterPlannedEnd
		}

		before := snapshotOf(rec)
		next := cloneRecord(rec)
		next.ActualEndDate = &date
		next.EarlyTerminationReason = strings.TrimSpace(in.Reason)
		next.State = StateCompleted
		now := s.clock.Now()
		next.UpdatedAt = now

		result, err := s.save(txCtx, next, ChangeTerminated, before, actor)
		if err != nil {
			return err
		}
		cs.notify(NotifyStatusCompleted, result)
		terminated = result

		if rec.Type == TypeInService {
			return nil
		}
		_, err = s.ensureInService(txCtx, rec.EmployeeID, addDays(date, 1), s.today(), now)
		return err
	}); err != nil {
		return nil, err
	}

	return terminated, nil
}

// CancelStatus は予定状態のステータスを取り消します。
func (s *Service) CancelStatus(ctx context.Context, in CancelStatusInput) (*Record, error) {
	actor := normalizeActor(in.ActorID)

	var cancelled *Record
	if err := s.withinRecord(ctx, in.ID, func(txCtx context.Context, cs *changeSet, rec *Record) error {
		if rec.State != StatePlanned {
			return ErrNotPlanned
		}

		before := snapshotOf(rec)
		next := cloneRecord(rec)
		next.State = StateCancelled
		next.EarlyTerminationReason = strings.TrimSpace(in.Reason)
		next.UpdatedAt = s.clock.Now()

		result, err := s.save(txCtx, next, ChangeCancelled, before, actor)
		if err != nil {
			return err
		}
		cancelled = result
		return nil
	}); err != nil {
		return nil, err
	}

	return cancelled, nil
}

// OnEmployeeDismissed は退職した社員の適用中ステータスを強制終了し、予定ステータスを取り消します。
// 在籍ステータスの補完は行いません。
func (s *Service) OnEmployeeDismissed(ctx context.Context, employeeID string, dismissalDate time.Time) ([]*Record, error) {
	id, err := normalizeEmployeeID(employeeID)
	if err != nil {
		return nil, err
	}
	if dismissalDate.IsZero() {
		return nil, fmt.Errorf("dismissal_date: %w", ErrInvalidDate)
	}
	date := truncateDate(dismissalDate)

	var affected []*Record
	if err := s.withinEmployee(ctx, id, func(txCtx context.Context, _ *changeSet) error {
		open, err := s.repo.FindActiveOrPlanned(txCtx, id, "")
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, rec := range open {
			before := snapshotOf(rec)
			next := cloneRecord(rec)
			next.EarlyTerminationReason = systemReasonDismissed
			next.UpdatedAt = now

			change := ChangeCancelled
			switch rec.State {
			case StateActive:
				end := clampDismissal(rec, date)
				next.ActualEndDate = &end
				next.State = StateCompleted
				change = ChangeTerminated
			case StatePlanned:
				next.State = StateCancelled
			default:
				continue
			}

			result, err := s.save(txCtx, next, change, before, nil)
			if err != nil {
				return err
			}
			affected = append(affected, result)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"employee_id": id,
		"affected":    len(affected),
	}).Info("status: closed statuses of dismissed employee")

	return affected, nil
}

// GetStatus は ID でステータスを取得します。
func (s *Service) GetStatus(ctx context.Context, id string) (*Record, error) {
	normalized, err := normalizeStatusID(id)
	if err != nil {
		return nil, err
	}

	var result *Record
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, normalized)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// CurrentStatus は指定日の社員のステータス種別を返します。該当がなければ在籍です。
func (s *Service) CurrentStatus(ctx context.Context, employeeID string, asOf time.Time) (Type, error) {
	id, err := normalizeEmployeeID(employeeID)
	if err != nil {
		return "", err
	}
	if asOf.IsZero() {
		return "", fmt.Errorf("as_of: %w", ErrInvalidDate)
	}

	current := TypeInService
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		covering, err := s.repo.FindCoveringDate(txCtx, id, truncateDate(asOf))
		if err != nil {
			return err
		}
		if rec := pickCovering(covering); rec != nil {
			current = rec.Type
		}
		return nil
	}); err != nil {
		return "", err
	}
	return current, nil
}

// StatusHistory は [from, to] と重なるステータスを開始日順に返します。
func (s *Service) StatusHistory(ctx context.Context, employeeID string, from, to time.Time) ([]*Record, error) {
	id, err := normalizeEmployeeID(employeeID)
	if err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, ErrInvalidDate
	}
	from, to = truncateDate(from), truncateDate(to)
	if to.Before(from) {
		return nil, ErrDateRangeInvalid
	}

	var records []*Record
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.ListByEmployeeBetween(txCtx, id, from, to)
		if err != nil {
			return err
		}
		records = found
		return nil
	}); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartDate.Equal(records[j].StartDate) {
			return records[i].StartDate.Before(records[j].StartDate)
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// ListChanges はステータスの変更履歴を古い順に返します。
func (s *Service) ListChanges(ctx context.Context, statusID string) ([]*HistoryEntry, error) {
	id, err := normalizeStatusID(statusID)
	if err != nil {
		return nil, err
	}

	var entries []*HistoryEntry
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindByID(txCtx, id); err != nil {
			return err
		}
		found, err := s.history.ListByStatus(txCtx, id)
		if err != nil {
			return err
		}
		entries = found
		return nil
	}); err != nil {
		return nil, err
	}
	return entries, nil
}

// changeSet はコミット後に送出する通知を蓄積します。
type changeSet struct {
	notifications []pendingNotification
}

type pendingNotification struct {
	kind NotificationKind
	rec  *Record
}

func (c *changeSet) notify(kind NotificationKind, rec *Record) {
	c.notifications = append(c.notifications, pendingNotification{kind: kind, rec: cloneRecord(rec)})
}

// withinEmployee は社員単位の排他を取得したトランザクション内で fn を実行し、
// コミット成功後にのみ通知を送出します。
func (s *Service) withinEmployee(ctx context.Context, employeeID string, fn func(context.Context, *changeSet) error) error {
	cs := &changeSet{}
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockEmployee(txCtx, employeeID); err != nil {
			return err
		}
		return fn(txCtx, cs)
	}); err != nil {
		return err
	}

	dispatchCtx := context.WithoutCancel(ctx)
	for _, n := range cs.notifications {
		s.notifier.Notify(dispatchCtx, n.kind, n.rec)
	}
	return nil
}

// withinRecord は対象レコードの社員を排他したうえで最新のレコードを読み直して fn に渡します。
func (s *Service) withinRecord(ctx context.Context, id string, fn func(context.Context, *changeSet, *Record) error) error {
	normalized, err := normalizeStatusID(id)
	if err != nil {
		return err
	}

	existing, err := s.repo.FindByID(ctx, normalized)
	if err != nil {
		return err
	}

	return s.withinEmployee(ctx, existing.EmployeeID, func(txCtx context.Context, cs *changeSet) error {
		rec, err := s.repo.FindByID(txCtx, normalized)
		if err != nil {
			return err
		}
		return fn(txCtx, cs, rec)
	})
}

// claimWindow は候補レコードの期間と重なる在籍ステータスを退かせたうえで重複を検証します。
// 期間の後ろに在籍ステータスの残りがある場合は、検証後に後続として作り直します。
func (s *Service) claimWindow(ctx context.Context, rec *Record, today, now time.Time) error {
	existing, err := s.repo.FindActiveOrPlanned(ctx, rec.EmployeeID, rec.ID)
	if err != nil {
		return err
	}

	window := rec.Interval()
	yields := rec.Type != TypeInService && !rec.Type.IsSecondment()

	remaining := make([]*Record, 0, len(existing))
	var rest []Interval
	for _, other := range existing {
		if yields && other.Type == TypeInService && other.Interval().Intersects(window) {
			tail, err := s.yieldInService(ctx, other, window, rec.Type, today, now)
			if err != nil {
				return err
			}
			if tail != nil {
				rest = append(rest, *tail)
			}
			continue
		}
		remaining = append(remaining, other)
	}

	if err := CheckOverlap(window, rec.Type, remaining, rec.ID); err != nil {
		return err
	}
	for _, span := range rest {
		if _, err := s.insertInService(ctx, rec.EmployeeID, span.Start, span.End, today, now); err != nil {
			return err
		}
	}
	return nil
}

// yieldInService は在籍ステータスを window と重ならないように縮めます。
// window より前に始まる場合は前日で打ち切り、window の後ろに残る期間を返します。
// window が開始日を覆う場合は開始日を window の翌日へずらし、予定状態で全体が覆われる場合のみ取り消します。
// 適用中のレコードは取り消せないため、開始日をずらすと予定状態に戻る場合は重複として扱います。
func (s *Service) yieldInService(ctx context.Context, rec *Record, window Interval, by Type, today, now time.Time) (*Interval, error) {
	end := rec.EffectiveEnd()
	var after *time.Time
	if window.End != nil && (end == nil || end.After(*window.End)) {
		d := addDays(*window.End, 1)
		after = &d
	}

	before := snapshotOf(rec)
	next := cloneRecord(rec)
	next.EarlyTerminationReason = fmt.Sprintf(systemReasonSuperseded, by)
	next.UpdatedAt = now

	var tail *Interval
	switch {
	case rec.StartDate.Before(window.Start):
		cut := addDays(window.Start, -1)
		next.ActualEndDate = &cut
		next.State = DeriveState(next.StartDate, next.EndDate, next.ActualEndDate, today)
		if after != nil {
			tail = &Interval{Start: *after, End: cloneTime(end)}
		}
	case after != nil:
		next.StartDate = *after
		next.State = DeriveState(next.StartDate, next.EndDate, next.ActualEndDate, today)
		if rec.State == StateActive && next.State == StatePlanned {
			return nil, &OverlapConflictError{ConflictingID: rec.ID}
		}
	case rec.State == StatePlanned:
		next.State = StateCancelled
	default:
		return nil, &OverlapConflictError{ConflictingID: rec.ID}
	}

	if _, err := s.save(ctx, next, ChangeModified, before, nil); err != nil {
		return nil, err
	}
	return tail, nil
}

// ensureInService は from を含むレコードがなければ from 開始の在籍ステータスを作成します。
// 後続の予定ステータスがある場合はその前日までで打ち切ります。
func (s *Service) ensureInService(ctx context.Context, employeeID string, from, today, now time.Time) (*Record, error) {
	covering, err := s.repo.FindCoveringDate(ctx, employeeID, from)
	if err != nil {
		return nil, err
	}
	if len(covering) > 0 {
		return nil, nil
	}

	open, err := s.repo.FindActiveOrPlanned(ctx, employeeID, "")
	if err != nil {
		return nil, err
	}

	var until *time.Time
	for _, o := range open {
		if o.Type.IsSecondment() || !o.StartDate.After(from) {
			continue
		}
		if end := addDays(o.StartDate, -1); until == nil || end.Before(*until) {
			until = &end
		}
	}

	return s.insertInService(ctx, employeeID, from, until, today, now)
}

// insertInService は [from, until] の在籍ステータスをシステムとして作成します。
func (s *Service) insertInService(ctx context.Context, employeeID string, from time.Time, until *time.Time, today, now time.Time) (*Record, error) {
	rec := &Record{
		ID:            s.newID(),
		EmployeeID:    employeeID,
		Type:          TypeInService,
		StartDate:     from,
		ActualEndDate: cloneTime(until),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	rec.State = DeriveState(rec.StartDate, nil, rec.ActualEndDate, today)

	if err := s.rules.ValidateRecord(rec, nil); err != nil {
		return nil, err
	}
	return s.insert(ctx, rec, nil)
}

func (s *Service) insert(ctx context.Context, rec *Record, actor *string) (*Record, error) {
	created, err := s.repo.Create(ctx, rec)
	if err != nil {
		return nil, err
	}
	if err := s.appendHistory(ctx, created, ChangeCreated, nil, actor); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) save(ctx context.Context, rec *Record, change ChangeType, before *Snapshot, actor *string) (*Record, error) {
	updated, err := s.repo.Update(ctx, rec)
	if err != nil {
		return nil, err
	}
	if err := s.appendHistory(ctx, updated, change, before, actor); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) loadEmployee(ctx context.Context, id string, requireActive bool) (*Employee, error) {
	if s.employees == nil {
		return nil, nil
	}
	emp, err := s.employees.FindEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	if requireActive && !emp.Active {
		return nil, ErrEmployeeInactive
	}
	return emp, nil
}

func (s *Service) resolveDivision(ctx context.Context, t Type, raw *string) (*string, error) {
	var id *string
	if raw != nil {
		if trimmed := strings.TrimSpace(*raw); trimmed != "" {
			id = &trimmed
		}
	}

	if id == nil {
		if t.IsSecondment() {
			return nil, ErrRelatedDivisionRequired
		}
		return nil, nil
	}

	if s.divisions == nil {
		return id, nil
	}
	ok, err := s.divisions.DivisionExists(ctx, *id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDivisionNotFound
	}
	return id, nil
}

func (s *Service) today() time.Time {
	now := s.clock.Now().In(s.location)
	return Date(now.Year(), now.Month(), now.Day())
}

// pickCovering は同日に複数のレコードが該当する場合、在籍以外を優先し、開始日の新しいものを選びます。
func pickCovering(records []*Record) *Record {
	var best *Record
	for _, rec := range records {
		if rec == nil || rec.State == StateCancelled {
			continue
		}
		if best == nil {
			best = rec
			continue
		}
		recDefault := rec.Type == TypeInService
		bestDefault := best.Type == TypeInService
		switch {
		case recDefault != bestDefault:
			if !recDefault {
				best = rec
			}
		case rec.StartDate.After(best.StartDate):
			best = rec
		case rec.StartDate.Equal(best.StartDate) && rec.CreatedAt.After(best.CreatedAt):
			best = rec
		}
	}
	return best
}

func clampDismissal(rec *Record, date time.Time) time.Time {
	if date.Before(rec.StartDate) {
		return rec.StartDate
	}
	upper := rec.EffectiveEnd()
	if upper != nil && date.After(*upper) {
		return *upper
	}
	return date
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.EndDate = cloneTime(r.EndDate)
	c.ActualEndDate = cloneTime(r.ActualEndDate)
	c.RelatedDivisionID = cloneString(r.RelatedDivisionID)
	c.CreatedBy = cloneString(r.CreatedBy)
	return &c
}

func normalizeEmployeeID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("employee_id: %w", ErrInvalidID)
	}
	return trimmed, nil
}

func normalizeStatusID(raw string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("id: %w", ErrInvalidID)
	}
	return parsed.String(), nil
}

func normalizeActor(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// IsNotFound は参照先が存在しないことを示すエラーかどうかを返します。
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStatusNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrDivisionNotFound)
}

package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SweepFailure はバッチ処理で失敗した社員・レコードを表します。
type SweepFailure struct {
	EmployeeID string
	RecordID   string
	Err        error
}

// SweepResult はバッチ処理の結果です。
type SweepResult struct {
	AsOf     time.Time
	Affected []*Record
	Created  []*Record
	Failures []SweepFailure
}

// Err は失敗をまとめたエラーを返します。失敗がなければ nil です。
func (r *SweepResult) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		if f.RecordID != "" {
			errs = append(errs, fmt.Errorf("employee %s record %s: %w", f.EmployeeID, f.RecordID, f.Err))
			continue
		}
		errs = append(errs, fmt.Errorf("employee %s: %w", f.EmployeeID, f.Err))
	}
	return errors.Join(errs...)
}

type employeeSweep func(ctx context.Context, employeeID string, asOf time.Time) (employeeOutcome, error)

type employeeOutcome struct {
	affected []*Record
	created  []*Record
	skipped  []SweepFailure
}

// ApplyPlannedStatuses は開始日が asOf 以前の予定ステータスを適用中にします。
// 社員ごとに独立したトランザクションで処理し、一人の失敗は他の社員に影響しません。
func (s *Service) ApplyPlannedStatuses(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("as_of: %w", ErrInvalidDate)
	}
	asOf = truncateDate(asOf)

	due, err := s.repo.FindPlannedDueBy(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, "apply_planned", asOf, due, s.applyForEmployee)
}

// CompleteExpiredStatuses は実効終了日が asOf より前の適用中ステータスを完了にし、
// 空白となる asOf 以降に在籍ステータスを補います。
func (s *Service) CompleteExpiredStatuses(ctx context.Context, asOf time.Time) (*SweepResult, error) {
	if asOf.IsZero() {
		return nil, fmt.Errorf("as_of: %w", ErrInvalidDate)
	}
	asOf = truncateDate(asOf)

	expired, err := s.repo.FindActiveExpiredBy(ctx, asOf)
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, "complete_expired", asOf, expired, s.completeForEmployee)
}

func (s *Service) sweep(ctx context.Context, name string, asOf time.Time, candidates []*Record, fn employeeSweep) (*SweepResult, error) {
	employees := distinctEmployees(candidates)
	outcomes := make([]employeeOutcome, len(employees))
	failures := make([]error, len(employees))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, employeeID := range employees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				failures[i] = err
				return nil
			}
			outcome, err := fn(gctx, employeeID, asOf)
			if err != nil {
				failures[i] = err
				return nil
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	result := &SweepResult{AsOf: asOf}
	for i, employeeID := range employees {
		if err := failures[i]; err != nil {
			result.Failures = append(result.Failures, SweepFailure{EmployeeID: employeeID, Err: err})
			s.log.WithFields(logrus.Fields{
				"sweep":       name,
				"employee_id": employeeID,
			}).WithError(err).Error("status: sweep failed for employee")
			continue
		}
		result.Affected = append(result.Affected, outcomes[i].affected...)
		result.Created = append(result.Created, outcomes[i].created...)
		for _, skipped := range outcomes[i].skipped {
			s.log.WithFields(logrus.Fields{
				"sweep":       name,
				"employee_id": skipped.EmployeeID,
				"status_id":   skipped.RecordID,
			}).WithError(skipped.Err).Warn("status: sweep skipped record")
		}
		result.Failures = append(result.Failures, outcomes[i].skipped...)
	}

	s.log.WithFields(logrus.Fields{
		"sweep":     name,
		"as_of":     asOf.Format(dateLayout),
		"employees": len(employees),
		"affected":  len(result.Affected),
		"created":   len(result.Created),
		"failures":  len(result.Failures),
	}).Info("status: sweep finished")

	return result, nil
}

func (s *Service) applyForEmployee(ctx context.Context, employeeID string, asOf time.Time) (employeeOutcome, error) {
	var out employeeOutcome
	err := s.withinEmployee(ctx, employeeID, func(txCtx context.Context, cs *changeSet) error {
		out = employeeOutcome{}

		open, err := s.repo.FindActiveOrPlanned(txCtx, employeeID, "")
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, rec := range open {
			if rec.State != StatePlanned || rec.StartDate.After(asOf) {
				continue
			}
			if rec.Type != TypeInService && rec.EndDate == nil {
				out.skipped = append(out.skipped, SweepFailure{EmployeeID: employeeID, RecordID: rec.ID, Err: ErrMissingEndDate})
				continue
			}

			before := snapshotOf(rec)
			next := cloneRecord(rec)
			next.State = StateActive
			next.AutoApplied = true
			next.UpdatedAt = now

			result, err := s.save(txCtx, next, ChangeModified, before, nil)
			if err != nil {
				return err
			}
			out.affected = append(out.affected, result)
			cs.notify(NotifyStatusApplied, result)
		}
		return nil
	})
	return out, err
}

func (s *Service) completeForEmployee(ctx context.Context, employeeID string, asOf time.Time) (employeeOutcome, error) {
	var out employeeOutcome
	err := s.withinEmployee(ctx, employeeID, func(txCtx context.Context, cs *changeSet) error {
		out = employeeOutcome{}

		open, err := s.repo.FindActiveOrPlanned(txCtx, employeeID, "")
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, rec := range open {
			if rec.State != StateActive {
				continue
			}
			eff := rec.EffectiveEnd()
			if eff == nil || !eff.Before(asOf) {
				continue
			}

			before := snapshotOf(rec)
			next := cloneRecord(rec)
			next.State = StateCompleted
			next.UpdatedAt = now

			result, err := s.save(txCtx, next, ChangeModified, before, nil)
			if err != nil {
				return err
			}
			out.affected = append(out.affected, result)
			cs.notify(NotifyStatusCompleted, result)
		}

		if len(out.affected) == 0 {
			return nil
		}
		successor, err := s.ensureInService(txCtx, employeeID, asOf, asOf, now)
		if err != nil {
			return err
		}
		if successor != nil {
			out.created = append(out.created, successor)
		}
		return nil
	})
	return out, err
}

func distinctEmployees(records []*Record) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if _, ok := seen[rec.EmployeeID]; ok {
			continue
		}
		seen[rec.EmployeeID] = struct{}{}
		out = append(out, rec.EmployeeID)
	}
	return out
}

package status

import "time"

// DeriveState は日付から状態を導出する純粋関数です。
// 呼び出し側が State を直接設定することはありません。
func DeriveState(start time.Time, end, actualEnd *time.Time, today time.Time) State {
	today = truncateDate(today)
	if truncateDate(start).After(today) {
		return StatePlanned
	}
	if eff := effectiveEnd(end, actualEnd); eff != nil && eff.Before(today) {
		return StateCompleted
	}
	return StateActive
}

func effectiveEnd(end, actualEnd *time.Time) *time.Time {
	if actualEnd != nil {
		return actualEnd
	}
	return end
}

// truncateDate は時刻を切り捨て UTC の 0 時に正規化します。
func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date は年月日から正規化済みの日付を生成します。
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// NormalizeDate は任意の時刻を日付に正規化します。nil はそのまま返します。
func NormalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := truncateDate(*t)
	return &d
}

// DaysInclusive は start から end までの両端を含む日数を返します。
func DaysInclusive(start, end time.Time) int {
	return int(truncateDate(end).Sub(truncateDate(start)).Hours()/24) + 1
}

func addDays(t time.Time, n int) time.Time {
	return truncateDate(t).AddDate(0, 0, n)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

const dateLayout = "2006-01-02"

package status

// CheckOverlap は候補期間が既存の予定・適用中レコードと重複しないかを検証します。
// excludeID に一致するレコード（編集対象自身）は無視します。
// 最初に見つかった重複を OverlapConflictError として返します。
// どちらか一方が出向系の場合は重複を許容します。
func CheckOverlap(candidate Interval, candidateType Type, existing []*Record, excludeID string) error {
	for _, rec := range existing {
		if rec == nil || !rec.isOpen() {
			continue
		}
		if excludeID != "" && rec.ID == excludeID {
			continue
		}
		if !rec.Interval().Intersects(candidate) {
			continue
		}
		if candidateType.IsSecondment() || rec.Type.IsSecondment() {
			continue
		}
		return &OverlapConflictError{ConflictingID: rec.ID}
	}
	return nil
}

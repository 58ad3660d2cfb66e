// Package memory はプロセス内で完結するストレージドライバです。
// ローカル実行とテスト用で、プロセス終了時に内容は失われます。
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ogurasousui/staff-status-engine/internal/core/division"
	"github.com/ogurasousui/staff-status-engine/internal/core/employee"
	"github.com/ogurasousui/staff-status-engine/internal/core/status"
)

// ErrNoTransaction はトランザクション外で社員ロックを要求した場合に返却されます。
var ErrNoTransaction = errors.New("memory: no transaction in context")

// Store は全リポジトリが共有するデータ領域です。
// 書き込みは即座に反映され、ロールバック時は取り消し用の記録を逆順に適用します。
type Store struct {
	mu        sync.RWMutex
	statuses  map[string]*status.Record
	order     []string
	history   []*status.HistoryEntry
	historyID int64
	employees map[string]*employee.Employee
	divisions map[string]*division.Division

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewStore は空の Store を生成します。
func NewStore() *Store {
	return &Store{
		statuses:  make(map[string]*status.Record),
		employees: make(map[string]*employee.Employee),
		divisions: make(map[string]*division.Division),
		locks:     make(map[string]*sync.Mutex),
	}
}

type txContextKey struct{}

type txState struct {
	readOnly bool
	undo     []func()
	held     []*sync.Mutex
	heldKeys map[string]struct{}
}

func txFromContext(ctx context.Context) (*txState, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(*txState)
	return tx, ok
}

// TransactionManager は Store 上のトランザクションを制御します。
type TransactionManager struct {
	store *Store
}

// NewTransactionManager は TransactionManager を生成します。
func NewTransactionManager(store *Store) *TransactionManager {
	return &TransactionManager{store: store}
}

// WithinReadOnly は読み取り専用トランザクションで fn を実行します。
func (m *TransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	return m.within(ctx, true, fn)
}

// WithinReadWrite は読み書きトランザクションで fn を実行します。
func (m *TransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	return m.within(ctx, false, fn)
}

func (m *TransactionManager) within(ctx context.Context, readOnly bool, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("memory: transaction function is required")
	}
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx := &txState{readOnly: readOnly, heldKeys: make(map[string]struct{})}
	defer tx.release()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		m.store.rollback(tx)
		return err
	}
	return nil
}

func (tx *txState) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held = nil
}

func (s *Store) rollback(tx *txState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// lockEmployee は社員単位のロックをトランザクション終了まで保持します。
func (s *Store) lockEmployee(ctx context.Context, employeeID string) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if _, held := tx.heldKeys[employeeID]; held {
		return nil
	}

	s.locksMu.Lock()
	l, ok := s.locks[employeeID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[employeeID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	tx.held = append(tx.held, l)
	tx.heldKeys[employeeID] = struct{}{}
	return nil
}

// write は s.mu を保持した状態で呼び出され、取り消し処理をトランザクションに登録します。
func (s *Store) write(ctx context.Context, undo func()) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return nil
	}
	if tx.readOnly {
		return errors.New("memory: write in read-only transaction")
	}
	tx.undo = append(tx.undo, undo)
	return nil
}

package division

import "context"

// Repository は部署エンティティの永続化を行うインターフェースです。
type Repository interface {
	Create(ctx context.Context, division *Division) (*Division, error)
	FindByID(ctx context.Context, id string) (*Division, error)
	FindByCode(ctx context.Context, code string) (*Division, error)
}

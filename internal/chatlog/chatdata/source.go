package chatdata

import (
	"context"

	"github.com/takeaway1/wxchat/internal/model"
)

// Source 是已解密数据库的访问层，dbm.DBManager 为其 SQLite 实现
type Source interface {
	Connect(ctx context.Context, dbID string) error
	ListTables(ctx context.Context, dbID string) ([]*model.TableInfo, error)
	QueryRows(ctx context.Context, dbID, table string, limit, offset int) (*model.QueryResult, error)
	RunQuery(ctx context.Context, dbID, query string) (*model.QueryResult, error)
}

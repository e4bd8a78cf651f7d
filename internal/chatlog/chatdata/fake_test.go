package chatdata

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/takeaway1/wxchat/internal/model"
)

type fakeTable struct {
	name    string
	columns []string
	rows    []model.RawRow
}

type fakeDB struct {
	tables     []*fakeTable
	connectErr error
	listErr    error
}

type pageCall struct {
	db     string
	table  string
	limit  int
	offset int
}

// fakeSource 按脚本返回数据并记录所有调用
type fakeSource struct {
	mutex    sync.Mutex
	dbs      map[string]*fakeDB
	connects map[string]int
	calls    []pageCall
	queries  []string
	queryErr map[string]error

	onConnect func(id string)
	onQuery   func(c pageCall)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		dbs:      make(map[string]*fakeDB),
		connects: make(map[string]int),
		queryErr: make(map[string]error),
	}
}

func (f *fakeSource) add(id string, db *fakeDB) *fakeSource {
	f.dbs[id] = db
	return f
}

func (f *fakeSource) db(id string) (*fakeDB, error) {
	db, ok := f.dbs[id]
	if !ok {
		return nil, fmt.Errorf("unknown database %s", id)
	}
	return db, nil
}

func (f *fakeSource) table(id, name string) (*fakeTable, error) {
	db, err := f.db(id)
	if err != nil {
		return nil, err
	}
	for _, t := range db.tables {
		if t.name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no such table: %s", name)
}

func (f *fakeSource) Connect(ctx context.Context, id string) error {
	if f.onConnect != nil {
		f.onConnect(id)
	}
	f.mutex.Lock()
	f.connects[id]++
	f.mutex.Unlock()
	db, err := f.db(id)
	if err != nil {
		return err
	}
	return db.connectErr
}

func (f *fakeSource) ListTables(ctx context.Context, id string) ([]*model.TableInfo, error) {
	db, err := f.db(id)
	if err != nil {
		return nil, err
	}
	if db.listErr != nil {
		return nil, db.listErr
	}
	out := make([]*model.TableInfo, 0, len(db.tables))
	for _, t := range db.tables {
		out = append(out, &model.TableInfo{Name: t.name, Columns: t.columns})
	}
	return out, nil
}

func (f *fakeSource) QueryRows(ctx context.Context, id, table string, limit, offset int) (*model.QueryResult, error) {
	c := pageCall{db: id, table: table, limit: limit, offset: offset}
	f.mutex.Lock()
	f.calls = append(f.calls, c)
	f.mutex.Unlock()
	if f.onQuery != nil {
		f.onQuery(c)
	}
	f.mutex.Lock()
	err := f.queryErr[table]
	f.mutex.Unlock()
	if err != nil {
		return nil, err
	}
	t, err := f.table(id, table)
	if err != nil {
		return nil, err
	}
	end := len(t.rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	rows := []model.RawRow{}
	if offset < end {
		rows = t.rows[offset:end]
	}
	return &model.QueryResult{Columns: t.columns, Rows: rows, TotalRows: len(t.rows)}, nil
}

var (
	fromRe  = regexp.MustCompile(`FROM "((?:[^"]|"")+)"`)
	limitRe = regexp.MustCompile(`LIMIT (\d+)`)
)

// RunQuery 只理解 activityQuery 生成的语句（返回表的最后 n 行）和 Name2Id 查询
func (f *fakeSource) RunQuery(ctx context.Context, id, query string) (*model.QueryResult, error) {
	f.mutex.Lock()
	f.queries = append(f.queries, query)
	f.mutex.Unlock()
	m := fromRe.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	t, err := f.table(id, strings.ReplaceAll(m[1], `""`, `"`))
	if err != nil {
		return nil, err
	}
	// SELECT rowid, col FROM t：rowid 为行号，从 1 开始
	if strings.HasPrefix(query, "SELECT rowid") {
		rows := make([]model.RawRow, 0, len(t.rows))
		for i, row := range t.rows {
			rows = append(rows, model.RawRow{int64(i + 1), row[0]})
		}
		return &model.QueryResult{Columns: []string{"rowid", t.columns[0]}, Rows: rows, TotalRows: len(rows)}, nil
	}
	n := len(t.rows)
	if lm := limitRe.FindStringSubmatch(query); lm != nil {
		if v, _ := strconv.Atoi(lm[1]); v < n {
			n = v
		}
	}
	rows := make([]model.RawRow, 0, n)
	for i := len(t.rows) - 1; i >= len(t.rows)-n; i-- {
		rows = append(rows, t.rows[i])
	}
	return &model.QueryResult{Columns: t.columns, Rows: rows, TotalRows: len(rows)}, nil
}

func (f *fakeSource) pageCalls(table string, limit int) []pageCall {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	out := make([]pageCall, 0)
	for _, c := range f.calls {
		if c.table == table && c.limit == limit {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSource) connectCount(id string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.connects[id]
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

var v3Columns = []string{"msgSvrId", "talker", "createTime", "content"}

// v3Table 生成 n 行 talker 为 sender 的消息，时间从 base 起每行 step 秒
func v3Table(name, sender string, n int, base, step int64, tag string) *fakeTable {
	t := &fakeTable{name: name, columns: v3Columns, rows: make([]model.RawRow, 0, n)}
	for i := 0; i < n; i++ {
		t.rows = append(t.rows, model.RawRow{
			fmt.Sprintf("%s-%d", tag, i),
			sender,
			base + int64(i)*step,
			fmt.Sprintf("%s message %d", tag, i),
		})
	}
	return t
}

var v4Columns = []string{"local_id", "server_id", "local_type", "real_sender_id", "create_time", "message_content"}

func v4Table(name string, n int, base int64, tag string) *fakeTable {
	t := &fakeTable{name: name, columns: v4Columns, rows: make([]model.RawRow, 0, n)}
	for i := 0; i < n; i++ {
		t.rows = append(t.rows, model.RawRow{
			int64(i + 1),
			fmt.Sprintf("%s-%d", tag, i),
			int64(1),
			int64(7),
			base + int64(i),
			fmt.Sprintf("%s v4 message %d", tag, i),
		})
	}
	return t
}

// name2id 第 i 个名字的 rowid 为 i+1
func name2id(names ...string) *fakeTable {
	t := &fakeTable{name: "Name2Id", columns: []string{"user_name"}}
	for _, n := range names {
		t.rows = append(t.rows, model.RawRow{n})
	}
	return t
}

func zhang() *model.Contact {
	return &model.Contact{
		ID:          "wxid_zhang",
		UserName:    "wxid_zhang",
		DisplayName: "张三",
		RawIDs:      map[string]string{"username": "wxid_zhang"},
	}
}

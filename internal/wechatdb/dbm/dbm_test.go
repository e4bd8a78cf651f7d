package dbm

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takeaway1/wxchat/internal/errors"
)

func createDB(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
}

func newTestManager(t *testing.T) (*DBManager, string) {
	t.Helper()
	dir := t.TempDir()
	createDB(t, filepath.Join(dir, "contact.db"),
		`CREATE TABLE contact (username TEXT, remark TEXT, nick_name TEXT)`,
		`INSERT INTO contact VALUES ('wxid_a', '张三', 'zs'), ('wxid_b', '', '李四')`,
	)
	createDB(t, filepath.Join(dir, "message_0.db"),
		`CREATE TABLE "Msg_abc" (local_id INTEGER, real_sender_id TEXT, create_time INTEGER, message_content BLOB)`,
		`INSERT INTO "Msg_abc" VALUES (1, 'wxid_a', 1700000000, 'hi'), (2, 'me', 1700000001, 'yo'), (3, 'wxid_a', 1700000002, x'00ff')`,
		`CREATE TABLE Name2Id (user_name TEXT)`,
	)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	d := NewDBManager(dir)
	t.Cleanup(func() { d.Close() })
	return d, dir
}

func TestScan(t *testing.T) {
	d, _ := newTestManager(t)
	ids, err := d.Scan()
	require.NoError(t, err)
	assert.Equal(t, []string{"contact", "message_0"}, ids)
}

func TestScanEmptyPath(t *testing.T) {
	_, err := NewDBManager("").Scan()
	assert.Error(t, err)
}

func TestConnectIdempotent(t *testing.T) {
	d, _ := newTestManager(t)
	_, err := d.Scan()
	require.NoError(t, err)
	ctx := context.Background()

	db1, err := d.OpenDB(ctx, "contact")
	require.NoError(t, err)
	require.NoError(t, d.Connect(ctx, "contact"))
	db2, err := d.OpenDB(ctx, "contact")
	require.NoError(t, err)
	assert.Same(t, db1, db2)
}

func TestConnectFailures(t *testing.T) {
	d, dir := newTestManager(t)
	ctx := context.Background()

	err := d.Connect(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, 404, errors.Code(err))

	bad := filepath.Join(dir, "broken.db")
	require.NoError(t, os.WriteFile(bad, bytes.Repeat([]byte("garbage!"), 1024), 0o644))
	d.Register("broken", bad)
	assert.Error(t, d.Connect(ctx, "broken"))
}

func TestListTables(t *testing.T) {
	d, _ := newTestManager(t)
	_, err := d.Scan()
	require.NoError(t, err)

	tables, err := d.ListTables(context.Background(), "message_0")
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Msg_abc", tables[0].Name)
	assert.Equal(t, []string{"local_id", "real_sender_id", "create_time", "message_content"}, tables[0].Columns)
	assert.Equal(t, "Name2Id", tables[1].Name)
}

func TestQueryRowsPaging(t *testing.T) {
	d, _ := newTestManager(t)
	_, err := d.Scan()
	require.NoError(t, err)
	ctx := context.Background()

	page, err := d.QueryRows(ctx, "message_0", "Msg_abc", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, 3, page.TotalRows)
	assert.Equal(t, int64(1), page.Rows[0][0])
	assert.Equal(t, "wxid_a", page.Rows[0][1])

	page, err = d.QueryRows(ctx, "message_0", "Msg_abc", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, []byte{0x00, 0xff}, page.Rows[0][3])

	all, err := d.QueryRows(ctx, "message_0", "Msg_abc", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all.Rows, 3)

	_, err = d.QueryRows(ctx, "message_0", "nope", 10, 0)
	assert.Error(t, err)
}

func TestQueryRowsStableOrder(t *testing.T) {
	dir := t.TempDir()
	// 覆盖索引会让不带 ORDER BY 的 SELECT * 按索引顺序返回
	createDB(t, filepath.Join(dir, "message_0.db"),
		`CREATE TABLE chat_x (talker TEXT, create_time INTEGER)`,
		`CREATE INDEX idx_time ON chat_x (create_time DESC, talker)`,
		`INSERT INTO chat_x VALUES ('a', 1), ('b', 2), ('c', 3), ('d', 4)`,
		`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT) WITHOUT ROWID`,
		`INSERT INTO kv VALUES ('b', '2'), ('a', '1'), ('c', '3')`,
	)
	d := NewDBManager(dir)
	t.Cleanup(func() { d.Close() })
	_, err := d.Scan()
	require.NoError(t, err)
	ctx := context.Background()

	got := make([]any, 0, 4)
	for offset := 0; offset < 4; offset += 2 {
		page, err := d.QueryRows(ctx, "message_0", "chat_x", 2, offset)
		require.NoError(t, err)
		for _, row := range page.Rows {
			got = append(got, row[0])
		}
	}
	assert.Equal(t, []any{"a", "b", "c", "d"}, got)

	page, err := d.QueryRows(ctx, "message_0", "kv", 2, 0)
	require.NoError(t, err)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, 3, page.TotalRows)
	page, err = d.QueryRows(ctx, "message_0", "kv", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 1)
}

func TestRunQuery(t *testing.T) {
	d, _ := newTestManager(t)
	_, err := d.Scan()
	require.NoError(t, err)
	ctx := context.Background()

	result, err := d.RunQuery(ctx, "message_0", `SELECT real_sender_id, max(create_time) AS ts FROM "Msg_abc" GROUP BY real_sender_id ORDER BY ts DESC`)
	require.NoError(t, err)
	assert.Equal(t, []string{"real_sender_id", "ts"}, result.Columns)
	assert.Equal(t, 2, result.TotalRows)
	assert.Equal(t, "wxid_a", result.Rows[0][0])

	_, err = d.RunQuery(ctx, "message_0", `DELETE FROM "Msg_abc"`)
	assert.Error(t, err)
	_, err = d.RunQuery(ctx, "message_0", `SELECT 1; DROP TABLE "Msg_abc"`)
	assert.Error(t, err)
}

func TestIsReadOnly(t *testing.T) {
	assert.True(t, IsReadOnly("select 1"))
	assert.True(t, IsReadOnly("  WITH x AS (SELECT 1) SELECT * FROM x;"))
	assert.True(t, IsReadOnly("PRAGMA table_info(foo)"))
	assert.False(t, IsReadOnly("update t set a = 1"))
	assert.False(t, IsReadOnly("select 1; select 2"))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"Msg_abc"`, QuoteIdent("Msg_abc"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

func TestCallbackDropsStaleConnection(t *testing.T) {
	delay := StaleCloseDelay
	StaleCloseDelay = 0
	t.Cleanup(func() { StaleCloseDelay = delay })
	d, dir := newTestManager(t)
	_, err := d.Scan()
	require.NoError(t, err)
	ctx := context.Background()

	db1, err := d.OpenDB(ctx, "message_0")
	require.NoError(t, err)
	_, err = d.QueryRows(ctx, "message_0", "Msg_abc", 1, 0)
	require.NoError(t, err)

	var events []fsnotify.Event
	d.AddCallback(func(event fsnotify.Event) error {
		events = append(events, event)
		return nil
	})

	path := filepath.Join(dir, "message_0.db")
	require.NoError(t, d.Callback(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	require.Len(t, events, 1)

	db2, err := d.OpenDB(ctx, "message_0")
	require.NoError(t, err)
	assert.NotSame(t, db1, db2)

	// 非数据库文件与写事件都被忽略
	require.NoError(t, d.Callback(fsnotify.Event{Name: filepath.Join(dir, "a.txt"), Op: fsnotify.Create}))
	require.NoError(t, d.Callback(fsnotify.Event{Name: path, Op: fsnotify.Write}))
	assert.Len(t, events, 1)
}

func TestCallbackRegistersNewFile(t *testing.T) {
	d, dir := newTestManager(t)
	_, err := d.Scan()
	require.NoError(t, err)

	path := filepath.Join(dir, "message_1.db")
	createDB(t, path, `CREATE TABLE Msg_x (real_sender_id TEXT)`)
	require.NoError(t, d.Callback(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	assert.Equal(t, []string{"contact", "message_0", "message_1"}, d.IDs())
}

func TestSnapshot(t *testing.T) {
	delay := StaleCloseDelay
	StaleCloseDelay = 0
	t.Cleanup(func() { StaleCloseDelay = delay })
	d, dir := newTestManager(t)
	snapDir := t.TempDir()
	require.NoError(t, d.EnableSnapshot(snapDir))
	_, err := d.Scan()
	require.NoError(t, err)
	ctx := context.Background()

	result, err := d.QueryRows(ctx, "message_0", "Msg_abc", 0, 0)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 3)

	copies, err := filepath.Glob(filepath.Join(snapDir, "message_0_+*.db"))
	require.NoError(t, err)
	require.Len(t, copies, 1)

	// 源文件被替换：旧副本在旧连接关闭后删除，重新打开得到新副本
	path := filepath.Join(dir, "message_0.db")
	require.NoError(t, d.Callback(fsnotify.Event{Name: path, Op: fsnotify.Create}))
	_, err = d.QueryRows(ctx, "message_0", "Msg_abc", 1, 0)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, err := os.Stat(copies[0])
		return os.IsNotExist(err)
	}, time.Second, 10*time.Millisecond)

	after, err := filepath.Glob(filepath.Join(snapDir, "message_0_+*.db"))
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.NotEqual(t, copies[0], after[0])

	require.NoError(t, d.Close())
	left, err := filepath.Glob(filepath.Join(snapDir, "*.db"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

package mcp

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takeaway1/wxchat/internal/chatlog/conf"
	"github.com/takeaway1/wxchat/internal/chatlog/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	exec := func(path string, stmts ...string) {
		db, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		defer db.Close()
		for _, s := range stmts {
			_, err := db.Exec(s)
			require.NoError(t, err, s)
		}
	}
	sum := md5.Sum([]byte("wxid_zhang"))
	table := "Msg_" + hex.EncodeToString(sum[:])
	exec(filepath.Join(dir, "contact.db"),
		`CREATE TABLE contact (username TEXT, remark TEXT, nick_name TEXT)`,
		`INSERT INTO contact VALUES ('wxid_zhang', '张三', 'zhang')`,
	)
	exec(filepath.Join(dir, "message_0.db"),
		`CREATE TABLE "`+table+`" (local_id INTEGER, real_sender_id INTEGER, create_time INTEGER, message_content TEXT)`,
		`INSERT INTO "`+table+`" VALUES (1, 2, 1700000000, '你好'), (2, 1, 1700000060, '在吗')`,
	)

	db := database.NewService(&conf.Config{
		DataDir: dir, ContactDB: "contact", SelfID: "1",
		BatchSize: 100, MessageCap: 100, ValidateSample: 5, ActivitySample: 100, Workers: 1,
	})
	require.NoError(t, db.Start())
	t.Cleanup(func() { db.Stop() })
	return NewService(db)
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleContacts(t *testing.T) {
	s := newTestService(t)
	result, err := s.handleContacts(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, text(t, result), "张三 (wxid_zhang)")
}

func TestHandleMessages(t *testing.T) {
	s := newTestService(t)
	result, err := s.handleMessages(context.Background(), call(map[string]any{"contact": "张三"}))
	require.NoError(t, err)
	out := text(t, result)
	assert.Contains(t, out, "共 2 条")
	assert.Contains(t, out, "张三: 你好")
	assert.Contains(t, out, "我: 在吗")

	result, err = s.handleMessages(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleMessages(context.Background(), call(map[string]any{"contact": "nobody"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDiagnoseAndTables(t *testing.T) {
	s := newTestService(t)
	result, err := s.handleDiagnose(context.Background(), call(map[string]any{"contact": "wxid_zhang"}))
	require.NoError(t, err)
	out := text(t, result)
	assert.Contains(t, out, "database: message_0")
	assert.Contains(t, out, "matches: Msg_")

	result, err = s.handleTables(context.Background(), call(map[string]any{"database": "message_0"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), "Msg_")
}

package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/takeaway1/wxchat/internal/chatlog/database"
	"github.com/takeaway1/wxchat/internal/model"
)

const (
	Name    = "wxchat"
	Version = "0.1.0"
)

const timeLayout = "2006-01-02 15:04:05"

// Service 把联系人与消息查询以 MCP 工具的形式提供
type Service struct {
	db     *database.Service
	server *server.MCPServer
}

func NewService(db *database.Service) *Service {
	s := &Service{
		db:     db,
		server: server.NewMCPServer(Name, Version, server.WithToolCapabilities(false), server.WithRecovery()),
	}
	s.server.AddTool(ContactsTool, s.handleContacts)
	s.server.AddTool(MessagesTool, s.handleMessages)
	s.server.AddTool(DiagnoseTool, s.handleDiagnose)
	s.server.AddTool(TablesTool, s.handleTables)
	return s
}

func (s *Service) MCPServer() *server.MCPServer {
	return s.server
}

func (s *Service) ServeStdio() error {
	log.Debug().Msg("serving MCP over stdio")
	return server.ServeStdio(s.server)
}

var ContactsTool = mcp.NewTool("list_contacts",
	mcp.WithDescription("列出联系人，最近有消息的排在前面。可按关键词过滤 id、用户名、备注或昵称。"),
	mcp.WithString("keyword", mcp.Description("过滤关键词，可为空")),
	mcp.WithNumber("limit", mcp.Description("返回数量，默认 50")),
	mcp.WithNumber("offset", mcp.Description("偏移量")),
)

var MessagesTool = mcp.NewTool("get_messages",
	mcp.WithDescription("读取与某个联系人的聊天记录，按时间升序。"),
	mcp.WithString("contact", mcp.Required(), mcp.Description("联系人 id、用户名、备注或显示名")),
	mcp.WithNumber("limit", mcp.Description("返回数量，默认 100")),
	mcp.WithNumber("offset", mcp.Description("偏移量")),
)

var DiagnoseTool = mcp.NewTool("diagnose_chat_mapping",
	mcp.WithDescription("诊断联系人到聊天表的映射：给出标识、候选表名和各库中实际命中的表。"),
	mcp.WithString("contact", mcp.Required(), mcp.Description("联系人 id、用户名、备注或显示名")),
)

var TablesTool = mcp.NewTool("list_chat_tables",
	mcp.WithDescription("列出某个数据库中通过结构校验的聊天表。"),
	mcp.WithString("database", mcp.Required(), mcp.Description("数据库 id，即不带扩展名的文件名")),
)

func (s *Service) handleContacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keyword := request.GetString("keyword", "")
	limit := request.GetInt("limit", 50)
	offset := request.GetInt("offset", 0)

	resp, err := s.db.GetContacts(ctx, keyword, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "共 %d 个联系人\n", resp.Total)
	for _, c := range resp.Items {
		fmt.Fprintf(b, "%s (%s) [%s]", c.DisplayName, c.ID, c.ContactType)
		if c.LastActiveTime != nil {
			fmt.Fprintf(b, " 最近活跃 %s", c.LastActiveTime.Local().Format(timeLayout))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Service) handleMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("contact")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", 100)
	offset := request.GetInt("offset", 0)

	resp, err := s.db.GetMessages(ctx, key, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "与 %s 的聊天记录，共 %d 条\n", resp.Contact.DisplayName, resp.Total)
	for _, m := range resp.Items {
		b.WriteString(formatMessage(m))
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Service) handleDiagnose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := request.RequireString("contact")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.db.Diagnose(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := &strings.Builder{}
	for _, d := range list {
		fmt.Fprintf(b, "database: %s\n", d.Database)
		fmt.Fprintf(b, "identifiers: %s\n", strings.Join(d.Identifiers, ", "))
		fmt.Fprintf(b, "candidates: %d\n", len(d.Candidates))
		if len(d.Matches) == 0 {
			b.WriteString("matches: (none)\n")
		} else {
			fmt.Fprintf(b, "matches: %s\n", strings.Join(d.Matches, ", "))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Service) handleTables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	db, err := request.RequireString("database")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tables, err := s.db.ChatTables(ctx, db, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := &strings.Builder{}
	for _, t := range tables {
		fmt.Fprintf(b, "%s (%s)\n", t.Name, strings.Join(t.Columns, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatMessage(m *model.Message) string {
	ts := m.Time.Local().Format(timeLayout)
	if m.TimestampApprox {
		ts = "~" + ts
	}
	return fmt.Sprintf("%s %s: %s", ts, m.SenderDisplayName, m.Content)
}


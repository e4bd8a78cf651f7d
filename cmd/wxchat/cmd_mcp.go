package wxchat

import (
	"github.com/spf13/cobra"

	"github.com/takeaway1/wxchat/internal/chatlog/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd, true)
		if err != nil {
			return err
		}
		defer db.Stop()
		return mcp.NewService(db).ServeStdio()
	},
}

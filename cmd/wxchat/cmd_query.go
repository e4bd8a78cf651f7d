package wxchat

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/takeaway1/wxchat/internal/wechatdb/parser"
)

var queryJSON bool

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "json output")
}

var queryCmd = &cobra.Command{
	Use:   "query <db> <sql>",
	Short: "Run a read-only SQL statement against a database",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd, false)
		if err != nil {
			return err
		}
		defer db.Stop()

		result, err := db.Query(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if queryJSON {
			return printJSON(result)
		}
		fmt.Println(strings.Join(result.Columns, "\t"))
		for _, row := range result.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i], _ = parser.Text(v)
			}
			fmt.Println(strings.Join(cells, "\t"))
		}
		fmt.Printf("(%d rows)\n", result.TotalRows)
		return nil
	},
}

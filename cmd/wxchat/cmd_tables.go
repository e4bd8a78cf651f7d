package wxchat

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var tablesAll bool

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.Flags().BoolVar(&tablesAll, "all", false, "include tables that fail structural validation")
}

var tablesCmd = &cobra.Command{
	Use:   "tables [db]",
	Short: "List databases, or the chat tables of one database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd, false)
		if err != nil {
			return err
		}
		defer db.Stop()

		if len(args) == 0 {
			messageDBs := make(map[string]bool)
			for _, id := range db.MessageDBs() {
				messageDBs[id] = true
			}
			for _, id := range db.Databases() {
				mark := ""
				if messageDBs[id] {
					mark = " (message)"
				}
				fmt.Println(id + mark)
			}
			return nil
		}

		tables, err := db.ChatTables(cmd.Context(), args[0], !tablesAll)
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Printf("%s\t%s\n", t.Name, strings.Join(t.Columns, ","))
		}
		return nil
	},
}

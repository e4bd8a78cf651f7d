package wxchat

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	contactsKeyword string
	contactsLimit   int
	contactsOffset  int
	contactsJSON    bool
)

func init() {
	rootCmd.AddCommand(contactsCmd)
	contactsCmd.Flags().StringVarP(&contactsKeyword, "keyword", "k", "", "filter by id, username, remark or nickname")
	contactsCmd.Flags().IntVarP(&contactsLimit, "limit", "n", 0, "max contacts")
	contactsCmd.Flags().IntVar(&contactsOffset, "offset", 0, "offset")
	contactsCmd.Flags().BoolVar(&contactsJSON, "json", false, "json output")
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts, recently active first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd, false)
		if err != nil {
			return err
		}
		defer db.Stop()

		resp, err := db.GetContacts(cmd.Context(), contactsKeyword, contactsLimit, contactsOffset)
		if err != nil {
			return err
		}
		if contactsJSON {
			return printJSON(resp)
		}
		for _, c := range resp.Items {
			active := "-"
			if c.LastActiveTime != nil {
				active = c.LastActiveTime.Local().Format(time.DateTime)
			}
			fmt.Printf("%-24s %-20s %-8s %s\n", c.ID, c.DisplayName, c.ContactType, active)
		}
		fmt.Printf("total: %d\n", resp.Total)
		return nil
	},
}

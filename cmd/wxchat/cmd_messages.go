package wxchat

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/takeaway1/wxchat/internal/chatlog/http"
)

var (
	messagesLimit  int
	messagesOffset int
	messagesJSON   bool
)

func init() {
	rootCmd.AddCommand(messagesCmd)
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", 0, "max messages")
	messagesCmd.Flags().IntVar(&messagesOffset, "offset", 0, "offset")
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "json output")
}

var messagesCmd = &cobra.Command{
	Use:   "messages <contact>",
	Short: "Print the chat history with a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd, false)
		if err != nil {
			return err
		}
		defer db.Stop()

		resp, err := db.GetMessages(cmd.Context(), args[0], messagesLimit, messagesOffset)
		if err != nil {
			return err
		}
		if messagesJSON {
			return printJSON(resp)
		}
		for _, m := range resp.Items {
			fmt.Println(http.FormatMessage(m))
		}
		fmt.Printf("total: %d\n", resp.Total)
		return nil
	},
}

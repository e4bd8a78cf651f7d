package wxchat

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var diagnoseCandidates bool

func init() {
	rootCmd.AddCommand(diagnoseCmd)
	diagnoseCmd.Flags().BoolVar(&diagnoseCandidates, "candidates", false, "print every candidate table name")
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose <contact>",
	Short: "Show how a contact maps to chat tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openDatabase(cmd, false)
		if err != nil {
			return err
		}
		defer db.Stop()

		list, err := db.Diagnose(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, d := range list {
			fmt.Printf("[%s]\n", d.Database)
			fmt.Printf("  identifiers: %s\n", strings.Join(d.Identifiers, ", "))
			fmt.Printf("  candidates:  %d\n", len(d.Candidates))
			if diagnoseCandidates {
				for _, c := range d.Candidates {
					fmt.Printf("    %s\n", c)
				}
			}
			if len(d.Matches) == 0 {
				fmt.Println("  matches:     (none)")
				continue
			}
			fmt.Printf("  matches:     %s\n", strings.Join(d.Matches, ", "))
		}
		return nil
	},
}

package wxchat

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/takeaway1/wxchat/internal/chatlog/conf"
	"github.com/takeaway1/wxchat/internal/chatlog/database"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:              "wxchat",
	Short:            "Resolve WeChat contacts to their chat tables and read messages from decrypted databases",
	PersistentPreRun: initLog,
	SilenceUsage:     true,
	SilenceErrors:    true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&Debug, "debug", false, "debug log")
	flags.StringVarP(&configPath, "config", "c", "", "config file (default ./wxchat.yaml)")
	flags.StringP("data-dir", "d", "", "directory of decrypted databases")
	flags.String("contact-db", "", "contact database id")
	flags.StringSlice("message-dbs", nil, "message database ids, auto detected when empty")
	flags.String("self-id", "", "identifier of the logged-in account")
	flags.Int("batch-size", 0, "rows per page query")
	flags.Int("message-cap", 0, "max messages per contact")
	flags.Int("workers", 0, "message databases loaded concurrently")
	flags.Bool("snapshot", false, "copy database files before opening them")
	flags.String("snapshot-dir", "", "directory for database copies (default a temp dir)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*conf.Config, error) {
	cfg, err := conf.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDatabase 一次性命令不监听文件变化
func openDatabase(cmd *cobra.Command, watch bool) (*database.Service, *conf.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg.Watch = cfg.Watch && watch
	db := database.NewService(cfg)
	if err := db.Start(); err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

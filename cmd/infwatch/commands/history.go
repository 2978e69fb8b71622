package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"infwatch/lib/configutil"
	"infwatch/lib/serviceutil"
	"infwatch/services/infreport"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyLimit *int

func init() {
	historyLimit = historyCmd.Flags().Int("limit", 10, "Maximum number of runs to show, newest last.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--limit <n>]",
	Short: "Prints recent run-log entries.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		cfg.applyDefaults()

		log := infreport.NewRunLog(filepath.Join(cfg.OutputDir, "inf_items.jsonl"))
		entries, err := log.ReadEntries()
		if err != nil {
			serviceutil.Fatal("failed to read run log", err)
		}
		if len(entries) > *historyLimit {
			entries = entries[len(entries)-*historyLimit:]
		}
		if len(entries) == 0 {
			fmt.Println("no runs logged yet")
			return
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Timestamp", "Store", "Items", "Top SKU", "INF Units"})

		for _, entry := range entries {
			topSku, topUnits := "", ""
			if len(entry.Items) > 0 {
				topSku = entry.Items[0].SKU
				topUnits = entry.Items[0].InfUnits
			}
			t.AppendRow(table.Row{entry.Timestamp, entry.Store, len(entry.Items), topSku, topUnits})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

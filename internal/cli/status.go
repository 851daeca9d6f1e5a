package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/javanstorm/capledger/internal/structs"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger capacity",
	Long:  `Display total, available and used capacity per resource, plus pool and VM counts.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	vms, err := l.VMs()
	if err != nil {
		return fmt.Errorf("list VMs: %w", err)
	}
	res := l.Resources()
	pools := l.Pools()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, formatKV([]string{
		"Data Dir|" + cfg.DataDir,
		"Backend|" + cfg.StoreBackend,
		fmt.Sprintf("Pools|%d", len(pools)),
		fmt.Sprintf("VMs|%d", len(vms)),
	}))
	fmt.Fprintln(out)

	rows := []string{"Resource|Total|Available|Used|Utilization"}
	for _, k := range structs.Kinds {
		c := res[k]
		used := c.Total - c.Available
		rows = append(rows, fmt.Sprintf("%s|%s|%s|%s|%s",
			k,
			humanize.Comma(c.Total),
			humanize.Comma(c.Available),
			humanize.Comma(used),
			utilization(used, c.Total)))
	}
	fmt.Fprintln(out, formatList(rows))

	if err := l.Audit(); err != nil {
		return fmt.Errorf("ledger audit failed: %w", err)
	}
	return nil
}

func utilization(used, total int64) string {
	if total == 0 {
		return "-"
	}
	return humanize.FormatFloat("#.#", float64(used)*100/float64(total)) + "%"
}

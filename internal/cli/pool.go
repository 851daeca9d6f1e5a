package cli

import (
	"fmt"
	"strconv"

	"github.com/javanstorm/capledger/internal/api"
	"github.com/spf13/cobra"
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage resource pools",
	Long:  `Create, delete, list and move capacity between named cpu/memory pools.`,
}

var poolCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a pool",
	Long:  `Create a pool, debiting its cpu and memory from the global pool.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolCreate,
}

var poolDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a pool",
	Long:  `Delete a pool and return its current holdings to the global pool.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPoolDelete,
}

var poolListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pools",
	Args:  cobra.NoArgs,
	RunE:  runPoolList,
}

var poolTransferCmd = &cobra.Command{
	Use:   "transfer <source> <target>",
	Short: "Move capacity between pools",
	Long: `Move cpu and memory from one pool to another. The global pool is not
touched.`,
	Args: cobra.ExactArgs(2),
	RunE: runPoolTransfer,
}

// Flags shared by pool create and pool transfer
var (
	poolCPU    int64
	poolMemory int64
)

func init() {
	for _, c := range []*cobra.Command{poolCreateCmd, poolTransferCmd} {
		c.Flags().Int64VarP(&poolCPU, "cpu", "c", 0, "CPU units")
		c.Flags().Int64VarP(&poolMemory, "memory", "m", 0, "Memory units")
	}

	// Add subcommands
	poolCmd.AddCommand(poolCreateCmd)
	poolCmd.AddCommand(poolDeleteCmd)
	poolCmd.AddCommand(poolListCmd)
	poolCmd.AddCommand(poolTransferCmd)

	// Register pool command
	rootCmd.AddCommand(poolCmd)
}

func runPoolCreate(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	svc := api.NewService(l, logger)
	return report(cmd.OutOrStdout(), svc.CreatePool(args[0],
		strconv.FormatInt(poolCPU, 10),
		strconv.FormatInt(poolMemory, 10),
	))
}

func runPoolDelete(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	return report(cmd.OutOrStdout(), api.NewService(l, logger).DeletePool(args[0]))
}

func runPoolTransfer(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	svc := api.NewService(l, logger)
	return report(cmd.OutOrStdout(), svc.AdjustResources(args[0], args[1],
		strconv.FormatInt(poolCPU, 10),
		strconv.FormatInt(poolMemory, 10),
	))
}

func runPoolList(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	pools := l.Pools()
	out := cmd.OutOrStdout()
	if len(pools) == 0 {
		fmt.Fprintln(out, "No pools.")
		return nil
	}

	rows := []string{"Name|CPU|Memory"}
	for _, name := range pools.Names() {
		p := pools[name]
		rows = append(rows, fmt.Sprintf("%s|%d|%d", name, p.CPU, p.Memory))
	}
	fmt.Fprintln(out, formatList(rows))
	return nil
}

package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/javanstorm/capledger/internal/api"
	"github.com/javanstorm/capledger/internal/structs"
	"github.com/spf13/cobra"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage VM grants",
	Long:  `Create, destroy and inspect VMs holding capacity from the global pool.`,
}

var vmCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a VM",
	Long:  `Create a VM, debiting cpu, memory and storage from the global pool.`,
	Args:  cobra.NoArgs,
	RunE:  runVMCreate,
}

var vmDestroyCmd = &cobra.Command{
	Use:   "destroy <id>",
	Short: "Destroy a VM",
	Long:  `Destroy a VM and return its grant to the global pool.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runVMDestroy,
}

var vmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all VMs",
	Args:  cobra.NoArgs,
	RunE:  runVMList,
}

var vmShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show VM details",
	Args:  cobra.ExactArgs(1),
	RunE:  runVMShow,
}

// Flags for vm create
var (
	vmCreateCPU     int64
	vmCreateMemory  int64
	vmCreateStorage int64
)

func init() {
	vmCreateCmd.Flags().Int64VarP(&vmCreateCPU, "cpu", "c", 0, "CPU units to grant")
	vmCreateCmd.Flags().Int64VarP(&vmCreateMemory, "memory", "m", 0, "Memory units to grant")
	vmCreateCmd.Flags().Int64VarP(&vmCreateStorage, "storage", "s", 0, "Storage units to grant")

	// Add subcommands
	vmCmd.AddCommand(vmCreateCmd)
	vmCmd.AddCommand(vmDestroyCmd)
	vmCmd.AddCommand(vmListCmd)
	vmCmd.AddCommand(vmShowCmd)

	// Register vm command
	rootCmd.AddCommand(vmCmd)
}

func runVMCreate(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	svc := api.NewService(l, logger)
	return report(cmd.OutOrStdout(), svc.CreateVM(
		strconv.FormatInt(vmCreateCPU, 10),
		strconv.FormatInt(vmCreateMemory, 10),
		strconv.FormatInt(vmCreateStorage, 10),
	))
}

func runVMDestroy(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	return report(cmd.OutOrStdout(), api.NewService(l, logger).DestroyVM(args[0]))
}

func runVMList(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	vms, err := l.VMs()
	if err != nil {
		return fmt.Errorf("list VMs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(vms) == 0 {
		fmt.Fprintln(out, "No VMs.")
		return nil
	}

	rows := []string{"ID|CPU|Memory|Storage|Created"}
	for _, v := range vms {
		rows = append(rows, fmt.Sprintf("%s|%d|%d|%d|%s",
			v.ID, v.CPU, v.Memory, v.Storage, humanize.Time(v.CreatedAt)))
	}
	fmt.Fprintln(out, formatList(rows))
	return nil
}

func runVMShow(cmd *cobra.Command, args []string) error {
	l, err := openLedger()
	if err != nil {
		return err
	}
	defer l.Close()

	resp := api.NewService(l, logger).VM(args[0])
	if !resp.OK() {
		return report(cmd.OutOrStdout(), resp)
	}

	v := resp.Data.(*structs.VM)
	fmt.Fprintln(cmd.OutOrStdout(), formatKV([]string{
		"ID|" + v.ID,
		fmt.Sprintf("CPU|%d", v.CPU),
		fmt.Sprintf("Memory|%d", v.Memory),
		fmt.Sprintf("Storage|%d", v.Storage),
		"Created|" + v.CreatedAt.Format("2006-01-02 15:04:05 MST"),
	}))
	return nil
}

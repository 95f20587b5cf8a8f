package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pinUnset bool

var pinCmd = &cobra.Command{
	Use:   "pin [id]",
	Short: "Pin a memory (or unpin with --unset)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPin,
}

var archiveCmd = &cobra.Command{
	Use:   "archive [id]",
	Short: "Transition a memory to the archived lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchive,
}

var resolveSolution string

var resolveCmd = &cobra.Command{
	Use:   "resolve [id]",
	Short: "Mark an error memory resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	pinCmd.Flags().BoolVar(&pinUnset, "unset", false, "Unpin instead of pin")
	resolveCmd.Flags().StringVar(&resolveSolution, "solution", "", "Solution text to record")
}

func runPin(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	if err := k.collection.Pin(cmd.Context(), args[0], !pinUnset); err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	fmt.Println("ok", args[0])
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	if err := k.collection.Archive(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	fmt.Println("archived (or skipped if pinned)", args[0])
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	if err := k.collection.Resolve(cmd.Context(), args[0], resolveSolution); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	fmt.Println("resolved", args[0])
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memkernel/internal/memory"
)

var linkConfidence float64

var linkCmd = &cobra.Command{
	Use:   "link [src-id] [type] [dst-id]",
	Short: "Create an explicit graph edge between two memories",
	Args:  cobra.ExactArgs(3),
	RunE:  runLink,
}

var (
	relatedDepth int
	relatedTypes []string
)

var relatedCmd = &cobra.Command{
	Use:   "related [id]",
	Short: "List the graph neighborhood of a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelated,
}

func init() {
	linkCmd.Flags().Float64Var(&linkConfidence, "confidence", 1.0, "Edge confidence in [0,1]")
	relatedCmd.Flags().IntVar(&relatedDepth, "depth", 2, "Traversal depth (1 or 2)")
	relatedCmd.Flags().StringSliceVar(&relatedTypes, "types", nil, "Restrict to these edge types")
}

func runLink(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	srcID, relType, dstID := args[0], memory.RelationType(args[1]), args[2]
	if err := k.collection.Link(cmd.Context(), srcID, dstID, relType, linkConfidence); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	fmt.Println("linked", srcID, "-", relType, "->", dstID)
	return nil
}

func runRelated(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	types := make([]memory.RelationType, len(relatedTypes))
	for i, t := range relatedTypes {
		types[i] = memory.RelationType(t)
	}

	neighbors, meta, err := k.collection.FindRelated(cmd.Context(), args[0], relatedDepth, types)
	if err != nil {
		return fmt.Errorf("related: %w", err)
	}
	if !meta.GraphAvailable {
		fmt.Println("graph unavailable")
		return nil
	}
	for _, id := range neighbors {
		fmt.Println(id)
	}
	return nil
}

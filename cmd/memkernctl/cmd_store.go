package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"memkernel/internal/memory"
)

var (
	storeType    string
	storeProject string
	storeSource  string
	storeTags    []string
	storeError   string
	storeSoln    string
	storePrev    string
	storeRation  string
	storeAlts    string
)

var storeCmd = &cobra.Command{
	Use:   "store [content]",
	Short: "Store a new memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStore,
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Fetch a memory by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var (
	updateContent *string
	updateSource  *string
)

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Apply a partial update to a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var forgetCmd = &cobra.Command{
	Use:   "forget [id]",
	Short: "Hard-delete a memory and its graph node",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

var bulkStoreFile string

var bulkStoreCmd = &cobra.Command{
	Use:   "bulk-store",
	Short: "Store newline-delimited JSON memories from a file or stdin",
	Args:  cobra.NoArgs,
	RunE:  runBulkStore,
}

func init() {
	storeCmd.Flags().StringVar(&storeType, "type", "context", "error|decision|pattern|docs|learning|context")
	storeCmd.Flags().StringVar(&storeProject, "project", "", "Project this memory belongs to")
	storeCmd.Flags().StringVar(&storeSource, "source", "", "Source (required for docs)")
	storeCmd.Flags().StringSliceVar(&storeTags, "tags", nil, "Comma-separated tags")
	storeCmd.Flags().StringVar(&storeError, "error-message", "", "Error message (required for error type)")
	storeCmd.Flags().StringVar(&storeSoln, "solution", "", "Solution text (error type)")
	storeCmd.Flags().StringVar(&storePrev, "prevention", "", "Prevention text (error type)")
	storeCmd.Flags().StringVar(&storeRation, "rationale", "", "Rationale (required for decision type)")
	storeCmd.Flags().StringVar(&storeAlts, "alternatives", "", "Alternatives considered (decision type)")

	var content, source string
	updateCmd.Flags().StringVar(&content, "content", "", "New content (triggers re-embed)")
	updateCmd.Flags().StringVar(&source, "source", "", "New source")
	updateCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("content") {
			updateContent = &content
		}
		if cmd.Flags().Changed("source") {
			updateSource = &source
		}
		return nil
	}

	bulkStoreCmd.Flags().StringVar(&bulkStoreFile, "file", "", "Path to a newline-delimited JSON file (default: stdin)")
}

func runStore(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	m := memory.Memory{
		Type:         memory.Type(storeType),
		Content:      args[0],
		Project:      storeProject,
		Source:       storeSource,
		Tags:         storeTags,
		ErrorMessage: storeError,
		Solution:     storeSoln,
		Prevention:   storePrev,
		Rationale:    storeRation,
		Alternatives: storeAlts,
	}

	id, err := k.collection.Store(cmd.Context(), m)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	printResult(map[string]any{"id": id})
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	m, err := k.collection.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	printResult(m)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	mut := memory.Mutations{Content: updateContent, Source: updateSource}
	if err := k.collection.Update(cmd.Context(), args[0], mut); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	fmt.Println("updated", args[0])
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	if err := k.collection.Forget(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	fmt.Println("forgotten", args[0])
	return nil
}

func runBulkStore(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	var r io.Reader = os.Stdin
	if bulkStoreFile != "" {
		f, err := os.Open(bulkStoreFile)
		if err != nil {
			return fmt.Errorf("bulk-store: %w", err)
		}
		defer f.Close()
		r = f
	}

	var memories []memory.Memory
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m memory.Memory
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return fmt.Errorf("bulk-store: parse line: %w", err)
		}
		memories = append(memories, m)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("bulk-store: read input: %w", err)
	}

	ids, errs := k.collection.BulkStore(cmd.Context(), memories)
	failed := 0
	for i, e := range errs {
		if e != nil {
			failed++
			fmt.Fprintf(os.Stderr, "item %d failed: %v\n", i, e)
			continue
		}
		fmt.Println(ids[i])
	}
	if failed > 0 {
		return fmt.Errorf("bulk-store: %d of %d items failed", failed, len(memories))
	}
	return nil
}

// printResult renders v as JSON when --json is set, or a compact line
// otherwise, matching the teacher's dual human/script output convention.
func printResult(v any) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	fmt.Printf("%+v\n", v)
}

// Copyright (C) 2026 Jyotish AI (dev@jyotish.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command jyotishctl is an operator tool for inspecting dasha period trees
// offline: subdividing a period and balancing a tree without a running
// profile service.
//
// Usage:
//
//	jyotishctl subdivide --lord Venus --start 1990-01-01 --years 20
//	jyotishctl balance --file tree.json --path Venus,Sun
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JyotishAI/JyotishCore/pkg/logging"
	"github.com/JyotishAI/JyotishCore/services/profile/dasha"
	"github.com/JyotishAI/JyotishCore/services/profile/datatypes"
)

var (
	rootCmd = &cobra.Command{
		Use:   "jyotishctl",
		Short: "Operator tools for Jyotish dasha period trees",
	}

	subdivideLord  string
	subdivideStart string
	subdivideYears float64
	subdivideCmd   = &cobra.Command{
		Use:   "subdivide",
		Short: "Print the nine sub-periods of a parent period as JSON",
		RunE:  runSubdivide,
	}

	balanceFile  string
	balancePath  string
	balanceDepth int
	balanceCmd   = &cobra.Command{
		Use:   "balance",
		Short: "Balance a period tree read from a JSON file and print the result",
		RunE:  runBalance,
	}
)

func init() {
	subdivideCmd.Flags().StringVar(&subdivideLord, "lord", "", "parent period lord (required)")
	subdivideCmd.Flags().StringVar(&subdivideStart, "start", "", "period start date, YYYY-MM-DD (required)")
	subdivideCmd.Flags().Float64Var(&subdivideYears, "years", 0, "period duration in years (required)")
	_ = subdivideCmd.MarkFlagRequired("lord")
	_ = subdivideCmd.MarkFlagRequired("start")
	_ = subdivideCmd.MarkFlagRequired("years")

	balanceCmd.Flags().StringVar(&balanceFile, "file", "", "JSON file holding a period tree (required)")
	balanceCmd.Flags().StringVar(&balancePath, "path", "", "comma-separated drill-down lords")
	balanceCmd.Flags().IntVar(&balanceDepth, "depth", 0, "minimum depth (default policy when 0)")
	_ = balanceCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(subdivideCmd, balanceCmd)
}

func runSubdivide(cmd *cobra.Command, args []string) error {
	start, err := time.Parse("2006-01-02", subdivideStart)
	if err != nil {
		return fmt.Errorf("parse start date: %w", err)
	}
	children := dasha.Subdivide(subdivideLord, start, subdivideYears, time.Time{})
	if len(children) == 0 {
		return fmt.Errorf("cannot subdivide: check lord name and duration")
	}
	return printJSON(children)
}

func runBalance(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(balanceFile)
	if err != nil {
		return fmt.Errorf("read tree file: %w", err)
	}
	var tree []*datatypes.Period
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parse tree file: %w", err)
	}

	var path []string
	if balancePath != "" {
		path = strings.Split(balancePath, ",")
	}
	logger := logging.Default()
	dirty := dasha.NewExpander(logger.Logger).Balance(tree, balanceDepth, path)
	fmt.Fprintf(os.Stderr, "balanced (changed=%v)\n", dirty)
	return printJSON(tree)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/model"
)

func newExperimentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiments",
		Short: "List registered experiment templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			type info struct {
				Name        string `json:"name"`
				Description string `json:"description"`
				Subsets     int    `json:"subsets"`
				Runs        int    `json:"runs"`
				Timesteps   int    `json:"timesteps"`
			}
			var list []info
			for _, name := range experiment.Names() {
				exp, err := experiment.Get(name)
				if err != nil {
					return err
				}
				n, err := engine.SubsetCount(exp.Parameters, exp.Sweep)
				if err != nil {
					return fmt.Errorf("experiment %s: %w", name, err)
				}
				list = append(list, info{exp.Name, exp.Description, n, exp.Runs, exp.Timesteps})
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(list)
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Subsets", "Runs", "Timesteps", "Description"})
			for _, e := range list {
				t.AppendRow(table.Row{e.Name, e.Subsets, e.Runs, e.Timesteps, e.Description})
			}
			t.Render()
			return nil
		},
	}
}

func newParametersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parameters",
		Short: "List registered model parameters and their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			specs := model.Parameters()
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(specs)
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Kind", "Default", "Unit", "Description"})
			for _, s := range specs {
				t.AppendRow(table.Row{s.Name, s.Kind, formatDefault(s.Default), s.Unit, s.Description})
			}
			t.Render()
			return nil
		},
	}
}

// Copyright 2025 DeFlow
//
// deflowctl is a thin HTTP client for the DeFlow automation service's
// workflow and execution endpoints.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var apiAddr string

func main() {
	root := &cobra.Command{
		Use:   "deflowctl",
		Short: "Control a running DeFlow automation service",
	}
	root.PersistentFlags().StringVar(&apiAddr, "addr", "http://localhost:8080", "DeFlow API base address")

	root.AddCommand(newWorkflowCmd())
	root.AddCommand(newRiskCmd())
	root.AddCommand(newPortfolioCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newWorkflowCmd() *cobra.Command {
	wfCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	var ownerID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List workflows for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet(apiAddr + "/api/workflows?owner_id=" + ownerID)
		},
	}
	list.Flags().StringVar(&ownerID, "owner-id", "", "owner id to filter by")

	get := &cobra.Command{
		Use:   "get [id]",
		Short: "Get a workflow by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet(apiAddr + "/api/workflows/" + args[0])
		},
	}

	run := &cobra.Command{
		Use:   "run [id]",
		Short: "Trigger an immediate workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printPost(apiAddr+"/api/workflows/"+args[0]+"/run", nil)
		},
	}

	wfCmd.AddCommand(list, get, run)
	return wfCmd
}

func newRiskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk-assess [profile.json]",
		Short: "Submit a risk profile for scoring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printPost(apiAddr+"/api/risk/assess", data)
		},
	}
}

func newPortfolioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio [userID]",
		Short: "Show a user's balance across every registered chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet(apiAddr + "/api/portfolio/" + args[0])
		},
	}
}

func printGet(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp)
}

func printPost(url string, body []byte) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp)
}

func printBody(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty interface{}
	if json.Unmarshal(data, &pretty) == nil {
		enc, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(enc))
		return nil
	}
	fmt.Println(string(data))
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	topicsCmd := &cobra.Command{Use: "topics", Short: "Topic operations"}

	var title string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().
				SetBody(map[string]string{"title": title}).
				Post("/api/topics"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	createCmd.Flags().StringVarP(&title, "title", "T", "", "Topic title (required)")
	_ = createCmd.MarkFlagRequired("title")
	topicsCmd.AddCommand(createCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List topics, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().Get("/api/topics"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	topicsCmd.AddCommand(listCmd)

	getCmd := &cobra.Command{
		Use:   "get TOPIC_ID",
		Short: "Get a topic by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().Get("/api/topics/" + args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	topicsCmd.AddCommand(getCmd)

	var newTitle string
	renameCmd := &cobra.Command{
		Use:   "rename TOPIC_ID",
		Short: "Rename a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().
				SetBody(map[string]string{"title": newTitle}).
				Patch("/api/topics/" + args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	renameCmd.Flags().StringVarP(&newTitle, "title", "T", "", "New title (required)")
	_ = renameCmd.MarkFlagRequired("title")
	topicsCmd.AddCommand(renameCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete TOPIC_ID",
		Short: "Delete a topic and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := checkResp(newClient().R().Delete("/api/topics/" + args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, "deleted")
			return nil
		},
	}
	topicsCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(topicsCmd)
}

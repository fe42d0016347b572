package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	chatCmd := &cobra.Command{
		Use:   "chat TOPIC_ID MESSAGE",
		Short: "Send a chat message to a topic's agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := checkResp(newClient().R().
				SetBody(map[string]string{"user_message": args[1]}).
				Post("/api/topics/" + args[0] + "/chat"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	rootCmd.AddCommand(chatCmd)

	var limit int
	messagesCmd := &cobra.Command{
		Use:   "messages TOPIC_ID",
		Short: "List a topic's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newClient().R()
			if limit > 0 {
				req.SetQueryParam("limit", strconv.Itoa(limit))
			}
			data, err := checkResp(req.Get("/api/topics/" + args[0] + "/messages"))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	messagesCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum messages to return")
	rootCmd.AddCommand(messagesCmd)
}

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var conversationCmd = &cobra.Command{
	Use:   "conversation",
	Short: "Conversation operations",
}

var conversationCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a conversation",
	RunE:  runConversationCreate,
}

var conversationMessagesCmd = &cobra.Command{
	Use:   "messages [conversation-id]",
	Short: "List the messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationMessages,
}

func init() {
	conversationCmd.AddCommand(conversationCreateCmd)
	conversationCmd.AddCommand(conversationMessagesCmd)

	conversationCreateCmd.Flags().String("title", "", "Conversation title")
	conversationMessagesCmd.Flags().IntP("limit", "n", 0, "Maximum number of messages")
}

func runConversationCreate(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")

	client := clientFor(cmd)
	defer client.Close()

	conv, err := client.CreateConversation(cmd.Context(), title)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", conv.ID, conv.Title)
	return nil
}

func runConversationMessages(cmd *cobra.Command, args []string) error {
	conversationID, err := parseConversationID(args[0])
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")

	client := clientFor(cmd)
	defer client.Close()

	list, err := client.ListMessages(cmd.Context(), conversationID, limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, msg := range list.Data {
		status := ""
		if msg.Metadata.Status != "" {
			status = fmt.Sprintf(" [%s]", msg.Metadata.Status)
		}
		fmt.Fprintf(out, "%d %s%s: %s\n", msg.ID, msg.Role, status, msg.Content)
	}
	return nil
}

func parseConversationID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid conversation id %q", raw)
	}
	return uint(id), nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/janhq/chat-stream-api/internal/domain/streaming"
)

const cancelTimeout = 5 * time.Second

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Streaming chat operations",
}

var chatSendCmd = &cobra.Command{
	Use:   "send [conversation-id] [message]",
	Short: "Send a message and stream the reply",
	Long: `Starts a stream session for the message and prints tokens as they arrive.
Interrupting the command cancels the session; the partial reply is kept.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runChatSend,
}

var chatCancelCmd = &cobra.Command{
	Use:   "cancel [session-id]",
	Short: "Cancel a stream session",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatCancel,
}

var chatStatusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show the state of a stream session",
	Args:  cobra.ExactArgs(1),
	RunE:  runChatStatus,
}

func init() {
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatCancelCmd)
	chatCmd.AddCommand(chatStatusCmd)
}

func runChatSend(cmd *cobra.Command, args []string) error {
	conversationID, err := parseConversationID(args[0])
	if err != nil {
		return err
	}
	message := strings.Join(args[1:], " ")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client := clientFor(cmd)
	defer client.Close()

	started, err := client.StartStream(ctx, conversationID, message)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var streamErr *streaming.ErrorEvent
	err = client.Attach(ctx, started.SessionID, streamHandler{
		OnToken: func(ev streaming.TokenEvent) {
			fmt.Fprint(out, ev.Token)
		},
		OnComplete: func(ev streaming.CompleteEvent) {
			fmt.Fprintf(out, "\n\n[%d tokens in %dms]\n", ev.TokenCount, ev.CompletionTimeMs)
		},
		OnError: func(ev streaming.ErrorEvent) {
			streamErr = &ev
		},
	})
	if ctx.Err() != nil {
		// Release the session even if it never attached.
		cancelCtx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		if cancelErr := client.CancelStream(cancelCtx, started.SessionID); cancelErr != nil {
			var apiErr *apiError
			if !errors.As(cancelErr, &apiErr) {
				return cancelErr
			}
		}
		fmt.Fprintln(out, "\n[cancelled]")
		return nil
	}
	if err != nil {
		return err
	}
	if streamErr != nil {
		return fmt.Errorf("stream ended with %s: %s", streamErr.ErrorType, streamErr.Error)
	}
	return nil
}

func runChatCancel(cmd *cobra.Command, args []string) error {
	client := clientFor(cmd)
	defer client.Close()

	if err := client.CancelStream(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
	return nil
}

func runChatStatus(cmd *cobra.Command, args []string) error {
	client := clientFor(cmd)
	defer client.Close()

	status, err := client.StreamStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tconversation=%d message=%d created=%s\n",
		status.SessionID, status.State, status.ConversationID, status.MessageID,
		status.CreatedAt.Format(time.RFC3339))
	return nil
}

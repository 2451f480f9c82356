package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rmacdonaldsmith/tagmesh/pkg/httpclient"
	"github.com/spf13/cobra"
)

func newMessagesCommand() *cobra.Command {
	var (
		tag          string
		offset       int64
		limit        int
		prettyFormat bool
	)

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Read journaled messages of a tag",
		Long: `Read the messages delivered on a tag starting at a specific offset.
The journal keeps a bounded history per tag; older messages are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMessages(cmd, tag, offset, limit, prettyFormat)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Tag to read messages from (required)")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Starting offset (default: 0)")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of messages to retrieve (default: 100, max: 1000)")
	cmd.Flags().BoolVar(&prettyFormat, "pretty", false, "Pretty print JSON payloads")

	// Mark tag as required
	if err := cmd.MarkFlagRequired("tag"); err != nil {
		panic(fmt.Sprintf("Failed to mark tag flag as required: %v", err))
	}

	return cmd
}

func runMessages(cmd *cobra.Command, tag string, offset int64, limit int, prettyFormat bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "🔄 Reading messages of '%s' (offset: %d, limit: %d)...\n", tag, offset, limit)

	response, err := client.ReadMessages(ctx, tag, offset, limit)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "📋 Found %d messages (requested offset: %d, actual start: %d)\n\n",
		response.Count, offset, response.StartOffset)

	if len(response.Messages) == 0 {
		fmt.Fprintf(out, "🔍 No messages found for '%s' starting from offset %d\n", tag, offset)
		return nil
	}

	for _, msg := range response.Messages {
		printMessage(out, msg, prettyFormat)
	}
	return nil
}

// printMessage prints one journaled delivery
func printMessage(out io.Writer, msg httpclient.MessageRecord, pretty bool) {
	fmt.Fprintf(out, "[%d] %s  %s -> %s\n", msg.Offset, msg.Timestamp.Format("2006-01-02 15:04:05.000"), msg.Sender, msg.Tag)

	var payload []byte
	var err error
	if pretty {
		payload, err = json.MarshalIndent(msg.Payload, "    ", "  ")
	} else {
		payload, err = json.Marshal(msg.Payload)
	}
	if err != nil {
		fmt.Fprintf(out, "    Payload: %v\n", msg.Payload)
		return
	}
	fmt.Fprintf(out, "    Payload: %s\n", payload)
}

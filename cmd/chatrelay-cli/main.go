// ABOUTME: Interactive chat client for a running chatrelay gateway
// ABOUTME: Streams assistant responses to the terminal as deltas arrive

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/chatrelay/chatrelay/client"
	"github.com/chatrelay/chatrelay/internal/wire"
)

func main() {
	gatewayURL := flag.String("gateway", "http://127.0.0.1:8080", "chatrelay gateway base URL")
	conversation := flag.String("conversation", "", "conversation id (default conversation when empty)")
	userID := flag.String("user", "cli", "user id for credential fetch")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *gatewayURL, *conversation, *userID); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, gatewayURL, conversation, userID string) error {
	// Quiet by default; the stream itself is the output.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	c, err := client.New(client.Options{
		GatewayURL: gatewayURL,
		UserID:     userID,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	transport := client.NewTransport(c)

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	gray.Printf("connected to %s", gatewayURL)
	if conversation != "" {
		gray.Printf(" (conversation %s)", conversation)
	}
	fmt.Println()
	gray.Println("type a message, or /quit to exit")

	var history []wire.InputMessage
	scanner := bufio.NewScanner(os.Stdin)

	for {
		cyan.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		history = append(history, wire.InputMessage{Role: "user", Content: line})

		response, err := streamTurn(ctx, transport, conversation, history)
		if err != nil {
			color.Red("error: %v", err)
			// Drop the failed user turn so a retry resends it cleanly.
			history = history[:len(history)-1]
			continue
		}
		history = append(history, wire.InputMessage{Role: "assistant", Content: response})
	}
}

func streamTurn(ctx context.Context, transport *client.Transport, conversation string, history []wire.InputMessage) (string, error) {
	stream, err := transport.SendMessages(ctx, conversation, history)
	if err != nil {
		return "", err
	}
	defer stream.Cancel()

	green := color.New(color.FgGreen)
	var b strings.Builder

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return b.String(), nil
		}
		if err != nil {
			fmt.Println()
			return b.String(), err
		}

		switch chunk.Type {
		case client.ChunkStart:
			green.Print("assistant> ")
		case client.ChunkDelta:
			fmt.Print(chunk.Text)
			b.WriteString(chunk.Text)
		case client.ChunkEnd:
			// end of turn, EOF follows
		}
	}
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Chat answers a user message and reports the handler used.
type Chat interface {
	Route(ctx context.Context, message string, sessionID string) (string, string, error)
}

type CLIChannel struct {
	sessionID string
	chat      Chat
}

func NewCLIChannel(chat Chat, sessionID string) *CLIChannel {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = fmt.Sprintf("cli-%d", time.Now().Unix())
	}
	return &CLIChannel{sessionID: sessionID, chat: chat}
}

// Start reads user messages from stdin and prints the routed replies
// until the context is cancelled or the user exits.
func (c *CLIChannel) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Println(">> CRM assistant CLI started. Type 'exit' to quit.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			fmt.Print("> ")
			if !scanner.Scan() {
				return scanner.Err()
			}
			text := strings.TrimSpace(scanner.Text())
			if text == "" {
				continue
			}
			if text == "exit" || text == "quit" {
				fmt.Println("Exiting CLI loop...")
				return nil
			}

			reply, handlerUsed, err := c.chat.Route(ctx, text, c.sessionID)
			if err != nil {
				fmt.Printf("[error]: %v\n", err)
				continue
			}
			fmt.Printf("[%s]: %s\n", handlerUsed, reply)
		}
	}
}

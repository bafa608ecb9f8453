package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/client"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// chatCmd is a line-oriented room client for trying a running gateway.
func chatCmd() *cobra.Command {
	var (
		gatewayURL string
		token      string
		userID     string
		orgID      string
		roomID     string
		mention    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room on a running gateway and chat from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("ROOMCLAW_GATEWAY_TOKEN")
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			conn, err := client.Dial(dialCtx, client.Options{
				URL: gatewayURL, Token: token, UserID: userID, OrganizationID: orgID,
			})
			cancel()
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.Send(ctx, protocol.ChatRoomInitRequest{RoomID: roomID}); err != nil {
				return err
			}
			go printEvents(ctx, conn, roomID, stop)
			return readLines(ctx, conn, roomID, mention)
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "url", "ws://localhost:18800", "gateway WebSocket URL")
	cmd.Flags().StringVar(&token, "token", "", "gateway token (default: $ROOMCLAW_GATEWAY_TOKEN)")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&orgID, "org", "", "organization id")
	cmd.Flags().StringVar(&roomID, "room", "", "room id")
	cmd.Flags().StringVar(&mention, "mention", "", "agent id to mention in every message")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("org")
	cmd.MarkFlagRequired("room")
	return cmd
}

func readLines(ctx context.Context, conn *client.Conn, roomID, mention string) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		msg := protocol.SendMessage{
			ID:        uuid.NewString(),
			Parts:     []store.Part{store.TextPart(text)},
			Mentions:  []store.Mention{},
			CreatedAt: time.Now().UnixMilli(),
		}
		if mention != "" {
			msg.Mentions = append(msg.Mentions, store.Mention{ID: mention})
		}
		if err := conn.Send(ctx, protocol.ChatRoomMessageSend{RoomID: roomID, Message: msg}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func printEvents(ctx context.Context, conn *client.Conn, roomID string, stop func()) {
	defer stop()
	for {
		ev, err := conn.Read(ctx)
		if err != nil {
			var ce *client.CloseError
			if errors.As(err, &ce) {
				fmt.Fprintf(os.Stderr, "closed: %s\n", ce.Reason)
			}
			return
		}
		switch e := ev.(type) {
		case protocol.ChatRoomInitResponse:
			fmt.Printf("# %s (%d members)\n", e.Room.Name, len(e.Members))
			for i := range e.Messages {
				printMessage(&e.Messages[i])
			}
		case protocol.ChatRoomMessageBroadcast:
			if e.RoomID == roomID && e.Message.Status != store.StatusPending {
				printMessage(e.Message)
			}
		case protocol.ErrorFrame:
			fmt.Fprintf(os.Stderr, "error (%s): %s\n", e.Code, e.Message)
		}
	}
}

func printMessage(m *store.Message) {
	who := m.MemberID
	if m.Member != nil && m.Member.Name != "" {
		who = m.Member.Name
	}
	prefix := ""
	if m.ThreadID != nil {
		prefix = fmt.Sprintf("  [thread %d] ", *m.ThreadID)
	}
	fmt.Printf("%s%s: %s\n", prefix, who, m.Text())
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"messenger-sync/client"
	"messenger-sync/config"
	"messenger-sync/model"
	"messenger-sync/protocol"
	"messenger-sync/router"
	"messenger-sync/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func init() {
	chatCmd.Flags().String("server", "http://localhost:8080", "server base URL")
	chatCmd.Flags().String("token", "", "access token, defaults to $MESSENGER_TOKEN")
	rootCmd.AddCommand(chatCmd)
}

const chatHelp = `commands:
  /pin N           pin message N
  /unpin N         unpin message N
  /react N EMOJI   toggle a reaction on message N
  /edit N TEXT     replace the text of your message N
  /delete N [all]  delete message N for you, or for both with "all"
  /reply N TEXT    reply to message N
  /quit
anything else is sent as a message`

var chatCmd = &cobra.Command{
	Use:   "chat [peer-id]",
	Short: "Open an interactive conversation with a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, token, err := remote(cmd)
		if err != nil {
			return err
		}

		level := "warn"
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		log, err := (&config.Settings{LogLevel: level, LogFormat: "console"}).Logger()
		if err != nil {
			return err
		}
		defer log.Sync()

		self, err := tokenSubject(token)
		if err != nil {
			return err
		}
		endpoint, err := socketURL(server)
		if err != nil {
			return err
		}

		c := &chat{
			out:     cmd.OutOrStdout(),
			self:    self,
			peer:    args[0],
			api:     client.NewAPI(server, token),
			session: client.NewSession(endpoint, log),
		}
		c.conv = client.NewConversation(self, c.peer, c.session, log)
		c.typing = client.NewTyping(c.session, c.peer)
		return c.run(cmd.Context(), token, cmd.InOrStdin())
	},
}

// remote resolves the server address and access token shared by the
// commands that talk to a running server.
func remote(cmd *cobra.Command) (string, string, error) {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = config.Config("MESSENGER_TOKEN")
	}
	if token == "" {
		return "", "", errors.New("no token: pass --token or set MESSENGER_TOKEN")
	}
	return server, token, nil
}

// tokenSubject reads the user id from the token. The server verifies the
// signature, the client only needs to know who it is.
func tokenSubject(token string) (string, error) {
	t, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	meta, err := utils.ClaimsMetadata(t)
	if err != nil {
		return "", err
	}
	return meta.Id, nil
}

func socketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + router.SocketPath
	return u.String(), nil
}

type chat struct {
	out     io.Writer
	self    string
	peer    string
	api     *client.API
	session *client.Session
	conv    *client.Conversation
	typing  *client.Typing

	outMu sync.Mutex
}

func (c *chat) run(ctx context.Context, token string, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.session.OnEvent(c.handle)
	c.session.OnClose(func(err error) {
		if err != nil {
			c.printf("connection lost: %v\n", err)
		} else {
			c.printf("connection closed\n")
		}
		cancel()
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()
	if err := c.session.Connect(dialCtx, token); err != nil {
		return err
	}
	defer c.session.Disconnect()

	// History is fetched after the socket is up so nothing sent in between
	// is missed. LoadHistory merges with whatever already arrived live.
	history, err := c.api.History(c.peer)
	if err != nil {
		return err
	}
	c.conv.LoadHistory(history)

	c.session.MarkMessagesAsRead(c.peer)
	c.render()
	c.printf("%s\n", chatHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.command(strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func (c *chat) handle(ev protocol.ServerEvent) {
	switch ev := ev.(type) {
	case protocol.OnlineUsers:
		for _, u := range ev.Users {
			if u == c.peer {
				c.printf("* %s is online\n", c.peer)
				return
			}
		}
		c.printf("* %s is offline\n", c.peer)
	case protocol.TypingStarted:
		if ev.UserID == c.peer {
			c.printf("* %s is typing...\n", c.peer)
		}
	case protocol.TypingStopped:
	case protocol.Error:
		c.printf("! %s: %s\n", ev.Code, ev.Message)
	default:
		if !c.conv.Apply(ev) {
			return
		}
		if m, ok := ev.(protocol.NewMessage); ok && m.SenderID == c.peer {
			c.session.MarkMessagesAsRead(c.peer)
		}
		c.render()
	}
}

// command runs one input line and reports whether the chat should end.
func (c *chat) command(line string) bool {
	if line == "" {
		c.typing.Stop()
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.typing.Stop()
		if _, err := c.conv.Submit(line, nil); err != nil {
			c.printf("! %v\n", err)
		}
		c.render()
		return false
	}

	name, rest, _ := strings.Cut(line, " ")
	if name == "/quit" {
		return true
	}
	if name == "/help" {
		c.printf("%s\n", chatHelp)
		return false
	}

	arg, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
	m, err := c.pick(arg)
	if err != nil {
		c.printf("! %v\n", err)
		return false
	}

	switch name {
	case "/pin":
		_, err = c.api.Pin(m.ID)
	case "/unpin":
		err = c.api.Unpin(m.ID)
	case "/react":
		_, err = c.api.ToggleReaction(m.ID, strings.TrimSpace(text))
	case "/edit":
		_, err = c.api.Edit(m.ID, text)
	case "/delete":
		err = c.api.Delete(m.ID, strings.TrimSpace(text) == "all")
	case "/reply":
		c.typing.Stop()
		_, err = c.conv.Submit(text, &m.ID)
		c.render()
	default:
		err = fmt.Errorf("unknown command %s", name)
	}
	if err != nil {
		c.printf("! %v\n", err)
	}
	return false
}

// pick resolves the 1-based number shown by render.
func (c *chat) pick(arg string) (model.Message, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return model.Message{}, fmt.Errorf("expected a message number, got %q", arg)
	}
	msgs := c.conv.Messages()
	if n < 1 || n > len(msgs) {
		return model.Message{}, fmt.Errorf("no message %d", n)
	}
	return msgs[n-1], nil
}

func (c *chat) render() {
	msgs := c.conv.Messages()
	number := make(map[string]int, len(msgs))
	for i, m := range msgs {
		number[m.ID] = i + 1
	}

	c.outMu.Lock()
	defer c.outMu.Unlock()

	fmt.Fprintln(c.out, strings.Repeat("-", 40))
	if p := c.conv.Pinned(); p != nil {
		fmt.Fprintf(c.out, "pinned: [%d] %s\n", number[p.ID], p.Text)
	}
	for _, item := range client.Group(msgs, time.Local) {
		if item.Separator {
			fmt.Fprintf(c.out, "        %s\n", item.Date.Format("Mon 2 Jan 2006"))
			continue
		}
		c.line(item, number)
	}
}

func (c *chat) line(item client.Item, number map[string]int) {
	m := item.Message
	who := "  "
	if item.FirstInRun {
		who = m.SenderID + ":"
		if m.SenderID == c.self {
			who = "me:"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s %s", number[m.ID], m.CreatedAt.Local().Format("15:04"), who)
	if m.RepliedMessage != nil {
		fmt.Fprintf(&b, " (re: %s)", m.RepliedMessage.Text)
	}
	switch m.MessageType {
	case model.MessageTypeImage, model.MessageTypeFile:
		if m.FileURL != nil {
			fmt.Fprintf(&b, " <%s %s>", m.MessageType, *m.FileURL)
		}
	}
	if m.Text != "" {
		b.WriteString(" " + m.Text)
	}
	if m.Edited() {
		b.WriteString(" (edited)")
	}
	for _, r := range m.Reactions {
		b.WriteString(" " + r.Emoji)
	}
	switch {
	case client.IsTemporary(m.ID):
		b.WriteString(" ...")
	case m.SenderID == c.self && m.IsRead:
		b.WriteString(" ✓✓")
	case m.SenderID == c.self:
		b.WriteString(" ✓")
	}
	fmt.Fprintln(c.out, b.String())
}

func (c *chat) printf(format string, a ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

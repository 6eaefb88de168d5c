// Package chatclient is the client side of the support chat: a chat state
// machine, a dictation capability and a typed HTTP client for the API.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coldorg/coldbot/backend/internal/models"
)

// ErrorText is shown inline when a chat request fails.
const ErrorText = "Erreur de communication"

type Role string

const (
	RoleUser  Role = "user"
	RoleBot   Role = "bot"
	RoleError Role = "error"
)

type Message struct {
	Role      Role
	Text      string
	MessageID string
	At        time.Time
}

type State int

const (
	Idle State = iota
	AwaitingResponse
)

func (s State) String() string {
	if s == AwaitingResponse {
		return "awaiting-response"
	}
	return "idle"
}

// Sender delivers one chat message. *APIClient implements it.
type Sender interface {
	Chat(ctx context.Context, message, conversationID string) (*models.ChatResponse, error)
}

// Chat holds one conversation on the client. The mutex only protects the
// fields; a second Submit while one is in flight is not rejected and both
// requests race, as with a double Enter press.
type Chat struct {
	mu             sync.Mutex
	sender         Sender
	messages       []Message
	draft          string
	state          State
	inFlight       int
	conversationID string
	now            func() time.Time
}

func NewChat(sender Sender) *Chat {
	return &Chat{
		sender: sender,
		now:    time.Now,
	}
}

func (c *Chat) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

func (c *Chat) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Chat) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Chat) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Messages returns a copy of the transcript.
func (c *Chat) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// LastAnswer returns the most recent bot message, if any.
func (c *Chat) LastAnswer() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleBot {
			return c.messages[i], true
		}
	}
	return Message{}, false
}

// Reset starts a new conversation.
func (c *Chat) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.draft = ""
	c.conversationID = ""
}

// Submit sends the draft. An empty or blank draft is ignored. On failure an
// inline error message is appended, the draft is kept and the error is
// returned.
func (c *Chat) Submit(ctx context.Context) error {
	c.mu.Lock()
	text := strings.TrimSpace(c.draft)
	if text == "" {
		c.mu.Unlock()
		return nil
	}
	submitted := c.draft
	conversationID := c.conversationID
	c.messages = append(c.messages, Message{Role: RoleUser, Text: text, At: c.now()})
	c.inFlight++
	c.state = AwaitingResponse
	c.mu.Unlock()

	resp, err := c.sender.Chat(ctx, text, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if c.inFlight == 0 {
		c.state = Idle
	}

	if err != nil {
		c.messages = append(c.messages, Message{Role: RoleError, Text: errorText(err), At: c.now()})
		return err
	}

	c.messages = append(c.messages, Message{Role: RoleBot, Text: resp.Text, MessageID: resp.MessageID, At: c.now()})
	if resp.ConversationID != "" {
		c.conversationID = resp.ConversationID
	}
	if c.draft == submitted {
		c.draft = ""
	}
	return nil
}

func errorText(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		if apiErr.RetryAfter > 0 {
			return fmt.Sprintf("Trop de requêtes, réessayez dans %d s", apiErr.RetryAfter)
		}
		return "Trop de requêtes, réessayez plus tard"
	}
	return ErrorText
}

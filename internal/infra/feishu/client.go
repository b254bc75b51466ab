package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
)

const (
	sentIDTTL = 24 * time.Hour
	sentIDCap = 2000
)

// Message represents a received Feishu message
type Message struct {
	ChatID      string
	MsgID       string
	ParentID    string   // Replied-to message, empty when not a reply
	MsgType     string   // text, image, post
	ChatType    string   // p2p (private), group
	Content     string   // Text content with the bot mention removed
	ImageKeys   []string // Image keys for downloading
	Sender      *Sender
	Mentions    []string // Mentioned open_ids other than the bot
	MentionsBot bool
	CreateTime  int64 // Milliseconds Unix timestamp from Feishu
}

// Sender represents the message sender
type Sender struct {
	SenderID   string // open_id
	SenderType string // user, app
	TenantKey  string
}

// ChatMember represents a member in a chat
type ChatMember struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID       string
	appSecret   string
	larkCli     *lark.Client
	wsCli       *larkws.Client
	onMessage   MessageHandler
	downloadDir string
	botOpenID   string
	logger      *slog.Logger

	sentMu  sync.Mutex
	sentIDs map[string]time.Time // message ids the bot sent
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *slog.Logger) *Client {
	return &Client{
		appID:       appID,
		appSecret:   appSecret,
		larkCli:     lark.NewClient(appID, appSecret),
		downloadDir: filepath.Join(os.TempDir(), "ovo-images"),
		logger:      logger.With("component", "feishu"),
		sentIDs:     make(map[string]time.Time),
	}
}

// SetDownloadDir sets the directory for downloading images
func (c *Client) SetDownloadDir(dir string) {
	c.downloadDir = dir
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects to Feishu via WebSocket and blocks until ctx is done
func (c *Client) Start(ctx context.Context) error {
	if err := c.fetchBotOpenID(ctx); err != nil {
		c.logger.Warn("failed to fetch bot open_id", "error", err)
	}

	// Must return quickly so the SDK can ACK, otherwise Feishu retries
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(ctx)
}

// fetchBotOpenID fetches the bot's own open_id
func (c *Client) fetchBotOpenID(ctx context.Context) error {
	tokenBody, _ := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	tokenReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://open.feishu.cn/open-apis/auth/v3/tenant_access_token/internal",
		strings.NewReader(string(tokenBody)))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	tokenReq.Header.Set("Content-Type", "application/json")

	tokenResp, err := http.DefaultClient.Do(tokenReq)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	defer tokenResp.Body.Close()

	var tokenResult struct {
		Code              int    `json:"code"`
		TenantAccessToken string `json:"tenant_access_token"`
	}
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenResult); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://open.feishu.cn/open-apis/bot/v3/info", nil)
	if err != nil {
		return fmt.Errorf("build bot info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokenResult.TenantAccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	defer resp.Body.Close()

	var botResult struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Bot  struct {
			OpenID  string `json:"open_id"`
			AppName string `json:"app_name"`
		} `json:"bot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&botResult); err != nil {
		return fmt.Errorf("decode bot info: %w", err)
	}
	if botResult.Code != 0 {
		return fmt.Errorf("API error: %s", botResult.Msg)
	}

	c.botOpenID = botResult.Bot.OpenID
	c.logger.Info("bot identity resolved", "open_id", c.botOpenID, "name", botResult.Bot.AppName)
	return nil
}

// handleMessage processes incoming Feishu messages
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	msg, ok := c.parseEvent(event)
	if !ok {
		return
	}

	c.logger.Debug("message received",
		"type", msg.MsgType,
		"chat_type", msg.ChatType,
		"chat", msg.ChatID,
		"content", truncate(msg.Content, 50))

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// parseEvent converts a receive event into a Message. Messages sent by
// apps, including the bot itself, are dropped.
func (c *Client) parseEvent(event *larkim.P2MessageReceiveV1) (*Message, bool) {
	rawMsg := event.Event.Message

	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil &&
		*event.Event.Sender.SenderType == "app" {
		return nil, false
	}

	msg := &Message{
		ChatID:   strVal(rawMsg.ChatId),
		MsgID:    strVal(rawMsg.MessageId),
		ParentID: strVal(rawMsg.ParentId),
		MsgType:  strVal(rawMsg.MessageType),
		ChatType: strVal(rawMsg.ChatType),
	}
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}

	if sender := event.Event.Sender; sender != nil {
		msg.Sender = &Sender{
			SenderType: strVal(sender.SenderType),
			TenantKey:  strVal(sender.TenantKey),
		}
		if sender.SenderId != nil {
			msg.Sender.SenderID = strVal(sender.SenderId.OpenId)
		}
	}

	// Mention placeholders (@_user_1) become @Name, the bot's own is removed
	mentionMap := make(map[string]string)
	for _, mention := range rawMsg.Mentions {
		if mention == nil {
			continue
		}
		key := strVal(mention.Key)
		openID := ""
		if mention.Id != nil {
			openID = strVal(mention.Id.OpenId)
		}
		if openID != "" && openID == c.botOpenID {
			msg.MentionsBot = true
			if key != "" {
				mentionMap[key] = ""
			}
			continue
		}
		if openID != "" {
			msg.Mentions = append(msg.Mentions, openID)
		}
		if key != "" {
			mentionMap[key] = "@" + strVal(mention.Name)
		}
	}

	content := strVal(rawMsg.Content)
	switch msg.MsgType {
	case "text":
		msg.Content = parseTextContent(content, mentionMap)
	case "image":
		msg.ImageKeys = parseImageContent(content)
	case "post":
		msg.Content, msg.ImageKeys = parsePostContent(content, mentionMap)
	default:
		c.logger.Debug("unsupported message type", "type", msg.MsgType)
		return nil, false
	}
	return msg, true
}

// parseTextContent extracts text from a text message
func parseTextContent(content string, mentionMap map[string]string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return ""
	}
	return strings.TrimSpace(replaceMentions(parsed.Text, mentionMap))
}

// parseImageContent extracts image key from an image message
func parseImageContent(content string) []string {
	var parsed struct {
		ImageKey string `json:"image_key"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.ImageKey == "" {
		return nil
	}
	return []string{parsed.ImageKey}
}

// parsePostContent extracts text and images from a rich text message
func parsePostContent(content string, mentionMap map[string]string) (string, []string) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserID   string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil
	}

	var textParts []string
	var imageKeys []string
	if parsed.Title != "" {
		textParts = append(textParts, parsed.Title)
	}

	for _, line := range parsed.Content {
		var lineParts []string
		for _, elem := range line {
			switch elem.Tag {
			case "text":
				if elem.Text != "" {
					lineParts = append(lineParts, elem.Text)
				}
			case "at":
				if name, ok := mentionMap[elem.UserID]; ok {
					if name != "" {
						lineParts = append(lineParts, name)
					}
				} else if elem.UserID != "" {
					lineParts = append(lineParts, "@"+elem.UserID)
				}
			case "img":
				if elem.ImageKey != "" {
					imageKeys = append(imageKeys, elem.ImageKey)
				}
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	result := replaceMentions(strings.Join(textParts, "\n"), mentionMap)
	return strings.TrimSpace(result), imageKeys
}

// replaceMentions swaps mention placeholders for their replacement text
func replaceMentions(text string, mentionMap map[string]string) string {
	for key, replacement := range mentionMap {
		text = strings.ReplaceAll(text, key, replacement)
	}
	return text
}

// DownloadImage downloads an image from Feishu and saves it locally
func (c *Client) DownloadImage(ctx context.Context, messageID, imageKey string) (string, error) {
	if err := os.MkdirAll(c.downloadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(messageID).
		FileKey(imageKey).
		Type("image").
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to get image: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("get image error: %s", resp.Msg)
	}

	filePath := filepath.Join(c.downloadDir, imageKey+".png")
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.File); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	c.logger.Debug("image downloaded", "path", filePath)
	return filePath, nil
}

// ========== Sending ==========

func textContent(text string) string {
	contentJSON, _ := json.Marshal(map[string]string{"text": text})
	return string(contentJSON)
}

// SendText sends a text message to a chat
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	return c.create(ctx, larkim.ReceiveIdTypeChatId, chatID, text)
}

// SendTextToUser sends a text message to a user's private chat
func (c *Client) SendTextToUser(ctx context.Context, openID, text string) error {
	return c.create(ctx, larkim.ReceiveIdTypeOpenId, openID, text)
}

func (c *Client) create(ctx context.Context, idType, receiveID, text string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(idType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}
	if resp.Data != nil {
		c.rememberSent(strVal(resp.Data.MessageId))
	}

	c.logger.Debug("message sent", "receive_id", receiveID)
	return nil
}

// ReplyText sends text as a reply quoting messageID
func (c *Client) ReplyText(ctx context.Context, messageID, text string) error {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("reply message error: %s", resp.Msg)
	}
	if resp.Data != nil {
		c.rememberSent(strVal(resp.Data.MessageId))
	}

	c.logger.Debug("reply sent", "quote", messageID)
	return nil
}

// IsOwnMessage reports whether msgID was sent by this client recently
func (c *Client) IsOwnMessage(msgID string) bool {
	if msgID == "" {
		return false
	}
	c.sentMu.Lock()
	defer c.sentMu.Unlock()
	_, ok := c.sentIDs[msgID]
	return ok
}

func (c *Client) rememberSent(msgID string) {
	if msgID == "" {
		return
	}
	c.sentMu.Lock()
	defer c.sentMu.Unlock()

	now := time.Now()
	c.sentIDs[msgID] = now
	if len(c.sentIDs) <= sentIDCap {
		return
	}
	cutoff := now.Add(-sentIDTTL)
	for id, ts := range c.sentIDs {
		if ts.Before(cutoff) {
			delete(c.sentIDs, id)
		}
	}
}

// ========== Chat Info ==========

// GetChatMembers lists the members of a chat
func (c *Client) GetChatMembers(ctx context.Context, chatID string) ([]*ChatMember, error) {
	var members []*ChatMember
	pageToken := ""

	for {
		builder := larkim.NewGetChatMembersReqBuilder().
			ChatId(chatID).
			MemberIdType("open_id").
			PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("get chat members error: %s", resp.Msg)
		}
		if resp.Data == nil {
			break
		}

		for _, item := range resp.Data.Items {
			members = append(members, &ChatMember{
				MemberID: strVal(item.MemberId),
				Name:     strVal(item.Name),
			})
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	return members, nil
}

func strVal(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

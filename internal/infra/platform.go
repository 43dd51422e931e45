package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"session-key-agent/config"
	"session-key-agent/internal/domain"
	"session-key-agent/internal/protocol"
)

// PlatformHandler はプラットフォームからの受信メッセージの配送先。
// SessionServiceが実装する。
type PlatformHandler interface {
	OnApplicationStateChanged(ctx context.Context, newState domain.ApplicationState) error
	HandleAck(ctx context.Context, ack protocol.Ack) error
	HandleEncryptedEvent(ctx context.Context, event protocol.DataPresentEvent) ([]byte, error)
}

// PlatformClient はプラットフォームとのwebsocket接続を保持し、
// ディレクティブ送信と受信メッセージの配送を行う。
// setupディレクティブの応答期限の監視はこのクライアントが担い、
// 期限切れはTIMEOUTコードの応答として合成する。
type PlatformClient struct {
	url        string
	token      string
	conn       *websocket.Conn
	handler    PlatformHandler
	ackTimeout time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer

	done      chan struct{}
	closeOnce sync.Once
}

// NewPlatformClient は未接続のPlatformClientを生成する。
// SessionServiceが送信先としてこのクライアントを参照し、受信メッセージの
// 配送先はConnectで渡すため、生成と接続を分けている。
func NewPlatformClient(cfg *config.Config) *PlatformClient {
	return &PlatformClient{
		url:        cfg.PlatformWSURL,
		token:      cfg.PlatformToken,
		ackTimeout: cfg.AckTimeout,
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
}

// Connect はプラットフォームへ接続し、受信ループを開始する。
func (c *PlatformClient) Connect(ctx context.Context, handler PlatformHandler) error {
	if c.url == "" {
		return fmt.Errorf("PLATFORM_WS_URL is not set")
	}

	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = map[string][]string{
			"Authorization": {"Bearer " + c.token},
		}
	}

	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return fmt.Errorf("platform websocket connect: %w", err)
	}

	c.conn = conn
	c.handler = handler
	go c.readLoop()

	return nil
}

// SendDirective はディレクティブをプラットフォームへ送信する。
// setupディレクティブには応答期限タイマーを張る。
func (c *PlatformClient) SendDirective(ctx context.Context, directive protocol.Directive) error {
	if c.conn == nil {
		return fmt.Errorf("platform connection not established")
	}
	select {
	case <-c.done:
		return fmt.Errorf("platform connection closed")
	default:
	}

	if err := wsjson.Write(ctx, c.conn, directive); err != nil {
		return fmt.Errorf("sending %s directive: %w", directive.Directive, err)
	}

	if directive.Directive == protocol.DirectiveSetup {
		c.armAckTimer(directive.Meta.RequestID)
	}
	return nil
}

// Done は接続の終了を通知するチャネルを返す。
func (c *PlatformClient) Done() <-chan struct{} {
	return c.done
}

// Close は接続を閉じる。二重呼び出しは無害。
func (c *PlatformClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for id, timer := range c.timers {
			timer.Stop()
			delete(c.timers, id)
		}
		c.mu.Unlock()
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "agent shutdown")
		}
	})
	return nil
}

// armAckTimer は応答期限タイマーを張る。期限切れでTIMEOUT応答を合成する。
func (c *PlatformClient) armAckTimer(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.timers[requestID] = time.AfterFunc(c.ackTimeout, func() {
		c.mu.Lock()
		delete(c.timers, requestID)
		c.mu.Unlock()

		ctx := context.Background()
		slog.WarnContext(ctx, "setup ack timed out", "request_id", requestID)
		if err := c.handler.HandleAck(ctx, protocol.Ack{
			RequestID:   requestID,
			Code:        protocol.AckTimeout,
			Description: "acknowledgment did not arrive in time",
		}); err != nil {
			slog.ErrorContext(ctx, "setup failed", "request_id", requestID, "error", err)
		}
	})
}

// disarmAckTimer は応答が届いたリクエストのタイマーを解除する。
func (c *PlatformClient) disarmAckTimer(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.timers[requestID]; ok {
		timer.Stop()
		delete(c.timers, requestID)
	}
}

// readLoop は受信メッセージを読み取り、種別ごとにハンドラへ配送する。
func (c *PlatformClient) readLoop() {
	ctx := context.Background()
	for {
		var envelope protocol.Envelope
		if err := wsjson.Read(ctx, c.conn, &envelope); err != nil {
			select {
			case <-c.done:
			default:
				slog.ErrorContext(ctx, "platform connection lost", "error", err)
				c.Close()
			}
			return
		}
		c.dispatch(ctx, envelope)
	}
}

func (c *PlatformClient) dispatch(ctx context.Context, envelope protocol.Envelope) {
	switch envelope.Type {
	case protocol.MessageAck:
		if envelope.Ack == nil {
			slog.WarnContext(ctx, "ack message without body")
			return
		}
		c.disarmAckTimer(envelope.Ack.RequestID)
		if err := c.handler.HandleAck(ctx, *envelope.Ack); err != nil {
			slog.ErrorContext(ctx, "setup failed",
				"request_id", envelope.Ack.RequestID,
				"code", envelope.Ack.Code,
				"error", err,
			)
		}

	case protocol.MessageDataPresent:
		if envelope.DataPresent == nil {
			slog.WarnContext(ctx, "dataPresent message without body")
			return
		}
		// 平文はSessionServiceのシンクへ渡される。ここでは扱わない。
		if _, err := c.handler.HandleEncryptedEvent(ctx, *envelope.DataPresent); err != nil {
			slog.ErrorContext(ctx, "encrypted event rejected",
				"component_id", envelope.DataPresent.ComponentID,
				"error", err,
			)
		}

	case protocol.MessageStateChange:
		if envelope.StateChange == nil {
			slog.WarnContext(ctx, "stateChange message without body")
			return
		}
		if err := c.handler.OnApplicationStateChanged(ctx, domain.ApplicationState(envelope.StateChange.State)); err != nil {
			slog.ErrorContext(ctx, "state transition failed",
				"state", envelope.StateChange.State,
				"error", err,
			)
		}

	default:
		slog.WarnContext(ctx, "unknown message type", "type", envelope.Type)
	}
}

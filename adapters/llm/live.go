package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mpkisan/kisan-ai/server/domain/repositories"
)

// geminiLiveStream adapts a genai live session to repositories.LiveStream.
type geminiLiveStream struct {
	session *genai.Session
	closed  atomic.Bool
}

func (s *geminiLiveStream) SendAudio(frame []byte, mimeType string) error {
	if s.closed.Load() {
		return net.ErrClosed
	}
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: frame, MIMEType: mimeType},
	})
}

func (s *geminiLiveStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.session.Close()
}

// Connect opens a native-audio live session. Callbacks run on the receive
// goroutine; OnOpen fires when the server acknowledges the setup message.
func (g *GeminiLLM) Connect(ctx context.Context, config repositories.LiveConfig, callbacks repositories.LiveCallbacks) (repositories.LiveStream, error) {
	client, err := g.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if config.SystemInstruction != "" {
		connectConfig.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}
	if config.Voice != "" {
		connectConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.Voice},
			},
		}
	}

	session, err := client.Live.Connect(ctx, config.Model, connectConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}
	stream := &geminiLiveStream{session: session}
	g.logger.Info("Live session connected", zap.String("model", config.Model), zap.String("voice", config.Voice))

	go g.receiveLoop(stream, callbacks)
	return stream, nil
}

func (g *GeminiLLM) receiveLoop(stream *geminiLiveStream, callbacks repositories.LiveCallbacks) {
	for {
		msg, err := stream.session.Receive()
		if err != nil {
			switch {
			case stream.closed.Load():
				// Closed locally; the owner already knows.
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway), errors.Is(err, net.ErrClosed):
				g.logger.Info("Live session closed by server", zap.Error(err))
				if callbacks.OnClose != nil {
					callbacks.OnClose()
				}
			default:
				g.logger.Error("Live session receive failed", zap.Error(err))
				if callbacks.OnError != nil {
					callbacks.OnError(err)
				}
			}
			return
		}
		dispatch(msg, callbacks)
	}
}

// dispatch turns one server message into callback invocations.
func dispatch(msg *genai.LiveServerMessage, callbacks repositories.LiveCallbacks) {
	if msg == nil {
		return
	}
	if msg.SetupComplete != nil && callbacks.OnOpen != nil {
		callbacks.OnOpen()
	}
	content := msg.ServerContent
	if content == nil || callbacks.OnMessage == nil {
		return
	}
	if content.Interrupted {
		callbacks.OnMessage(repositories.LiveMessage{Interrupted: true})
	}
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			callbacks.OnMessage(repositories.LiveMessage{
				Audio:    part.InlineData.Data,
				MIMEType: part.InlineData.MIMEType,
			})
		}
	}
	if content.TurnComplete {
		callbacks.OnMessage(repositories.LiveMessage{TurnComplete: true})
	}
}

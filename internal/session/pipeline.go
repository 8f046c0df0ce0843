package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/voicereply/voice-service/internal/audiocache"
	"github.com/voicereply/voice-service/internal/quota"
	"github.com/voicereply/voice-service/internal/styles"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
)

// Synthesizer renders text as audio in a given style.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, style *styles.Style) ([]byte, error)
}

// Charger is the quota ledger capability the pipeline needs.
type Charger interface {
	Charge(ctx context.Context, tenantID string, characters int, contextText, styleKey string) (quota.Result, error)
}

// Pipeline turns a tenant's self-authored reply into a styled voice note:
// parse the instruction, charge quota, serve from cache or synthesize,
// send the audio back into the chat. Every failure is contained per
// message; the session stays healthy.
type Pipeline struct {
	ledger Charger
	cache  *audiocache.Cache
	synth  Synthesizer
}

func NewPipeline(ledger Charger, cache *audiocache.Cache, synth Synthesizer) *Pipeline {
	return &Pipeline{ledger: ledger, cache: cache, synth: synth}
}

// Handle processes one inbound message. A nil return does not mean audio
// was sent; non-instruction messages are silently ignored.
func (p *Pipeline) Handle(ctx context.Context, tenantID string, handle Handle, msg ChatMessage) error {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}

	lowered := strings.ToLower(text)
	if lowered == "voice help" || lowered == "/voice help" {
		return handle.Send(ctx, msg.ChatID, OutboundMessage{Text: styles.Help()})
	}

	// Instructions arrive as replies; the quoted message is what gets
	// voiced.
	quoted := strings.TrimSpace(msg.QuotedText)
	if quoted == "" {
		return nil
	}

	instr := styles.Resolve(text)
	if instr == nil {
		// Not an instruction. Plain replies pass through untouched.
		return nil
	}

	logger.Base().Info("Processing voice request",
		zap.String("tenant_id", tenantID),
		zap.String("style", instr.Style.Key),
		zap.Int("characters", utf8.RuneCountInString(quoted)))

	result, err := p.ledger.Charge(ctx, tenantID, utf8.RuneCountInString(quoted), quoted, instr.Style.Key)
	if err != nil {
		return fmt.Errorf("quota charge failed: %w", err)
	}
	if !result.Allowed {
		notice := fmt.Sprintf("Daily voice limit reached. You have %d characters left today.", result.Remaining)
		return handle.Send(ctx, msg.ChatID, OutboundMessage{Text: notice})
	}

	audio := p.cachedAudio(ctx, quoted, instr.Style.Key)
	if audio == nil {
		audio, err = p.synth.Synthesize(ctx, quoted, instr.Style)
		if err != nil {
			logger.Base().Error("Synthesis failed",
				zap.String("tenant_id", tenantID),
				zap.String("style", instr.Style.Key), zap.Error(err))
			notice := fmt.Sprintf("Sorry, I couldn't generate the %s voice. Please try again.", instr.Style.Name)
			return handle.Send(ctx, msg.ChatID, OutboundMessage{Text: notice})
		}
		if p.cache != nil {
			if err := p.cache.Put(ctx, quoted, instr.Style.Key, audio); err != nil {
				logger.Base().Warn("Failed to cache synthesized audio", zap.Error(err))
			}
		}
	}

	return handle.Send(ctx, msg.ChatID, OutboundMessage{Audio: audio})
}

// cachedAudio treats every cache failure as a miss. A nil cache means
// caching is disabled and every lookup misses.
func (p *Pipeline) cachedAudio(ctx context.Context, text, styleKey string) []byte {
	if p.cache == nil {
		return nil
	}
	audio, err := p.cache.Get(ctx, text, styleKey)
	if err != nil {
		var ioErr *audiocache.IOError
		if errors.As(err, &ioErr) {
			logger.Base().Warn("Cache read failed, falling through to synthesis", zap.Error(err))
			return nil
		}
		return nil
	}
	return audio
}

package llm

import (
	"strings"

	"google.golang.org/genai"

	"github.com/mpkisan/kisan-ai/server/domain/entities"
)

// toContents lays out prior turns followed by the current user turn.
func toContents(envelope entities.Envelope) []*genai.Content {
	contents := make([]*genai.Content, 0, len(envelope.History)+1)
	for _, msg := range envelope.History {
		if msg.Text == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if msg.Role == entities.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, role))
	}

	parts := make([]*genai.Part, 0, len(envelope.Parts))
	for _, p := range envelope.Parts {
		if p.IsInline() {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
		} else {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

func toGenerateConfig(envelope entities.Envelope) *genai.GenerateContentConfig {
	opts := envelope.Options
	config := &genai.GenerateContentConfig{}

	if envelope.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(envelope.SystemInstruction, genai.RoleUser)
	}
	if opts.GroundWithSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	// Structured output cannot be combined with the search tool.
	if opts.JSONOutput && !opts.GroundWithSearch {
		config.ResponseMIMEType = "application/json"
	}
	if opts.ThinkingBudget > 0 {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget:  genai.Ptr(opts.ThinkingBudget),
			IncludeThoughts: true,
		}
	}
	if opts.AudioOutput {
		config.ResponseModalities = []string{string(genai.ModalityAudio)}
		if opts.Voice != "" {
			config.SpeechConfig = &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: opts.Voice},
				},
			}
		}
	}
	if opts.ImageAspectRatio != "" || opts.ImageSize != "" {
		config.ImageConfig = &genai.ImageConfig{
			AspectRatio: opts.ImageAspectRatio,
			ImageSize:   opts.ImageSize,
		}
	}
	return config
}

// fromResponse reads the first candidate: text, thought summary, inline
// parts and web grounding sources.
func fromResponse(resp *genai.GenerateContentResponse) entities.GenerateResponse {
	var out entities.GenerateResponse
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return out
	}
	cand := resp.Candidates[0]

	if cand.Content != nil {
		var text, thoughts strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			switch {
			case part.InlineData != nil:
				out.Inline = append(out.Inline, entities.InlinePart(part.InlineData.Data, part.InlineData.MIMEType))
			case part.Thought:
				thoughts.WriteString(part.Text)
			default:
				text.WriteString(part.Text)
			}
		}
		out.Text = text.String()
		out.Thoughts = thoughts.String()
	}

	if gm := cand.GroundingMetadata; gm != nil {
		seen := make(map[string]bool)
		for _, chunk := range gm.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			title := chunk.Web.Title
			if title == "" {
				title = chunk.Web.URI
			}
			out.Sources = append(out.Sources, entities.Source{Title: title, URI: chunk.Web.URI})
		}
	}
	return out
}

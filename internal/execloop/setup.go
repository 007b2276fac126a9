package execloop

import (
	"encoding/base64"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/nexuscore/agentcore/pkg/models"
)

// SelectTools computes CORE_TOOLS ∪ routerSelected ∪ sessionDynamic; if the
// union has fewer than 3 names, all available tools are bound instead
// (§4.7 setup).
func SelectTools(core, routerSelected, sessionDynamic, allAvailable []string) []string {
	set := map[string]bool{}
	var union []string
	add := func(names []string) {
		for _, n := range names {
			if n != "" && !set[n] {
				set[n] = true
				union = append(union, n)
			}
		}
	}
	add(core)
	add(routerSelected)
	add(sessionDynamic)

	if len(union) < 3 {
		return append([]string(nil), allAvailable...)
	}
	return union
}

// NormalizeModelID strips a "models/" prefix and collapses any value
// containing "default" to "" (meaning: let the provider pick its default),
// per §4.7's alias-normalization rule.
func NormalizeModelID(modelID string) string {
	modelID = strings.TrimPrefix(modelID, "models/")
	if strings.Contains(strings.ToLower(modelID), "default") {
		return ""
	}
	return modelID
}

// BindWithFallback binds tools to model, falling back to a minimal subset on
// first failure and finally to an unbound model on second failure, per
// §4.7's "one emergency fallback... on second failure, run unbound".
func BindWithFallback(model ChatModel, tools []ToolSpec, minimal []ToolSpec) (bound ChatModel, unbound ChatModel) {
	unbound = model
	if b, err := model.BindTools(tools); err == nil {
		return b, unbound
	}
	if b, err := model.BindTools(minimal); err == nil {
		return b, unbound
	}
	return model, unbound
}

// imageExtToMime is consulted when mime.TypeByExtension doesn't resolve one
// (e.g. a minimal build environment without a populated mime.types).
var imageExtToMime = map[string]string{
	".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg",
	".gif": "image/gif", ".webp": "image/webp",
}

// BuildUserMessage builds the current-turn User message: plain text if no
// images, otherwise a multi-part message with a text Part followed by one
// image Part per entry. Local paths are base64-encoded with a guessed mime
// type; http(s) URLs are passed through as references.
func BuildUserMessage(prompt string, images []string) models.Message {
	if len(images) == 0 {
		return models.NewUserText(prompt)
	}

	parts := []models.Part{{Type: models.PartText, Text: prompt}}
	for _, img := range images {
		if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
			parts = append(parts, models.Part{Type: models.PartImageRef, Ref: img})
			continue
		}
		data, err := os.ReadFile(img)
		if err != nil {
			parts = append(parts, models.Part{Type: models.PartImageRef, Ref: "[IMAGE UNAVAILABLE: " + img + "]"})
			continue
		}
		ext := strings.ToLower(filepath.Ext(img))
		m := mime.TypeByExtension(ext)
		if m == "" {
			m = imageExtToMime[ext]
		}
		if m == "" {
			m = "application/octet-stream"
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		parts = append(parts, models.Part{Type: models.PartImageRef, Ref: encoded, Mime: m})
	}
	return models.Message{Role: models.RoleUser, Parts: parts}
}

// PatchSystemNote appends a system note to the leading System message (or
// prepends a new one if absent), announcing the newly rotated provider/model
// per §4.7's recovery step.
func PatchSystemNote(messages []models.Message, provider, modelID string) []models.Message {
	note := "\n\n[SYSTEM NOTE: You are running on " + provider + "/" + modelID + ". Respond concisely.]"
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		out := append([]models.Message(nil), messages...)
		out[0].Content = out[0].Content + note
		return out
	}
	return append([]models.Message{models.NewSystem(note)}, messages...)
}

// ReduceToLast4 keeps every leading System message plus the last 4
// non-system messages, per §4.7's REDUCE_CONTEXT recovery step.
func ReduceToLast4(messages []models.Message) []models.Message {
	var systemMsgs, rest []models.Message
	i := 0
	for ; i < len(messages) && messages[i].Role == models.RoleSystem; i++ {
		systemMsgs = append(systemMsgs, messages[i])
	}
	rest = messages[i:]
	if len(rest) > 4 {
		rest = rest[len(rest)-4:]
	}
	return append(systemMsgs, rest...)
}

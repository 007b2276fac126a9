package execloop

import (
	"runtime"
	"strings"
)

// SystemPromptSections holds the pre-rendered text for each ordered section
// of the assembled system prompt. Any section left empty is omitted.
// Grounded on app/core/identity.py's AgentIdentity.to_system_prompt()
// part-joining idiom, generalized with the system-info and memory-context
// sections app/core/system_info.py and memoryctx.Block contribute.
type SystemPromptSections struct {
	SystemInfo         string
	Identity           string
	Skills             string
	MemoryInstructions string
	ToolProtocol       string
	Personality        string
	ChannelContext     string
	MemoryContext      string
}

// HostSystemInfo renders a one-line OS/arch summary for the system-info
// section, the Go-native equivalent of platform.uname() in
// app/core/system_info.py.
func HostSystemInfo() string {
	return "Host: " + runtime.GOOS + "/" + runtime.GOARCH
}

// BuildSystemPrompt joins the non-empty sections, in order, with blank
// lines between them.
func BuildSystemPrompt(s SystemPromptSections) string {
	parts := []string{
		s.SystemInfo,
		s.Identity,
		s.Skills,
		s.MemoryInstructions,
		s.ToolProtocol,
		s.Personality,
		s.ChannelContext,
		s.MemoryContext,
	}
	var nonEmpty []string
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

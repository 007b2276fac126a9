package execloop

import "testing"

func TestBuildSystemPromptOmitsEmptySections(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptSections{
		Identity:      "You are Nexus.",
		MemoryContext: "",
		Personality:   "  ",
	})
	if got != "You are Nexus." {
		t.Errorf("BuildSystemPrompt() = %q, want only identity section", got)
	}
}

func TestBuildSystemPromptOrdersSections(t *testing.T) {
	got := BuildSystemPrompt(SystemPromptSections{
		SystemInfo: "info",
		Identity:   "identity",
		ToolProtocol: "protocol",
	})
	want := "info\n\nidentity\n\nprotocol"
	if got != want {
		t.Errorf("BuildSystemPrompt() = %q, want %q", got, want)
	}
}

package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestPersistedIDsAreUUIDs(t *testing.T) {
	g := New()

	ids := map[string]string{
		"memory":       g.GenerateMemoryID(),
		"intent":       g.GenerateIntentID(),
		"plan":         g.GeneratePlanID(),
		"result":       g.GenerateResultID(),
		"turn":         g.GenerateTurnID(),
		"conversation": g.GenerateConversationID(),
		"manifest":     g.GenerateManifestID(),
		"execution":    g.GenerateExecutionID(),
		"volume":       g.GenerateVolumeID(),
		"discovery":    g.GenerateDiscoveryID(),
	}

	for name, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			t.Errorf("%s id %q is not a valid UUID: %v", name, id, err)
		}
	}
}

func TestSessionIDPrefix(t *testing.T) {
	g := New()
	id := g.GenerateSessionID()
	if !strings.HasPrefix(id, "ss_") {
		t.Errorf("session id %q missing ss_ prefix", id)
	}
	if len(id) != len("ss_")+21 {
		t.Errorf("session id %q has unexpected length %d", id, len(id))
	}
}

func TestContainerNamePrefix(t *testing.T) {
	g := New()
	name := g.GenerateContainerName()
	if !strings.HasPrefix(name, "slovo-exec-") {
		t.Errorf("container name %q missing slovo-exec- prefix", name)
	}
}

func TestIDsAreUnique(t *testing.T) {
	g := New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := g.GenerateMemoryID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

// Package id generates identifiers for persisted and runtime entities.
// Persisted entities use random UUIDs so the vector store can use the
// same value as its point id. Ephemeral runtime names use nanoid with a
// short prefix for readability in logs.
package id

import (
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

func (g *Generator) generateNano(prefix string, size int) string {
	id, err := gonanoid.New(size)
	if err != nil {
		return prefix + "_fallback"
	}
	return prefix + "_" + id
}

func (g *Generator) GenerateMemoryID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateIntentID() string {
	return uuid.NewString()
}

func (g *Generator) GeneratePlanID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateResultID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateTurnID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateConversationID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateManifestID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateExecutionID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateVolumeID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateDiscoveryID() string {
	return uuid.NewString()
}

func (g *Generator) GenerateSessionID() string {
	return g.generateNano("ss", 21)
}

// GenerateContainerName returns a Docker-safe container name. nanoid's
// default alphabet includes '-' and '_', both valid in container names.
func (g *Generator) GenerateContainerName() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return "slovo-exec-fallback"
	}
	return "slovo-exec-" + id
}

package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PersonaFile is the optional override for the built-in persona, read from the config dir.
const PersonaFile = "PERSONA.md"

// DefaultPersonaTemplate is the built-in sales assistant persona.
const DefaultPersonaTemplate = `You are a friendly and helpful AI sales assistant named {{.Name}} for an e-commerce store called '{{.Store}}' that specializes in genuine Apple products. Your goal is to help customers with their questions about products, promotions, orders and policies.
- Be polite, professional, and concise.
- If you don't know the answer, politely say that you don't have that information.
- Do not make up product details or prices. Use the tools to look up products, orders, promotions and store policies.
- Your persona is knowledgeable and enthusiastic about Apple products.`

// GeneratePersona fills the persona template. Empty values fall back to the defaults.
func GeneratePersona(name, store string) string {
	if name == "" {
		name = "Táo"
	}
	if store == "" {
		store = "Shop Táo Ngon"
	}
	p := strings.ReplaceAll(DefaultPersonaTemplate, "{{.Name}}", name)
	return strings.ReplaceAll(p, "{{.Store}}", store)
}

// WelcomeMessage is the greeting shown before the first user message. It is
// not part of the conversation history.
func WelcomeMessage(name string) string {
	if name == "" {
		name = "Táo"
	}
	return "Hello! My name is " + name + ". I'm your AI sales assistant for Apple products. How can I help you today?"
}

// LoadPersona returns the contents of PERSONA.md in configDir if present,
// otherwise the generated default. A read error still yields the default.
func LoadPersona(configDir, name, store string) (string, error) {
	def := GeneratePersona(name, store)
	if configDir == "" {
		return def, nil
	}
	content, err := os.ReadFile(filepath.Join(configDir, PersonaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("read %s: %w", PersonaFile, err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return def, nil
	}
	return strings.TrimSpace(string(content)), nil
}

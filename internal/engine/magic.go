package engine

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MagicHandler executes one magic command with the text following the command
// name as its argument.
type MagicHandler func(ctx context.Context, args string, out Output) (*Result, error)

// MagicSet is an explicit registration table of magic commands for one
// engine, built at startup. Command discovery is by registration only; there
// is no runtime introspection.
type MagicSet struct {
	prefix   string
	mu       sync.RWMutex
	handlers map[string]MagicHandler
	help     map[string]string
}

// NewMagicSet creates an empty table using prefix (conventionally "%") to
// mark magic lines.
func NewMagicSet(prefix string) *MagicSet {
	if prefix == "" {
		prefix = "%"
	}
	return &MagicSet{
		prefix:   prefix,
		handlers: make(map[string]MagicHandler),
		help:     make(map[string]string),
	}
}

// Prefix returns the magic line prefix.
func (m *MagicSet) Prefix() string { return m.prefix }

// Register installs a magic command. The last registration for a name wins.
func (m *MagicSet) Register(name, helpText string, handler MagicHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = handler
	m.help[name] = helpText
}

// Lookup returns the handler for a command name.
func (m *MagicSet) Lookup(name string) (MagicHandler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	handler, ok := m.handlers[name]
	return handler, ok
}

// Help returns the registered help text for a command name.
func (m *MagicSet) Help(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	text, ok := m.help[name]
	return text, ok
}

// Names returns all registered command names, sorted, prefixed. Used by
// completion.
func (m *MagicSet) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, m.prefix+name)
	}
	sort.Strings(names)
	return names
}

// ChunkKind classifies one chunk of a cell.
type ChunkKind int

const (
	// ChunkCode is plain code handed to the engine.
	ChunkCode ChunkKind = iota
	// ChunkMagic is a magic command invocation.
	ChunkMagic
	// ChunkMagicHelp asks for the help text of a magic command.
	ChunkMagicHelp
	// ChunkHelp asks for help on a symbol.
	ChunkHelp
)

// Chunk is one classified piece of a cell. For magic chunks Name is the
// command and Args the rest of the line; for help chunks Name is the topic.
type Chunk struct {
	Kind ChunkKind
	Text string
	Name string
	Args string
}

// Split divides a cell into chunks. A new chunk starts at every
// magic-prefixed line; classification scans only the first non-blank line of
// each chunk. A magic line with a trailing "?" is a magic-help query; this
// takes precedence over bare help detection. A non-magic first line with a
// leading or trailing "?" is a help query on the remaining text.
func (m *MagicSet) Split(code string) []Chunk {
	lines := strings.Split(code, "\n")
	var chunks []Chunk
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, m.classify(strings.Join(current, "\n")))
		current = nil
	}

	started := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, m.prefix) && started {
			flush()
		}
		current = append(current, line)
		if trimmed != "" {
			started = true
		}
	}
	flush()
	return chunks
}

func (m *MagicSet) classify(text string) Chunk {
	first := ""
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			first = strings.TrimSpace(line)
			break
		}
	}
	switch {
	case strings.HasPrefix(first, m.prefix):
		rest := strings.TrimPrefix(first, m.prefix)
		if strings.HasSuffix(rest, "?") {
			return Chunk{
				Kind: ChunkMagicHelp,
				Text: text,
				Name: strings.TrimSpace(strings.TrimSuffix(rest, "?")),
			}
		}
		name, args := rest, ""
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			name, args = rest[:i], strings.TrimSpace(rest[i+1:])
		}
		return Chunk{Kind: ChunkMagic, Text: text, Name: name, Args: args}
	case strings.HasSuffix(first, "?"):
		return Chunk{Kind: ChunkHelp, Text: text, Name: strings.TrimSpace(strings.TrimSuffix(first, "?"))}
	case strings.HasPrefix(first, "?"):
		return Chunk{Kind: ChunkHelp, Text: text, Name: strings.TrimSpace(strings.TrimPrefix(first, "?"))}
	default:
		return Chunk{Kind: ChunkCode, Text: text}
	}
}

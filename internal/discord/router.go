package discord

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc handles a slash command or component interaction.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// CommandRouter dispatches incoming interactions to registered handlers by
// command name, component custom ID, or modal custom ID. It is
// domain-agnostic: command packages register themselves with it at startup.
type CommandRouter struct {
	mu sync.RWMutex

	definitions []*discordgo.ApplicationCommand
	commands    map[string]HandlerFunc // "play" or "queue/clear"
	autocomplete map[string]HandlerFunc

	components      map[string]HandlerFunc // exact custom ID match
	componentPrefix map[string]HandlerFunc // custom ID prefix match

	modals map[string]HandlerFunc
}

// NewCommandRouter creates an empty CommandRouter.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:        make(map[string]HandlerFunc),
		autocomplete:    make(map[string]HandlerFunc),
		components:      make(map[string]HandlerFunc),
		componentPrefix: make(map[string]HandlerFunc),
		modals:          make(map[string]HandlerFunc),
	}
}

// RegisterCommand adds def to the set of application commands registered
// with Discord on startup.
func (r *CommandRouter) RegisterCommand(def *discordgo.ApplicationCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions = append(r.definitions, def)
}

// RegisterHandler binds key (a top-level command name, or
// "command/subcommand" for grouped commands) to fn.
func (r *CommandRouter) RegisterHandler(key string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = fn
}

// RegisterAutocomplete binds key to an autocomplete handler.
func (r *CommandRouter) RegisterAutocomplete(key string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autocomplete[key] = fn
}

// RegisterComponent binds an exact message-component custom ID to fn.
func (r *CommandRouter) RegisterComponent(customID string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[customID] = fn
}

// RegisterComponentPrefix binds any message-component custom ID starting
// with prefix to fn — used for components whose ID carries dynamic state
// (e.g. "queue-remove:<track-id>").
func (r *CommandRouter) RegisterComponentPrefix(prefix string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.componentPrefix[prefix] = fn
}

// RegisterModal binds an exact modal custom ID to fn.
func (r *CommandRouter) RegisterModal(customID string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modals[customID] = fn
}

// ApplicationCommands returns every command definition registered so far,
// for a bulk overwrite on startup.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*discordgo.ApplicationCommand, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Handle dispatches i to the handler registered for its type and key.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.dispatchCommand(s, i, r.commandsSnapshot())
	case discordgo.InteractionApplicationCommandAutocomplete:
		r.dispatchCommand(s, i, r.autocompleteSnapshot())
	case discordgo.InteractionMessageComponent:
		r.dispatchComponent(s, i)
	case discordgo.InteractionModalSubmit:
		r.dispatchModal(s, i)
	}
}

func (r *CommandRouter) commandsSnapshot() map[string]HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands
}

func (r *CommandRouter) autocompleteSnapshot() map[string]HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.autocomplete
}

func (r *CommandRouter) dispatchCommand(s *discordgo.Session, i *discordgo.InteractionCreate, handlers map[string]HandlerFunc) {
	data := i.ApplicationCommandData()
	key := interactionKey(data)

	r.mu.RLock()
	fn, ok := handlers[key]
	r.mu.RUnlock()
	if !ok {
		r.mu.RLock()
		fn, ok = handlers[data.Name]
		r.mu.RUnlock()
	}
	if !ok {
		slog.Warn("discord: no handler registered", "key", key)
		return
	}
	fn(s, i)
}

// interactionKey builds "command" or "command/subcommand" from the
// interaction's option tree, descending into a subcommand group if present.
func interactionKey(data discordgo.ApplicationCommandInteractionData) string {
	opts := data.Options
	var parts []string
	parts = append(parts, data.Name)
	for len(opts) > 0 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommand ||
		opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
		parts = append(parts, opts[0].Name)
		opts = opts[0].Options
	}
	return strings.Join(parts, "/")
}

func (r *CommandRouter) dispatchComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	r.mu.RLock()
	fn, ok := r.components[customID]
	r.mu.RUnlock()
	if ok {
		fn(s, i)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for prefix, h := range r.componentPrefix {
		if strings.HasPrefix(customID, prefix) {
			h(s, i)
			return
		}
	}
	slog.Warn("discord: no component handler registered", "custom_id", customID)
}

func (r *CommandRouter) dispatchModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.ModalSubmitData().CustomID
	r.mu.RLock()
	fn, ok := r.modals[customID]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("discord: no modal handler registered", "custom_id", customID)
		return
	}
	fn(s, i)
}

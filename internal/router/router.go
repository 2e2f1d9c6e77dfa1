// Package router implements the command router (spec §4.9, C9): exact-
// match SMS commands dispatched directly, everything else routed to a
// natural-language handler backed by the oracle. Grounded on the
// teacher's infrastructure/api command-dispatch pattern, generalized
// from RPC method routing to a fixed human command vocabulary.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/orchestratord/orchestratord/internal/fuzzy"
	"github.com/orchestratord/orchestratord/internal/oracle"
	"github.com/orchestratord/orchestratord/internal/redaction"
)

// Memory is the short-term conversation store the router owns (spec §3
// "Conversation entry"): redacted on write, pruned by TTL/count cap.
type Memory interface {
	PushUser(text string)
	PushAssistant(text string)
	Recent(n int) []Turn
}

// Turn is one conversation entry.
type Turn struct {
	Role string
	Text string
}

// Handlers groups the side-effecting callbacks exact commands dispatch
// to. Kept as plain function fields (rather than a fat interface) since
// each command needs a different, narrow capability.
type Handlers struct {
	Status         func(ctx context.Context) string
	Pause          func(ctx context.Context) string
	Resume         func(ctx context.Context) string
	AIOn           func(ctx context.Context) string
	AIOff          func(ctx context.Context) string
	AILevel        func(ctx context.Context, level string) string
	AIThink        func(ctx context.Context) string
	AIExplain      func(ctx context.Context) string
	Priority       func(ctx context.Context) string
	Start          func(ctx context.Context, project string) string
	Stop           func(ctx context.Context, project string) string
	Restart        func(ctx context.Context, project string) string
	Reply          func(ctx context.Context, text string) string
	Remind         func(ctx context.Context, text string) string
	KnownProjects  func() []string
	BuildNLContext func(ctx context.Context) string
	SetReminder    func(ctx context.Context, reminderJSON string) error
}

const helpText = "Commands: help, status, pause, resume, ai on|off|level <l>|think|explain, priority, start <project>, stop <project>, restart <project>, reply <text>, remind <text>. Anything else is handled conversationally."

// Router parses inbound SMS text and dispatches it.
type Router struct {
	h       Handlers
	gateway *oracle.Gateway
	memory  Memory
}

// NewRouter builds a Router.
func NewRouter(h Handlers, gateway *oracle.Gateway, memory Memory) *Router {
	return &Router{h: h, gateway: gateway, memory: memory}
}

// Route implements the ingestion contract: route(text) -> reply.
func (r *Router) Route(ctx context.Context, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return helpText
	}

	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), fields[0]))

	switch cmd {
	case "help":
		return helpText
	case "status":
		return call(ctx, r.h.Status)
	case "pause":
		return call(ctx, r.h.Pause)
	case "resume":
		return call(ctx, r.h.Resume)
	case "priority":
		return call(ctx, r.h.Priority)
	case "ai":
		return r.routeAI(ctx, fields[1:])
	case "start":
		return r.routeProject(ctx, rest, r.h.Start)
	case "stop":
		return r.routeProject(ctx, rest, r.h.Stop)
	case "restart":
		return r.routeProject(ctx, rest, r.h.Restart)
	case "reply":
		if r.h.Reply == nil {
			return "reply not available"
		}
		return r.h.Reply(ctx, rest)
	case "remind":
		if r.h.Remind == nil {
			return "reminders not available"
		}
		return r.h.Remind(ctx, rest)
	default:
		return r.routeNaturalLanguage(ctx, text)
	}
}

func (r *Router) routeAI(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: ai on|off|level <level>|think|explain"
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return call(ctx, r.h.AIOn)
	case "off":
		return call(ctx, r.h.AIOff)
	case "think":
		return call(ctx, r.h.AIThink)
	case "explain":
		return call(ctx, r.h.AIExplain)
	case "level":
		if len(args) < 2 || r.h.AILevel == nil {
			return "usage: ai level <observe|cautious|moderate|full>"
		}
		return r.h.AILevel(ctx, strings.ToLower(args[1]))
	default:
		return "usage: ai on|off|level <level>|think|explain"
	}
}

func (r *Router) routeProject(ctx context.Context, arg string, fn func(context.Context, string) string) string {
	if fn == nil {
		return "not available"
	}
	name := strings.TrimSpace(arg)
	if name == "" {
		return "usage: <command> <project>"
	}
	if r.h.KnownProjects != nil {
		if match, ok := matchProject(name, r.h.KnownProjects()); ok {
			name = match
		}
	}
	return fn(ctx, name)
}

// matchProject resolves name against known using Levenshtein distance
// within a length-proportional budget (spec §4.9).
func matchProject(name string, known []string) (string, bool) {
	for _, k := range known {
		if k == name {
			return k, true
		}
	}
	budget := fuzzy.Budget(len(name))
	best, bestDist := "", budget+1
	for _, k := range known {
		d := fuzzy.Distance(strings.ToLower(name), strings.ToLower(k))
		if d < bestDist {
			bestDist, best = d, k
		}
	}
	if best == "" || bestDist > budget {
		return "", false
	}
	return best, true
}

// reminderMarker is the literal marker the oracle embeds in an NL reply
// when it wants a reminder set (spec §4.9 step 4).
const reminderMarker = "REMINDER_JSON:"

func (r *Router) routeNaturalLanguage(ctx context.Context, text string) string {
	if r.memory != nil {
		r.memory.PushUser(text)
	}

	var promptCtx string
	if r.h.BuildNLContext != nil {
		promptCtx = r.h.BuildNLContext(ctx)
	}

	prompt := fmt.Sprintf("%s\n\nUser: %s", promptCtx, text)
	opts := oracle.Options{MaxTurns: 1, Model: oracle.ModelDefault, OutputFormat: oracle.FormatText, Timeout: 0}
	res := r.gateway.Query(ctx, oracle.Provider, prompt, opts)

	reply := res.Text
	if !res.OK() {
		reply = "sorry, I couldn't process that right now"
	}

	reply, reminderJSON := extractReminderMarker(reply)
	if reminderJSON != "" && r.h.SetReminder != nil {
		if err := r.h.SetReminder(ctx, reminderJSON); err != nil {
			reply += " (note: failed to set reminder)"
		}
	}

	reply = redaction.Redact(reply)

	if r.memory != nil {
		r.memory.PushAssistant(reply)
	}
	return reply
}

// extractReminderMarker finds the literal REMINDER_JSON:{...} marker,
// parses and strips it, returning the cleaned reply and the raw JSON
// payload (empty if absent). gjson-assisted balanced scan mirrors the
// oracle gateway's own parse-fallback approach.
func extractReminderMarker(reply string) (cleaned string, reminderJSON string) {
	idx := strings.Index(reply, reminderMarker)
	if idx == -1 {
		return reply, ""
	}
	rest := reply[idx+len(reminderMarker):]
	start := strings.IndexByte(rest, '{')
	if start == -1 {
		return reply, ""
	}
	depth := 0
	end := -1
	for i := start; i < len(rest); i++ {
		switch rest[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return reply, ""
	}
	candidate := rest[start : end+1]
	if !gjson.Valid(candidate) {
		return reply, ""
	}
	cleaned = strings.TrimSpace(reply[:idx] + rest[end+1:])
	return cleaned, candidate
}

func call(ctx context.Context, fn func(context.Context) string) string {
	if fn == nil {
		return "not available"
	}
	return fn(ctx)
}

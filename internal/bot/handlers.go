package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sjoeboo/commander/internal/adapter"
	"github.com/sjoeboo/commander/internal/filter"
	"github.com/sjoeboo/commander/internal/session"
	"github.com/sjoeboo/commander/internal/tmux"
)

const notAuthorizedText = "Not authorized. Use <code>/pair &lt;code&gt;</code> first.\n\n" +
	"Get a pairing code by running <code>commander pair</code> in the Commander CLI."

const helpText = `Available commands:
/start - Start the bot and get help
/help - Show help message
/pair - Pair with CLI using code: /pair <CODE>
/connect - Connect to project, tmux session, or create new: /connect <name> or /connect <path> -a <adapter> -n <name>
/connecttree - Connect with a new git worktree: /connecttree <alias> (alias /ct)
/session - Attach to a terminal session by exact name: /session <name>
/sessions - List tmux sessions
/disconnect - Disconnect from current project
/stop - Stop session (commits changes, ends tmux): /stop [session] (alias /s)
/send - Send message directly to session (bypasses AI interpretation): /send <message>
/status - Show current connection status
/list - List available projects (alias for /sessions)
/groupmode - Enable group mode for this supergroup
/topic - Create topic for session: /topic <session>
/topics - List topics and their sessions`

// handleCommand parses and dispatches one slash command.
func (s *Service) handleCommand(ctx context.Context, msg *Incoming) error {
	name, args := splitCommand(msg.Text, s.tg.BotName())

	switch name {
	case "start":
		return s.cmdStart(ctx, msg)
	case "help":
		return s.reply(ctx, msg, helpText, false)
	case "pair":
		return s.cmdPair(ctx, msg, args)
	case "telegram":
		return s.reply(ctx, msg,
			"Pairing codes are minted on the host. Run <code>commander pair</code> in the Commander CLI, then <code>/pair &lt;code&gt;</code> here.",
			true)
	}

	// Everything below requires a paired chat.
	if !s.registry.IsAuthorized(msg.Chat.ID) {
		return s.reply(ctx, msg, notAuthorizedText, true)
	}

	switch name {
	case "connect":
		return s.cmdConnect(ctx, msg, args)
	case "connecttree", "connect-tree", "ct":
		return s.cmdConnectTree(ctx, msg, args)
	case "session":
		return s.cmdSession(ctx, msg, args)
	case "sessions", "list":
		return s.cmdSessions(ctx, msg)
	case "disconnect":
		return s.cmdDisconnect(ctx, msg)
	case "stop", "s":
		return s.cmdStop(ctx, msg, args)
	case "send":
		return s.cmdSend(ctx, msg, args)
	case "status":
		return s.cmdStatus(ctx, msg)
	case "groupmode":
		return s.cmdGroupMode(ctx, msg)
	case "topic":
		return s.cmdTopic(ctx, msg, args)
	case "topics":
		return s.cmdTopics(ctx, msg)
	default:
		return s.reply(ctx, msg,
			fmt.Sprintf("Unknown command: /%s\n\nUse /help to see available commands.", name),
			false)
	}
}

// splitCommand extracts the command name and argument string from a
// "/cmd@bot args" message.
func splitCommand(text, botName string) (string, string) {
	text = strings.TrimSpace(text)
	name := text
	args := ""
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		name = text[:i]
		args = strings.TrimSpace(text[i+1:])
	}
	name = strings.TrimPrefix(name, "/")
	if at := strings.Index(name, "@"); at >= 0 {
		mention := name[at+1:]
		if botName == "" || strings.EqualFold(mention, botName) {
			name = name[:at]
		}
	}
	return strings.ToLower(name), args
}

func (s *Service) cmdStart(ctx context.Context, msg *Incoming) error {
	tmuxStatus := "❌ not available"
	if tmux.Available() {
		tmuxStatus = "✅ available"
	}
	sumStatus := "⚠️ disabled (set OPENROUTER_API_KEY)"
	if s.sum.Available() {
		sumStatus = "✅ enabled"
	}
	welcome := fmt.Sprintf(
		"Welcome to Commander Bot! 🚀\n\n"+
			"I can help you interact with AI coding sessions from anywhere.\n\n"+
			"<b>Getting Started:</b>\n"+
			"1. Use /list to see available projects\n"+
			"2. Use /connect &lt;project&gt; to connect\n"+
			"3. Send messages to interact with your session\n"+
			"4. Use /disconnect when done\n\n"+
			"<b>Status:</b>\n- tmux: %s\n- Summarization: %s\n\n"+
			"Type /help for all commands.",
		tmuxStatus, sumStatus)
	s.log.Info("user started bot", "chat", msg.Chat.ID)
	return s.reply(ctx, msg, welcome, true)
}

func (s *Service) cmdPair(ctx context.Context, msg *Incoming, args string) error {
	code := strings.ToUpper(strings.TrimSpace(args))

	if code == "" {
		return s.reply(ctx, msg,
			"Please provide a pairing code.\n\n"+
				"<b>Usage:</b> <code>/pair CODE</code>\n\n"+
				"Get a code by running <code>commander pair</code> in the Commander CLI.",
			true)
	}
	if len(code) != 6 {
		return s.reply(ctx, msg,
			"Invalid code format. Pairing codes are 6 characters.\n\n"+
				"Get a code by running <code>commander pair</code> in the Commander CLI.",
			true)
	}

	key := keyFor(msg)
	pairing, sess, err := s.registry.RedeemPairing(ctx, key, code)
	if err != nil {
		return s.reply(ctx, msg,
			"Invalid or expired pairing code. Codes are valid for 5 minutes.\n\n"+
				"Generate a new one with <code>commander pair</code> in the CLI.",
			true)
	}

	switch {
	case pairing.ProjectName == "":
		s.log.Info("chat paired", "chat", msg.Chat.ID)
		return s.reply(ctx, msg,
			"Paired successfully!\n\n"+
				"You are now authorized for this Commander instance.\n"+
				"Use <code>/list</code> to see projects or <code>/connect &lt;name&gt;</code> to connect.",
			true)
	case sess != nil:
		s.log.Info("chat paired and connected", "chat", msg.Chat.ID, "project", sess.ProjectName)
		return s.reply(ctx, msg, fmt.Sprintf(
			"Paired and connected to <b>%s</b>!\n\nYou can now send messages to interact with %s.",
			htmlEscape(sess.ProjectName), adapter.DisplayName(sess.ToolID)), true)
	default:
		return s.reply(ctx, msg, fmt.Sprintf(
			"Paired successfully but connection failed.\n\nUse <code>/connect %s</code> to connect manually.",
			htmlEscape(pairing.ProjectName)), true)
	}
}

// connectArgs is a parsed /connect argument list.
type connectArgs struct {
	// Existing is set for the single-name form.
	Existing string

	// Path/Adapter/Name are set for the new-project form.
	Path    string
	Adapter string
	Name    string
	New     bool
}

func parseConnectArgs(arg string) (connectArgs, error) {
	parts := strings.Fields(arg)
	if len(parts) == 0 {
		return connectArgs{}, errors.New("connect requires arguments")
	}

	hasFlags := false
	for _, p := range parts {
		if p == "-a" || p == "-n" {
			hasFlags = true
			break
		}
	}

	if !hasFlags {
		if len(parts) == 1 {
			return connectArgs{Existing: parts[0]}, nil
		}
		return connectArgs{}, errors.New("use '/connect <name>' or '/connect <path> -a <adapter> -n <name>'")
	}

	out := connectArgs{Path: expandTilde(parts[0]), New: true}
	for i := 1; i < len(parts); {
		switch parts[i] {
		case "-a":
			if i+1 >= len(parts) {
				return connectArgs{}, errors.New("-a requires an adapter (cc, mpm)")
			}
			out.Adapter = parts[i+1]
			i += 2
		case "-n":
			if i+1 >= len(parts) {
				return connectArgs{}, errors.New("-n requires a project name")
			}
			out.Name = parts[i+1]
			i += 2
		default:
			return connectArgs{}, fmt.Errorf("unknown flag: %s", parts[i])
		}
	}
	if out.Adapter == "" {
		return connectArgs{}, errors.New("missing -a <adapter> (cc, mpm)")
	}
	if out.Name == "" {
		return connectArgs{}, errors.New("missing -n <name>")
	}
	return out, nil
}

func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

const connectUsageText = "Please specify a target.\n\n" +
	"<b>Connect to registered project:</b>\n<code>/connect &lt;name&gt;</code>\n\n" +
	"<b>Connect to tmux session:</b>\n<code>/connect &lt;session-name&gt;</code>\n\n" +
	"<b>Create new project:</b>\n<code>/connect &lt;path&gt; -a &lt;adapter&gt; -n &lt;name&gt;</code>\n\n" +
	"The command automatically detects whether the name refers to a registered project or an existing tmux session.\n\n" +
	"Adapters: <code>cc</code> (Claude Code), <code>mpm</code>\n\n" +
	"Use /list for projects and /sessions for tmux sessions."

func (s *Service) cmdConnect(ctx context.Context, msg *Incoming, args string) error {
	args = strings.TrimSpace(args)
	if args == "" {
		return s.reply(ctx, msg, connectUsageText, true)
	}

	parsed, err := parseConnectArgs(args)
	if err != nil {
		return s.reply(ctx, msg, "❌ "+err.Error(), false)
	}

	key := keyFor(msg)
	target := parsed.Existing
	if parsed.New {
		target = parsed.Name
	}

	// Already connected: short-circuit on the same target, otherwise swap.
	if current, ok := s.registry.Get(key); ok {
		if current.ProjectName == target {
			return s.reply(ctx, msg,
				fmt.Sprintf("Already connected to <b>%s</b>", htmlEscape(current.ProjectName)), true)
		}
		s.registry.Disconnect(ctx, key)
	}

	if !parsed.New {
		_ = s.reply(ctx, msg, fmt.Sprintf("Connecting to %s...", parsed.Existing), false)
		return s.finishConnect(ctx, msg, key, parsed.Existing, "Connected to")
	}

	// New-project form: an existing terminal with the same name wins over
	// registration.
	if s.terminalExists(ctx, parsed.Name) {
		_ = s.reply(ctx, msg, fmt.Sprintf("Found existing session '%s', connecting...", parsed.Name), false)
		return s.finishConnect(ctx, msg, key, parsed.Name, "Connected to existing session")
	}

	_ = s.reply(ctx, msg, fmt.Sprintf("Creating project %s at %s...", parsed.Name, parsed.Path), false)
	sess, err := s.registry.ConnectNew(ctx, key, parsed.Path, parsed.Adapter, parsed.Name)
	if err != nil {
		s.log.Error("project creation failed", "chat", msg.Chat.ID, "error", err)
		return s.reply(ctx, msg, fmt.Sprintf("❌ Failed to create project: %v", err), false)
	}
	return s.announceConnected(ctx, msg, key, sess, "Created and connected to")
}

func (s *Service) terminalExists(ctx context.Context, name string) bool {
	infos, err := s.registry.ListTerminals(ctx)
	if err != nil {
		return false
	}
	managed := tmux.ManagedName(name)
	for _, info := range infos {
		if info.Name == name || info.Name == managed {
			return true
		}
	}
	return false
}

// finishConnect connects to an existing project or terminal and reports,
// suggesting close matches on a miss.
func (s *Service) finishConnect(ctx context.Context, msg *Incoming, key session.Key, name, verb string) error {
	sess, err := s.registry.Connect(ctx, key, name)
	if err != nil {
		s.log.Error("connection failed", "chat", msg.Chat.ID, "target", name, "error", err)
		text := fmt.Sprintf("❌ Failed to connect: %v", err)
		if errors.Is(err, session.ErrTerminalNotFound) {
			if suggestions := s.registry.SuggestTerminals(ctx, name, 3); len(suggestions) > 0 {
				text += "\n\nDid you mean: /connect " + strings.Join(suggestions, ", /connect ")
			}
		}
		return s.reply(ctx, msg, text, false)
	}
	return s.announceConnected(ctx, msg, key, sess, verb)
}

func (s *Service) announceConnected(ctx context.Context, msg *Incoming, key session.Key, sess *session.Session, verb string) error {
	statusInfo := s.connectionStatus(ctx, key, sess)
	s.log.Info("user connected", "chat", msg.Chat.ID, "project", sess.ProjectName)
	return s.reply(ctx, msg, fmt.Sprintf(
		"✅ %s <b>%s</b>\n\n📊 Status:%s\n\nYou can now send messages to interact with %s.",
		verb, htmlEscape(sess.ProjectName), statusInfo, adapter.DisplayName(sess.ToolID)), true)
}

// connectionStatus builds the short status block in connect replies.
func (s *Service) connectionStatus(ctx context.Context, key session.Key, sess *session.Session) string {
	preview, err := s.registry.CaptureScreen(ctx, key)
	if err != nil {
		return "\n• State: connecting..."
	}
	preview = filter.StripANSI(preview)

	branchInfo := "\n• Branch: unknown"
	if branch := extractGitBranch(preview); branch != "" {
		branchInfo = fmt.Sprintf("\n• Branch: %s (with changes)", branch)
	}

	stateEmoji := "💤 idle"
	contextInfo := ""
	if sess.IsWaiting {
		stateEmoji = "🔄 running"
	} else if cx := extractConversationContext(preview); cx != "" {
		contextInfo = fmt.Sprintf("\n• Context: %s", cx)
	}
	return fmt.Sprintf("%s\n• State: %s%s", branchInfo, stateEmoji, contextInfo)
}

var branchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\(([a-zA-Z0-9_/-]+)\)`),
	regexp.MustCompile(`\[([a-zA-Z0-9_/-]+)\]`),
	regexp.MustCompile(`on ([a-zA-Z0-9_/-]+)`),
	regexp.MustCompile(`◉ ([a-zA-Z0-9_/-]+)`),
	regexp.MustCompile(`➜ ([a-zA-Z0-9_/-]+)`),
}

// extractGitBranch pulls a branch name out of common prompt decorations
// like "(main)", "[master]" or "on main".
func extractGitBranch(screen string) string {
	for _, re := range branchPatterns {
		m := re.FindStringSubmatch(screen)
		if m == nil {
			continue
		}
		branch := m[1]
		if branch == "" || len(branch) >= 50 || allDigits(branch) {
			continue
		}
		return branch
	}
	return ""
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

var contextIndicators = []string{
	"✅", "🎉", "✓", "Fixed", "Created", "Updated", "Added", "Working on", "Implemented",
}

var contextActionWords = []string{
	"fixed", "added", "updated", "created", "implemented", "working", "completed",
}

// extractConversationContext finds the last meaningful line of an idle
// screen, preferring completion indicators over generic text.
func extractConversationContext(screen string) string {
	var lines []string
	for _, l := range strings.Split(screen, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return ""
	}

	checked := 0
	for i := len(lines) - 1; i >= 0 && checked < 10; i-- {
		line := lines[i]
		checked++
		for _, ind := range contextIndicators {
			if strings.Contains(line, ind) {
				return truncateLine(line, 100)
			}
		}
		lower := strings.ToLower(line)
		for _, word := range contextActionWords {
			if strings.Contains(lower, word) {
				return truncateLine(line, 100)
			}
		}
	}

	// Fall back to the last substantial non-prompt line.
	checked = 0
	for i := len(lines) - 1; i >= 0 && checked < 5; i-- {
		line := lines[i]
		checked++
		if len(line) < 10 || strings.HasPrefix(line, "$") || strings.HasPrefix(line, ">") ||
			strings.HasPrefix(line, "#") || strings.HasPrefix(line, "❯") ||
			strings.HasPrefix(line, "➜") || strings.HasPrefix(line, "┃") ||
			strings.HasPrefix(line, "│") || strings.HasPrefix(line, "├") ||
			strings.HasPrefix(line, "└") {
			continue
		}
		return truncateLine(line, 100)
	}
	return ""
}

func truncateLine(line string, max int) string {
	if len(line) <= max {
		return line
	}
	return line[:max-3] + "..."
}

func (s *Service) cmdConnectTree(ctx context.Context, msg *Incoming, args string) error {
	alias := strings.TrimSpace(args)
	if alias == "" {
		return s.reply(ctx, msg,
			"Please specify a session alias.\n\n<b>Usage:</b> <code>/connecttree &lt;alias&gt;</code>\n\n"+
				"Creates a git worktree with branch <code>session/&lt;alias&gt;</code> and connects to it.",
			true)
	}

	key := keyFor(msg)
	_ = s.reply(ctx, msg, fmt.Sprintf("Creating worktree session %s...", alias), false)
	sess, err := s.registry.ConnectWithWorktree(ctx, key, alias, "")
	if err != nil {
		s.log.Error("worktree connect failed", "chat", msg.Chat.ID, "alias", alias, "error", err)
		return s.reply(ctx, msg, fmt.Sprintf("❌ Failed to create worktree session: %v", err), false)
	}
	return s.reply(ctx, msg, fmt.Sprintf(
		"✅ Connected to worktree session <b>%s</b>\n\n"+
			"📁 Worktree: <code>%s</code>\n🌿 Branch: <code>%s</code>\n\n"+
			"Work here is merged back when you /stop.",
		htmlEscape(sess.ProjectName),
		htmlEscape(sess.Worktree.WorktreePath),
		htmlEscape(sess.Worktree.BranchName)), true)
}

func (s *Service) cmdSession(ctx context.Context, msg *Incoming, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return s.reply(ctx, msg,
			"Please specify a session name.\n\n<b>Usage:</b> <code>/session &lt;name&gt;</code>\n\n"+
				"Use /sessions to list available sessions.",
			true)
	}
	key := keyFor(msg)
	if current, ok := s.registry.Get(key); ok {
		if current.TerminalName == name || current.TerminalName == tmux.ManagedName(name) {
			return s.reply(ctx, msg,
				fmt.Sprintf("Already connected to <b>%s</b>", htmlEscape(current.ProjectName)), true)
		}
		s.registry.Disconnect(ctx, key)
	}
	return s.finishConnect(ctx, msg, key, name, "Connected to")
}

func (s *Service) cmdDisconnect(ctx context.Context, msg *Incoming) error {
	project, ok := s.registry.Disconnect(ctx, keyFor(msg))
	if !ok {
		return s.reply(ctx, msg, "Not connected to any project.", false)
	}
	s.log.Info("user disconnected", "chat", msg.Chat.ID, "project", project)
	return s.reply(ctx, msg, fmt.Sprintf("Disconnected from <b>%s</b>", htmlEscape(project)), true)
}

func (s *Service) cmdStop(ctx context.Context, msg *Incoming, args string) error {
	key := keyFor(msg)
	arg := strings.TrimSpace(args)

	// Announce with the resolved terminal name before the slow work.
	terminal := arg
	if terminal == "" {
		if current, ok := s.registry.Get(key); ok {
			terminal = current.TerminalName
		}
	} else {
		terminal = tmux.ManagedName(terminal)
	}
	if terminal != "" {
		_ = s.reply(ctx, msg, fmt.Sprintf("Stopping session %s...", terminal), false)
	}

	report, err := s.registry.Stop(ctx, key, arg)
	switch {
	case errors.Is(err, session.ErrNoSession):
		return s.reply(ctx, msg,
			"Not connected to any session.\n\n<b>Usage:</b> <code>/stop [session]</code>\n\n"+
				"Use /sessions to list available sessions.",
			true)
	case errors.Is(err, session.ErrTerminalNotFound):
		return s.reply(ctx, msg, fmt.Sprintf(
			"Session '%s' not found.\n\nUse /sessions to list available sessions.", report.Terminal), false)
	case err != nil:
		return s.reply(ctx, msg, fmt.Sprintf("Failed to stop session: %v", err), false)
	}

	return s.reply(ctx, msg, stopReportText(report), true)
}

// stopReportText renders what /stop did.
func stopReportText(report session.StopReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session <code>%s</code> stopped.", htmlEscape(report.Terminal))

	if report.Committed {
		fmt.Fprintf(&b, "\n\nGit changes committed:\n<pre>%s</pre>", htmlEscape(report.CommitMessage))
		if !report.Stats.Empty() {
			fmt.Fprintf(&b, "\n%d file(s) changed, +%d -%d",
				report.Stats.Files, report.Stats.Additions, report.Stats.Deletions)
		}
	} else {
		b.WriteString("\n\nNo uncommitted changes found.")
	}

	if report.Branch != "" {
		if report.Merged {
			fmt.Fprintf(&b, "\n\n🌿 Branch <code>%s</code> merged into the default branch; worktree removed.",
				htmlEscape(report.Branch))
		} else {
			fmt.Fprintf(&b, "\n\n⚠️ Branch <code>%s</code> was not merged; the worktree is still in place.",
				htmlEscape(report.Branch))
		}
	}
	return b.String()
}

const sendUsageText = "Please provide a message to send.\n\n" +
	"<b>Usage:</b> <code>/send &lt;message&gt;</code>\n\n" +
	"<b>What's the difference?</b>\n" +
	"• Regular messages are interpreted by the commander AI\n" +
	"• <code>/send</code> bypasses AI and sends directly to the session\n\n" +
	"<b>Examples:</b>\n" +
	"• <code>/send /help</code> - Send \"/help\" to Claude Code\n" +
	"• <code>/send cd ..</code> - Navigate without AI interpretation"

func (s *Service) cmdSend(ctx context.Context, msg *Incoming, args string) error {
	text := strings.TrimSpace(args)
	if text == "" {
		return s.reply(ctx, msg, sendUsageText, true)
	}
	return s.forwardToSession(ctx, msg, text)
}

// forwardToSession sends text into the connected terminal with the usual
// typing indicator and busy handling.
func (s *Service) forwardToSession(ctx context.Context, msg *Incoming, text string) error {
	key := keyFor(msg)
	if !s.registry.HasSession(key) {
		return s.reply(ctx, msg,
			"Not connected to any project.\n\nUse /connect <project> to connect first.", false)
	}

	_ = s.tg.Typing(ctx, msg.Chat.ID, msg.ThreadID)

	err := s.registry.SendInput(ctx, key, text, msg.MessageID)
	switch {
	case errors.Is(err, session.ErrBusy):
		return s.reply(ctx, msg,
			"Still processing the previous message. Wait for the response before sending more.", false)
	case err != nil:
		s.log.Error("failed to send message", "chat", msg.Chat.ID, "error", err)
		return s.reply(ctx, msg, fmt.Sprintf("❌ Error: %v", err), false)
	}
	s.log.Debug("message sent to session", "chat", msg.Chat.ID)
	return nil
}

func (s *Service) cmdSessions(ctx context.Context, msg *Incoming) error {
	infos, err := s.registry.ListTerminals(ctx)
	if err != nil {
		return s.reply(ctx, msg, fmt.Sprintf("❌ Error: %v", err), false)
	}
	if len(infos) == 0 {
		return s.reply(ctx, msg, "No tmux sessions found.", false)
	}

	currentTerminal := ""
	if current, ok := s.registry.Get(keyFor(msg)); ok {
		currentTerminal = current.TerminalName
	}

	text, keyboard := sessionsListing(infos, currentTerminal)
	_, err = s.tg.Send(ctx, Outgoing{
		ChatID:   msg.Chat.ID,
		ThreadID: msg.ThreadID,
		Text:     text,
		HTML:     true,
		Keyboard: keyboard,
	})
	return err
}

// sessionsListing renders the /sessions text with one Open button per
// terminal.
func sessionsListing(infos []session.TerminalInfo, currentTerminal string) (string, [][]Button) {
	var b strings.Builder
	b.WriteString("<b>Sessions:</b>\n\n")

	var keyboard [][]Button
	for _, info := range infos {
		marker := "📟"
		switch {
		case info.Name == currentTerminal:
			marker = "✅"
		case strings.HasPrefix(info.Name, tmux.SessionPrefix):
			marker = "🤖"
		}
		display := tmux.DisplayName(info.Name)
		state := ""
		if info.Connected {
			state = " (connected)"
		}
		fmt.Fprintf(&b, "%s <b>%s</b>%s\n", marker, htmlEscape(display), state)
		keyboard = append(keyboard, []Button{{
			Label: "Open " + display,
			Data:  "connect:" + info.Name,
		}})
	}
	b.WriteString("\nTap a button to connect.")
	return b.String(), keyboard
}

func (s *Service) cmdStatus(ctx context.Context, msg *Incoming) error {
	key := keyFor(msg)
	sess, ok := s.registry.Get(key)
	if !ok {
		return s.reply(ctx, msg,
			"📊 <b>Status</b>\n\n❌ Connection: Not connected\n\nUse /connect &lt;project&gt; to connect to a project.",
			true)
	}

	preview, _ := s.registry.CaptureScreen(ctx, key)
	preview = filter.StripANSI(preview)

	var activity string
	switch {
	case sess.IsWaiting && sess.PendingQuery != "":
		activity = fmt.Sprintf("🔄 Activity: Processing command...\n📝 Query: \"%s\"",
			htmlEscape(truncateLine(sess.PendingQuery, 50)))
	case sess.IsWaiting:
		activity = "🔄 Activity: Processing..."
	default:
		activity = "💤 Activity: Idle (ready for commands)"
		if preview != "" {
			if interp := s.sum.InterpretScreen(ctx, preview, filter.IsPromptReady(preview)); interp != "" {
				activity = "💤 Activity: " + htmlEscape(interp)
			}
		}
	}

	// Raw screen only when no LLM interpretation is possible.
	screenSection := ""
	if preview != "" && !s.sum.Available() {
		screenSection = fmt.Sprintf("\n\n📺 Screen:\n<pre>%s</pre>",
			htmlEscape(filter.CleanScreenPreview(preview, 5)))
	}

	historySection := ""
	if h := s.registry.History(); h != nil {
		if counts, err := h.Counts(ctx, key); err == nil && len(counts) > 0 {
			historySection = fmt.Sprintf("\n\n📈 Activity log: %d message(s), %d response(s)",
				counts[session.EventMessage], counts[session.EventResponse])
		}
	}

	return s.reply(ctx, msg, fmt.Sprintf(
		"📊 <b>Status</b>\n\n"+
			"✅ Connection: Connected\n"+
			"📁 Project: %s\n"+
			"📍 Path: <code>%s</code>\n"+
			"🔧 Adapter: %s\n\n"+
			"%s%s%s",
		htmlEscape(sess.ProjectName),
		htmlEscape(sess.ProjectPath),
		adapter.DisplayName(sess.ToolID),
		activity, screenSection, historySection), true)
}

func (s *Service) cmdGroupMode(ctx context.Context, msg *Incoming) error {
	ref, err := s.tg.ChatInfo(ctx, msg.Chat.ID)
	if err != nil {
		return s.reply(ctx, msg, fmt.Sprintf("Failed to inspect chat: %v", err), false)
	}
	if ref.Type != "supergroup" {
		return s.reply(ctx, msg,
			"Group mode is only available in supergroups.\n\n"+
				"To use group mode:\n"+
				"1. Convert this group to a supergroup (add a username or enable topics)\n"+
				"2. Enable Forum Topics in group settings\n"+
				"3. Run /groupmode again",
			false)
	}
	if !ref.IsForum {
		return s.reply(ctx, msg,
			"Forum Topics are not enabled for this supergroup.\n\n"+
				"To enable:\n1. Go to Group Settings\n2. Enable \"Topics\"\n3. Run /groupmode again",
			false)
	}

	cfg, err := s.registry.Groups().Get(msg.Chat.ID)
	if err != nil {
		return s.reply(ctx, msg, fmt.Sprintf("Failed to enable group mode: %v", err), false)
	}
	cfg.IsForum = true
	if err := s.registry.Groups().Set(msg.Chat.ID, cfg); err != nil {
		return s.reply(ctx, msg, fmt.Sprintf("Failed to enable group mode: %v", err), false)
	}

	s.log.Info("group mode enabled", "chat", msg.Chat.ID)
	return s.reply(ctx, msg,
		"Group mode enabled!\n\n"+
			"You can now create topics for different sessions:\n"+
			"• <code>/topic &lt;session&gt;</code> - Create a topic for a session\n"+
			"• <code>/topics</code> - List all topics and their sessions\n\n"+
			"Messages in each topic will route to that topic's session.",
		true)
}

func (s *Service) cmdTopic(ctx context.Context, msg *Incoming, args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return s.reply(ctx, msg,
			"Please specify a session name.\n\n<b>Usage:</b> <code>/topic &lt;session&gt;</code>\n\n"+
				"Use /list to see available projects and sessions.",
			true)
	}

	cfg, err := s.registry.Groups().Get(msg.Chat.ID)
	if err != nil || !cfg.IsForum {
		return s.reply(ctx, msg, "Group mode is not enabled.\n\nRun /groupmode first to enable it.", false)
	}

	threadID, err := s.tg.CreateForumTopic(ctx, msg.Chat.ID, name)
	if err != nil {
		s.log.Error("failed to create forum topic", "chat", msg.Chat.ID, "error", err)
		return s.reply(ctx, msg, fmt.Sprintf(
			"Failed to create topic: %v\n\nMake sure the bot has 'Manage Topics' permission.", err), false)
	}

	topicKey := session.NewTopicKey(msg.Chat.ID, threadID)
	sess, err := s.registry.Connect(ctx, topicKey, name)
	if err != nil {
		_, sendErr := s.tg.Send(ctx, Outgoing{
			ChatID:   msg.Chat.ID,
			ThreadID: threadID,
			Text: fmt.Sprintf("Topic created but failed to connect to session: %v\n\n"+
				"The topic exists but is not linked to a session.", err),
		})
		return sendErr
	}

	if err := s.registry.Groups().SetTopicSession(msg.Chat.ID, threadID, sess.TerminalName); err != nil {
		s.log.Warn("failed to persist topic mapping", "chat", msg.Chat.ID, "thread", threadID, "error", err)
	}

	s.log.Info("topic created for session", "chat", msg.Chat.ID, "thread", threadID, "session", name)
	_, err = s.tg.Send(ctx, Outgoing{
		ChatID:   msg.Chat.ID,
		ThreadID: threadID,
		Text: fmt.Sprintf("Topic created and connected to <b>%s</b>!\n\n"+
			"Send messages in this topic to interact with %s.",
			htmlEscape(sess.ProjectName), adapter.DisplayName(sess.ToolID)),
		HTML: true,
	})
	return err
}

func (s *Service) cmdTopics(ctx context.Context, msg *Incoming) error {
	cfg, err := s.registry.Groups().Get(msg.Chat.ID)
	if err != nil || !cfg.IsForum {
		return s.reply(ctx, msg,
			"Group mode is not enabled.\n\nRun /groupmode first to enable it, then use /topic to create topics.",
			false)
	}
	if len(cfg.TopicSessions) == 0 {
		return s.reply(ctx, msg,
			"No topics configured.\n\nUse <code>/topic &lt;session&gt;</code> to create a topic for a session.",
			true)
	}

	var b strings.Builder
	b.WriteString("<b>Forum Topics:</b>\n\n")
	for threadID, terminal := range cfg.TopicSessions {
		fmt.Fprintf(&b, "• <b>%s</b> (thread %d)\n   tmux: <code>%s</code>\n\n",
			htmlEscape(tmux.DisplayName(terminal)), threadID, htmlEscape(terminal))
	}
	return s.reply(ctx, msg, b.String(), true)
}

// handleText routes non-command text: topic routing, @alias routing, then
// the connected session.
func (s *Service) handleText(ctx context.Context, msg *Incoming) error {
	if !s.registry.IsAuthorized(msg.Chat.ID) {
		return s.reply(ctx, msg, notAuthorizedText, true)
	}

	if msg.ThreadID != 0 {
		return s.handleTopicText(ctx, msg)
	}

	// "@alias message" connects to alias and forwards the remainder.
	if rest, ok := strings.CutPrefix(msg.Text, "@"); ok {
		if alias, body, found := strings.Cut(rest, " "); found {
			alias = strings.TrimSpace(alias)
			body = strings.TrimSpace(body)
			if alias != "" && body != "" {
				return s.routeViaAlias(ctx, msg, alias, body)
			}
		}
	}

	return s.forwardToSession(ctx, msg, msg.Text)
}

func (s *Service) routeViaAlias(ctx context.Context, msg *Incoming, alias, body string) error {
	key := keyFor(msg)
	if current, ok := s.registry.Get(key); ok && current.ProjectName != alias {
		s.registry.Disconnect(ctx, key)
	}
	if !s.registry.HasSession(key) {
		sess, err := s.registry.Connect(ctx, key, alias)
		if err != nil {
			return s.reply(ctx, msg, fmt.Sprintf("❌ Could not connect to '%s': %v", alias, err), false)
		}
		_ = s.reply(ctx, msg, fmt.Sprintf("➡️ Routing to %s", sess.ProjectName), false)
	}
	return s.forwardToSession(ctx, msg, body)
}

// handleTopicText routes a forum topic message to the topic's session,
// reconnecting from the stored mapping when needed.
func (s *Service) handleTopicText(ctx context.Context, msg *Incoming) error {
	cfg, err := s.registry.Groups().Get(msg.Chat.ID)
	if err != nil || !cfg.IsForum {
		s.log.Debug("topic message without group mode", "chat", msg.Chat.ID, "thread", msg.ThreadID)
		return nil
	}

	key := keyFor(msg)
	if !s.registry.HasSession(key) {
		terminal, mapped := cfg.TopicSessions[msg.ThreadID]
		if !mapped {
			return s.reply(ctx, msg,
				"This topic is not linked to a session.\n\n"+
					"Use <code>/topic &lt;session&gt;</code> in the main chat to create a linked topic.",
				true)
		}
		if _, err := s.registry.Connect(ctx, key, terminal); err != nil {
			s.log.Warn("failed to reconnect topic session",
				"chat", msg.Chat.ID, "thread", msg.ThreadID, "error", err)
			return s.reply(ctx, msg, fmt.Sprintf("Failed to connect to session: %v", err), false)
		}
		s.log.Debug("reconnected topic session", "chat", msg.Chat.ID, "thread", msg.ThreadID, "terminal", terminal)
	}

	return s.forwardToSession(ctx, msg, msg.Text)
}

// handleCallback handles inline keyboard presses; the only payload is
// "connect:<terminal>".
func (s *Service) handleCallback(ctx context.Context, q *CallbackQuery) error {
	if err := s.tg.AnswerCallback(ctx, q.ID); err != nil {
		s.log.Debug("callback ack failed", "error", err)
	}

	terminal, ok := strings.CutPrefix(q.Data, "connect:")
	if !ok || q.Message == nil {
		return nil
	}
	msg := q.Message
	key := keyFor(msg)

	if !s.registry.IsAuthorized(msg.Chat.ID) {
		return s.reply(ctx, msg, "Not authorized. Use <code>/pair &lt;code&gt;</code> first.", true)
	}

	if current, ok := s.registry.Get(key); ok {
		if current.TerminalName == terminal {
			return s.reply(ctx, msg,
				fmt.Sprintf("Already connected to <b>%s</b>", htmlEscape(current.ProjectName)), true)
		}
		s.registry.Disconnect(ctx, key)
	}

	sess, err := s.registry.Connect(ctx, key, terminal)
	if err != nil {
		s.log.Error("connection via button failed", "chat", msg.Chat.ID, "error", err)
		return s.reply(ctx, msg, fmt.Sprintf("❌ Failed to connect: %v", err), false)
	}
	s.log.Info("user connected via inline button", "chat", msg.Chat.ID, "project", sess.ProjectName)
	return s.reply(ctx, msg, fmt.Sprintf(
		"✅ Connected to <b>%s</b>\n\nSend messages to interact with %s.",
		htmlEscape(sess.ProjectName), adapter.DisplayName(sess.ToolID)), true)
}

// htmlEscape escapes Telegram HTML-mode special characters.
func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

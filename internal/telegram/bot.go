package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"smart-health/internal/config"
	"smart-health/internal/metrics"
	"smart-health/internal/planner"
)

// Telegram rejects messages longer than this.
const maxMessageLen = 4096

const helpText = `Send /plan followed by your details, separated by ";" or new lines:

/plan name=Alex; age=25; gender=male; weight=70; height=175; activity=moderately active; goal=weight loss; diet=no preference

Missing fields fall back to the form defaults. /bmi takes the same fields. /metrics shows usage.`

// PlanService is what the bot needs from the application.
type PlanService interface {
	GeneratePlan(ctx context.Context, profile planner.Profile, report planner.StatusFunc) (*planner.PlanResult, error)
	Usage(ctx context.Context, days int) ([]metrics.DailyUsage, []metrics.ModelUsage, error)
	Health() metrics.SysHealth
}

// messenger is the part of tgbotapi.BotAPI the bot talks through.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// Bot wraps the Telegram API and the plan service.
type Bot struct {
	api     messenger
	botAPI  *tgbotapi.BotAPI
	svc     PlanService
	allowed map[int64]bool
	// wg tracks plans still running so shutdown can wait for them.
	wg sync.WaitGroup
}

// NewBot initializes the Telegram Bot. When a webhook URL is configured it is
// registered with Telegram; otherwise Run long-polls for updates.
func NewBot(cfg *config.Config, svc PlanService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	log.Info().Str("account", api.Self.UserName).Msg("Telegram bot authorized")

	if cfg.TelegramWebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
		}
		resp, err := api.Request(wh)
		if err != nil {
			return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
		}
		log.Info().Str("description", resp.Description).Msg("Telegram webhook set")
	}

	b := newBot(api, svc, cfg.TelegramAllowedUserIDs)
	b.botAPI = api
	return b, nil
}

func newBot(api messenger, svc PlanService, allowedIDs []int64) *Bot {
	allowed := make(map[int64]bool, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = true
	}
	return &Bot{api: api, svc: svc, allowed: allowed}
}

// ServeHTTP handles webhook updates.
func (b *Bot) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Warn().Err(err).Msg("Error parsing telegram update")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	if update.Message == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.processMessage(context.Background(), update.Message)
	}()
}

// Run long-polls for updates until ctx is done, then waits for running plans.
func (b *Bot) Run(ctx context.Context) error {
	if b.botAPI == nil {
		return fmt.Errorf("long polling needs a telegram api client")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.botAPI.GetUpdatesChan(u)
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.processMessage(ctx, msg)
			}()
		}
	}
}

// Wait blocks until every in-flight message has been handled.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowed) == 0 || b.allowed[userID]
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !b.isAllowed(msg.From.ID) {
		var id int64
		if msg.From != nil {
			id = msg.From.ID
		}
		log.Warn().Int64("user_id", id).Msg("Unauthorized access attempt")
		return
	}

	switch msg.Command() {
	case "plan":
		b.handlePlanCommand(ctx, msg)
	case "bmi":
		b.handleBMICommand(msg)
	case "metrics":
		b.handleMetricsCommand(ctx, msg.Chat.ID)
	default:
		b.send(tgbotapi.NewMessage(msg.Chat.ID, helpText))
	}
}

func (b *Bot) handleBMICommand(msg *tgbotapi.Message) {
	profile, err := parseProfile(msg.CommandArguments())
	if err != nil {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "❌ "+err.Error()))
		return
	}
	bmi := profile.BMI()
	b.send(tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Your BMI: %.2f (%s)", bmi, planner.BMICategory(bmi))))
}

func (b *Bot) handlePlanCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	profile, err := parseProfile(msg.CommandArguments())
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "❌ "+err.Error()+"\n\n"+helpText))
		return
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, "🧠 AI agents are brainstorming..."))
	if err != nil {
		log.Error().Err(err).Msg("Failed to send initial reply")
		return
	}

	var lines []string
	report := func(e planner.StatusEntry) {
		lines = append(lines, statusIcon(e.Level)+" "+e.Message)
		b.send(tgbotapi.NewEditMessageText(chatID, sent.MessageID, strings.Join(lines, "\n")))
	}

	result, err := b.svc.GeneratePlan(ctx, profile, report)
	if err != nil {
		b.send(tgbotapi.NewEditMessageText(chatID, sent.MessageID, "❌ "+err.Error()))
		return
	}

	for _, tab := range result.Tabs() {
		text := tab.Title + "\n\n" + tab.Body
		if tab.Placeholder {
			text = "⚠️ " + text
		}
		for _, part := range splitMessage(text, maxMessageLen) {
			b.send(tgbotapi.NewMessage(chatID, part))
		}
	}
}

func statusIcon(l planner.Level) string {
	switch l {
	case planner.LevelWarn:
		return "⚠️"
	case planner.LevelError:
		return "❌"
	default:
		return "•"
	}
}

func (b *Bot) handleMetricsCommand(ctx context.Context, chatID int64) {
	daily, models, err := b.svc.Usage(ctx, 7)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch metrics")
		b.send(tgbotapi.NewMessage(chatID, "❌ Error fetching metrics."))
		return
	}
	b.send(tgbotapi.NewMessage(chatID, formatUsageReport(daily, models, b.svc.Health())))
}

func formatUsageReport(daily []metrics.DailyUsage, models []metrics.ModelUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 Usage & Health Report\n\n")

	sb.WriteString("🗓 Recent LLM Activity\n")
	if len(daily) == 0 {
		sb.WriteString("No data yet\n")
	}
	for _, d := range daily {
		fmt.Fprintf(&sb, "• %s: %d tokens (%d calls)\n", d.Date, d.TotalPrompt+d.TotalCompletion, d.TotalExecution)
	}

	if len(models) > 0 {
		sb.WriteString("\n🤖 Models\n")
		for _, m := range models {
			fmt.Fprintf(&sb, "• %s: %d calls, %d tokens, %d retries, %s avg\n",
				m.Model, m.Calls, m.TotalTokens, m.Retries, time.Duration(m.AvgLatencyMS*float64(time.Millisecond)).Round(time.Millisecond))
		}
	}

	sb.WriteString("\n🧠 System Health\n")
	fmt.Fprintf(&sb, "• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "• Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "• Disk Data: %s\n", health.DataDiskSize)
	return sb.String()
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		log.Warn().Err(err).Msg("Failed to send telegram message")
	}
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// line breaks and never splitting a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

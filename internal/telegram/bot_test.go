package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-health/internal/metrics"
	"smart-health/internal/planner"
)

type mockMessenger struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (m *mockMessenger) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, c)
	return tgbotapi.Message{MessageID: len(m.sent)}, nil
}

func (m *mockMessenger) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockMessenger) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	var u tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// texts returns the text of every message and edit, in order.
func (m *mockMessenger) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.sent {
		switch v := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, v.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, "edit:"+v.Text)
		}
	}
	return out
}

type mockService struct {
	result   *planner.PlanResult
	entries  []planner.StatusEntry
	profiles []planner.Profile
}

func (m *mockService) GeneratePlan(ctx context.Context, profile planner.Profile, report planner.StatusFunc) (*planner.PlanResult, error) {
	m.profiles = append(m.profiles, profile)
	for _, e := range m.entries {
		report(e)
	}
	return m.result, nil
}

func (m *mockService) Usage(ctx context.Context, days int) ([]metrics.DailyUsage, []metrics.ModelUsage, error) {
	return []metrics.DailyUsage{{Date: "2026-10-19", TotalPrompt: 100, TotalCompletion: 50, TotalExecution: 3}},
		[]metrics.ModelUsage{{Model: "llama-3.1-8b-instant", Calls: 3, TotalTokens: 150, AvgLatencyMS: 1200, Retries: 2}}, nil
}

func (m *mockService) Health() metrics.SysHealth {
	return metrics.SysHealth{AllocMB: 12, SysMB: 30, Goroutines: 7, DataDiskSize: "1.0 KB"}
}

func command(text string, userID int64) *tgbotapi.Message {
	cmdLen := strings.IndexAny(text, " \n")
	if cmdLen < 0 {
		cmdLen = len(text)
	}
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: userID},
		Chat:     &tgbotapi.Chat{ID: 42},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func TestParseProfile(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		p, err := parseProfile("")
		require.NoError(t, err)
		assert.Equal(t, planner.DefaultProfile(), p)
	})

	t.Run("Overrides", func(t *testing.T) {
		p, err := parseProfile("name=Sam; age=40\nGender=female; weight=62.5; height=168; activity=very_active; goal=muscle gain; diet=vegan")
		require.NoError(t, err)
		assert.Equal(t, "Sam", p.Name)
		assert.Equal(t, 40, p.Age)
		assert.Equal(t, planner.GenderFemale, p.Gender)
		assert.Equal(t, 62.5, p.WeightKG)
		assert.Equal(t, 168.0, p.HeightCM)
		assert.Equal(t, planner.ActivityVeryActive, p.ActivityLevel)
		assert.Equal(t, planner.GoalMuscleGain, p.FitnessGoal)
		assert.Equal(t, planner.DietVegan, p.DietaryPreference)
	})

	errCases := map[string]string{
		"age=ten":        "invalid age",
		"age=12":         "age must be between 18 and 100",
		"colour=blue":    `unknown field "colour"`,
		"weight":         "expected key=value",
		"gender=unknown": "invalid gender",
		"weight=NaN":     "weight must be between 30 and 200 kg",
		"height=NaN":     "height must be between 100 and 250 cm",
	}
	for args, want := range errCases {
		t.Run(args, func(t *testing.T) {
			_, err := parseProfile(args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), want)
		})
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))
	assert.Empty(t, splitMessage("", 10))

	parts := splitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one", "line two", "line three"}, parts)

	// No newline to cut at: cut on a rune boundary.
	parts = splitMessage(strings.Repeat("é", 5), 3)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 3)
		assert.True(t, strings.HasPrefix(p, "é"))
	}
	assert.Equal(t, strings.Repeat("é", 5), strings.Join(parts, ""))
}

func TestPlanCommand(t *testing.T) {
	api := &mockMessenger{}
	svc := &mockService{
		entries: []planner.StatusEntry{
			{Level: planner.LevelInfo, Message: "Attempting with model: model-a..."},
			{Level: planner.LevelWarn, Message: "Quota exceeded for model-a. Switching model..."},
		},
		result: &planner.PlanResult{
			MealPlan:       &planner.StageResult{Text: "oats", Succeeded: true},
			FitnessPlan:    &planner.StageResult{Text: "squats", Succeeded: true},
			Strategy:       &planner.StageResult{Text: "sleep", Succeeded: true},
			OverallSuccess: true,
			Outcome:        planner.OutcomeSuccess,
		},
	}
	b := newBot(api, svc, []int64{7})

	b.processMessage(context.Background(), command("/plan age=30; goal=endurance", 7))

	require.Len(t, svc.profiles, 1)
	assert.Equal(t, 30, svc.profiles[0].Age)
	assert.Equal(t, planner.GoalEndurance, svc.profiles[0].FitnessGoal)

	texts := api.texts()
	require.Len(t, texts, 6)
	assert.Contains(t, texts[0], "brainstorming")
	assert.Equal(t, "edit:• Attempting with model: model-a...", texts[1])
	assert.Equal(t, "edit:• Attempting with model: model-a...\n⚠️ Quota exceeded for model-a. Switching model...", texts[2])
	assert.Equal(t, "Meal Plan\n\noats", texts[3])
	assert.Equal(t, "Workout\n\nsquats", texts[4])
	assert.Equal(t, "Holistic Strategy\n\nsleep", texts[5])
}

func TestPlanCommandExhausted(t *testing.T) {
	api := &mockMessenger{}
	svc := &mockService{result: &planner.PlanResult{Outcome: planner.OutcomeExhausted}}
	b := newBot(api, svc, nil)

	b.processMessage(context.Background(), command("/plan", 1))

	texts := api.texts()
	require.Len(t, texts, 4)
	assert.Equal(t, "⚠️ Meal Plan\n\nCould not generate meal plan.", texts[1])
	assert.Equal(t, "⚠️ Holistic Strategy\n\nCould not generate strategy.", texts[3])
}

func TestPlanCommandInvalidProfile(t *testing.T) {
	api := &mockMessenger{}
	svc := &mockService{}
	b := newBot(api, svc, nil)

	b.processMessage(context.Background(), command("/plan age=5", 1))

	assert.Empty(t, svc.profiles)
	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "age must be between 18 and 100")
}

func TestUnauthorizedUser(t *testing.T) {
	api := &mockMessenger{}
	svc := &mockService{}
	b := newBot(api, svc, []int64{7})

	b.processMessage(context.Background(), command("/plan", 8))
	b.processMessage(context.Background(), &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 1}})

	assert.Empty(t, api.texts())
	assert.Empty(t, svc.profiles)
}

func TestBMICommand(t *testing.T) {
	api := &mockMessenger{}
	b := newBot(api, &mockService{}, nil)

	b.processMessage(context.Background(), command("/bmi weight=90; height=180", 1))

	assert.Equal(t, []string{"Your BMI: 27.78 (Overweight)"}, api.texts())
}

func TestMetricsCommand(t *testing.T) {
	api := &mockMessenger{}
	b := newBot(api, &mockService{}, nil)

	b.processMessage(context.Background(), command("/metrics", 1))

	texts := api.texts()
	require.Len(t, texts, 1)
	report := texts[0]
	assert.Contains(t, report, "📊 Usage & Health Report")
	assert.Contains(t, report, "• 2026-10-19: 150 tokens (3 calls)")
	assert.Contains(t, report, "• llama-3.1-8b-instant: 3 calls, 150 tokens, 2 retries, 1.2s avg")
	assert.Contains(t, report, "• Goroutines: 7")
	assert.Contains(t, report, "• Disk Data: 1.0 KB")
}

func TestServeHTTP(t *testing.T) {
	api := &mockMessenger{}
	b := newBot(api, &mockService{}, nil)

	body := `{"update_id":1,"message":{"message_id":1,"text":"hello","chat":{"id":42},"from":{"id":1}}}`
	rec := httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body)))
	b.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{helpText}, api.texts())

	rec = httptest.NewRecorder()
	b.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"smart-health/internal/metrics"
	"smart-health/internal/planner"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// planRequest is the profile as submitted by a client. Enum values are
// matched case-insensitively, so "moderately_active" is accepted.
type planRequest struct {
	Name              string  `json:"name"`
	Age               int     `json:"age"`
	Gender            string  `json:"gender"`
	WeightKG          float64 `json:"weight_kg"`
	HeightCM          float64 `json:"height_cm"`
	ActivityLevel     string  `json:"activity_level"`
	FitnessGoal       string  `json:"fitness_goal"`
	DietaryPreference string  `json:"dietary_preference"`
}

func (r planRequest) toProfile() (planner.Profile, error) {
	p := planner.Profile{
		Name:     r.Name,
		Age:      r.Age,
		WeightKG: r.WeightKG,
		HeightCM: r.HeightCM,
	}
	var err error
	if p.Gender, err = planner.ParseGender(r.Gender); err != nil {
		return p, err
	}
	if p.ActivityLevel, err = planner.ParseActivityLevel(r.ActivityLevel); err != nil {
		return p, err
	}
	if p.FitnessGoal, err = planner.ParseFitnessGoal(r.FitnessGoal); err != nil {
		return p, err
	}
	if p.DietaryPreference, err = planner.ParseDietaryPreference(r.DietaryPreference); err != nil {
		return p, err
	}
	return p, p.Validate()
}

type planResponse struct {
	ID             string                `json:"id"`
	OverallSuccess bool                  `json:"overall_success"`
	Outcome        planner.Outcome       `json:"outcome"`
	Model          string                `json:"model,omitempty"`
	Error          string                `json:"error,omitempty"`
	BMI            float64               `json:"bmi"`
	BMICategory    string                `json:"bmi_category"`
	Tabs           []planner.Tab         `json:"tabs"`
	StatusLog      []planner.StatusEntry `json:"status_log"`
}

func newPlanResponse(profile planner.Profile, r *planner.PlanResult) planResponse {
	resp := planResponse{
		ID:             r.ID.String(),
		OverallSuccess: r.OverallSuccess,
		Outcome:        r.Outcome,
		Model:          r.Model,
		BMI:            profile.BMI(),
		BMICategory:    planner.BMICategory(profile.BMI()),
		Tabs:           r.Tabs(),
		StatusLog:      r.StatusLog,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}

// statusFor maps an outcome to the HTTP status of the JSON API.
func statusFor(o planner.Outcome) int {
	switch o {
	case planner.OutcomeSuccess:
		return http.StatusOK
	case planner.OutcomeExhausted:
		return http.StatusServiceUnavailable
	case planner.OutcomeAborted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type indexData struct {
	Defaults           planner.Profile
	Genders            []planner.Gender
	ActivityLevels     []planner.ActivityLevel
	FitnessGoals       []planner.FitnessGoal
	DietaryPreferences []planner.DietaryPreference
	MinAge, MaxAge     int
	MinWeight          int
	MaxWeight          int
	MinHeight          int
	MaxHeight          int
}

func (s *Server) indexHandler(c echo.Context) error {
	return c.Render(http.StatusOK, "index.html", indexData{
		Defaults:           planner.DefaultProfile(),
		Genders:            planner.Genders,
		ActivityLevels:     planner.ActivityLevels,
		FitnessGoals:       planner.FitnessGoals,
		DietaryPreferences: planner.DietaryPreferences,
		MinAge:             planner.MinAge,
		MaxAge:             planner.MaxAge,
		MinWeight:          planner.MinWeightKG,
		MaxWeight:          planner.MaxWeightKG,
		MinHeight:          planner.MinHeightCM,
		MaxHeight:          planner.MaxHeightCM,
	})
}

// planHandler runs a plan synchronously and returns it as JSON.
func (s *Server) planHandler(c echo.Context) error {
	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	profile, err := req.toProfile()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.svc.GeneratePlan(c.Request().Context(), profile, nil)
	if err != nil {
		if errors.Is(err, planner.ErrInvalidProfile) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return c.JSON(statusFor(result.Outcome), newPlanResponse(profile, result))
}

// socketMessage is one frame sent over /ws/plan.
type socketMessage struct {
	Type   string               `json:"type"` // "status", "result" or "error"
	Status *planner.StatusEntry `json:"status,omitempty"`
	Result *planResponse        `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// planSocketHandler reads one profile, streams status entries while the plan
// runs, then sends the result and closes. Closing the socket cancels the plan.
func (s *Server) planSocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger := loggerFrom(c)

	var req planRequest
	if err := conn.ReadJSON(&req); err != nil {
		logger.Debug().Err(err).Msg("websocket closed before a profile was sent")
		return nil
	}
	profile, err := req.toProfile()
	if err != nil {
		return conn.WriteJSON(socketMessage{Type: "error", Error: err.Error()})
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		// Any read error, including a client close, ends the plan.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	report := func(e planner.StatusEntry) {
		if err := conn.WriteJSON(socketMessage{Type: "status", Status: &e}); err != nil {
			logger.Debug().Err(err).Msg("failed to stream status")
		}
	}

	result, err := s.svc.GeneratePlan(ctx, profile, report)
	if err != nil {
		return conn.WriteJSON(socketMessage{Type: "error", Error: err.Error()})
	}
	resp := newPlanResponse(profile, result)
	if err := conn.WriteJSON(socketMessage{Type: "result", Result: &resp}); err != nil {
		return nil
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"system": s.svc.Health(),
	})
}

type metricsResponse struct {
	Days   int                  `json:"days"`
	Daily  []metrics.DailyUsage `json:"daily"`
	Models []metrics.ModelUsage `json:"models"`
}

func (s *Server) metricsHandler(c echo.Context) error {
	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 365")
		}
		days = n
	}
	daily, models, err := s.svc.Usage(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, metricsResponse{Days: days, Daily: daily, Models: models})
}

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"smart-health/internal/app"
	"smart-health/internal/config"
	"smart-health/internal/planner"
	"smart-health/internal/telegram"
	"smart-health/internal/web"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	setupLogging(os.Args[1] != "serve")

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug().Msgf(format, args...)
	}))
	defer undo()
	if err != nil {
		log.Warn().Err(err).Msg("failed to set GOMAXPROCS")
	}

	config.LoadDotEnv()

	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "generate":
		err = runGenerate(os.Args[2:])
	case "metrics-cleanup":
		err = runCleanup(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

func printUsage() {
	fmt.Println("Usage: smart-health <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve              Run the web UI, JSON API and Telegram bot")
	fmt.Println("  generate           Generate a plan from flags and print it")
	fmt.Println("  metrics-cleanup    Remove old metric records")
}

// setupLogging uses a console writer for interactive commands and JSON for the server.
func setupLogging(console bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	zerolog.SetGlobalLevel(level)
	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func runServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.NewFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	application, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	server := web.NewServer(application, web.Options{Port: cfg.Port, RateLimitRPS: cfg.RateLimitRPS})
	g, gCtx := errgroup.WithContext(ctx)

	var bot *telegram.Bot
	if cfg.TelegramBotToken != "" {
		bot, err = telegram.NewBot(cfg, application)
		if err != nil {
			return err
		}
		if cfg.TelegramWebhookURL != "" {
			server.Mount("/telegram/webhook", bot)
		} else {
			g.Go(func() error { return bot.Run(gCtx) })
		}
	}

	srv := server.HTTPServer()
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if bot != nil {
		bot.Wait()
	}
	log.Info().Msg("Server exiting")
	return err
}

func runGenerate(args []string) error {
	def := planner.DefaultProfile()
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	name := fs.String("name", def.Name, "your name")
	age := fs.Int("age", def.Age, "age in years")
	gender := fs.String("gender", string(def.Gender), "gender")
	weight := fs.Float64("weight", def.WeightKG, "weight in kg")
	height := fs.Float64("height", def.HeightCM, "height in cm")
	activity := fs.String("activity", string(def.ActivityLevel), "activity level")
	goal := fs.String("goal", string(def.FitnessGoal), "primary fitness goal")
	diet := fs.String("diet", string(def.DietaryPreference), "dietary preference")
	if err := fs.Parse(args); err != nil {
		return err
	}

	profile := planner.Profile{Name: *name, Age: *age, WeightKG: *weight, HeightCM: *height}
	var err error
	if profile.Gender, err = planner.ParseGender(*gender); err != nil {
		return err
	}
	if profile.ActivityLevel, err = planner.ParseActivityLevel(*activity); err != nil {
		return err
	}
	if profile.FitnessGoal, err = planner.ParseFitnessGoal(*goal); err != nil {
		return err
	}
	if profile.DietaryPreference, err = planner.ParseDietaryPreference(*diet); err != nil {
		return err
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	cfg, err := loadConfigInteractive()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	application, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	bmi := profile.BMI()
	fmt.Printf("Your BMI: %.2f (%s)\n", bmi, planner.BMICategory(bmi))

	result, err := application.GeneratePlan(ctx, profile, func(e planner.StatusEntry) {
		fmt.Fprintln(os.Stderr, "> "+e.Message)
	})
	if err != nil {
		return err
	}
	app.PrintPlan(os.Stdout, result)
	return nil
}

// loadConfigInteractive asks for a Groq key on the terminal when none is set.
func loadConfigInteractive() (*config.Config, error) {
	cfg, err := config.NewFromEnv()
	if !errors.Is(err, config.ErrMissingAPIKey) {
		return cfg, err
	}

	fmt.Print("Enter your Groq API key: ")
	key, readErr := bufio.NewReader(os.Stdin).ReadString('\n')
	key = strings.TrimSpace(key)
	if key == "" {
		if readErr != nil {
			return nil, fmt.Errorf("reading api key: %w", readErr)
		}
		return nil, err
	}
	if err := os.Setenv("GROQ_API_KEY", key); err != nil {
		return nil, err
	}
	return config.NewFromEnv()
}

func runCleanup(args []string) error {
	fs := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
	days := fs.Int("days", 30, "Keep records for the last N days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx := context.Background()
	application, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	affected, err := application.CleanupMetrics(ctx, *days)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Printf("Successfully removed %d old metric records.\n", affected)
	return nil
}

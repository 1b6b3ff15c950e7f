package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/quizlive-backend/internal/client"
	"github.com/stemsi/quizlive-backend/internal/logger"
	"github.com/stemsi/quizlive-backend/internal/model"
	"github.com/stemsi/quizlive-backend/internal/relay"
	"golang.org/x/sync/errgroup"
)

// simulate-class drives one teacher and a room of students through a full
// session against a running server. Useful for load checks and demos.
func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:8080", "Server base URL")
		pin       = flag.String("pin", os.Getenv("TEACHER_PIN"), "Teacher PIN")
		name      = flag.String("teacher", "Simulated Teacher", "Teacher display name")
		students  = flag.Int("students", 25, "Number of students")
		questions = flag.Int("questions", 3, "Number of questions")
		maxDelay  = flag.Duration("max-delay", 3*time.Second, "Upper bound of a student's think time")
		timeout   = flag.Duration("timeout", 2*time.Minute, "Overall run timeout")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	log := logger.Setup(*logLevel, "pretty")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	if err := run(ctx, log, *baseURL, *pin, *name, *students, *questions, *maxDelay); err != nil {
		log.Fatal().Err(err).Msg("Simulation failed")
	}
}

func run(ctx context.Context, log zerolog.Logger, baseURL, pin, name string, students, questions int, maxDelay time.Duration) error {
	token, err := login(ctx, baseURL, pin, name)
	if err != nil {
		return err
	}
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http") + "/ws/v1/quiz"

	tc, err := client.Dial(ctx, wsURL, token, log)
	if err != nil {
		return err
	}
	defer tc.Close()
	teacher := client.NewTeacher(tc)

	started, err := teacher.StartSession(ctx, "")
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	log.Info().Str("session_code", started.SessionCode).Int("students", students).Msg("Session open")

	// students join and then play in the background
	g, gctx := errgroup.WithContext(ctx)
	joined := make(chan struct{}, students)
	for i := 0; i < students; i++ {
		i := i
		g.Go(func() error {
			return playStudent(gctx, log, wsURL, started.SessionCode, fmt.Sprintf("Student %02d", i+1), questions, maxDelay, joined)
		})
	}
	for i := 0; i < students; i++ {
		select {
		case <-joined:
		case <-gctx.Done():
			return g.Wait()
		}
	}
	log.Info().Msg("All students joined")

	for q := 1; q <= questions; q++ {
		question := model.LiveQuestion{
			ID:        fmt.Sprintf("sim-q%d", q),
			Text:      fmt.Sprintf("Question %d", q),
			MaxPoints: 10,
		}
		if err := teacher.StartQuestion(ctx, question); err != nil {
			return fmt.Errorf("start question %d: %w", q, err)
		}

		_, err := teacher.WaitFor(ctx, func(ev client.Event) bool {
			if ev.Name != relay.OutNewResponse {
				return false
			}
			var p relay.NewResponsePayload
			return ev.Decode(&p) == nil && len(p.Responses) >= students
		})
		if err != nil {
			return fmt.Errorf("collect responses: %w", err)
		}

		fastest := teacher.State().Responses[0]
		total, err := teacher.AwardPoints(ctx, fastest.ParticipantID, question.MaxPoints)
		if err != nil {
			return fmt.Errorf("award: %w", err)
		}
		log.Info().
			Str("question", question.ID).
			Str("fastest", fastest.DisplayName).
			Int64("elapsed_ms", fastest.ElapsedMillis).
			Int("total", total).
			Msg("Question closed")
	}

	result, err := teacher.EndSession(ctx)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, p := range result.Leaderboard {
		fmt.Printf("%2d. %-12s %4d\n", i+1, p.DisplayName, p.TotalPoints)
	}
	return nil
}

func playStudent(ctx context.Context, log zerolog.Logger, wsURL, code, name string, questions int, maxDelay time.Duration, joined chan<- struct{}) error {
	conn, err := client.Dial(ctx, wsURL, "", log)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := client.NewStudent(conn)
	if _, err := s.Join(ctx, code, name); err != nil {
		return fmt.Errorf("%s join: %w", name, err)
	}
	joined <- struct{}{}

	for q := 0; q < questions; q++ {
		if _, err := s.WaitForQuestion(ctx); err != nil {
			return fmt.Errorf("%s wait: %w", name, err)
		}
		select {
		case <-time.After(time.Duration(rand.Int63n(int64(maxDelay) + 1))):
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, err := s.Respond(ctx, nil); err != nil {
			return fmt.Errorf("%s respond: %w", name, err)
		}
	}

	_, err = s.WaitForEnd(ctx)
	return err
}

func login(ctx context.Context, baseURL, pin, name string) (string, error) {
	body, _ := json.Marshal(model.TeacherLoginRequest{PIN: pin, Name: name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/v1/auth/teacher", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Data  model.TeacherLoginResponse `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if env.Error != nil {
		return "", fmt.Errorf("login rejected: %s: %s", env.Error.Code, env.Error.Message)
	}
	return env.Data.Token, nil
}

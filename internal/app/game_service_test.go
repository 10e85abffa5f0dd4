package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizlive/internal/app"
	"quizlive/internal/domain"
	"quizlive/internal/infra/memory"
	"quizlive/internal/practice"
)

func newService() *app.GameService {
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
	}), time.Minute)
	return app.NewGameService(memory.NewGameStore(), quizzes, practice.Options{})
}

func TestJoinSharesGameByPIN(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	g1, ep1, err := svc.Join(ctx, "1234", "quiz-1", "alice")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	g2, ep2, err := svc.Join(ctx, "1234", "quiz-1", "bob")
	if err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if g1 != g2 {
		t.Fatalf("expected both players in one game")
	}
	if ep1.Name() != "alice" || ep2.Name() != "bob" {
		t.Fatalf("unexpected endpoint names %q %q", ep1.Name(), ep2.Name())
	}
	if g1.PIN() != "1234" || g1.QuizID() != "quiz-1" {
		t.Fatalf("unexpected game identity %s/%s", g1.PIN(), g1.QuizID())
	}
	if g1.Engine().Stage() != practice.StageLobby {
		t.Fatalf("expected lobby, got %s", g1.Engine().Stage())
	}
	if names := g1.Hub().Names(); len(names) != 3 || names[0] != app.ServerEndpoint {
		t.Fatalf("expected server endpoint then players, got %v", names)
	}
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	if _, _, err := svc.Join(ctx, "1234", "quiz-1", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := svc.Join(ctx, "1234", "quiz-1", "alice"); !errors.Is(err, app.ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken, got %v", err)
	}
	if _, _, err := svc.Join(ctx, "1234", "quiz-1", app.ServerEndpoint); !errors.Is(err, app.ErrNameTaken) {
		t.Fatalf("expected reserved name rejected, got %v", err)
	}
}

func TestJoinUnknownQuiz(t *testing.T) {
	svc := newService()
	if _, _, err := svc.Join(context.Background(), "1234", "missing", "alice"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestLeaveDropsEmptyGame(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	g1, _, err := svc.Join(ctx, "1234", "quiz-1", "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	svc.Leave(ctx, "1234", "alice")
	if !g1.IsEmpty() {
		t.Fatalf("expected game empty after leave")
	}

	g2, _, err := svc.Join(ctx, "1234", "quiz-1", "alice")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if g1 == g2 {
		t.Fatalf("expected a fresh game after the last player left")
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Type:         domain.MultipleChoice,
				Text:         "What is 2 + 2?",
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
				TimeLimit:    20,
			},
		},
	}
}

package cli

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"quizlive/internal/config"
	"quizlive/internal/domain"
	"quizlive/internal/registry"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "start", "migrate", "play", "host", "practice"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Fatalf("expected %s command, got %v", name, err)
		}
	}
}

func TestSampleQuizzesAreValid(t *testing.T) {
	reg := registry.New(nil)
	for id, quiz := range sampleQuizzes() {
		for i, q := range quiz.Questions {
			if v := reg.Validate(q); !v.Valid {
				t.Fatalf("quiz %s question %d invalid: %v", id, i+1, v.Error())
			}
		}
	}
}

func TestResolveQuiz(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mine.yaml")
	raw := "questions:\n  - type: true-false\n    question: Go has generics\n    correctAnswer: true\n    timeLimit: 10\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write quiz: %v", err)
	}
	quiz, err := resolveQuiz(context.Background(), config.Config{}, path)
	if err != nil {
		t.Fatalf("resolve file: %v", err)
	}
	if len(quiz.Questions) != 1 || !quiz.Questions[0].CorrectBool {
		t.Fatalf("unexpected quiz from file %+v", quiz)
	}

	sample, err := resolveQuiz(context.Background(), config.Config{}, "sample")
	if err != nil || len(sample.Questions) == 0 {
		t.Fatalf("expected built-in sample quiz, got %v", err)
	}

	if _, err := resolveQuiz(context.Background(), config.Config{}, "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestHTTPOrigin(t *testing.T) {
	cases := map[string]string{
		"ws://localhost:8080/ws?pin=1": "http://localhost:8080",
		"wss://quiz.example.com/ws":    "https://quiz.example.com",
		"http://127.0.0.1:9000/ws":     "http://127.0.0.1:9000",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %s: %v", raw, err)
		}
		got, err := httpOrigin(u)
		if err != nil || got != want {
			t.Fatalf("origin of %s: got %q, %v; want %q", raw, got, err, want)
		}
	}
	u, _ := url.Parse("ftp://host/ws")
	if _, err := httpOrigin(u); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
}

// Package state holds the canonical per-session client state. Invariants
// are enforced here, at the boundary, rather than by callers.
package state

import (
	"errors"
	"sync"

	"quizlive/internal/domain"
)

var (
	// ErrNoQuestion is returned when an operation needs a current question.
	ErrNoQuestion = errors.New("no current question")
	// ErrNoSelection is returned when submitting without a selected answer.
	ErrNoSelection = errors.New("no answer selected")
	// ErrNotPlayer is returned when a host tries to answer.
	ErrNotPlayer = errors.New("only players submit answers")
	// ErrResultShown is returned when acting after the result is on screen.
	ErrResultShown = errors.New("result already shown")
	// ErrAnswersClosed is returned when submitting after the question closed.
	ErrAnswersClosed = errors.New("answers closed")
)

// Event names what changed.
type Event string

const (
	EventIdentity  Event = "identity"
	EventQuestion  Event = "question"
	EventSelection Event = "selection"
	EventSubmitted Event = "submitted"
	EventResult    Event = "result"
	EventAnswer    Event = "answer"
	EventScore     Event = "score"
	EventReset     Event = "reset"
)

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Role            domain.Role
	PlayerName      string
	GamePin         string
	CurrentQuestion *domain.Question
	CurrentIndex    int
	TotalQuestions  int
	SelectedAnswer  *domain.Answer
	AnswerSubmitted bool
	ResultShown     bool
	// AnswersClosed is set once the question stops taking answers, which
	// can happen without a submission (timeout, early end).
	AnswersClosed   bool
	AnswersByPlayer map[string]domain.Answer
	Score           int
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		out.CurrentQuestion = &q
	}
	if s.SelectedAnswer != nil {
		a := *s.SelectedAnswer
		out.SelectedAnswer = &a
	}
	out.AnswersByPlayer = make(map[string]domain.Answer, len(s.AnswersByPlayer))
	for k, v := range s.AnswersByPlayer {
		out.AnswersByPlayer[k] = v
	}
	return out
}

// Observer is notified after every committed change.
type Observer func(Event, Snapshot)

// Store is safe for concurrent use; observers run outside the lock.
type Store struct {
	mu        sync.RWMutex
	s         Snapshot
	observers map[int]Observer
	nextObs   int
}

func NewStore() *Store {
	return &Store{
		s:         Snapshot{AnswersByPlayer: make(map[string]domain.Answer)},
		observers: make(map[int]Observer),
	}
}

// Get returns a snapshot.
func (st *Store) Get() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.s.clone()
}

// Subscribe registers obs and returns its cancel function.
func (st *Store) Subscribe(obs Observer) func() {
	st.mu.Lock()
	id := st.nextObs
	st.nextObs++
	st.observers[id] = obs
	st.mu.Unlock()
	return func() {
		st.mu.Lock()
		delete(st.observers, id)
		st.mu.Unlock()
	}
}

func (st *Store) SetRole(r domain.Role) {
	st.update(EventIdentity, func(s *Snapshot) error { s.Role = r; return nil })
}

func (st *Store) SetPlayerName(name string) {
	st.update(EventIdentity, func(s *Snapshot) error { s.PlayerName = name; return nil })
}

func (st *Store) SetGamePin(pin string) {
	st.update(EventIdentity, func(s *Snapshot) error { s.GamePin = pin; return nil })
}

// InitializeForQuestion installs q and clears every per-question field
// in one step, before any observer sees the new question.
func (st *Store) InitializeForQuestion(q domain.Question, index, total int) {
	st.update(EventQuestion, func(s *Snapshot) error {
		qc := q
		s.CurrentQuestion = &qc
		s.CurrentIndex = index
		s.TotalQuestions = total
		s.SelectedAnswer = nil
		s.AnswerSubmitted = false
		s.ResultShown = false
		s.AnswersClosed = false
		s.AnswersByPlayer = make(map[string]domain.Answer)
		return nil
	})
}

// SetSelectedAnswer records the current choice before submission.
func (st *Store) SetSelectedAnswer(a domain.Answer) error {
	return st.update(EventSelection, func(s *Snapshot) error {
		if s.CurrentQuestion == nil {
			return ErrNoQuestion
		}
		if s.AnswerSubmitted {
			return domain.E(domain.KindDuplicateSubmission, "select", domain.ErrAlreadySubmitted)
		}
		s.SelectedAnswer = &a
		return nil
	})
}

// MarkSubmitted flags the selected answer as sent.
func (st *Store) MarkSubmitted() error {
	return st.update(EventSubmitted, func(s *Snapshot) error {
		if s.AnswerSubmitted {
			return domain.E(domain.KindDuplicateSubmission, "submit", domain.ErrAlreadySubmitted)
		}
		if s.AnswersClosed {
			return domain.E(domain.KindDuplicateSubmission, "submit", ErrAnswersClosed)
		}
		if s.SelectedAnswer == nil {
			return ErrNoSelection
		}
		s.AnswerSubmitted = true
		return nil
	})
}

// Submit atomically checks the acceptance rule (player, question shown,
// not yet submitted, answers open, no result shown), selects a and marks
// it submitted.
// A rejected submission leaves the state untouched.
func (st *Store) Submit(a domain.Answer) error {
	return st.update(EventSubmitted, func(s *Snapshot) error {
		switch {
		case s.Role != domain.RolePlayer:
			return ErrNotPlayer
		case s.CurrentQuestion == nil:
			return ErrNoQuestion
		case s.AnswerSubmitted:
			return domain.E(domain.KindDuplicateSubmission, "submit", domain.ErrAlreadySubmitted)
		case s.ResultShown:
			return domain.E(domain.KindDuplicateSubmission, "submit", ErrResultShown)
		case s.AnswersClosed:
			return domain.E(domain.KindDuplicateSubmission, "submit", ErrAnswersClosed)
		}
		s.SelectedAnswer = &a
		s.AnswerSubmitted = true
		if s.PlayerName != "" {
			s.AnswersByPlayer[s.PlayerName] = a
		}
		return nil
	})
}

// MarkResultShown requires a prior submission unless the role is host.
func (st *Store) MarkResultShown() error {
	return st.update(EventResult, func(s *Snapshot) error {
		if !s.AnswerSubmitted && s.Role != domain.RoleHost {
			return ErrNoSelection
		}
		s.ResultShown = true
		return nil
	})
}

// CloseAnswers ends the answering window whether or not the player
// answered; later submissions are rejected. ResultShown is left to
// MarkResultShown.
func (st *Store) CloseAnswers() {
	st.update(EventResult, func(s *Snapshot) error {
		if s.CurrentQuestion == nil {
			return ErrNoQuestion
		}
		s.AnswersClosed = true
		return nil
	})
}

// RecordAnswer stores a player's answer. Players only keep their own.
func (st *Store) RecordAnswer(playerName string, a domain.Answer) error {
	return st.update(EventAnswer, func(s *Snapshot) error {
		if s.Role == domain.RolePlayer && playerName != s.PlayerName {
			return ErrNotPlayer
		}
		s.AnswersByPlayer[playerName] = a
		return nil
	})
}

// SetScore replaces the running score.
func (st *Store) SetScore(score int) {
	st.update(EventScore, func(s *Snapshot) error { s.Score = score; return nil })
}

// AddScore adds delta to the running score and returns the new total.
func (st *Store) AddScore(delta int) int {
	var total int
	st.update(EventScore, func(s *Snapshot) error {
		s.Score += delta
		total = s.Score
		return nil
	})
	return total
}

// Reset clears everything, identity included.
func (st *Store) Reset() {
	st.update(EventReset, func(s *Snapshot) error {
		*s = Snapshot{AnswersByPlayer: make(map[string]domain.Answer)}
		return nil
	})
}

func (st *Store) update(ev Event, fn func(*Snapshot) error) error {
	st.mu.Lock()
	if err := fn(&st.s); err != nil {
		st.mu.Unlock()
		return err
	}
	snap := st.s.clone()
	observers := make([]Observer, 0, len(st.observers))
	for _, o := range st.observers {
		observers = append(observers, o)
	}
	st.mu.Unlock()

	for _, o := range observers {
		o(ev, snap)
	}
	return nil
}

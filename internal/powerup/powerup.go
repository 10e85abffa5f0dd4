// Package powerup tracks the single-use power-up inventory of a player.
// The same inventory backs the client UI and the practice server's
// enforcement.
package powerup

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quizlive/internal/domain"
	"quizlive/internal/protocol"
)

var (
	ErrUsed        = errors.New("power-up already used")
	ErrUnavailable = errors.New("power-up not available for this question")
	ErrUnknown     = errors.New("unknown power-up")
)

// MinFiftyFiftyOptions is the smallest visible option count 50/50 accepts.
const MinFiftyFiftyOptions = 4

// Context is what availability depends on.
type Context struct {
	QuestionType   domain.QuestionType
	VisibleOptions int
	TimerRunning   bool
	// Closed is set once the player has answered or the question ended.
	Closed bool
}

// Slot is one inventory entry as seen by the UI.
type Slot struct {
	Type      protocol.PowerUpType
	Label     string
	Used      bool
	Available bool
}

var labels = map[protocol.PowerUpType]string{
	protocol.PowerUpFiftyFifty:   "50/50",
	protocol.PowerUpExtendTime:   "+Time",
	protocol.PowerUpDoublePoints: "2x Points",
}

// Inventory is safe for concurrent use.
type Inventory struct {
	mu    sync.Mutex
	used  map[protocol.PowerUpType]bool
	armed bool
}

func NewInventory() *Inventory {
	return &Inventory{used: make(map[protocol.PowerUpType]bool)}
}

// Check reports why t cannot be used now, or nil.
func (inv *Inventory) Check(t protocol.PowerUpType, ctx Context) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.checkLocked(t, ctx)
}

func (inv *Inventory) checkLocked(t protocol.PowerUpType, ctx Context) error {
	if _, ok := labels[t]; !ok {
		return ErrUnknown
	}
	if inv.used[t] {
		return ErrUsed
	}
	if ctx.Closed {
		return ErrUnavailable
	}
	switch t {
	case protocol.PowerUpFiftyFifty:
		if ctx.QuestionType != domain.MultipleChoice || ctx.VisibleOptions < MinFiftyFiftyOptions {
			return ErrUnavailable
		}
	case protocol.PowerUpExtendTime:
		if !ctx.TimerRunning {
			return ErrUnavailable
		}
	}
	return nil
}

// Use consumes t. Double points is armed until the next ApplyScore.
func (inv *Inventory) Use(t protocol.PowerUpType, ctx Context) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.checkLocked(t, ctx); err != nil {
		return err
	}
	inv.used[t] = true
	if t == protocol.PowerUpDoublePoints {
		inv.armed = true
	}
	return nil
}

// Refund returns t to the inventory after the server rejected it.
func (inv *Inventory) Refund(t protocol.PowerUpType) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.used, t)
	if t == protocol.PowerUpDoublePoints {
		inv.armed = false
	}
}

// ApplyScore is the scoring hook: while double points is armed the
// points are doubled and the flag clears, whatever the outcome.
func (inv *Inventory) ApplyScore(points int) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !inv.armed {
		return points
	}
	inv.armed = false
	return points * 2
}

// Disarm clears double points without scoring, used when the client
// learns the server already applied it.
func (inv *Inventory) Disarm() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	was := inv.armed
	inv.armed = false
	return was
}

func (inv *Inventory) Armed() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.armed
}

func (inv *Inventory) Used(t protocol.PowerUpType) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.used[t]
}

// Slots lists the inventory in a stable order.
func (inv *Inventory) Slots(ctx Context) []Slot {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]Slot, 0, len(protocol.PowerUpTypes))
	for _, t := range protocol.PowerUpTypes {
		out = append(out, Slot{
			Type:      t,
			Label:     labels[t],
			Used:      inv.used[t],
			Available: inv.checkLocked(t, ctx) == nil,
		})
	}
	return out
}

// Reset refills the inventory for a new session.
func (inv *Inventory) Reset() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.used = make(map[protocol.PowerUpType]bool)
	inv.armed = false
}

// HideWrong picks ⌈(n-1)/2⌉ of the visible wrong options uniformly at
// random, where n is the number of visible options. The correct option is
// never picked.
func HideWrong(rnd *rand.Rand, visible []int, correct int) []int {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	wrong := make([]int, 0, len(visible))
	for _, i := range visible {
		if i != correct {
			wrong = append(wrong, i)
		}
	}
	n := len(visible)
	k := n / 2 // ⌈(n-1)/2⌉
	if k > len(wrong) {
		k = len(wrong)
	}
	rnd.Shuffle(len(wrong), func(i, j int) { wrong[i], wrong[j] = wrong[j], wrong[i] })
	hidden := append([]int(nil), wrong[:k]...)
	sort.Ints(hidden)
	return hidden
}

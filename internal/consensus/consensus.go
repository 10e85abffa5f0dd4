// Package consensus implements team mode: the client overlay that shows
// proposals and discussion, and the server tally that aggregates them.
package consensus

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"quizlive/internal/protocol"
)

const (
	// MaxMessageLen bounds chat messages in characters.
	MaxMessageLen = 200
	// FeedCap is how many feed items the UI keeps.
	FeedCap = 30
	// DefaultThreshold applies when the config leaves it unset.
	DefaultThreshold = 66
)

var (
	ErrDisabled       = errors.New("consensus mode disabled")
	ErrLocked         = errors.New("consensus already locked")
	ErrBelowThreshold = errors.New("consensus below threshold")
	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
	ErrChatDisabled   = errors.New("chat disabled")
	ErrQuickResponse  = errors.New("unknown quick response")
)

type Config struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
	AllowChat bool    `yaml:"allowChat"`
}

func (c Config) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultThreshold
	}
	return c.Threshold
}

// Item is one discussion feed entry.
type Item struct {
	Author string
	Text   string
	// Kind is "chat" or the quick response type.
	Kind   string
	Target string
	At     time.Time
}

// Overlay is the client-side team state for the current question.
type Overlay struct {
	mu        sync.Mutex
	cfg       Config
	update    protocol.ProposalUpdate
	locked    bool
	reached   *protocol.ConsensusReached
	feed      []Item
	teamScore int
}

func NewOverlay(cfg Config) *Overlay {
	return &Overlay{cfg: cfg}
}

func (o *Overlay) Enabled() bool { return o.cfg.Enabled }

func (o *Overlay) Threshold() float64 { return o.cfg.threshold() }

// ValidateChat trims text and enforces the length limit.
func (o *Overlay) ValidateChat(text string) (string, error) {
	if !o.cfg.Enabled {
		return "", ErrDisabled
	}
	if !o.cfg.AllowChat {
		return "", ErrChatDisabled
	}
	return ValidateMessage(text)
}

// ValidateMessage trims text and enforces the length limit.
func ValidateMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// ValidateQuick checks a quick response type.
func ValidateQuick(t protocol.QuickResponseType) error {
	if !t.Valid() {
		return ErrQuickResponse
	}
	return nil
}

// ApplyProposals replaces the distribution. Updates after the lock are
// ignored and reported as false.
func (o *Overlay) ApplyProposals(u protocol.ProposalUpdate) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locked {
		return false
	}
	o.update = u
	return true
}

// Update returns the latest distribution.
func (o *Overlay) Update() protocol.ProposalUpdate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.update
}

// LockEnabled reports whether the host may lock now.
func (o *Overlay) LockEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lockEnabledLocked()
}

func (o *Overlay) lockEnabledLocked() bool {
	return o.cfg.Enabled && !o.locked && o.update.TotalPlayers > 0 && o.update.ConsensusPercent >= o.cfg.threshold()
}

// Lock marks the current answer as locked.
func (o *Overlay) Lock() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case !o.cfg.Enabled:
		return ErrDisabled
	case o.locked:
		return ErrLocked
	case !o.lockEnabledLocked():
		return ErrBelowThreshold
	}
	o.locked = true
	return nil
}

func (o *Overlay) Locked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.locked
}

// ApplyReached records the team outcome and locks the question.
func (o *Overlay) ApplyReached(r protocol.ConsensusReached) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.locked = true
	o.reached = &r
	o.teamScore = r.TotalTeamScore
}

// Reached returns the team outcome of the current question, if any.
func (o *Overlay) Reached() (protocol.ConsensusReached, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.reached == nil {
		return protocol.ConsensusReached{}, false
	}
	return *o.reached, true
}

func (o *Overlay) SetTeamScore(total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.teamScore = total
}

func (o *Overlay) TeamScore() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.teamScore
}

// AddChat appends a chat message to the feed.
func (o *Overlay) AddChat(m protocol.ChatMessage) {
	o.push(Item{Author: m.PlayerName, Text: m.Text, Kind: "chat", At: m.Timestamp})
}

// AddQuick appends a quick response to the feed.
func (o *Overlay) AddQuick(m protocol.QuickResponse) {
	o.push(Item{Author: m.PlayerName, Text: m.Type.Text(), Kind: string(m.Type), Target: m.TargetPlayer, At: m.Timestamp})
}

func (o *Overlay) push(it Item) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feed = append(o.feed, it)
	if n := len(o.feed) - FeedCap; n > 0 {
		o.feed = append([]Item(nil), o.feed[n:]...)
	}
}

// Feed returns the retained messages, oldest first.
func (o *Overlay) Feed() []Item {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Item(nil), o.feed...)
}

// NextQuestion clears the per-question state. The feed and team score
// carry over.
func (o *Overlay) NextQuestion() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.update = protocol.ProposalUpdate{}
	o.locked = false
	o.reached = nil
}

// Reset clears everything.
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.update = protocol.ProposalUpdate{}
	o.locked = false
	o.reached = nil
	o.feed = nil
	o.teamScore = 0
}

// Tally aggregates proposals on the server for one question.
type Tally struct {
	mu        sync.Mutex
	proposals map[string]string
	order     map[string]int
	seq       int
	locked    bool
}

func NewTally() *Tally {
	return &Tally{proposals: make(map[string]string), order: make(map[string]int)}
}

// Propose records player's current proposal. Proposals after Lock are
// ignored and reported as false.
func (t *Tally) Propose(player, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locked {
		return false
	}
	t.proposals[player] = key
	t.seq++
	if _, ok := t.order[key]; !ok {
		t.order[key] = t.seq
	}
	return true
}

// Update computes the distribution. consensusPercent is the leading
// answer's share of all players; ties go to the answer proposed first.
func (t *Tally) Update(totalPlayers int) protocol.ProposalUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	proposals := make(map[string]protocol.ProposalEntry)
	players := make([]string, 0, len(t.proposals))
	for p := range t.proposals {
		players = append(players, p)
	}
	sort.Strings(players)
	for _, p := range players {
		key := t.proposals[p]
		e := proposals[key]
		e.Count++
		e.PlayerNames = append(e.PlayerNames, p)
		proposals[key] = e
	}

	leading := ""
	for key, e := range proposals {
		if leading == "" {
			leading = key
			continue
		}
		best := proposals[leading]
		if e.Count > best.Count || (e.Count == best.Count && t.order[key] < t.order[leading]) {
			leading = key
		}
	}

	u := protocol.ProposalUpdate{Proposals: proposals, TotalPlayers: totalPlayers, LeadingAnswer: leading}
	if totalPlayers > 0 && leading != "" {
		u.ConsensusPercent = float64(proposals[leading].Count) / float64(totalPlayers) * 100
	}
	return u
}

// Lock freezes the tally and returns the leading answer.
func (t *Tally) Lock(totalPlayers int) (string, error) {
	u := t.Update(totalPlayers)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locked {
		return "", ErrLocked
	}
	if u.LeadingAnswer == "" {
		return "", ErrBelowThreshold
	}
	t.locked = true
	return u.LeadingAnswer, nil
}

func (t *Tally) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locked
}

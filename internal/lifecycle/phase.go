package lifecycle

// Phase is the controller's position in the game.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLobby
	PhaseDisplayed
	PhaseRevealed
	PhaseLeaderboard
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLobby:
		return "lobby"
	case PhaseDisplayed:
		return "displayed"
	case PhaseRevealed:
		return "revealed"
	case PhaseLeaderboard:
		return "leaderboard"
	case PhaseFinished:
		return "finished"
	}
	return "unknown"
}

// acceptsQuestion reports whether a display-question may move the game
// forward from p.
func (p Phase) acceptsQuestion() bool {
	switch p {
	case PhaseLobby, PhaseDisplayed, PhaseRevealed, PhaseLeaderboard:
		return true
	}
	return false
}

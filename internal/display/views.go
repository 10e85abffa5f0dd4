package display

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"quizlive/internal/dom"
	"quizlive/internal/domain"
	"quizlive/internal/protocol"
	"quizlive/internal/stats"
)

// RenderStatistics draws the host's answer distribution.
func (c *Coordinator) RenderStatistics(v stats.View) {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="answered-count">%d / %d answered</div>`, v.Answered, v.Total)
	if len(v.Bars) > 0 {
		b.WriteString(`<div class="stat-bars">`)
		for _, bar := range v.Bars {
			fmt.Fprintf(&b, `<div class="stat-bar" data-option="%d"><span class="stat-label">%s</span><span class="stat-fill" style="width:%d%%"></span><span class="stat-count">%d</span><span class="stat-percent">%d%%</span></div>`,
				bar.Option, bar.Label, roundPercent(bar.Percent), bar.Count, roundPercent(bar.Percent))
		}
		b.WriteString(`</div>`)
	}
	if len(v.Top) > 0 {
		b.WriteString(`<ol class="stat-top">`)
		for _, e := range v.Top {
			fmt.Fprintf(&b, `<li class="stat-entry" data-key="%s"><span class="stat-label">%s</span><span class="stat-count">%d</span><span class="stat-percent">%d%%</span></li>`,
				dom.Escape(e.Key), dom.Escape(e.Label), e.Count, roundPercent(e.Percent))
		}
		b.WriteString(`</ol>`)
	}
	if len(v.Bars) == 0 && len(v.Top) == 0 {
		b.WriteString(`<div class="stat-empty">No answers yet</div>`)
	}
	c.doc.ByID(dom.AnswerStatistics).SetHtml(b.String())
}

func roundPercent(p float64) int { return int(math.Round(p)) }

// RenderLeaderboard draws the standings into the pane's leaderboard.
func (c *Coordinator) RenderLeaderboard(entries []domain.LeaderboardEntry, final bool) {
	var b strings.Builder
	if final {
		b.WriteString(`<h2 class="final-results">Final Results</h2>`)
	}
	if len(entries) == 0 {
		b.WriteString(`<div class="leaderboard-empty">No players</div>`)
	}
	b.WriteString(`<ol class="leaderboard-list">`)
	for i, e := range entries {
		fmt.Fprintf(&b, `<li class="leaderboard-entry" data-rank="%d"><span class="player-name">%s</span><span class="player-score">%d</span></li>`,
			i+1, dom.Escape(e.Name), e.Score)
	}
	b.WriteString(`</ol>`)
	c.doc.ByID(c.pane.Leaderboard).SetHtml(b.String())
}

// RenderLobby lists the players who have joined.
func (c *Coordinator) RenderLobby(pin string, players []string) {
	var b strings.Builder
	if pin != "" {
		fmt.Fprintf(&b, `<div class="game-pin">PIN %s</div>`, dom.Escape(pin))
	}
	fmt.Fprintf(&b, `<div class="player-count">%d players</div><ul class="lobby-players">`, len(players))
	for _, p := range players {
		fmt.Fprintf(&b, `<li>%s</li>`, dom.Escape(p))
	}
	b.WriteString(`</ul>`)
	c.doc.ByID(c.pane.Question).SetHtml(b.String())
}

// ConsensusView is what the consensus panel shows.
type ConsensusView struct {
	Update      protocol.ProposalUpdate
	Threshold   float64
	LockEnabled bool
	Locked      bool
	Label       func(key string) string
}

// RenderConsensus draws the proposal distribution and, for hosts, the
// lock control.
func (c *Coordinator) RenderConsensus(v ConsensusView) {
	keys := make([]string, 0, len(v.Update.Proposals))
	for k := range v.Update.Proposals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := v.Update.Proposals[keys[i]], v.Update.Proposals[keys[j]]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return keys[i] < keys[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="consensus-meter" data-percent="%d">Consensus %d%% (need %d%%)</div>`,
		roundPercent(v.Update.ConsensusPercent), roundPercent(v.Update.ConsensusPercent), roundPercent(v.Threshold))
	b.WriteString(`<ul class="proposals">`)
	for _, k := range keys {
		p := v.Update.Proposals[k]
		label := k
		if v.Label != nil {
			label = v.Label(k)
		}
		leading := ""
		if k == v.Update.LeadingAnswer {
			leading = " leading"
		}
		fmt.Fprintf(&b, `<li class="proposal%s" data-answer="%s"><span class="proposal-label">%s</span><span class="proposal-count">%d</span><span class="proposal-players">%s</span></li>`,
			leading, dom.Escape(k), dom.Escape(label), p.Count, dom.Escape(strings.Join(p.PlayerNames, ", ")))
	}
	b.WriteString(`</ul>`)
	if c.role == domain.RoleHost {
		disabled := ""
		if !v.LockEnabled || v.Locked {
			disabled = ` disabled="disabled"`
		}
		text := "Lock answer"
		if v.Locked {
			text = "Locked"
		}
		fmt.Fprintf(&b, `<button id="lock-consensus" class="lock-consensus"%s>%s</button>`, disabled, text)
	}
	c.doc.ByID(c.pane.Consensus).SetHtml(b.String())
}

// RenderConsensusReached shows the team outcome.
func (c *Coordinator) RenderConsensusReached(r protocol.ConsensusReached, label string) {
	class := dom.ClassIncorrect
	title := "Team answer incorrect"
	if r.IsCorrect {
		class = dom.ClassCorrect
		title = fmt.Sprintf("Team answer correct! +%d", r.TeamPoints)
	}
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="consensus-result %s"><div class="consensus-title">%s</div>`, class, dom.Escape(title))
	if label != "" {
		fmt.Fprintf(&b, `<div class="consensus-answer">%s</div>`, dom.Escape(label))
	}
	fmt.Fprintf(&b, `<div class="team-score">Team score: %d</div></div>`, r.TotalTeamScore)
	c.doc.ByID(c.pane.Consensus).AppendHtml(b.String())
	c.Announce(title)
}

// SetTeamScore updates the team score line.
func (c *Coordinator) SetTeamScore(total int) {
	panel := c.doc.ByID(c.pane.Consensus)
	if score := panel.Find(".team-score"); dom.Exists(score) {
		score.SetText(fmt.Sprintf("Team score: %d", total))
		return
	}
	panel.AppendHtml(fmt.Sprintf(`<div class="team-score">Team score: %d</div>`, total))
}

// FeedItem is one line of the discussion feed.
type FeedItem struct {
	Author string
	Text   string
	// Kind is "chat" or a quick response type.
	Kind   string
	Target string
}

// RenderFeed redraws the discussion feed, oldest first.
func (c *Coordinator) RenderFeed(items []FeedItem) {
	var b strings.Builder
	for _, it := range items {
		target := ""
		if it.Target != "" {
			target = fmt.Sprintf(` <span class="feed-target">@%s</span>`, dom.Escape(it.Target))
		}
		fmt.Fprintf(&b, `<div class="feed-item feed-%s"><span class="feed-author">%s</span>%s <span class="feed-text">%s</span></div>`,
			dom.Escape(it.Kind), dom.Escape(it.Author), target, dom.Escape(it.Text))
	}
	c.doc.ByID(c.pane.Discussion).SetHtml(b.String())
}

// PowerUpSlot is one inventory entry.
type PowerUpSlot struct {
	Type      protocol.PowerUpType
	Label     string
	Available bool
	Used      bool
}

// RenderPowerUps draws the player's inventory.
func (c *Coordinator) RenderPowerUps(slots []PowerUpSlot) {
	var b strings.Builder
	for _, s := range slots {
		attrs := ""
		class := "powerup"
		if s.Used {
			class += " used"
		}
		if s.Used || !s.Available {
			attrs = ` disabled="disabled"`
		}
		fmt.Fprintf(&b, `<button class="%s" data-powerup="%s"%s>%s</button>`, class, s.Type, attrs, dom.Escape(s.Label))
	}
	c.doc.ByID(dom.PowerUps).SetHtml(b.String())
}

// HideOptions hides player options by index.
func (c *Coordinator) HideOptions(indices []int) {
	options := c.doc.ByID(c.pane.Options)
	for _, i := range indices {
		opt := options.Find(fmt.Sprintf(`[data-option="%d"]`, i))
		opt.AddClass(dom.ClassHidden)
		dom.Disable(opt)
	}
}

// VisibleOptions lists option indices that are not hidden.
func (c *Coordinator) VisibleOptions() []int {
	var out []int
	c.doc.ByID(c.pane.Options).Find("[data-option]").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass(dom.ClassHidden) {
			return
		}
		var n int
		if _, err := fmt.Sscan(s.AttrOr("data-option", ""), &n); err == nil {
			out = append(out, n)
		}
	})
	return out
}

// Notice shows a non-modal message and announces it.
func (c *Coordinator) Notice(msg string) {
	c.doc.ByID(dom.Notice).SetHtml(fmt.Sprintf(`<div class="%s">%s</div>`, dom.ClassErrorNotice, dom.Escape(msg)))
	c.Announce(msg)
}

func (c *Coordinator) ClearNotice() {
	c.doc.ByID(dom.Notice).Empty()
}

// RenderError replaces the question with a styled error notice.
func (c *Coordinator) RenderError(msg string) {
	c.doc.ByID(c.pane.Question).SetHtml(fmt.Sprintf(`<div class="%s">%s</div>`, dom.ClassErrorNotice, dom.Escape(msg)))
	c.Announce(msg)
}

// Announce writes msg to the aria-live region.
func (c *Coordinator) Announce(msg string) {
	c.doc.ByID(dom.LiveRegion).SetText(msg)
}

// Package audio keeps the per-guild playback state the now-playing panel
// renders: the current track, a position clock, the queue and the history.
package audio

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type PlayerStatus string

const (
	StatusPlaying PlayerStatus = "Playing"
	StatusAdded   PlayerStatus = "Track(s) Added"
	StatusStopped PlayerStatus = "Playback Stopped"
	StatusPaused  PlayerStatus = "Playback Paused"
	StatusResumed PlayerStatus = "Playback Resumed"
)

func (status PlayerStatus) StringEmoji() string {
	m := map[PlayerStatus]string{
		StatusPlaying: "▶️",
		StatusAdded:   "🎶",
		StatusStopped: "⏹️",
		StatusPaused:  "⏸️",
		StatusResumed: "▶️",
	}
	return m[status]
}

var (
	ErrNoTrackPlaying  = errors.New("no track is currently playing")
	ErrNoTracksInQueue = errors.New("no tracks in queue")
	ErrNoHistory       = errors.New("no previous track")
)

// Track is one playable item. A zero Length means the length is unknown.
type Track struct {
	Title     string
	URL       string
	Requester string
	Length    time.Duration
	Stream    bool
	Thumbnail string
}

// Snapshot is a consistent copy of a player's state.
type Snapshot struct {
	Current  *Track
	Position time.Duration
	Paused   bool
	Queue    []Track
	History  []Track
}

// Player is the playback state of one guild. It is safe for concurrent use.
type Player struct {
	mu      sync.Mutex
	current *Track
	queue   []Track
	history []Track

	paused  bool
	started time.Time     // when the clock last resumed
	elapsed time.Duration // position accumulated before started

	now func() time.Time
	log zerolog.Logger
}

func NewPlayer(guildID string) *Player {
	return newPlayer(guildID, time.Now)
}

func newPlayer(guildID string, now func() time.Time) *Player {
	return &Player{
		queue:   make([]Track, 0),
		history: make([]Track, 0),
		now:     now,
		log:     log.With().Str("component", "audio").Str("guild", guildID).Logger(),
	}
}

// Enqueue appends tracks and starts the first one when nothing is playing.
func (p *Player) Enqueue(tracks ...Track) PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()

	p.queue = append(p.queue, tracks...)
	p.log.Debug().Int("added", len(tracks)).Int("queue", len(p.queue)).Msg("enqueued")
	if p.current == nil && len(p.queue) > 0 {
		p.startNext()
		return StatusPlaying
	}
	return StatusAdded
}

// Skip moves the current track to the history and plays the next queued one.
// Skipping the last track stops playback.
func (p *Player) Skip() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()

	if p.current == nil {
		return ErrNoTrackPlaying
	}
	p.history = append(p.history, *p.current)
	p.current = nil
	if len(p.queue) == 0 {
		p.log.Debug().Msg("skipped last track")
		return nil
	}
	p.startNext()
	return nil
}

// Previous replays the last finished track, putting the current one back at
// the head of the queue.
func (p *Player) Previous() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()

	if len(p.history) == 0 {
		return ErrNoHistory
	}
	prev := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	if p.current != nil {
		p.queue = slices.Insert(p.queue, 0, *p.current)
	}
	p.play(prev)
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()

	if p.current == nil {
		return ErrNoTrackPlaying
	}
	if !p.paused {
		p.elapsed += p.now().Sub(p.started)
		p.paused = true
	}
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNoTrackPlaying
	}
	if p.paused {
		p.started = p.now()
		p.paused = false
	}
	return nil
}

// TogglePause pauses a playing track or resumes a paused one.
func (p *Player) TogglePause() (PlayerStatus, error) {
	if p.Snapshot().Paused {
		return StatusResumed, p.Resume()
	}
	if err := p.Pause(); err != nil {
		return "", err
	}
	return StatusPaused, nil
}

// Stop ends playback and clears the queue. The history is kept.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()

	if p.current == nil {
		return ErrNoTrackPlaying
	}
	p.history = append(p.history, *p.current)
	p.current = nil
	p.queue = p.queue[:0]
	p.paused = false
	p.log.Debug().Msg("stopped")
	return nil
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()

	s := Snapshot{
		Paused:  p.paused,
		Queue:   slices.Clone(p.queue),
		History: slices.Clone(p.history),
	}
	if p.current != nil {
		cur := *p.current
		s.Current = &cur
		s.Position = p.position()
	}
	return s
}

// position is the clock value of the current track. Caller holds mu.
func (p *Player) position() time.Duration {
	pos := p.elapsed
	if !p.paused {
		pos += p.now().Sub(p.started)
	}
	if l := p.current.Length; l > 0 && !p.current.Stream && pos > l {
		pos = l
	}
	return pos
}

// advance moves past tracks whose known length has fully elapsed. Caller holds mu.
func (p *Player) advance() {
	for p.current != nil && !p.paused && !p.current.Stream && p.current.Length > 0 {
		over := p.elapsed + p.now().Sub(p.started) - p.current.Length
		if over < 0 {
			return
		}
		p.history = append(p.history, *p.current)
		p.current = nil
		if len(p.queue) == 0 {
			return
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.play(next)
		// carry the overshoot into the next track
		p.started = p.now().Add(-over)
	}
}

// startNext pops the queue head into current. Caller holds mu.
func (p *Player) startNext() {
	next := p.queue[0]
	p.queue = p.queue[1:]
	p.play(next)
}

func (p *Player) play(t Track) {
	p.current = &t
	p.elapsed = 0
	p.paused = false
	p.started = p.now()
	p.log.Info().Str("title", t.Title).Int("queue", len(p.queue)).Msg("now playing")
}

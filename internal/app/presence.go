package app

import (
	"github.com/dkeye/voicerooms/internal/domain"
)

// activeParticipants is the stored roster filtered by live connections.
// Stale entries left behind by a crash or an eviction never count.
func (r *Room) activeParticipants() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.snapshot.Participants))
	for _, p := range r.snapshot.Participants {
		if r.registry.IsConnected(p.ID) {
			out = append(out, p.Clone())
		}
	}
	return out
}

func (r *Room) isFull(user domain.UserID) bool {
	if r.registry.IsConnected(user) {
		return false
	}
	return len(r.activeParticipants()) >= r.snapshot.MaxParticipants
}

// reconcile drops roster entries with no live connection and persists the
// result when anything changed.
func (r *Room) reconcile() error {
	kept := r.activeParticipants()
	stale := len(r.snapshot.Participants) - len(kept)
	if stale == 0 {
		return nil
	}
	r.logger.Info().Int("stale", stale).Int("kept", len(kept)).Msg("reconciled roster against live connections")
	r.snapshot.Participants = kept
	return r.persist()
}

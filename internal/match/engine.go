// Package match implements the mutual-preference search over the waiting
// lists. A requester of gender G wanting preference P scans the queues of
// users whose gender satisfies P and whose preference is either G or "any".
// Specific-preference queues are scanned before "any" queues to bias
// toward higher-intent pairings.
package match

import (
	"context"
	"log"

	"github.com/veilchat/backend/internal/queue"
)

// DefaultScanWidth bounds how many candidates are read per partition. A
// burst larger than this can starve very old penalized entries behind
// equally scored fresh ones, which is an accepted fairness degradation.
const DefaultScanWidth = 85

// Waitlist is the slice of the queue store the engine needs. Implemented
// by *queue.Store and by in-memory fakes in tests.
type Waitlist interface {
	PeekCandidates(ctx context.Context, g queue.Gender, p queue.Preference, limit int64) ([]string, error)
	TryClaim(ctx context.Context, identity string, g queue.Gender, p queue.Preference) (score float64, ok bool, err error)
	Restore(ctx context.Context, identity string, g queue.Gender, p queue.Preference, score float64) error
}

// Pairing is the transient result of a successful double claim. It is
// never persisted; the caller allocates a room and notifies both sides.
type Pairing struct {
	Requester string
	Partner   string
}

// Engine searches compatible partitions and atomically claims a mutual
// match for the requester.
type Engine struct {
	waitlist  Waitlist
	scanWidth int64
}

// NewEngine creates a match engine over the given waitlist.
func NewEngine(waitlist Waitlist) *Engine {
	return &Engine{waitlist: waitlist, scanWidth: DefaultScanWidth}
}

// FindMatch searches for a queued user compatible with the requester and
// claims both entries. It returns nil when no candidate could be claimed,
// in which case the requester's own entry is left enqueued.
//
// Claim order matters: the candidate's entry is claimed first, and the
// requester's own entry only once a candidate claim has succeeded. If the
// self-claim then fails, a racing search has already matched the requester,
// so the candidate is restored at its original score and the search stops;
// no entry is ever consumed by two pairings.
func (e *Engine) FindMatch(ctx context.Context, identity string, g queue.Gender, p queue.Preference) (*Pairing, error) {
	targetGenders := []queue.Gender{queue.Gender(p)}
	if p == queue.PrefAny {
		targetGenders = queue.Genders
	}

	for _, targetGender := range targetGenders {
		// Users of targetGender who want the requester's gender come
		// before those who will take anyone.
		targetPrefs := []queue.Preference{queue.Preference(g), queue.PrefAny}

		for _, targetPref := range targetPrefs {
			candidates, err := e.waitlist.PeekCandidates(ctx, targetGender, targetPref, e.scanWidth)
			if err != nil {
				return nil, err
			}

			for _, candidate := range candidates {
				// The requester can appear in their own target queue
				// when gender and preference coincide.
				if candidate == identity {
					continue
				}

				score, claimed, err := e.waitlist.TryClaim(ctx, candidate, targetGender, targetPref)
				if err != nil {
					return nil, err
				}
				if !claimed {
					// Consumed by a racing match; move on without retry.
					continue
				}

				_, selfClaimed, err := e.waitlist.TryClaim(ctx, identity, g, p)
				if err != nil {
					// Put the candidate back before surfacing the error.
					if restoreErr := e.waitlist.Restore(ctx, candidate, targetGender, targetPref, score); restoreErr != nil {
						log.Printf("[match] restore %s after claim error: %v", candidate, restoreErr)
					}
					return nil, err
				}
				if !selfClaimed {
					// Someone else already matched the requester. Restore
					// the candidate and let the other pairing stand.
					if err := e.waitlist.Restore(ctx, candidate, targetGender, targetPref, score); err != nil {
						log.Printf("[match] restore %s: %v", candidate, err)
					}
					return nil, nil
				}

				return &Pairing{Requester: identity, Partner: candidate}, nil
			}
		}
	}

	return nil, nil
}

package domain

import "fmt"

// Identity selects how a local record is matched to a remote one.
type Identity int

const (
	// StableIDIdentity matches by id when both records carry one and falls back to text otherwise.
	StableIDIdentity Identity = iota

	// TextIdentity matches by text only. Distinct quotes with identical wording collide.
	TextIdentity
)

// String returns the configuration name of the identity strategy.
func (i Identity) String() string {
	switch i {
	case StableIDIdentity:
		return "stable_id"
	case TextIdentity:
		return "text"
	default:
		return fmt.Sprintf("identity(%d)", int(i))
	}
}

// ParseIdentity converts a configuration name into an Identity.
func ParseIdentity(name string) (Identity, error) {
	switch name {
	case "", "stable_id":
		return StableIDIdentity, nil
	case "text":
		return TextIdentity, nil
	default:
		return 0, NewValidationErrorWithValue("identity", "must be one of stable_id, text", name)
	}
}

// IdentityIndex maps identity keys to positions in a quote sequence.
// When several records share a key the first one wins.
type IdentityIndex struct {
	identity Identity
	byID     map[string]int
	byText   map[string]int
	// byAnonText only holds records without an id, the only ones a stable-id record may fall back to.
	byAnonText map[string]int
}

// Index builds an IdentityIndex over quotes.
func (i Identity) Index(quotes []Quote) *IdentityIndex {
	ix := &IdentityIndex{
		identity:   i,
		byID:       make(map[string]int, len(quotes)),
		byText:     make(map[string]int, len(quotes)),
		byAnonText: make(map[string]int),
	}

	for pos, q := range quotes {
		ix.Add(q, pos)
	}

	return ix
}

// Add registers q at position pos unless its keys are already taken.
func (ix *IdentityIndex) Add(q Quote, pos int) {
	if _, ok := ix.byText[q.Text]; !ok {
		ix.byText[q.Text] = pos
	}

	if q.ID == "" {
		if _, ok := ix.byAnonText[q.Text]; !ok {
			ix.byAnonText[q.Text] = pos
		}

		return
	}

	if _, ok := ix.byID[q.ID]; !ok {
		ix.byID[q.ID] = pos
	}
}

// Lookup returns the position of the record sharing an identity key with q.
func (ix *IdentityIndex) Lookup(q Quote) (int, bool) {
	if ix.identity == TextIdentity {
		pos, ok := ix.byText[q.Text]
		return pos, ok
	}

	if q.ID == "" {
		pos, ok := ix.byText[q.Text]
		return pos, ok
	}

	if pos, ok := ix.byID[q.ID]; ok {
		return pos, true
	}

	pos, ok := ix.byAnonText[q.Text]

	return pos, ok
}

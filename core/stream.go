package core

import "fmt"

// Stream identifies one of the parallel topic streams the pipeline tracks.
// Streams are immutable identifiers; their query sets and source allow-lists
// come from configuration and never change during a run.
type Stream string

const (
	// StreamLegal covers regulatory and legal developments (UKE, UOKiK, courts, EU law).
	StreamLegal Stream = "legal"
	// StreamPolitical covers government policy and political developments.
	StreamPolitical Stream = "political"
	// StreamFinancial covers market and financial developments.
	StreamFinancial Stream = "financial"
)

// KnownStreams returns the closed set of streams in canonical order.
func KnownStreams() []Stream {
	return []Stream{StreamLegal, StreamPolitical, StreamFinancial}
}

// ParseStream resolves an external domain string to a Stream. The category
// name "market" is accepted as an alias for the financial stream because the
// UI and the report category vocabulary use it interchangeably.
func ParseStream(s string) (Stream, error) {
	switch s {
	case "legal":
		return StreamLegal, nil
	case "political":
		return StreamPolitical, nil
	case "financial", "market":
		return StreamFinancial, nil
	default:
		return "", fmt.Errorf("unknown stream %q", s)
	}
}

// ParseStreams resolves a list of domain strings, rejecting empty input and
// unknown names. Duplicates collapse to one entry, preserving first-seen order.
func ParseStreams(domains []string) ([]Stream, error) {
	if len(domains) == 0 {
		return nil, fmt.Errorf("at least one stream is required")
	}
	seen := make(map[Stream]bool, len(domains))
	streams := make([]Stream, 0, len(domains))
	for _, d := range domains {
		s, err := ParseStream(d)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		streams = append(streams, s)
	}
	return streams, nil
}

// Category returns the report category owned by this stream. Categorized
// items in a stream's DomainReport must carry this category; anything else
// is cross-domain leakage.
func (s Stream) Category() Category {
	switch s {
	case StreamLegal:
		return CategoryLegal
	case StreamPolitical:
		return CategoryPolitical
	default:
		return CategoryMarket
	}
}

// String implements fmt.Stringer.
func (s Stream) String() string { return string(s) }

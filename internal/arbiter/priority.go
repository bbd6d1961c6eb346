package arbiter

import "fmt"

// Priority orders competing requests for a channel.
type Priority int

const (
	Low Priority = iota
	Medium
	High
	// Crucial preempts everything except Uninterruptible, including other
	// Crucial holders.
	Crucial
	// Uninterruptible can never be preempted.
	Uninterruptible
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	case Crucial:
		return "crucial"
	case Uninterruptible:
		return "uninterruptible"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Preempts reports whether a requester at p may take a channel from a
// holder at holder.
func (p Priority) Preempts(holder Priority) bool {
	switch holder {
	case Uninterruptible:
		return false
	case Crucial:
		return p >= Crucial
	default:
		return p > holder
	}
}

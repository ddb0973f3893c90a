package snowflake

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC
)

var ErrInvalidNode = errors.New("node number must be between 0 and 1023")

// ID is a time ordered identifier. Later ids from the same node always compare greater.
// It is encoded as a decimal string in JSON so browser clients keep full precision.
type ID int64

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// Time returns the millisecond the id was generated at.
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timeShift) + epoch)
}

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(id.String())), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	s := string(b)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse reads a decimal id.
func Parse(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

type Node struct {
	mu    sync.Mutex
	time  int64
	node  int64
	step  int64
	epoch int64
	now   func() time.Time
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrInvalidNode
	}
	return &Node{
		node:  node,
		epoch: epoch,
		now:   time.Now,
	}, nil
}

// Generate returns the next id. Ids are strictly increasing even when the
// clock stalls or moves backwards.
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().UnixMilli()

	if now < n.time {
		// Clock moved backwards, keep issuing from the last seen millisecond
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			// Sequence exhausted for this millisecond, borrow the next one
			now++
		}
	} else {
		n.step = 0
	}

	n.time = now

	return ID(((now - n.epoch) << timeShift) | (n.node << nodeShift) | n.step)
}

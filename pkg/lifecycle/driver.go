package lifecycle

import (
	"fmt"
	"time"

	"github.com/mahaj/chatrelay/pkg/deferred"
	"github.com/mahaj/chatrelay/pkg/model"
)

const (
	DefaultDeliveryDelay = 1 * time.Second
	DefaultReadDelay     = 3 * time.Second
)

// Driver decides when appended messages advance.
type Driver interface {
	MessageAppended(msg model.Message)
	Stop()
}

// TimerDriver simulates the recipient: a message is delivered after
// deliveryDelay and read after readDelay, both counted from the append.
type TimerDriver struct {
	machine       *Machine
	scheduler     *deferred.Scheduler
	deliveryDelay time.Duration
	readDelay     time.Duration
}

func NewTimerDriver(machine *Machine, deliveryDelay, readDelay time.Duration) *TimerDriver {
	if deliveryDelay <= 0 {
		deliveryDelay = DefaultDeliveryDelay
	}
	if readDelay < deliveryDelay {
		readDelay = deliveryDelay
	}
	return &TimerDriver{
		machine:       machine,
		scheduler:     deferred.NewScheduler(),
		deliveryDelay: deliveryDelay,
		readDelay:     readDelay,
	}
}

func (d *TimerDriver) MessageAppended(msg model.Message) {
	d.schedule(msg, model.StatusDelivered, d.deliveryDelay)
	d.schedule(msg, model.StatusRead, d.readDelay)
}

// schedule arms one transition. A message that already reached target when
// the timer fires, for instance through an explicit mark_read, is left alone
// by Advance.
func (d *TimerDriver) schedule(msg model.Message, target model.Status, delay time.Duration) {
	key := fmt.Sprintf("%s/%s/%s", msg.ConversationID, msg.ID, target)
	conversationID, messageID := msg.ConversationID, msg.ID
	d.scheduler.Schedule(key, delay, func(deferred.Stamp) {
		d.machine.Advance(conversationID, messageID, target)
	})
}

// Pending reports how many transitions are still armed.
func (d *TimerDriver) Pending() int { return d.scheduler.Pending() }

func (d *TimerDriver) Stop() { d.scheduler.Stop() }

// AckDriver leaves every transition to recipient acknowledgements
// (mark_delivered and mark_read).
type AckDriver struct{}

func (AckDriver) MessageAppended(model.Message) {}

func (AckDriver) Stop() {}

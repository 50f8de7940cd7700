package chat

import (
	"time"
)

// NoticeKind distinguishes errors from informational notices.
type NoticeKind int

const (
	NoticeError NoticeKind = iota
	NoticeInfo
)

// Notice is a transient, auto-dismissing notification.
type Notice struct {
	Kind NoticeKind
	Text string
	At   time.Time
}

// Notices holds at most one notice and clears it after ttl.
type Notices struct {
	current   *Notice
	countdown countdown
	now       func() time.Time
}

func newNotices(sched Scheduler, ttl time.Duration) *Notices {
	return &Notices{
		countdown: countdown{sched: sched, d: ttl},
		now:       time.Now,
	}
}

// Error shows err as an error notice.
func (n *Notices) Error(err error) {
	n.show(NoticeError, err.Error())
}

// Info shows an informational notice.
func (n *Notices) Info(text string) {
	n.show(NoticeInfo, text)
}

func (n *Notices) show(kind NoticeKind, text string) {
	n.current = &Notice{Kind: kind, Text: text, At: n.now()}
	n.countdown.Arm(func() { n.current = nil })
}

// Current returns the visible notice, if any.
func (n *Notices) Current() (Notice, bool) {
	if n.current == nil {
		return Notice{}, false
	}
	return *n.current, true
}

// Dismiss clears the visible notice immediately.
func (n *Notices) Dismiss() {
	n.countdown.Disarm()
	n.current = nil
}

package capability

import "github.com/simpleiot/cellmgr/data"

// apnTryList is the ordered queue of APNs for one connect. Entries are only
// ever removed from the front.
type apnTryList struct {
	apns []data.APN
}

// newAPNTryList builds the candidates: the last good APN, then the user APN
// when it differs, then the provider database entries in database order.
func newAPNTryList(p ConnectParams) *apnTryList {
	l := &apnTryList{}
	if p.LastGood != nil && !p.LastGood.IsZero() {
		l.apns = append(l.apns, *p.LastGood)
	}
	if p.User != nil && !p.User.IsZero() &&
		(p.LastGood == nil || p.User.Name != p.LastGood.Name) {
		l.apns = append(l.apns, *p.User)
	}
	for _, a := range p.Provider {
		if !a.IsZero() {
			l.apns = append(l.apns, a)
		}
	}
	return l
}

func (l *apnTryList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.apns)
}

func (l *apnTryList) Front() (data.APN, bool) {
	if l.Len() == 0 {
		return data.APN{}, false
	}
	return l.apns[0], true
}

func (l *apnTryList) Pop() {
	if l.Len() > 0 {
		l.apns = l.apns[1:]
	}
}

func (l *apnTryList) Clear() {
	if l != nil {
		l.apns = nil
	}
}

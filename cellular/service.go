package cellular

import (
	"time"

	"github.com/google/uuid"
	"github.com/simpleiot/cellmgr/data"
)

// Service is the user visible endpoint of a registered device. It lives
// from the first registration until registration is lost or the device
// goes away, and is re-attached to its stored profile by subscriber
// identity.
type Service struct {
	id                string
	key               string
	name              string
	state             data.ServiceState
	failure           data.Failure
	activationState   string
	roamingState      string
	networkTechnology string
	subscriptionState string
	strength          int
	lastGood          *data.APN
	userAPN           *data.APN
	servingOperator   data.Operator
	pppUsername       string
	pppPassword       string
}

// newService creates a service for identity, restoring its profile when
// one was stored before
func newService(id data.Identity, p data.Profile, found bool) *Service {
	s := &Service{
		key:             id.Key(),
		state:           data.ServiceIdle,
		activationState: data.ActivationStateUnknown,
		roamingState:    data.RoamingStateUnknown,
	}
	if found && p.ServiceID != "" {
		s.id = p.ServiceID
		s.name = p.Name
		s.userAPN = p.UserAPN
		s.lastGood = p.LastGoodAPN
		s.pppUsername = p.PPPUsername
		s.pppPassword = p.PPPPassword
	} else {
		s.id = uuid.New().String()
	}
	return s
}

// ID is the stable unique id of the service
func (s *Service) ID() string {
	return s.id
}

// State returns the connection state
func (s *Service) State() data.ServiceState {
	return s.state
}

// Failure is the reason of the last failure, FailureNone if the service is
// not in the failure state
func (s *Service) Failure() data.Failure {
	return s.failure
}

func (s *Service) setState(st data.ServiceState) {
	s.state = st
	if st != data.ServiceFailure {
		s.failure = data.FailureNone
	}
}

func (s *Service) setFailure(f data.Failure) {
	if f == data.FailureNone {
		f = data.FailureUnknown
	}
	s.state = data.ServiceFailure
	s.failure = f
}

func (s *Service) profile(allowRoaming bool) data.Profile {
	return data.Profile{
		Key:          s.key,
		ServiceID:    s.id,
		Name:         s.name,
		UserAPN:      s.userAPN,
		LastGoodAPN:  s.lastGood,
		AllowRoaming: allowRoaming,
		PPPUsername:  s.pppUsername,
		PPPPassword:  s.pppPassword,
		Updated:      time.Now(),
	}
}

func (s *Service) snapshot() *data.ServiceSnapshot {
	return &data.ServiceSnapshot{
		ID:                s.id,
		Name:              s.name,
		State:             s.state.String(),
		Failure:           s.failure,
		FailureReason:     s.failure.Description(),
		ActivationState:   s.activationState,
		RoamingState:      s.roamingState,
		NetworkTechnology: s.networkTechnology,
		SubscriptionState: s.subscriptionState,
		Strength:          s.strength,
		LastGoodAPN:       s.lastGood,
		UserAPN:           s.userAPN,
		ServingOperator:   s.servingOperator,
	}
}

package pmode

import (
	"strings"

	"github.com/e-CODEX/connector-sub004/internal/message"
)

// Set is the processing-mode configuration of one business domain: the agreed
// actions, services and parties messages may carry.
type Set struct {
	DomainID string
	Actions  []Action
	Services []Service
	Parties  []Party
}

type Action struct {
	Name string
}

type Service struct {
	Name string
	Type string
}

type Party struct {
	PartyID     string
	PartyIDType string
	Role        string
}

// FindAction returns the configured action of the given name.
func (s *Set) FindAction(name string) (Action, bool) {
	for _, a := range s.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// FindService returns the configured service of the given name.
func (s *Set) FindService(name string) (Service, bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return Service{}, false
}

// FindParty matches a message party against the configured parties. A blank
// party-id-type on the message is treated as absent: the message matches any
// configured id-type for that party id and role.
func (s *Set) FindParty(p message.Party) (Party, bool) {
	idType := strings.TrimSpace(p.PartyIDType)
	for _, cp := range s.Parties {
		if cp.PartyID != p.PartyID {
			continue
		}
		if cp.Role != "" && p.Role != "" && cp.Role != p.Role {
			continue
		}
		if idType != "" && cp.PartyIDType != idType {
			continue
		}
		return cp, true
	}
	return Party{}, false
}

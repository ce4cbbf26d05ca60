package link

import (
	"time"

	"github.com/e-CODEX/connector-sub004/internal/config"
)

// LinkType names the side of the connector a link partner sits on.
type LinkType string

const (
	LinkTypeBackend LinkType = "BACKEND"
	LinkTypeGateway LinkType = "GATEWAY"
)

func (t LinkType) Valid() bool {
	return t == LinkTypeBackend || t == LinkTypeGateway
}

// Mode describes how messages move over a link direction.
type Mode string

const (
	ModePush    Mode = "PUSH"
	ModePull    Mode = "PULL"
	ModePassive Mode = "PASSIVE"
)

func (m Mode) Valid() bool {
	return m == ModePush || m == ModePull || m == ModePassive
}

// Configuration is one plugin instantiation: the transport implementation and
// its connection properties, shared by the partners declared on it.
type Configuration struct {
	Name       string
	Impl       string
	Properties map[string]string
}

// Partner is one named remote endpoint on a configuration. Partner names are
// globally unique; messages address partners by name.
type Partner struct {
	Name              string
	ConfigurationName string
	Enabled           bool
	LinkType          LinkType
	SendMode          Mode
	ReceiveMode       Mode
	PullInterval      time.Duration
	Properties        map[string]string
}

func ConfigurationFromDeclaration(d config.LinkConfigurationDeclaration) Configuration {
	return Configuration{
		Name:       d.Name,
		Impl:       d.Impl,
		Properties: d.Properties,
	}
}

func PartnerFromDeclaration(d config.LinkPartnerDeclaration) Partner {
	return Partner{
		Name:              d.Name,
		ConfigurationName: d.ConfigurationName,
		Enabled:           d.Enabled,
		LinkType:          LinkType(d.LinkType),
		SendMode:          Mode(d.SendMode),
		ReceiveMode:       Mode(d.ReceiveMode),
		PullInterval:      d.PullInterval,
		Properties:        d.Properties,
	}
}

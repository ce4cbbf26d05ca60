package config

import (
	"fmt"
	"strings"
)

var validLinkTypes = map[string]bool{"BACKEND": true, "GATEWAY": true}
var validLinkModes = map[string]bool{"PUSH": true, "PULL": true, "PASSIVE": true}

// ValidateStatic checks everything that can be verified without touching
// external systems. Link and domain declarations failing here are fatal
// configuration errors.
func ValidateStatic(cfg *Config) error {
	var problems []string

	for domainID, dc := range cfg.Domains {
		if domainID == "" {
			problems = append(problems, "domain with empty id")
			continue
		}
		if dc.DefaultGatewayName == "" {
			problems = append(problems, fmt.Sprintf("domain %q: default_gateway_name is required", domainID))
		}
		if dc.DefaultBackendName == "" {
			problems = append(problems, fmt.Sprintf("domain %q: default_backend_name is required", domainID))
		}
		if dc.OutgoingVerification != "" && !dc.OutgoingVerification.Valid() {
			problems = append(problems, fmt.Sprintf("domain %q: invalid outgoing_verification %q", domainID, dc.OutgoingVerification))
		}
		if dc.IncomingVerification != "" && !dc.IncomingVerification.Valid() {
			problems = append(problems, fmt.Sprintf("domain %q: invalid incoming_verification %q", domainID, dc.IncomingVerification))
		}
	}

	linkNames := make(map[string]bool)
	for i, link := range cfg.Links {
		if link.Name == "" {
			problems = append(problems, fmt.Sprintf("links[%d]: name is required", i))
			continue
		}
		if linkNames[link.Name] {
			problems = append(problems, fmt.Sprintf("links[%d]: duplicate link configuration name %q", i, link.Name))
		}
		linkNames[link.Name] = true
		if link.Impl == "" {
			problems = append(problems, fmt.Sprintf("link %q: impl is required", link.Name))
		}
	}

	partnerNames := make(map[string]bool)
	for i, partner := range cfg.LinkPartners {
		if partner.Name == "" {
			problems = append(problems, fmt.Sprintf("link_partners[%d]: name is required", i))
			continue
		}
		if partnerNames[partner.Name] {
			problems = append(problems, fmt.Sprintf("link_partners[%d]: duplicate partner name %q", i, partner.Name))
		}
		partnerNames[partner.Name] = true

		if partner.ConfigurationName == "" {
			problems = append(problems, fmt.Sprintf("partner %q: configuration_name is required", partner.Name))
		} else if len(cfg.Links) > 0 && !linkNames[partner.ConfigurationName] {
			problems = append(problems, fmt.Sprintf("partner %q: unknown configuration_name %q", partner.Name, partner.ConfigurationName))
		}
		if partner.LinkType != "" && !validLinkTypes[partner.LinkType] {
			problems = append(problems, fmt.Sprintf("partner %q: invalid link_type %q", partner.Name, partner.LinkType))
		}
		if partner.SendMode != "" && !validLinkModes[partner.SendMode] {
			problems = append(problems, fmt.Sprintf("partner %q: invalid send_mode %q", partner.Name, partner.SendMode))
		}
		if partner.ReceiveMode != "" && !validLinkModes[partner.ReceiveMode] {
			problems = append(problems, fmt.Sprintf("partner %q: invalid receive_mode %q", partner.Name, partner.ReceiveMode))
		}
		if partner.ReceiveMode == "PULL" && partner.PullInterval <= 0 {
			problems = append(problems, fmt.Sprintf("partner %q: pull_interval must be positive for PULL receive mode", partner.Name))
		}
	}

	if cfg.Deduplication.OnRedisError != "" &&
		cfg.Deduplication.OnRedisError != "allow" &&
		cfg.Deduplication.OnRedisError != "deny" {
		problems = append(problems, fmt.Sprintf("deduplication.on_redis_error must be \"allow\" or \"deny\", got %q", cfg.Deduplication.OnRedisError))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

package security

import "encoding/xml"

// governanceXML mirrors the small subset of the OMG DDS-Security domain
// governance document schema this core acts on: one <domain_rule> per
// domain id (or domain id range), naming whether join access control is
// enabled. Only the fields needed to answer "which rule governs this
// domain id" are modeled here.
type governanceXML struct {
	XMLName xml.Name `xml:"dds"`
	Rules   []struct {
		Domains struct {
			Id []int `xml:"id"`
		} `xml:"domains"`
		AccessRules struct {
			EnableJoinAccessControl  bool   `xml:"enable_join_access_control"`
			RTPSProtectionKind       string `xml:"rtps_protection_kind"`
			DiscoveryProtectionKind  string `xml:"discovery_protection_kind"`
			LivelinessProtectionKind string `xml:"liveliness_protection_kind"`
		} `xml:"topic_access_rules"`
	} `xml:"domain_access_rules>domain_rule"`
}

// ParseGovernance parses a governance document's XML body (already
// extracted from its S/MIME wrapper) and returns every DomainRule found.
func ParseGovernance(xmlBody []byte) ([]DomainRule, error) {
	var doc governanceXML
	if err := xml.Unmarshal(xmlBody, &doc); err != nil {
		return nil, wrap("governance", err)
	}
	var rules []DomainRule
	for _, r := range doc.Rules {
		for _, id := range r.Domains.Id {
			rules = append(rules, DomainRule{
				DomainId:                 id,
				EnableJoinAccessControl:  r.AccessRules.EnableJoinAccessControl,
				RTPSProtectionKind:       ProtectionKind(r.AccessRules.RTPSProtectionKind),
				DiscoveryProtectionKind:  r.AccessRules.DiscoveryProtectionKind,
				LivelinessProtectionKind: r.AccessRules.LivelinessProtectionKind,
			})
		}
	}
	return rules, nil
}

// FindRule returns the first rule naming this domain id.
func FindRule(rules []DomainRule, domainId int) (DomainRule, bool) {
	for _, r := range rules {
		if r.DomainId == domainId {
			return r, true
		}
	}
	return DomainRule{}, false
}

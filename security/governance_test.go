package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleGovernance = `<?xml version="1.0"?>
<dds>
  <domain_access_rules>
    <domain_rule>
      <domains><id>0</id></domains>
      <topic_access_rules>
        <enable_join_access_control>true</enable_join_access_control>
        <rtps_protection_kind>SIGN</rtps_protection_kind>
        <discovery_protection_kind>ENCRYPT</discovery_protection_kind>
        <liveliness_protection_kind>NONE</liveliness_protection_kind>
      </topic_access_rules>
    </domain_rule>
    <domain_rule>
      <domains><id>1</id></domains>
      <topic_access_rules>
        <enable_join_access_control>false</enable_join_access_control>
      </topic_access_rules>
    </domain_rule>
  </domain_access_rules>
</dds>`

func TestParseGovernanceFindsRulePerDomain(t *testing.T) {
	rules, err := ParseGovernance([]byte(sampleGovernance))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	r0, ok := FindRule(rules, 0)
	require.True(t, ok)
	require.True(t, r0.EnableJoinAccessControl)
	require.Equal(t, ProtectionKind("SIGN"), r0.RTPSProtectionKind)
	require.Equal(t, "ENCRYPT", r0.DiscoveryProtectionKind)

	r1, ok := FindRule(rules, 1)
	require.True(t, ok)
	require.False(t, r1.EnableJoinAccessControl)
}

func TestFindRuleUnknownDomain(t *testing.T) {
	rules, err := ParseGovernance([]byte(sampleGovernance))
	require.NoError(t, err)

	_, ok := FindRule(rules, 99)
	require.False(t, ok)
}

func TestParseGovernanceMalformedXML(t *testing.T) {
	_, err := ParseGovernance([]byte("not xml"))
	require.Error(t, err)
}

package security

import "time"

// PermissionsHandle is the opaque result of a successful access-control
// admission: it caches the resolved rule and grant so later per-entity
// checks (not yet exercised by CheckCreateParticipant, which only covers
// participant creation) would not have to reparse the governance and
// permissions documents.
type PermissionsHandle struct {
	DomainId    int
	SubjectName string
	Rule        DomainRule
	Grant       Grant
}

// DomainRule is one <domain_rule> entry from a parsed governance document,
// matched by DomainId.
type DomainRule struct {
	DomainId                 int
	EnableJoinAccessControl  bool
	RTPSProtectionKind       ProtectionKind
	DiscoveryProtectionKind  string
	LivelinessProtectionKind string
}

// ProtectionKind mirrors the OMG DDS-Security *_protection_kind enum.
type ProtectionKind string

const (
	ProtectionNone              ProtectionKind = "NONE"
	ProtectionSign              ProtectionKind = "SIGN"
	ProtectionEncrypt           ProtectionKind = "ENCRYPT"
	ProtectionSignOriginAuth    ProtectionKind = "SIGN_WITH_ORIGIN_AUTHENTICATION"
	ProtectionEncryptOriginAuth ProtectionKind = "ENCRYPT_WITH_ORIGIN_AUTHENTICATION"
)

// protected reports whether kind requires any protection at all.
func (k ProtectionKind) protected() bool {
	return k != "" && k != ProtectionNone
}

// encrypted reports whether kind requires confidentiality, not just
// integrity.
func (k ProtectionKind) encrypted() bool {
	return k == ProtectionEncrypt || k == ProtectionEncryptOriginAuth
}

// originAuthenticated reports whether kind requires origin authentication.
func (k ProtectionKind) originAuthenticated() bool {
	return k == ProtectionSignOriginAuth || k == ProtectionEncryptOriginAuth
}

// SecurityAttributes is the protected/encrypted/origin-authenticated
// triple DDS-Security derives from a single protection kind value.
type SecurityAttributes struct {
	IsProtected            bool
	IsEncrypted            bool
	IsOriginAuthenticated  bool
}

func deriveAttributes(kind ProtectionKind) SecurityAttributes {
	return SecurityAttributes{
		IsProtected:           kind.protected(),
		IsEncrypted:           kind.encrypted(),
		IsOriginAuthenticated: kind.originAuthenticated(),
	}
}

// ParticipantSecurityAttributes is the participant-wide security posture
// governance assigns: one SecurityAttributes triple for RTPS submessage
// protection, one for discovery traffic, one for liveliness traffic.
type ParticipantSecurityAttributes struct {
	RTPS       SecurityAttributes
	Discovery  SecurityAttributes
	Liveliness SecurityAttributes
}

// DeriveParticipantSecurityAttributes maps a DomainRule's protection
// kinds onto the protected/encrypted/origin-authenticated triple that
// governs how this participant must send and accept RTPS, discovery, and
// liveliness traffic in that domain.
func DeriveParticipantSecurityAttributes(rule DomainRule) ParticipantSecurityAttributes {
	return ParticipantSecurityAttributes{
		RTPS:       deriveAttributes(rule.RTPSProtectionKind),
		Discovery:  deriveAttributes(ProtectionKind(rule.DiscoveryProtectionKind)),
		Liveliness: deriveAttributes(ProtectionKind(rule.LivelinessProtectionKind)),
	}
}

// Grant is one <grant> entry from a parsed permissions document, matched
// by subject name and validity window.
type Grant struct {
	SubjectName string
	NotBefore   time.Time
	NotAfter    time.Time
	Allow       bool
}

func (g Grant) ValidAt(t time.Time) bool {
	return !t.Before(g.NotBefore) && !t.After(g.NotAfter)
}
